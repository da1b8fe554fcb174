package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/libtoken-go/fee"
	"github.com/bitfsorg/libtoken-go/tx"
	"github.com/bitfsorg/libtoken-go/utxo"
)

func TestPlanReplenish_Scenario(t *testing.T) {
	tests := []struct {
		name       string
		balance    []uint64
		wantOuts   int
		wantFee    uint64
		wantChange int
	}{
		{"change above dust", []uint64{10000, 15000}, 21, 1000, 20},
		{"change below dust", []uint64{10000, 11500}, 20, 1500, -1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, store, signer := newTestProvider(t, fee.Fixed{Amount: 1000}, tc.balance...)

			r, err := p.PlanReplenish()
			require.NoError(t, err)
			assert.Equal(t, 20, r.Created)
			assert.Len(t, r.Tx.Outputs, tc.wantOuts)
			assert.Equal(t, tc.wantFee, r.Fee)
			assert.Equal(t, tc.wantChange, r.ChangeVout)
			for _, out := range r.Tx.Outputs[:20] {
				assert.Equal(t, uint64(1000), out.Satoshis)
				assert.True(t, signer.Owns(out.LockingScript.Bytes()))
			}
			if tc.wantChange >= 0 {
				assert.Equal(t, uint64(4000), r.Tx.Outputs[tc.wantChange].Satoshis)
			}
			assert.Len(t, r.Claimed, 2)
			assert.Equal(t, 2, claimed(t, store, "pool"))
		})
	}
}

func TestPlanReplenish_OnlyTopsUp(t *testing.T) {
	values := append(repeat(1000, 17), 50000)
	p, _, _ := newTestProvider(t, fee.Fixed{Amount: 500}, values...)

	st, err := p.Status()
	require.NoError(t, err)
	assert.Equal(t, 17, st.Outputs)
	assert.Equal(t, uint64(67000), st.Balance)

	r, err := p.PlanReplenish()
	require.NoError(t, err)
	assert.Equal(t, 3, r.Created)
	// Pool outputs are never spent to make pool outputs.
	require.Len(t, r.Claimed, 1)
	assert.Equal(t, uint64(50000), r.Claimed[0].Value)
	assert.Equal(t, uint64(50000-3000-500), r.Tx.Outputs[r.ChangeVout].Satoshis)
}

func TestPlanReplenish_CappedByMaxPoolSize(t *testing.T) {
	store := utxo.NewMemoryStore()
	signer := newKeySigner("pool")
	fund(t, store, signer, 100000)
	cfg := DefaultConfig()
	cfg.PoolSize = 50
	cfg.MaxPoolSize = 5
	p, err := New(store, signer, fee.Fixed{Amount: 100}, cfg)
	require.NoError(t, err)

	r, err := p.PlanReplenish()
	require.NoError(t, err)
	assert.Equal(t, 5, r.Created)
}

func TestPlanReplenish_Full(t *testing.T) {
	p, _, _ := newTestProvider(t, fee.Fixed{Amount: 100}, repeat(1000, 20)...)
	_, err := p.PlanReplenish()
	assert.ErrorIs(t, err, ErrPoolFull)
}

func TestPlanReplenish_InsufficientBalance(t *testing.T) {
	p, store, _ := newTestProvider(t, fee.Fixed{Amount: 100}, 5000)
	_, err := p.PlanReplenish()
	assert.ErrorIs(t, err, ErrNoFundingAvailable)
	assert.Zero(t, claimed(t, store, "pool"))
}

func TestPlanReplenish_AutoFee(t *testing.T) {
	p, _, _ := newTestProvider(t, fee.Auto{RatePerKB: 1000}, 30000)
	r, err := p.PlanReplenish()
	require.NoError(t, err)
	assert.Equal(t, fee.Auto{RatePerKB: 1000}.Fee(r.Tx), r.Fee)
	assert.Equal(t, uint64(30000), tx.SumOutputs(r.Tx)+r.Fee)
}
