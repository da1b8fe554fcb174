package broadcast

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/libtoken-go/color"
	"github.com/bitfsorg/libtoken-go/fee"
	"github.com/bitfsorg/libtoken-go/provider"
	"github.com/bitfsorg/libtoken-go/tx"
	"github.com/bitfsorg/libtoken-go/txbuilder"
	"github.com/bitfsorg/libtoken-go/utxo"
)

var errRejected = errors.New("rejected by node")

// fakeLedger accepts submissions until failAt (1-based) is reached.
type fakeLedger struct {
	mu        sync.Mutex
	submitted []string
	failAt    int
	raw       map[string]string
}

func (l *fakeLedger) SubmitRawTransaction(_ context.Context, rawHex string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failAt > 0 && len(l.submitted)+1 == l.failAt {
		return "", errRejected
	}
	l.submitted = append(l.submitted, rawHex)
	t, err := transaction.NewTransactionFromHex(rawHex)
	if err != nil {
		return "", err
	}
	txid := t.TxID().String()
	if l.raw == nil {
		l.raw = make(map[string]string)
	}
	l.raw[txid] = rawHex
	return txid, nil
}

func (l *fakeLedger) GetRawTransaction(_ context.Context, txid string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	raw, ok := l.raw[txid]
	if !ok {
		return "", fmt.Errorf("unknown tx %s", txid)
	}
	return raw, nil
}

// wallet is an Owner and provider.Signer over generated keys.
type wallet struct {
	id     string
	mu     sync.Mutex
	hashes [][]byte
}

func (w *wallet) WalletID() string { return w.id }

func (w *wallet) script(t *testing.T) []byte {
	t.Helper()
	a, err := w.FreshReceiveAddress()
	require.NoError(t, err)
	lock, err := tx.P2PKHScript(a)
	require.NoError(t, err)
	return lock
}

func (w *wallet) FreshReceiveAddress() (*script.Address, error) {
	priv, err := ec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	a, err := script.NewAddressFromPublicKey(priv.PubKey(), true)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.hashes = append(w.hashes, a.PublicKeyHash)
	w.mu.Unlock()
	return a, nil
}

func (w *wallet) FreshChangeAddress() (*script.Address, error) { return w.FreshReceiveAddress() }

func (w *wallet) Owns(lockingScript []byte) bool {
	h, err := tx.PubKeyHashFromP2PKH(lockingScript)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, k := range w.hashes {
		if bytes.Equal(k, h) {
			return true
		}
	}
	return false
}

func (w *wallet) SignInput(t *transaction.Transaction, index int, _ *utxo.Output) error {
	t.Inputs[index].UnlockingScript = tx.PlaceholderUnlockingScript()
	return nil
}

// contractWallet additionally recognises one contract script.
type contractWallet struct {
	*wallet
	contract []byte
}

func (c *contractWallet) OwnsContract(lockingScript, _ []byte) bool {
	return bytes.Equal(lockingScript, c.contract)
}

func stored(t *testing.T, store utxo.Repository, w *wallet, b byte, value uint64) *utxo.Output {
	t.Helper()
	var h chainhash.Hash
	h[0] = b
	out := &utxo.Output{TxID: h, Value: value, Script: w.script(t), Finalized: true, WalletID: w.id}
	require.NoError(t, store.Upsert(out))
	ok, err := store.Claim(out.Outpoint(), "attempt")
	require.NoError(t, err)
	require.True(t, ok)
	out.State = utxo.Claimed
	out.ClaimedBy = "attempt"
	return out
}

func output(lock []byte, value uint64) *transaction.TransactionOutput {
	return &transaction.TransactionOutput{Satoshis: value, LockingScript: script.NewFromBytes(lock)}
}

type scenario struct {
	store         utxo.Repository
	alice, pool   *wallet
	spent, poolIn *utxo.Output
	funded        *utxo.Output
	res           *txbuilder.Result
}

// newScenario builds a funding tx (pool pays alice 1000, change to pool)
// and a main tx spending it plus an alice output, paying out with change
// to alice.
func newScenario(t *testing.T) *scenario {
	t.Helper()
	s := &scenario{
		store: utxo.NewMemoryStore(),
		alice: &wallet{id: "alice"},
		pool:  &wallet{id: "pool"},
	}
	s.spent = stored(t, s.store, s.alice, 1, 5000)
	s.poolIn = stored(t, s.store, s.pool, 2, 3000)

	funding := transaction.NewTransaction()
	funding.AddInput(s.poolIn.TxInput())
	funding.AddOutput(output(s.alice.script(t), 1000))
	funding.AddOutput(output(s.pool.script(t), 1900))
	funding.Inputs[0].UnlockingScript = tx.PlaceholderUnlockingScript()

	fundOut, err := utxo.FromTx(funding, 0, "alice")
	require.NoError(t, err)
	s.funded = fundOut
	main := transaction.NewTransaction()
	main.AddInput(fundOut.TxInput())
	main.AddInput(s.spent.TxInput())
	main.AddOutput(output((&wallet{id: "bob"}).script(t), 4000))
	main.AddOutput(output(s.alice.script(t), 1800))
	for _, in := range main.Inputs {
		in.UnlockingScript = tx.PlaceholderUnlockingScript()
	}

	s.res = &txbuilder.Result{
		Tx:         main,
		FundingTxs: []*transaction.Transaction{funding},
		Fee:        200,
		Claimed:    []*utxo.Output{s.spent, s.poolIn},
		Funded:     []*utxo.Output{fundOut},
	}
	return s
}

func TestBroadcast_RecordsOwnedOutputs(t *testing.T) {
	s := newScenario(t)
	ledger := &fakeLedger{}
	session := NewSession(ledger, s.store, s.alice, s.pool)

	txid, err := session.Broadcast(context.Background(), s.res)
	require.NoError(t, err)
	assert.Equal(t, s.res.Tx.TxID().String(), txid)

	require.Len(t, ledger.submitted, 2)
	assert.Equal(t, s.res.FundingTxs[0].Hex(), ledger.submitted[0], "funding first")
	assert.Equal(t, s.res.Tx.Hex(), ledger.submitted[1])

	mainID := *s.res.Tx.TxID()
	change, err := s.store.Get(utxo.Outpoint{TxID: mainID, Index: 1})
	require.NoError(t, err)
	assert.Equal(t, "alice", change.WalletID)
	assert.False(t, change.Finalized)

	_, err = s.store.Get(utxo.Outpoint{TxID: mainID, Index: 0})
	assert.ErrorIs(t, err, utxo.ErrNotFound, "outputs of other wallets are not recorded")

	fundID := *s.res.FundingTxs[0].TxID()
	_, err = s.store.Get(utxo.Outpoint{TxID: fundID, Index: 0})
	assert.ErrorIs(t, err, utxo.ErrNotFound, "funding output is spent by the main tx")
	poolChange, err := s.store.Get(utxo.Outpoint{TxID: fundID, Index: 1})
	require.NoError(t, err)
	assert.Equal(t, "pool", poolChange.WalletID)

	got, err := s.store.Get(s.spent.Outpoint())
	require.NoError(t, err)
	assert.Equal(t, utxo.Claimed, got.State, "spent inputs stay claimed until confirmed")
}

func TestBroadcast_RejectedFirstReleasesEverything(t *testing.T) {
	s := newScenario(t)
	session := NewSession(&fakeLedger{failAt: 1}, s.store, s.alice, s.pool)

	_, err := session.Broadcast(context.Background(), s.res)
	assert.ErrorIs(t, err, ErrFailedToBroadcast)
	assert.ErrorIs(t, err, errRejected)

	for _, o := range []*utxo.Output{s.spent, s.poolIn} {
		got, err := s.store.Get(o.Outpoint())
		require.NoError(t, err)
		assert.Equal(t, utxo.Available, got.State)
	}
	mine, err := s.store.ListOutputs("alice", utxo.Filter{IncludeClaimed: true})
	require.NoError(t, err)
	assert.Len(t, mine, 1, "nothing recorded")
}

func TestBroadcast_AcceptedFundingSurvivesRejection(t *testing.T) {
	s := newScenario(t)
	ledger := &fakeLedger{failAt: 2}
	session := NewSession(ledger, s.store, s.alice, s.pool)

	_, err := session.Broadcast(context.Background(), s.res)
	assert.ErrorIs(t, err, ErrFailedToBroadcast)
	require.Len(t, ledger.submitted, 1, "funding tx accepted")

	// The pool input is spent on chain and must never be selected again.
	_, err = s.store.Get(s.poolIn.Outpoint())
	assert.ErrorIs(t, err, utxo.ErrNotFound)

	got, err := s.store.Get(s.spent.Outpoint())
	require.NoError(t, err)
	assert.Equal(t, utxo.Available, got.State, "input of the rejected tx is released")

	fundID := *s.res.FundingTxs[0].TxID()
	funded, err := s.store.Get(s.funded.Outpoint())
	require.NoError(t, err)
	assert.Equal(t, "alice", funded.WalletID)
	assert.Equal(t, utxo.Available, funded.State)
	assert.Equal(t, uint64(1000), funded.Value)

	poolChange, err := s.store.Get(utxo.Outpoint{TxID: fundID, Index: 1})
	require.NoError(t, err)
	assert.Equal(t, "pool", poolChange.WalletID)

	sel, err := utxo.NewSelector(s.store).Select("pool", color.Default, 1, utxo.Options{})
	require.NoError(t, err)
	for _, o := range sel.Outputs {
		assert.NotEqual(t, s.poolIn.Outpoint(), o.Outpoint())
	}
}

func TestBroadcast_StaleReleaseKeepsNewClaim(t *testing.T) {
	s := newScenario(t)
	session := NewSession(&fakeLedger{failAt: 1}, s.store, s.alice, s.pool)
	_, err := session.Broadcast(context.Background(), s.res)
	require.ErrorIs(t, err, ErrFailedToBroadcast)

	ok, err := s.store.Claim(s.spent.Outpoint(), "next attempt")
	require.NoError(t, err)
	require.True(t, ok)

	// The failed attempt's owner releases its outputs once more.
	require.NoError(t, utxo.NewSelector(s.store).Release(s.res.Claimed...))

	got, err := s.store.Get(s.spent.Outpoint())
	require.NoError(t, err)
	assert.Equal(t, utxo.Claimed, got.State)
	assert.Equal(t, "next attempt", got.ClaimedBy)
}

func TestConfirm(t *testing.T) {
	s := newScenario(t)
	ledger := &fakeLedger{}
	session := NewSession(ledger, s.store, s.alice, s.pool)
	txid, err := session.Broadcast(context.Background(), s.res)
	require.NoError(t, err)

	require.NoError(t, session.ConfirmTxID(context.Background(), ledger, s.res.FundingTxs[0].TxID().String()))
	require.NoError(t, session.ConfirmTxID(context.Background(), ledger, txid))

	_, err = s.store.Get(s.spent.Outpoint())
	assert.ErrorIs(t, err, utxo.ErrNotFound)
	_, err = s.store.Get(s.poolIn.Outpoint())
	assert.ErrorIs(t, err, utxo.ErrNotFound)

	change, err := s.store.Get(utxo.Outpoint{TxID: *s.res.Tx.TxID(), Index: 1})
	require.NoError(t, err)
	assert.True(t, change.Finalized)

	err = session.ConfirmTxID(context.Background(), ledger, "00")
	assert.Error(t, err)
}

func TestBroadcast_RecordsContractOutputs(t *testing.T) {
	store := utxo.NewMemoryStore()
	alice := &wallet{id: "alice"}
	in := stored(t, store, alice, 1, 5000)
	contract := (&wallet{id: "nobody"}).script(t)
	owner := &contractWallet{wallet: alice, contract: contract}

	main := transaction.NewTransaction()
	main.AddInput(in.TxInput())
	main.AddOutput(output(contract, 2000))
	main.Inputs[0].UnlockingScript = tx.PlaceholderUnlockingScript()
	res := &txbuilder.Result{
		Tx:        main,
		Claimed:   []*utxo.Output{in},
		Contracts: map[uint32][]byte{0: []byte("order-7")},
	}

	_, err := NewSession(&fakeLedger{}, store, owner).Broadcast(context.Background(), res)
	require.NoError(t, err)
	got, err := store.Get(utxo.Outpoint{TxID: *main.TxID(), Index: 0})
	require.NoError(t, err)
	assert.Equal(t, []byte("order-7"), got.Metadata)
	assert.Equal(t, "alice", got.WalletID)
}

func TestReplenish(t *testing.T) {
	store := utxo.NewMemoryStore()
	pool := &wallet{id: "pool"}
	big := &utxo.Output{Value: 10000, Script: pool.script(t), Finalized: true, WalletID: "pool"}
	big.TxID[0] = 0x42
	require.NoError(t, store.Upsert(big))

	cfg := provider.DefaultConfig()
	cfg.PoolSize = 5
	p, err := provider.New(store, pool, fee.Fixed{Amount: 500}, cfg)
	require.NoError(t, err)

	t.Run("rejected", func(t *testing.T) {
		_, err := NewSession(&fakeLedger{failAt: 1}, store, pool).Replenish(context.Background(), p)
		assert.ErrorIs(t, err, ErrFailedToBroadcast)
		got, err := store.Get(big.Outpoint())
		require.NoError(t, err)
		assert.Equal(t, utxo.Available, got.State)
	})

	t.Run("accepted", func(t *testing.T) {
		_, err := NewSession(&fakeLedger{}, store, pool).Replenish(context.Background(), p)
		require.NoError(t, err)

		st, err := p.Status()
		require.NoError(t, err)
		assert.Equal(t, 5, st.Outputs)
		// 10000 - 5000 - 500 fee returns as change.
		assert.Equal(t, uint64(10000+4500+5000), st.Balance)
	})
}
