package provider

import (
	"fmt"

	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/google/uuid"

	"github.com/bitfsorg/libtoken-go/color"
	"github.com/bitfsorg/libtoken-go/fee"
	"github.com/bitfsorg/libtoken-go/log"
	"github.com/bitfsorg/libtoken-go/tx"
	"github.com/bitfsorg/libtoken-go/utxo"
)

// Status summarizes the pool.
type Status struct {
	// Outputs counts uncolored outputs of exactly DefaultValue, claimed or
	// not, finalized or not.
	Outputs int
	// Available counts the subset of Outputs that can be claimed now.
	Available int
	// Balance is the value of every uncolored output in the wallet.
	Balance uint64
}

// Status reports the current pool size.
func (p *Provider) Status() (Status, error) {
	f := utxo.ByColor(color.Default)
	f.IncludeClaimed = true
	outs, err := p.store.ListOutputs(p.WalletID(), f)
	if err != nil {
		return Status{}, fmt.Errorf("provider: list pool: %w", err)
	}
	var s Status
	for _, o := range outs {
		s.Balance += o.Value
		if o.Value != p.cfg.DefaultValue {
			continue
		}
		s.Outputs++
		if o.State == utxo.Available {
			s.Available++
		}
	}
	p.metrics.PoolOutputs.Set(float64(s.Available))
	return s, nil
}

// Replenishment is a signed, unbroadcast transaction splitting the wallet's
// larger outputs into pool outputs.
type Replenishment struct {
	Tx      *transaction.Transaction
	Created int
	Fee     uint64
	// ChangeVout is the index of the change output, or -1.
	ChangeVout int
	Claimed    []*utxo.Output
}

// PlanReplenish builds a transaction topping the pool up to PoolSize
// outputs of DefaultValue, never beyond MaxPoolSize. Only outputs larger
// than DefaultValue are spent. The caller broadcasts Tx and persists its
// outputs, or releases Claimed on failure.
func (p *Provider) PlanReplenish() (*Replenishment, error) {
	st, err := p.Status()
	if err != nil {
		return nil, err
	}
	want := min(p.cfg.PoolSize, p.cfg.MaxPoolSize)
	n := want - st.Outputs
	if n <= 0 || p.cfg.DefaultValue == 0 {
		return nil, fmt.Errorf("%w: %d of %d outputs", ErrPoolFull, st.Outputs, want)
	}

	t := transaction.NewTransaction()
	for i := 0; i < n; i++ {
		addr, err := p.signer.FreshReceiveAddress()
		if err != nil {
			return nil, fmt.Errorf("provider: receive address: %w", err)
		}
		lock, err := tx.P2PKHScript(addr)
		if err != nil {
			return nil, fmt.Errorf("provider: pool output script: %w", err)
		}
		t.AddOutput(&transaction.TransactionOutput{
			Satoshis:      p.cfg.DefaultValue,
			LockingScript: script.NewFromBytes(lock),
		})
	}
	target := uint64(n) * p.cfg.DefaultValue

	opts := p.selectOptions(uuid.NewString())
	opts.Predicate = func(o *utxo.Output) bool { return o.Value > p.cfg.DefaultValue }
	fill, err := p.fillInputs(t, target, 0, p.est, opts)
	if err != nil {
		return nil, err
	}

	changeScript, err := p.ChangeScript()
	if err != nil {
		p.release(fill.Added)
		return nil, err
	}
	settled, err := fee.Settle(t, fill.Final-target, p.est, p.cfg.DustLimit, changeScript)
	if err != nil {
		p.release(fill.Added)
		return nil, fmt.Errorf("provider: settle replenishment: %w", err)
	}
	for i, o := range fill.Added {
		if err := p.Sign(t, i, o); err != nil {
			p.release(fill.Added)
			return nil, err
		}
	}

	log.Provider.Info().
		Str("wallet", p.WalletID()).
		Int("created", n).
		Int("inputs", len(fill.Added)).
		Uint64("fee", settled.Fee).
		Int("change_vout", settled.Vout).
		Msg("planned pool replenishment")

	return &Replenishment{
		Tx:         t,
		Created:    n,
		Fee:        settled.Fee,
		ChangeVout: settled.Vout,
		Claimed:    fill.Added,
	}, nil
}

// Replenished records that a replenishment was accepted by the ledger.
func (p *Provider) Replenished(r *Replenishment) {
	p.metrics.Replenished.Add(float64(r.Created))
}
