// Package provider runs the shared funding pool: a dedicated wallet whose
// outputs pay fees and fund auxiliary outputs without touching end-user
// balances.
//
// A Provider is bound to one wallet. Pointing it at a user's own wallet
// instead of the pool wallet gives the same fee-filling behavior funded by
// that user.
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

// Signer controls the keys of the provider's wallet.
type Signer interface {
	WalletID() string
	SignInput(t *transaction.Transaction, index int, prev *utxo.Output) error
	FreshReceiveAddress() (*script.Address, error)
	FreshChangeAddress() (*script.Address, error)
	Owns(lockingScript []byte) bool
}

// Config sizes the pool.
type Config struct {
	// PoolSize is the number of DefaultValue outputs replenishment aims for.
	PoolSize int
	// MaxPoolSize caps the pool, and so the size of one replenishment
	// transaction.
	MaxPoolSize  int
	DefaultValue uint64
	DustLimit    uint64

	// AllowUnfinalized lets unconfirmed outputs fund transactions.
	AllowUnfinalized bool
}

// DefaultConfig returns the default pool parameters.
func DefaultConfig() Config {
	return Config{
		PoolSize:     20,
		MaxPoolSize:  2000,
		DefaultValue: 1000,
		DustLimit:    tx.DustLimit,
	}
}

// Provider hands out funding inputs from one wallet.
type Provider struct {
	store    utxo.Repository
	selector *utxo.Selector
	signer   Signer
	est      fee.Estimator
	cfg      Config
	metrics  *Metrics
}

// Option configures a Provider.
type Option func(*Provider)

// WithMetrics records pool activity in m.
func WithMetrics(m *Metrics) Option {
	return func(p *Provider) { p.metrics = m }
}

// New creates a provider drawing from signer's wallet in store.
func New(store utxo.Repository, signer Signer, est fee.Estimator, cfg Config, opts ...Option) (*Provider, error) {
	if store == nil || signer == nil || est == nil {
		return nil, fmt.Errorf("%w: store, signer and estimator are required", ErrInvalidConfig)
	}
	if cfg.DustLimit == 0 {
		cfg.DustLimit = tx.DustLimit
	}
	if cfg.PoolSize < 0 || cfg.MaxPoolSize < 0 {
		return nil, fmt.Errorf("%w: negative pool size", ErrInvalidConfig)
	}
	p := &Provider{
		store:    store,
		selector: utxo.NewSelector(store),
		signer:   signer,
		est:      est,
		cfg:      cfg,
		metrics:  NewMetrics(nil),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// WalletID returns the funding wallet.
func (p *Provider) WalletID() string { return p.signer.WalletID() }

// Config returns the pool parameters.
func (p *Provider) Config() Config { return p.cfg }

// Estimator returns the provider's fee estimator.
func (p *Provider) Estimator() fee.Estimator { return p.est }

// Owns reports whether the provider's wallet can spend lockingScript.
func (p *Provider) Owns(lockingScript []byte) bool { return p.signer.Owns(lockingScript) }

// Sign signs input index of t, which spends prev from the provider's wallet.
func (p *Provider) Sign(t *transaction.Transaction, index int, prev *utxo.Output) error {
	if err := p.signer.SignInput(t, index, prev); err != nil {
		return fmt.Errorf("provider: sign input %d: %w", index, err)
	}
	return nil
}

// ChangeScript returns a fresh locking script back into the wallet.
func (p *Provider) ChangeScript() ([]byte, error) {
	addr, err := p.signer.FreshChangeAddress()
	if err != nil {
		return nil, fmt.Errorf("provider: change address: %w", err)
	}
	return tx.P2PKHScript(addr)
}

// Release returns claimed outputs to the pool.
func (p *Provider) Release(outs ...*utxo.Output) error {
	return p.selector.Release(outs...)
}

func (p *Provider) release(outs []*utxo.Output) {
	if err := p.Release(outs...); err != nil {
		log.Provider.Error().Err(err).Str("wallet", p.WalletID()).Int("outputs", len(outs)).Msg("release pool claims")
	}
}

func (p *Provider) selectOptions(owner string) utxo.Options {
	return utxo.Options{
		OnlyFinalized: !p.cfg.AllowUnfinalized,
		Shuffle:       true,
		Owner:         owner,
	}
}

// FillResult reports what FillInputs added.
type FillResult struct {
	Fee   uint64
	Final uint64
	Added []*utxo.Output
	Owner string
}

// FillInputs adds pool inputs to t until current - fee >= target, pricing t
// with est (the provider's estimator when nil). target is raised to the dust
// limit first so that whatever change remains is never dust. Claims made
// here are released if the pool runs dry.
func (p *Provider) FillInputs(t *transaction.Transaction, target, current uint64, est fee.Estimator) (*FillResult, error) {
	return p.fillInputs(t, target, current, est, p.selectOptions(uuid.NewString()))
}

func (p *Provider) fillInputs(t *transaction.Transaction, target, current uint64, est fee.Estimator, opts utxo.Options) (*FillResult, error) {
	if est == nil {
		est = p.est
	}
	target = tx.ClampDust(target, p.cfg.DustLimit)
	res := &FillResult{Owner: opts.Owner}

	cost := est.Fee(t)
	for rounds := 1; current < target+cost; rounds++ {
		opts.Excludes = spentOutpoints(t)
		sel, err := p.selector.Select(p.WalletID(), color.Default, target+cost-current, opts)
		if err != nil {
			p.release(res.Added)
			p.metrics.Exhausted.Inc()
			return nil, fmt.Errorf("%w: %w", ErrNoFundingAvailable, err)
		}
		for _, o := range sel.Outputs {
			t.AddInput(o.TxInput())
		}
		res.Added = append(res.Added, sel.Outputs...)
		current += sel.Sum
		cost = est.Fee(t)
		p.metrics.FillRounds.Inc()

		log.Provider.Debug().
			Str("wallet", p.WalletID()).
			Int("round", rounds).
			Int("added", len(sel.Outputs)).
			Uint64("current", current).
			Uint64("fee", cost).
			Uint64("target", target).
			Msg("fill inputs")
	}

	res.Fee = cost
	res.Final = current
	return res, nil
}

// Funding is an unbroadcast transaction creating one output for a caller.
type Funding struct {
	Tx *transaction.Transaction
	// Vout is the index of the funded output in Tx.
	Vout uint32
	// Output is the funded output, ready to be spent as an input.
	Output  *utxo.Output
	Fee     uint64
	Claimed []*utxo.Output
}

// GetFundingOutput builds and signs a transaction paying value to
// lockingScript from the pool, with change back to the pool. The caller
// must broadcast Tx before any transaction spending Output.
func (p *Provider) GetFundingOutput(lockingScript []byte, value uint64) (*Funding, error) {
	if value == 0 {
		return nil, fmt.Errorf("%w: funding value must be positive", ErrInvalidAmount)
	}
	t := transaction.NewTransaction()
	t.AddOutput(&transaction.TransactionOutput{
		Satoshis:      value,
		LockingScript: script.NewFromBytes(lockingScript),
	})

	fill, err := p.FillInputs(t, value, 0, p.est)
	if err != nil {
		return nil, err
	}

	changeScript, err := p.ChangeScript()
	if err != nil {
		p.release(fill.Added)
		return nil, err
	}
	settled, err := fee.Settle(t, fill.Final-value, p.est, p.cfg.DustLimit, changeScript)
	if err != nil {
		p.release(fill.Added)
		return nil, fmt.Errorf("provider: settle funding tx: %w", err)
	}

	for i, o := range fill.Added {
		if err := p.Sign(t, i, o); err != nil {
			p.release(fill.Added)
			return nil, err
		}
	}

	out, err := utxo.FromTx(t, 0, "")
	if err != nil {
		p.release(fill.Added)
		return nil, err
	}
	p.metrics.FundingTxs.Inc()
	log.Provider.Info().
		Str("txid", t.TxID().String()).
		Uint64("value", value).
		Uint64("fee", settled.Fee).
		Int("inputs", len(fill.Added)).
		Msg("built funding transaction")

	return &Funding{
		Tx:      t,
		Vout:    0,
		Output:  out,
		Fee:     settled.Fee,
		Claimed: fill.Added,
	}, nil
}

// spentOutpoints lists the outpoints t already spends.
func spentOutpoints(t *transaction.Transaction) []utxo.Outpoint {
	ops := make([]utxo.Outpoint, 0, len(t.Inputs))
	for _, in := range t.Inputs {
		if in.SourceTXID == nil {
			continue
		}
		ops = append(ops, utxo.Outpoint{TxID: *in.SourceTXID, Index: in.SourceTxOutIndex})
	}
	return ops
}
