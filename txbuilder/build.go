package txbuilder

import (
	"errors"
	"fmt"
	"slices"

	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"

	"github.com/bitfsorg/libtoken-go/color"
	"github.com/bitfsorg/libtoken-go/fee"
	"github.com/bitfsorg/libtoken-go/log"
	"github.com/bitfsorg/libtoken-go/provider"
	"github.com/bitfsorg/libtoken-go/tx"
	"github.com/bitfsorg/libtoken-go/utxo"
)

// Result is a signed transaction ready for broadcast.
type Result struct {
	Tx *transaction.Transaction
	// FundingTxs must be broadcast, in order, before Tx.
	FundingTxs []*transaction.Transaction
	Fee        uint64
	// Claimed lists every output reserved for this attempt, including
	// those spent by FundingTxs. They are released if broadcasting fails.
	Claimed []*utxo.Output
	// Funded lists the outputs FundingTxs create for Tx to spend.
	Funded []*utxo.Output
	// Contracts maps output indexes of pay-to-contract outputs to their
	// metadata.
	Contracts map[uint32][]byte
}

// balance tracks one asset's value in and out of the draft.
type balance struct {
	in, out uint64
}

// Build assembles, funds and signs the transaction. The builder cannot be
// used afterwards. On failure every claim is released.
func (b *Builder) Build() (*Result, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	b.consumed = true

	res, err := b.build()
	if err != nil {
		if rerr := b.Release(); rerr != nil {
			log.Builder.Error().Err(rerr).Msg("release after failed build")
		}
		return nil, err
	}
	return res, nil
}

func (b *Builder) build() (*Result, error) {
	t := transaction.NewTransaction()
	for _, in := range b.inputs {
		t.AddInput(in.out.TxInput())
	}

	contracts, err := b.materialize(t)
	if err != nil {
		return nil, err
	}

	if b.cfg.AutoFulfill && !b.issuing {
		if err := b.fulfillColored(t); err != nil {
			return nil, err
		}
	}
	if err := b.settleColored(t); err != nil {
		return nil, err
	}

	noop := len(t.Outputs) == 0
	if noop {
		t.AddOutput(tx.NoopOutput())
	}

	cost, err := b.settleDefault(t)
	if err != nil {
		return nil, err
	}
	if noop && len(t.Outputs) > 1 {
		// Only change was added; contracts is empty when noop is set.
		t.Outputs = t.Outputs[1:]
	}

	for i, in := range b.inputs {
		if err := in.sign(t, i, in.out); err != nil {
			return nil, fmt.Errorf("txbuilder: sign input %d: %w", i, err)
		}
	}

	log.Builder.Info().
		Str("txid", t.TxID().String()).
		Int("inputs", len(t.Inputs)).
		Int("outputs", len(t.Outputs)).
		Int("funding_txs", len(b.funding)).
		Uint64("fee", cost).
		Msg("built transaction")

	return &Result{
		Tx:         t,
		FundingTxs: b.funding,
		Fee:        cost,
		Claimed:    b.claimed,
		Funded:     b.funded,
		Contracts:  contracts,
	}, nil
}

// materialize appends every queued output, split as requested.
func (b *Builder) materialize(t *transaction.Transaction) (map[uint32][]byte, error) {
	contracts := make(map[uint32][]byte)
	for _, q := range b.outputs {
		if q.data != nil {
			t.AddOutput(&transaction.TransactionOutput{LockingScript: script.NewFromBytes(q.data)})
			continue
		}
		parts, err := Split(q.amount, q.split)
		if err != nil {
			return nil, err
		}
		lock := color.LockingScript(q.colorID, q.inner)
		for _, v := range parts {
			if q.metadata != nil {
				contracts[uint32(len(t.Outputs))] = q.metadata
			}
			t.AddOutput(&transaction.TransactionOutput{
				Satoshis:      v,
				LockingScript: script.NewFromBytes(lock),
			})
		}
	}
	return contracts, nil
}

// balances sums inputs and outputs per asset. Burns count as outgoing.
func (b *Builder) balances(t *transaction.Transaction) map[color.ID]*balance {
	bal := make(map[color.ID]*balance)
	get := func(id color.ID) *balance {
		if bal[id] == nil {
			bal[id] = &balance{}
		}
		return bal[id]
	}
	for _, in := range b.inputs {
		get(in.out.ColorID).in += in.out.Value
	}
	for _, out := range t.Outputs {
		get(color.Of(out.LockingScript.Bytes())).out += out.Satoshis
	}
	for id, v := range b.burns {
		get(id).out += v
	}
	get(color.Default)
	return bal
}

// coloredIDs returns the non-default, non-issued assets in bal in a stable
// order.
func (b *Builder) coloredIDs(bal map[color.ID]*balance) []color.ID {
	ids := make([]color.ID, 0, len(bal))
	for id := range bal {
		if id.IsDefault() || b.issued[id] {
			continue
		}
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, c color.ID) int { return slices.Compare(a[:], c[:]) })
	return ids
}

// fulfillColored selects sender inputs for each token short of inputs.
func (b *Builder) fulfillColored(t *transaction.Transaction) error {
	bal := b.balances(t)
	for _, id := range b.coloredIDs(bal) {
		if bal[id].out <= bal[id].in {
			continue
		}
		sel, err := b.selector.Select(b.cfg.Sender.WalletID(), id, bal[id].out-bal[id].in, b.selectOptions())
		if err != nil {
			return err
		}
		for _, o := range sel.Outputs {
			b.addClaimed(o, b.senderSign)
			t.AddInput(o.TxInput())
		}
	}
	return nil
}

// settleColored checks every token balance and returns token change to its
// registered address.
func (b *Builder) settleColored(t *transaction.Transaction) error {
	bal := b.balances(t)
	for _, id := range b.coloredIDs(bal) {
		in, out := bal[id].in, bal[id].out
		if out > in {
			return fmt.Errorf("%w: need %d, found %d of %s", utxo.ErrInsufficientTokens, out, in, id)
		}
		if in == out {
			continue
		}
		addr := b.change[id]
		if addr == nil {
			return fmt.Errorf("%w: %d of %s", ErrMissingChangeAddress, in-out, id)
		}
		lock, err := color.ScriptFor(id, addr)
		if err != nil {
			return err
		}
		t.AddOutput(&transaction.TransactionOutput{
			Satoshis:      in - out,
			LockingScript: script.NewFromBytes(lock),
		})
	}
	return nil
}

// settleDefault covers default-asset outputs and the fee, then adds change.
// With a shared pool the sender's own surplus is returned first and the
// pool pays the fee with change back to the pool. Otherwise the sender's
// wallet pays everything.
func (b *Builder) settleDefault(t *transaction.Transaction) (uint64, error) {
	bal := b.balances(t)[color.Default]
	in, out := bal.in, bal.out
	fulfill := b.cfg.AutoFulfill && !b.issuing

	if b.cfg.AutoFee && b.sharedPool() {
		if fulfill && out > in {
			fill, err := b.fill(b.own, t, out, in, fee.Sponsored{})
			if err != nil {
				return 0, senderShort(err)
			}
			in = fill.Final
		}
		if in < out {
			return 0, fmt.Errorf("%w: need %d, found %d", utxo.ErrInsufficientFunds, out, in)
		}
		if in-out >= b.cfg.DustLimit {
			lock, err := b.defaultChangeScript()
			if err != nil {
				return 0, err
			}
			t.AddOutput(&transaction.TransactionOutput{
				Satoshis:      in - out,
				LockingScript: script.NewFromBytes(lock),
			})
			out = in
		}

		fill, err := b.fill(b.cfg.Funder, t, out, in, b.est)
		if err != nil {
			return 0, err
		}
		lock, err := b.cfg.Funder.ChangeScript()
		if err != nil {
			return 0, err
		}
		return b.settle(t, fill.Final-out, lock)
	}

	if b.cfg.AutoFee || (fulfill && out > in) {
		fill, err := b.fill(b.own, t, out, in, b.est)
		if err != nil {
			return 0, senderShort(err)
		}
		in = fill.Final
	}
	if in < out {
		return 0, fmt.Errorf("%w: need %d, found %d", utxo.ErrInsufficientFunds, out, in)
	}
	lock, err := b.defaultChangeScript()
	if err != nil {
		return 0, err
	}
	return b.settle(t, in-out, lock)
}

func (b *Builder) fill(p *provider.Provider, t *transaction.Transaction, target, current uint64, est fee.Estimator) (*provider.FillResult, error) {
	fill, err := p.FillInputs(t, target, current, est)
	if err != nil {
		return nil, err
	}
	sign := b.senderSign
	if p == b.cfg.Funder && b.sharedPool() {
		sign = p.Sign
	}
	for _, o := range fill.Added {
		b.inputs = append(b.inputs, input{out: o, sign: sign})
	}
	b.claimed = append(b.claimed, fill.Added...)
	return fill, nil
}

func (b *Builder) settle(t *transaction.Transaction, surplus uint64, changeScript []byte) (uint64, error) {
	s, err := fee.Settle(t, surplus, b.est, b.cfg.DustLimit, changeScript)
	if errors.Is(err, fee.ErrInsufficientFee) {
		return 0, fmt.Errorf("%w: %w", utxo.ErrInsufficientFunds, err)
	}
	if err != nil {
		return 0, err
	}
	return s.Fee, nil
}

func (b *Builder) defaultChangeScript() ([]byte, error) {
	if addr := b.change[color.Default]; addr != nil {
		return tx.P2PKHScript(addr)
	}
	addr, err := b.cfg.Sender.FreshChangeAddress()
	if err != nil {
		return nil, fmt.Errorf("txbuilder: change address: %w", err)
	}
	return tx.P2PKHScript(addr)
}

// senderShort labels a shortfall of the sender's own wallet. The error still
// matches utxo.ErrInsufficientFunds.
func senderShort(err error) error {
	return fmt.Errorf("txbuilder: sender wallet: %w", err)
}
