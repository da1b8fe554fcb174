// Package txbuilder accumulates the intent of one transaction (payments,
// issuances, burns and funding legs) and turns it into a single signed,
// fee-correct transaction.
//
// A Builder is owned by one goroutine. Outputs it selects are claimed in the
// shared repository as they are added; Build releases every claim if it
// fails, and the caller releases them through the Result if broadcasting
// fails.
package txbuilder

import (
	"bytes"
	"fmt"
	"slices"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/google/uuid"

	"github.com/bitfsorg/libtoken-go/color"
	"github.com/bitfsorg/libtoken-go/fee"
	"github.com/bitfsorg/libtoken-go/log"
	"github.com/bitfsorg/libtoken-go/p2c"
	"github.com/bitfsorg/libtoken-go/provider"
	"github.com/bitfsorg/libtoken-go/tx"
	"github.com/bitfsorg/libtoken-go/utxo"
)

// Signer is the sender's wallet.
type Signer interface {
	provider.Signer

	// PaymentBase is the public key pay-to-contract outputs commit to.
	PaymentBase() (*ec.PublicKey, error)

	// SignPayToContractInput signs an input locked to
	// p2c.PublicKey(PaymentBase(), prev.Metadata).
	SignPayToContractInput(t *transaction.Transaction, index int, prev *utxo.Output) error
}

// Config wires a Builder.
type Config struct {
	Store  utxo.Repository
	Sender Signer

	// Estimator prices the transaction. Fixed{} when nil.
	Estimator fee.Estimator

	// Funder is the shared funding pool. When nil, funding outputs and
	// fees come from the sender's own wallet.
	Funder *provider.Provider

	// Registry records reissuable authority scripts. Reissue needs it.
	Registry color.Registry

	// AutoFee adds inputs to cover the fee.
	AutoFee bool
	// AutoFulfill selects sender inputs for every asset whose outputs
	// exceed its inputs. Ignored while issuing.
	AutoFulfill bool

	AllowUnfinalized bool
	DustLimit        uint64
	Mainnet          bool
}

// signFunc signs input index of t, which spends prev.
type signFunc func(t *transaction.Transaction, index int, prev *utxo.Output) error

type input struct {
	out  *utxo.Output
	sign signFunc
}

type queued struct {
	colorID  color.ID
	inner    []byte
	amount   uint64
	split    int
	metadata []byte
	// data is a complete zero-value OP_RETURN script.
	data []byte
}

// Builder accumulates one transaction.
type Builder struct {
	cfg      Config
	est      fee.Estimator
	own      *provider.Provider
	selector *utxo.Selector
	owner    string

	inputs   []input
	outputs  []queued
	burns    map[color.ID]uint64
	issued   map[color.ID]bool
	change   map[color.ID]*script.Address
	funding  []*transaction.Transaction
	funded   []*utxo.Output
	claimed  []*utxo.Output
	issuing  bool
	consumed bool
}

// New creates an empty builder.
func New(cfg Config) (*Builder, error) {
	if cfg.Store == nil || cfg.Sender == nil {
		return nil, fmt.Errorf("%w: store and sender are required", ErrInvalidConfig)
	}
	if cfg.DustLimit == 0 {
		cfg.DustLimit = tx.DustLimit
	}
	est := cfg.Estimator
	if est == nil {
		est = fee.Fixed{}
	}

	pcfg := provider.DefaultConfig()
	pcfg.DustLimit = cfg.DustLimit
	pcfg.AllowUnfinalized = cfg.AllowUnfinalized
	own, err := provider.New(cfg.Store, cfg.Sender, est, pcfg)
	if err != nil {
		return nil, fmt.Errorf("txbuilder: sender funding: %w", err)
	}

	return &Builder{
		cfg:      cfg,
		est:      est,
		own:      own,
		selector: utxo.NewSelector(cfg.Store),
		owner:    uuid.NewString(),
		burns:    make(map[color.ID]uint64),
		issued:   make(map[color.ID]bool),
		change:   make(map[color.ID]*script.Address),
	}, nil
}

// Owner returns the claim owner tag of this builder's selections.
func (b *Builder) Owner() string { return b.owner }

// sharedPool reports whether fees are paid by a wallet other than the
// sender's.
func (b *Builder) sharedPool() bool {
	return b.cfg.Funder != nil && b.cfg.Funder.WalletID() != b.cfg.Sender.WalletID()
}

// fundingSource is the wallet funding outputs are drawn from.
func (b *Builder) fundingSource() *provider.Provider {
	if b.cfg.Funder != nil {
		return b.cfg.Funder
	}
	return b.own
}

func (b *Builder) check() error {
	if b.consumed {
		return ErrBuilt
	}
	return nil
}

func validAsset(id color.ID) error {
	if id.IsDefault() || id.Valid() {
		return nil
	}
	return fmt.Errorf("%w: %x", color.ErrUnsupportedTokenType, byte(id.Type()))
}

// Pay queues amount of colorID to addr.
func (b *Builder) Pay(addr *script.Address, amount uint64, colorID color.ID) error {
	if err := b.check(); err != nil {
		return err
	}
	if amount == 0 {
		return fmt.Errorf("%w: pay of zero", ErrInvalidAmount)
	}
	if err := validAsset(colorID); err != nil {
		return err
	}
	inner, err := tx.P2PKHScript(addr)
	if err != nil {
		return err
	}
	b.outputs = append(b.outputs, queued{colorID: colorID, inner: inner, amount: amount, split: 1})
	return nil
}

// PayToContract queues a default-asset payment to the key committed to
// metadata under paymentBase.
func (b *Builder) PayToContract(paymentBase *ec.PublicKey, metadata []byte, amount uint64) error {
	if err := b.check(); err != nil {
		return err
	}
	if amount == 0 {
		return fmt.Errorf("%w: pay of zero", ErrInvalidAmount)
	}
	inner, err := p2c.LockingScript(paymentBase, metadata)
	if err != nil {
		return err
	}
	b.outputs = append(b.outputs, queued{
		colorID:  color.Default,
		inner:    inner,
		amount:   amount,
		split:    1,
		metadata: bytes.Clone(metadata),
	})
	return nil
}

// AddData queues a zero-value OP_FALSE OP_RETURN output carrying pushes.
func (b *Builder) AddData(pushes ...[]byte) error {
	if err := b.check(); err != nil {
		return err
	}
	s, err := tx.BuildOPReturnScript(pushes...)
	if err != nil {
		return err
	}
	b.outputs = append(b.outputs, queued{data: s.Bytes()})
	return nil
}

// IssueReissuable issues amount of the token whose identifier derives from
// authorityScript, spending an output locked to that script. If no input
// carries it yet, a funding output paying to it is created first.
func (b *Builder) IssueReissuable(authorityScript []byte, addr *script.Address, amount uint64, split int) (color.ID, error) {
	if err := b.check(); err != nil {
		return color.Default, err
	}
	if err := validIssue(amount, split); err != nil {
		return color.Default, err
	}
	inner, err := tx.P2PKHScript(addr)
	if err != nil {
		return color.Default, err
	}
	id := color.Reissuable(authorityScript)
	if err := b.ensureScriptInput(authorityScript); err != nil {
		return color.Default, err
	}
	if b.cfg.Registry != nil {
		if err := b.cfg.Registry.RegisterAuthority(id, authorityScript); err != nil {
			return color.Default, fmt.Errorf("txbuilder: record authority: %w", err)
		}
	}
	b.issue(id, inner, amount, split)
	return id, nil
}

// Reissue issues more of a reissuable token using its recorded authority
// script.
func (b *Builder) Reissue(colorID color.ID, addr *script.Address, amount uint64, split int) error {
	if err := b.check(); err != nil {
		return err
	}
	if colorID.Type() != color.TypeReissuable {
		return fmt.Errorf("%w: cannot reissue %s", ErrInvalidTokenType, colorID.Type())
	}
	if err := validIssue(amount, split); err != nil {
		return err
	}
	if b.cfg.Registry == nil {
		return fmt.Errorf("%w: no registry configured", ErrUnknownAuthorityScript)
	}
	authority, err := b.cfg.Registry.AuthorityScript(colorID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnknownAuthorityScript, err)
	}
	_, err = b.IssueReissuable(authority, addr, amount, split)
	return err
}

// IssueNonReissuable issues a fixed supply whose identifier derives from
// op. op is spent by the transaction and is claimed if not already an input.
func (b *Builder) IssueNonReissuable(op utxo.Outpoint, addr *script.Address, amount uint64, split int) (color.ID, error) {
	if err := b.check(); err != nil {
		return color.Default, err
	}
	if err := validIssue(amount, split); err != nil {
		return color.Default, err
	}
	inner, err := tx.P2PKHScript(addr)
	if err != nil {
		return color.Default, err
	}
	id := color.NonReissuable(op.TxID, op.Index)
	if err := b.ensureOutpointInput(op); err != nil {
		return color.Default, err
	}
	b.issue(id, inner, amount, split)
	return id, nil
}

// IssueNFT issues the single unit of the NFT derived from op.
func (b *Builder) IssueNFT(op utxo.Outpoint, addr *script.Address) (color.ID, error) {
	if err := b.check(); err != nil {
		return color.Default, err
	}
	id := color.NFT(op.TxID, op.Index)
	if b.issued[id] {
		return color.Default, fmt.Errorf("%w: NFT %s already issued", ErrInvalidTokenType, id)
	}
	inner, err := tx.P2PKHScript(addr)
	if err != nil {
		return color.Default, err
	}
	if err := b.ensureOutpointInput(op); err != nil {
		return color.Default, err
	}
	b.issue(id, inner, 1, 1)
	return id, nil
}

func validIssue(amount uint64, split int) error {
	if amount == 0 {
		return fmt.Errorf("%w: issue of zero", ErrInvalidAmount)
	}
	if split < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidSplit, split)
	}
	return nil
}

func (b *Builder) issue(id color.ID, inner []byte, amount uint64, split int) {
	b.issuing = true
	b.issued[id] = true
	b.outputs = append(b.outputs, queued{colorID: id, inner: inner, amount: amount, split: split})
}

// Burn destroys amount of colorID. An amount of 0 burns every unit the
// sender holds, selecting them now.
func (b *Builder) Burn(amount uint64, colorID color.ID) error {
	if err := b.check(); err != nil {
		return err
	}
	if colorID.IsDefault() {
		return fmt.Errorf("%w: cannot burn the default asset", ErrInvalidTokenType)
	}
	if err := validAsset(colorID); err != nil {
		return err
	}
	if amount > 0 {
		b.burns[colorID] += amount
		return nil
	}

	sel, err := b.selector.Select(b.cfg.Sender.WalletID(), colorID, 0, b.selectOptions())
	if err != nil {
		return err
	}
	if len(sel.Outputs) == 0 {
		return fmt.Errorf("%w: need all, found none of %s", utxo.ErrInsufficientTokens, colorID)
	}
	for _, o := range sel.Outputs {
		b.addClaimed(o, b.senderSign)
	}
	b.burns[colorID] += sel.Sum
	return nil
}

// AddInput claims out and spends it in the transaction. Outputs carrying
// pay-to-contract metadata are signed with the derived contract key.
func (b *Builder) AddInput(out *utxo.Output) error {
	if err := b.check(); err != nil {
		return err
	}
	if b.hasInput(out.Outpoint()) {
		return nil
	}
	ok, err := b.cfg.Store.Claim(out.Outpoint(), b.owner)
	if err != nil {
		return fmt.Errorf("txbuilder: claim %s: %w", out.Outpoint(), err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrOutputUnavailable, out.Outpoint())
	}
	c := out.Clone()
	c.State = utxo.Claimed
	c.ClaimedBy = b.owner
	sign, err := b.signerFor(c)
	if err != nil {
		if rerr := b.selector.Release(c); rerr != nil {
			log.Builder.Error().Err(rerr).Str("outpoint", c.Outpoint().String()).Msg("release unsignable input")
		}
		return err
	}
	b.addClaimed(c, sign)
	return nil
}

// AddFundedInput creates an output of amount paying to addr through a
// funding transaction and spends it here. The funding transaction is
// returned in Result.FundingTxs and must be broadcast first.
func (b *Builder) AddFundedInput(addr *script.Address, amount uint64) (utxo.Outpoint, error) {
	if err := b.check(); err != nil {
		return utxo.Outpoint{}, err
	}
	if amount == 0 {
		return utxo.Outpoint{}, fmt.Errorf("%w: funding of zero", ErrInvalidAmount)
	}
	lock, err := tx.P2PKHScript(addr)
	if err != nil {
		return utxo.Outpoint{}, err
	}
	sign, err := b.signerFor(&utxo.Output{Script: lock})
	if err != nil {
		return utxo.Outpoint{}, err
	}
	out, err := b.fund(lock, amount)
	if err != nil {
		return utxo.Outpoint{}, err
	}
	b.inputs = append(b.inputs, input{out: out, sign: sign})
	return out.Outpoint(), nil
}

// AddPayToContractInput funds an output locked to the sender's payment base
// tweaked by metadata, and spends it here.
func (b *Builder) AddPayToContractInput(metadata []byte, amount uint64) (utxo.Outpoint, error) {
	if err := b.check(); err != nil {
		return utxo.Outpoint{}, err
	}
	if amount == 0 {
		return utxo.Outpoint{}, fmt.Errorf("%w: funding of zero", ErrInvalidAmount)
	}
	base, err := b.cfg.Sender.PaymentBase()
	if err != nil {
		return utxo.Outpoint{}, fmt.Errorf("txbuilder: payment base: %w", err)
	}
	lock, err := p2c.LockingScript(base, metadata)
	if err != nil {
		return utxo.Outpoint{}, err
	}
	out, err := b.fund(lock, amount)
	if err != nil {
		return utxo.Outpoint{}, err
	}
	out.Metadata = bytes.Clone(metadata)
	out.WalletID = b.cfg.Sender.WalletID()
	b.inputs = append(b.inputs, input{out: out, sign: b.cfg.Sender.SignPayToContractInput})
	return out.Outpoint(), nil
}

// SetChangeAddress routes change of the given assets to addr. With no
// colorIDs it sets the default-asset change address.
func (b *Builder) SetChangeAddress(addr *script.Address, colorIDs ...color.ID) error {
	if err := b.check(); err != nil {
		return err
	}
	if addr == nil {
		return fmt.Errorf("%w: nil change address", ErrMissingChangeAddress)
	}
	if len(colorIDs) == 0 {
		colorIDs = []color.ID{color.Default}
	}
	for _, id := range colorIDs {
		b.change[id] = addr
	}
	return nil
}

// Release returns every output this builder claimed.
func (b *Builder) Release() error {
	err := b.selector.Release(b.claimed...)
	b.claimed = nil
	return err
}

// fund builds a funding transaction paying amount to lock.
func (b *Builder) fund(lock []byte, amount uint64) (*utxo.Output, error) {
	f, err := b.fundingSource().GetFundingOutput(lock, amount)
	if err != nil {
		return nil, err
	}
	b.funding = append(b.funding, f.Tx)
	b.funded = append(b.funded, f.Output)
	b.claimed = append(b.claimed, f.Claimed...)
	log.Builder.Debug().
		Str("funding_txid", f.Tx.TxID().String()).
		Uint64("amount", amount).
		Msg("added funded input")
	return f.Output, nil
}

// ensureScriptInput makes sure some input is locked to lock, claiming a
// sender output with that script or funding a new one.
func (b *Builder) ensureScriptInput(lock []byte) error {
	for _, in := range b.inputs {
		if bytes.Equal(in.out.Script, lock) {
			return nil
		}
	}
	opts := b.selectOptions()
	opts.Predicate = func(o *utxo.Output) bool { return bytes.Equal(o.Script, lock) }
	sel, err := b.selector.Select(b.cfg.Sender.WalletID(), color.Default, 1, opts)
	if err == nil {
		b.addClaimed(sel.Outputs[0], b.senderSign)
		return nil
	}

	sign, err := b.signerFor(&utxo.Output{Script: lock})
	if err != nil {
		return err
	}
	out, err := b.fund(lock, b.cfg.DustLimit)
	if err != nil {
		return fmt.Errorf("txbuilder: fund authority script: %w", err)
	}
	b.inputs = append(b.inputs, input{out: out, sign: sign})
	return nil
}

// ensureOutpointInput makes sure op is spent, claiming it from the store if
// it is not an input yet.
func (b *Builder) ensureOutpointInput(op utxo.Outpoint) error {
	if b.hasInput(op) {
		return nil
	}
	out, err := b.cfg.Store.Get(op)
	if err != nil {
		return fmt.Errorf("txbuilder: issuing outpoint %s: %w", op, err)
	}
	return b.AddInput(out)
}

func (b *Builder) hasInput(op utxo.Outpoint) bool {
	return slices.ContainsFunc(b.inputs, func(in input) bool { return in.out.Outpoint() == op })
}

func (b *Builder) addClaimed(out *utxo.Output, sign signFunc) {
	b.inputs = append(b.inputs, input{out: out, sign: sign})
	b.claimed = append(b.claimed, out)
}

func (b *Builder) selectOptions() utxo.Options {
	excludes := make([]utxo.Outpoint, len(b.inputs))
	for i, in := range b.inputs {
		excludes[i] = in.out.Outpoint()
	}
	return utxo.Options{
		OnlyFinalized: !b.cfg.AllowUnfinalized,
		Excludes:      excludes,
		Owner:         b.owner,
	}
}

func (b *Builder) senderSign(t *transaction.Transaction, index int, prev *utxo.Output) error {
	return b.cfg.Sender.SignInput(t, index, prev)
}

// signerFor picks the wallet able to spend out.
func (b *Builder) signerFor(out *utxo.Output) (signFunc, error) {
	sender := b.cfg.Sender
	switch {
	case len(out.Metadata) > 0:
		return sender.SignPayToContractInput, nil
	case out.WalletID == sender.WalletID() || sender.Owns(out.Script):
		return b.senderSign, nil
	case b.cfg.Funder != nil && (out.WalletID == b.cfg.Funder.WalletID() || b.cfg.Funder.Owns(out.Script)):
		return b.cfg.Funder.Sign, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSigner, out.Outpoint())
}
