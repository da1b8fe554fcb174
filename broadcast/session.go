// Package broadcast submits built transactions and records their effect on
// the output repository: funding transactions first, then the main
// transaction, then one batch persisting the outputs the local wallets own.
// A rejected submission releases every claim whose spending transaction was
// not accepted.
package broadcast

import (
	"context"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/bsv-blockchain/go-sdk/transaction"

	"github.com/bitfsorg/libtoken-go/log"
	"github.com/bitfsorg/libtoken-go/provider"
	"github.com/bitfsorg/libtoken-go/txbuilder"
	"github.com/bitfsorg/libtoken-go/utxo"
)

// Ledger accepts raw transactions.
type Ledger interface {
	SubmitRawTransaction(ctx context.Context, rawHex string) (string, error)
}

// RawTxGetter fetches raw transactions by id.
type RawTxGetter interface {
	GetRawTransaction(ctx context.Context, txid string) (string, error)
}

// Owner is a wallet whose outputs are recorded after broadcast.
type Owner interface {
	WalletID() string
	Owns(lockingScript []byte) bool
}

// Session broadcasts and records transactions for a set of wallets.
type Session struct {
	ledger Ledger
	store  utxo.Repository
	owners []Owner
}

// NewSession creates a session recording outputs owned by owners.
func NewSession(ledger Ledger, store utxo.Repository, owners ...Owner) *Session {
	return &Session{ledger: ledger, store: store, owners: owners}
}

// Broadcast submits res.FundingTxs in order and then res.Tx. Spent inputs
// stay claimed until Confirm.
//
// On a rejection the error wraps ErrFailedToBroadcast. Funding transactions
// accepted before it cannot be taken back: their inputs are removed from
// the repository and their owned outputs, funded outputs included, are
// recorded as available. Every other claim in res.Claimed is released.
func (s *Session) Broadcast(ctx context.Context, res *txbuilder.Result) (string, error) {
	all := append(append([]*transaction.Transaction{}, res.FundingTxs...), res.Tx)
	for i, t := range all {
		if _, err := s.submit(ctx, t); err != nil {
			s.abandon(res, all[:i])
			return "", fmt.Errorf("%w: tx %d of %d: %w", ErrFailedToBroadcast, i+1, len(all), err)
		}
	}

	// Funding outputs are spent by res.Tx and never recorded.
	spent := make(map[utxo.Outpoint]bool, len(res.Tx.Inputs))
	for _, op := range inputs(res.Tx) {
		spent[op] = true
	}
	batch := &utxo.Batch{}
	for _, t := range all {
		for _, out := range s.owned(t, res.Contracts, t == res.Tx) {
			if !spent[out.Outpoint()] {
				batch.Upserts = append(batch.Upserts, out)
			}
		}
	}
	txid := res.Tx.TxID().String()
	if err := s.store.Apply(batch); err != nil {
		return txid, fmt.Errorf("%w: %s: %w", ErrPersist, txid, err)
	}

	log.Broadcast.Info().
		Str("txid", txid).
		Int("funding_txs", len(res.FundingTxs)).
		Int("recorded", len(batch.Upserts)).
		Msg("broadcast transaction")
	return txid, nil
}

// abandon undoes a partly broadcast attempt. accepted are the funding
// transactions the ledger took before the rejection.
func (s *Session) abandon(res *txbuilder.Result, accepted []*transaction.Transaction) {
	batch := &utxo.Batch{}
	spent := make(map[utxo.Outpoint]bool)
	created := make(map[chainhash.Hash]bool, len(accepted))
	for _, t := range accepted {
		for _, op := range inputs(t) {
			spent[op] = true
			batch.Deletes = append(batch.Deletes, op)
		}
		created[*t.TxID()] = true
	}

	var release []*utxo.Output
	for _, o := range res.Claimed {
		if !spent[o.Outpoint()] {
			release = append(release, o)
		}
	}
	s.release(release)
	if len(accepted) == 0 {
		return
	}

	recorded := make(map[utxo.Outpoint]*utxo.Output)
	for _, t := range accepted {
		for _, out := range s.owned(t, nil, false) {
			recorded[out.Outpoint()] = out
		}
	}
	for _, f := range res.Funded {
		if !created[f.TxID] {
			continue
		}
		out := f.Clone()
		out.State = utxo.Available
		out.ClaimedBy = ""
		if out.WalletID == "" {
			if prev, ok := recorded[out.Outpoint()]; ok {
				out.WalletID = prev.WalletID
			}
		}
		if out.WalletID != "" {
			recorded[out.Outpoint()] = out
		}
	}
	for op, out := range recorded {
		if !spent[op] {
			batch.Upserts = append(batch.Upserts, out)
		}
	}

	if err := s.store.Apply(batch); err != nil {
		log.Broadcast.Error().Err(err).Int("accepted", len(accepted)).Msg("record accepted funding transactions")
		return
	}
	log.Broadcast.Warn().
		Int("accepted", len(accepted)).
		Int("spent", len(batch.Deletes)).
		Int("recorded", len(batch.Upserts)).
		Int("released", len(release)).
		Msg("kept accepted funding transactions of failed broadcast")
}

// Replenish plans a pool top-up with p, broadcasts it and records the new
// pool outputs.
func (s *Session) Replenish(ctx context.Context, p *provider.Provider) (string, error) {
	r, err := p.PlanReplenish()
	if err != nil {
		return "", err
	}
	txid, err := s.submit(ctx, r.Tx)
	if err != nil {
		s.release(r.Claimed)
		return "", fmt.Errorf("%w: replenishment: %w", ErrFailedToBroadcast, err)
	}

	batch := &utxo.Batch{}
	for i := range r.Tx.Outputs {
		out, err := utxo.FromTx(r.Tx, uint32(i), p.WalletID())
		if err != nil {
			return txid, err
		}
		if p.Owns(out.Script) {
			batch.Upserts = append(batch.Upserts, out)
		}
	}
	if err := s.store.Apply(batch); err != nil {
		return txid, fmt.Errorf("%w: %s: %w", ErrPersist, txid, err)
	}
	p.Replenished(r)

	log.Broadcast.Info().
		Str("txid", txid).
		Str("wallet", p.WalletID()).
		Int("created", r.Created).
		Msg("replenished pool")
	return txid, nil
}

// Confirm records that t was mined: its inputs leave the repository and its
// outputs become finalized.
func (s *Session) Confirm(t *transaction.Transaction) error {
	batch := &utxo.Batch{Deletes: inputs(t)}
	txid := *t.TxID()
	for i := range t.Outputs {
		batch.Finalize = append(batch.Finalize, utxo.Outpoint{TxID: txid, Index: uint32(i)})
	}
	if err := s.store.Apply(batch); err != nil {
		return fmt.Errorf("%w: confirm %s: %w", ErrPersist, txid, err)
	}
	log.Broadcast.Debug().Str("txid", txid.String()).Int("spent", len(batch.Deletes)).Msg("confirmed transaction")
	return nil
}

// ConfirmTxID fetches txid from the ledger and confirms it.
func (s *Session) ConfirmTxID(ctx context.Context, getter RawTxGetter, txid string) error {
	raw, err := getter.GetRawTransaction(ctx, txid)
	if err != nil {
		return fmt.Errorf("broadcast: fetch %s: %w", txid, err)
	}
	t, err := transaction.NewTransactionFromHex(raw)
	if err != nil {
		return fmt.Errorf("broadcast: decode %s: %w", txid, err)
	}
	return s.Confirm(t)
}

func (s *Session) submit(ctx context.Context, t *transaction.Transaction) (string, error) {
	txid, err := s.ledger.SubmitRawTransaction(ctx, t.Hex())
	if err != nil {
		log.Broadcast.Warn().Err(err).Str("txid", t.TxID().String()).Msg("submission rejected")
		return "", err
	}
	return txid, nil
}

func (s *Session) release(claimed []*utxo.Output) {
	for _, o := range claimed {
		if o.State != utxo.Claimed {
			continue
		}
		if err := s.store.Release(o.Outpoint(), o.ClaimedBy); err != nil {
			log.Broadcast.Error().Err(err).Str("outpoint", o.Outpoint().String()).Msg("release claim")
		}
	}
}

// owned returns the outputs of t held by a registered wallet. Outputs of
// the main transaction listed in contracts are recorded with their metadata
// so they stay spendable through the contract key.
func (s *Session) owned(t *transaction.Transaction, contracts map[uint32][]byte, main bool) []*utxo.Output {
	var outs []*utxo.Output
	for i, o := range t.Outputs {
		if o.LockingScript == nil {
			continue
		}
		lock := o.LockingScript.Bytes()
		for _, w := range s.owners {
			meta, isContract := contracts[uint32(i)]
			if !w.Owns(lock) && !(main && isContract && ownsContract(w, lock, meta)) {
				continue
			}
			out, err := utxo.FromTx(t, uint32(i), w.WalletID())
			if err != nil {
				continue
			}
			if main && isContract {
				out.Metadata = meta
			}
			outs = append(outs, out)
			break
		}
	}
	return outs
}

// ContractOwner is an Owner that also recognises pay-to-contract outputs
// committed to its payment base.
type ContractOwner interface {
	Owner
	OwnsContract(lockingScript, metadata []byte) bool
}

func ownsContract(w Owner, lock, metadata []byte) bool {
	c, ok := w.(ContractOwner)
	return ok && c.OwnsContract(lock, metadata)
}

func inputs(t *transaction.Transaction) []utxo.Outpoint {
	ops := make([]utxo.Outpoint, 0, len(t.Inputs))
	for _, in := range t.Inputs {
		if in.SourceTXID != nil {
			ops = append(ops, utxo.Outpoint{TxID: *in.SourceTXID, Index: in.SourceTxOutIndex})
		}
	}
	return ops
}
