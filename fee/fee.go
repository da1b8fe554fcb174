// Package fee prices transactions.
//
// Estimators are stateless and must be consulted again whenever the
// transaction grows, since every added input changes the serialized size.
package fee

import (
	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/bsv-blockchain/go-sdk/transaction"

	"github.com/bitfsorg/libtoken-go/tx"
)

// Estimator returns the fee for a transaction in its current shape.
type Estimator interface {
	Fee(t *transaction.Transaction) uint64
}

// Fixed charges the same amount for every transaction.
type Fixed struct {
	Amount uint64
}

// Fee returns the fixed amount.
func (f Fixed) Fee(*transaction.Transaction) uint64 { return f.Amount }

// Auto prices a transaction by the size of its worst-case signed form.
type Auto struct {
	// RatePerKB is the fee rate in satoshis per 1000 bytes. Zero charges
	// nothing.
	RatePerKB uint64
}

// Fee returns ceil(size(DummyTx(t)) * rate / 1000).
func (a Auto) Fee(t *transaction.Transaction) uint64 {
	return tx.EstimateFee(Size(t), a.RatePerKB)
}

// Sponsored wraps nothing and charges nothing. It stands in for the
// configured estimator when fees are paid by a third party.
type Sponsored struct{}

// Fee always returns 0.
func (Sponsored) Fee(*transaction.Transaction) uint64 { return 0 }

// Size returns the serialized length of the dummy form of t.
func Size(t *transaction.Transaction) int {
	return len(DummyTx(t).Bytes())
}

// DummyTx returns a structurally equivalent copy of t for sizing: the same
// outputs, every input carrying a worst-case P2PKH unlocking script, and a
// single placeholder input when t has none. t is not modified.
func DummyTx(t *transaction.Transaction) *transaction.Transaction {
	d := transaction.NewTransaction()
	if t == nil {
		t = d
	}
	d.Version = t.Version
	d.LockTime = t.LockTime

	for _, in := range t.Inputs {
		d.AddInput(&transaction.TransactionInput{
			SourceTXID:       in.SourceTXID,
			SourceTxOutIndex: in.SourceTxOutIndex,
			SequenceNumber:   in.SequenceNumber,
			UnlockingScript:  tx.PlaceholderUnlockingScript(),
		})
	}
	if len(d.Inputs) == 0 {
		d.AddInput(&transaction.TransactionInput{
			SourceTXID:      &chainhash.Hash{},
			SequenceNumber:  transaction.DefaultSequenceNumber,
			UnlockingScript: tx.PlaceholderUnlockingScript(),
		})
	}
	d.Outputs = append(d.Outputs, t.Outputs...)
	return d
}
