// Package utxo holds the canonical unspent-output value, the repository
// contract the engine needs from persistence, and the selector that picks
// and reserves outputs for a target amount.
package utxo

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"

	"github.com/bitfsorg/libtoken-go/color"
)

// State is an output's reservation state.
type State uint8

const (
	// Available outputs may be claimed.
	Available State = iota
	// Claimed outputs are held by an in-flight draft.
	Claimed
)

func (s State) String() string {
	if s == Claimed {
		return "claimed"
	}
	return "available"
}

// Outpoint identifies an output by transaction and index.
type Outpoint struct {
	TxID  chainhash.Hash
	Index uint32
}

func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID, o.Index)
}

// Key returns txid || BE32(index), the sortable storage key.
func (o Outpoint) Key() []byte {
	k := make([]byte, chainhash.HashSize+4)
	copy(k, o.TxID[:])
	binary.BigEndian.PutUint32(k[chainhash.HashSize:], o.Index)
	return k
}

// OutpointFromKey reverses Key.
func OutpointFromKey(k []byte) (Outpoint, error) {
	var o Outpoint
	if len(k) != chainhash.HashSize+4 {
		return o, fmt.Errorf("%w: key length %d", ErrInvalidOutput, len(k))
	}
	copy(o.TxID[:], k[:chainhash.HashSize])
	o.Index = binary.BigEndian.Uint32(k[chainhash.HashSize:])
	return o, nil
}

// Output is an unspent transaction output. It is the single UTXO
// representation used by selection, funding, building and signing.
type Output struct {
	TxID      chainhash.Hash
	Index     uint32
	Value     uint64
	Script    []byte
	ColorID   color.ID
	Finalized bool

	// WalletID names the wallet that can spend the output.
	WalletID string
	Label    string

	// Metadata is the pay-to-contract commitment for outputs locked to a
	// tweaked key; nil for plain outputs.
	Metadata []byte

	State     State
	ClaimedBy string
}

// Outpoint returns the output's identity.
func (o *Output) Outpoint() Outpoint {
	return Outpoint{TxID: o.TxID, Index: o.Index}
}

// heldBy reports whether o is claimed by owner.
func (o *Output) heldBy(owner string) bool {
	return o.State == Claimed && o.ClaimedBy == owner
}

// Clone returns a deep copy.
func (o *Output) Clone() *Output {
	c := *o
	c.Script = bytes.Clone(o.Script)
	c.Metadata = bytes.Clone(o.Metadata)
	return &c
}

// TxOutput converts to the wire encoder's output type.
func (o *Output) TxOutput() *transaction.TransactionOutput {
	return &transaction.TransactionOutput{
		Satoshis:      o.Value,
		LockingScript: script.NewFromBytes(o.Script),
	}
}

// TxInput returns an unsigned input spending o with its source output
// attached for sighash computation.
func (o *Output) TxInput() *transaction.TransactionInput {
	txid := o.TxID
	in := &transaction.TransactionInput{
		SourceTXID:       &txid,
		SourceTxOutIndex: o.Index,
		SequenceNumber:   transaction.DefaultSequenceNumber,
	}
	in.SetSourceTxOutput(o.TxOutput())
	return in
}

// FromTx returns the output at index of t, with its color taken from the
// locking script.
func FromTx(t *transaction.Transaction, index uint32, walletID string) (*Output, error) {
	if int(index) >= len(t.Outputs) {
		return nil, fmt.Errorf("%w: index %d of %d outputs", ErrInvalidOutput, index, len(t.Outputs))
	}
	out := t.Outputs[index]
	var s []byte
	if out.LockingScript != nil {
		s = out.LockingScript.Bytes()
	}
	return &Output{
		TxID:     *t.TxID(),
		Index:    index,
		Value:    out.Satoshis,
		Script:   bytes.Clone(s),
		ColorID:  color.Of(s),
		WalletID: walletID,
	}, nil
}

// Sum returns the total value of outs.
func Sum(outs []*Output) uint64 {
	var sum uint64
	for _, o := range outs {
		sum += o.Value
	}
	return sum
}
