// Package tx holds script and sizing helpers shared by the transaction
// construction packages: P2PKH and OP_RETURN scripts, dust and fee math,
// and the worst-case unlocking placeholder used for fee estimation.
package tx

import (
	"bytes"
	"fmt"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/bsv-blockchain/go-sdk/transaction/template/p2pkh"
)

const (
	// DustLimit is the minimum P2PKH output value in satoshis.
	DustLimit = uint64(546)

	// PubKeyHashLen is the length of a HASH160 public key hash.
	PubKeyHashLen = 20

	// CompressedPubKeyLen is the length of a compressed public key.
	CompressedPubKeyLen = 33

	// MaxSignatureLen is the longest DER signature plus sighash flag byte.
	MaxSignatureLen = 73

	// P2PKHScriptLen is the length of a standard P2PKH locking script.
	P2PKHScriptLen = 25
)

// BuildP2PKHScript creates a P2PKH locking script for the given public key.
func BuildP2PKHScript(pubKey *ec.PublicKey) ([]byte, error) {
	if pubKey == nil {
		return nil, fmt.Errorf("%w: public key", ErrNilParam)
	}
	return P2PKHScriptFromHash(pubKey.Hash())
}

// P2PKHScriptFromHash creates a P2PKH locking script paying to a 20-byte
// public key hash.
func P2PKHScriptFromHash(pubKeyHash []byte) ([]byte, error) {
	if len(pubKeyHash) != PubKeyHashLen {
		return nil, fmt.Errorf("%w: pubkey hash must be %d bytes", ErrScriptBuild, PubKeyHashLen)
	}
	addr, err := script.NewAddressFromPublicKeyHash(pubKeyHash, true)
	if err != nil {
		return nil, fmt.Errorf("%w: address from hash: %w", ErrScriptBuild, err)
	}
	return P2PKHScript(addr)
}

// P2PKHScript creates the P2PKH locking script for an address.
func P2PKHScript(addr *script.Address) ([]byte, error) {
	if addr == nil {
		return nil, fmt.Errorf("%w: address", ErrNilParam)
	}
	lock, err := p2pkh.Lock(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: P2PKH lock: %w", ErrScriptBuild, err)
	}
	return lock.Bytes(), nil
}

// PubKeyHashFromP2PKH extracts the public key hash from a standard
// OP_DUP OP_HASH160 <20> OP_EQUALVERIFY OP_CHECKSIG script.
func PubKeyHashFromP2PKH(lockingScript []byte) ([]byte, error) {
	if len(lockingScript) != P2PKHScriptLen ||
		lockingScript[0] != script.OpDUP ||
		lockingScript[1] != script.OpHASH160 ||
		lockingScript[2] != PubKeyHashLen ||
		lockingScript[23] != script.OpEQUALVERIFY ||
		lockingScript[24] != script.OpCHECKSIG {
		return nil, ErrNotP2PKH
	}
	return bytes.Clone(lockingScript[3:23]), nil
}

// BuildOPReturnScript creates an OP_FALSE OP_RETURN script from data pushes.
func BuildOPReturnScript(pushes ...[]byte) (*script.Script, error) {
	s := &script.Script{}
	*s = append(*s, script.Op0, script.OpRETURN)
	for _, push := range pushes {
		if err := s.AppendPushData(push); err != nil {
			return nil, fmt.Errorf("%w: OP_RETURN push data: %w", ErrScriptBuild, err)
		}
	}
	return s, nil
}

// ParseOPReturnScript returns the data pushes following OP_FALSE OP_RETURN.
func ParseOPReturnScript(s *script.Script) ([][]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: script", ErrNilParam)
	}
	b := s.Bytes()
	if len(b) < 2 || b[0] != script.Op0 || b[1] != script.OpRETURN {
		return nil, ErrInvalidOPReturn
	}
	// The decoder folds everything after OP_RETURN into one chunk, so the
	// pushes are decoded on their own.
	chunks, err := script.DecodeScript(b[2:])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOPReturn, err)
	}
	pushes := make([][]byte, 0, len(chunks))
	for _, c := range chunks {
		pushes = append(pushes, c.Data)
	}
	return pushes, nil
}

// NoopOutput returns a zero-value OP_FALSE OP_RETURN output. The ledger
// rejects transactions without outputs, so a transaction that would
// otherwise have none carries this one.
func NoopOutput() *transaction.TransactionOutput {
	s := &script.Script{}
	*s = append(*s, script.Op0, script.OpRETURN)
	return &transaction.TransactionOutput{Satoshis: 0, LockingScript: s}
}

// IsNoopOutput reports whether out is a bare OP_FALSE OP_RETURN output.
func IsNoopOutput(out *transaction.TransactionOutput) bool {
	if out == nil || out.LockingScript == nil || out.Satoshis != 0 {
		return false
	}
	return bytes.Equal(out.LockingScript.Bytes(), []byte{script.Op0, script.OpRETURN})
}

// PlaceholderUnlockingScript returns a script with the size of the largest
// P2PKH unlocking script: <73-byte signature> <33-byte pubkey>.
func PlaceholderUnlockingScript() *script.Script {
	s := &script.Script{}
	_ = s.AppendPushData(make([]byte, MaxSignatureLen))
	_ = s.AppendPushData(make([]byte, CompressedPubKeyLen))
	return s
}
