// Package p2c implements pay-to-contract key tweaking.
//
// Given a payment base P and metadata m:
//
//	c  = SHA256(compressed(P) || m) mod N
//	P' = P + c·G
//	d' = d + c mod N
//
// An output locked to P' commits to m without revealing it; only the holder
// of d who also knows m can spend it.
package p2c

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/script"

	"github.com/bitfsorg/libtoken-go/tx"
)

var (
	// ErrNilKey indicates a nil payment base or private key.
	ErrNilKey = errors.New("p2c: key is nil")

	// ErrInvalidCommitment indicates the commitment scalar is zero or the
	// tweaked key is the point at infinity.
	ErrInvalidCommitment = errors.New("p2c: invalid commitment")
)

// Commitment returns the scalar c for payment base p and metadata.
func Commitment(p *ec.PublicKey, metadata []byte) (*big.Int, error) {
	if p == nil {
		return nil, ErrNilKey
	}
	h := sha256.New()
	h.Write(p.Compressed())
	h.Write(metadata)

	c := new(big.Int).SetBytes(h.Sum(nil))
	c.Mod(c, ec.S256().Params().N)
	if c.Sign() == 0 {
		return nil, ErrInvalidCommitment
	}
	return c, nil
}

// PublicKey returns P + c·G.
func PublicKey(p *ec.PublicKey, metadata []byte) (*ec.PublicKey, error) {
	c, err := Commitment(p, metadata)
	if err != nil {
		return nil, err
	}
	curve := ec.S256()
	cx, cy := curve.ScalarBaseMult(scalarBytes(c))
	x, y := curve.Add(p.X, p.Y, cx, cy)
	if x.Sign() == 0 && y.Sign() == 0 {
		return nil, ErrInvalidCommitment
	}
	return &ec.PublicKey{Curve: curve, X: x, Y: y}, nil
}

// PrivateKey returns d + c mod N, the key controlling PublicKey(d·G, metadata).
func PrivateKey(d *ec.PrivateKey, metadata []byte) (*ec.PrivateKey, error) {
	if d == nil {
		return nil, ErrNilKey
	}
	c, err := Commitment(d.PubKey(), metadata)
	if err != nil {
		return nil, err
	}
	k := new(big.Int).Add(d.D, c)
	k.Mod(k, ec.S256().Params().N)
	if k.Sign() == 0 {
		return nil, ErrInvalidCommitment
	}
	priv, _ := ec.PrivateKeyFromBytes(scalarBytes(k))
	return priv, nil
}

// Address returns the P2PKH address of the tweaked key.
func Address(p *ec.PublicKey, metadata []byte, mainnet bool) (*script.Address, error) {
	pub, err := PublicKey(p, metadata)
	if err != nil {
		return nil, err
	}
	addr, err := script.NewAddressFromPublicKey(pub, mainnet)
	if err != nil {
		return nil, fmt.Errorf("p2c: address: %w", err)
	}
	return addr, nil
}

// LockingScript returns the P2PKH locking script of the tweaked key.
func LockingScript(p *ec.PublicKey, metadata []byte) ([]byte, error) {
	pub, err := PublicKey(p, metadata)
	if err != nil {
		return nil, err
	}
	return tx.BuildP2PKHScript(pub)
}

// scalarBytes left-pads k to 32 bytes.
func scalarBytes(k *big.Int) []byte {
	b := make([]byte, 32)
	k.FillBytes(b)
	return b
}
