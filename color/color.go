// Package color derives colored-coin asset identifiers and builds the
// colored locking scripts that carry them.
//
// An identifier is 33 bytes: one type byte followed by a SHA256 payload.
//
//	Reissuable     0xc1 || SHA256(authority locking script)
//	NonReissuable  0xc2 || SHA256(txid || LE32(vout))
//	NFT            0xc3 || SHA256(txid || LE32(vout))
//
// The zero ID is the default (uncolored) asset.
package color

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/chainhash"
)

// Type is the token issuance policy encoded in an identifier's first byte.
type Type byte

const (
	TypeNone          Type = 0x00
	TypeReissuable    Type = 0xc1
	TypeNonReissuable Type = 0xc2
	TypeNFT           Type = 0xc3
)

// IDLen is the serialized length of a color identifier.
const IDLen = 33

// ID identifies an asset. The zero value is the default asset.
type ID [IDLen]byte

// Default is the native, uncolored asset.
var Default ID

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "default"
	case TypeReissuable:
		return "reissuable"
	case TypeNonReissuable:
		return "non_reissuable"
	case TypeNFT:
		return "nft"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}

// Reissuable derives the identifier of tokens issued from an authority
// locking script. The same script always yields the same identifier, so
// later issuances from it extend the same asset.
func Reissuable(lockingScript []byte) ID {
	return newID(TypeReissuable, sha256.Sum256(lockingScript))
}

// NonReissuable derives the identifier of a one-shot issuance that spends
// the given outpoint.
func NonReissuable(txid chainhash.Hash, vout uint32) ID {
	return newID(TypeNonReissuable, outpointHash(txid, vout))
}

// NFT derives the identifier of a non-fungible token issued by spending the
// given outpoint.
func NFT(txid chainhash.Hash, vout uint32) ID {
	return newID(TypeNFT, outpointHash(txid, vout))
}

// FromOutpoint derives a non-reissuable or NFT identifier.
func FromOutpoint(t Type, txid chainhash.Hash, vout uint32) (ID, error) {
	switch t {
	case TypeNonReissuable:
		return NonReissuable(txid, vout), nil
	case TypeNFT:
		return NFT(txid, vout), nil
	default:
		return Default, fmt.Errorf("%w: %s is not outpoint-derived", ErrUnsupportedTokenType, t)
	}
}

func newID(t Type, payload [32]byte) ID {
	var id ID
	id[0] = byte(t)
	copy(id[1:], payload[:])
	return id
}

// outpointHash hashes the wire serialization of an outpoint.
func outpointHash(txid chainhash.Hash, vout uint32) [32]byte {
	var buf [chainhash.HashSize + 4]byte
	copy(buf[:], txid[:])
	binary.LittleEndian.PutUint32(buf[chainhash.HashSize:], vout)
	return sha256.Sum256(buf[:])
}

// Type returns the issuance policy of the identifier.
func (id ID) Type() Type { return Type(id[0]) }

// IsDefault reports whether id is the native asset.
func (id ID) IsDefault() bool { return id == Default }

// Valid reports whether id is the default asset or carries a known type.
func (id ID) Valid() bool {
	if id.IsDefault() {
		return true
	}
	switch id.Type() {
	case TypeReissuable, TypeNonReissuable, TypeNFT:
		return true
	}
	return false
}

// Bytes returns a copy of the 33 identifier bytes.
func (id ID) Bytes() []byte { return bytes.Clone(id[:]) }

// String returns the hex encoding, or "default" for the native asset.
func (id ID) String() string {
	if id.IsDefault() {
		return "default"
	}
	return hex.EncodeToString(id[:])
}

// FromBytes parses a 33-byte identifier.
func FromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != IDLen {
		return id, fmt.Errorf("%w: got %d bytes", ErrInvalidID, len(b))
	}
	copy(id[:], b)
	if !id.Valid() {
		return Default, fmt.Errorf("%w: type byte 0x%02x", ErrUnsupportedTokenType, b[0])
	}
	return id, nil
}

// ParseID parses a hex identifier. "default" and "" name the native asset.
func ParseID(s string) (ID, error) {
	if s == "" || s == "default" {
		return Default, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Default, fmt.Errorf("%w: %w", ErrInvalidID, err)
	}
	return FromBytes(b)
}
