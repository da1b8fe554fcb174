package color

import (
	"bytes"

	"github.com/bsv-blockchain/go-sdk/script"

	"github.com/bitfsorg/libtoken-go/tx"
)

// OpCOLOR marks the preceding 33-byte push as the output's color identifier.
const OpCOLOR = 0xbc

// coloredPrefixLen is <push 33> <id> OP_COLOR.
const coloredPrefixLen = 1 + IDLen + 1

// LockingScript prefixes inner with the color marker for id. The default
// asset is returned unchanged.
//
//	<id> OP_COLOR <inner>
func LockingScript(id ID, inner []byte) []byte {
	if id.IsDefault() {
		return bytes.Clone(inner)
	}
	s := make([]byte, 0, coloredPrefixLen+len(inner))
	s = append(s, IDLen)
	s = append(s, id[:]...)
	s = append(s, OpCOLOR)
	return append(s, inner...)
}

// ScriptFor returns the (C)P2PKH locking script paying asset id to addr.
func ScriptFor(id ID, addr *script.Address) ([]byte, error) {
	inner, err := tx.P2PKHScript(addr)
	if err != nil {
		return nil, err
	}
	return LockingScript(id, inner), nil
}

// Split separates a locking script into its color and the uncolored
// remainder. Scripts without a well-formed color prefix are returned whole
// with the default asset.
func Split(lockingScript []byte) (ID, []byte) {
	if !IsColored(lockingScript) {
		return Default, lockingScript
	}
	var id ID
	copy(id[:], lockingScript[1:1+IDLen])
	return id, lockingScript[coloredPrefixLen:]
}

// IsColored reports whether lockingScript starts with a color marker for a
// known token type.
func IsColored(lockingScript []byte) bool {
	if len(lockingScript) < coloredPrefixLen {
		return false
	}
	if lockingScript[0] != IDLen || lockingScript[coloredPrefixLen-1] != OpCOLOR {
		return false
	}
	var id ID
	copy(id[:], lockingScript[1:1+IDLen])
	return !id.IsDefault() && id.Valid()
}

// Of returns the color carried by lockingScript.
func Of(lockingScript []byte) ID {
	id, _ := Split(lockingScript)
	return id
}
