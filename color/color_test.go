package color

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/libtoken-go/tx"
)

func testP2PKH(t *testing.T) ([]byte, *script.Address) {
	t.Helper()
	priv, err := ec.NewPrivateKey()
	require.NoError(t, err)
	addr, err := script.NewAddressFromPublicKey(priv.PubKey(), true)
	require.NoError(t, err)
	s, err := tx.P2PKHScript(addr)
	require.NoError(t, err)
	return s, addr
}

func testTxID(b byte) chainhash.Hash {
	var h chainhash.Hash
	for i := range h {
		h[i] = b
	}
	return h
}

func TestReissuable_MatchesScriptHash(t *testing.T) {
	s, _ := testP2PKH(t)
	id := Reissuable(s)

	want := sha256.Sum256(s)
	assert.Equal(t, TypeReissuable, id.Type())
	assert.Equal(t, want[:], id[1:])
}

func TestReissuable_Determinism(t *testing.T) {
	seen := make(map[ID]int)
	for i := 0; i < 64; i++ {
		s, _ := testP2PKH(t)
		a := Reissuable(s)
		assert.Equal(t, a, Reissuable(s), "same script must give the same id")
		if prev, dup := seen[a]; dup {
			t.Fatalf("collision between vectors %d and %d", prev, i)
		}
		seen[a] = i
	}
}

func TestOutpointDerivedIDs(t *testing.T) {
	txid := testTxID(0x11)

	buf := make([]byte, 36)
	copy(buf, txid[:])
	buf[32] = 0x02 // vout 2, little-endian
	want := sha256.Sum256(buf)

	nr := NonReissuable(txid, 2)
	nft := NFT(txid, 2)

	assert.Equal(t, TypeNonReissuable, nr.Type())
	assert.Equal(t, TypeNFT, nft.Type())
	assert.Equal(t, want[:], nr[1:])
	assert.Equal(t, want[:], nft[1:])
	assert.NotEqual(t, nr, nft)
	assert.NotEqual(t, nr, NonReissuable(txid, 3))
	assert.NotEqual(t, nr, NonReissuable(testTxID(0x12), 2))
}

func TestFromOutpoint(t *testing.T) {
	txid := testTxID(0x01)

	id, err := FromOutpoint(TypeNFT, txid, 0)
	require.NoError(t, err)
	assert.Equal(t, NFT(txid, 0), id)

	_, err = FromOutpoint(TypeReissuable, txid, 0)
	assert.ErrorIs(t, err, ErrUnsupportedTokenType)
}

func TestParseID(t *testing.T) {
	s, _ := testP2PKH(t)
	id := Reissuable(s)

	parsed, err := ParseID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	def, err := ParseID("default")
	require.NoError(t, err)
	assert.True(t, def.IsDefault())
	assert.Equal(t, "default", Default.String())

	bad := make([]byte, IDLen)
	bad[0] = 0xc4
	bad[1] = 0x01
	_, err = ParseID(hex.EncodeToString(bad))
	assert.ErrorIs(t, err, ErrUnsupportedTokenType)

	_, err = ParseID("c1ff")
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = ParseID("zz")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestTypeString(t *testing.T) {
	tests := map[Type]string{
		TypeNone:          "default",
		TypeReissuable:    "reissuable",
		TypeNonReissuable: "non_reissuable",
		TypeNFT:           "nft",
		Type(0x42):        "unknown(0x42)",
	}
	for typ, want := range tests {
		assert.Equal(t, want, typ.String(), fmt.Sprintf("type 0x%02x", byte(typ)))
	}
}

func TestLockingScript_SplitRoundTrip(t *testing.T) {
	inner, addr := testP2PKH(t)
	id := NonReissuable(testTxID(0x22), 1)

	colored := LockingScript(id, inner)
	assert.Len(t, colored, coloredPrefixLen+len(inner))
	assert.Equal(t, byte(OpCOLOR), colored[34])
	assert.True(t, IsColored(colored))

	gotID, gotInner := Split(colored)
	assert.Equal(t, id, gotID)
	assert.Equal(t, inner, gotInner)
	assert.Equal(t, id, Of(colored))

	viaAddr, err := ScriptFor(id, addr)
	require.NoError(t, err)
	assert.Equal(t, colored, viaAddr)
}

func TestLockingScript_Default(t *testing.T) {
	inner, addr := testP2PKH(t)

	assert.Equal(t, inner, LockingScript(Default, inner))
	assert.False(t, IsColored(inner))

	id, rest := Split(inner)
	assert.True(t, id.IsDefault())
	assert.Equal(t, inner, rest)

	s, err := ScriptFor(Default, addr)
	require.NoError(t, err)
	assert.Equal(t, inner, s)
}

func TestIsColored_UnknownType(t *testing.T) {
	inner, _ := testP2PKH(t)
	var id ID
	id[0] = 0x99
	id[5] = 1
	s := append([]byte{IDLen}, id[:]...)
	s = append(s, OpCOLOR)
	s = append(s, inner...)
	assert.False(t, IsColored(s))
}

func TestMemoryRegistry(t *testing.T) {
	s, _ := testP2PKH(t)
	id := Reissuable(s)
	r := NewMemoryRegistry()

	_, err := r.AuthorityScript(id)
	assert.ErrorIs(t, err, ErrUnknownAuthority)

	require.NoError(t, r.RegisterAuthority(id, s))
	got, err := r.AuthorityScript(id)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	other, _ := testP2PKH(t)
	assert.ErrorIs(t, r.RegisterAuthority(id, other), ErrInvalidID)
	assert.ErrorIs(t, r.RegisterAuthority(NFT(testTxID(1), 0), s), ErrUnsupportedTokenType)
}
