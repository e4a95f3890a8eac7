package classifier

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/krich11/qdayscanner/noderpc"
)

var (
	compressedKey   = "02" + strings.Repeat("ab", 32)
	uncompressedKey = "04" + strings.Repeat("ab", 64)
)

func TestClassify_TaggedPubkeyWithValidAsm(t *testing.T) {
	desc := noderpc.ScriptDescriptor{
		Type: "pubkey",
		Asm:  compressedKey + " OP_CHECKSIG",
		Hex:  "21" + compressedKey + "ac",
	}
	key, ok := Classify(desc)
	require.True(t, ok)
	require.Equal(t, compressedKey, key)
}

func TestClassify_TaggedPubkeyHashExcluded(t *testing.T) {
	desc := noderpc.ScriptDescriptor{Type: "pubkeyhash", Asm: "OP_DUP OP_HASH160 ... OP_EQUALVERIFY OP_CHECKSIG"}
	_, ok := Classify(desc)
	require.False(t, ok)
}

func TestClassify_TaggedPubkeyBadAsmFallsBackToHex(t *testing.T) {
	desc := noderpc.ScriptDescriptor{
		Type: "pubkey",
		Asm:  "garbage",
		Hex:  "41" + uncompressedKey + "ac",
	}
	key, ok := Classify(desc)
	require.True(t, ok)
	require.Equal(t, uncompressedKey, key)
}

func TestClassify_UntaggedHexCompressed(t *testing.T) {
	desc := noderpc.ScriptDescriptor{Type: "nonstandard", Hex: "41" + compressedKey + "ac"}
	key, ok := Classify(desc)
	require.True(t, ok)
	require.Equal(t, compressedKey, key)
}

func TestClassify_UntaggedHexUncompressed(t *testing.T) {
	desc := noderpc.ScriptDescriptor{Type: "nonstandard", Hex: "41" + uncompressedKey + "ac"}
	key, ok := Classify(desc)
	require.True(t, ok)
	require.Equal(t, uncompressedKey, key)
}

func TestClassify_WrongLengthHexRejected(t *testing.T) {
	desc := noderpc.ScriptDescriptor{Type: "nonstandard", Hex: "4102beef"}
	_, ok := Classify(desc)
	require.False(t, ok)
}

func TestClassify_NonHexRejected(t *testing.T) {
	desc := noderpc.ScriptDescriptor{Type: "nonstandard", Hex: "zz"}
	_, ok := Classify(desc)
	require.False(t, ok)
}

func TestInputPlausiblyP2PK(t *testing.T) {
	sig142 := make([]byte, 142)
	for i := range sig142 {
		sig142[i] = 'a'
	}
	require.True(t, InputPlausiblyP2PK(string(sig142)))
	require.True(t, InputPlausiblyP2PK(""))
	require.False(t, InputPlausiblyP2PK("deadbeef"))
}

func TestQuickScan_NeverFalseNegativeOnTaggedPubkey(t *testing.T) {
	block := &noderpc.BlockView{
		Txs: []noderpc.TxView{
			{Outputs: []noderpc.TxOutView{{ScriptPubKey: noderpc.ScriptDescriptor{Type: "pubkeyhash"}}}},
			{Outputs: []noderpc.TxOutView{{ScriptPubKey: noderpc.ScriptDescriptor{Type: "pubkey"}}}},
		},
	}
	require.True(t, QuickScan(block))
}

func TestQuickScan_NoCandidates(t *testing.T) {
	block := &noderpc.BlockView{
		Txs: []noderpc.TxView{
			{Outputs: []noderpc.TxOutView{{ScriptPubKey: noderpc.ScriptDescriptor{Type: "pubkeyhash", Hex: "76a914"}}}},
		},
	}
	require.False(t, QuickScan(block))
}
