// Package classifier implements the pure, synchronous P2PK script
// classification rules: given a script descriptor, return the embedded
// public key if (and only if) the script is a Pay-to-Public-Key script.
//
// None of these functions perform I/O or return errors; a malformed or
// non-P2PK input simply yields no key. This mirrors is_p2pk_script in the
// original hydra-mode scanner, generalized into three composable
// predicates: Classify (per-output), InputPlausiblyP2PK (per-input
// prefilter), and QuickScan (per-block prefilter).
package classifier

import (
	"strings"

	"github.com/krich11/qdayscanner/internal/logs"
	"github.com/krich11/qdayscanner/noderpc"
)

var log = logs.Get(logs.TagClassifier)

const opCheckSig = "OP_CHECKSIG"

// Classify applies the P2PK classification rules to a single script
// descriptor. It returns the lowercase hex public key and true if the
// script is P2PK, or "", false otherwise.
func Classify(desc noderpc.ScriptDescriptor) (string, bool) {
	if desc.Type == "pubkeyhash" {
		return "", false
	}

	if desc.Type == "pubkey" {
		if key, ok := classifyFromAsm(desc.Asm); ok {
			return key, true
		}
		log.Debugf("scriptPubKey tagged 'pubkey' failed asm validation: %q", desc.Asm)
	}

	if key, ok := classifyFromHex(desc.Hex); ok {
		return key, true
	}

	return "", false
}

// classifyFromAsm implements rule 2: asm must end with OP_CHECKSIG and its
// first token must be a well-formed compressed or uncompressed hex key.
func classifyFromAsm(asm string) (string, bool) {
	fields := strings.Fields(asm)
	if len(fields) == 0 {
		return "", false
	}
	if fields[len(fields)-1] != opCheckSig {
		return "", false
	}
	key := strings.ToLower(fields[0])
	if !isValidPubKeyHex(key) {
		return "", false
	}
	return key, true
}

// classifyFromHex implements rule 3: fall back to the raw script bytes
// when the type tag is absent or untrusted. Matches
// 0x41 <65-byte key> 0xac (134 hex chars, uncompressed) or
// 0x41 <33-byte key> 0xac (70 hex chars, compressed).
func classifyFromHex(hex string) (string, bool) {
	hex = strings.ToLower(hex)
	if !isHex(hex) {
		return "", false
	}
	switch len(hex) {
	case 134:
		if strings.HasPrefix(hex, "41") && strings.HasSuffix(hex, "ac") {
			key := hex[2 : len(hex)-2]
			if strings.HasPrefix(key, "04") {
				return key, true
			}
		}
	case 70:
		if strings.HasPrefix(hex, "41") && strings.HasSuffix(hex, "ac") {
			key := hex[2 : len(hex)-2]
			if strings.HasPrefix(key, "02") || strings.HasPrefix(key, "03") {
				return key, true
			}
		}
	}
	return "", false
}

// isValidPubKeyHex checks the two accepted secp256k1 encodings: 130 hex
// chars prefixed "04" (uncompressed) or 66 hex chars prefixed "02"/"03"
// (compressed), and that the whole string is hex.
func isValidPubKeyHex(key string) bool {
	if !isHex(key) {
		return false
	}
	switch len(key) {
	case 130:
		return strings.HasPrefix(key, "04")
	case 66:
		return strings.HasPrefix(key, "02") || strings.HasPrefix(key, "03")
	}
	return false
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// InputPlausiblyP2PK is the input-side prefilter: given a spending
// input's scriptSig asm, report whether the input could be
// spending a P2PK output. Returns false only when the first token's length
// clearly rules it out (signatures are 71-73 bytes, i.e. 142-146 hex
// chars); an empty/unavailable asm is conservatively "may be P2PK".
func InputPlausiblyP2PK(scriptSigAsm string) bool {
	if scriptSigAsm == "" {
		return true
	}
	fields := strings.Fields(scriptSigAsm)
	if len(fields) == 0 {
		return true
	}
	sigLen := len(fields[0])
	return sigLen >= 142 && sigLen <= 146
}

// QuickScan is the block-level predicate: true iff any output across any
// transaction looks like it could be P2PK, by type
// tag or by the lenient hex-pattern heuristic below. It deliberately
// over-approximates — false positives cost an extra full scan of the
// block, false negatives would silently drop data, which this predicate
// must never do.
func QuickScan(block *noderpc.BlockView) bool {
	for _, tx := range block.Txs {
		for _, out := range tx.Outputs {
			if out.ScriptPubKey.Type == "pubkey" {
				return true
			}
			if looksLikeP2PKHex(out.ScriptPubKey.Hex) {
				return true
			}
		}
	}
	return false
}

// looksLikeP2PKHex is the permissive shape-only check QuickScan uses: it
// does not validate the embedded key's prefix byte, only the envelope
// (0x41 ... 0xac at the expected lengths), so it can only over-match.
func looksLikeP2PKHex(hex string) bool {
	hex = strings.ToLower(hex)
	if !isHex(hex) {
		return false
	}
	switch len(hex) {
	case 134, 70:
		return strings.HasPrefix(hex, "41") && strings.HasSuffix(hex, "ac")
	}
	return false
}
