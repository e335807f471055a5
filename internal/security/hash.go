package security

import (
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// HashPrefix marks a Keccak-256 hex digest, matching on-chain encoding.
const HashPrefix = "0x"

// ComputeDataHash returns the 0x-prefixed Keccak-256 digest of data.
// Identical bytes always produce the identical string.
func ComputeDataHash(data []byte) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return HashPrefix + hex.EncodeToString(h.Sum(nil))
}

// VerifyDataHash reports whether data hashes to expected.
func VerifyDataHash(data []byte, expected string) bool {
	actual := ComputeDataHash(data)
	return subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) == 1
}
