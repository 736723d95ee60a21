// Package sha256 derives stable content keys.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher digests byte slices to hex strings.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of the concatenated parts. Parts are length
// prefixed, so ("ab","c") and ("a","bc") differ.
func (h *Hasher) Hash(parts ...[]byte) string {
	d := sha256.New()
	var prefix [8]byte
	for _, p := range parts {
		n := uint64(len(p))
		for i := range prefix {
			prefix[i] = byte(n >> (56 - 8*i))
		}
		d.Write(prefix[:])
		d.Write(p)
	}
	return hex.EncodeToString(d.Sum(nil))
}
