// Package cell implements the content-addressed cell model: the minimal
// parse unit of a knitj document, either prose (TextCell) or executable
// (CodeCell), identified by a SHA-1 hash over its kind-tagged content.
package cell

import (
	"crypto/sha1"
	"encoding/hex"
)

// Hash is a content identifier computed as SHA-1 over a cell-kind-tagged
// preimage ("text"||content or "code"||content). Two cells with identical
// kind and normalized content always produce the same Hash.
type Hash struct {
	value string
}

// HashFromString computes a Hash from an already kind-tagged preimage, e.g.
// "text"+content or "code"+content.
func HashFromString(preimage string) Hash {
	sum := sha1.Sum([]byte(preimage))
	return Hash{value: hex.EncodeToString(sum[:])}
}

// HashFromHex wraps an already-computed hex digest, as received over the
// wire (websocket messages, HTML class tokens).
func HashFromHex(hex string) Hash {
	return Hash{value: hex}
}

// String returns the full hex digest, the on-the-wire form.
func (h Hash) String() string {
	return h.value
}

// Short returns a 6-character prefix, for human-visible logs only.
func (h Hash) Short() string {
	if len(h.value) <= 6 {
		return h.value
	}
	return h.value[:6]
}

// IsZero reports whether h is the zero value (no hash set).
func (h Hash) IsZero() bool {
	return h.value == ""
}
