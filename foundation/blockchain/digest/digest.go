// Package digest provides the hashing support for the blockchain. Every
// hash is the SHA-256 of a canonical JSON document, hex encoded.
package digest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// ZeroHash represents a hash code of zeros.
const ZeroHash string = "0000000000000000000000000000000000000000000000000000000000000000"

// =============================================================================

// Hash returns a unique string for the value. The value is reduced to its
// canonical JSON form first so the hash does not depend on the order fields
// are declared or inserted in. Invalid UTF-8 in strings is encoded as
// U+FFFD, so values differing only in invalid bytes share a hash.
func Hash(value any) string {
	data, err := Canonical(value)
	if err != nil {
		return ZeroHash
	}

	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Text returns the hash of the raw text.
func Text(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:])
}

// Canonical produces the JSON document that is hashed for the value. Object
// keys are sorted and numbers keep the exact text the encoder produced.
func Canonical(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	// Decoding into a generic tree turns every object into a map, and the
	// encoder always writes map keys in sorted order.
	d := json.NewDecoder(bytes.NewReader(data))
	d.UseNumber()

	var tree any
	if err := d.Decode(&tree); err != nil {
		return nil, err
	}

	return json.Marshal(tree)
}
