package packify

import (
	"bytes"

	"github.com/zeebo/xxh3"
)

// Equal reports whether a and b have the same canonical encoding. This is the
// equality sets and mapping keys use. Values that cannot be packed are never
// equal.
func Equal(a, b any) bool {
	ea, err := Pack(a)
	if err != nil {
		return false
	}
	eb, err := Pack(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}

// Fingerprint returns the xxh3 hash of an encoded value.
func Fingerprint(data []byte) uint64 {
	return xxh3.Hash(data)
}

// Sum64 returns the fingerprint of v's canonical encoding.
func Sum64(v any) (uint64, error) {
	data, err := Pack(v)
	if err != nil {
		return 0, err
	}
	return Fingerprint(data), nil
}
