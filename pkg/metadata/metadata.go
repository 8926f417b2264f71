// Package metadata fingerprints generated datasets so consumers can tell
// whether a run changed anything.
package metadata

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// CalculateHash computes the SHA-256 hash of the given parts. Each part is
// length-prefixed so that moving bytes between parts changes the hash.
func CalculateHash(parts ...[]byte) string {
	h := sha256.New()

	var size [8]byte

	for _, part := range parts {
		binary.BigEndian.PutUint64(size[:], uint64(len(part)))
		h.Write(size[:])
		h.Write(part)
	}

	return hex.EncodeToString(h.Sum(nil))
}
