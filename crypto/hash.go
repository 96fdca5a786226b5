package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the sha256 digest of data.
func Hash(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// HashHex returns the sha256 digest of data as a lower-case hex
// string. Content hashes and dedup keys throughout the framework use
// this form.
func HashHex(data []byte) string {
	return hex.EncodeToString(Hash(data))
}
