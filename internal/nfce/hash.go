package nfce

import (
	"crypto/sha256"
	"encoding/hex"
)

// IdentityHash is the durable deduplication key for a receipt: the SHA-256
// digest of the canonical 44-digit access key, hex encoded. The input is the
// plain ASCII digit string with no separators, so the value is reproducible
// from the key alone in any implementation.
type IdentityHash string

// HashKey derives the identity hash of a validated access key.
func HashKey(key AccessKey) IdentityHash {
	sum := sha256.Sum256([]byte(key.String()))
	return IdentityHash(hex.EncodeToString(sum[:]))
}

func (h IdentityHash) String() string { return string(h) }
