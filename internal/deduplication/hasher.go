package deduplication

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hasher fingerprints an ordered list of fields with SHA-256.
type Hasher struct{}

func NewHasher() *Hasher {
	return &Hasher{}
}

// ComputeHash joins fields with a separator that cannot appear in trimmed input and hashes the result.
func (h *Hasher) ComputeHash(fields ...string) string {
	var builder strings.Builder
	for _, f := range fields {
		builder.WriteString(strings.TrimSpace(f))
		builder.WriteByte(0)
	}
	sum := sha256.Sum256([]byte(builder.String()))
	return hex.EncodeToString(sum[:])
}
