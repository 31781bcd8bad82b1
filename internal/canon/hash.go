package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// HashPrefix tags every content hash with its algorithm.
const HashPrefix = "sha256:"

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainTick    = "ngat/tick/v1"
	DomainHistory = "ngat/history/v1"
	DomainReplay  = "ngat/replay/v1"
)

// Hash returns "sha256:<hex>" over the canonical bytes of v.
func Hash(v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	return HashBytes(data), nil
}

// HashBytes returns "sha256:<hex>" over data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return HashPrefix + hex.EncodeToString(sum[:])
}

// HashWithDomain computes SHA256(domain + 0x00 + data) as bare hex.
// The null separator prevents domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DomainHash canonicalizes v and hashes it under domain.
func DomainHash(domain string, v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%s: %w", domain, err)
	}
	return HashWithDomain(domain, data), nil
}

// Equal reports whether two hash strings match exactly, including prefix.
func Equal(a, b string) bool {
	return strings.HasPrefix(a, HashPrefix) && a == b
}
