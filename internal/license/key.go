package license

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

const (
	keyPrefix  = "PIA-USER"
	keyDigits  = 24 // 96 bits of the digest
	groupWidth = 4
)

// GenerateKey derives a license key from the customer's email and the
// generation time. An accidental collision needs two inputs hashing to
// the same first 96 bits of SHA-256.
func GenerateKey(email string, now time.Time) string {
	base := email + "-" + now.UTC().Format(time.RFC3339Nano)
	sum := sha256.Sum256([]byte(base))
	digest := strings.ToUpper(hex.EncodeToString(sum[:])[:keyDigits])

	parts := make([]string, 0, 1+keyDigits/groupWidth)
	parts = append(parts, keyPrefix)
	for i := 0; i < len(digest); i += groupWidth {
		parts = append(parts, digest[i:i+groupWidth])
	}
	return strings.Join(parts, "-")
}
