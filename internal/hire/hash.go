package hire

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefix for content-addressed attribute fingerprints. The version
// suffix allows a future algorithm change without colliding with old values.
const domainAttributes = "startmate/attributes/v1"

// Fingerprint computes the content-addressed hash of an attribute map.
//
// The fingerprint is stable across restarts and across re-reads of the same
// source row: identical attribute content always produces the same value.
// Format: SHA256(domain + 0x00 + canonicalJSON), hex encoded. The null byte
// separator prevents domain/payload boundary ambiguity.
func Fingerprint(attrs map[string]string) (string, error) {
	canonical, err := marshalCanonical(attrs)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(domainAttributes))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}
