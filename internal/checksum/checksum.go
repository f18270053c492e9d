// Package checksum fingerprints EPUB sources so re-imports of unchanged
// files can be detected and skipped.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data. The digest is
// stored per book and compared on upload to skip unchanged sources.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
