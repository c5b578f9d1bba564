package collector

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash is the per-channel uniqueness key of a persisted topic.
func ContentHash(titleNormalized, sourceURL string) string {
	sum := sha256.Sum256([]byte(titleNormalized + "\n" + sourceURL))
	return hex.EncodeToString(sum[:])
}
