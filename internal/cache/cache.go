// Package cache keeps scorer results so identical claims are not re-scored
// across runs.
package cache

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/ppiankov/resubmit/internal/model"
)

// Cache stores inference results by key. Implementations only hold results
// that carry a score.
type Cache interface {
	Get(key string) (model.InferenceResult, bool)
	Put(key string, res model.InferenceResult) error
}

const keyPrefix = "score-v1-"

// Key derives a cache key from the model version and the scorer inputs.
// Parts are joined with a separator that cannot appear in feature names.
func Key(modelVersion string, inputs ...string) string {
	h := sha256.New()
	h.Write([]byte(modelVersion))
	for _, in := range inputs {
		h.Write([]byte{0x1f})
		h.Write([]byte(in))
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}
