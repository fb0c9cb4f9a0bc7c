package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/seantiz/vantage/internal/model"
)

// Key derives a cache key from the identity a request runs under and the
// request shape. shape must be JSON-encodable; map keys are encoded in sorted
// order, so equal shapes give equal keys.
func Key(identity model.ClientIdentity, shape any) (string, error) {
	raw, err := json.Marshal(shape)
	if err != nil {
		return "", fmt.Errorf("encode cache key shape: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(identity.Key()))
	h.Write([]byte{0})
	h.Write(raw)
	return hex.EncodeToString(h.Sum(nil)), nil
}
