package cache

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/terisuke/cohort/internal/model"
)

// KeyPrefix is the durable-tier key namespace for fetched account data.
const KeyPrefix = "posts_"

// Cache defines the interface for a single cache tier
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte) error
	Delete(key string) error
	Clear() error
	Keys(prefix string) []string
}

// Key builds the cache key for an identity. The identity component is
// reduced to the handle alphabet; anything outside it is replaced by a
// digest so a hostile identity cannot traverse out of the cache
// directory when the key becomes a filename.
func Key(identity string) string {
	return KeyPrefix + safeComponent(model.NormalizeHandle(identity))
}

// IdentityFromKey recovers the identity from a cache key. Keys built
// from malformed identities hold a digest instead and do not round-trip.
func IdentityFromKey(key string) string {
	if len(key) > len(KeyPrefix) && key[:len(KeyPrefix)] == KeyPrefix {
		return key[len(KeyPrefix):]
	}
	return key
}

func safeComponent(handle string) string {
	for _, r := range handle {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			sum := sha256.Sum256([]byte(handle))
			return hex.EncodeToString(sum[:8])
		}
	}
	return handle
}
