package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrMiss is returned when a key has no value.
var ErrMiss = errors.New("cache miss")

// Store is a byte-oriented key/value cache with per-key expiry.
// A zero ttl means the key never expires.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// SQLKey builds the cache key for a stabilized question. The question
// is lowercased and stripped of spaces, quotes and brackets so that
// cosmetic rephrasings of the same question share one entry.
func SQLKey(tenant, stabilized string) string {
	return tenant + ":" + normalize(stabilized)
}

// HistoryKey addresses the rolling chat history for one session.
func HistoryKey(tenant, session string) string {
	return tenant + ":" + session + ":chat_history"
}

func normalize(value string) string {
	replacer := strings.NewReplacer(" ", "", "'", "", "[", "", "]", "")
	return strings.ToLower(replacer.Replace(value))
}
