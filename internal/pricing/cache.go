package pricing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CacheEntry is the persisted state of a long-lived price cache.
type CacheEntry struct {
	Price       decimal.Decimal `json:"price"`
	RefreshedAt time.Time       `json:"refreshed_at"`
	Source      string          `json:"source"`
}

// EntryStore persists cache entries across restarts. Implementations must be safe for concurrent use.
type EntryStore interface {
	LoadEntry(ctx context.Context, key string) (CacheEntry, bool, error)
	SaveEntry(ctx context.Context, key string, entry CacheEntry, ttl time.Duration) error
}

func fresh(e *CacheEntry, now time.Time, ttl time.Duration) bool {
	return e != nil && now.Sub(e.RefreshedAt) < ttl
}
