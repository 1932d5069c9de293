package store

import (
	"context"
	"time"
)

// CacheEntry records a dependency cache population on an agent. The
// cache is advisory: entries only decide whether a cell's install
// steps may be skipped, never what the cell computes.
type CacheEntry struct {
	CacheEntryID int64
	Key          string
	// Path of the cached dependency directory on the agent
	Path      string
	CreatedOn time.Time
	LastUsed  *time.Time
}

type CacheStore interface {
	UpsertCacheEntry(context.Context, string, string) (*CacheEntry, error)
	ReadCacheEntryByKey(context.Context, string) (*CacheEntry, error)
	// ReadLatestCacheEntryByPrefix returns the most recently created
	// entry whose key starts with the prefix.
	ReadLatestCacheEntryByPrefix(context.Context, string) (*CacheEntry, error)
	TouchCacheEntry(context.Context, int64, *time.Time) error
	DeleteCacheEntriesBefore(context.Context, time.Time) (int64, error)
}
