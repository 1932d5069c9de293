package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hakola/stageflow/internal/store"
)

// CacheLookup is what the orchestrator learns before a cell's install
// steps run. Hit means the exact key matched and installs may be
// skipped; Restored carries a fallback entry found under a restore
// prefix, usable as a starting point but never a reason to skip
// installs. Either way the cell's outcome must not depend on it.
type CacheLookup struct {
	Key      string
	Hit      bool
	Restored *store.CacheEntry
}

type CacheService struct {
	cacheStore store.CacheStore
}

func NewCacheService(cacheStore store.CacheStore) *CacheService {
	return &CacheService{cacheStore: cacheStore}
}

// Lookup resolves key against the store: exact match first, then the
// restore prefixes in declared order (most specific first).
func (s *CacheService) Lookup(
	ctx context.Context,
	key string,
	restoreKeys []string,
) (*CacheLookup, error) {
	entry, err := s.cacheStore.ReadCacheEntryByKey(ctx, key)
	if err == nil {
		now := time.Now().UTC()
		if err := s.cacheStore.TouchCacheEntry(ctx, entry.CacheEntryID, &now); err != nil {
			return nil, err
		}
		return &CacheLookup{Key: key, Hit: true, Restored: entry}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	for _, prefix := range restoreKeys {
		entry, err := s.cacheStore.ReadLatestCacheEntryByPrefix(ctx, prefix)
		if err == nil {
			return &CacheLookup{Key: key, Hit: false, Restored: entry}, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}

	return &CacheLookup{Key: key, Hit: false}, nil
}

// Save records a freshly populated dependency directory under key.
func (s *CacheService) Save(ctx context.Context, key, path string) error {
	_, err := s.cacheStore.UpsertCacheEntry(ctx, key, path)
	return err
}

// Prune drops entries older than the retention window.
func (s *CacheService) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	return s.cacheStore.DeleteCacheEntriesBefore(ctx, cutoff)
}
