package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/hakola/stageflow/internal"
)

type CacheSQLiteStore struct {
	rdb, rwdb *sql.DB
}

func NewCacheSQLiteStore(rdb, rwdb *sql.DB) *CacheSQLiteStore {
	return &CacheSQLiteStore{rdb, rwdb}
}

func (store *CacheSQLiteStore) UpsertCacheEntry(
	ctx context.Context,
	key, path string,
) (*CacheEntry, error) {
	e := &CacheEntry{Key: key, Path: path}
	query := `insert into cache_entries (key, path)
	values ($1, $2)
	on conflict (key) do update set path = excluded.path
	returning cache_entry_id, created_on`
	if err := sqlscan.Get(ctx, store.rwdb, e, query, e.Key, e.Path); err != nil {
		return nil, err
	}
	return e, nil
}

func (store *CacheSQLiteStore) ReadCacheEntryByKey(
	ctx context.Context,
	key string,
) (*CacheEntry, error) {
	e := new(CacheEntry)
	query := "select * from cache_entries where key = $1"
	if err := sqlscan.Get(ctx, store.rdb, e, query, key); err != nil {
		return nil, err
	}
	return e, nil
}

func (store *CacheSQLiteStore) ReadLatestCacheEntryByPrefix(
	ctx context.Context,
	prefix string,
) (*CacheEntry, error) {
	e := new(CacheEntry)
	// escape the like wildcards so a prefix is matched literally
	query := `select * from cache_entries
	where key like replace(replace($1, '%', '\%'), '_', '\_') || '%' escape '\'
	order by created_on desc, cache_entry_id desc
	limit 1`
	if err := sqlscan.Get(ctx, store.rdb, e, query, prefix); err != nil {
		return nil, err
	}
	return e, nil
}

func (store *CacheSQLiteStore) TouchCacheEntry(
	ctx context.Context,
	id int64,
	lastUsed *time.Time,
) error {
	query := `update cache_entries
	set last_used = $1
	where cache_entry_id = $2`
	_, err := store.rwdb.ExecContext(
		ctx, query,
		lastUsed.Format(internal.DBTimestampLayout),
		id,
	)
	return err
}

func (store *CacheSQLiteStore) DeleteCacheEntriesBefore(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	query := "delete from cache_entries where created_on < $1"
	res, err := store.rwdb.ExecContext(
		ctx, query,
		cutoff.Format(internal.DBTimestampLayout),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
