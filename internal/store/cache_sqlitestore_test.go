package store

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/hakola/stageflow/internal"
	"github.com/stretchr/testify/suite"
)

type cacheSQLiteStoreSuite struct {
	cacheStore *CacheSQLiteStore
	db         *sql.DB
	suite.Suite
}

func TestCacheSQLiteStore(t *testing.T) {
	suite.Run(t, new(cacheSQLiteStoreSuite))
}

func (suite *cacheSQLiteStoreSuite) SetupSuite() {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		log.Fatal(err)
	}
	suite.db = db

	RunMigrations(db, internal.MigrationsDir)

	suite.cacheStore = NewCacheSQLiteStore(db, db)
}

func (suite *cacheSQLiteStoreSuite) TearDownSuite() {
	_ = suite.db.Close()
}

func (suite *cacheSQLiteStoreSuite) TestCacheSQLiteStore_Upsert() {
	suite.Run("success - upsert is idempotent per key", func() {
		// act
		first, err1 := suite.cacheStore.UpsertCacheEntry(
			context.Background(), "ubuntu-latest-3.7-deps-aaa", "/cache/a")
		second, err2 := suite.cacheStore.UpsertCacheEntry(
			context.Background(), "ubuntu-latest-3.7-deps-aaa", "/cache/b")

		// assert
		suite.NoError(err1)
		suite.NoError(err2)
		suite.Equal(first.CacheEntryID, second.CacheEntryID)

		got, err := suite.cacheStore.ReadCacheEntryByKey(
			context.Background(), "ubuntu-latest-3.7-deps-aaa")
		suite.NoError(err)
		suite.Equal("/cache/b", got.Path)
	})
}

func (suite *cacheSQLiteStoreSuite) TestCacheSQLiteStore_PrefixLookup() {
	suite.Run("success - latest entry under prefix wins", func() {
		// arrange
		_, err := suite.cacheStore.UpsertCacheEntry(
			context.Background(), "macos-latest-3.6-deps-old", "/cache/old")
		suite.NoError(err)
		latest, err := suite.cacheStore.UpsertCacheEntry(
			context.Background(), "macos-latest-3.6-deps-new", "/cache/new")
		suite.NoError(err)

		// act
		got, err := suite.cacheStore.ReadLatestCacheEntryByPrefix(
			context.Background(), "macos-latest-3.6-")

		// assert
		suite.NoError(err)
		suite.Equal(latest.Key, got.Key)
	})
	suite.Run("failure - no entry under prefix", func() {
		// act
		got, err := suite.cacheStore.ReadLatestCacheEntryByPrefix(
			context.Background(), "windows-latest-")

		// assert
		suite.Error(err)
		suite.True(errors.Is(err, sql.ErrNoRows))
		suite.Nil(got)
	})
	suite.Run("success - prefix is matched literally", func() {
		// arrange: the underscore must not behave as a like wildcard
		_, err := suite.cacheStore.UpsertCacheEntry(
			context.Background(), "osxlatest-3.6-deps-x", "/cache/x")
		suite.NoError(err)

		// act
		_, err = suite.cacheStore.ReadLatestCacheEntryByPrefix(
			context.Background(), "os_latest-3.6-")

		// assert
		suite.Error(err)
	})
}

func (suite *cacheSQLiteStoreSuite) TestCacheSQLiteStore_TouchAndPrune() {
	suite.Run("success - touch sets last used", func() {
		// arrange
		e, err := suite.cacheStore.UpsertCacheEntry(
			context.Background(), "ubuntu-latest-3.6-deps-ccc", "/cache/c")
		suite.NoError(err)

		// act
		now := time.Now().UTC()
		touchErr := suite.cacheStore.TouchCacheEntry(
			context.Background(), e.CacheEntryID, &now)
		got, readErr := suite.cacheStore.ReadCacheEntryByKey(
			context.Background(), e.Key)

		// assert
		suite.NoError(touchErr)
		suite.NoError(readErr)
		suite.NotNil(got.LastUsed)
	})
	suite.Run("success - prune removes old entries", func() {
		// act
		n, err := suite.cacheStore.DeleteCacheEntriesBefore(
			context.Background(), time.Now().UTC().Add(time.Hour))

		// assert
		suite.NoError(err)
		suite.True(n >= 1)
	})
}
