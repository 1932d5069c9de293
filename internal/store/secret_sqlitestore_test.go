package store

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"testing"

	"github.com/hakola/stageflow/internal"
	"github.com/stretchr/testify/suite"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type secretSQLiteStoreSuite struct {
	secretStore *SecretSQLiteStore
	db          *sql.DB
	suite.Suite
}

func TestSecretSQLiteStore(t *testing.T) {
	suite.Run(t, new(secretSQLiteStoreSuite))
}

func (suite *secretSQLiteStoreSuite) SetupSuite() {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		log.Fatal(err)
	}
	suite.db = db

	RunMigrations(db, internal.MigrationsDir)

	suite.secretStore = NewSecretSQLiteStore(db, db)
}

func (suite *secretSQLiteStoreSuite) TearDownSuite() {
	_ = suite.db.Close()
}

func (suite *secretSQLiteStoreSuite) TestSecretSQLiteStore_CRUD() {
	suite.Run("success - secret round trip", func() {
		// arrange
		s, err := suite.secretStore.CreateSecret(
			context.Background(), "E2E_TOKEN", "e2e auth", "encryptedvalue")
		suite.NoError(err)

		// act
		got, err := suite.secretStore.ReadSecretByName(
			context.Background(), "E2E_TOKEN")

		// assert
		suite.NoError(err)
		suite.Equal(s.SecretID, got.SecretID)
		suite.Equal("encryptedvalue", got.ValueHash)
	})
	suite.Run("failure - duplicate name", func() {
		// act
		_, err := suite.secretStore.CreateSecret(
			context.Background(), "E2E_TOKEN", "", "other")

		// assert
		suite.Error(err)
		var sqliteErr *sqlite.Error
		suite.True(errors.As(err, &sqliteErr))
		suite.Equal(sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqliteErr.Code())
	})
	suite.Run("failure - unknown name", func() {
		// act
		got, err := suite.secretStore.ReadSecretByName(
			context.Background(), "NO_SUCH_TOKEN")

		// assert
		suite.Error(err)
		suite.True(errors.Is(err, sql.ErrNoRows))
		suite.Nil(got)
	})
}
