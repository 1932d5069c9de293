package store

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"testing"

	"github.com/hakola/stageflow/internal"
	"github.com/stretchr/testify/suite"
)

type agentSQLiteStoreSuite struct {
	agentStore *AgentSQLiteStore
	db         *sql.DB
	suite.Suite
}

func TestAgentSQLiteStore(t *testing.T) {
	suite.Run(t, new(agentSQLiteStoreSuite))
}

func (suite *agentSQLiteStoreSuite) SetupSuite() {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		log.Fatal(err)
	}
	suite.db = db

	RunMigrations(db, internal.MigrationsDir)

	suite.agentStore = NewAgentSQLiteStore(db, db)
}

func (suite *agentSQLiteStoreSuite) TearDownSuite() {
	_ = suite.db.Close()
}

func (suite *agentSQLiteStoreSuite) TestAgentSQLiteStore_CreateAndLookup() {
	suite.Run("success - agent found by os label", func() {
		// arrange
		a, err := suite.agentStore.CreateAgent(
			context.Background(),
			"build-ubuntu-1",
			"",
			"ubuntu-latest",
			"10.0.0.5",
			"ci",
			"runs",
			"encrypted",
		)
		suite.NoError(err)

		// act
		got, err := suite.agentStore.ReadAgentByOSLabel(
			context.Background(), "ubuntu-latest")

		// assert
		suite.NoError(err)
		suite.Equal(a.AgentID, got.AgentID)
		suite.Equal("ubuntu-latest", got.OSLabel)
	})
	suite.Run("success - lowest id wins for duplicate labels", func() {
		// arrange
		_, err := suite.agentStore.CreateAgent(
			context.Background(),
			"build-ubuntu-2",
			"",
			"ubuntu-latest",
			"10.0.0.6",
			"ci",
			"runs",
			"encrypted",
		)
		suite.NoError(err)

		// act
		got, err := suite.agentStore.ReadAgentByOSLabel(
			context.Background(), "ubuntu-latest")

		// assert
		suite.NoError(err)
		suite.Equal("build-ubuntu-1", got.Name)
	})
	suite.Run("failure - unknown os label", func() {
		// act
		got, err := suite.agentStore.ReadAgentByOSLabel(
			context.Background(), "solaris-latest")

		// assert
		suite.Error(err)
		suite.True(errors.Is(err, sql.ErrNoRows))
		suite.Nil(got)
	})
}
