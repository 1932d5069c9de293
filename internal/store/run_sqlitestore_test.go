package store

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"slices"
	"testing"
	"time"

	"github.com/hakola/stageflow/internal"
	"github.com/stretchr/testify/suite"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type runSQLiteStoreSuite struct {
	runStore *RunSQLiteStore
	db       *sql.DB
	pipeline *Pipeline
	suite.Suite
}

func TestRunSQLiteStore(t *testing.T) {
	suite.Run(t, new(runSQLiteStoreSuite))
}

func (suite *runSQLiteStoreSuite) SetupSuite() {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		log.Fatal(err)
	}
	suite.db = db
	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	if err != nil {
		log.Fatal(err)
	}

	RunMigrations(db, internal.MigrationsDir)

	suite.runStore = NewRunSQLiteStore(db, db)
	pipelineStore := NewPipelineSQLiteStore(db, db)
	p, err := pipelineStore.CreatePipeline(
		context.Background(),
		"runpipeline",
		"",
		"github.com:hakola/stageflow.git",
		".stageflow.yml",
		"master",
	)
	if err != nil {
		log.Fatal(err)
	}
	suite.pipeline = p
}

func (suite *runSQLiteStoreSuite) TearDownSuite() {
	_ = suite.db.Close()
}

func (suite *runSQLiteStoreSuite) TestRunSQLiteStore_CreateRun() {
	suite.Run("success - run created", func() {
		// arrange
		ref := "refs/heads/master"

		// act
		r, err := suite.runStore.CreateRun(
			context.Background(),
			suite.pipeline.PipelineID,
			"push",
			ref,
			"0a1b2c3d",
		)

		// assert
		suite.NoError(err)
		suite.NotNil(r)
		suite.Equal(ref, r.Ref)
		suite.Equal("push", r.TriggerKind)
		suite.Equal(StatusQueued, r.Status)
	})
	suite.Run("failure - invalid pipeline id", func() {
		// arrange
		var pipelineID int64 = 2345523

		// act
		r, err := suite.runStore.CreateRun(
			context.Background(), pipelineID, "push", "refs/heads/master", "")

		// assert
		suite.Error(err)
		var sqliteErr *sqlite.Error
		ok := errors.As(err, &sqliteErr)
		suite.True(ok)
		suite.Equal(sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, sqliteErr.Code())
		suite.Nil(r)
	})
}

func (suite *runSQLiteStoreSuite) TestRunSQLiteStore_ReadRunByID() {
	suite.Run("success - run is found", func() {
		// arrange
		expectedRun, err := suite.runStore.CreateRun(
			context.Background(), suite.pipeline.PipelineID,
			"tag", "refs/tags/v1.2.0", "0a1b2c3d")
		suite.NoError(err)

		// act
		r, err := suite.runStore.ReadRunByID(context.Background(), expectedRun.RunID)

		// assert
		suite.NoError(err)
		suite.NotNil(r)
		suite.Equal(expectedRun.Ref, r.Ref)
		suite.Equal(expectedRun.TriggerKind, r.TriggerKind)
		suite.Equal(expectedRun.Status, r.Status)
	})
	suite.Run("failure - run is not found", func() {
		// arrange
		var runID int64 = 3432452

		// act
		r, err := suite.runStore.ReadRunByID(context.Background(), runID)

		// assert
		suite.Error(err)
		suite.True(errors.Is(err, sql.ErrNoRows))
		suite.Nil(r)
	})
}

func (suite *runSQLiteStoreSuite) TestRunSQLiteStore_UpdateRunStartedOn() {
	suite.Run("success - run started on updates", func() {
		// arrange
		expectedRun, err := suite.runStore.CreateRun(
			context.Background(), suite.pipeline.PipelineID,
			"push", "refs/heads/master", "")
		suite.NoError(err)

		// act
		now := time.Now().UTC()
		updateErr := suite.runStore.UpdateRunStartedOn(
			context.Background(),
			expectedRun.RunID,
			now.Format(internal.RunDirLayout),
			StatusRunning,
			&now,
		)
		r, readErr := suite.runStore.ReadRunByID(
			context.Background(), expectedRun.RunID)

		// assert
		suite.NoError(updateErr)
		suite.NoError(readErr)
		suite.NotNil(r)
		suite.Equal(StatusRunning, r.Status)
		suite.NotNil(r.StartedOn)
		suite.WithinDuration(now, *r.StartedOn, time.Second)
	})
}

func (suite *runSQLiteStoreSuite) TestRunSQLiteStore_UpdateRunEndedOn() {
	suite.Run("success - run ended on updates", func() {
		// arrange
		expectedRun, err := suite.runStore.CreateRun(
			context.Background(), suite.pipeline.PipelineID,
			"push", "refs/heads/master", "")
		suite.NoError(err)

		// act
		now := time.Now().UTC()
		updateErr := suite.runStore.UpdateRunEndedOn(
			context.Background(),
			expectedRun.RunID,
			StatusPassed,
			&now,
		)
		r, readErr := suite.runStore.ReadRunByID(
			context.Background(), expectedRun.RunID)

		// assert
		suite.NoError(updateErr)
		suite.NoError(readErr)
		suite.NotNil(r)
		suite.Equal(StatusPassed, r.Status)
		suite.NotNil(r.EndedOn)
		suite.WithinDuration(now, *r.EndedOn, time.Second)
	})
}

func (suite *runSQLiteStoreSuite) TestRunSQLiteStore_AppendRunOutput() {
	suite.Run("success - output accumulates", func() {
		// arrange
		r, err := suite.runStore.CreateRun(
			context.Background(), suite.pipeline.PipelineID,
			"push", "refs/heads/master", "")
		suite.NoError(err)

		// act
		suite.NoError(suite.runStore.AppendRunOutput(
			context.Background(), r.RunID, "line one\n"))
		suite.NoError(suite.runStore.AppendRunOutput(
			context.Background(), r.RunID, "line two\n"))
		got, readErr := suite.runStore.ReadRunByID(context.Background(), r.RunID)

		// assert
		suite.NoError(readErr)
		suite.NotNil(got.Output)
		suite.Equal("line one\nline two\n", *got.Output)
	})
}

func (suite *runSQLiteStoreSuite) TestRunSQLiteStore_DeleteRun() {
	suite.Run("success - run is deleted", func() {
		// arrange
		expectedRun, err := suite.runStore.CreateRun(
			context.Background(), suite.pipeline.PipelineID,
			"push", "refs/heads/master", "")
		suite.NoError(err)

		// act
		deleteErr := suite.runStore.DeleteRun(
			context.Background(), expectedRun.RunID)
		r, readErr := suite.runStore.ReadRunByID(
			context.Background(), expectedRun.RunID)

		// assert
		suite.NoError(deleteErr)
		suite.Error(readErr)
		suite.True(errors.Is(readErr, sql.ErrNoRows))
		suite.Nil(r)
	})
}

func (suite *runSQLiteStoreSuite) TestRunSQLiteStore_ListPipelineRuns() {
	suite.Run("success - pipeline runs found", func() {
		// arrange
		expectedRun, err := suite.runStore.CreateRun(
			context.Background(), suite.pipeline.PipelineID,
			"schedule", "refs/heads/master", "")
		suite.NoError(err)

		// act
		runs, err := suite.runStore.ListPipelineRuns(
			context.Background(), suite.pipeline.PipelineID)

		// assert
		suite.NoError(err)
		suite.True(len(runs) >= 1)
		suite.True(slices.ContainsFunc(runs, func(r Run) bool {
			return expectedRun.RunID == r.RunID
		}))
	})
}
