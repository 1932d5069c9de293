package store

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"slices"
	"testing"

	"github.com/hakola/stageflow/internal"
	"github.com/hakola/stageflow/internal/util"
	"github.com/stretchr/testify/suite"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type pipelineSQLiteStoreSuite struct {
	pipelineStore *PipelineSQLiteStore
	db            *sql.DB
	suite.Suite
}

func TestPipelineSQLiteStore(t *testing.T) {
	suite.Run(t, new(pipelineSQLiteStoreSuite))
}

func (suite *pipelineSQLiteStoreSuite) SetupSuite() {
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

	suite.pipelineStore = NewPipelineSQLiteStore(db, db)
}

func (suite *pipelineSQLiteStoreSuite) TearDownSuite() {
	_ = suite.db.Close()
}

func (suite *pipelineSQLiteStoreSuite) createPipeline(name string) *Pipeline {
	p, err := suite.pipelineStore.CreatePipeline(
		context.Background(),
		name,
		"",
		"github.com:hakola/stageflow.git",
		".stageflow.yml",
		"master",
	)
	suite.NoError(err)
	suite.NotNil(p)
	return p
}

func (suite *pipelineSQLiteStoreSuite) TestPipelineSQLiteStore_CreatePipeline() {
	suite.Run("success - pipeline created", func() {
		// arrange
		name := "create-pipeline"

		// act
		p, err := suite.pipelineStore.CreatePipeline(
			context.Background(),
			name,
			"nightly builds",
			"github.com:hakola/stageflow.git",
			".stageflow.yml",
			"master",
		)

		// assert
		suite.NoError(err)
		suite.NotNil(p)
		suite.NotZero(p.PipelineID)
		suite.Equal(name, p.Name)
		suite.Equal("master", p.MainBranch)
		suite.Nil(p.Schedule)
		suite.Nil(p.ScheduleJobID)
	})
	suite.Run("failure - duplicate name", func() {
		// arrange
		suite.createPipeline("duplicate-pipeline")

		// act
		p, err := suite.pipelineStore.CreatePipeline(
			context.Background(),
			"duplicate-pipeline",
			"",
			"github.com:hakola/other.git",
			".stageflow.yml",
			"master",
		)

		// assert
		suite.Error(err)
		var sqliteErr *sqlite.Error
		ok := errors.As(err, &sqliteErr)
		suite.True(ok)
		suite.Equal(sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqliteErr.Code())
		suite.Nil(p)
	})
}

func (suite *pipelineSQLiteStoreSuite) TestPipelineSQLiteStore_ReadPipelineByID() {
	suite.Run("success - pipeline is found", func() {
		// arrange
		expected := suite.createPipeline("read-pipeline")

		// act
		p, err := suite.pipelineStore.ReadPipelineByID(
			context.Background(), expected.PipelineID)

		// assert
		suite.NoError(err)
		suite.NotNil(p)
		suite.Equal(expected.Name, p.Name)
		suite.Equal(expected.Repository, p.Repository)
		suite.Equal(expected.ScriptPath, p.ScriptPath)
	})
	suite.Run("failure - pipeline is not found", func() {
		// arrange
		var pipelineID int64 = 3432452

		// act
		p, err := suite.pipelineStore.ReadPipelineByID(
			context.Background(), pipelineID)

		// assert
		suite.Error(err)
		suite.True(errors.Is(err, sql.ErrNoRows))
		suite.Nil(p)
	})
}

func (suite *pipelineSQLiteStoreSuite) TestPipelineSQLiteStore_UpdatePipeline() {
	suite.Run("success - pipeline fields update", func() {
		// arrange
		p := suite.createPipeline("update-pipeline")

		// act
		updateErr := suite.pipelineStore.UpdatePipeline(
			context.Background(),
			p.PipelineID,
			"update-pipeline-renamed",
			"renamed",
			"github.com:hakola/renamed.git",
			"ci/workflow.yml",
			"main",
		)
		got, readErr := suite.pipelineStore.ReadPipelineByID(
			context.Background(), p.PipelineID)

		// assert
		suite.NoError(updateErr)
		suite.NoError(readErr)
		suite.NotNil(got)
		suite.Equal("update-pipeline-renamed", got.Name)
		suite.Equal("renamed", got.Description)
		suite.Equal("github.com:hakola/renamed.git", got.Repository)
		suite.Equal("ci/workflow.yml", got.ScriptPath)
		suite.Equal("main", got.MainBranch)
	})
}

func (suite *pipelineSQLiteStoreSuite) TestPipelineSQLiteStore_UpdatePipelineSchedule() {
	suite.Run("success - schedule and job id are set", func() {
		// arrange
		p := suite.createPipeline("schedule-pipeline")
		schedule := util.AsPtr("0 6 * * *")
		jobID := util.AsPtr("9a3e6fd2-56a1-4f8e-8f50-111111111111")

		// act
		updateErr := suite.pipelineStore.UpdatePipelineSchedule(
			context.Background(), p.PipelineID, schedule, jobID)
		got, readErr := suite.pipelineStore.ReadPipelineByID(
			context.Background(), p.PipelineID)

		// assert
		suite.NoError(updateErr)
		suite.NoError(readErr)
		suite.NotNil(got.Schedule)
		suite.Equal(*schedule, *got.Schedule)
		suite.NotNil(got.ScheduleJobID)
		suite.Equal(*jobID, *got.ScheduleJobID)
	})
	suite.Run("success - nil schedule clears both columns", func() {
		// arrange
		p := suite.createPipeline("schedule-clear-pipeline")
		suite.NoError(suite.pipelineStore.UpdatePipelineSchedule(
			context.Background(),
			p.PipelineID,
			util.AsPtr("0 6 * * *"),
			util.AsPtr("9a3e6fd2-56a1-4f8e-8f50-222222222222"),
		))

		// act
		updateErr := suite.pipelineStore.UpdatePipelineSchedule(
			context.Background(), p.PipelineID, nil, nil)
		got, readErr := suite.pipelineStore.ReadPipelineByID(
			context.Background(), p.PipelineID)

		// assert
		suite.NoError(updateErr)
		suite.NoError(readErr)
		suite.Nil(got.Schedule)
		suite.Nil(got.ScheduleJobID)
	})
}

func (suite *pipelineSQLiteStoreSuite) TestPipelineSQLiteStore_UpdatePipelineScheduleJobID() {
	suite.Run("success - job id replaced, schedule untouched", func() {
		// arrange
		p := suite.createPipeline("jobid-pipeline")
		suite.NoError(suite.pipelineStore.UpdatePipelineSchedule(
			context.Background(),
			p.PipelineID,
			util.AsPtr("30 5 * * *"),
			util.AsPtr("9a3e6fd2-56a1-4f8e-8f50-333333333333"),
		))
		newJobID := util.AsPtr("9a3e6fd2-56a1-4f8e-8f50-444444444444")

		// act
		updateErr := suite.pipelineStore.UpdatePipelineScheduleJobID(
			context.Background(), p.PipelineID, newJobID)
		got, readErr := suite.pipelineStore.ReadPipelineByID(
			context.Background(), p.PipelineID)

		// assert
		suite.NoError(updateErr)
		suite.NoError(readErr)
		suite.NotNil(got.Schedule)
		suite.Equal("30 5 * * *", *got.Schedule)
		suite.NotNil(got.ScheduleJobID)
		suite.Equal(*newJobID, *got.ScheduleJobID)
	})
}

func (suite *pipelineSQLiteStoreSuite) TestPipelineSQLiteStore_DeletePipeline() {
	suite.Run("success - pipeline is deleted", func() {
		// arrange
		p := suite.createPipeline("delete-pipeline")

		// act
		deleteErr := suite.pipelineStore.DeletePipeline(
			context.Background(), p.PipelineID)
		got, readErr := suite.pipelineStore.ReadPipelineByID(
			context.Background(), p.PipelineID)

		// assert
		suite.NoError(deleteErr)
		suite.Error(readErr)
		suite.True(errors.Is(readErr, sql.ErrNoRows))
		suite.Nil(got)
	})
}

func (suite *pipelineSQLiteStoreSuite) TestPipelineSQLiteStore_ListPipelines() {
	suite.Run("success - pipelines found", func() {
		// arrange
		expected := suite.createPipeline("list-pipeline")

		// act
		pipelines, err := suite.pipelineStore.ListPipelines(context.Background())

		// assert
		suite.NoError(err)
		suite.True(len(pipelines) >= 1)
		suite.True(slices.ContainsFunc(pipelines, func(p *Pipeline) bool {
			return expected.PipelineID == p.PipelineID
		}))
	})
}

func (suite *pipelineSQLiteStoreSuite) TestPipelineSQLiteStore_ListScheduledPipelines() {
	suite.Run("success - only pipelines with a schedule are listed", func() {
		// arrange
		scheduled := suite.createPipeline("list-scheduled-pipeline")
		unscheduled := suite.createPipeline("list-unscheduled-pipeline")
		suite.NoError(suite.pipelineStore.UpdatePipelineSchedule(
			context.Background(),
			scheduled.PipelineID,
			util.AsPtr("0 6 * * *"),
			util.AsPtr("9a3e6fd2-56a1-4f8e-8f50-555555555555"),
		))

		// act
		pipelines, err := suite.pipelineStore.ListScheduledPipelines(
			context.Background())

		// assert
		suite.NoError(err)
		suite.True(slices.ContainsFunc(pipelines, func(p *Pipeline) bool {
			return scheduled.PipelineID == p.PipelineID
		}))
		suite.False(slices.ContainsFunc(pipelines, func(p *Pipeline) bool {
			return unscheduled.PipelineID == p.PipelineID
		}))
	})
}
