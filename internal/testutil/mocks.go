package testutil

import (
	"context"

	"github.com/hakola/stageflow/internal/service"
	"github.com/hakola/stageflow/internal/store"
	"github.com/hakola/stageflow/internal/workflow"
	"github.com/stretchr/testify/mock"
)

type MockPipelineService struct {
	mock.Mock
}

func (m *MockPipelineService) CreatePipeline(
	ctx context.Context,
	name, description, repository, scriptPath, mainBranch string,
) (*store.Pipeline, error) {
	args := m.Called(ctx, name, description, repository, scriptPath, mainBranch)
	return args.Get(0).(*store.Pipeline), args.Error(1)
}

func (m *MockPipelineService) UpdatePipeline(
	ctx context.Context,
	pipelineID int64,
	name, description, repository, scriptPath, mainBranch string,
) error {
	args := m.Called(ctx, pipelineID, name, description, repository, scriptPath, mainBranch)
	return args.Error(0)
}

func (m *MockPipelineService) UpdatePipelineSchedule(
	ctx context.Context, id int64, schedule *string,
) error {
	args := m.Called(ctx, id, schedule)
	return args.Error(0)
}

func (m *MockPipelineService) DeletePipeline(ctx context.Context, pipelineID int64) error {
	args := m.Called(ctx, pipelineID)
	return args.Error(0)
}

func (m *MockPipelineService) GetPipelineByID(
	ctx context.Context, pipelineID int64,
) (*store.Pipeline, error) {
	args := m.Called(ctx, pipelineID)
	return args.Get(0).(*store.Pipeline), args.Error(1)
}

func (m *MockPipelineService) ListPipelines(ctx context.Context) ([]*store.Pipeline, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*store.Pipeline), args.Error(1)
}

func (m *MockPipelineService) ListScheduledPipelines(
	ctx context.Context,
) ([]*store.Pipeline, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*store.Pipeline), args.Error(1)
}

func (m *MockPipelineService) CreateRunForEvent(
	ctx context.Context,
	pipelineID int64,
	event workflow.Event,
) (*store.Run, error) {
	args := m.Called(ctx, pipelineID, event)
	return args.Get(0).(*store.Run), args.Error(1)
}

func (m *MockPipelineService) DeleteRun(ctx context.Context, runID int64) error {
	args := m.Called(ctx, runID)
	return args.Error(0)
}

func (m *MockPipelineService) GetRunByID(ctx context.Context, runID int64) (*store.Run, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).(*store.Run), args.Error(1)
}

func (m *MockPipelineService) ListPipelineRuns(
	ctx context.Context, pipelineID int64,
) ([]store.Run, error) {
	args := m.Called(ctx, pipelineID)
	return args.Get(0).([]store.Run), args.Error(1)
}

func (m *MockPipelineService) ListLatestPipelineRuns(
	ctx context.Context, id, limit int64,
) ([]store.Run, error) {
	args := m.Called(ctx, id, limit)
	return args.Get(0).([]store.Run), args.Error(1)
}

func (m *MockPipelineService) ListPipelineRunsPaginated(
	ctx context.Context, id, limit, offset int64,
) ([]store.Run, error) {
	args := m.Called(ctx, id, limit, offset)
	return args.Get(0).([]store.Run), args.Error(1)
}

func (m *MockPipelineService) GetRunCount(ctx context.Context, id int64) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPipelineService) GetPipelineRunQueue(id int64) (*service.RunQueue, bool) {
	args := m.Called(id)
	rq, _ := args.Get(0).(*service.RunQueue)
	return rq, args.Bool(1)
}

func (m *MockPipelineService) EnqueueRun(run *store.Run) error {
	args := m.Called(run)
	return args.Error(0)
}

type MockStageReader struct {
	mock.Mock
}

func (m *MockStageReader) ListRunStageResults(
	ctx context.Context, runID int64,
) ([]store.StageResult, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).([]store.StageResult), args.Error(1)
}

func (m *MockStageReader) ListStageCellResults(
	ctx context.Context, stageResultID int64,
) ([]store.CellResult, error) {
	args := m.Called(ctx, stageResultID)
	return args.Get(0).([]store.CellResult), args.Error(1)
}

type MockAgentService struct {
	mock.Mock
}

func (m *MockAgentService) CreateAgent(
	ctx context.Context,
	name, description, osLabel, hostname, username, workspace, privateKey string,
) (*store.Agent, error) {
	args := m.Called(ctx, name, description, osLabel, hostname, username, workspace, privateKey)
	return args.Get(0).(*store.Agent), args.Error(1)
}

func (m *MockAgentService) GetAgentByID(ctx context.Context, id int64) (*store.Agent, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*store.Agent), args.Error(1)
}

func (m *MockAgentService) UpdateAgent(
	ctx context.Context,
	id int64,
	name, description, osLabel, hostname, username, workspace string,
) error {
	args := m.Called(ctx, id, name, description, osLabel, hostname, username, workspace)
	return args.Error(0)
}

func (m *MockAgentService) DeleteAgent(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAgentService) ListAgents(ctx context.Context) ([]*store.Agent, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*store.Agent), args.Error(1)
}

func (m *MockAgentService) TestConnection(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockSecretService struct {
	mock.Mock
}

func (m *MockSecretService) CreateSecret(
	ctx context.Context, name, description, value string,
) (*store.Secret, error) {
	args := m.Called(ctx, name, description, value)
	return args.Get(0).(*store.Secret), args.Error(1)
}

func (m *MockSecretService) ListSecrets(ctx context.Context) ([]*store.Secret, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*store.Secret), args.Error(1)
}

func (m *MockSecretService) DeleteSecret(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
