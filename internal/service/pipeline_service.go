package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/hakola/stageflow/internal"
	"github.com/hakola/stageflow/internal/store"
	"github.com/hakola/stageflow/internal/util"
	"github.com/hakola/stageflow/internal/workflow"
)

type PipelineService struct {
	pipelineStore store.PipelineStore
	runStore      store.RunStore
	loader        WorkflowLoader
	orchestrator  *Orchestrator
	secrets       SecretResolver
	scheduler     gocron.Scheduler

	e2eWorkersOverride int64
	forceColor         bool

	mu     sync.Mutex
	queues map[int64]*RunQueue
}

func NewPipelineService(
	pipelineStore store.PipelineStore,
	runStore store.RunStore,
	loader WorkflowLoader,
	orchestrator *Orchestrator,
	secrets SecretResolver,
	scheduler gocron.Scheduler,
	e2eWorkersOverride int64,
	forceColor bool,
) *PipelineService {
	return &PipelineService{
		pipelineStore:      pipelineStore,
		runStore:           runStore,
		loader:             loader,
		orchestrator:       orchestrator,
		secrets:            secrets,
		scheduler:          scheduler,
		e2eWorkersOverride: e2eWorkersOverride,
		forceColor:         forceColor,
		queues:             make(map[int64]*RunQueue),
	}
}

func (s *PipelineService) InitializeRunQueues(ctx context.Context) error {
	pipelines, err := s.ListPipelines(ctx)
	if err != nil {
		return err
	}

	ids := make([]int64, len(pipelines))
	for i, p := range pipelines {
		ids[i] = p.PipelineID
	}

	s.AddRunQueues(ids, internal.Config.QueueSize)
	s.StartRunQueues()
	return nil
}

// ResumeSchedules re-registers the scheduled job for every pipeline
// with a stored cron expression, replacing its stale job ID.
func (s *PipelineService) ResumeSchedules(ctx context.Context) error {
	pipelines, err := s.ListScheduledPipelines(ctx)
	if err != nil {
		return err
	}
	for _, p := range pipelines {
		if p.Schedule == nil {
			continue
		}
		jobID, err := s.SchedulePipelineRun(p.PipelineID, *p.Schedule, p.MainBranch)
		if err != nil {
			return err
		}
		if err := s.pipelineStore.UpdatePipelineScheduleJobID(
			ctx, p.PipelineID, jobID,
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *PipelineService) CreatePipeline(
	ctx context.Context,
	name, description, repository, scriptPath, mainBranch string,
) (*store.Pipeline, error) {
	if mainBranch == "" {
		mainBranch = internal.MainBranch
	}
	p, err := s.pipelineStore.CreatePipeline(
		ctx,
		name,
		description,
		repository,
		scriptPath,
		mainBranch,
	)
	if err != nil {
		return nil, err
	}
	s.AddRunQueue(p.PipelineID, internal.Config.QueueSize)
	if err := s.StartRunQueue(p.PipelineID); err != nil {
		return p, err
	}
	return p, nil
}

func (s *PipelineService) GetPipelineByID(
	ctx context.Context,
	pipelineID int64,
) (*store.Pipeline, error) {
	return s.pipelineStore.ReadPipelineByID(ctx, pipelineID)
}

func (s *PipelineService) ListPipelines(
	ctx context.Context,
) ([]*store.Pipeline, error) {
	pipelines, err := s.pipelineStore.ListPipelines(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return pipelines, nil
}

func (s *PipelineService) ListScheduledPipelines(
	ctx context.Context,
) ([]*store.Pipeline, error) {
	pipelines, err := s.pipelineStore.ListScheduledPipelines(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return pipelines, nil
}

func (s *PipelineService) UpdatePipeline(
	ctx context.Context,
	pipelineID int64,
	name, description, repository, scriptPath, mainBranch string,
) error {
	return s.pipelineStore.UpdatePipeline(
		ctx,
		pipelineID,
		name,
		description,
		repository,
		scriptPath,
		mainBranch,
	)
}

func (s *PipelineService) UpdatePipelineSchedule(
	ctx context.Context,
	id int64,
	schedule *string,
) error {
	p, err := s.pipelineStore.ReadPipelineByID(ctx, id)
	if err != nil {
		return err
	}

	if schedule == nil {
		if p.Schedule != nil && p.ScheduleJobID != nil && s.scheduler != nil {
			if err := s.scheduler.RemoveJob(uuid.MustParse(*p.ScheduleJobID)); err != nil {
				log.Println("unable to remove existing job: ", err)
			}
		}
		return s.pipelineStore.UpdatePipelineSchedule(ctx, p.PipelineID, nil, nil)
	}

	jobID, err := s.SchedulePipelineRun(p.PipelineID, *schedule, p.MainBranch)
	if err != nil {
		return err
	}
	return s.pipelineStore.UpdatePipelineSchedule(
		ctx,
		p.PipelineID,
		schedule,
		jobID,
	)
}

func (s *PipelineService) DeletePipeline(
	ctx context.Context, pipelineID int64,
) error {
	if err := s.pipelineStore.DeletePipeline(ctx, pipelineID); err != nil {
		return err
	}
	s.RemoveRunQueue(pipelineID)
	return nil
}

// CreateRunForEvent records a queued run for a trigger event. The
// event columns are immutable once inserted.
func (s *PipelineService) CreateRunForEvent(
	ctx context.Context,
	pipelineID int64,
	event workflow.Event,
) (*store.Run, error) {
	return s.runStore.CreateRun(
		ctx, pipelineID, string(event.Kind), event.Ref, event.SHA)
}

func (s *PipelineService) GetRunByID(
	ctx context.Context, runID int64,
) (*store.Run, error) {
	return s.runStore.ReadRunByID(ctx, runID)
}

func (s *PipelineService) UpdateRunStartedOn(
	ctx context.Context,
	runID int64,
	workingDirectory string,
	status store.RunStatus,
	startedOn *time.Time,
) error {
	return s.runStore.UpdateRunStartedOn(
		ctx, runID, workingDirectory, status, startedOn,
	)
}

func (s *PipelineService) UpdateRunEndedOn(
	ctx context.Context,
	runID int64,
	status store.RunStatus,
	endedOn *time.Time,
) error {
	return s.runStore.UpdateRunEndedOn(ctx, runID, status, endedOn)
}

func (s *PipelineService) AppendRunOutput(
	ctx context.Context,
	runID int64,
	out string,
) error {
	return s.runStore.AppendRunOutput(ctx, runID, out)
}

func (s *PipelineService) DeleteRun(
	ctx context.Context, runID int64,
) error {
	return s.runStore.DeleteRun(ctx, runID)
}

func (s *PipelineService) ListPipelineRuns(
	ctx context.Context,
	pipelineID int64,
) ([]store.Run, error) {
	runs, err := s.runStore.ListPipelineRuns(ctx, pipelineID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return runs, nil
}

func (s *PipelineService) ListLatestPipelineRuns(
	ctx context.Context,
	pipelineID, limit int64,
) ([]store.Run, error) {
	return s.runStore.ListLatestPipelineRuns(ctx, pipelineID, limit)
}

func (s *PipelineService) ListPipelineRunsPaginated(
	ctx context.Context,
	pipelineID, limit, offset int64,
) ([]store.Run, error) {
	return s.runStore.ListPipelineRunsPaginated(
		ctx, pipelineID, limit, offset,
	)
}

func (s *PipelineService) GetRunCount(
	ctx context.Context, id int64,
) (int64, error) {
	return s.runStore.CountPipelineRuns(ctx, id)
}

// SchedulePipelineRun registers a cron job that records and enqueues
// a schedule-kind run on the pipeline's main branch.
func (s *PipelineService) SchedulePipelineRun(
	pipelineID int64,
	schedule, branch string,
) (*string, error) {
	if s.scheduler == nil {
		return nil, nil
	}
	job, err := s.scheduler.NewJob(
		gocron.CronJob(schedule, false),
		gocron.NewTask(func() {
			event := workflow.NewEvent(
				workflow.TriggerSchedule, "refs/heads/"+branch, "")
			r, err := s.CreateRunForEvent(context.Background(), pipelineID, event)
			if err != nil {
				log.Println("err creating scheduled run:", err)
				return
			}
			if err := s.EnqueueRun(r); err != nil {
				log.Println("queue is full")
			}
		}))
	if err != nil {
		return nil, fmt.Errorf("error scheduling pipeline job: %w", err)
	}
	return util.AsPtr(job.ID().String()), nil
}

func (s *PipelineService) newRunQueue(maxRuns int64) *RunQueue {
	return NewRunQueue(
		s,
		s.loader,
		s.orchestrator,
		s.secrets,
		maxRuns,
		s.e2eWorkersOverride,
		s.forceColor,
	)
}

func (s *PipelineService) AddRunQueues(ids []int64, maxRuns int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.queues[id] = s.newRunQueue(maxRuns)
	}
}

func (s *PipelineService) StartRunQueues() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.queues {
		go s.queues[i].Run()
	}
}

func (s *PipelineService) AddRunQueue(id int64, maxRuns int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[id] = s.newRunQueue(maxRuns)
}

func (s *PipelineService) StartRunQueue(id int64) error {
	rq, ok := s.GetPipelineRunQueue(id)
	if !ok {
		return fmt.Errorf("run queue for pipeline %d does not exist", id)
	}
	go rq.Run()
	return nil
}

func (s *PipelineService) GetPipelineRunQueue(id int64) (*RunQueue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rq, ok := s.queues[id]
	return rq, ok
}

func (s *PipelineService) RemoveRunQueue(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queues, id)
}

func (s *PipelineService) EnqueueRun(r *store.Run) error {
	rq, ok := s.GetPipelineRunQueue(r.RunPipelineID)
	if !ok {
		return fmt.Errorf("run queue for pipeline %d does not exist", r.RunPipelineID)
	}
	return rq.Enqueue(r)
}

func (s *PipelineService) ShutdownAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var wg sync.WaitGroup
	for _, rq := range s.queues {
		wg.Go(func() {
			rq.Shutdown()
		})
	}
	wg.Wait()
}
