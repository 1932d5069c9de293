package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hakola/stageflow/internal"
	"github.com/hakola/stageflow/internal/store"
	"github.com/hakola/stageflow/internal/workflow"
)

// WorkflowLoader fetches and parses the pipeline's workflow script at
// the run's commit.
type WorkflowLoader interface {
	LoadWorkflow(ctx context.Context, rc *RunContext, scriptPath string) (*workflow.Workflow, error)
}

// SecretResolver decrypts the named secrets for a run's context.
type SecretResolver interface {
	ResolveSecrets(ctx context.Context, names []string) (map[string]string, error)
}

// RunServicer is the slice of run persistence the queue needs.
type RunServicer interface {
	GetPipelineByID(ctx context.Context, id int64) (*store.Pipeline, error)
	GetRunByID(ctx context.Context, id int64) (*store.Run, error)
	UpdateRunStartedOn(ctx context.Context, id int64, workdir string, status store.RunStatus, startedOn *time.Time) error
	UpdateRunEndedOn(ctx context.Context, id int64, status store.RunStatus, endedOn *time.Time) error
	AppendRunOutput(ctx context.Context, id int64, output string) error
}

func NewRunQueue(
	runService RunServicer,
	loader WorkflowLoader,
	orchestrator *Orchestrator,
	secrets SecretResolver,
	maxRuns int64,
	e2eWorkersOverride int64,
	forceColor bool,
) *RunQueue {
	return &RunQueue{
		runService:         runService,
		loader:             loader,
		orchestrator:       orchestrator,
		secrets:            secrets,
		OutputSSEClients:   NewSSEClientMap[string](),
		StatusSSEClients:   NewSSEClientMap[store.Run](),
		queue:              make(chan *store.Run, maxRuns),
		done:               make(chan struct{}),
		cancelRunMap:       NewCancelMap[int64](),
		e2eWorkersOverride: e2eWorkersOverride,
		forceColor:         forceColor,
	}
}

// RunQueue processes one pipeline's runs sequentially: runs never
// overlap within a pipeline, and a full queue rejects new runs rather
// than blocking the webhook.
type RunQueue struct {
	runService   RunServicer
	loader       WorkflowLoader
	orchestrator *Orchestrator
	secrets      SecretResolver

	OutputSSEClients *SSEClientMap[string]
	StatusSSEClients *SSEClientMap[store.Run]

	queue        chan *store.Run
	done         chan struct{}
	cancelRunMap *CancelMap[int64]

	e2eWorkersOverride int64
	forceColor         bool

	outputCh chan string
	statusCh chan store.Run
	mu       sync.Mutex
}

func (rq *RunQueue) CancelRun(runID int64) {
	rq.cancelRunMap.Call(runID)
}

func (rq *RunQueue) Enqueue(r *store.Run) error {
	select {
	case rq.queue <- r:
		return nil
	default:
		return NewErrRunQueueFull()
	}
}

func (rq *RunQueue) Run() {
	for {
		select {
		case run := <-rq.queue:
			rq.outputCh = make(chan string)
			rq.statusCh = make(chan store.Run)

			ctx, cancel := context.WithCancel(context.Background())
			rq.cancelRunMap.AddCancel(run.RunID, cancel)

			go rq.handleOutput(ctx, run.RunID)
			go rq.handleStatus()

			if err := rq.processRun(ctx, run); err != nil {
				endedOn := time.Now().UTC()
				run.EndedOn = &endedOn
				if _, ok := err.(RunCancelError); ok {
					run.Status = store.StatusCancelled
				} else {
					run.Status = store.StatusFailed
				}
				if sqlErr := rq.runService.UpdateRunEndedOn(
					context.Background(),
					run.RunID,
					run.Status,
					run.EndedOn,
				); sqlErr != nil {
					log.Println("err updating run status to failed:", errors.Join(err, sqlErr))
				}
				log.Println("err processing run:", err)
				r, err := rq.runService.GetRunByID(context.Background(), run.RunID)
				if err != nil {
					log.Println("err getting run by id")
				} else {
					run = r
					rq.statusCh <- *r
				}

				failMessage := `
=============================================
FAIL || Run execution failed.
=============================================
`
				rq.outputCh <- failMessage
			}

			close(rq.outputCh)
			close(rq.statusCh)
			rq.cancelRunMap.RemoveCancel(run.RunID)
		case <-rq.done:
			close(rq.queue)
			return
		}
	}
}

func (rq *RunQueue) Shutdown() {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	select {
	case <-rq.done:
	default:
		close(rq.done)
	}
}

func (rq *RunQueue) handleOutput(ctx context.Context, runID int64) {
	for out := range rq.outputCh {
		if err := rq.runService.AppendRunOutput(ctx, runID, out); err != nil {
			log.Printf("err appending run output: %+v\n", err)
		}
		rq.OutputSSEClients.SendToClients(out)
	}
}

func (rq *RunQueue) handleStatus() {
	for r := range rq.statusCh {
		rq.StatusSSEClients.SendToClients(r)
	}
}

func (rq *RunQueue) processRun(ctx context.Context, run *store.Run) error {
	pipeline, err := rq.runService.GetPipelineByID(ctx, run.RunPipelineID)
	if err != nil {
		rq.outputCh <- fmt.Sprintf("err getting pipeline: %+v\n", err)
		return err
	}
	workdir := time.Now().UTC().Format(internal.RunDirLayout)

	run.Status = store.StatusRunning
	startedOn := time.Now().UTC()
	run.StartedOn = &startedOn

	if err := rq.runService.UpdateRunStartedOn(
		context.Background(),
		run.RunID,
		workdir,
		run.Status,
		run.StartedOn,
	); err != nil {
		rq.outputCh <- "err updating run started on"
		return err
	}

	r, err := rq.runService.GetRunByID(context.Background(), run.RunID)
	if err != nil {
		rq.outputCh <- "err getting run by ID"
		return err
	}
	run = r
	rq.statusCh <- *r

	event := workflow.NewEvent(
		workflow.TriggerKind(run.TriggerKind), run.Ref, run.CommitSHA)
	rc := &RunContext{
		Run:                run,
		Pipeline:           pipeline,
		Event:              event,
		Workdir:            workdir,
		E2EWorkersOverride: rq.e2eWorkersOverride,
		ForceColor:         rq.forceColor,
	}

	wf, err := rq.loader.LoadWorkflow(ctx, rc, pipeline.ScriptPath)
	if err != nil {
		rq.outputCh <- fmt.Sprintf("err loading workflow script: %+v\n", err)
		return err
	}
	rq.outputCh <- "Parsed workflow script. Starting run execution...\n"

	rc.Secrets, err = rq.secrets.ResolveSecrets(ctx, secretNames(wf))
	if err != nil {
		rq.outputCh <- fmt.Sprintf("err resolving secrets: %+v\n", err)
		return err
	}

	outcomes, err := rq.orchestrator.Execute(
		ctx, rc, wf, func(s string) { rq.outputCh <- s })
	if err != nil {
		return err
	}
	if status := RunStatusFromOutcomes(outcomes); status == store.StatusFailed {
		return fmt.Errorf("one or more stages failed")
	}

	passMessage := `
=============================================
PASS || Executed run stages successfully.
=============================================
`
	rq.outputCh <- passMessage

	run.Status = store.StatusPassed
	endedOn := time.Now().UTC()
	run.EndedOn = &endedOn
	if err := rq.runService.UpdateRunEndedOn(
		context.Background(),
		run.RunID,
		run.Status,
		run.EndedOn,
	); err != nil {
		rq.outputCh <- "err updating run ended on"
		return err
	}

	r, err = rq.runService.GetRunByID(context.Background(), run.RunID)
	if err != nil {
		rq.outputCh <- "err getting run by id"
		return err
	}

	run = r
	rq.statusCh <- *r

	return nil
}

// secretNames collects the union of every stage's declared secrets,
// preserving first-seen order.
func secretNames(wf *workflow.Workflow) []string {
	seen := make(map[string]struct{})
	names := []string{}
	for i := range wf.Stages {
		for _, name := range wf.Stages[i].Secrets {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}
