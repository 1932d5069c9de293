package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/hakola/stageflow/internal"
	"github.com/hakola/stageflow/internal/store"
	"github.com/hakola/stageflow/internal/workflow"
)

// RunContext is the read-only per-run configuration handed to every
// stage invocation: the trigger event, the pipeline row, the run's
// working directory on the agents and the resolved secrets. Nothing
// in it changes once the run starts.
type RunContext struct {
	Run      *store.Run
	Pipeline *store.Pipeline
	Event    workflow.Event
	Workdir  string
	Secrets  map[string]string

	E2EWorkersOverride int64
	ForceColor         bool
}

type Orchestrator struct {
	executors  ExecutorProvider
	stageStore store.StageStore
	cache      *CacheService
	coverage   CoverageUploader
	trigger    TriggerNotifier
	index      IndexUploader
	artifacts  ArtifactStore
}

func NewOrchestrator(
	executors ExecutorProvider,
	stageStore store.StageStore,
	cache *CacheService,
	coverage CoverageUploader,
	trigger TriggerNotifier,
	index IndexUploader,
	artifacts ArtifactStore,
) *Orchestrator {
	return &Orchestrator{
		executors:  executors,
		stageStore: stageStore,
		cache:      cache,
		coverage:   coverage,
		trigger:    trigger,
		index:      index,
		artifacts:  artifacts,
	}
}

// RunStatusFromOutcomes reduces stage outcomes to the run status: a
// run passes when no stage failed; skipped stages never fail a run.
func RunStatusFromOutcomes(outcomes map[string]store.StageStatus) store.RunStatus {
	for _, status := range outcomes {
		if status == store.StageFailed {
			return store.StatusFailed
		}
	}
	return store.StatusPassed
}

// Execute walks the workflow's stages in dependency order. A stage
// runs only when every predecessor passed and its when-predicate
// holds for the run's event; otherwise it is skipped, never failed.
// A failed stage fails the run but independent stages still execute.
func (o *Orchestrator) Execute(
	ctx context.Context,
	rc *RunContext,
	wf *workflow.Workflow,
	out func(string),
) (map[string]store.StageStatus, error) {
	order, err := wf.TopoOrder()
	if err != nil {
		return nil, err
	}

	outcomes := make(map[string]store.StageStatus, len(order))
	for _, stage := range order {
		if ctx.Err() != nil {
			return outcomes, RunCancelError{Message: "run cancelled"}
		}

		sr, err := o.stageStore.CreateStageResult(
			context.Background(), rc.Run.RunID, stage.Stage)
		if err != nil {
			return outcomes, err
		}

		if reason, blocked := blockedBy(stage, outcomes); blocked {
			outcomes[stage.Stage] = store.StageSkipped
			out(fmt.Sprintf("Skipping stage '%s' (%s)\n", stage.Stage, reason))
			if err := o.stageStore.UpdateStageResult(
				context.Background(), sr.StageResultID, store.StageSkipped, nil, nil,
			); err != nil {
				return outcomes, err
			}
			continue
		}
		if !stage.When.Matches(rc.Event) {
			outcomes[stage.Stage] = store.StageSkipped
			out(fmt.Sprintf(
				"Skipping stage '%s' (run condition not met for %s %s)\n",
				stage.Stage, rc.Event.Kind, rc.Event.Ref,
			))
			if err := o.stageStore.UpdateStageResult(
				context.Background(), sr.StageResultID, store.StageSkipped, nil, nil,
			); err != nil {
				return outcomes, err
			}
			continue
		}

		out(fmt.Sprintf("Executing stage '%s'\n", stage.Stage))
		startedOn := time.Now().UTC()
		status := o.executeStage(ctx, rc, stage, sr.StageResultID, out)
		endedOn := time.Now().UTC()
		outcomes[stage.Stage] = status
		if err := o.stageStore.UpdateStageResult(
			context.Background(), sr.StageResultID, status, &startedOn, &endedOn,
		); err != nil {
			return outcomes, err
		}
		out(fmt.Sprintf("Stage '%s' %s\n", stage.Stage, status))
	}

	if ctx.Err() != nil {
		return outcomes, RunCancelError{Message: "run cancelled"}
	}
	return outcomes, nil
}

func blockedBy(
	stage *workflow.Stage,
	outcomes map[string]store.StageStatus,
) (string, bool) {
	for _, need := range stage.Needs {
		if outcomes[need] != store.StagePassed {
			return fmt.Sprintf("stage '%s' did not pass", need), true
		}
	}
	return "", false
}

// executeStage fans the stage out into its matrix cells and runs them
// in parallel. Cells are independent: one cell failing neither
// cancels nor reorders its siblings, and every cell's log is kept.
func (o *Orchestrator) executeStage(
	ctx context.Context,
	rc *RunContext,
	stage *workflow.Stage,
	stageResultID int64,
	out func(string),
) store.StageStatus {
	stageTimeout := internal.Config.DefaultStageTimeout.Duration()
	if stage.TimeoutSeconds > 0 {
		stageTimeout = time.Duration(stage.TimeoutSeconds) * time.Second
	}
	stageCtx, cancel := context.WithTimeout(ctx, stageTimeout)
	defer cancel()

	cells := stage.Matrix.Expand()
	statuses := make([]store.StageStatus, len(cells))

	var wg sync.WaitGroup
	for i, cell := range cells {
		wg.Add(1)
		go func(i int, cell workflow.Cell) {
			defer wg.Done()
			statuses[i] = o.executeCell(stageCtx, rc, stage, stageResultID, cell, out)
		}(i, cell)
	}
	wg.Wait()

	status := store.StagePassed
	for _, s := range statuses {
		if s != store.StagePassed {
			status = store.StageFailed
		}
	}

	// the trigger call fires once per stage, not per cell, and only
	// after every cell passed
	if status == store.StagePassed && stage.Notify != nil {
		out(fmt.Sprintf("Triggering downstream build for branch '%s'\n", stage.Notify.Branch))
		if err := o.trigger.Fire(stageCtx, stage.Notify.Branch); err != nil {
			out(fmt.Sprintf("err triggering downstream build: %+v\n", err))
			status = store.StageFailed
		}
	}

	return status
}

func (o *Orchestrator) executeCell(
	ctx context.Context,
	rc *RunContext,
	stage *workflow.Stage,
	stageResultID int64,
	cell workflow.Cell,
	out func(string),
) store.StageStatus {
	cr, err := o.stageStore.CreateCellResult(
		context.Background(), stageResultID, cell.OS, cell.Version)
	if err != nil {
		out(fmt.Sprintf("err creating cell result: %+v\n", err))
		return store.StageFailed
	}

	logBuf := new(strings.Builder)
	prefix := fmt.Sprintf("  [%s/%s]  ", stage.Stage, cell.Label())
	cellOut := func(s string) {
		logBuf.WriteString(s)
		out(prefix + s)
	}

	status := o.runCellSteps(ctx, rc, stage, cell, cr.CellResultID, cellOut)

	cellLog := logBuf.String()
	archiveArtifact(
		context.Background(), o.artifacts,
		rc.Run.RunID, stage.Stage, cell.Label(),
		"log.txt", []byte(cellLog), "text/plain",
	)

	endedOn := time.Now().UTC()
	if err := o.stageStore.UpdateCellResultEnded(
		context.Background(), cr.CellResultID, status, &cellLog, &endedOn,
	); err != nil {
		out(fmt.Sprintf("err updating cell result: %+v\n", err))
		return store.StageFailed
	}
	return status
}

func (o *Orchestrator) runCellSteps(
	ctx context.Context,
	rc *RunContext,
	stage *workflow.Stage,
	cell workflow.Cell,
	cellResultID int64,
	cellOut func(string),
) store.StageStatus {
	ex, err := o.executors.ExecutorFor(ctx, rc, cell)
	if err != nil {
		cellOut(fmt.Sprintf("err preparing executor: %+v\n", err))
		return store.StageFailed
	}
	defer ex.Close()

	var cacheKey *string
	cacheHit := false
	if stage.Cache != nil {
		lookup, err := o.lookupCache(ctx, ex, stage, cell)
		if err != nil {
			// a broken cache lookup must not change the outcome, only
			// the wall clock: fall through to a full install
			cellOut(fmt.Sprintf("cache lookup failed, installing from scratch: %+v\n", err))
		} else {
			cacheKey = &lookup.Key
			cacheHit = lookup.Hit
			switch {
			case lookup.Hit:
				cellOut(fmt.Sprintf("Cache hit for key %s\n", lookup.Key))
			case lookup.Restored != nil:
				cellOut(fmt.Sprintf("Cache restored from fallback key %s\n", lookup.Restored.Key))
			default:
				cellOut(fmt.Sprintf("Cache miss for key %s\n", lookup.Key))
			}
		}
	}

	startedOn := time.Now().UTC()
	if err := o.stageStore.UpdateCellResultStarted(
		context.Background(), cellResultID, cacheKey, cacheHit, &startedOn,
	); err != nil {
		cellOut(fmt.Sprintf("err updating cell result: %+v\n", err))
		return store.StageFailed
	}

	env := o.cellEnv(rc, stage, cell)
	for _, step := range stage.Steps {
		if step.Install && cacheHit {
			cellOut(fmt.Sprintf("Skipping install step '%s' (cache hit)\n", step.Step))
			continue
		}
		stepTimeout := internal.Config.DefaultStepTimeout.Duration()
		if step.TimeoutSeconds > 0 {
			stepTimeout = time.Duration(step.TimeoutSeconds) * time.Second
		}
		cellOut(fmt.Sprintf("  |  Executing step '%s'\n", step.Step))
		if err := ex.RunStep(ctx, step, env, stepTimeout, cellOut); err != nil {
			cellOut(fmt.Sprintf("step '%s' failed: %+v\n", step.Step, err))
			return store.StageFailed
		}
	}

	if stage.Cache != nil && cacheKey != nil && !cacheHit {
		depsPath := path.Join(rc.Workdir, cell.Label())
		if err := o.cache.Save(context.Background(), *cacheKey, depsPath); err != nil {
			cellOut(fmt.Sprintf("err saving cache entry: %+v\n", err))
		}
	}

	if stage.Coverage != "" {
		if err := o.uploadCoverage(ctx, rc, stage, cell, ex); err != nil {
			// reporting is part of the success contract: a coverage
			// upload failure fails the cell even after green tests
			cellOut(fmt.Sprintf("err uploading coverage: %+v\n", err))
			return store.StageFailed
		}
		cellOut(fmt.Sprintf("Uploaded coverage report with flag '%s'\n", stage.Coverage))
	}

	if stage.Publish != nil {
		if err := o.publishDists(ctx, rc, stage, cell, ex, cellOut); err != nil {
			cellOut(fmt.Sprintf("err publishing distributions: %+v\n", err))
			return store.StageFailed
		}
	}

	if stage.Artifacts != "" {
		// best effort, like every other archive call
		if err := o.archiveDirectory(ctx, rc, stage, cell, ex); err != nil {
			cellOut(fmt.Sprintf("err archiving artifacts: %+v\n", err))
		}
	}

	return store.StagePassed
}

func (o *Orchestrator) archiveDirectory(
	ctx context.Context,
	rc *RunContext,
	stage *workflow.Stage,
	cell workflow.Cell,
	ex Executor,
) error {
	files, err := ex.ListFiles(ctx, stage.Artifacts)
	if err != nil {
		return err
	}
	for _, f := range files {
		content, err := ex.ReadFile(ctx, f)
		if err != nil {
			return err
		}
		archiveArtifact(
			context.Background(), o.artifacts,
			rc.Run.RunID, stage.Stage, cell.Label(),
			path.Base(f), content, "application/octet-stream",
		)
	}
	return nil
}

func (o *Orchestrator) lookupCache(
	ctx context.Context,
	ex Executor,
	stage *workflow.Stage,
	cell workflow.Cell,
) (*CacheLookup, error) {
	files := make([]workflow.DependencyFile, 0, len(stage.Cache.Files))
	for _, p := range stage.Cache.Files {
		content, err := ex.ReadFile(ctx, p)
		if err != nil {
			return nil, err
		}
		files = append(files, workflow.DependencyFile{Path: p, Content: content})
	}
	key := workflow.CacheKey(cell.OS, cell.Version, files)
	return o.cache.Lookup(ctx, key, workflow.RestoreKeys(cell.OS, cell.Version))
}

func (o *Orchestrator) cellEnv(
	rc *RunContext,
	stage *workflow.Stage,
	cell workflow.Cell,
) map[string]string {
	env := make(map[string]string)
	for _, name := range stage.Secrets {
		if value, ok := rc.Secrets[name]; ok {
			env[name] = value
		}
	}
	if cell.Version != "" {
		env["RUNTIME_VERSION"] = cell.Version
	}
	// the settings-level override applies even when the stage declares
	// no worker count of its own
	if stage.Workers > 0 || rc.E2EWorkersOverride > 0 {
		env["CI_WORKERS"] = fmt.Sprintf(
			"%d", stage.WorkersFor(cell.OS, rc.E2EWorkersOverride))
	}
	if rc.ForceColor {
		env["FORCE_COLOR"] = "1"
	}
	return env
}

func (o *Orchestrator) uploadCoverage(
	ctx context.Context,
	rc *RunContext,
	stage *workflow.Stage,
	cell workflow.Cell,
	ex Executor,
) error {
	coverageFile := stage.CoverageFile
	if coverageFile == "" {
		coverageFile = "coverage.xml"
	}
	report, err := ex.ReadFile(ctx, coverageFile)
	if err != nil {
		return err
	}
	if err := o.coverage.Upload(ctx, stage.Coverage, rc.Run.CommitSHA, report); err != nil {
		return err
	}
	archiveArtifact(
		context.Background(), o.artifacts,
		rc.Run.RunID, stage.Stage, cell.Label(),
		"coverage.xml", report, "text/xml",
	)
	return nil
}

func (o *Orchestrator) publishDists(
	ctx context.Context,
	rc *RunContext,
	stage *workflow.Stage,
	cell workflow.Cell,
	ex Executor,
	cellOut func(string),
) error {
	files, err := ex.ListFiles(ctx, stage.Publish.Dist)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no distribution files under %s", stage.Publish.Dist)
	}
	for _, f := range files {
		content, err := ex.ReadFile(ctx, f)
		if err != nil {
			return err
		}
		if err := o.index.Upload(ctx, f, content); err != nil {
			return err
		}
		cellOut(fmt.Sprintf("Uploaded %s to package index\n", f))
		archiveArtifact(
			context.Background(), o.artifacts,
			rc.Run.RunID, stage.Stage, cell.Label(),
			path.Base(f), content, "application/octet-stream",
		)
	}
	return nil
}
