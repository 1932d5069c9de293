package handler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hakola/stageflow/internal/service"
	"github.com/hakola/stageflow/internal/store"
	"github.com/hakola/stageflow/internal/workflow"
	"github.com/labstack/echo/v4"
)

const maxRunsPerPage int64 = 10

type PipelineWriter interface {
	CreatePipeline(
		ctx context.Context,
		name, description, repository, scriptPath, mainBranch string,
	) (*store.Pipeline, error)
	UpdatePipeline(
		ctx context.Context,
		pipelineID int64,
		name, description, repository, scriptPath, mainBranch string,
	) error
	UpdatePipelineSchedule(ctx context.Context, id int64, schedule *string) error
	DeletePipeline(ctx context.Context, pipelineID int64) error
}

type PipelineReader interface {
	GetPipelineByID(ctx context.Context, pipelineID int64) (*store.Pipeline, error)
	ListPipelines(ctx context.Context) ([]*store.Pipeline, error)
	ListScheduledPipelines(ctx context.Context) ([]*store.Pipeline, error)
}

type RunWriter interface {
	CreateRunForEvent(
		ctx context.Context,
		pipelineID int64,
		event workflow.Event,
	) (*store.Run, error)
	DeleteRun(ctx context.Context, runID int64) error
}

type RunReader interface {
	GetRunByID(ctx context.Context, runID int64) (*store.Run, error)
	ListPipelineRuns(ctx context.Context, pipelineID int64) ([]store.Run, error)
	ListLatestPipelineRuns(ctx context.Context, id, limit int64) ([]store.Run, error)
	ListPipelineRunsPaginated(ctx context.Context, id, limit, offset int64) ([]store.Run, error)
	GetRunCount(ctx context.Context, id int64) (int64, error)
}

type RunQueueServicer interface {
	GetPipelineRunQueue(id int64) (*service.RunQueue, bool)
	EnqueueRun(run *store.Run) error
}

type PipelineServicer interface {
	PipelineWriter
	PipelineReader
	RunWriter
	RunReader
	RunQueueServicer
}

// StageReader exposes the recorded stage and cell outcomes of a run.
type StageReader interface {
	ListRunStageResults(ctx context.Context, runID int64) ([]store.StageResult, error)
	ListStageCellResults(ctx context.Context, stageResultID int64) ([]store.CellResult, error)
}

type PipelineHandler struct {
	pipelineService PipelineServicer
	stageStore      StageReader
}

func NewPipelineHandler(
	pipelineService PipelineServicer,
	stageStore StageReader,
) *PipelineHandler {
	return &PipelineHandler{
		pipelineService: pipelineService,
		stageStore:      stageStore,
	}
}

func SetupPipelineRoutes(
	g *echo.Group,
	pipelineService PipelineServicer,
	stageStore StageReader,
) {
	h := NewPipelineHandler(pipelineService, stageStore)

	g.POST(
		"/pipelines/:pipeline_id/events",
		h.PostPipelineEvent,
		WebhookKeyMiddleware,
	)
	// token is carried as a query parameter, the way downstream CI
	// trigger APIs expect it
	g.POST("/pipelines/:pipeline_id/webhook-trigger", h.PostPipelineWebhookTrigger)

	g.GET("/pipelines", h.GetPipelines)
	g.POST("/pipelines", h.PostPipeline)
	g.GET("/pipelines/:pipeline_id", h.GetPipeline)
	g.PATCH("/pipelines/:pipeline_id", h.PatchPipeline)
	g.DELETE("/pipelines/:pipeline_id", h.DeletePipeline)
	g.PATCH("/pipelines/:pipeline_id/schedule", h.PatchPipelineSchedule)

	g.GET("/pipelines/:pipeline_id/runs", h.GetPipelineRuns)
	g.GET("/pipelines/:pipeline_id/latest-runs", h.GetLatestPipelineRuns)
	g.GET("/pipelines/:pipeline_id/runs/:run_id", h.GetRun)
	g.GET("/pipelines/:pipeline_id/runs/:run_id/output", h.GetRunOutput)
	g.GET("/pipelines/:pipeline_id/runs/:run_id/stages", h.GetRunStages)
	g.GET("/pipelines/:pipeline_id/runs/:run_id/sse", h.GetRunSSE)
	g.POST("/pipelines/:pipeline_id/runs/:run_id/cancel", h.PostCancelRun)
	g.DELETE("/pipelines/:pipeline_id/runs/:run_id", h.DeleteRun)
}

func (h *PipelineHandler) GetPipelines(c echo.Context) error {
	pipelines, err := h.pipelineService.ListPipelines(c.Request().Context())
	if err != nil {
		return newError(err,
			http.StatusInternalServerError, "something went wrong listing pipelines")
	}
	return c.JSON(http.StatusOK, pipelines)
}

func (h *PipelineHandler) PostPipeline(c echo.Context) error {
	pp := new(PipelineParams)
	if err := c.Bind(pp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline data")
	}
	pp.Name = strings.TrimSpace(pp.Name)
	if pp.Name == "" {
		return newError(nil, http.StatusBadRequest, "pipeline name is required")
	}

	p, err := h.pipelineService.CreatePipeline(
		c.Request().Context(),
		pp.Name,
		pp.Description,
		pp.Repository,
		pp.ScriptPath,
		pp.MainBranch,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return newError(err,
				http.StatusConflict,
				fmt.Sprintf("a pipeline with the name %s already exists", pp.Name),
			)
		}
		return newError(err, http.StatusInternalServerError, "unable to create pipeline")
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *PipelineHandler) GetPipeline(c echo.Context) error {
	pp := new(PipelineParams)
	if err := c.Bind(pp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline data")
	}

	p, err := h.pipelineService.GetPipelineByID(c.Request().Context(), pp.PipelineID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusNotFound, "pipeline not found")
		}
		return newError(err,
			http.StatusInternalServerError, "something went wrong getting pipeline data")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *PipelineHandler) PatchPipeline(c echo.Context) error {
	pp := new(PipelineParams)
	if err := c.Bind(pp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline data")
	}

	pp.Name = strings.TrimSpace(pp.Name)
	pp.Description = strings.TrimSpace(pp.Description)
	pp.ScriptPath = strings.TrimSpace(pp.ScriptPath)

	err := h.pipelineService.UpdatePipeline(
		c.Request().Context(),
		pp.PipelineID,
		pp.Name,
		pp.Description,
		pp.Repository,
		pp.ScriptPath,
		pp.MainBranch,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusNotFound, "pipeline not found")
		}
		return newError(err,
			http.StatusInternalServerError, "something went wrong updating the pipeline")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *PipelineHandler) PatchPipelineSchedule(c echo.Context) error {
	pp := new(PipelineParams)
	if err := c.Bind(pp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline data")
	}

	if err := h.pipelineService.UpdatePipelineSchedule(
		c.Request().Context(), pp.PipelineID, pp.Schedule,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusBadRequest, "invalid pipeline id")
		}
		return newError(err,
			http.StatusInternalServerError, "something went wrong updating the schedule")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *PipelineHandler) DeletePipeline(c echo.Context) error {
	pp := new(PipelineParams)
	if err := c.Bind(pp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline data")
	}

	if err := h.pipelineService.DeletePipeline(
		c.Request().Context(), pp.PipelineID,
	); err != nil {
		return newError(err,
			http.StatusInternalServerError, "something went wrong deleting the pipeline")
	}
	return c.NoContent(http.StatusNoContent)
}

type runListResponse struct {
	Runs  []store.Run `json:"runs"`
	Count int64       `json:"count"`
	Page  int64       `json:"page"`
}

func (h *PipelineHandler) GetPipelineRuns(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid run data")
	}
	if rp.Page < 1 {
		rp.Page = 1
	}

	count, err := h.pipelineService.GetRunCount(c.Request().Context(), rp.PipelineID)
	if err != nil {
		return newError(err,
			http.StatusInternalServerError, "something went wrong counting runs")
	}
	runs, err := h.pipelineService.ListPipelineRunsPaginated(
		c.Request().Context(),
		rp.PipelineID,
		maxRunsPerPage,
		(rp.Page-1)*maxRunsPerPage,
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return newError(err,
			http.StatusInternalServerError, "something went wrong listing runs")
	}
	return c.JSON(http.StatusOK, runListResponse{Runs: runs, Count: count, Page: rp.Page})
}

func (h *PipelineHandler) GetLatestPipelineRuns(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid run data")
	}

	runs, err := h.pipelineService.ListLatestPipelineRuns(
		c.Request().Context(), rp.PipelineID, maxRunsPerPage)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return newError(err,
			http.StatusInternalServerError, "something went wrong listing runs")
	}
	return c.JSON(http.StatusOK, runs)
}

func (h *PipelineHandler) GetRun(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid run data")
	}

	r, err := h.pipelineService.GetRunByID(c.Request().Context(), rp.RunID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusNotFound, "run not found")
		}
		return newError(err,
			http.StatusInternalServerError, "something went wrong getting the run")
	}
	return c.JSON(http.StatusOK, r)
}

func (h *PipelineHandler) GetRunOutput(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid run data")
	}

	r, err := h.pipelineService.GetRunByID(c.Request().Context(), rp.RunID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusNotFound, "run not found")
		}
		return newError(err,
			http.StatusInternalServerError, "something went wrong getting the run")
	}

	output := ""
	if r.Output != nil {
		output = *r.Output
	}
	return c.String(http.StatusOK, output)
}

type stageWithCells struct {
	store.StageResult
	Cells []store.CellResult `json:"cells"`
}

func (h *PipelineHandler) GetRunStages(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid run data")
	}

	stages, err := h.stageStore.ListRunStageResults(c.Request().Context(), rp.RunID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return newError(err,
			http.StatusInternalServerError, "something went wrong listing stage results")
	}

	response := make([]stageWithCells, 0, len(stages))
	for _, sr := range stages {
		cells, err := h.stageStore.ListStageCellResults(
			c.Request().Context(), sr.StageResultID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return newError(err,
				http.StatusInternalServerError, "something went wrong listing cell results")
		}
		response = append(response, stageWithCells{StageResult: sr, Cells: cells})
	}
	return c.JSON(http.StatusOK, response)
}

func (h *PipelineHandler) PostCancelRun(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid run data")
	}

	rq, ok := h.pipelineService.GetPipelineRunQueue(rp.PipelineID)
	if !ok {
		return newError(nil, http.StatusNotFound, "pipeline run queue not found")
	}
	rq.CancelRun(rp.RunID)
	return c.NoContent(http.StatusAccepted)
}

func (h *PipelineHandler) DeleteRun(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid run data")
	}

	if err := h.pipelineService.DeleteRun(c.Request().Context(), rp.RunID); err != nil {
		return newError(err,
			http.StatusInternalServerError, "something went wrong deleting the run")
	}
	return c.NoContent(http.StatusNoContent)
}

// GetRunSSE streams run output and status updates to the client while
// the run executes.
func (h *PipelineHandler) GetRunSSE(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid run data")
	}

	rq, ok := h.pipelineService.GetPipelineRunQueue(rp.PipelineID)
	if !ok {
		return newError(nil, http.StatusNotFound, "pipeline run queue not found")
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")

	uid := fmt.Sprintf("%d-%d-%d", rp.PipelineID, rp.RunID, time.Now().UnixNano())
	rq.OutputSSEClients.AddClient(uid)
	rq.StatusSSEClients.AddClient(uid)
	defer func() {
		rq.OutputSSEClients.RemoveClient(uid)
		rq.StatusSSEClients.RemoveClient(uid)
	}()

	outputCh := rq.OutputSSEClients.GetClient(uid)
	statusCh := rq.StatusSSEClients.GetClient(uid)

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case out, ok := <-outputCh:
			if !ok {
				return nil
			}
			ev := Event{
				ID:    []byte(fmt.Sprintf("%d", rp.RunID)),
				Event: []byte("output"),
				Data:  []byte(out),
			}
			if err := ev.MarshalTo(w); err != nil {
				return err
			}
			w.Flush()
		case r, ok := <-statusCh:
			if !ok {
				return nil
			}
			ev := Event{
				ID:    []byte(fmt.Sprintf("%d", rp.RunID)),
				Event: []byte("status"),
				Data:  []byte(r.Status),
			}
			if err := ev.MarshalTo(w); err != nil {
				return err
			}
			w.Flush()
		}
	}
}
