package handler

import (
	"crypto/subtle"
	"database/sql"
	"errors"
	"net/http"

	"github.com/hakola/stageflow/internal/service"
	"github.com/hakola/stageflow/internal/settings"
	"github.com/hakola/stageflow/internal/workflow"
	"github.com/labstack/echo/v4"
)

// PostPipelineEvent records a run for a repository webhook event and
// enqueues it. Push events on tag refs are normalized to tag triggers
// before anything is persisted.
func (h *PipelineHandler) PostPipelineEvent(c echo.Context) error {
	ep := new(EventParams)
	if err := c.Bind(ep); err != nil {
		return newError(err, http.StatusBadRequest, "invalid event data")
	}
	if ep.Ref == "" {
		return newError(nil, http.StatusBadRequest, "event ref is required")
	}

	event := workflow.NewEvent(workflow.TriggerKind(ep.Kind), ep.Ref, ep.SHA)
	switch event.Kind {
	case workflow.TriggerPush, workflow.TriggerPullRequest,
		workflow.TriggerSchedule, workflow.TriggerTag:
	default:
		return newError(nil, http.StatusBadRequest, "unknown event kind")
	}

	r, err := h.pipelineService.CreateRunForEvent(
		c.Request().Context(), ep.PipelineID, event)
	if err != nil {
		if isForeignKeyConstraintError(err) || errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusNotFound, "pipeline not found")
		}
		return newError(err, http.StatusInternalServerError, "unable to create run")
	}

	if err := h.pipelineService.EnqueueRun(r); err != nil {
		var full *service.ErrRunQueueFull
		if errors.As(err, &full) {
			return newError(err, http.StatusTooManyRequests, "run queue is full")
		}
		return newError(err, http.StatusInternalServerError, "unable to enqueue run")
	}
	return c.JSON(http.StatusCreated, r)
}

// PostPipelineWebhookTrigger is the externally triggered build: a
// bare branch name in the body, shared token as a query parameter.
func (h *PipelineHandler) PostPipelineWebhookTrigger(c echo.Context) error {
	wp := new(WebhookParams)
	if err := c.Bind(wp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid webhook data")
	}

	key := settings.Settings.WebhookKey
	if key == "" {
		return newError(nil, http.StatusForbidden, "webhook key is not configured")
	}
	if subtle.ConstantTimeCompare([]byte(wp.Token), []byte(key)) != 1 {
		return newError(nil, http.StatusForbidden, "invalid webhook token")
	}
	if wp.Branch == "" {
		return newError(nil, http.StatusBadRequest, "branch is required")
	}

	event := workflow.NewEvent(workflow.TriggerPush, "refs/heads/"+wp.Branch, "")
	r, err := h.pipelineService.CreateRunForEvent(
		c.Request().Context(), wp.PipelineID, event)
	if err != nil {
		if isForeignKeyConstraintError(err) || errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusNotFound, "pipeline not found")
		}
		return newError(err, http.StatusInternalServerError, "unable to create run")
	}

	if err := h.pipelineService.EnqueueRun(r); err != nil {
		var full *service.ErrRunQueueFull
		if errors.As(err, &full) {
			return newError(err, http.StatusTooManyRequests, "run queue is full")
		}
		return newError(err, http.StatusInternalServerError, "unable to enqueue run")
	}
	return c.JSON(http.StatusCreated, r)
}
