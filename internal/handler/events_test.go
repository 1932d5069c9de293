package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hakola/stageflow/internal/service"
	"github.com/hakola/stageflow/internal/settings"
	"github.com/hakola/stageflow/internal/store"
	"github.com/hakola/stageflow/internal/testutil"
	"github.com/hakola/stageflow/internal/workflow"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newEventContext(e *echo.Echo, pipelineID int64, body, query string) (echo.Context, *httptest.ResponseRecorder) {
	target := fmt.Sprintf("/api/pipelines/%d/events", pipelineID)
	if query != "" {
		target += "?" + query
	}
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("pipeline_id")
	c.SetParamValues(fmt.Sprintf("%d", pipelineID))
	return c, rec
}

func TestPipelineHandler_PostPipelineEvent(t *testing.T) {
	settings.Settings = &settings.AppSettings{WebhookKey: "hook-key"}

	t.Run("success - push event creates and enqueues a run", func(t *testing.T) {
		// arrange
		expectedEvent := workflow.NewEvent(
			workflow.TriggerPush, "refs/heads/master", "abc123")
		run := &store.Run{RunID: 7, RunPipelineID: 1, Status: store.StatusQueued}
		mockService := new(testutil.MockPipelineService)
		mockService.On("CreateRunForEvent", mock.Anything, int64(1), expectedEvent).
			Return(run, nil)
		mockService.On("EnqueueRun", run).Return(nil)

		e := echo.New()
		c, rec := newEventContext(e, 1,
			`{"kind": "push", "ref": "refs/heads/master", "sha": "abc123"}`, "")
		h := NewPipelineHandler(mockService, nil)

		// act
		err := h.PostPipelineEvent(c)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, http.StatusCreated, rec.Code)
		mockService.AssertExpectations(t)
	})
	t.Run("success - tag push is normalized to a tag trigger", func(t *testing.T) {
		// arrange
		expectedEvent := workflow.NewEvent(
			workflow.TriggerPush, "refs/tags/v1.2.0", "abc123")
		assert.Equal(t, workflow.TriggerTag, expectedEvent.Kind)
		run := &store.Run{RunID: 8, RunPipelineID: 1, Status: store.StatusQueued}
		mockService := new(testutil.MockPipelineService)
		mockService.On("CreateRunForEvent", mock.Anything, int64(1), expectedEvent).
			Return(run, nil)
		mockService.On("EnqueueRun", run).Return(nil)

		e := echo.New()
		c, rec := newEventContext(e, 1,
			`{"kind": "push", "ref": "refs/tags/v1.2.0", "sha": "abc123"}`, "")
		h := NewPipelineHandler(mockService, nil)

		// act
		err := h.PostPipelineEvent(c)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, http.StatusCreated, rec.Code)
		mockService.AssertExpectations(t)
	})
	t.Run("failure - full queue is reported as too many requests", func(t *testing.T) {
		// arrange
		expectedEvent := workflow.NewEvent(
			workflow.TriggerPush, "refs/heads/master", "abc123")
		run := &store.Run{RunID: 9, RunPipelineID: 1, Status: store.StatusQueued}
		mockService := new(testutil.MockPipelineService)
		mockService.On("CreateRunForEvent", mock.Anything, int64(1), expectedEvent).
			Return(run, nil)
		mockService.On("EnqueueRun", run).Return(service.NewErrRunQueueFull())

		e := echo.New()
		c, _ := newEventContext(e, 1,
			`{"kind": "push", "ref": "refs/heads/master", "sha": "abc123"}`, "")
		h := NewPipelineHandler(mockService, nil)

		// act
		err := h.PostPipelineEvent(c)

		// assert
		httpErr, ok := err.(*echo.HTTPError)
		assert.True(t, ok)
		assert.Equal(t, http.StatusTooManyRequests, httpErr.Code)
	})
	t.Run("failure - unknown event kind is rejected", func(t *testing.T) {
		// arrange
		mockService := new(testutil.MockPipelineService)

		e := echo.New()
		c, _ := newEventContext(e, 1,
			`{"kind": "workflow_dispatch", "ref": "refs/heads/master"}`, "")
		h := NewPipelineHandler(mockService, nil)

		// act
		err := h.PostPipelineEvent(c)

		// assert
		httpErr, ok := err.(*echo.HTTPError)
		assert.True(t, ok)
		assert.Equal(t, http.StatusBadRequest, httpErr.Code)
		mockService.AssertNotCalled(t, "CreateRunForEvent")
	})
	t.Run("failure - missing ref is rejected", func(t *testing.T) {
		// arrange
		mockService := new(testutil.MockPipelineService)

		e := echo.New()
		c, _ := newEventContext(e, 1, `{"kind": "push"}`, "")
		h := NewPipelineHandler(mockService, nil)

		// act
		err := h.PostPipelineEvent(c)

		// assert
		httpErr, ok := err.(*echo.HTTPError)
		assert.True(t, ok)
		assert.Equal(t, http.StatusBadRequest, httpErr.Code)
	})
}

func TestPipelineHandler_PostPipelineWebhookTrigger(t *testing.T) {
	settings.Settings = &settings.AppSettings{WebhookKey: "hook-key"}

	t.Run("success - branch body and token query create a push run", func(t *testing.T) {
		// arrange
		expectedEvent := workflow.NewEvent(
			workflow.TriggerPush, "refs/heads/develop", "")
		run := &store.Run{RunID: 11, RunPipelineID: 2, Status: store.StatusQueued}
		mockService := new(testutil.MockPipelineService)
		mockService.On("CreateRunForEvent", mock.Anything, int64(2), expectedEvent).
			Return(run, nil)
		mockService.On("EnqueueRun", run).Return(nil)

		e := echo.New()
		req := httptest.NewRequest(
			http.MethodPost,
			"/api/pipelines/2/webhook-trigger?token=hook-key",
			strings.NewReader(`{"branch": "develop"}`),
		)
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("pipeline_id")
		c.SetParamValues("2")
		h := NewPipelineHandler(mockService, nil)

		// act
		err := h.PostPipelineWebhookTrigger(c)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, http.StatusCreated, rec.Code)
		mockService.AssertExpectations(t)
	})
	t.Run("failure - wrong token is forbidden", func(t *testing.T) {
		// arrange
		mockService := new(testutil.MockPipelineService)

		e := echo.New()
		req := httptest.NewRequest(
			http.MethodPost,
			"/api/pipelines/2/webhook-trigger?token=wrong",
			strings.NewReader(`{"branch": "develop"}`),
		)
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("pipeline_id")
		c.SetParamValues("2")
		h := NewPipelineHandler(mockService, nil)

		// act
		err := h.PostPipelineWebhookTrigger(c)

		// assert
		httpErr, ok := err.(*echo.HTTPError)
		assert.True(t, ok)
		assert.Equal(t, http.StatusForbidden, httpErr.Code)
		mockService.AssertNotCalled(t, "CreateRunForEvent")
	})
	t.Run("failure - missing branch is rejected", func(t *testing.T) {
		// arrange
		mockService := new(testutil.MockPipelineService)

		e := echo.New()
		req := httptest.NewRequest(
			http.MethodPost,
			"/api/pipelines/2/webhook-trigger?token=hook-key",
			strings.NewReader(`{}`),
		)
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("pipeline_id")
		c.SetParamValues("2")
		h := NewPipelineHandler(mockService, nil)

		// act
		err := h.PostPipelineWebhookTrigger(c)

		// assert
		httpErr, ok := err.(*echo.HTTPError)
		assert.True(t, ok)
		assert.Equal(t, http.StatusBadRequest, httpErr.Code)
	})
}
