package handler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hakola/stageflow/internal/store"
	"github.com/labstack/echo/v4"
)

type AgentServicer interface {
	CreateAgent(
		ctx context.Context,
		name, description, osLabel, hostname, username, workspace, privateKey string,
	) (*store.Agent, error)
	GetAgentByID(ctx context.Context, id int64) (*store.Agent, error)
	UpdateAgent(
		ctx context.Context,
		id int64,
		name, description, osLabel, hostname, username, workspace string,
	) error
	DeleteAgent(ctx context.Context, id int64) error
	ListAgents(ctx context.Context) ([]*store.Agent, error)
	TestConnection(ctx context.Context, id int64) error
}

type AgentHandler struct {
	agentService AgentServicer
}

func NewAgentHandler(agentService AgentServicer) *AgentHandler {
	return &AgentHandler{agentService: agentService}
}

func SetupAgentRoutes(g *echo.Group, agentService AgentServicer) {
	h := NewAgentHandler(agentService)
	g.GET("/agents", h.GetAgents)
	g.POST("/agents", h.PostAgent)
	g.GET("/agents/:agent_id", h.GetAgent)
	g.PATCH("/agents/:agent_id", h.PatchAgent)
	g.DELETE("/agents/:agent_id", h.DeleteAgent)
	g.POST("/agents/:agent_id/test-connection", h.PostTestAgentConnection)
}

func (h *AgentHandler) GetAgents(c echo.Context) error {
	agents, err := h.agentService.ListAgents(c.Request().Context())
	if err != nil {
		return newError(err,
			http.StatusInternalServerError, "something went wrong listing agents")
	}
	return c.JSON(http.StatusOK, agents)
}

func (h *AgentHandler) PostAgent(c echo.Context) error {
	ap := new(AgentParams)
	if err := c.Bind(ap); err != nil {
		return newError(err, http.StatusBadRequest, "invalid agent data")
	}
	ap.Name = strings.TrimSpace(ap.Name)
	if ap.Name == "" || ap.Hostname == "" || ap.Username == "" {
		return newError(nil, http.StatusBadRequest,
			"agent name, hostname and username are required")
	}

	a, err := h.agentService.CreateAgent(
		c.Request().Context(),
		ap.Name,
		ap.Description,
		ap.OSLabel,
		ap.Hostname,
		ap.Username,
		ap.Workspace,
		ap.SSHPrivateKey,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return newError(err,
				http.StatusConflict,
				fmt.Sprintf("an agent with the name %s already exists", ap.Name),
			)
		}
		return newError(err, http.StatusInternalServerError, "unable to create agent")
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *AgentHandler) GetAgent(c echo.Context) error {
	ap := new(AgentParams)
	if err := c.Bind(ap); err != nil {
		return newError(err, http.StatusBadRequest, "invalid agent data")
	}

	a, err := h.agentService.GetAgentByID(c.Request().Context(), ap.AgentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusNotFound, "agent not found")
		}
		return newError(err,
			http.StatusInternalServerError, "something went wrong getting the agent")
	}
	return c.JSON(http.StatusOK, a)
}

func (h *AgentHandler) PatchAgent(c echo.Context) error {
	ap := new(AgentParams)
	if err := c.Bind(ap); err != nil {
		return newError(err, http.StatusBadRequest, "invalid agent data")
	}

	err := h.agentService.UpdateAgent(
		c.Request().Context(),
		ap.AgentID,
		ap.Name,
		ap.Description,
		ap.OSLabel,
		ap.Hostname,
		ap.Username,
		ap.Workspace,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusNotFound, "agent not found")
		}
		return newError(err,
			http.StatusInternalServerError, "something went wrong updating the agent")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AgentHandler) DeleteAgent(c echo.Context) error {
	ap := new(AgentParams)
	if err := c.Bind(ap); err != nil {
		return newError(err, http.StatusBadRequest, "invalid agent data")
	}

	if err := h.agentService.DeleteAgent(c.Request().Context(), ap.AgentID); err != nil {
		if isForeignKeyConstraintError(err) {
			return newError(err, http.StatusConflict,
				"agent is still referenced by a pipeline")
		}
		return newError(err,
			http.StatusInternalServerError, "something went wrong deleting the agent")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AgentHandler) PostTestAgentConnection(c echo.Context) error {
	ap := new(AgentParams)
	if err := c.Bind(ap); err != nil {
		return newError(err, http.StatusBadRequest, "invalid agent data")
	}

	if err := h.agentService.TestConnection(c.Request().Context(), ap.AgentID); err != nil {
		return newError(err, http.StatusBadGateway, "unable to connect to agent")
	}
	return c.NoContent(http.StatusOK)
}
