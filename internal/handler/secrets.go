package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hakola/stageflow/internal/store"
	"github.com/labstack/echo/v4"
)

type SecretServicer interface {
	CreateSecret(ctx context.Context, name, description, value string) (*store.Secret, error)
	ListSecrets(ctx context.Context) ([]*store.Secret, error)
	DeleteSecret(ctx context.Context, id int64) error
}

type SecretHandler struct {
	secretService SecretServicer
}

func NewSecretHandler(secretService SecretServicer) *SecretHandler {
	return &SecretHandler{secretService: secretService}
}

func SetupSecretRoutes(g *echo.Group, secretService SecretServicer) {
	h := NewSecretHandler(secretService)
	g.GET("/secrets", h.GetSecrets)
	g.POST("/secrets", h.PostSecret)
	g.DELETE("/secrets/:secret_id", h.DeleteSecret)
}

// GetSecrets lists secret names and descriptions. Values are never
// returned once written.
func (h *SecretHandler) GetSecrets(c echo.Context) error {
	secrets, err := h.secretService.ListSecrets(c.Request().Context())
	if err != nil {
		return newError(err,
			http.StatusInternalServerError, "something went wrong listing secrets")
	}
	return c.JSON(http.StatusOK, secrets)
}

func (h *SecretHandler) PostSecret(c echo.Context) error {
	sp := new(SecretParams)
	if err := c.Bind(sp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid secret data")
	}
	sp.Name = strings.TrimSpace(sp.Name)
	if sp.Name == "" || sp.Value == "" {
		return newError(nil, http.StatusBadRequest, "secret name and value are required")
	}

	s, err := h.secretService.CreateSecret(
		c.Request().Context(), sp.Name, sp.Description, sp.Value)
	if err != nil {
		if isUniqueConstraintError(err) {
			return newError(err,
				http.StatusConflict,
				fmt.Sprintf("a secret with the name %s already exists", sp.Name),
			)
		}
		return newError(err, http.StatusInternalServerError, "unable to create secret")
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *SecretHandler) DeleteSecret(c echo.Context) error {
	sp := new(SecretParams)
	if err := c.Bind(sp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid secret data")
	}

	if err := h.secretService.DeleteSecret(c.Request().Context(), sp.SecretID); err != nil {
		return newError(err,
			http.StatusInternalServerError, "something went wrong deleting the secret")
	}
	return c.NoContent(http.StatusNoContent)
}
