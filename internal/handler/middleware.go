package handler

import (
	"crypto/subtle"
	"net/http"

	"github.com/hakola/stageflow/internal"
	"github.com/hakola/stageflow/internal/settings"
	"github.com/labstack/echo/v4"
)

// WebhookKeyMiddleware guards the webhook endpoints with the shared
// key header. Constant-time compare, and a missing server-side key
// disables the endpoints rather than leaving them open.
func WebhookKeyMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := settings.Settings.WebhookKey
		if key == "" {
			return newError(nil, http.StatusForbidden, "webhook key is not configured")
		}
		given := c.Request().Header.Get(internal.WebhookTriggerKeyHeader)
		if subtle.ConstantTimeCompare([]byte(given), []byte(key)) != 1 {
			return newError(nil, http.StatusForbidden, "invalid webhook key")
		}
		return next(c)
	}
}
