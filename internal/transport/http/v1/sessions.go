package v1

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/CoolGuy2982/AI-Researcher/internal/domain"
)

// Abort cancels the running session.
// POST /v1/research/:experiment_id/abort
func (h *Handler) Abort(c echo.Context) error {
	resp, err := h.service.Abort(c.Param("experiment_id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Status returns the session snapshot.
// GET /v1/research/:experiment_id/status
func (h *Handler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.Status(c.Param("experiment_id")))
}

// Findings returns the findings report, optionally waiting for it.
// GET /v1/research/:experiment_id/findings?wait=30s
func (h *Handler) Findings(c echo.Context) error {
	experimentID := c.Param("experiment_id")

	var wait time.Duration
	if w := c.QueryParam("wait"); w != "" {
		d, err := time.ParseDuration(w)
		if err != nil || d < 0 {
			return errorJSON(c, fmt.Errorf("%w: invalid wait %q", domain.ErrInvalidRequest, w))
		}
		wait = d
	}

	data, err := h.service.Findings(c.Request().Context(), experimentID, wait)
	if errors.Is(err, context.DeadlineExceeded) {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "findings not ready",
			"code":  "not_ready",
		})
	}
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"experimentId": experimentID,
		"findings":     string(data),
	})
}
