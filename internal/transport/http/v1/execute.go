package v1

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/CoolGuy2982/AI-Researcher/internal/domain"
)

// Execute runs an allow-listed command in the workspace and streams its
// output. The process is killed when the client goes away.
// POST /v1/research/:experiment_id/execute
func (h *Handler) Execute(c echo.Context) error {
	experimentID := c.Param("experiment_id")

	var req domain.ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, fmt.Errorf("%w: invalid request body", domain.ErrInvalidRequest))
	}

	ctx := c.Request().Context()
	dir, argv, err := h.service.PrepareCommand(ctx, experimentID, req.Command)
	if err != nil {
		return errorJSON(c, err)
	}

	w, err := newSSEWriter(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	err = h.service.RunCommand(ctx, dir, argv, func(ev domain.ExecEvent) error {
		return w.writeJSON(ev)
	})
	if err != nil {
		h.logger.Debug("command stream ended",
			zap.String("experiment_id", experimentID),
			zap.Strings("argv", argv),
			zap.Error(err))
	}
	return nil
}
