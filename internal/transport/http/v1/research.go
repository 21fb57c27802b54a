package v1

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/CoolGuy2982/AI-Researcher/internal/domain"
	"github.com/CoolGuy2982/AI-Researcher/internal/hub"
)

// StartResearch starts a research session and streams its events.
// POST /v1/research/start
func (h *Handler) StartResearch(c echo.Context) error {
	var req domain.StartRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, fmt.Errorf("%w: invalid request body", domain.ErrInvalidRequest))
	}

	ctx := c.Request().Context()
	sink := hub.NewChanSink(h.service.Config().SinkBuffer)
	if _, err := h.service.StartResearch(ctx, req, sink); err != nil {
		return errorJSON(c, err)
	}
	return h.streamSession(c, req.ExperimentID, sink)
}

// Chat sends a follow-up message and streams the new run's events.
// POST /v1/research/:experiment_id/chat
func (h *Handler) Chat(c echo.Context) error {
	experimentID := c.Param("experiment_id")

	var req domain.ChatRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, fmt.Errorf("%w: invalid request body", domain.ErrInvalidRequest))
	}

	ctx := c.Request().Context()
	sink := hub.NewChanSink(h.service.Config().SinkBuffer)
	if _, err := h.service.FollowUp(ctx, experimentID, req, sink); err != nil {
		return errorJSON(c, err)
	}
	return h.streamSession(c, experimentID, sink)
}

func (h *Handler) streamSession(c echo.Context, experimentID string, sink *hub.ChanSink) error {
	w, err := newSSEWriter(c)
	if err != nil {
		sink.Close()
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if err := w.stream(c.Request().Context(), sink); err != nil {
		h.logger.Debug("stream ended", zap.String("experiment_id", experimentID), zap.Error(err))
	}
	return nil
}
