package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/CoolGuy2982/AI-Researcher/internal/hub"
)

// StreamEvents replays an experiment's events and follows it while it runs.
// GET /v1/research/:experiment_id/events
func (h *Handler) StreamEvents(c echo.Context) error {
	experimentID := c.Param("experiment_id")
	ctx := c.Request().Context()

	sink := hub.NewChanSink(h.service.Config().SinkBuffer)
	att, err := h.service.Attach(ctx, experimentID, sink)
	if err != nil {
		return errorJSON(c, err)
	}

	w, err := newSSEWriter(c)
	if err != nil {
		sink.Close()
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if err := w.writeRecords(att.Replay); err != nil {
		return nil
	}
	if !att.Live {
		if att.Final != nil {
			_ = w.writeData(att.Final.Data)
		}
		return nil
	}

	if err := w.stream(ctx, sink); err != nil {
		h.logger.Debug("event stream ended", zap.String("experiment_id", experimentID), zap.Error(err))
	}
	return nil
}
