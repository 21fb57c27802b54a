package v1

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/CoolGuy2982/AI-Researcher/internal/domain"
	"github.com/CoolGuy2982/AI-Researcher/internal/hub"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 4096
)

// WatchWebSocket is the WebSocket variant of StreamEvents. Each text frame
// carries one encoded event.
// GET /v1/research/:experiment_id/ws
func (h *Handler) WatchWebSocket(c echo.Context) error {
	experimentID := c.Param("experiment_id")
	if h.service.Registry().Get(experimentID) == nil {
		return errorJSON(c, domain.ErrSessionNotFound)
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already replied.
		h.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return nil
	}
	defer conn.Close()

	// Hijacked connections outlive the request context.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := hub.NewChanSink(h.service.Config().SinkBuffer)
	att, err := h.service.Attach(ctx, experimentID, sink)
	if err != nil {
		h.closeWebSocket(conn, websocket.CloseInternalServerErr, err.Error())
		return nil
	}

	go h.readPump(conn, cancel)

	for _, rec := range att.Replay {
		if err := h.writeFrame(conn, rec.Data); err != nil {
			return nil
		}
	}
	if !att.Live {
		if att.Final != nil {
			_ = h.writeFrame(conn, att.Final.Data)
		}
		h.closeWebSocket(conn, websocket.CloseNormalClosure, "session finished")
		return nil
	}

	h.writePump(ctx, conn, sink)
	return nil
}

// readPump discards client frames and cancels ctx when the peer goes away.
func (h *Handler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(wsMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *Handler) writePump(ctx context.Context, conn *websocket.Conn, sink *hub.ChanSink) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case rec, ok := <-sink.C():
			if !ok {
				h.closeWebSocket(conn, websocket.CloseNormalClosure, "session finished")
				return
			}
			if err := h.writeFrame(conn, rec.Data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) writeFrame(conn *websocket.Conn, data []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (h *Handler) closeWebSocket(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
