// Package v1 provides the HTTP handlers for the research server.
package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/CoolGuy2982/AI-Researcher/internal/domain"
	"github.com/CoolGuy2982/AI-Researcher/internal/execstream"
	"github.com/CoolGuy2982/AI-Researcher/internal/service"
	"github.com/CoolGuy2982/AI-Researcher/internal/workspace"
)

// Handler handles HTTP requests.
type Handler struct {
	service  *service.Service
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service: service,
		logger:  logger.Named("http"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Research sessions
	e.POST("/v1/research/start", h.StartResearch)
	e.GET("/v1/research/:experiment_id/events", h.StreamEvents)
	e.GET("/v1/research/:experiment_id/ws", h.WatchWebSocket)
	e.POST("/v1/research/:experiment_id/chat", h.Chat)
	e.POST("/v1/research/:experiment_id/abort", h.Abort)
	e.GET("/v1/research/:experiment_id/status", h.Status)
	e.GET("/v1/research/:experiment_id/findings", h.Findings)
	e.POST("/v1/research/:experiment_id/execute", h.Execute)

	// Workspace browsing
	e.GET("/v1/workspaces/:experiment_id/tree", h.WorkspaceTree)
	e.GET("/v1/workspaces/:experiment_id/file", h.WorkspaceFile)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"version":  "0.1.0",
		"sessions": h.service.Registry().Len(),
		"running":  len(h.service.Registry().Running()),
	})
}

// errorJSON writes err as {"error", "code"} with the status it maps to.
func errorJSON(c echo.Context, err error) error {
	status, code := errorStatus(err)
	return c.JSON(status, map[string]string{
		"error": err.Error(),
		"code":  code,
	})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, workspace.ErrInvalidID):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, execstream.ErrPathTraversal), errors.Is(err, workspace.ErrPathOutsideWorkspace):
		return http.StatusBadRequest, "path_traversal"
	case errors.Is(err, execstream.ErrCommandNotAllowed):
		return http.StatusForbidden, "command_not_allowed"
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, workspace.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
