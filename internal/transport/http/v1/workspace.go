package v1

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/CoolGuy2982/AI-Researcher/internal/domain"
)

// WorkspaceTree lists the files in an experiment workspace.
// GET /v1/workspaces/:experiment_id/tree
func (h *Handler) WorkspaceTree(c echo.Context) error {
	experimentID := c.Param("experiment_id")

	entries, err := h.service.Workspace().Tree(experimentID)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"experimentId": experimentID,
		"entries":      entries,
	})
}

// WorkspaceFile returns one file from an experiment workspace.
// GET /v1/workspaces/:experiment_id/file?path=results/out.csv
func (h *Handler) WorkspaceFile(c echo.Context) error {
	experimentID := c.Param("experiment_id")
	path := c.QueryParam("path")
	if path == "" {
		return errorJSON(c, fmt.Errorf("%w: path is required", domain.ErrInvalidRequest))
	}

	data, err := h.service.Workspace().ReadFile(experimentID, path)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.Blob(http.StatusOK, http.DetectContentType(data), data)
}
