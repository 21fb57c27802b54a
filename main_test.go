package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CoolGuy2982/AI-Researcher/internal/domain"
)

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "watch", "status"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestStatusCommand(t *testing.T) {
	e := echo.New()
	e.GET("/v1/research/:experiment_id/status", func(c echo.Context) error {
		return c.JSON(http.StatusOK, domain.StatusResponse{
			ExperimentID: c.Param("experiment_id"),
			Status:       domain.SessionStatusIdle,
		})
	})
	srv := httptest.NewServer(e)
	defer srv.Close()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"status", "exp-7", "--server", srv.URL})
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, out.String(), `"exp-7"`)
	assert.Contains(t, out.String(), `"idle"`)
}
