package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CoolGuy2982/AI-Researcher/internal/domain"
)

func newTestServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	e := echo.New()
	e.GET("/v1/research/:experiment_id/ws", func(c echo.Context) error {
		if c.Param("experiment_id") != "e1" {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
		}
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return nil
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return nil
			}
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		return nil
	})
	e.GET("/v1/research/:experiment_id/status", func(c echo.Context) error {
		if c.Param("experiment_id") == "broken" {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "boom"})
		}
		return c.JSON(http.StatusOK, domain.StatusResponse{
			ExperimentID: c.Param("experiment_id"),
			Status:       domain.SessionStatusRunning,
			EventCount:   3,
		})
	})

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func TestWatch(t *testing.T) {
	srv := newTestServer(t, []string{
		`{"type":"init","seq":0,"ts":1,"session_id":"s1"}`,
		`{"type":"message","seq":1,"ts":2,"role":"assistant","content":"hi"}`,
		`{"type":"done","seq":2,"ts":3,"status":"completed"}`,
	})
	c := New(srv.URL)

	var got []Message
	err := c.Watch(context.Background(), "e1", func(m Message) error {
		got = append(got, m)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "init", got[0].Type)
	assert.Equal(t, 2, got[2].Seq)
	assert.True(t, IsDone(got[2]))

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(got[1].Raw, &raw))
	assert.Equal(t, "hi", raw["content"])
	assert.Contains(t, Format(got[1]), "[message #1]")
}

func TestWatchUntilDone(t *testing.T) {
	srv := newTestServer(t, []string{
		`{"type":"done","seq":0,"ts":1,"status":"failed"}`,
		`{"type":"done","seq":1,"ts":2,"status":"failed"}`,
	})

	var count int
	err := New(srv.URL).WatchUntilDone(context.Background(), "e1", func(Message) { count++ })
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestWatchUnknownSession(t *testing.T) {
	srv := newTestServer(t, nil)
	err := New(srv.URL).Watch(context.Background(), "nope", func(Message) error { return nil })
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestStatus(t *testing.T) {
	srv := newTestServer(t, nil)
	c := New(srv.URL + "/")

	status, err := c.Status(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, "e1", status.ExperimentID)
	assert.Equal(t, domain.SessionStatusRunning, status.Status)
	assert.Equal(t, 3, status.EventCount)

	_, err = c.Status(context.Background(), "broken")
	assert.ErrorContains(t, err, "boom")
}

func TestWSURL(t *testing.T) {
	u, err := New("https://example.com").wsURL("/x")
	require.NoError(t, err)
	assert.Equal(t, "wss://example.com/x", u)

	_, err = New("ftp://example.com").wsURL("/x")
	assert.Error(t, err)
}
