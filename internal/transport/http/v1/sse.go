package v1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/CoolGuy2982/AI-Researcher/internal/hub"
)

const sseHeartbeat = 15 * time.Second

var errStreamingUnsupported = errors.New("streaming not supported")

// sseWriter writes server-sent events as "data: <json>\n\n" frames.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter writes the stream headers. Nothing may be written to c
// before it.
func newSSEWriter(c echo.Context) (*sseWriter, error) {
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return nil, errStreamingUnsupported
	}

	header := c.Response().Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseWriter{w: c.Response(), flusher: flusher}, nil
}

func (s *sseWriter) writeData(data []byte) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) writeJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.writeData(data)
}

func (s *sseWriter) writeRecords(recs []hub.Record) error {
	for _, rec := range recs {
		if err := s.writeData(rec.Data); err != nil {
			return err
		}
	}
	return nil
}

func (s *sseWriter) heartbeat() error {
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// stream copies records from sink until the sink closes or ctx ends.
func (s *sseWriter) stream(ctx context.Context, sink *hub.ChanSink) error {
	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case rec, ok := <-sink.C():
			if !ok {
				return nil
			}
			if err := s.writeData(rec.Data); err != nil {
				return err
			}
		case <-ticker.C:
			if err := s.heartbeat(); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
