// Package client is a small client for the research server, used by the CLI.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/CoolGuy2982/AI-Researcher/internal/domain"
)

// Message is one event frame received from the server.
type Message struct {
	Type string `json:"type"`
	Seq  int    `json:"seq"`
	Ts   int64  `json:"ts"`
	// Raw is the full frame.
	Raw json.RawMessage `json:"-"`
}

// Client talks to a research server.
type Client struct {
	baseURL string
	http    *http.Client
	dialer  *websocket.Dialer
}

// New creates a client for the server at baseURL (http:// or https://).
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		dialer:  websocket.DefaultDialer,
	}
}

func (c *Client) wsURL(path string) (string, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// Watch streams an experiment's events to fn until the server closes the
// stream, fn returns an error, or ctx ends.
func (c *Client) Watch(ctx context.Context, experimentID string, fn func(Message) error) error {
	addr, err := c.wsURL("/v1/research/" + url.PathEscape(experimentID) + "/ws")
	if err != nil {
		return err
	}

	conn, resp, err := c.dialer.DialContext(ctx, addr, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, experimentID)
		}
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("unmarshal frame: %w", err)
		}
		msg.Raw = append(json.RawMessage(nil), data...)
		if err := fn(msg); err != nil {
			return err
		}
	}
}

// Status fetches the session snapshot for an experiment.
func (c *Client) Status(ctx context.Context, experimentID string) (*domain.StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/research/"+url.PathEscape(experimentID)+"/status", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("status request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var status domain.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &status, nil
}

// Format renders a frame as indented JSON with a type header.
func Format(msg Message) string {
	var pretty map[string]interface{}
	if err := json.Unmarshal(msg.Raw, &pretty); err != nil {
		return string(msg.Raw)
	}
	formatted, _ := json.MarshalIndent(pretty, "", "  ")
	return fmt.Sprintf("[%s #%d]\n%s", msg.Type, msg.Seq, formatted)
}

// IsDone reports whether msg is the terminal event of a run.
func IsDone(msg Message) bool {
	return msg.Type == string(domain.EventTypeDone)
}

var errStopWatching = errors.New("stop watching")

// WatchUntilDone is Watch that returns after the first done event.
func (c *Client) WatchUntilDone(ctx context.Context, experimentID string, fn func(Message)) error {
	err := c.Watch(ctx, experimentID, func(msg Message) error {
		fn(msg)
		if IsDone(msg) {
			return errStopWatching
		}
		return nil
	})
	if errors.Is(err, errStopWatching) {
		return nil
	}
	return err
}
