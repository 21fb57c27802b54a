package domain

import (
	"errors"
	"time"
)

var (
	// ErrInvalidRequest marks a request rejected before anything was spawned.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrSessionNotFound is returned when no session (or no live session) exists.
	ErrSessionNotFound = errors.New("session not found")
)

// StartRequest is the body of POST /v1/research/start.
type StartRequest struct {
	ExperimentID string `json:"experimentId"`
	Hypothesis   string `json:"hypothesis"`
	Title        string `json:"title,omitempty"`
	ChatSummary  string `json:"chatSummary,omitempty"`
	Model        string `json:"model,omitempty"`
}

// ChatRequest is the body of POST /v1/research/:id/chat.
type ChatRequest struct {
	Message     string `json:"message"`
	ResumeToken string `json:"resumeToken,omitempty"`
	Model       string `json:"model,omitempty"`
}

// ExecuteRequest is the body of POST /v1/research/:id/execute.
type ExecuteRequest struct {
	Command string `json:"command"`
}

// StatusResponse is the snapshot returned by GET /v1/research/:id/status.
type StatusResponse struct {
	ExperimentID      string        `json:"experimentId"`
	Status            SessionStatus `json:"status"`
	AgentSessionToken string        `json:"agentSessionToken,omitempty"`
	StartedAt         *time.Time    `json:"startedAt,omitempty"`
	EventCount        int           `json:"eventCount"`
}

// AbortResponse acknowledges POST /v1/research/:id/abort.
type AbortResponse struct {
	ExperimentID string        `json:"experimentId"`
	Status       SessionStatus `json:"status"`
	Message      string        `json:"message"`
}

// ExecEvent is one line of a command-execution stream.
type ExecEvent struct {
	Stream string `json:"stream"`
	Line   string `json:"line,omitempty"`
	Code   *int   `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`
}
