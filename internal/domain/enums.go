// Package domain defines the core domain models for the research server.
package domain

// SessionStatus represents the status of a research session.
type SessionStatus string

const (
	SessionStatusIdle      SessionStatus = "idle" // no session recorded
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
	SessionStatusAborted   SessionStatus = "aborted"
)

// IsTerminal reports whether the status is completed, failed or aborted.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusFailed, SessionStatusAborted:
		return true
	}
	return false
}

// StatusFromExitCode maps a process exit code to the terminal status.
func StatusFromExitCode(code int) SessionStatus {
	if code == 0 {
		return SessionStatusCompleted
	}
	return SessionStatusFailed
}

// EventType represents the type of a stream event.
type EventType string

const (
	EventTypeInit       EventType = "init"
	EventTypeMessage    EventType = "message"
	EventTypeToolUse    EventType = "tool_use"
	EventTypeToolResult EventType = "tool_result"
	EventTypeError      EventType = "error"
	EventTypeResult     EventType = "result"
	EventTypeDone       EventType = "done"
	EventTypeLog        EventType = "log"
)

// Stream names used by log and exec events.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
	StreamExit   = "exit"
)
