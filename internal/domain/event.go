package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Event is a stream event emitted by the agent or synthesized by the server.
// The concrete types below are the only implementations.
type Event interface {
	Type() EventType
	isEvent()
}

// Init is the agent's startup event. SessionID is the resume token.
type Init struct {
	SessionID string `json:"session_id"`
	Model     string `json:"model,omitempty"`
}

// Message is narrative output from the agent.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Delta   bool   `json:"delta,omitempty"`
}

// ToolUse is a tool invocation requested by the agent.
type ToolUse struct {
	ToolID     string                 `json:"tool_id"`
	ToolName   string                 `json:"tool_name"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// ToolResult is the outcome of a ToolUse with the same ToolID.
type ToolResult struct {
	ToolID string `json:"tool_id"`
	Status string `json:"status"`
	Output string `json:"output,omitempty"`
}

// Error carries a failure message, from the agent or the server.
type Error struct {
	Message string `json:"message"`
}

// Result is the agent's own final summary line.
type Result struct {
	Status   string          `json:"status,omitempty"`
	ExitCode *int            `json:"exit_code,omitempty"`
	Stats    json.RawMessage `json:"stats,omitempty"`
}

// Done is the server's terminal event for a session.
type Done struct {
	ExitCode *int          `json:"exit_code,omitempty"`
	Signal   string        `json:"signal,omitempty"`
	Status   SessionStatus `json:"status"`
	Findings string        `json:"findings,omitempty"`
}

// Log preserves a raw output line that was not a recognized event.
type Log struct {
	Line   string `json:"line"`
	Stream string `json:"stream,omitempty"`
}

func (Init) Type() EventType       { return EventTypeInit }
func (Message) Type() EventType    { return EventTypeMessage }
func (ToolUse) Type() EventType    { return EventTypeToolUse }
func (ToolResult) Type() EventType { return EventTypeToolResult }
func (Error) Type() EventType      { return EventTypeError }
func (Result) Type() EventType     { return EventTypeResult }
func (Done) Type() EventType       { return EventTypeDone }
func (Log) Type() EventType        { return EventTypeLog }

func (Init) isEvent()       {}
func (Message) isEvent()    {}
func (ToolUse) isEvent()    {}
func (ToolResult) isEvent() {}
func (Error) isEvent()      {}
func (Result) isEvent()     {}
func (Done) isEvent()       {}
func (Log) isEvent()        {}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// rawLine is the loose shape agents write. Several CLIs disagree on field
// names, so aliases are folded here.
type rawLine struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Model     string          `json:"model"`
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	Delta     bool            `json:"delta"`
	ToolName  string          `json:"tool_name"`
	Name      string          `json:"name"`
	ToolID    string          `json:"tool_id"`
	ID        string          `json:"id"`
	CallID    string          `json:"call_id"`
	Params    json.RawMessage `json:"parameters"`
	Input     json.RawMessage `json:"input"`
	Args      json.RawMessage `json:"args"`
	Status    json.RawMessage `json:"status"`
	Output    json.RawMessage `json:"output"`
	Message   json.RawMessage `json:"message"`
	Error     json.RawMessage `json:"error"`
	ExitCode  *int            `json:"exit_code"`
	Stats     json.RawMessage `json:"stats"`
}

// ParseLine decodes one line of agent output. Lines that are not JSON
// objects of a known type come back as Log so nothing is lost.
func ParseLine(line string) Event {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return Log{Line: line}
	}

	var raw rawLine
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return Log{Line: line}
	}

	switch EventType(raw.Type) {
	case EventTypeInit:
		return Init{SessionID: raw.SessionID, Model: raw.Model}
	case EventTypeMessage:
		return Message{Role: raw.Role, Content: text(raw.Content), Delta: raw.Delta}
	case EventTypeToolUse:
		return ToolUse{
			ToolID:     first(raw.ToolID, raw.ID, raw.CallID),
			ToolName:   first(raw.ToolName, raw.Name),
			Parameters: object(firstRaw(raw.Params, raw.Input, raw.Args)),
		}
	case EventTypeToolResult:
		return ToolResult{
			ToolID: first(raw.ToolID, raw.ID, raw.CallID),
			Status: text(raw.Status),
			Output: text(firstRaw(raw.Output, raw.Content, raw.Error)),
		}
	case EventTypeError:
		return Error{Message: text(firstRaw(raw.Message, raw.Error, raw.Content))}
	case EventTypeResult, EventTypeDone:
		return Result{Status: text(raw.Status), ExitCode: raw.ExitCode, Stats: raw.Stats}
	default:
		return Log{Line: line}
	}
}

// Encode renders an event in its wire form: the event's fields plus
// "type", "seq" and "ts".
func Encode(ev Event, seq int, ts int64) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", ev.Type(), err)
	}
	typ, err := json.Marshal(ev.Type())
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(typ)
	buf.WriteString(`,"seq":`)
	buf.WriteString(strconv.Itoa(seq))
	buf.WriteString(`,"ts":`)
	buf.WriteString(strconv.FormatInt(ts, 10))
	inner := bytes.TrimSpace(body)
	inner = bytes.TrimPrefix(inner, []byte("{"))
	inner = bytes.TrimSuffix(inner, []byte("}"))
	if len(bytes.TrimSpace(inner)) > 0 {
		buf.WriteByte(',')
		buf.Write(inner)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstRaw(vals ...json.RawMessage) json.RawMessage {
	for _, v := range vals {
		if len(v) > 0 && string(v) != "null" {
			return v
		}
	}
	return nil
}

// text flattens a JSON value to a string. Strings are unquoted, objects
// with a "message" or "text" key use that, anything else is kept as JSON.
func text(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, key := range []string{"message", "text"} {
			if v, ok := obj[key].(string); ok {
				return v
			}
		}
	}
	return string(raw)
}

func object(raw json.RawMessage) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return map[string]interface{}{"value": text(raw)}
	}
	return obj
}
