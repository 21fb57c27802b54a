package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Event
	}{
		{
			name: "init",
			line: `{"type":"init","session_id":"s1","model":"gemini-2.5-pro"}`,
			want: Init{SessionID: "s1", Model: "gemini-2.5-pro"},
		},
		{
			name: "message",
			line: `{"type":"message","role":"assistant","content":"hi"}`,
			want: Message{Role: "assistant", Content: "hi"},
		},
		{
			name: "tool use with aliases",
			line: `{"type":"tool_use","name":"read_file","id":"t1","input":{"path":"a.txt"}}`,
			want: ToolUse{ToolID: "t1", ToolName: "read_file", Parameters: map[string]interface{}{"path": "a.txt"}},
		},
		{
			name: "tool result",
			line: `{"type":"tool_result","tool_id":"t1","status":"success","output":"ok"}`,
			want: ToolResult{ToolID: "t1", Status: "success", Output: "ok"},
		},
		{
			name: "error with object",
			line: `{"type":"error","error":{"message":"quota"}}`,
			want: Error{Message: "quota"},
		},
		{
			name: "agent done maps to result",
			line: `{"type":"done","exit_code":0}`,
			want: Result{ExitCode: IntPtr(0)},
		},
		{
			name: "not json",
			line: "⠋ Thinking...",
			want: Log{Line: "⠋ Thinking..."},
		},
		{
			name: "broken json",
			line: `{"type":"message",`,
			want: Log{Line: `{"type":"message",`},
		},
		{
			name: "unknown type",
			line: `{"type":"telemetry","x":1}`,
			want: Log{Line: `{"type":"telemetry","x":1}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLine(tt.line))
		})
	}
}

func TestParseLineResultStats(t *testing.T) {
	ev := ParseLine(`{"type":"result","status":"success","stats":{"total_tokens":42}}`)
	res, ok := ev.(Result)
	require.True(t, ok)
	assert.Equal(t, "success", res.Status)
	assert.JSONEq(t, `{"total_tokens":42}`, string(res.Stats))
}

func TestEncode(t *testing.T) {
	data, err := Encode(Done{ExitCode: IntPtr(0), Status: SessionStatusCompleted}, 3, 1700)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"done","seq":3,"ts":1700,"exit_code":0,"status":"completed"}`, string(data))

	data, err = Encode(Error{Message: "boom"}, 0, 1)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "error", decoded["type"])
	assert.Equal(t, "boom", decoded["message"])
}

func TestEncodeEmptyBody(t *testing.T) {
	data, err := Encode(Result{}, 1, 2)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"result","seq":1,"ts":2}`, string(data))
}

func TestStatusFromExitCode(t *testing.T) {
	assert.Equal(t, SessionStatusCompleted, StatusFromExitCode(0))
	assert.Equal(t, SessionStatusFailed, StatusFromExitCode(2))
	assert.True(t, SessionStatusAborted.IsTerminal())
	assert.False(t, SessionStatusRunning.IsTerminal())
}
