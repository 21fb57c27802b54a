package execstream

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/CoolGuy2982/AI-Researcher/internal/domain"
	"github.com/CoolGuy2982/AI-Researcher/internal/policy"
)

func newTestStreamer(t *testing.T, timeout time.Duration) *Streamer {
	t.Helper()
	engine, err := policy.NewDefaultEngine(context.Background())
	require.NoError(t, err)
	return NewStreamer(engine, timeout, zap.NewNop())
}

func collect(events *[]domain.ExecEvent) EmitFunc {
	return func(ev domain.ExecEvent) error {
		*events = append(*events, ev)
		return nil
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"ls -la", []string{"ls", "-la"}},
		{"  echo   hi  ", []string{"echo", "hi"}},
		{`python3 -c "print('a b')"`, []string{"python3", "-c", "print('a b')"}},
		{`grep 'two words' data.txt`, []string{"grep", "two words", "data.txt"}},
		{`echo ""`, []string{"echo", ""}},
		{"", nil},
	}
	for _, tt := range tests {
		got, err := Split(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := Split(`echo "open`)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestValidate(t *testing.T) {
	s := newTestStreamer(t, time.Second)
	root := t.TempDir()
	ctx := context.Background()

	argv, err := s.Validate(ctx, root, "cat results/out.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "results/out.txt"}, argv)

	_, err = s.Validate(ctx, root, "cat ../../etc/passwd")
	assert.ErrorIs(t, err, ErrPathTraversal)

	_, err = s.Validate(ctx, root, "grep --file=../secret x")
	assert.ErrorIs(t, err, ErrPathTraversal)

	_, err = s.Validate(ctx, root, "head /etc/shadow")
	assert.ErrorIs(t, err, ErrPathTraversal)

	_, err = s.Validate(ctx, root, "ls -la")
	assert.NoError(t, err)

	_, err = s.Validate(ctx, root, "rm -rf .")
	assert.ErrorIs(t, err, ErrCommandNotAllowed)

	_, err = s.Validate(ctx, root, "pip install requests")
	assert.ErrorIs(t, err, ErrCommandNotAllowed)

	_, err = s.Validate(ctx, root, "pip list")
	assert.NoError(t, err)

	_, err = s.Validate(ctx, root, "find . -name '*.csv'")
	assert.NoError(t, err)

	_, err = s.Validate(ctx, root, "find . -exec rm {} ;")
	assert.ErrorIs(t, err, ErrCommandNotAllowed)

	_, err = s.Validate(ctx, root, "find results -delete")
	assert.ErrorIs(t, err, ErrCommandNotAllowed)

	_, err = s.Validate(ctx, root, "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestRunStreamsLinesAndExit(t *testing.T) {
	s := newTestStreamer(t, 5*time.Second)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "data.txt"), []byte("one\ntwo\n"), 0o644))

	var events []domain.ExecEvent
	require.NoError(t, s.Run(context.Background(), root, []string{"cat", "data.txt"}, collect(&events)))

	require.Len(t, events, 3)
	assert.Equal(t, domain.ExecEvent{Stream: domain.StreamStdout, Line: "one"}, events[0])
	assert.Equal(t, domain.ExecEvent{Stream: domain.StreamStdout, Line: "two"}, events[1])
	assert.Equal(t, domain.StreamExit, events[2].Stream)
	require.NotNil(t, events[2].Code)
	assert.Equal(t, 0, *events[2].Code)
}

func TestRunStderrAndNonZeroExit(t *testing.T) {
	s := newTestStreamer(t, 5*time.Second)

	var events []domain.ExecEvent
	err := s.Run(context.Background(), t.TempDir(), []string{"sh", "-c", "echo oops >&2; exit 4"}, collect(&events))
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, domain.ExecEvent{Stream: domain.StreamStderr, Line: "oops"}, events[0])
	assert.Equal(t, 4, *events[1].Code)
	assert.Empty(t, events[1].Error)
}

func TestRunTimeout(t *testing.T) {
	s := newTestStreamer(t, 100*time.Millisecond)

	var events []domain.ExecEvent
	start := time.Now()
	err := s.Run(context.Background(), t.TempDir(), []string{"sleep", "10"}, collect(&events))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	require.Len(t, events, 1)
	assert.Equal(t, domain.StreamExit, events[0].Stream)
	assert.Equal(t, -1, *events[0].Code)
	assert.Equal(t, "timeout", events[0].Error)
}

func TestRunClientDisconnectKills(t *testing.T) {
	s := newTestStreamer(t, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	var events []domain.ExecEvent
	start := time.Now()
	err := s.Run(ctx, t.TempDir(), []string{"sleep", "10"}, collect(&events))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Empty(t, events)
}

func TestRunEmitFailureStopsCommand(t *testing.T) {
	s := newTestStreamer(t, time.Minute)
	gone := errors.New("client gone")

	start := time.Now()
	err := s.Run(context.Background(), t.TempDir(), []string{"sh", "-c", "echo first; sleep 10"}, func(domain.ExecEvent) error {
		return gone
	})
	assert.ErrorIs(t, err, gone)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunMissingBinary(t *testing.T) {
	s := newTestStreamer(t, time.Second)

	var events []domain.ExecEvent
	require.NoError(t, s.Run(context.Background(), t.TempDir(), []string{"definitely-not-a-binary-xyz"}, collect(&events)))
	require.Len(t, events, 1)
	assert.Equal(t, -1, *events[0].Code)
	assert.NotEmpty(t, events[0].Error)
}
