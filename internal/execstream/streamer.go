// Package execstream runs allow-listed one-shot commands inside an
// experiment workspace and streams their output line by line.
package execstream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/CoolGuy2982/AI-Researcher/internal/domain"
	"github.com/CoolGuy2982/AI-Researcher/internal/policy"
	"github.com/CoolGuy2982/AI-Researcher/internal/workspace"
)

// DefaultTimeout is the wall-clock limit for a single command.
const DefaultTimeout = 5 * time.Minute

const maxLineSize = 1 << 20

var (
	ErrCommandNotAllowed = errors.New("command not allowed")
	ErrPathTraversal     = errors.New("argument resolves outside workspace")
)

// EmitFunc receives stream events in order. Returning an error stops the
// command.
type EmitFunc func(domain.ExecEvent) error

// Streamer validates and runs commands.
type Streamer struct {
	policy  *policy.Engine
	timeout time.Duration
	logger  *zap.Logger
}

// NewStreamer creates a streamer. A non-positive timeout uses DefaultTimeout.
func NewStreamer(engine *policy.Engine, timeout time.Duration, logger *zap.Logger) *Streamer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Streamer{
		policy:  engine,
		timeout: timeout,
		logger:  logger.Named("exec"),
	}
}

// Validate splits commandLine into argv and checks it against the policy
// and the workspace boundary rooted at root.
func (s *Streamer) Validate(ctx context.Context, root, commandLine string) ([]string, error) {
	argv, err := Split(commandLine)
	if err != nil {
		return nil, err
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty command", domain.ErrInvalidRequest)
	}

	decision, err := s.policy.Evaluate(ctx, policy.CommandInput{Command: argv[0], Args: argv[1:]})
	if err != nil {
		return nil, err
	}
	if !decision.Allow {
		return nil, fmt.Errorf("%w: %s: %s", ErrCommandNotAllowed, argv[0], decision.Reason)
	}

	for _, arg := range argv[1:] {
		candidate := arg
		if strings.HasPrefix(arg, "-") {
			i := strings.IndexByte(arg, '=')
			if i < 0 {
				continue
			}
			candidate = arg[i+1:]
		}
		if candidate == "" {
			continue
		}
		if _, err := workspace.Resolve(root, candidate); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrPathTraversal, arg)
		}
	}
	return argv, nil
}

// Split tokenizes a command line on whitespace. Single and double quotes
// group words; there is no escaping and no shell expansion.
func Split(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		quote   rune
		inToken bool
	)
	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inToken = true
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if inToken {
				args = append(args, cur.String())
				cur.Reset()
				inToken = false
			}
		default:
			cur.WriteRune(r)
			inToken = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("%w: unterminated quote", domain.ErrInvalidRequest)
	}
	if inToken {
		args = append(args, cur.String())
	}
	return args, nil
}

// Run executes argv in root and emits every output line followed by one
// exit event. If ctx ends first the process is killed and ctx.Err() is
// returned without an exit event.
func (s *Streamer) Run(ctx context.Context, root string, argv []string, emit EmitFunc) error {
	if len(argv) == 0 {
		return fmt.Errorf("%w: empty command", domain.ErrInvalidRequest)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = root
	// Own process group so a kill reaches anything the command forks.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to open stderr: %w", err)
	}

	var mu sync.Mutex
	send := func(ev domain.ExecEvent) error {
		mu.Lock()
		defer mu.Unlock()
		if err := emit(ev); err != nil {
			cancel()
			return err
		}
		return nil
	}

	if err := cmd.Start(); err != nil {
		code := -1
		return send(domain.ExecEvent{Stream: domain.StreamExit, Code: &code, Error: err.Error()})
	}
	s.logger.Info("command started",
		zap.Strings("argv", argv),
		zap.String("dir", root),
		zap.Int("pid", cmd.Process.Pid))

	var g errgroup.Group
	g.Go(func() error { return pump(stdout, domain.StreamStdout, send) })
	g.Go(func() error { return pump(stderr, domain.StreamStderr, send) })
	pumpErr := g.Wait()
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		s.logger.Info("command abandoned by client", zap.Strings("argv", argv))
		return ctx.Err()
	}
	if pumpErr != nil {
		return pumpErr
	}

	code := 0
	exit := domain.ExecEvent{Stream: domain.StreamExit, Code: &code}
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		code = -1
		exit.Error = "timeout"
	case waitErr != nil:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
			exit.Error = waitErr.Error()
		}
	}

	s.logger.Info("command finished", zap.Strings("argv", argv), zap.Int("code", code))
	return send(exit)
}

func pump(r io.Reader, stream string, send EmitFunc) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		if err := send(domain.ExecEvent{Stream: stream, Line: sc.Text()}); err != nil {
			return err
		}
	}
	// A killed process closes its pipes; reads after that are not failures.
	if err := sc.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}
