// Package agent runs the external coding agent as a subprocess and turns
// its newline-delimited JSON output into typed events.
package agent

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/CoolGuy2982/AI-Researcher/internal/domain"
)

// DefaultGracePeriod is how long Cancel waits after SIGTERM before SIGKILL.
const DefaultGracePeriod = 5 * time.Second

// ErrCancelledBeforeStart is reported when Cancel ran before Start.
var ErrCancelledBeforeStart = errors.New("agent cancelled before start")

// Launcher creates agent processes for one executable.
type Launcher struct {
	Command     string
	GracePeriod time.Duration
	logger      *zap.Logger
}

// NewLauncher creates a launcher for command.
func NewLauncher(command string, grace time.Duration, logger *zap.Logger) *Launcher {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{
		Command:     command,
		GracePeriod: grace,
		logger:      logger.Named("agent"),
	}
}

// NewProcess prepares, but does not start, an agent process.
func (l *Launcher) NewProcess(opts Options) *Process {
	return &Process{
		command: l.Command,
		args:    BuildArgs(opts),
		opts:    opts,
		grace:   l.GracePeriod,
		logger:  l.logger,
		done:    make(chan struct{}),
	}
}

// Process is one agent subprocess.
type Process struct {
	command string
	args    []string
	opts    Options
	grace   time.Duration
	logger  *zap.Logger

	mu        sync.Mutex
	cmd       *exec.Cmd
	started   bool
	cancelled bool

	// emitMu serializes handler calls from the stdout and stderr copiers.
	emitMu sync.Mutex

	done chan struct{}
}

// Args returns the command-line arguments the process runs with.
func (p *Process) Args() []string {
	return append([]string(nil), p.args...)
}

// Start spawns the process and delivers notifications to h. It never
// returns an error: spawn failures arrive as h.OnSpawnError.
func (p *Process) Start(h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}
	p.started = true

	if p.cancelled {
		go p.spawnFailed(h, ErrCancelledBeforeStart)
		return
	}

	stdout := &stdoutWriter{p: p, h: h}
	cmd := exec.Command(p.command, p.args...)
	cmd.Dir = p.opts.Dir
	cmd.Env = append(os.Environ(), p.opts.Env...)
	cmd.Stdout = stdout
	cmd.Stderr = &stderrWriter{p: p, h: h}
	// Own process group, so cancel reaches whatever the agent spawned.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// Bound the wait for output copiers if a grandchild keeps the pipes open.
	cmd.WaitDelay = p.grace

	if err := cmd.Start(); err != nil {
		p.logger.Warn("failed to spawn agent", zap.String("command", p.command), zap.Error(err))
		go p.spawnFailed(h, err)
		return
	}
	p.cmd = cmd
	p.logger.Info("agent started",
		zap.String("command", p.command),
		zap.Int("pid", cmd.Process.Pid),
		zap.String("dir", p.opts.Dir),
		zap.Bool("resume", p.opts.ResumeToken != ""))

	go p.wait(cmd, stdout, h)
}

func (p *Process) spawnFailed(h Handler, err error) {
	defer close(p.done)
	h.OnSpawnError(err)
}

func (p *Process) wait(cmd *exec.Cmd, stdout *stdoutWriter, h Handler) {
	defer close(p.done)

	err := cmd.Wait()
	res := exitResult(cmd, err)
	// Background jobs the agent left behind must not outlive the run.
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)

	p.emitMu.Lock()
	if rest, ok := stdout.splitter.Flush(); ok && strings.TrimSpace(rest) != "" {
		h.OnEvent(domain.ParseLine(rest))
	}
	p.emitMu.Unlock()

	p.logger.Info("agent exited",
		zap.Int("pid", cmd.Process.Pid),
		zap.Int("code", res.Code),
		zap.String("signal", res.Signal))
	h.OnExit(res)
}

// exitResult reads the agent's own exit status. ErrWaitDelay means the
// agent exited but something it spawned held the output pipes open, which
// says nothing about how the agent itself ended.
func exitResult(cmd *exec.Cmd, err error) ExitResult {
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		return stateResult(exitErr.ProcessState)
	case err == nil, errors.Is(err, exec.ErrWaitDelay):
		if cmd.ProcessState != nil {
			return stateResult(cmd.ProcessState)
		}
	}
	return ExitResult{Code: -1}
}

func stateResult(ps *os.ProcessState) ExitResult {
	res := ExitResult{Code: ps.ExitCode()}
	if status, ok := ps.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		res.Signal = status.Signal().String()
	}
	return res
}

// Cancel sends SIGTERM to the agent's process group and escalates to
// SIGKILL after the grace period. Calling it more than once, or after
// exit, does nothing.
func (p *Process) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancelled {
		return
	}
	p.cancelled = true

	if p.cmd == nil || p.cmd.Process == nil {
		return
	}
	select {
	case <-p.done:
		return
	default:
	}

	proc := p.cmd.Process
	pid := proc.Pid
	p.logger.Info("cancelling agent", zap.Int("pid", pid))
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return
		}
		_ = proc.Kill()
		return
	}

	grace := p.grace
	go func() {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-p.done:
		case <-timer.C:
			p.logger.Warn("agent ignored SIGTERM, killing", zap.Int("pid", pid))
			_ = syscall.Kill(-pid, syscall.SIGKILL)
		}
	}()
}

// Stop cancels the process and waits for it to exit or ctx to end.
func (p *Process) Stop(ctx context.Context) error {
	p.Cancel()

	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return nil
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed after the final notification has been delivered.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// PID returns the OS process id, or 0 if the process is not running.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

type stdoutWriter struct {
	p        *Process
	h        Handler
	splitter LineSplitter
}

func (w *stdoutWriter) Write(chunk []byte) (int, error) {
	w.p.emitMu.Lock()
	defer w.p.emitMu.Unlock()

	for _, line := range w.splitter.Write(chunk) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		w.h.OnEvent(domain.ParseLine(line))
	}
	return len(chunk), nil
}

type stderrWriter struct {
	p *Process
	h Handler
}

func (w *stderrWriter) Write(chunk []byte) (int, error) {
	text := string(chunk)
	if strings.TrimSpace(text) == "" {
		return len(chunk), nil
	}

	w.p.emitMu.Lock()
	defer w.p.emitMu.Unlock()
	w.h.OnStderr(text)
	return len(chunk), nil
}
