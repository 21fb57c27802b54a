package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/CoolGuy2982/AI-Researcher/internal/agent"
	"github.com/CoolGuy2982/AI-Researcher/internal/config"
	"github.com/CoolGuy2982/AI-Researcher/internal/execstream"
	"github.com/CoolGuy2982/AI-Researcher/internal/hub"
	"github.com/CoolGuy2982/AI-Researcher/internal/workspace"
)

// AgentProcess is a launched agent run.
type AgentProcess interface {
	Start(h agent.Handler)
	Cancel()
	Stop(ctx context.Context) error
	Done() <-chan struct{}
}

// Launcher builds agent processes.
type Launcher interface {
	NewProcess(opts agent.Options) AgentProcess
}

type agentLauncher struct {
	l *agent.Launcher
}

func (a agentLauncher) NewProcess(opts agent.Options) AgentProcess {
	return a.l.NewProcess(opts)
}

// FromAgentLauncher adapts an agent.Launcher to Launcher.
func FromAgentLauncher(l *agent.Launcher) Launcher {
	return agentLauncher{l: l}
}

type Service struct {
	registry    *hub.Registry
	broadcaster *hub.Broadcaster
	workspace   *workspace.Manager
	launcher    Launcher
	streamer    *execstream.Streamer
	config      *config.Config
	logger      *zap.Logger

	// Per-experiment locks serializing supersede-and-spawn.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
	// Last process spawned per experiment. It stays here after its session
	// ends so a new run can wait out an aborted one still shutting down.
	procs map[string]AgentProcess
}

func New(registry *hub.Registry, broadcaster *hub.Broadcaster, ws *workspace.Manager, launcher Launcher, streamer *execstream.Streamer, cfg *config.Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		registry:    registry,
		broadcaster: broadcaster,
		workspace:   ws,
		launcher:    launcher,
		streamer:    streamer,
		config:      cfg,
		logger:      logger.Named("service"),
		locks:       make(map[string]*sync.Mutex),
		procs:       make(map[string]AgentProcess),
	}
}

// Registry returns the session registry.
func (s *Service) Registry() *hub.Registry { return s.registry }

// Workspace returns the workspace manager.
func (s *Service) Workspace() *workspace.Manager { return s.workspace }

// Config returns the service configuration.
func (s *Service) Config() *config.Config { return s.config }

func (s *Service) lock(id string) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[id] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

func (s *Service) setProcess(id string, proc AgentProcess) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	s.procs[id] = proc
}

func (s *Service) lastProcess(id string) AgentProcess {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	return s.procs[id]
}

func (s *Service) processes() []AgentProcess {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	out := make([]AgentProcess, 0, len(s.procs))
	for _, p := range s.procs {
		out = append(out, p)
	}
	return out
}

func exited(proc AgentProcess) bool {
	select {
	case <-proc.Done():
		return true
	default:
		return false
	}
}
