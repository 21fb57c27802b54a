package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/CoolGuy2982/AI-Researcher/internal/agent"
	"github.com/CoolGuy2982/AI-Researcher/internal/config"
	"github.com/CoolGuy2982/AI-Researcher/internal/execstream"
	"github.com/CoolGuy2982/AI-Researcher/internal/hub"
	"github.com/CoolGuy2982/AI-Researcher/internal/logging"
	"github.com/CoolGuy2982/AI-Researcher/internal/policy"
	"github.com/CoolGuy2982/AI-Researcher/internal/service"
	handler "github.com/CoolGuy2982/AI-Researcher/internal/transport/http"
	"github.com/CoolGuy2982/AI-Researcher/internal/workspace"
)

var (
	servePort      int
	serveWorkspace string
	serveAgent     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		// Flags override file and environment.
		if cmd.Flags().Changed("port") {
			cfg.HTTPPort = servePort
		}
		if cmd.Flags().Changed("workspace") {
			cfg.WorkspaceRoot = serveWorkspace
		}
		if cmd.Flags().Changed("agent") {
			cfg.AgentCommand = serveAgent
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runServer(cfg)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "HTTP port")
	serveCmd.Flags().StringVar(&serveWorkspace, "workspace", "./workspaces", "workspace root directory")
	serveCmd.Flags().StringVar(&serveAgent, "agent", "gemini", "agent executable")
}

func runServer(cfg *config.Config) error {
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting research server",
		zap.Int("port", cfg.HTTPPort),
		zap.String("workspace_root", cfg.WorkspaceRoot),
		zap.String("agent_command", cfg.AgentCommand),
		zap.Bool("abort_on_disconnect", cfg.AbortOnDisconnect))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize policy engine
	policyEngine, err := policy.NewDefaultEngine(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	ws, err := workspace.NewManager(cfg.WorkspaceRoot, logger)
	if err != nil {
		return err
	}

	registry := hub.NewRegistry(logger)
	broadcaster := hub.NewBroadcaster(registry, logger)
	launcher := service.FromAgentLauncher(agent.NewLauncher(cfg.AgentCommand, cfg.CancelGrace, logger))
	streamer := execstream.NewStreamer(policyEngine, cfg.ExecTimeout, logger)

	// Initialize service
	svc := service.New(registry, broadcaster, ws, launcher, streamer, cfg, logger)

	server := handler.NewServer(svc, logger)

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Info("http server listening", zap.Int("port", cfg.HTTPPort))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	}

	logger.Info("shutting down")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Agents first: ending their sessions closes the open streams.
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to stop agents gracefully", zap.Error(err))
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to shutdown server gracefully", zap.Error(err))
	}

	logger.Info("research server stopped")
	return nil
}
