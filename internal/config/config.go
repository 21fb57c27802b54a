// Package config provides configuration for the research server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the research server configuration.
type Config struct {
	// Server settings
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Workspace settings
	WorkspaceRoot   string        `yaml:"workspace_root"`
	FindingsWaitMax time.Duration `yaml:"findings_wait_max"`

	// Agent settings
	AgentCommand     string        `yaml:"agent_command"`
	AgentModel       string        `yaml:"agent_model"`
	AgentAutoApprove bool          `yaml:"agent_auto_approve"`
	AgentSandbox     bool          `yaml:"agent_sandbox"`
	CancelGrace      time.Duration `yaml:"cancel_grace"`

	// Streaming settings
	SinkBuffer        int  `yaml:"sink_buffer"`
	AbortOnDisconnect bool `yaml:"abort_on_disconnect"`

	// Command execution
	ExecTimeout time.Duration `yaml:"exec_timeout"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTPPort:         8080,
		ShutdownTimeout:  10 * time.Second,
		WorkspaceRoot:    "./workspaces",
		FindingsWaitMax:  60 * time.Second,
		AgentCommand:     "gemini",
		AgentAutoApprove: true,
		CancelGrace:      5 * time.Second,
		SinkBuffer:       256,
		ExecTimeout:      5 * time.Minute,
		LogLevel:         "info",
	}
}

// Load loads configuration from defaults, an optional YAML file and
// environment variables, in that order. An empty path falls back to
// CONFIG_FILE.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.HTTPPort = getEnvInt("HTTP_PORT", c.HTTPPort)
	c.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT_MS", c.ShutdownTimeout)
	c.WorkspaceRoot = getEnv("WORKSPACE_ROOT", c.WorkspaceRoot)
	c.FindingsWaitMax = getEnvDuration("FINDINGS_WAIT_MAX_MS", c.FindingsWaitMax)
	c.AgentCommand = getEnv("AGENT_COMMAND", c.AgentCommand)
	c.AgentModel = getEnv("AGENT_MODEL", c.AgentModel)
	c.AgentAutoApprove = getEnvBool("AGENT_AUTO_APPROVE", c.AgentAutoApprove)
	c.AgentSandbox = getEnvBool("AGENT_SANDBOX", c.AgentSandbox)
	c.CancelGrace = getEnvDuration("AGENT_CANCEL_GRACE_MS", c.CancelGrace)
	c.SinkBuffer = getEnvInt("SINK_BUFFER", c.SinkBuffer)
	c.AbortOnDisconnect = getEnvBool("ABORT_ON_DISCONNECT", c.AbortOnDisconnect)
	c.ExecTimeout = getEnvDuration("EXEC_TIMEOUT_MS", c.ExecTimeout)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Validate reports configuration values the server cannot run with.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port %d", c.HTTPPort)
	}
	if c.AgentCommand == "" {
		return fmt.Errorf("agent command is required")
	}
	if c.WorkspaceRoot == "" {
		return fmt.Errorf("workspace root is required")
	}
	if c.SinkBuffer <= 0 {
		return fmt.Errorf("sink buffer must be positive, got %d", c.SinkBuffer)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

// getEnvDuration reads a millisecond count, matching the *_MS key names.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}
