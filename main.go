package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	serverURL  string
)

var rootCmd = &cobra.Command{
	Use:   "researcher",
	Short: "Research session server for headless coding agents",
	Long: `researcher runs an external coding agent per experiment, keeps an
in-memory session for each run, and streams the agent's events to any number
of attached clients over SSE or WebSocket.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (default $CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "server base URL for client commands")

	rootCmd.AddCommand(serveCmd, watchCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
