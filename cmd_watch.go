package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/CoolGuy2982/AI-Researcher/internal/client"
)

var watchRaw bool

var watchCmd = &cobra.Command{
	Use:   "watch <experiment-id>",
	Short: "Replay and follow an experiment's events until done",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		return client.New(serverURL).WatchUntilDone(ctx, args[0], func(msg client.Message) {
			if watchRaw {
				fmt.Fprintln(out, string(msg.Raw))
				return
			}
			fmt.Fprintln(out, client.Format(msg))
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <experiment-id>",
	Short: "Print an experiment's session status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		status, err := client.New(serverURL).Status(ctx, args[0])
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchRaw, "raw", false, "print frames as received, one per line")
}
