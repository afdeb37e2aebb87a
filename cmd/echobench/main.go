package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/torosent/echobench/internal/config"
	"github.com/torosent/echobench/internal/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "echobench",
		Short:         "Round-trip latency benchmark over publish/subscribe transports",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Measure round trips for every payload size and print the statistics",
		Long: `Publishes echo messages on the outbound topic, waits for each one to come
back on the inbound topic, and reports bytes,mean,stdev,min,max,p50,p90,p99,p9999
in nanoseconds for every payload size. The memory transport runs its own
responder; network transports need "echobench respond" on the other side.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			return runSuite(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	respondCmd := &cobra.Command{
		Use:   "respond",
		Short: "Echo every message from the outbound topic back on the inbound topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			return runResponder(cmd.Context(), cfg)
		},
	}

	relayCmd := &cobra.Command{
		Use:   "relay",
		Short: "Serve the topic relay used by the websocket and grpc transports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			return runRelay(cmd.Context(), cfg)
		},
	}

	for _, cmd := range []*cobra.Command{runCmd, respondCmd, relayCmd} {
		config.RegisterFlags(cmd)
		root.AddCommand(cmd)
	}
	return root
}

// load builds the configuration of cmd and applies its log level.
func load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.NewLoader().FromFlags(cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := logging.SetLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("log_level: %w", err)
	}
	return cfg, nil
}
