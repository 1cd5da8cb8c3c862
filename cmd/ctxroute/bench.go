package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ctxroute/internal/monitor"
)

func newBenchCmd(flags *globalFlags) *cobra.Command {
	var (
		vectors   int
		dims      int
		iters     int
		backend   string
		blockSize int
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Compare direct and tiled attention on random inputs",
		Long: `Time the direct and tiled attention paths on random unit vectors and
report the speedup and score-buffer memory reduction. Flags default to the
benchmark section of the config.

Examples:
  ctxroute bench
  ctxroute bench --vectors 1024 --dims 128 --backend parallel`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if backend != "" {
				cfg.Attention.Backend = backend
			}
			if blockSize > 0 {
				cfg.Attention.BlockSize = blockSize
			}
			if vectors <= 0 {
				vectors = cfg.Benchmark.NumVectors
			}
			if dims <= 0 {
				dims = cfg.Benchmark.Dimensions
			}
			if iters <= 0 {
				iters = cfg.Benchmark.Iterations
			}

			engine, err := newEngine(cfg, flags.cliLogger())
			if err != nil {
				return err
			}
			res, err := engine.Benchmark(cmd.Context(), vectors, dims, iters)
			if err != nil {
				return err
			}
			if flags.jsonOutput {
				return printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintln(cmd.OutOrStdout(), monitor.RenderBenchmark(*res))
			return nil
		},
	}
	cmd.Flags().IntVar(&vectors, "vectors", 0, "number of query/key/value vectors")
	cmd.Flags().IntVar(&dims, "dims", 0, "vector dimension")
	cmd.Flags().IntVar(&iters, "iters", 0, "timed iterations per path")
	cmd.Flags().StringVar(&backend, "backend", "", "attention backend (reference, parallel)")
	cmd.Flags().IntVar(&blockSize, "block-size", 0, "tile size")
	return cmd
}

func newTopCmd() *cobra.Command {
	var (
		server   string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Live dashboard for a running ctxroute server",
		Long: `Poll a ctxroute server and chart exploration rate, TD error, Q-table
size and update rate. Press r to refresh, q to quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return fmt.Errorf("interval must be positive, got %s", interval)
			}
			client := monitor.NewClient(server)
			if err := checkServer(cmd.Context(), client); err != nil {
				return err
			}
			model := monitor.NewModel(client, server, interval)
			p := tea.NewProgram(model,
				tea.WithAltScreen(),
				tea.WithContext(cmd.Context()),
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(cmd.OutOrStdout()),
			)
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("dashboard: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:9191", "ctxroute server URL")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "refresh interval")
	return cmd
}

// checkServer fails fast when the server is unreachable or reports a
// non-ok status, before the dashboard takes over the terminal.
func checkServer(ctx context.Context, client *monitor.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		return fmt.Errorf("server %s unreachable: %w", client.BaseURL(), err)
	}
	if health.Status != "ok" {
		return fmt.Errorf("server %s unhealthy: status %q", client.BaseURL(), health.Status)
	}
	return nil
}
