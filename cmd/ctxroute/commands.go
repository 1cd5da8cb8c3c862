package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	ctxhttp "github.com/fyrsmithlabs/ctxroute/internal/http"
	"github.com/fyrsmithlabs/ctxroute/internal/monitor"
	"github.com/fyrsmithlabs/ctxroute/internal/router"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRouteCmd(flags *globalFlags) *cobra.Command {
	var explore bool

	cmd := &cobra.Command{
		Use:   "route <task>",
		Short: "Route a task description to an agent role",
		Long: `Route a task using the persisted model. Routing is greedy unless
--explore is set, in which case the current exploration rate applies.

Examples:
  ctxroute route "fix the login redirect bug"
  ctxroute route --explore --json "write integration tests for auth"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := flags.openModel(ctx)
			if err != nil {
				return err
			}
			task := strings.Join(args, " ")
			d := m.router.Route(ctx, task, explore)

			if flags.jsonOutput {
				return printJSON(cmd.OutOrStdout(), d)
			}
			fmt.Fprintln(cmd.OutOrStdout(), monitor.RenderDecision(task, d))
			return nil
		},
	}
	cmd.Flags().BoolVar(&explore, "explore", false, "allow epsilon-greedy exploration")
	return cmd
}

func newFeedbackCmd(flags *globalFlags) *cobra.Command {
	var (
		route  string
		reward float64
		next   string
	)

	cmd := &cobra.Command{
		Use:   "feedback <task>",
		Short: "Reward a routing outcome and persist the updated model",
		Long: `Apply a reward for routing <task> to --route. With --next the update
bootstraps from the best known value of the follow-up task.

Examples:
  ctxroute feedback "fix the login redirect bug" --route coder --reward 1
  ctxroute feedback "review auth change" --route reviewer --reward 0.5 --next "merge auth change"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := flags.openModel(ctx)
			if err != nil {
				return err
			}
			if !containsRoute(m.router.Routes(), route) {
				return fmt.Errorf("unknown route %q (routes: %s)", route, strings.Join(m.router.Routes(), ", "))
			}

			task := strings.Join(args, " ")
			var td float64
			if cmd.Flags().Changed("next") {
				td = m.router.UpdateTransition(ctx, task, route, reward, next)
			} else {
				td = m.router.Update(ctx, task, route, reward)
			}
			if err := m.save(ctx); err != nil {
				return err
			}

			resp := ctxhttp.FeedbackResponse{TDError: td, Stats: m.router.Stats()}
			if flags.jsonOutput {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "TD error: %.4f  updates: %d  states: %d  epsilon: %.4f\n",
				td, resp.Stats.UpdateCount, resp.Stats.TableSize, resp.Stats.Epsilon)
			return nil
		},
	}
	cmd.Flags().StringVar(&route, "route", "", "route that handled the task (required)")
	cmd.Flags().Float64Var(&reward, "reward", 0, "reward for the outcome")
	cmd.Flags().StringVar(&next, "next", "", "follow-up task to bootstrap from")
	_ = cmd.MarkFlagRequired("route")
	return cmd
}

func newStatsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show learner statistics for the persisted model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := flags.openModel(cmd.Context())
			if err != nil {
				return err
			}
			resp := ctxhttp.StatsResponse{
				Router:   m.router.Stats(),
				Routes:   m.router.Routes(),
				Memories: -1,
			}
			if flags.jsonOutput {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintln(cmd.OutOrStdout(), monitor.RenderStats(resp))
			return nil
		},
	}
}

func newExportCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Export the persisted model as JSON",
		Long: `Write the model to file, or to stdout when file is omitted or "-".

Examples:
  ctxroute export model-backup.json
  ctxroute export | jq .stats`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := flags.openModel(cmd.Context())
			if err != nil {
				return err
			}
			model := m.router.Export()

			if len(args) == 0 || args[0] == "-" {
				return printJSON(cmd.OutOrStdout(), model)
			}
			data, err := json.MarshalIndent(model, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal model: %w", err)
			}
			if err := os.WriteFile(args[0], data, 0600); err != nil {
				return fmt.Errorf("failed to write %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d states to %s\n", len(model.QTable), args[0])
			return nil
		},
	}
}

func newImportCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the persisted model with an exported one",
		Long: `Validate an exported model and make it the persisted model. The import is
all-or-nothing: a malformed or incompatible file leaves the current model
untouched. Use "-" to read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to read model: %w", err)
			}

			var model router.Model
			if err := json.Unmarshal(data, &model); err != nil {
				return &router.ModelFormatError{Field: "json", Reason: err.Error()}
			}

			m, err := flags.openModel(ctx)
			if err != nil {
				return err
			}
			if err := m.router.Import(&model); err != nil {
				return err
			}
			if err := m.save(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d states into %s\n", len(model.QTable), m.store.Path())
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ctxroute by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}

func containsRoute(routes []string, route string) bool {
	for _, r := range routes {
		if r == route {
			return true
		}
	}
	return false
}
