package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxroute/internal/attention"
	"github.com/fyrsmithlabs/ctxroute/internal/config"
	"github.com/fyrsmithlabs/ctxroute/internal/router"
	"github.com/fyrsmithlabs/ctxroute/internal/snapshot"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath   string
	snapshotPath string
	verbose      bool
	jsonOutput   bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "ctxroute",
		Short: "Q-learning task router and tiled attention engine",
		Long: `ctxroute learns which agent role should handle a task description from
reward feedback, and computes scaled dot-product attention with a tiled,
memory-bounded kernel.

The learned model is persisted to a JSON snapshot between invocations.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default ~/.config/ctxroute/config.yaml)")
	pf.StringVar(&flags.snapshotPath, "snapshot", "", "model snapshot path (overrides snapshot.path)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "log to stderr")
	pf.BoolVar(&flags.jsonOutput, "json", false, "print JSON instead of formatted output")

	root.AddCommand(
		newServeCmd(flags),
		newRouteCmd(flags),
		newFeedbackCmd(flags),
		newStatsCmd(flags),
		newExportCmd(flags),
		newImportCmd(flags),
		newBenchCmd(flags),
		newTopCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig loads the application config and applies flag overrides.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFile(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.snapshotPath != "" {
		cfg.Snapshot.Path = f.snapshotPath
	}
	return cfg, nil
}

// cliLogger returns a development logger on stderr when verbose, else a no-op.
func (f *globalFlags) cliLogger() *zap.Logger {
	if !f.verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// localModel is a router restored from the snapshot store.
type localModel struct {
	cfg    *config.Config
	router *router.Router
	store  *snapshot.FileStore
	logger *zap.Logger
}

// openModel builds a router from config and restores the persisted snapshot
// if one exists.
func (f *globalFlags) openModel(ctx context.Context) (*localModel, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := f.cliLogger()

	path, err := config.ExpandPath(cfg.Snapshot.Path)
	if err != nil {
		return nil, err
	}
	store, err := snapshot.NewFileStore(path, logger)
	if err != nil {
		return nil, err
	}

	r, err := router.New(router.ConfigFromApp(cfg),
		router.WithLogger(logger),
		router.WithSnapshotter(store),
	)
	if err != nil {
		return nil, err
	}
	if _, err := store.Restore(ctx, r); err != nil {
		return nil, fmt.Errorf("restoring model from %s: %w", path, err)
	}
	return &localModel{cfg: cfg, router: r, store: store, logger: logger}, nil
}

// save persists the router's current model.
func (m *localModel) save(ctx context.Context) error {
	if err := m.store.Save(ctx, m.router.Export()); err != nil {
		return fmt.Errorf("saving model to %s: %w", m.store.Path(), err)
	}
	return nil
}

func newEngine(cfg *config.Config, logger *zap.Logger, opts ...attention.Option) (*attention.Engine, error) {
	opts = append([]attention.Option{attention.WithLogger(logger)}, opts...)
	return attention.New(attention.ConfigFromApp(cfg), opts...)
}
