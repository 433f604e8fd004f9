package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rendis/flowplan/internal/compiler"
	"github.com/rendis/flowplan/internal/loader"
	"github.com/rendis/flowplan/internal/logging"
	"github.com/rendis/flowplan/internal/store"
)

// app carries the state shared by every subcommand.
type app struct {
	cfg    Config
	logger *slog.Logger
	loader *loader.Loader

	dbFlag        string
	logLevelFlag  string
	logFormatFlag string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "flowplan",
		Short:         "Compile visual workflow graphs into execution plans",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.dbFlag, "db", "", "plan database path (overrides FLOWPLAN_DB_PATH)")
	root.PersistentFlags().StringVar(&a.logLevelFlag, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&a.logFormatFlag, "log-format", "", "log format: text or json")

	root.AddCommand(
		a.buildCmd(),
		a.validateCmd(),
		a.summaryCmd(),
		a.inspectCmd(),
		a.diagramCmd(),
		a.plansCmd(),
		a.serveCmd(),
		versionCmd(),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if a.dbFlag != "" {
		cfg.DBPath = a.dbFlag
	}
	if a.logLevelFlag != "" {
		cfg.LogLevel = a.logLevelFlag
	}
	if a.logFormatFlag != "" {
		cfg.LogFormat = a.logFormatFlag
	}
	a.cfg = cfg

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	a.logger = logging.New(cmd.ErrOrStderr(), level, cfg.LogFormat)

	a.loader, err = loader.New()
	return err
}

// openStore opens and migrates the plan database.
func (a *app) openStore(cmd *cobra.Command) (*store.LibSQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(a.cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	st, err := store.NewLibSQLStore("file:" + a.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(cmd.Context()); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// newCompiler returns a Service configured from a.cfg. st may be nil.
func (a *app) newCompiler(st store.PlanStore, extra ...compiler.Option) *compiler.Service {
	opts := []compiler.Option{
		compiler.WithLogger(a.logger),
		compiler.WithBuildOptions(a.cfg.buildOptions()...),
		compiler.WithCache(a.cfg.Cache && st != nil),
	}
	if st != nil {
		opts = append(opts, compiler.WithStore(st))
	}
	return compiler.New(append(opts, extra...)...)
}
