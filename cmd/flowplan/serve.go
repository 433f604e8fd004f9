package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/rendis/flowplan/internal/compiler"
	"github.com/rendis/flowplan/internal/observability"
	"github.com/rendis/flowplan/internal/scheduler"
	"github.com/rendis/flowplan/pkg/mcp"
)

func (a *app) serveCmd() *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server with plan store maintenance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if transport == "" {
				transport = a.cfg.Transport
			}
			if transport != "stdio" && transport != "sse" {
				return fmt.Errorf("unknown transport %q (want stdio or sse)", transport)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			db, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			metrics, err := observability.NewMetricsRecorder(otel.GetMeterProvider())
			if err != nil {
				return err
			}
			comp := a.newCompiler(db,
				compiler.WithMetrics(metrics),
				compiler.WithSpanManager(observability.NewSpanManager(otel.GetTracerProvider())),
			)

			schedCfg, err := a.cfg.schedulerConfig()
			if err != nil {
				return err
			}
			sched, err := scheduler.NewScheduler(db, schedCfg, a.logger)
			if err != nil {
				return err
			}
			if err := sched.Start(ctx); err != nil {
				return err
			}
			defer sched.Stop()

			srv := mcp.NewServer(mcp.ServerDeps{
				Compiler:      comp,
				Loader:        a.loader,
				Logger:        a.logger,
				MermaidBinDir: a.cfg.MermaidBinDir,
			})

			a.logger.Info("flowplan serving",
				"transport", transport,
				"db", a.cfg.DBPath,
				"version", version,
			)
			if transport == "sse" {
				return srv.ServeSSE(ctx, a.cfg.ListenAddr, a.cfg.BaseURL)
			}
			return srv.Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "", "stdio or sse (default from config)")
	return cmd
}
