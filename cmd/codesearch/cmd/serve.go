package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/coa-dev/codesearch/internal/index"
	"github.com/coa-dev/codesearch/internal/pipeline"
	"github.com/coa-dev/codesearch/internal/reconcile"
	"github.com/coa-dev/codesearch/internal/server"
	"github.com/coa-dev/codesearch/internal/symbols"
)

func newServeCmd() *cobra.Command {
	var skipReconcile bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Long: `Serve exposes the engine to coding agents over the MCP stdio
transport. On startup it reconciles on-disk index state: stale locks are
swept, corrupt indexes repaired, and lagging symbol extractions refreshed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			manager, err := index.NewManager(cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := manager.Close(); err != nil {
					slog.Warn("failed to close index manager", slog.String("error", err.Error()))
				}
			}()

			extractor := symbols.NewCommandExtractor(cfg.Symbols.ExtractorCommand, cfg.Symbols.ExtractorTimeout)
			var ix *pipeline.Indexer
			if extractor != nil {
				ix = pipeline.NewIndexer(manager, cfg, extractor)
			} else {
				ix = pipeline.NewIndexer(manager, cfg, nil)
			}
			defer ix.Close()

			if !skipReconcile {
				report, err := reconcile.New(cfg, manager, ix).Run(ctx)
				if err != nil {
					return err
				}
				for _, wr := range report.Workspaces {
					if wr.Error != "" {
						slog.Warn("workspace reconciliation failed",
							slog.String("hash", wr.Hash),
							slog.String("error", wr.Error))
					}
				}
			}

			srv, err := server.New(cfg, manager, ix)
			if err != nil {
				return err
			}
			defer srv.Close()

			return srv.Serve(ctx)
		},
	}

	cmd.Flags().BoolVar(&skipReconcile, "skip-reconcile", false,
		"Skip the startup reconciliation pass")

	return cmd
}
