package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coa-dev/codesearch/internal/index"
	"github.com/coa-dev/codesearch/internal/pipeline"
	"github.com/coa-dev/codesearch/internal/symbols"
)

func newIndexCmd() *cobra.Command {
	var force bool
	var stats bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "index [workspace]",
		Short: "Build or refresh a workspace index",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wsPath := "."
			if len(args) > 0 {
				wsPath = args[0]
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			manager, err := index.NewManager(cfg)
			if err != nil {
				return err
			}
			defer manager.Close()

			if stats {
				st, err := manager.Stats(wsPath)
				if err != nil {
					return err
				}
				return printResult(cmd, st, asJSON, func() {
					fmt.Fprintf(cmd.OutOrStdout(),
						"workspace: %s\ndocuments: %d\ndisk: %d bytes\nrefresh version: %d\n",
						st.Workspace, st.DocCount, st.DiskBytes, st.RefreshVersion)
				})
			}

			extractor := symbols.NewCommandExtractor(cfg.Symbols.ExtractorCommand, cfg.Symbols.ExtractorTimeout)
			var ix *pipeline.Indexer
			if extractor != nil {
				ix = pipeline.NewIndexer(manager, cfg, extractor)
			} else {
				ix = pipeline.NewIndexer(manager, cfg, nil)
			}
			defer ix.Close()

			result, err := ix.IndexWorkspace(cmd.Context(), wsPath, force)
			if err != nil {
				return err
			}

			return printResult(cmd, result, asJSON, func() {
				fmt.Fprintf(cmd.OutOrStdout(),
					"indexed %d files (%d skipped, %d failed, %d deleted) in %s — %d documents\n",
					result.FilesIndexed, result.FilesSkipped, result.FilesFailed,
					result.FilesDeleted, result.Took.Round(1e6), result.DocCount)
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Re-index every file even if unchanged")
	cmd.Flags().BoolVar(&stats, "stats", false, "Print index statistics instead of indexing")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON output")

	return cmd
}

func printResult(cmd *cobra.Command, v interface{}, asJSON bool, plain func()) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	plain()
	return nil
}
