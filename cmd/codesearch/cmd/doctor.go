package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coa-dev/codesearch/internal/index"
	"github.com/coa-dev/codesearch/internal/pipeline"
	"github.com/coa-dev/codesearch/internal/reconcile"
)

func newDoctorCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check and repair on-disk index state",
		Long: `Doctor runs the startup reconciler on demand: sweeps stale write
locks, verifies index integrity, repairs corruption (when repair.auto is
enabled), and re-extracts symbols that lag their files.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			manager, err := index.NewManager(cfg)
			if err != nil {
				return err
			}
			defer manager.Close()

			ix := pipeline.NewIndexer(manager, cfg, nil)
			defer ix.Close()

			report, err := reconcile.New(cfg, manager, ix).Run(cmd.Context())
			if err != nil {
				return err
			}

			return printResult(cmd, report, asJSON, func() {
				if len(report.Workspaces) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no indexes found")
					return
				}
				for _, wr := range report.Workspaces {
					status := "ok"
					switch {
					case wr.Error != "":
						status = "ERROR: " + wr.Error
					case wr.Repaired:
						status = "repaired"
					case wr.StaleLockRemoved:
						status = "stale lock removed"
					case wr.UncleanShutdown:
						status = "unclean shutdown, verified"
					}
					ws := wr.WorkspacePath
					if ws == "" {
						ws = "(unknown workspace)"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%-16s %-40s %s\n", wr.Hash, ws, status)
					if wr.StaleExtractions > 0 {
						fmt.Fprintf(cmd.OutOrStdout(), "%18s re-extracted %d stale files\n",
							"", wr.StaleExtractions)
					}
				}
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON output")
	return cmd
}
