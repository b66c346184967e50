// Package cmd provides the CLI commands for codesearch.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/coa-dev/codesearch/internal/config"
	"github.com/coa-dev/codesearch/internal/cserr"
	"github.com/coa-dev/codesearch/internal/logging"
	"github.com/coa-dev/codesearch/pkg/version"
)

// Exit codes.
const (
	exitOK         = 0
	exitCorruption = 2
	exitConfig     = 3
	exitUsage      = 64
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the codesearch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codesearch",
		Short: "Multi-workspace code search engine for coding agents",
		Long: `codesearch maintains persistent inverted indexes over source trees and
answers full-text, filename, symbol, and reference queries over a
line-delimited JSON protocol.

Run 'codesearch serve' to expose the engine to an agent, or use the
index/search subcommands directly from the shell.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("codesearch version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false,
		"Enable debug logging to <base>/logs/")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func setupLogging(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	cleanup, err := logging.SetupDefault(cfg.BaseDir, debugMode || config.DebugEnabled())
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	loggingCleanup = cleanup
	return nil
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)

		var ce *cserr.Error
		if errors.As(err, &ce) {
			if ce.Suggestion != "" {
				fmt.Fprintf(os.Stderr, "hint: %s\n", ce.Suggestion)
			}
			switch ce.Code {
			case cserr.ErrCodeIndexCorrupt:
				return exitCorruption
			case cserr.ErrCodeConfigInvalid:
				return exitConfig
			case cserr.ErrCodeBadPath, cserr.ErrCodeNoSuchDirectory, cserr.ErrCodeInvalidInput:
				return exitUsage
			}
		}
		return 1
	}
	return exitOK
}

// loadConfig loads configuration, logging the resolved base dir.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	slog.Debug("configuration loaded", slog.String("base_dir", cfg.BaseDir))
	return cfg, nil
}
