package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coa-dev/codesearch/internal/index"
	"github.com/coa-dev/codesearch/internal/query"
)

func newSearchCmd() *cobra.Command {
	var workspace string
	var searchType string
	var caseSensitive bool
	var maxResults int
	var snippets bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search an indexed workspace from the shell",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			manager, err := index.NewManager(cfg)
			if err != nil {
				return err
			}
			defer manager.Close()

			typ, err := query.ParseType(searchType)
			if err != nil {
				return err
			}

			result, err := manager.Search(cmd.Context(), workspace, query.Spec{
				Raw:           args[0],
				Type:          typ,
				CaseSensitive: caseSensitive,
			}, index.SearchOptions{
				MaxResults: maxResults,
				Snippets:   snippets,
			})
			if err != nil {
				return err
			}

			return printResult(cmd, result, asJSON, func() {
				if len(result.Hits) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no matches")
					return
				}
				for _, hit := range result.Hits {
					fmt.Fprintf(cmd.OutOrStdout(), "%6.3f  %s\n", hit.Score, hit.RelativePath)
					for _, sn := range hit.Snippets {
						fmt.Fprintf(cmd.OutOrStdout(), "        %d: %s\n", sn.Line, sn.Text)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d hits (%d total matches)\n",
					len(result.Hits), result.TotalMatches)
			})
		},
	}

	cmd.Flags().StringVarP(&workspace, "workspace", "w", ".", "Workspace to search")
	cmd.Flags().StringVarP(&searchType, "type", "t", "standard",
		"Search type: standard, literal, code, wildcard, fuzzy, phrase, regex")
	cmd.Flags().BoolVar(&caseSensitive, "case-sensitive", false, "Match case exactly")
	cmd.Flags().IntVarP(&maxResults, "max-results", "n", 20, "Maximum hits")
	cmd.Flags().BoolVar(&snippets, "snippets", true, "Show matching lines")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON output")

	return cmd
}
