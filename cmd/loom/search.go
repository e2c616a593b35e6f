package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/LoomLog/internal/queries"
	"github.com/untoldecay/LoomLog/internal/ui"
)

var searchCmd = &cobra.Command{
	Use:     "search <term>",
	GroupID: "views",
	Short:   "Search captured prompts, entries, and commands",
	Long: `Search everything the daemon has captured. Substring matches rank
first, fuzzy matches fill in after, and a typo'd term auto-corrects to
the closest captured word.

Examples:
  loom search migration
  loom search "pytest fixture" --limit 10
  loom search migration --json`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		term := strings.Join(args, " ")
		limit, _ := cmd.Flags().GetInt("limit")

		if err := ensureStore(); err != nil {
			FatalError("%v", err)
		}
		ctx := rootCtx

		results, err := facade.Search(ctx, term, limit)
		if err != nil {
			FatalError("%v", err)
		}

		if len(results) > 0 {
			if jsonOutput {
				outputJSON(results)
				return
			}
			fmt.Println(ui.RenderSearchResults(term, searchItems(results), ui.GetWidth()))
			return
		}

		// Nothing matched; try correcting the term against captured words.
		suggestions, err := facade.Suggest(ctx, term)
		if err != nil {
			FatalError("%v", err)
		}
		if len(suggestions) > 0 {
			corrected := suggestions[0]
			results, err = facade.Search(ctx, corrected, limit)
			if err != nil {
				FatalError("%v", err)
			}
			if len(results) > 0 {
				if jsonOutput {
					outputJSON(map[string]interface{}{
						"corrected_term": corrected,
						"results":        results,
					})
					return
				}
				fmt.Println(ui.RenderTypoCorrection(term, corrected, searchItems(results), ui.GetWidth()))
				return
			}
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"results":     []queries.SearchResult{},
				"suggestions": suggestions,
			})
			return
		}
		fmt.Println(ui.RenderNoResults(term, suggestions, ui.GetWidth()))
	},
}

func searchItems(results []queries.SearchResult) []ui.SearchResultItem {
	items := make([]ui.SearchResultItem, 0, len(results))
	for _, r := range results {
		items = append(items, ui.SearchResultItem{
			Kind:   r.Kind,
			ID:     r.ID,
			When:   formatRelativeTime(r.Timestamp),
			Title:  r.Title,
			Reason: r.Reason,
		})
	}
	return items
}

func init() {
	searchCmd.Flags().Int("limit", 25, "Maximum results to show")
	rootCmd.AddCommand(searchCmd)
}
