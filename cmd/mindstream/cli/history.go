package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ent0n29/mindstream/internal/app"
	"github.com/ent0n29/mindstream/internal/memory"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and prune the long-term conversation history",
	}
	cmd.AddCommand(newHistoryListCmd(), newHistorySearchCmd(), newHistoryPruneCmd(), newHistoryClearCmd())
	return cmd
}

// withHistory opens the configured history for the duration of fn.
func withHistory(cmd *cobra.Command, fn func(*memory.LongTerm) error) error {
	cfg, logger, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	history, err := app.OpenLongTerm(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer history.Close()
	return fn(history)
}

func newHistoryListCmd() *cobra.Command {
	var (
		page     int
		pageSize int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show a page of recent interactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withHistory(cmd, func(history *memory.LongTerm) error {
				its, total, err := history.GetRecentInteractions(cmd.Context(), page, pageSize)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					return writeJSON(out, map[string]any{"page": page, "total": total, "interactions": its})
				}
				fmt.Fprintf(out, "%d interactions in total\n", total)
				for _, m := range memory.FormatForDisplay(its, memory.DefaultDisplayAuthors, time.Local) {
					fmt.Fprintf(out, "[%s] %s: %s\n", m.Timestamp, m.Author, m.Content)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page number, starting at 1")
	cmd.Flags().IntVar(&pageSize, "size", 0, "Page size (defaults to HISTORY_PAGE_SIZE)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of text")
	return cmd
}

func newHistorySearchCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Find the stored interactions closest to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withHistory(cmd, func(history *memory.LongTerm) error {
				matches, err := history.SearchSimilar(cmd.Context(), query, n)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(matches) == 0 {
					fmt.Fprintln(out, "no matches")
					return nil
				}
				for _, m := range matches {
					fmt.Fprintf(out, "%.4f  %s\n        User: %s\n        Assistant: %s\n",
						m.Distance, m.Interaction.Time().Local().Format(time.DateTime),
						m.Interaction.UserInput, m.Interaction.AssistantResponse)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "results", "n", 3, "Number of matches to return")
	return cmd
}

func newHistoryPruneCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete interactions older than a number of days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withHistory(cmd, func(history *memory.LongTerm) error {
				deleted, err := history.ClearOlderThan(cmd.Context(), days)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d interactions older than %d days\n", deleted, days)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "Age threshold in days")
	return cmd
}

func newHistoryClearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the whole long-term history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear history without --yes")
			}
			return withHistory(cmd, func(history *memory.LongTerm) error {
				deleted, err := history.ClearAll(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d interactions\n", deleted)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
