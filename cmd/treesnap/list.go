package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/treesnap/treesnap/internal/database"
)

func newListCmd() *cobra.Command {
	var (
		repository string
		branchName string
		limit      int64
		offset     int64
		format     string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			uc, cleanup, err := openSnapshots()
			if err != nil {
				return err
			}
			defer cleanup()

			records, err := uc.List(context.Background(), repository, branchName, limit, offset)
			if err != nil {
				return err
			}

			switch format {
			case "json":
				return printListJSON(cmd, records)
			case "table":
				printListTable(cmd, records)
				return nil
			default:
				return fmt.Errorf("invalid format: %s (valid values: table, json)", format)
			}
		},
	}

	cmd.Flags().StringVar(&repository, "repo", "", "Filter by repository name")
	cmd.Flags().StringVar(&branchName, "branch", "", "Filter by branch (requires --repo)")
	cmd.Flags().Int64Var(&limit, "limit", 0, "Maximum number of snapshots to show")
	cmd.Flags().Int64Var(&offset, "offset", 0, "Number of snapshots to skip")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")

	return cmd
}

func printListJSON(cmd *cobra.Command, records []database.SnapshotRecord) error {
	output := make([]snapshotOutput, 0, len(records))
	for _, r := range records {
		output = append(output, snapshotOutput{
			ID:               r.ID,
			Repository:       r.Repository,
			CommitSHA:        r.CommitSHA,
			Branch:           r.Branch,
			ManifestHash:     r.ManifestHash,
			FileCount:        r.FileCount,
			ChangedFileCount: r.ChangedFileCount,
			Languages:        r.Languages,
			ParentSnapshotID: r.ParentSnapshotID,
			CreatedAt:        r.CreatedAt.Format(time.RFC3339),
		})
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func printListTable(cmd *cobra.Command, records []database.SnapshotRecord) {
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No snapshots found")
		return
	}

	width := getTerminalWidth()
	repoWidth := width / 4
	if repoWidth < 12 {
		repoWidth = 12
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"ID", "Repository", "Branch", "Commit", "Files", "Changed", "Created"})
	for _, r := range records {
		t.AppendRow(table.Row{
			r.ID,
			truncate(r.Repository, repoWidth),
			r.Branch,
			shortSHA(r.CommitSHA),
			r.FileCount,
			r.ChangedFileCount,
			r.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	t.Render()
}

func getTerminalWidth() int {
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	return 80
}

// truncate shortens a string to maxWidth display cells, accounting for
// multi-byte characters.
func truncate(s string, maxWidth int) string {
	if maxWidth <= 0 || runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	return runewidth.Truncate(s, maxWidth, "…")
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
