package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/treesnap/treesnap/internal/database"
)

func newGetCmd() *cobra.Command {
	var (
		showFiles bool
		format    string
	)

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show snapshot metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSnapshotID(args[0])
			if err != nil {
				return err
			}

			uc, cleanup, err := openSnapshots()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := context.Background()
			record, err := uc.Get(ctx, id)
			if err != nil {
				return err
			}

			var entries []database.FileEntryRecord
			if showFiles {
				entries, err = uc.Entries(ctx, id)
				if err != nil {
					return err
				}
			}

			switch format {
			case "json":
				return printSnapshotJSON(cmd, *record, entries)
			case "table":
				printSnapshotTable(cmd, *record, entries)
				return nil
			default:
				return fmt.Errorf("invalid format: %s (valid values: table, json)", format)
			}
		},
	}

	cmd.Flags().BoolVar(&showFiles, "files", false, "Include the snapshot's file entries")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")

	return cmd
}

type snapshotOutput struct {
	ID               int64            `json:"id"`
	Repository       string           `json:"repository"`
	CommitSHA        string           `json:"commit_sha,omitempty"`
	Branch           string           `json:"branch,omitempty"`
	ManifestHash     string           `json:"manifest_hash"`
	FileCount        int64            `json:"file_count"`
	ChangedFileCount int64            `json:"changed_file_count"`
	Languages        map[string]int64 `json:"languages,omitempty"`
	ParentSnapshotID int64            `json:"parent_snapshot_id,omitempty"`
	CreatedAt        string           `json:"created_at"`
	Files            []fileOutput     `json:"files,omitempty"`
}

type fileOutput struct {
	Path     string `json:"path"`
	Hash     string `json:"hash"`
	Size     int64  `json:"size"`
	Language string `json:"language,omitempty"`
	Stored   bool   `json:"stored"`
}

func printSnapshotJSON(cmd *cobra.Command, record database.SnapshotRecord, entries []database.FileEntryRecord) error {
	out := snapshotOutput{
		ID:               record.ID,
		Repository:       record.Repository,
		CommitSHA:        record.CommitSHA,
		Branch:           record.Branch,
		ManifestHash:     record.ManifestHash,
		FileCount:        record.FileCount,
		ChangedFileCount: record.ChangedFileCount,
		Languages:        record.Languages,
		ParentSnapshotID: record.ParentSnapshotID,
		CreatedAt:        record.CreatedAt.Format(time.RFC3339),
	}
	for _, e := range entries {
		out.Files = append(out.Files, fileOutput{
			Path:     e.FilePath,
			Hash:     e.FileHash,
			Size:     e.FileSize,
			Language: e.Language,
			Stored:   e.IsStored,
		})
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func printSnapshotTable(cmd *cobra.Command, record database.SnapshotRecord, entries []database.FileEntryRecord) {
	out := cmd.OutOrStdout()

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendRow(table.Row{"ID", record.ID})
	t.AppendRow(table.Row{"Repository", record.Repository})
	if record.CommitSHA != "" {
		t.AppendRow(table.Row{"Commit", record.CommitSHA})
	}
	if record.Branch != "" {
		t.AppendRow(table.Row{"Branch", record.Branch})
	}
	t.AppendRow(table.Row{"Manifest", record.ManifestHash})
	t.AppendRow(table.Row{"Files", record.FileCount})
	t.AppendRow(table.Row{"Changed", record.ChangedFileCount})
	if record.ParentSnapshotID != 0 {
		t.AppendRow(table.Row{"Parent", record.ParentSnapshotID})
	}
	t.AppendRow(table.Row{"Created", record.CreatedAt.Format(time.RFC3339)})
	if len(record.Languages) > 0 {
		t.AppendRow(table.Row{"Languages", formatLanguages(record.Languages)})
	}
	t.Render()

	if len(entries) == 0 {
		return
	}

	ft := table.NewWriter()
	ft.SetOutputMirror(out)
	ft.AppendHeader(table.Row{"Path", "Size", "Language", "Stored"})
	for _, e := range entries {
		ft.AppendRow(table.Row{e.FilePath, e.FileSize, e.Language, e.IsStored})
	}
	ft.Render()
}

func formatLanguages(languages map[string]int64) string {
	names := make([]string, 0, len(languages))
	for name := range languages {
		names = append(names, name)
	}
	sort.Strings(names)

	result := ""
	for i, name := range names {
		if i > 0 {
			result += ", "
		}
		result += fmt.Sprintf("%s (%d)", name, languages[name])
	}
	return result
}
