package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/treesnap/treesnap/internal/diffengine"
)

func newDiffCmd() *cobra.Command {
	var (
		format    string
		showPatch bool
	)

	cmd := &cobra.Command{
		Use:   "diff <before-id> <after-id>",
		Short: "Compare two snapshots",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			beforeID, err := parseSnapshotID(args[0])
			if err != nil {
				return err
			}
			afterID, err := parseSnapshotID(args[1])
			if err != nil {
				return err
			}

			uc, cleanup, err := openSnapshots()
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := uc.Compare(context.Background(), beforeID, afterID, nil)
			if err != nil {
				return err
			}

			switch format {
			case "json":
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(result)
			case "text":
				printDiffText(cmd, result, showPatch)
				return nil
			default:
				return fmt.Errorf("invalid format: %s (valid values: text, json)", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&showPatch, "patch", false, "Show line-level patches for modified files")

	return cmd
}

func printDiffText(cmd *cobra.Command, result *diffengine.Result, showPatch bool) {
	out := cmd.OutOrStdout()

	for _, path := range result.Added {
		fmt.Fprintf(out, "A  %s\n", path)
	}
	for _, path := range result.Removed {
		fmt.Fprintf(out, "D  %s\n", path)
	}
	for _, path := range result.Modified {
		fmt.Fprintf(out, "M  %s\n", path)
	}

	fmt.Fprintf(out, "\n%d added, %d removed, %d modified, %d unchanged\n",
		len(result.Added), len(result.Removed), len(result.Modified), len(result.Unchanged))
	if result.CodeChurn > 0 {
		fmt.Fprintf(out, "+%d -%d lines (churn %d)\n", result.LinesAdded, result.LinesRemoved, result.CodeChurn)
	}

	for lang, delta := range result.Languages {
		fmt.Fprintf(out, "%s: %+d files (%.1f%%)\n", lang, delta.Diff, delta.PercentChange)
	}

	fmt.Fprintf(out, "risk: %s (%.1f)\n", result.Risk.Overall.Level, result.Risk.Overall.Value)

	if showPatch {
		for _, fd := range result.FileDiffs {
			fmt.Fprintf(out, "\n%s", fd.Patch)
		}
	}
}
