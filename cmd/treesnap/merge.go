package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newMergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge <branch1-id> <branch2-id> <name>",
		Short: "Merge two branch snapshots",
		Long:  "Merge two branch snapshots into a new one. On conflicting paths the second branch's version wins.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			branch1ID, err := parseSnapshotID(args[0])
			if err != nil {
				return err
			}
			branch2ID, err := parseSnapshotID(args[1])
			if err != nil {
				return err
			}

			uc, cleanup, err := openSnapshots()
			if err != nil {
				return err
			}
			defer cleanup()

			record, err := uc.Merge(context.Background(), branch1ID, branch2ID, args[2])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created merge snapshot %d (%s): %d files, %d taken from %d\n",
				record.ID, record.Branch, record.FileCount, record.ChangedFileCount, branch2ID)
			return nil
		},
	}

	return cmd
}
