package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newBranchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branch <base-id> <name>",
		Short: "Create a branch snapshot from an existing snapshot",
		Long:  "Create a new snapshot that shares all content with its base. No file data is copied.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			baseID, err := parseSnapshotID(args[0])
			if err != nil {
				return err
			}

			uc, cleanup, err := openSnapshots()
			if err != nil {
				return err
			}
			defer cleanup()

			record, err := uc.Branch(context.Background(), baseID, args[1])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created branch snapshot %d (%s) from %d\n", record.ID, record.Branch, baseID)
			return nil
		},
	}

	return cmd
}
