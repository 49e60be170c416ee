package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a snapshot",
		Long:  "Delete a snapshot. Blobs shared with other snapshots survive; blobs no other snapshot references are removed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSnapshotID(args[0])
			if err != nil {
				return err
			}

			if !force {
				reader := bufio.NewReader(os.Stdin)
				fmt.Fprintf(cmd.ErrOrStderr(), "Delete snapshot %d? Unshared content will be permanently removed. (y/N) ", id)
				answer, err := reader.ReadString('\n')
				if err != nil {
					return err
				}

				answer = strings.TrimSpace(strings.ToLower(answer))
				if answer != "y" {
					fmt.Fprintln(cmd.OutOrStdout(), "Deletion cancelled")
					return nil
				}
			}

			uc, cleanup, err := openSnapshots()
			if err != nil {
				return err
			}
			defer cleanup()

			if err := uc.Delete(context.Background(), id); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted snapshot %d\n", id)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")

	return cmd
}
