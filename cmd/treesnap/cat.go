package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newCatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat <id> <path>",
		Short: "Print a file's content from a snapshot",
		Args:  cobra.ExactArgs(2),
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

			data, err := uc.GetFileContent(context.Background(), id, args[1])
			if err != nil {
				return err
			}

			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	return cmd
}
