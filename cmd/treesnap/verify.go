package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <id>",
		Short: "Verify a snapshot's content integrity",
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

			report, err := uc.Verify(context.Background(), id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Checked %d files\n", report.Checked)
			for _, path := range report.Mismatched {
				fmt.Fprintf(out, "MISMATCH  %s\n", path)
			}
			for _, path := range report.Unresolvable {
				fmt.Fprintf(out, "MISSING   %s\n", path)
			}

			if len(report.Mismatched) > 0 || len(report.Unresolvable) > 0 {
				return fmt.Errorf("snapshot %d failed verification", id)
			}

			fmt.Fprintln(out, "OK")
			return nil
		},
	}

	return cmd
}
