package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/treesnap/treesnap/internal/usecase"
)

func newCreateCmd() *cobra.Command {
	var (
		repository  string
		commitSHA   string
		branchName  string
		exclude     []string
		maxFileSize int64
	)

	cmd := &cobra.Command{
		Use:   "create <path>",
		Short: "Create a snapshot of a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uc, cleanup, err := openSnapshots()
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := uc.CreateFromPath(context.Background(), usecase.CreateInput{
				Path:            args[0],
				Repository:      repository,
				CommitSHA:       commitSHA,
				Branch:          branchName,
				ExcludePatterns: exclude,
				MaxFileSize:     maxFileSize,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if result.Reused {
				fmt.Fprintf(out, "Snapshot %d already covers this state (%s)\n", result.Snapshot.ID, result.Snapshot.Repository)
				return nil
			}

			fmt.Fprintf(out, "Created snapshot %d for %s: %d files, %d new blobs\n",
				result.Snapshot.ID, result.Snapshot.Repository, result.FileCount, result.StoredBlobs)
			return nil
		},
	}

	cmd.Flags().StringVar(&repository, "repo", "", "Repository name (defaults to git remote or directory name)")
	cmd.Flags().StringVar(&commitSHA, "commit", "", "Commit SHA label (defaults to git HEAD)")
	cmd.Flags().StringVar(&branchName, "branch", "", "Branch label (defaults to current git branch)")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "Additional gitignore-style exclude patterns")
	cmd.Flags().Int64Var(&maxFileSize, "max-file-size", 0, "Skip files larger than this many bytes")

	return cmd
}
