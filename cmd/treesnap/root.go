package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/treesnap/treesnap/internal/blobstore"
	"github.com/treesnap/treesnap/internal/config"
	"github.com/treesnap/treesnap/internal/database"
	"github.com/treesnap/treesnap/internal/usecase"
)

var rootCmd = &cobra.Command{
	Use:   "treesnap",
	Short: "treesnap - content-addressed codebase snapshots",
	Long:  "treesnap stores deduplicated snapshots of codebases and compares them down to the line level.",
}

func init() {
	rootCmd.Version = version
	rootCmd.AddCommand(newCreateCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newCatCmd())
	rootCmd.AddCommand(newDiffCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newBranchCmd())
	rootCmd.AddCommand(newMergeCmd())
	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(newMCPCmd())
}

// openSnapshots opens the metadata database and blob store. The returned
// cleanup must run once the command finishes.
func openSnapshots() (*usecase.Snapshot, func(), error) {
	dbCtx, err := database.CreateDatabase("")
	if err != nil {
		return nil, nil, err
	}

	blobs := blobstore.NewFilesystem(config.GetBlobsDir())

	cleanup := func() {
		_ = database.CloseDatabase(dbCtx)
	}
	return usecase.NewSnapshot(dbCtx, blobs), cleanup, nil
}

func parseSnapshotID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid snapshot id: %s", arg)
	}
	return id, nil
}
