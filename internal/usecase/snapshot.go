// Package usecase wires manifest building, git detection, the snapshot store,
// and the diff engine into the operations the CLI and MCP server expose.
package usecase

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/treesnap/treesnap/internal/blobstore"
	"github.com/treesnap/treesnap/internal/config"
	"github.com/treesnap/treesnap/internal/database"
	"github.com/treesnap/treesnap/internal/diffengine"
	"github.com/treesnap/treesnap/internal/gitrepo"
	"github.com/treesnap/treesnap/internal/manifest"
	"github.com/treesnap/treesnap/internal/services"
)

type Snapshot struct {
	service *services.SnapshotService
}

func NewSnapshot(dbCtx *database.Context, blobs blobstore.Store) *Snapshot {
	return &Snapshot{service: services.NewSnapshotService(dbCtx, blobs)}
}

// CreateInput describes a snapshot-from-directory request. Repository,
// CommitSHA, and Branch default to whatever git metadata the path carries.
type CreateInput struct {
	Path            string
	Repository      string
	CommitSHA       string
	Branch          string
	ExcludePatterns []string
	MaxFileSize     int64
}

// CreateOutput reports the created (or reused) snapshot.
type CreateOutput struct {
	Snapshot    database.SnapshotRecord
	Reused      bool
	FileCount   int
	StoredBlobs int
}

// CreateFromPath builds a manifest of the directory and persists it as a
// snapshot, deduplicating against everything already stored.
func (u *Snapshot) CreateFromPath(ctx context.Context, input CreateInput) (*CreateOutput, error) {
	root, err := filepath.Abs(input.Path)
	if err != nil {
		return nil, err
	}

	repository := input.Repository
	commitSHA := input.CommitSHA
	branch := input.Branch

	if repository == "" || commitSHA == "" || branch == "" {
		info, err := gitrepo.Detect(ctx, root)
		if err == nil && info.IsGitRepo {
			if repository == "" {
				repository = info.Name
			}
			if commitSHA == "" {
				commitSHA = info.CommitSHA
			}
			if branch == "" {
				branch = info.Branch
			}
		}
	}
	if repository == "" {
		repository = filepath.Base(root)
	}

	excludes := config.GetExcludePatterns()
	excludes = append(excludes, input.ExcludePatterns...)

	maxSize := input.MaxFileSize
	if maxSize == 0 {
		maxSize = config.GetMaxFileSize()
	}

	m, err := manifest.Build(ctx, root, manifest.BuildOptions{
		ExcludePatterns: excludes,
		MaxFileSize:     maxSize,
	})
	if err != nil {
		return nil, err
	}

	result, err := u.service.Create(ctx, services.CreateParams{
		Repository: repository,
		CommitSHA:  commitSHA,
		Branch:     branch,
		Manifest:   m,
		Open: func(path string) (io.ReadCloser, error) {
			return os.Open(filepath.Join(root, filepath.FromSlash(path)))
		},
	})
	if err != nil {
		return nil, err
	}

	return &CreateOutput{
		Snapshot:    result.Snapshot,
		Reused:      result.Reused,
		FileCount:   len(m),
		StoredBlobs: result.StoredBlobs,
	}, nil
}

// CompareOptions carries caller-supplied symbol metrics for the two snapshots.
// When present, the diff includes symbol-level change sets and folds the
// complexity delta into risk assessment.
type CompareOptions struct {
	SymbolsBefore []diffengine.SymbolMetric
	SymbolsAfter  []diffengine.SymbolMetric
}

// Compare diffs snapshot A (before) against snapshot B (after), resolving file
// contents through the store so line-level diffs work across shared blobs.
// opts may be nil for a file-and-line-level diff.
func (u *Snapshot) Compare(ctx context.Context, idA, idB int64, opts *CompareOptions) (*diffengine.Result, error) {
	manifestA, err := u.service.Manifest(ctx, idA)
	if err != nil {
		return nil, err
	}
	manifestB, err := u.service.Manifest(ctx, idB)
	if err != nil {
		return nil, err
	}

	engineOpts := diffengine.Options{
		ReadA: u.contentReader(ctx, idA),
		ReadB: u.contentReader(ctx, idB),
	}
	if opts != nil {
		engineOpts.SymbolsA = opts.SymbolsBefore
		engineOpts.SymbolsB = opts.SymbolsAfter
	}

	result := diffengine.Compare(manifestA, manifestB, engineOpts)
	return &result, nil
}

func (u *Snapshot) contentReader(ctx context.Context, snapshotID int64) diffengine.ContentReader {
	return func(path string) ([]byte, bool) {
		data, err := u.service.GetFileContent(ctx, snapshotID, path)
		if err != nil {
			return nil, false
		}
		return data, true
	}
}

func (u *Snapshot) Get(ctx context.Context, id int64) (*database.SnapshotRecord, error) {
	return u.service.Get(ctx, id)
}

func (u *Snapshot) List(ctx context.Context, repository, branch string, limit, offset int64) ([]database.SnapshotRecord, error) {
	return u.service.List(ctx, repository, branch, limit, offset)
}

func (u *Snapshot) Entries(ctx context.Context, id int64) ([]database.FileEntryRecord, error) {
	return u.service.Entries(ctx, id)
}

func (u *Snapshot) GetFileContent(ctx context.Context, id int64, path string) ([]byte, error) {
	return u.service.GetFileContent(ctx, id, path)
}

func (u *Snapshot) Delete(ctx context.Context, id int64) error {
	return u.service.Delete(ctx, id)
}

func (u *Snapshot) Branch(ctx context.Context, baseID int64, name string) (*database.SnapshotRecord, error) {
	return u.service.Branch(ctx, baseID, name)
}

func (u *Snapshot) Merge(ctx context.Context, branch1ID, branch2ID int64, name string) (*database.SnapshotRecord, error) {
	return u.service.Merge(ctx, branch1ID, branch2ID, name)
}

func (u *Snapshot) Verify(ctx context.Context, id int64) (*services.VerifyReport, error) {
	return u.service.Verify(ctx, id)
}
