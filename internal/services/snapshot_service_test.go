package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/treesnap/treesnap/internal/blobstore"
	"github.com/treesnap/treesnap/internal/database"
	"github.com/treesnap/treesnap/internal/manifest"
)

func setupService(t *testing.T) (*SnapshotService, *blobstore.Memory) {
	t.Helper()
	dbCtx, err := database.CreateDatabase(":memory:")
	if err != nil {
		t.Fatalf("CreateDatabase error: %v", err)
	}
	t.Cleanup(func() {
		if err := database.CloseDatabase(dbCtx); err != nil {
			t.Fatalf("CloseDatabase error: %v", err)
		}
	})

	blobs := blobstore.NewMemory()
	return NewSnapshotService(dbCtx, blobs), blobs
}

// treeManifest builds a manifest and content source from path -> content.
func treeManifest(files map[string]string) (manifest.Manifest, func(string) (io.ReadCloser, error)) {
	m := make(manifest.Manifest, len(files))
	for path, content := range files {
		m[path] = manifest.FileEntry{
			Path:     path,
			Hash:     manifest.HashBytes([]byte(content)),
			Size:     int64(len(content)),
			Language: manifest.DetectLanguage(path),
		}
	}
	open := func(path string) (io.ReadCloser, error) {
		content, ok := files[path]
		if !ok {
			return nil, errors.New("no such file: " + path)
		}
		return io.NopCloser(bytes.NewReader([]byte(content))), nil
	}
	return m, open
}

func mustCreate(t *testing.T, svc *SnapshotService, repo, commit string, files map[string]string) *CreateResult {
	t.Helper()
	m, open := treeManifest(files)
	result, err := svc.Create(context.Background(), CreateParams{
		Repository: repo,
		CommitSHA:  commit,
		Branch:     "main",
		Manifest:   m,
		Open:       open,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return result
}

func TestCreateStoresBlobsAndEntries(t *testing.T) {
	svc, blobs := setupService(t)
	ctx := context.Background()

	result := mustCreate(t, svc, "repo", "c1", map[string]string{
		"main.go": "package main\n",
		"util.go": "package main\n// util\n",
	})

	if result.Reused {
		t.Fatal("first creation reported reused")
	}
	if result.StoredBlobs != 2 || blobs.Len() != 2 {
		t.Fatalf("stored %d blobs, store holds %d, want 2", result.StoredBlobs, blobs.Len())
	}
	if result.Snapshot.FileCount != 2 || result.Snapshot.ChangedFileCount != 2 {
		t.Fatalf("unexpected counts: %+v", result.Snapshot)
	}
	if result.Snapshot.Languages["go"] != 2 {
		t.Fatalf("languages = %v", result.Snapshot.Languages)
	}

	entries, err := svc.Entries(ctx, result.Snapshot.ID)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	for _, e := range entries {
		if !e.IsStored {
			t.Fatalf("entry %s should own its blob in a fresh store", e.FilePath)
		}
		if e.StoragePath == "" {
			t.Fatalf("entry %s has no storage path", e.FilePath)
		}
	}
}

func TestCreateDedupsIdenticalContentWithinSnapshot(t *testing.T) {
	svc, blobs := setupService(t)
	ctx := context.Background()

	result := mustCreate(t, svc, "repo", "c1", map[string]string{
		"a/license.txt": "MIT\n",
		"b/license.txt": "MIT\n",
	})

	if blobs.Len() != 1 {
		t.Fatalf("identical content stored %d blobs, want 1", blobs.Len())
	}
	if result.StoredBlobs != 1 {
		t.Fatalf("StoredBlobs = %d, want 1", result.StoredBlobs)
	}

	entries, err := svc.Entries(ctx, result.Snapshot.ID)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	storedCount := 0
	for _, e := range entries {
		if e.IsStored {
			storedCount++
		}
	}
	if storedCount != 1 {
		t.Fatalf("%d entries own the blob, want exactly 1", storedCount)
	}
}

func TestCreateReusesSnapshotForSameCommit(t *testing.T) {
	svc, blobs := setupService(t)

	files := map[string]string{"main.go": "package main\n"}
	first := mustCreate(t, svc, "repo", "c1", files)
	second := mustCreate(t, svc, "repo", "c1", files)

	if !second.Reused {
		t.Fatal("same (repository, commit) did not reuse the snapshot")
	}
	if second.Snapshot.ID != first.Snapshot.ID {
		t.Fatalf("reuse returned snapshot %d, want %d", second.Snapshot.ID, first.Snapshot.ID)
	}
	if second.StoredBlobs != 0 || blobs.Len() != 1 {
		t.Fatalf("repeat creation wrote blobs: stored=%d len=%d", second.StoredBlobs, blobs.Len())
	}
}

func TestCreateReusesSnapshotForSameManifest(t *testing.T) {
	svc, blobs := setupService(t)

	files := map[string]string{"main.go": "package main\n"}
	first := mustCreate(t, svc, "repo", "c1", files)
	second := mustCreate(t, svc, "repo", "c2", files)

	if !second.Reused {
		t.Fatal("identical manifest under a new commit did not reuse the snapshot")
	}
	if second.Snapshot.ID != first.Snapshot.ID {
		t.Fatalf("reuse returned snapshot %d, want %d", second.Snapshot.ID, first.Snapshot.ID)
	}
	if blobs.Len() != 1 {
		t.Fatalf("blob count = %d after reuse, want 1", blobs.Len())
	}
}

func TestCreateStoresOnlyChangedFiles(t *testing.T) {
	svc, blobs := setupService(t)

	mustCreate(t, svc, "repo", "c1", map[string]string{
		"shared.go": "package shared\n",
		"old.go":    "old\n",
	})
	if blobs.Len() != 2 {
		t.Fatalf("baseline stored %d blobs", blobs.Len())
	}

	second := mustCreate(t, svc, "repo", "c2", map[string]string{
		"shared.go": "package shared\n",
		"new.go":    "new\n",
	})

	if second.Reused {
		t.Fatal("different manifest reported reused")
	}
	if second.StoredBlobs != 1 {
		t.Fatalf("second snapshot stored %d blobs, want 1", second.StoredBlobs)
	}
	if blobs.Len() != 3 {
		t.Fatalf("blob count = %d, want 3", blobs.Len())
	}
	if second.Snapshot.ChangedFileCount != 1 {
		t.Fatalf("ChangedFileCount = %d, want 1", second.Snapshot.ChangedFileCount)
	}
}

func TestGetFileContentResolvesSharedBlobs(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	first := mustCreate(t, svc, "repo", "c1", map[string]string{"shared.go": "package shared\n"})
	second := mustCreate(t, svc, "repo", "c2", map[string]string{
		"shared.go": "package shared\n",
		"new.go":    "new\n",
	})

	// The second snapshot's shared.go entry references the first snapshot's blob.
	data, err := svc.GetFileContent(ctx, second.Snapshot.ID, "shared.go")
	if err != nil {
		t.Fatalf("GetFileContent failed: %v", err)
	}
	if string(data) != "package shared\n" {
		t.Fatalf("content = %q", data)
	}

	if _, err := svc.GetFileContent(ctx, first.Snapshot.ID, "missing.go"); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("missing path error = %v, want ErrFileNotFound", err)
	}
	if _, err := svc.GetFileContent(ctx, 9999, "shared.go"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("missing snapshot error = %v, want ErrSnapshotNotFound", err)
	}
}

func TestGetFileContentReportsMissingBlob(t *testing.T) {
	svc, blobs := setupService(t)
	ctx := context.Background()

	result := mustCreate(t, svc, "repo", "c1", map[string]string{"main.go": "package main\n"})

	// Corrupt the store out from under the metadata.
	hash := manifest.HashBytes([]byte("package main\n"))
	if err := blobs.Delete(hash); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	_, err := svc.GetFileContent(ctx, result.Snapshot.ID, "main.go")
	if !errors.Is(err, ErrBlobMissing) {
		t.Fatalf("error = %v, want ErrBlobMissing", err)
	}
}

func TestDeleteMigratesSharedBlobOwnership(t *testing.T) {
	svc, blobs := setupService(t)
	ctx := context.Background()

	first := mustCreate(t, svc, "repo", "c1", map[string]string{"shared.go": "package shared\n"})
	second := mustCreate(t, svc, "repo", "c2", map[string]string{
		"shared.go": "package shared\n",
		"extra.go":  "extra\n",
	})

	// Deleting the owner must hand the blob to the referencing snapshot.
	if err := svc.Delete(ctx, first.Snapshot.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	sharedHash := manifest.HashBytes([]byte("package shared\n"))
	if !blobs.Exists(sharedHash) {
		t.Fatal("shared blob deleted while still referenced")
	}

	data, err := svc.GetFileContent(ctx, second.Snapshot.ID, "shared.go")
	if err != nil {
		t.Fatalf("GetFileContent after migration failed: %v", err)
	}
	if string(data) != "package shared\n" {
		t.Fatalf("content = %q", data)
	}

	entries, err := svc.Entries(ctx, second.Snapshot.ID)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	for _, e := range entries {
		if e.FilePath == "shared.go" && !e.IsStored {
			t.Fatal("surviving entry did not take ownership of the blob")
		}
	}

	if _, err := svc.Get(ctx, first.Snapshot.ID); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("deleted snapshot still retrievable: %v", err)
	}
}

func TestDeleteRemovesUnreferencedBlobs(t *testing.T) {
	svc, blobs := setupService(t)
	ctx := context.Background()

	result := mustCreate(t, svc, "repo", "c1", map[string]string{
		"only.go": "package only\n",
	})
	if blobs.Len() != 1 {
		t.Fatalf("blob count = %d", blobs.Len())
	}

	if err := svc.Delete(ctx, result.Snapshot.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if blobs.Len() != 0 {
		t.Fatalf("%d orphaned blobs left after delete", blobs.Len())
	}
}

func TestDeleteMissingSnapshot(t *testing.T) {
	svc, _ := setupService(t)

	if err := svc.Delete(context.Background(), 42); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("error = %v, want ErrSnapshotNotFound", err)
	}
}

func TestBranchSharesAllContent(t *testing.T) {
	svc, blobs := setupService(t)
	ctx := context.Background()

	base := mustCreate(t, svc, "repo", "c1", map[string]string{
		"main.go": "package main\n",
		"lib.go":  "package lib\n",
	})
	before := blobs.Len()

	branch, err := svc.Branch(ctx, base.Snapshot.ID, "feature")
	if err != nil {
		t.Fatalf("Branch failed: %v", err)
	}

	if blobs.Len() != before {
		t.Fatalf("branching wrote %d new blobs", blobs.Len()-before)
	}
	if branch.Branch != "feature" {
		t.Fatalf("branch name = %s", branch.Branch)
	}
	if branch.ParentSnapshotID != base.Snapshot.ID {
		t.Fatalf("parent = %d, want %d", branch.ParentSnapshotID, base.Snapshot.ID)
	}
	if branch.ManifestHash != base.Snapshot.ManifestHash {
		t.Fatal("branch manifest hash differs from base")
	}
	if branch.ChangedFileCount != 0 {
		t.Fatalf("ChangedFileCount = %d, want 0", branch.ChangedFileCount)
	}

	entries, err := svc.Entries(ctx, branch.ID)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("branch has %d entries, want 2", len(entries))
	}
	for _, e := range entries {
		if e.IsStored {
			t.Fatalf("branch entry %s claims blob ownership", e.FilePath)
		}
	}

	data, err := svc.GetFileContent(ctx, branch.ID, "main.go")
	if err != nil {
		t.Fatalf("GetFileContent on branch failed: %v", err)
	}
	if string(data) != "package main\n" {
		t.Fatalf("content = %q", data)
	}
}

func TestBranchMissingBase(t *testing.T) {
	svc, _ := setupService(t)

	if _, err := svc.Branch(context.Background(), 42, "feature"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("error = %v, want ErrSnapshotNotFound", err)
	}
}

func TestMergeSecondBranchWins(t *testing.T) {
	svc, blobs := setupService(t)
	ctx := context.Background()

	branch1 := mustCreate(t, svc, "repo", "b1", map[string]string{
		"shared.go":   "package shared\n",
		"conflict.go": "version one\n",
		"only1.go":    "one\n",
	})
	branch2 := mustCreate(t, svc, "repo", "b2", map[string]string{
		"shared.go":   "package shared\n",
		"conflict.go": "version two\n",
		"only2.go":    "two\n",
	})
	before := blobs.Len()

	merged, err := svc.Merge(ctx, branch1.Snapshot.ID, branch2.Snapshot.ID, "merged")
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if blobs.Len() != before {
		t.Fatal("merge wrote new blobs")
	}
	if merged.FileCount != 4 {
		t.Fatalf("merged FileCount = %d, want 4", merged.FileCount)
	}

	conflict, err := svc.GetFileContent(ctx, merged.ID, "conflict.go")
	if err != nil {
		t.Fatalf("GetFileContent failed: %v", err)
	}
	if string(conflict) != "version two\n" {
		t.Fatalf("conflict resolved to %q, want branch2's version", conflict)
	}

	for _, path := range []string{"shared.go", "only1.go", "only2.go"} {
		if _, err := svc.GetFileContent(ctx, merged.ID, path); err != nil {
			t.Fatalf("merged snapshot missing %s: %v", path, err)
		}
	}

	entries, err := svc.Entries(ctx, merged.ID)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	for _, e := range entries {
		if e.IsStored {
			t.Fatalf("merge entry %s claims blob ownership", e.FilePath)
		}
	}
}

func TestVerifyCleanSnapshot(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	result := mustCreate(t, svc, "repo", "c1", map[string]string{
		"main.go": "package main\n",
		"lib.go":  "package lib\n",
	})

	report, err := svc.Verify(ctx, result.Snapshot.ID)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if report.Checked != 2 || len(report.Mismatched) != 0 || len(report.Unresolvable) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestCreateEmptyManifest(t *testing.T) {
	svc, blobs := setupService(t)

	result := mustCreate(t, svc, "repo", "c1", map[string]string{})

	if result.Snapshot.FileCount != 0 || blobs.Len() != 0 {
		t.Fatalf("empty snapshot stored data: %+v, blobs=%d", result.Snapshot, blobs.Len())
	}

	entries, err := svc.Entries(context.Background(), result.Snapshot.ID)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("empty snapshot has %d entries", len(entries))
	}
}

// gatedStore pauses physical blob removal until released, so a test can
// interleave other operations with the deletion window.
type gatedStore struct {
	*blobstore.Memory
	started chan string
	release chan struct{}
}

func (g *gatedStore) Delete(hash string) error {
	g.started <- hash
	<-g.release
	return g.Memory.Delete(hash)
}

func TestDeleteKeepsBlobClaimedByConcurrentCreate(t *testing.T) {
	t.Setenv("TREESNAP_DIR", t.TempDir())
	dbCtx, err := database.CreateDatabase("")
	if err != nil {
		t.Fatalf("CreateDatabase error: %v", err)
	}
	t.Cleanup(func() {
		if err := database.CloseDatabase(dbCtx); err != nil {
			t.Fatalf("CloseDatabase error: %v", err)
		}
	})

	store := &gatedStore{
		Memory:  blobstore.NewMemory(),
		started: make(chan string, 1),
		release: make(chan struct{}),
	}
	svc := NewSnapshotService(dbCtx, store)
	ctx := context.Background()

	files := map[string]string{"a.go": "package a\n"}
	first := mustCreate(t, svc, "repo", "c1", files)

	deleteDone := make(chan error, 1)
	go func() {
		deleteDone <- svc.Delete(ctx, first.Snapshot.ID)
	}()

	// The snapshot's rows are gone and the blob's removal is held open.
	<-store.started

	var second *CreateResult
	createDone := make(chan error, 1)
	go func() {
		m, open := treeManifest(files)
		result, err := svc.Create(ctx, CreateParams{
			Repository: "repo",
			CommitSHA:  "c2",
			Branch:     "main",
			Manifest:   m,
			Open:       open,
		})
		second = result
		createDone <- err
	}()

	// Let the competing creation reach the database before the deleter may
	// finish.
	time.Sleep(100 * time.Millisecond)
	close(store.release)

	if err := <-deleteDone; err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := <-createDone; err != nil {
		t.Fatalf("concurrent Create failed: %v", err)
	}

	data, err := svc.GetFileContent(ctx, second.Snapshot.ID, "a.go")
	if err != nil {
		t.Fatalf("live snapshot lost its content: %v", err)
	}
	if string(data) != files["a.go"] {
		t.Fatalf("content = %q, want %q", data, files["a.go"])
	}
}
