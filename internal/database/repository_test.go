package database

import (
	"context"
	"testing"
)

func TestSnapshotRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	dbCtx := setupTestDB(t)
	repo := NewSnapshotRepository(dbCtx)

	record := SnapshotRecord{
		Repository:       "myrepo",
		CommitSHA:        "abc123",
		Branch:           "main",
		ManifestHash:     "manifest-1",
		FileCount:        3,
		ChangedFileCount: 3,
		Languages:        map[string]int64{"go": 2, "markdown": 1},
	}

	id, err := repo.Create(ctx, record)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected non-zero snapshot id")
	}

	fetched, err := repo.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if fetched == nil {
		t.Fatal("FindByID returned nil for existing snapshot")
	}
	if fetched.Repository != "myrepo" || fetched.CommitSHA != "abc123" || fetched.Branch != "main" {
		t.Fatalf("unexpected record: %#v", fetched)
	}
	if fetched.Languages["go"] != 2 {
		t.Fatalf("languages not round-tripped: %#v", fetched.Languages)
	}
	if fetched.CreatedAt.IsZero() {
		t.Fatal("created_at not populated")
	}

	byCommit, err := repo.FindByRepoAndCommit(ctx, "myrepo", "abc123")
	if err != nil {
		t.Fatalf("FindByRepoAndCommit error: %v", err)
	}
	if byCommit == nil || byCommit.ID != id {
		t.Fatalf("FindByRepoAndCommit = %#v", byCommit)
	}

	byManifest, err := repo.FindByManifestHash(ctx, "manifest-1")
	if err != nil {
		t.Fatalf("FindByManifestHash error: %v", err)
	}
	if byManifest == nil || byManifest.ID != id {
		t.Fatalf("FindByManifestHash = %#v", byManifest)
	}

	missing, err := repo.FindByID(ctx, id+100)
	if err != nil {
		t.Fatalf("FindByID for missing id error: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing snapshot, got %#v", missing)
	}

	deleted, err := repo.Delete(ctx, id)
	if err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if !deleted {
		t.Fatal("expected delete to remove record")
	}

	deleted, err = repo.Delete(ctx, id)
	if err != nil {
		t.Fatalf("second Delete error: %v", err)
	}
	if deleted {
		t.Fatal("second delete should affect no rows")
	}
}

func TestSnapshotRepositoryListFilters(t *testing.T) {
	ctx := context.Background()
	dbCtx := setupTestDB(t)
	repo := NewSnapshotRepository(dbCtx)

	seed := []SnapshotRecord{
		{Repository: "alpha", Branch: "main", ManifestHash: "m1"},
		{Repository: "alpha", Branch: "dev", ManifestHash: "m2"},
		{Repository: "beta", Branch: "main", ManifestHash: "m3"},
	}
	for _, r := range seed {
		if _, err := repo.Create(ctx, r); err != nil {
			t.Fatalf("Create error: %v", err)
		}
	}

	all, err := repo.List(ctx, "", "", 0, 0)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(all))
	}

	alpha, err := repo.List(ctx, "alpha", "", 0, 0)
	if err != nil {
		t.Fatalf("List by repository error: %v", err)
	}
	if len(alpha) != 2 {
		t.Fatalf("expected 2 alpha snapshots, got %d", len(alpha))
	}

	alphaDev, err := repo.List(ctx, "alpha", "dev", 0, 0)
	if err != nil {
		t.Fatalf("List by repository and branch error: %v", err)
	}
	if len(alphaDev) != 1 || alphaDev[0].ManifestHash != "m2" {
		t.Fatalf("unexpected alpha/dev result: %#v", alphaDev)
	}

	limited, err := repo.List(ctx, "", "", 2, 0)
	if err != nil {
		t.Fatalf("List with limit error: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 snapshots with limit, got %d", len(limited))
	}
}

func TestFileEntryRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	dbCtx := setupTestDB(t)

	snapshots := NewSnapshotRepository(dbCtx)
	snapshotID, err := snapshots.Create(ctx, SnapshotRecord{Repository: "repo", ManifestHash: "m1"})
	if err != nil {
		t.Fatalf("snapshot Create error: %v", err)
	}

	entries := NewFileEntryRepository(dbCtx)

	stored := FileEntryRecord{
		SnapshotID:  snapshotID,
		FilePath:    "main.go",
		FileHash:    "hash-main",
		FileSize:    12,
		Language:    "go",
		IsStored:    true,
		StoragePath: "/blobs/ha/sh/hash-main",
	}
	if _, err := entries.Create(ctx, stored); err != nil {
		t.Fatalf("entry Create error: %v", err)
	}

	reference := FileEntryRecord{
		SnapshotID: snapshotID,
		FilePath:   "copy.go",
		FileHash:   "hash-main",
		FileSize:   12,
		Language:   "go",
	}
	if _, err := entries.Create(ctx, reference); err != nil {
		t.Fatalf("reference Create error: %v", err)
	}

	list, err := entries.ListBySnapshot(ctx, snapshotID)
	if err != nil {
		t.Fatalf("ListBySnapshot error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(list))
	}
	// Ordered by path.
	if list[0].FilePath != "copy.go" || list[1].FilePath != "main.go" {
		t.Fatalf("unexpected order: %s, %s", list[0].FilePath, list[1].FilePath)
	}

	byPath, err := entries.FindByPath(ctx, snapshotID, "main.go")
	if err != nil {
		t.Fatalf("FindByPath error: %v", err)
	}
	if byPath == nil || !byPath.IsStored || byPath.StoragePath == "" {
		t.Fatalf("FindByPath = %#v", byPath)
	}

	owner, err := entries.FindStoredByHash(ctx, "hash-main")
	if err != nil {
		t.Fatalf("FindStoredByHash error: %v", err)
	}
	if owner == nil || owner.FilePath != "main.go" {
		t.Fatalf("FindStoredByHash = %#v", owner)
	}

	noOwner, err := entries.FindStoredByHash(ctx, "hash-unknown")
	if err != nil {
		t.Fatalf("FindStoredByHash for unknown hash error: %v", err)
	}
	if noOwner != nil {
		t.Fatalf("expected nil for unknown hash, got %#v", noOwner)
	}
}

func TestFileEntriesCascadeOnSnapshotDelete(t *testing.T) {
	ctx := context.Background()
	dbCtx := setupTestDB(t)

	snapshots := NewSnapshotRepository(dbCtx)
	snapshotID, err := snapshots.Create(ctx, SnapshotRecord{Repository: "repo", ManifestHash: "m1"})
	if err != nil {
		t.Fatalf("snapshot Create error: %v", err)
	}

	entries := NewFileEntryRepository(dbCtx)
	if _, err := entries.Create(ctx, FileEntryRecord{
		SnapshotID: snapshotID,
		FilePath:   "main.go",
		FileHash:   "h1",
		FileSize:   1,
	}); err != nil {
		t.Fatalf("entry Create error: %v", err)
	}

	if _, err := snapshots.Delete(ctx, snapshotID); err != nil {
		t.Fatalf("snapshot Delete error: %v", err)
	}

	remaining, err := entries.ListBySnapshot(ctx, snapshotID)
	if err != nil {
		t.Fatalf("ListBySnapshot error: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected cascade delete, found %d entries", len(remaining))
	}
}
