// Package services implements the snapshot store: creation with cross-snapshot
// dedup, retrieval, listing, branching, merging, and deletion with blob
// ownership migration.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/treesnap/treesnap/internal/blobstore"
	"github.com/treesnap/treesnap/internal/database"
	sqldb "github.com/treesnap/treesnap/internal/database/sqlc"
	"github.com/treesnap/treesnap/internal/manifest"
)

var (
	// ErrSnapshotNotFound is returned when a requested snapshot does not exist.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrFileNotFound is returned when a snapshot has no entry for a path.
	ErrFileNotFound = errors.New("file not found in snapshot")

	// ErrBlobMissing indicates a file entry whose hash resolves to no stored
	// content anywhere. This is a correctness violation, never an expected
	// condition, so callers must surface it loudly.
	ErrBlobMissing = errors.New("blob missing for file hash")
)

// SnapshotService exposes high-level snapshot operations over the metadata
// database and the blob store.
type SnapshotService struct {
	ctx   *database.Context
	blobs blobstore.Store
	log   *logrus.Logger
}

// NewSnapshotService creates a new SnapshotService.
func NewSnapshotService(dbCtx *database.Context, blobs blobstore.Store) *SnapshotService {
	return &SnapshotService{
		ctx:   dbCtx,
		blobs: blobs,
		log:   logrus.StandardLogger(),
	}
}

// CreateParams describes one snapshot creation request.
type CreateParams struct {
	Repository string
	CommitSHA  string
	Branch     string
	Manifest   manifest.Manifest

	// Open returns a reader for a manifest path's content. It is only invoked
	// for files whose hash is not yet stored anywhere.
	Open func(path string) (io.ReadCloser, error)
}

// CreateResult reports the snapshot and whether an existing one was reused.
type CreateResult struct {
	Snapshot    database.SnapshotRecord
	Reused      bool
	StoredBlobs int
}

// Create persists a snapshot of the given manifest. An existing snapshot for
// the same (repository, commit) or with an identical manifest hash is returned
// unchanged. Otherwise only files whose hash no snapshot already stores are
// written to the blob store, and the snapshot row plus all file entries commit
// as a single transaction.
func (s *SnapshotService) Create(ctx context.Context, p CreateParams) (*CreateResult, error) {
	if p.Repository == "" {
		return nil, fmt.Errorf("snapshot service: repository is required")
	}
	if p.Manifest == nil {
		return nil, fmt.Errorf("snapshot service: manifest is required")
	}

	snapshots := database.NewSnapshotRepository(s.ctx)

	if p.CommitSHA != "" {
		existing, err := snapshots.FindByRepoAndCommit(ctx, p.Repository, p.CommitSHA)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &CreateResult{Snapshot: *existing, Reused: true}, nil
		}
	}

	manifestHash := p.Manifest.Hash()

	existing, err := snapshots.FindByManifestHash(ctx, manifestHash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &CreateResult{Snapshot: *existing, Reused: true}, nil
	}

	var result CreateResult
	err = s.withTx(ctx, func(txCtx context.Context, q *sqldb.Queries) error {
		// Re-check inside the transaction: a concurrent creation may have
		// persisted the same state between the read above and lock acquisition.
		row, err := q.FindSnapshotByManifestHash(txCtx, manifestHash)
		switch {
		case err == nil:
			result.Snapshot = database.SnapshotRecordFromRow(row)
			result.Reused = true
			return nil
		case errors.Is(err, sql.ErrNoRows):
		default:
			return err
		}

		paths := p.Manifest.Paths()

		// Partition the manifest: hashes some snapshot already stores are
		// covered; the rest need physical storage. Duplicate hashes within
		// this manifest get one stored entry, the others reference it.
		covered := make(map[string]bool, len(paths))
		storedHere := make(map[string]bool)
		for _, path := range paths {
			hash := p.Manifest[path].Hash
			if _, seen := covered[hash]; seen {
				continue
			}
			_, err := q.FindStoredEntryByHash(txCtx, hash)
			switch {
			case err == nil:
				covered[hash] = true
			case errors.Is(err, sql.ErrNoRows):
				covered[hash] = false
			default:
				return err
			}
		}

		res, err := q.InsertSnapshot(txCtx, database.SnapshotInsertParams(database.SnapshotRecord{
			Repository:   p.Repository,
			CommitSHA:    p.CommitSHA,
			Branch:       p.Branch,
			ManifestHash: manifestHash,
			FileCount:    int64(len(paths)),
			Languages:    p.Manifest.Languages(),
		}))
		if err != nil {
			return err
		}
		snapshotID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		for _, path := range paths {
			entry := p.Manifest[path]
			record := database.FileEntryRecord{
				SnapshotID: snapshotID,
				FilePath:   path,
				FileHash:   entry.Hash,
				FileSize:   entry.Size,
				Language:   entry.Language,
			}

			if !covered[entry.Hash] && !storedHere[entry.Hash] {
				storagePath, err := s.storeBlob(entry.Hash, path, p.Open)
				if err != nil {
					return err
				}
				record.IsStored = true
				record.StoragePath = storagePath
				storedHere[entry.Hash] = true
				result.StoredBlobs++
			}

			if _, err := q.InsertFileEntry(txCtx, database.FileEntryInsertParams(record)); err != nil {
				return err
			}
		}

		// Record the changed-file count now that the partition is known.
		if _, err := q.MarkSnapshotChangedCount(txCtx, sqldb.MarkSnapshotChangedCountParams{
			ChangedFileCount: int64(result.StoredBlobs),
			ID:               snapshotID,
		}); err != nil {
			return err
		}

		created, err := q.FindSnapshotByID(txCtx, snapshotID)
		if err != nil {
			return err
		}
		result.Snapshot = database.SnapshotRecordFromRow(created)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Reused {
		s.log.WithFields(logrus.Fields{
			"snapshot":   result.Snapshot.ID,
			"repository": p.Repository,
			"files":      len(p.Manifest),
			"stored":     result.StoredBlobs,
		}).Debug("snapshot created")
	}

	return &result, nil
}

// storeBlob writes one file's bytes into the blob store. Writes are idempotent
// by content-addressing, so a failure later in the enclosing transaction
// leaves at worst a harmless orphan blob.
func (s *SnapshotService) storeBlob(hash, path string, open func(string) (io.ReadCloser, error)) (string, error) {
	if open == nil {
		return "", fmt.Errorf("snapshot service: no content source for %s", path)
	}
	r, err := open(path)
	if err != nil {
		return "", fmt.Errorf("snapshot service: reading %s: %w", path, err)
	}
	defer r.Close()

	storagePath, err := s.blobs.Put(hash, r)
	if err != nil {
		return "", fmt.Errorf("snapshot service: storing blob for %s: %w", path, err)
	}
	return storagePath, nil
}

// Get retrieves a snapshot by id.
func (s *SnapshotService) Get(ctx context.Context, id int64) (*database.SnapshotRecord, error) {
	record, err := database.NewSnapshotRepository(s.ctx).FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrSnapshotNotFound
	}
	return record, nil
}

// List returns snapshots newest first with optional repository/branch filters.
func (s *SnapshotService) List(ctx context.Context, repository, branch string, limit, offset int64) ([]database.SnapshotRecord, error) {
	return database.NewSnapshotRepository(s.ctx).List(ctx, repository, branch, limit, offset)
}

// Entries returns a snapshot's file entries ordered by path.
func (s *SnapshotService) Entries(ctx context.Context, snapshotID int64) ([]database.FileEntryRecord, error) {
	if _, err := s.Get(ctx, snapshotID); err != nil {
		return nil, err
	}
	return database.NewFileEntryRepository(s.ctx).ListBySnapshot(ctx, snapshotID)
}

// Manifest reconstructs the manifest of a stored snapshot.
func (s *SnapshotService) Manifest(ctx context.Context, snapshotID int64) (manifest.Manifest, error) {
	entries, err := s.Entries(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	m := make(manifest.Manifest, len(entries))
	for _, e := range entries {
		m[e.FilePath] = manifest.FileEntry{
			Path:     e.FilePath,
			Hash:     e.FileHash,
			Size:     e.FileSize,
			Language: e.Language,
		}
	}
	return m, nil
}

// GetFileContent resolves a snapshot path to its bytes. Entries that do not
// own their blob resolve through whichever snapshot currently stores the hash.
func (s *SnapshotService) GetFileContent(ctx context.Context, snapshotID int64, path string) ([]byte, error) {
	entries := database.NewFileEntryRepository(s.ctx)

	entry, err := entries.FindByPath(ctx, snapshotID, path)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		if _, err := s.Get(ctx, snapshotID); err != nil {
			return nil, err
		}
		return nil, ErrFileNotFound
	}

	if !entry.IsStored {
		holder, err := entries.FindStoredByHash(ctx, entry.FileHash)
		if err != nil {
			return nil, err
		}
		if holder == nil {
			return nil, fmt.Errorf("%w: %s (snapshot %d, path %s)", ErrBlobMissing, entry.FileHash, snapshotID, path)
		}
	}

	data, err := s.blobs.Get(entry.FileHash)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s (snapshot %d, path %s)", ErrBlobMissing, entry.FileHash, snapshotID, path)
		}
		return nil, err
	}
	return data, nil
}

// Delete removes a snapshot. For every blob this snapshot owns, ownership is
// first migrated to another referencing entry when one exists; blobs no other
// snapshot references are deleted outright. The metadata transaction commits
// only after every owned hash is resolved. Physical removal of orphaned blobs
// happens afterwards, each one re-verified under a write transaction so a
// creation claiming the hash in the meantime keeps its bytes.
func (s *SnapshotService) Delete(ctx context.Context, id int64) error {
	var orphanHashes []string
	migrations := 0

	err := s.withTx(ctx, func(txCtx context.Context, q *sqldb.Queries) error {
		if _, err := q.FindSnapshotByID(txCtx, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrSnapshotNotFound
			}
			return err
		}

		stored, err := q.ListStoredEntriesBySnapshot(txCtx, id)
		if err != nil {
			return err
		}

		for _, row := range stored {
			entry := database.FileEntryRecordFromRow(row)

			other, err := q.FindEntryByHashExcludingSnapshot(txCtx, sqldb.FindEntryByHashExcludingSnapshotParams{
				FileHash:   entry.FileHash,
				SnapshotID: id,
			})
			switch {
			case err == nil:
				// The blob's bytes already live at the content-addressed
				// location; only ownership moves.
				if _, err := q.MarkEntryStored(txCtx, sqldb.MarkEntryStoredParams{
					StoragePath: markStoragePath(s.blobs.Locate(entry.FileHash)),
					ID:          other.ID,
				}); err != nil {
					return err
				}
				migrations++
			case errors.Is(err, sql.ErrNoRows):
				orphanHashes = append(orphanHashes, entry.FileHash)
			default:
				return err
			}
		}

		if _, err := q.DeleteFileEntriesBySnapshot(txCtx, id); err != nil {
			return err
		}
		if _, err := q.DeleteSnapshotByID(txCtx, id); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	removed := 0
	for _, hash := range orphanHashes {
		ok, err := s.removeUnclaimedBlob(ctx, hash)
		if err != nil {
			s.log.WithError(err).WithField("hash", hash).Warn("failed to delete orphaned blob")
			continue
		}
		if ok {
			removed++
		}
	}

	s.log.WithFields(logrus.Fields{
		"snapshot":   id,
		"migrations": migrations,
		"deleted":    removed,
	}).Debug("snapshot deleted")

	return nil
}

// removeUnclaimedBlob deletes the bytes for hash unless a snapshot has claimed
// the hash since the delete transaction committed. The re-check and the
// physical removal share an immediate-mode transaction: a concurrent creation
// either commits its claim first, which keeps the bytes, or waits on the write
// lock and re-stores them. Skipping a removal is always safe; an orphaned blob
// is unreachable, not incorrect.
func (s *SnapshotService) removeUnclaimedBlob(ctx context.Context, hash string) (bool, error) {
	removed := false
	err := s.withTx(ctx, func(txCtx context.Context, q *sqldb.Queries) error {
		_, err := q.FindStoredEntryByHash(txCtx, hash)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, sql.ErrNoRows):
		default:
			return err
		}

		if err := s.blobs.Delete(hash); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
			return err
		}
		removed = true
		return nil
	})
	return removed, err
}

// Branch creates a new snapshot that shares every blob of the base snapshot.
// No bytes are written: all new entries reference the base's hashes.
func (s *SnapshotService) Branch(ctx context.Context, baseID int64, branchName string) (*database.SnapshotRecord, error) {
	if branchName == "" {
		return nil, fmt.Errorf("snapshot service: branch name is required")
	}

	var record database.SnapshotRecord
	err := s.withTx(ctx, func(txCtx context.Context, q *sqldb.Queries) error {
		baseRow, err := q.FindSnapshotByID(txCtx, baseID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrSnapshotNotFound
			}
			return err
		}
		base := database.SnapshotRecordFromRow(baseRow)

		entries, err := q.ListFileEntriesBySnapshot(txCtx, baseID)
		if err != nil {
			return err
		}

		res, err := q.InsertSnapshot(txCtx, database.SnapshotInsertParams(database.SnapshotRecord{
			Repository:       base.Repository,
			Branch:           branchName,
			ManifestHash:     base.ManifestHash,
			FileCount:        base.FileCount,
			Languages:        base.Languages,
			ParentSnapshotID: base.ID,
		}))
		if err != nil {
			return err
		}
		branchID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		for _, row := range entries {
			entry := database.FileEntryRecordFromRow(row)
			entry.ID = 0
			entry.SnapshotID = branchID
			entry.IsStored = false
			entry.StoragePath = ""
			if _, err := q.InsertFileEntry(txCtx, database.FileEntryInsertParams(entry)); err != nil {
				return err
			}
		}

		created, err := q.FindSnapshotByID(txCtx, branchID)
		if err != nil {
			return err
		}
		record = database.SnapshotRecordFromRow(created)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Merge unions two branches' manifests into a new snapshot. The policy is
// last-writer-wins: branch2's version overwrites on any path or content
// conflict. No conflict detection is performed.
func (s *SnapshotService) Merge(ctx context.Context, branch1ID, branch2ID int64, mergeName string) (*database.SnapshotRecord, error) {
	if mergeName == "" {
		return nil, fmt.Errorf("snapshot service: merge name is required")
	}

	var record database.SnapshotRecord
	err := s.withTx(ctx, func(txCtx context.Context, q *sqldb.Queries) error {
		row1, err := q.FindSnapshotByID(txCtx, branch1ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrSnapshotNotFound
			}
			return err
		}
		base := database.SnapshotRecordFromRow(row1)

		if _, err := q.FindSnapshotByID(txCtx, branch2ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrSnapshotNotFound
			}
			return err
		}

		entries1, err := q.ListFileEntriesBySnapshot(txCtx, branch1ID)
		if err != nil {
			return err
		}
		entries2, err := q.ListFileEntriesBySnapshot(txCtx, branch2ID)
		if err != nil {
			return err
		}

		merged := make(map[string]database.FileEntryRecord, len(entries1)+len(entries2))
		for _, row := range entries1 {
			entry := database.FileEntryRecordFromRow(row)
			merged[entry.FilePath] = entry
		}
		overridden := int64(0)
		for _, row := range entries2 {
			entry := database.FileEntryRecordFromRow(row)
			if prev, ok := merged[entry.FilePath]; !ok || prev.FileHash != entry.FileHash {
				merged[entry.FilePath] = entry
				overridden++
			}
		}

		m := make(manifest.Manifest, len(merged))
		for path, entry := range merged {
			m[path] = manifest.FileEntry{
				Path:     path,
				Hash:     entry.FileHash,
				Size:     entry.FileSize,
				Language: entry.Language,
			}
		}

		res, err := q.InsertSnapshot(txCtx, database.SnapshotInsertParams(database.SnapshotRecord{
			Repository:       base.Repository,
			Branch:           mergeName,
			ManifestHash:     m.Hash(),
			FileCount:        int64(len(merged)),
			ChangedFileCount: overridden,
			Languages:        m.Languages(),
			ParentSnapshotID: base.ID,
		}))
		if err != nil {
			return err
		}
		mergeID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		paths := make([]string, 0, len(merged))
		for path := range merged {
			paths = append(paths, path)
		}
		sort.Strings(paths)

		for _, path := range paths {
			entry := merged[path]
			entry.ID = 0
			entry.SnapshotID = mergeID
			entry.IsStored = false
			entry.StoragePath = ""
			if _, err := q.InsertFileEntry(txCtx, database.FileEntryInsertParams(entry)); err != nil {
				return err
			}
		}

		created, err := q.FindSnapshotByID(txCtx, mergeID)
		if err != nil {
			return err
		}
		record = database.SnapshotRecordFromRow(created)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// VerifyReport summarises an integrity check of one snapshot.
type VerifyReport struct {
	Checked      int
	Mismatched   []string
	Unresolvable []string
}

// Verify re-hashes every resolvable entry of a snapshot against its recorded
// hash.
func (s *SnapshotService) Verify(ctx context.Context, snapshotID int64) (*VerifyReport, error) {
	entries, err := s.Entries(ctx, snapshotID)
	if err != nil {
		return nil, err
	}

	report := &VerifyReport{}
	for _, entry := range entries {
		data, err := s.GetFileContent(ctx, snapshotID, entry.FilePath)
		if err != nil {
			if errors.Is(err, ErrBlobMissing) {
				report.Unresolvable = append(report.Unresolvable, entry.FilePath)
				continue
			}
			return nil, err
		}
		report.Checked++
		if manifest.HashBytes(data) != entry.FileHash {
			report.Mismatched = append(report.Mismatched, entry.FilePath)
		}
	}
	return report, nil
}

func (s *SnapshotService) withTx(ctx context.Context, fn func(context.Context, *sqldb.Queries) error) error {
	if s.ctx == nil || s.ctx.DB == nil {
		return fmt.Errorf("snapshot service: missing database context")
	}

	tx, err := s.ctx.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	queries := sqldb.New(tx)

	if err := fn(ctx, queries); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return err
	}

	return nil
}

func markStoragePath(path string) sql.NullString {
	if path == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: path, Valid: true}
}
