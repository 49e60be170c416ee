package sqldb

import (
	"context"
	"database/sql"
)

const insertSnapshot = `
INSERT INTO snapshots (repository, commit_sha, branch, manifest_hash, file_count, changed_file_count, languages, parent_snapshot_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

type InsertSnapshotParams struct {
	Repository       string
	CommitSha        sql.NullString
	Branch           sql.NullString
	ManifestHash     string
	FileCount        int64
	ChangedFileCount int64
	Languages        sql.NullString
	ParentSnapshotID sql.NullInt64
}

func (q *Queries) InsertSnapshot(ctx context.Context, arg InsertSnapshotParams) (sql.Result, error) {
	return q.db.ExecContext(ctx, insertSnapshot,
		arg.Repository,
		arg.CommitSha,
		arg.Branch,
		arg.ManifestHash,
		arg.FileCount,
		arg.ChangedFileCount,
		arg.Languages,
		arg.ParentSnapshotID,
	)
}

const findSnapshotByID = `
SELECT id, repository, commit_sha, branch, manifest_hash, file_count, changed_file_count, languages, parent_snapshot_id, created_at
FROM snapshots
WHERE id = ?
`

func (q *Queries) FindSnapshotByID(ctx context.Context, id int64) (Snapshot, error) {
	row := q.db.QueryRowContext(ctx, findSnapshotByID, id)
	var s Snapshot
	err := row.Scan(
		&s.ID,
		&s.Repository,
		&s.CommitSha,
		&s.Branch,
		&s.ManifestHash,
		&s.FileCount,
		&s.ChangedFileCount,
		&s.Languages,
		&s.ParentSnapshotID,
		&s.CreatedAt,
	)
	return s, err
}

const findSnapshotByRepoAndCommit = `
SELECT id, repository, commit_sha, branch, manifest_hash, file_count, changed_file_count, languages, parent_snapshot_id, created_at
FROM snapshots
WHERE repository = ? AND commit_sha = ?
ORDER BY id DESC
LIMIT 1
`

type FindSnapshotByRepoAndCommitParams struct {
	Repository string
	CommitSha  string
}

func (q *Queries) FindSnapshotByRepoAndCommit(ctx context.Context, arg FindSnapshotByRepoAndCommitParams) (Snapshot, error) {
	row := q.db.QueryRowContext(ctx, findSnapshotByRepoAndCommit, arg.Repository, arg.CommitSha)
	var s Snapshot
	err := row.Scan(
		&s.ID,
		&s.Repository,
		&s.CommitSha,
		&s.Branch,
		&s.ManifestHash,
		&s.FileCount,
		&s.ChangedFileCount,
		&s.Languages,
		&s.ParentSnapshotID,
		&s.CreatedAt,
	)
	return s, err
}

const findSnapshotByManifestHash = `
SELECT id, repository, commit_sha, branch, manifest_hash, file_count, changed_file_count, languages, parent_snapshot_id, created_at
FROM snapshots
WHERE manifest_hash = ?
ORDER BY id ASC
LIMIT 1
`

func (q *Queries) FindSnapshotByManifestHash(ctx context.Context, manifestHash string) (Snapshot, error) {
	row := q.db.QueryRowContext(ctx, findSnapshotByManifestHash, manifestHash)
	var s Snapshot
	err := row.Scan(
		&s.ID,
		&s.Repository,
		&s.CommitSha,
		&s.Branch,
		&s.ManifestHash,
		&s.FileCount,
		&s.ChangedFileCount,
		&s.Languages,
		&s.ParentSnapshotID,
		&s.CreatedAt,
	)
	return s, err
}

const listSnapshots = `
SELECT id, repository, commit_sha, branch, manifest_hash, file_count, changed_file_count, languages, parent_snapshot_id, created_at
FROM snapshots
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?
`

type ListSnapshotsParams struct {
	Limit  int64
	Offset int64
}

func (q *Queries) ListSnapshots(ctx context.Context, arg ListSnapshotsParams) ([]Snapshot, error) {
	rows, err := q.db.QueryContext(ctx, listSnapshots, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

const listSnapshotsByRepository = `
SELECT id, repository, commit_sha, branch, manifest_hash, file_count, changed_file_count, languages, parent_snapshot_id, created_at
FROM snapshots
WHERE repository = ?
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?
`

type ListSnapshotsByRepositoryParams struct {
	Repository string
	Limit      int64
	Offset     int64
}

func (q *Queries) ListSnapshotsByRepository(ctx context.Context, arg ListSnapshotsByRepositoryParams) ([]Snapshot, error) {
	rows, err := q.db.QueryContext(ctx, listSnapshotsByRepository, arg.Repository, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

const listSnapshotsByRepositoryAndBranch = `
SELECT id, repository, commit_sha, branch, manifest_hash, file_count, changed_file_count, languages, parent_snapshot_id, created_at
FROM snapshots
WHERE repository = ? AND branch = ?
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?
`

type ListSnapshotsByRepositoryAndBranchParams struct {
	Repository string
	Branch     string
	Limit      int64
	Offset     int64
}

func (q *Queries) ListSnapshotsByRepositoryAndBranch(ctx context.Context, arg ListSnapshotsByRepositoryAndBranchParams) ([]Snapshot, error) {
	rows, err := q.db.QueryContext(ctx, listSnapshotsByRepositoryAndBranch, arg.Repository, arg.Branch, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

const markSnapshotChangedCount = `
UPDATE snapshots
SET changed_file_count = ?
WHERE id = ?
`

type MarkSnapshotChangedCountParams struct {
	ChangedFileCount int64
	ID               int64
}

func (q *Queries) MarkSnapshotChangedCount(ctx context.Context, arg MarkSnapshotChangedCountParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, markSnapshotChangedCount, arg.ChangedFileCount, arg.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteSnapshotByID = `DELETE FROM snapshots WHERE id = ?`

func (q *Queries) DeleteSnapshotByID(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteSnapshotByID, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const countSnapshots = `SELECT COUNT(*) FROM snapshots`

func (q *Queries) CountSnapshots(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countSnapshots)
	var count int64
	err := row.Scan(&count)
	return count, err
}

func scanSnapshots(rows *sql.Rows) ([]Snapshot, error) {
	var items []Snapshot
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(
			&s.ID,
			&s.Repository,
			&s.CommitSha,
			&s.Branch,
			&s.ManifestHash,
			&s.FileCount,
			&s.ChangedFileCount,
			&s.Languages,
			&s.ParentSnapshotID,
			&s.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
