package sqldb

import (
	"context"
	"database/sql"
)

const insertFileEntry = `
INSERT INTO file_entries (snapshot_id, file_path, file_hash, file_size, language, is_stored, storage_path)
VALUES (?, ?, ?, ?, ?, ?, ?)
`

type InsertFileEntryParams struct {
	SnapshotID  int64
	FilePath    string
	FileHash    string
	FileSize    int64
	Language    sql.NullString
	IsStored    sql.NullInt64
	StoragePath sql.NullString
}

func (q *Queries) InsertFileEntry(ctx context.Context, arg InsertFileEntryParams) (sql.Result, error) {
	return q.db.ExecContext(ctx, insertFileEntry,
		arg.SnapshotID,
		arg.FilePath,
		arg.FileHash,
		arg.FileSize,
		arg.Language,
		arg.IsStored,
		arg.StoragePath,
	)
}

const listFileEntriesBySnapshot = `
SELECT id, snapshot_id, file_path, file_hash, file_size, language, is_stored, storage_path
FROM file_entries
WHERE snapshot_id = ?
ORDER BY file_path ASC
`

func (q *Queries) ListFileEntriesBySnapshot(ctx context.Context, snapshotID int64) ([]FileEntry, error) {
	rows, err := q.db.QueryContext(ctx, listFileEntriesBySnapshot, snapshotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFileEntries(rows)
}

const listStoredEntriesBySnapshot = `
SELECT id, snapshot_id, file_path, file_hash, file_size, language, is_stored, storage_path
FROM file_entries
WHERE snapshot_id = ? AND is_stored = 1
ORDER BY file_path ASC
`

func (q *Queries) ListStoredEntriesBySnapshot(ctx context.Context, snapshotID int64) ([]FileEntry, error) {
	rows, err := q.db.QueryContext(ctx, listStoredEntriesBySnapshot, snapshotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFileEntries(rows)
}

const findFileEntryByPath = `
SELECT id, snapshot_id, file_path, file_hash, file_size, language, is_stored, storage_path
FROM file_entries
WHERE snapshot_id = ? AND file_path = ?
`

type FindFileEntryByPathParams struct {
	SnapshotID int64
	FilePath   string
}

func (q *Queries) FindFileEntryByPath(ctx context.Context, arg FindFileEntryByPathParams) (FileEntry, error) {
	row := q.db.QueryRowContext(ctx, findFileEntryByPath, arg.SnapshotID, arg.FilePath)
	return scanFileEntryRow(row)
}

const findStoredEntryByHash = `
SELECT id, snapshot_id, file_path, file_hash, file_size, language, is_stored, storage_path
FROM file_entries
WHERE file_hash = ? AND is_stored = 1
LIMIT 1
`

func (q *Queries) FindStoredEntryByHash(ctx context.Context, fileHash string) (FileEntry, error) {
	row := q.db.QueryRowContext(ctx, findStoredEntryByHash, fileHash)
	return scanFileEntryRow(row)
}

const findEntryByHashExcludingSnapshot = `
SELECT id, snapshot_id, file_path, file_hash, file_size, language, is_stored, storage_path
FROM file_entries
WHERE file_hash = ? AND snapshot_id != ?
ORDER BY snapshot_id ASC
LIMIT 1
`

type FindEntryByHashExcludingSnapshotParams struct {
	FileHash   string
	SnapshotID int64
}

func (q *Queries) FindEntryByHashExcludingSnapshot(ctx context.Context, arg FindEntryByHashExcludingSnapshotParams) (FileEntry, error) {
	row := q.db.QueryRowContext(ctx, findEntryByHashExcludingSnapshot, arg.FileHash, arg.SnapshotID)
	return scanFileEntryRow(row)
}

const countEntriesByHashExcludingSnapshot = `
SELECT COUNT(*)
FROM file_entries
WHERE file_hash = ? AND snapshot_id != ?
`

type CountEntriesByHashExcludingSnapshotParams struct {
	FileHash   string
	SnapshotID int64
}

func (q *Queries) CountEntriesByHashExcludingSnapshot(ctx context.Context, arg CountEntriesByHashExcludingSnapshotParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, countEntriesByHashExcludingSnapshot, arg.FileHash, arg.SnapshotID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const markEntryStored = `
UPDATE file_entries
SET is_stored = 1, storage_path = ?
WHERE id = ?
`

type MarkEntryStoredParams struct {
	StoragePath sql.NullString
	ID          int64
}

func (q *Queries) MarkEntryStored(ctx context.Context, arg MarkEntryStoredParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, markEntryStored, arg.StoragePath, arg.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteFileEntriesBySnapshot = `DELETE FROM file_entries WHERE snapshot_id = ?`

func (q *Queries) DeleteFileEntriesBySnapshot(ctx context.Context, snapshotID int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteFileEntriesBySnapshot, snapshotID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const countStoredEntriesByHash = `
SELECT COUNT(*)
FROM file_entries
WHERE file_hash = ? AND is_stored = 1
`

func (q *Queries) CountStoredEntriesByHash(ctx context.Context, fileHash string) (int64, error) {
	row := q.db.QueryRowContext(ctx, countStoredEntriesByHash, fileHash)
	var count int64
	err := row.Scan(&count)
	return count, err
}

func scanFileEntryRow(row *sql.Row) (FileEntry, error) {
	var e FileEntry
	err := row.Scan(
		&e.ID,
		&e.SnapshotID,
		&e.FilePath,
		&e.FileHash,
		&e.FileSize,
		&e.Language,
		&e.IsStored,
		&e.StoragePath,
	)
	return e, err
}

func scanFileEntries(rows *sql.Rows) ([]FileEntry, error) {
	var items []FileEntry
	for rows.Next() {
		var e FileEntry
		if err := rows.Scan(
			&e.ID,
			&e.SnapshotID,
			&e.FilePath,
			&e.FileHash,
			&e.FileSize,
			&e.Language,
			&e.IsStored,
			&e.StoragePath,
		); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
