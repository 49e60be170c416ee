package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqldb "github.com/treesnap/treesnap/internal/database/sqlc"
)

// FileEntryRepository exposes CRUD operations on the file_entries table,
// including the hash-ownership queries the snapshot store depends on.
type FileEntryRepository struct {
	ctx *Context
}

func NewFileEntryRepository(dbCtx *Context) *FileEntryRepository {
	return &FileEntryRepository{ctx: dbCtx}
}

func (r *FileEntryRepository) Create(ctx context.Context, record FileEntryRecord) (int64, error) {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return 0, fmt.Errorf("file entry repository: missing database context")
	}

	res, err := queries.InsertFileEntry(ctx, FileEntryInsertParams(record))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *FileEntryRepository) ListBySnapshot(ctx context.Context, snapshotID int64) ([]FileEntryRecord, error) {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return nil, fmt.Errorf("file entry repository: missing database context")
	}

	rows, err := queries.ListFileEntriesBySnapshot(ctx, snapshotID)
	if err != nil {
		return nil, err
	}

	result := make([]FileEntryRecord, 0, len(rows))
	for _, row := range rows {
		result = append(result, FileEntryRecordFromRow(row))
	}
	return result, nil
}

func (r *FileEntryRepository) FindByPath(ctx context.Context, snapshotID int64, filePath string) (*FileEntryRecord, error) {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return nil, fmt.Errorf("file entry repository: missing database context")
	}

	row, err := queries.FindFileEntryByPath(ctx, sqldb.FindFileEntryByPathParams{
		SnapshotID: snapshotID,
		FilePath:   filePath,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	record := FileEntryRecordFromRow(row)
	return &record, nil
}

// FindStoredByHash returns the entry that canonically owns the blob for the
// given hash, or nil when no snapshot stores it.
func (r *FileEntryRepository) FindStoredByHash(ctx context.Context, fileHash string) (*FileEntryRecord, error) {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return nil, fmt.Errorf("file entry repository: missing database context")
	}

	row, err := queries.FindStoredEntryByHash(ctx, fileHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	record := FileEntryRecordFromRow(row)
	return &record, nil
}
