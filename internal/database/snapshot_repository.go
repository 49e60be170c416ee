package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqldb "github.com/treesnap/treesnap/internal/database/sqlc"
)

// SnapshotRepository exposes CRUD operations on the snapshots table.
type SnapshotRepository struct {
	ctx *Context
}

func NewSnapshotRepository(dbCtx *Context) *SnapshotRepository {
	return &SnapshotRepository{ctx: dbCtx}
}

func (r *SnapshotRepository) FindByID(ctx context.Context, id int64) (*SnapshotRecord, error) {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return nil, fmt.Errorf("snapshot repository: missing database context")
	}

	row, err := queries.FindSnapshotByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	record := SnapshotRecordFromRow(row)
	return &record, nil
}

func (r *SnapshotRepository) FindByRepoAndCommit(ctx context.Context, repository, commitSHA string) (*SnapshotRecord, error) {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return nil, fmt.Errorf("snapshot repository: missing database context")
	}

	row, err := queries.FindSnapshotByRepoAndCommit(ctx, sqldb.FindSnapshotByRepoAndCommitParams{
		Repository: repository,
		CommitSha:  commitSHA,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	record := SnapshotRecordFromRow(row)
	return &record, nil
}

func (r *SnapshotRepository) FindByManifestHash(ctx context.Context, manifestHash string) (*SnapshotRecord, error) {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return nil, fmt.Errorf("snapshot repository: missing database context")
	}

	row, err := queries.FindSnapshotByManifestHash(ctx, manifestHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	record := SnapshotRecordFromRow(row)
	return &record, nil
}

// List returns snapshots newest first. Repository and branch filters are
// optional; branch filtering requires a repository filter as well.
func (r *SnapshotRepository) List(ctx context.Context, repository, branch string, limit, offset int64) ([]SnapshotRecord, error) {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return nil, fmt.Errorf("snapshot repository: missing database context")
	}

	if limit <= 0 {
		limit = 50
	}

	var (
		rows []sqldb.Snapshot
		err  error
	)
	switch {
	case repository != "" && branch != "":
		rows, err = queries.ListSnapshotsByRepositoryAndBranch(ctx, sqldb.ListSnapshotsByRepositoryAndBranchParams{
			Repository: repository,
			Branch:     branch,
			Limit:      limit,
			Offset:     offset,
		})
	case repository != "":
		rows, err = queries.ListSnapshotsByRepository(ctx, sqldb.ListSnapshotsByRepositoryParams{
			Repository: repository,
			Limit:      limit,
			Offset:     offset,
		})
	default:
		rows, err = queries.ListSnapshots(ctx, sqldb.ListSnapshotsParams{Limit: limit, Offset: offset})
	}
	if err != nil {
		return nil, err
	}

	result := make([]SnapshotRecord, 0, len(rows))
	for _, row := range rows {
		result = append(result, SnapshotRecordFromRow(row))
	}
	return result, nil
}

func (r *SnapshotRepository) Create(ctx context.Context, record SnapshotRecord) (int64, error) {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return 0, fmt.Errorf("snapshot repository: missing database context")
	}

	res, err := queries.InsertSnapshot(ctx, SnapshotInsertParams(record))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *SnapshotRepository) Delete(ctx context.Context, id int64) (bool, error) {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return false, fmt.Errorf("snapshot repository: missing database context")
	}

	affected, err := queries.DeleteSnapshotByID(ctx, id)
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *SnapshotRepository) Count(ctx context.Context) (int64, error) {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return 0, fmt.Errorf("snapshot repository: missing database context")
	}
	return queries.CountSnapshots(ctx)
}
