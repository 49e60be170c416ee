package database

import (
	"database/sql"
	"encoding/json"

	sqldb "github.com/treesnap/treesnap/internal/database/sqlc"
)

// SnapshotRecordFromRow converts a database snapshot row to a SnapshotRecord.
func SnapshotRecordFromRow(row sqldb.Snapshot) SnapshotRecord {
	return SnapshotRecord{
		ID:               row.ID,
		Repository:       row.Repository,
		CommitSHA:        optionalString(row.CommitSha),
		Branch:           optionalString(row.Branch),
		ManifestHash:     row.ManifestHash,
		FileCount:        row.FileCount,
		ChangedFileCount: row.ChangedFileCount,
		Languages:        decodeLanguages(row.Languages),
		ParentSnapshotID: optionalInt64(row.ParentSnapshotID),
		CreatedAt:        optionalTime(row.CreatedAt),
	}
}

// SnapshotInsertParams creates insert parameters from a SnapshotRecord.
func SnapshotInsertParams(record SnapshotRecord) sqldb.InsertSnapshotParams {
	return sqldb.InsertSnapshotParams{
		Repository:       record.Repository,
		CommitSha:        nullString(record.CommitSHA),
		Branch:           nullString(record.Branch),
		ManifestHash:     record.ManifestHash,
		FileCount:        record.FileCount,
		ChangedFileCount: record.ChangedFileCount,
		Languages:        encodeLanguages(record.Languages),
		ParentSnapshotID: nullInt64(record.ParentSnapshotID),
	}
}

// FileEntryRecordFromRow converts a database file entry row to a FileEntryRecord.
func FileEntryRecordFromRow(row sqldb.FileEntry) FileEntryRecord {
	return FileEntryRecord{
		ID:          row.ID,
		SnapshotID:  row.SnapshotID,
		FilePath:    row.FilePath,
		FileHash:    row.FileHash,
		FileSize:    row.FileSize,
		Language:    optionalString(row.Language),
		IsStored:    optionalBool(row.IsStored),
		StoragePath: optionalString(row.StoragePath),
	}
}

// FileEntryInsertParams creates insert parameters from a FileEntryRecord.
func FileEntryInsertParams(record FileEntryRecord) sqldb.InsertFileEntryParams {
	return sqldb.InsertFileEntryParams{
		SnapshotID:  record.SnapshotID,
		FilePath:    record.FilePath,
		FileHash:    record.FileHash,
		FileSize:    record.FileSize,
		Language:    nullString(record.Language),
		IsStored:    boolToNullInt64(record.IsStored),
		StoragePath: nullString(record.StoragePath),
	}
}

func encodeLanguages(languages map[string]int64) sql.NullString {
	if len(languages) == 0 {
		return sql.NullString{}
	}
	data, err := json.Marshal(languages)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(data), Valid: true}
}

func decodeLanguages(ns sql.NullString) map[string]int64 {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var languages map[string]int64
	if err := json.Unmarshal([]byte(ns.String), &languages); err != nil {
		return nil
	}
	return languages
}
