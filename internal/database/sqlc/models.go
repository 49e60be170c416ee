package sqldb

import "database/sql"

// Snapshot mirrors a row of the snapshots table.
type Snapshot struct {
	ID               int64
	Repository       string
	CommitSha        sql.NullString
	Branch           sql.NullString
	ManifestHash     string
	FileCount        int64
	ChangedFileCount int64
	Languages        sql.NullString
	ParentSnapshotID sql.NullInt64
	CreatedAt        sql.NullTime
}

// FileEntry mirrors a row of the file_entries table.
type FileEntry struct {
	ID          int64
	SnapshotID  int64
	FilePath    string
	FileHash    string
	FileSize    int64
	Language    sql.NullString
	IsStored    sql.NullInt64
	StoragePath sql.NullString
}
