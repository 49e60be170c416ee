package database

import "time"

// SnapshotRecord represents a row in the snapshots table. A snapshot captures
// one immutable state of a repository's working tree; CommitSHA, Branch, and
// ParentSnapshotID are optional (empty string / zero means unset).
type SnapshotRecord struct {
	ID               int64
	Repository       string
	CommitSHA        string
	Branch           string
	ManifestHash     string
	FileCount        int64
	ChangedFileCount int64
	Languages        map[string]int64
	ParentSnapshotID int64
	CreatedAt        time.Time
}

// FileEntryRecord represents a row in the file_entries table. Each entry maps
// one path of a snapshot to a content hash. IsStored marks the entry that
// canonically owns the blob for its hash; entries with IsStored=false resolve
// their content through whichever entry owns the hash at read time.
type FileEntryRecord struct {
	ID          int64
	SnapshotID  int64
	FilePath    string
	FileHash    string
	FileSize    int64
	Language    string
	IsStored    bool
	StoragePath string
}
