// Package config resolves storage locations and snapshot policy for treesnap.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
)

// DefaultMaxFileSize is the cutoff above which files are excluded from
// snapshot manifests unless overridden via TREESNAP_MAX_FILE_SIZE.
const DefaultMaxFileSize int64 = 1 << 20

// GetDataDir resolves the base directory for all treesnap storage. It checks
// TREESNAP_DIR first, then XDG paths, and finally falls back to the user's
// home directory.
func GetDataDir() string {
	if explicit := os.Getenv("TREESNAP_DIR"); explicit != "" {
		return explicit
	}

	xdg.Reload()

	dataHome := xdg.DataHome
	if dataHome == "" {
		home := xdg.Home
		if home == "" {
			var err error
			home, err = os.UserHomeDir()
			if err != nil {
				return filepath.Join(os.TempDir(), "treesnap")
			}
		}
		dataHome = filepath.Join(home, ".local", "share")
	}

	return filepath.Join(dataHome, "treesnap")
}

// GetDBPath returns the absolute path to the SQLite database file.
func GetDBPath() string {
	return filepath.Join(GetDataDir(), "index.db")
}

// GetBlobsDir returns the directory that stores content-addressed blobs.
func GetBlobsDir() string {
	return filepath.Join(GetDataDir(), "blobs")
}

// DefaultExcludePatterns lists directories and files that are never captured
// into a snapshot manifest.
func DefaultExcludePatterns() []string {
	return []string{
		".git",
		".hg",
		".svn",
		"node_modules",
		"__pycache__",
		".venv",
		"venv",
		".tox",
		".mypy_cache",
		".pytest_cache",
		"dist",
		"build",
		"target",
		".idea",
		".vscode",
		"*.min.js",
		"*.lock",
	}
}

// GetExcludePatterns returns the active exclude patterns. TREESNAP_EXCLUDE
// holds a comma-separated list that replaces the defaults when set.
func GetExcludePatterns() []string {
	raw := os.Getenv("TREESNAP_EXCLUDE")
	if raw == "" {
		return DefaultExcludePatterns()
	}

	parts := strings.Split(raw, ",")
	patterns := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			patterns = append(patterns, p)
		}
	}
	if len(patterns) == 0 {
		return DefaultExcludePatterns()
	}
	return patterns
}

// GetMaxFileSize returns the manifest file-size cutoff in bytes.
func GetMaxFileSize() int64 {
	raw := os.Getenv("TREESNAP_MAX_FILE_SIZE")
	if raw == "" {
		return DefaultMaxFileSize
	}
	size, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || size <= 0 {
		return DefaultMaxFileSize
	}
	return size
}
