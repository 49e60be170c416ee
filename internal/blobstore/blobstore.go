// Package blobstore provides content-addressed blob persistence. A blob is
// identified by the lowercase hex SHA-256 of its bytes and is physically
// stored at most once per hash regardless of how many snapshots reference it.
package blobstore

import (
	"errors"
	"io"
)

// ErrNotFound indicates no blob exists for the requested hash.
var ErrNotFound = errors.New("blobstore: blob not found")

// Store is the pluggable blob persistence backend.
type Store interface {
	// Put writes the blob for hash and returns its storage path. Storing the
	// same hash twice is a no-op: content-addressing guarantees identical bytes.
	Put(hash string, r io.Reader) (string, error)

	// Get returns the blob bytes, or ErrNotFound.
	Get(hash string) ([]byte, error)

	// Delete removes the blob, or returns ErrNotFound.
	Delete(hash string) error

	// Locate returns the storage path a blob for hash would occupy, whether or
	// not it currently exists.
	Locate(hash string) string

	// Exists reports whether a blob for hash is present.
	Exists(hash string) bool
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
