// Package manifest captures the state of a working tree as a map of relative
// file path to content hash, size, and detected language. Two trees with
// identical entries hash to the same manifest hash no matter where or when
// they were walked.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// FileEntry describes a single file in a manifest.
type FileEntry struct {
	Path     string
	Hash     string
	Size     int64
	Language string
}

// Manifest maps slash-separated relative paths to file entries. Ordering is
// irrelevant; identity is defined by the set of (path, hash, size) triples.
type Manifest map[string]FileEntry

// Paths returns the manifest's paths in sorted order.
func (m Manifest) Paths() []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Hash computes the canonical hash of the manifest: SHA-256 over the
// path-sorted (path, hash, size) triples. Language is advisory metadata and
// does not participate in identity.
func (m Manifest) Hash() string {
	h := sha256.New()
	for _, p := range m.Paths() {
		e := m[p]
		fmt.Fprintf(h, "%s\x00%s\x00%d\n", p, e.Hash, e.Size)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Languages counts files per detected language. Files with no detected
// language are omitted.
func (m Manifest) Languages() map[string]int64 {
	counts := make(map[string]int64)
	for _, e := range m {
		if e.Language != "" {
			counts[e.Language]++
		}
	}
	if len(counts) == 0 {
		return nil
	}
	return counts
}

// Equal reports whether two manifests describe the same codebase state.
func (m Manifest) Equal(other Manifest) bool {
	if len(m) != len(other) {
		return false
	}
	for p, e := range m {
		o, ok := other[p]
		if !ok || o.Hash != e.Hash || o.Size != e.Size {
			return false
		}
	}
	return true
}
