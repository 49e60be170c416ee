package blobstore

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Filesystem stores blobs under <root>/aa/bb/<hash>, sharded by the first two
// hash byte pairs so no single directory grows unbounded.
type Filesystem struct {
	root string
}

// NewFilesystem creates a filesystem-backed store rooted at dir.
func NewFilesystem(dir string) *Filesystem {
	return &Filesystem{root: dir}
}

func (s *Filesystem) Put(hash string, r io.Reader) (string, error) {
	if !isHex(hash) || len(hash) < 6 {
		return "", errors.New("blobstore: invalid hash")
	}

	path := s.Locate(hash)

	// Fast path: identical bytes already on disk.
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", err
	}

	// Write into a temp file in the target directory, then rename, so readers
	// never observe a partially-written blob.
	f, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-")
	if err != nil {
		return "", err
	}
	tmp := f.Name()

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return path, nil
}

func (s *Filesystem) Get(hash string) ([]byte, error) {
	if !isHex(hash) || len(hash) < 6 {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(s.Locate(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *Filesystem) Delete(hash string) error {
	if !isHex(hash) || len(hash) < 6 {
		return ErrNotFound
	}
	err := os.Remove(s.Locate(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Filesystem) Locate(hash string) string {
	h := strings.ToLower(hash)
	if len(h) < 4 {
		return filepath.Join(s.root, h)
	}
	return filepath.Join(s.root, h[:2], h[2:4], h)
}

func (s *Filesystem) Exists(hash string) bool {
	if !isHex(hash) || len(hash) < 6 {
		return false
	}
	_, err := os.Stat(s.Locate(hash))
	return err == nil
}
