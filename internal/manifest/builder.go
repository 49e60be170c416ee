package manifest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	ignore "github.com/sabhiram/go-gitignore"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// BuildOptions controls a manifest build.
type BuildOptions struct {
	// ExcludePatterns use gitignore syntax. A pattern that names a directory
	// (exactly or as a path prefix) prunes the whole subtree.
	ExcludePatterns []string

	// MaxFileSize skips files larger than this many bytes. 0 means no limit.
	MaxFileSize int64

	// Concurrency bounds the parallel hashing workers. 0 means NumCPU.
	Concurrency int

	// Logger receives skip events. Nil uses the standard logger.
	Logger *logrus.Logger
}

// Build walks root and produces a Manifest. Excluded, oversize, and unreadable
// files are skipped and logged; only a missing root is fatal. File hashing runs
// in parallel and the manifest is assembled once every file task has finished.
func Build(ctx context.Context, root string, opts BuildOptions) (Manifest, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("manifest: root path %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("manifest: root path %s is not a directory", root)
	}

	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	var matcher *ignore.GitIgnore
	if len(opts.ExcludePatterns) > 0 {
		matcher = ignore.CompileIgnoreLines(opts.ExcludePatterns...)
	}

	var candidates []candidateFile

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			log.WithError(walkErr).WithField("path", path).Debug("skipping unreadable path")
			return nil
		}

		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if excluded(rel, true, opts.ExcludePatterns, matcher) {
				log.WithField("path", rel).Debug("pruning excluded directory")
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks are not captured; following them risks walking outside root.
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		if excluded(rel, false, opts.ExcludePatterns, matcher) {
			log.WithField("path", rel).Debug("skipping excluded file")
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			log.WithError(err).WithField("path", rel).Debug("skipping unreadable file")
			return nil
		}

		if opts.MaxFileSize > 0 && fi.Size() > opts.MaxFileSize {
			log.WithFields(logrus.Fields{"path": rel, "size": fi.Size()}).Debug("skipping oversize file")
			return nil
		}

		candidates = append(candidates, candidateFile{abs: path, rel: rel, size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("manifest: walking %s: %w", root, err)
	}

	return hashFiles(ctx, candidates, opts.Concurrency, log)
}

type candidateFile struct {
	abs  string
	rel  string
	size int64
}

// hashFiles hashes every candidate in parallel and joins the results into a
// single manifest. All tasks complete (or the context is cancelled) before the
// manifest is returned.
func hashFiles(ctx context.Context, candidates []candidateFile, concurrency int, log *logrus.Logger) (Manifest, error) {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	result := make(Manifest, len(candidates))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, c := range candidates {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			hash, size, err := hashFile(c.abs)
			if err != nil {
				log.WithError(err).WithField("path", c.rel).Debug("skipping unreadable file")
				return nil
			}

			mu.Lock()
			result[c.rel] = FileEntry{
				Path:     c.rel,
				Hash:     hash,
				Size:     size,
				Language: DetectLanguage(c.rel),
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	return result, nil
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// HashBytes returns the lowercase hex SHA-256 of data, the same digest the
// builder computes for file contents.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// excluded applies both matching modes from the exclude contract: exact
// segment / path-prefix matches, and gitignore-style pattern matches.
func excluded(rel string, isDir bool, patterns []string, matcher *ignore.GitIgnore) bool {
	for _, p := range patterns {
		p = strings.TrimSuffix(p, "/")
		if p == "" || strings.ContainsAny(p, "*?[") {
			continue
		}
		if rel == p || strings.HasPrefix(rel, p+"/") {
			return true
		}
		// Exact segment match anywhere in the path.
		for _, seg := range strings.Split(rel, "/") {
			if seg == p {
				return true
			}
		}
	}

	if matcher == nil {
		return false
	}
	if isDir {
		return matcher.MatchesPath(rel + "/")
	}
	return matcher.MatchesPath(rel)
}
