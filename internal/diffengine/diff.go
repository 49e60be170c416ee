// Package diffengine compares two snapshot manifests and produces file-level
// and symbol-level change sets, line-level unified diffs, language statistics,
// and a heuristic risk assessment.
package diffengine

import (
	"sort"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"

	"github.com/treesnap/treesnap/internal/manifest"
)

// ContentReader resolves a path to its content on one side of a comparison.
// ok=false means the content is not retrievable; the diff for that path is
// skipped without failing the comparison.
type ContentReader func(path string) (data []byte, ok bool)

// Options configures a comparison.
type Options struct {
	// ReadA / ReadB resolve file contents for modified paths. When either is
	// nil, no line-level diffs are generated.
	ReadA ContentReader
	ReadB ContentReader

	// SymbolsA / SymbolsB are optional consumer-supplied symbol metrics. When
	// both are non-nil a symbol-level change set and complexity delta are
	// produced.
	SymbolsA []SymbolMetric
	SymbolsB []SymbolMetric
}

// SymbolMetric is an opaque function/class record keyed by qualified name.
type SymbolMetric struct {
	Name          string
	QualifiedName string
	Kind          string
	FilePath      string
	ContentHash   string
	Complexity    int
}

// FileDiff is the line-level diff of one modified file.
type FileDiff struct {
	Path         string
	LinesAdded   int
	LinesRemoved int
	Patch        string
}

// LanguageDelta describes the change in file count for one language.
type LanguageDelta struct {
	Before        int64
	After         int64
	Diff          int64
	PercentChange float64
}

// SymbolChanges holds symbol-level added/removed/modified qualified names.
type SymbolChanges struct {
	Added    []string
	Removed  []string
	Modified []string
}

// Result is the outcome of comparing snapshot A against snapshot B.
type Result struct {
	Added     []string
	Removed   []string
	Modified  []string
	Unchanged []string

	FileDiffs    []FileDiff
	LinesAdded   int
	LinesRemoved int
	CodeChurn    int

	Languages map[string]LanguageDelta

	Symbols *SymbolChanges

	Risk Assessment
}

// Compare diffs manifest a (before) against manifest b (after).
func Compare(a, b manifest.Manifest, opts Options) Result {
	var result Result

	for path, ea := range a {
		eb, ok := b[path]
		switch {
		case !ok:
			result.Removed = append(result.Removed, path)
		case ea.Hash != eb.Hash:
			result.Modified = append(result.Modified, path)
		default:
			result.Unchanged = append(result.Unchanged, path)
		}
	}
	for path := range b {
		if _, ok := a[path]; !ok {
			result.Added = append(result.Added, path)
		}
	}

	sort.Strings(result.Added)
	sort.Strings(result.Removed)
	sort.Strings(result.Modified)
	sort.Strings(result.Unchanged)

	if opts.ReadA != nil && opts.ReadB != nil {
		result.FileDiffs = diffModified(result.Modified, opts.ReadA, opts.ReadB)
		for _, fd := range result.FileDiffs {
			result.LinesAdded += fd.LinesAdded
			result.LinesRemoved += fd.LinesRemoved
		}
		result.CodeChurn = result.LinesAdded + result.LinesRemoved
	}

	result.Languages = languageDeltas(a.Languages(), b.Languages())

	var complexityDelta int
	if opts.SymbolsA != nil || opts.SymbolsB != nil {
		symbols, delta := diffSymbols(opts.SymbolsA, opts.SymbolsB)
		result.Symbols = symbols
		complexityDelta = delta
	}

	result.Risk = assessRisk(riskInputs{
		addedFiles:      len(result.Added),
		removedFiles:    len(result.Removed),
		modifiedFiles:   len(result.Modified),
		symbols:         result.Symbols,
		complexityDelta: complexityDelta,
	})

	return result
}

// diffModified generates a zero-context unified diff per modified path whose
// content resolves on both sides.
func diffModified(modified []string, readA, readB ContentReader) []FileDiff {
	diffs := make([]FileDiff, 0, len(modified))
	for _, path := range modified {
		before, okA := readA(path)
		after, okB := readB(path)
		if !okA || !okB {
			continue
		}

		patch, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        splitLines(string(before)),
			B:        splitLines(string(after)),
			FromFile: "a/" + path,
			ToFile:   "b/" + path,
			Context:  0,
		})
		if err != nil || patch == "" {
			continue
		}

		added, removed := countPatchLines(patch)
		diffs = append(diffs, FileDiff{
			Path:         path,
			LinesAdded:   added,
			LinesRemoved: removed,
			Patch:        patch,
		})
	}
	return diffs
}

// countPatchLines counts +/- lines of a unified patch. Exactly the first two
// lines are the ---/+++ file headers; content lines may themselves start with
// ++ or --, so headers are skipped by position, not prefix.
func countPatchLines(patch string) (added, removed int) {
	for i, line := range strings.Split(patch, "\n") {
		if i < 2 {
			continue
		}
		switch {
		case strings.HasPrefix(line, "+"):
			added++
		case strings.HasPrefix(line, "-"):
			removed++
		}
	}
	return added, removed
}

func languageDeltas(before, after map[string]int64) map[string]LanguageDelta {
	langs := make(map[string]struct{}, len(before)+len(after))
	for l := range before {
		langs[l] = struct{}{}
	}
	for l := range after {
		langs[l] = struct{}{}
	}

	deltas := make(map[string]LanguageDelta)
	for l := range langs {
		b := before[l]
		a := after[l]
		if b == a {
			continue
		}
		delta := LanguageDelta{Before: b, After: a, Diff: a - b}
		if b > 0 {
			delta.PercentChange = float64(a-b) / float64(b) * 100
		} else {
			delta.PercentChange = 100
		}
		deltas[l] = delta
	}
	if len(deltas) == 0 {
		return nil
	}
	return deltas
}

// diffSymbols applies the file change-set logic to symbols keyed by qualified
// name, and reports the total complexity delta (after minus before).
func diffSymbols(symbolsA, symbolsB []SymbolMetric) (*SymbolChanges, int) {
	byNameA := make(map[string]SymbolMetric, len(symbolsA))
	for _, s := range symbolsA {
		byNameA[s.QualifiedName] = s
	}
	byNameB := make(map[string]SymbolMetric, len(symbolsB))
	for _, s := range symbolsB {
		byNameB[s.QualifiedName] = s
	}

	changes := &SymbolChanges{}
	totalDelta := 0

	for name, sa := range byNameA {
		sb, ok := byNameB[name]
		switch {
		case !ok:
			changes.Removed = append(changes.Removed, name)
			totalDelta -= sa.Complexity
		case sa.ContentHash != sb.ContentHash:
			changes.Modified = append(changes.Modified, name)
			totalDelta += sb.Complexity - sa.Complexity
		}
	}
	for name, sb := range byNameB {
		if _, ok := byNameA[name]; !ok {
			changes.Added = append(changes.Added, name)
			totalDelta += sb.Complexity
		}
	}

	sort.Strings(changes.Added)
	sort.Strings(changes.Removed)
	sort.Strings(changes.Modified)

	return changes, totalDelta
}

// splitLines keeps newline characters so difflib produces clean hunks.
func splitLines(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.SplitAfter(s, "\n")
}
