// Package scan discovers analyzable source files under a repository root.
// It walks the filesystem (or the git HEAD tree) and filters out binary,
// vendored, oversized and excluded entries before planning starts.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/src-d/enry/v2"
)

// sniffLen is how many leading bytes are read to classify a file as
// binary, matching git's own heuristic window.
const sniffLen = 8192

// Sentinel errors.
var (
	ErrRootMissing    = errors.New("scan root does not exist")
	ErrNotARepository = errors.New("scan root is not inside a git repository")
)

// Options control a repository scan.
type Options struct {
	// Root is the directory to scan.
	Root string

	// MaxFileSize in bytes. Zero means unlimited.
	MaxFileSize uint64

	// ExcludeDirs are directory base names pruned from the walk.
	ExcludeDirs []string

	// Extensions optionally restricts results to these extensions
	// (leading dot, case-insensitive). Empty means all.
	Extensions []string

	// GitOnly lists files from the git HEAD tree instead of walking.
	GitOnly bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Stats counts entries the scan left out, by reason. Filtered covers
// extension mismatches, hidden paths and excluded directory segments.
type Stats struct {
	Oversized int `json:"oversized"`
	Binary    int `json:"binary"`
	Vendored  int `json:"vendored"`
	Filtered  int `json:"filtered"`
}

// Result holds the discovered files, slash-separated and relative to
// Root, in deterministic lexical order.
type Result struct {
	Files []string `json:"files"`
	Stats Stats    `json:"stats"`
}

// Files discovers analyzable files under opts.Root.
func Files(ctx context.Context, opts Options) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With(slog.String("component", "scan"))

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return Result{}, fmt.Errorf("resolve scan root: %w", err)
	}

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return Result{}, fmt.Errorf("%w: %s", ErrRootMissing, opts.Root)
	}

	var candidates []string
	if opts.GitOnly {
		candidates, err = gitTreeFiles(root)
	} else {
		candidates, err = walkFiles(ctx, root, opts.ExcludeDirs)
	}

	if err != nil {
		return Result{}, err
	}

	filt := newFilter(opts)

	var res Result

	for _, rel := range candidates {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		keep, reason := filt.admit(root, rel)
		if keep {
			res.Files = append(res.Files, rel)

			continue
		}

		reason.count(&res.Stats)
	}

	slices.Sort(res.Files)

	logger.Debug("scan complete",
		slog.String("root", root),
		slog.Int("files", len(res.Files)),
		slog.Int("oversized", res.Stats.Oversized),
		slog.Int("binary", res.Stats.Binary),
		slog.Int("vendored", res.Stats.Vendored),
		slog.Int("filtered", res.Stats.Filtered))

	return res, nil
}

// walkFiles lists regular files below root, pruning excluded directories.
func walkFiles(ctx context.Context, root string, excludeDirs []string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Unreadable entries are skipped, not fatal.
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if d.IsDir() {
			if path != root && (hidden(d.Name()) || slices.Contains(excludeDirs, d.Name())) {
				return fs.SkipDir
			}

			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}

		files = append(files, filepath.ToSlash(rel))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	return files, nil
}

// skipReason tags why a candidate was dropped.
type skipReason int

const (
	skipNone skipReason = iota
	skipFiltered
	skipVendored
	skipOversized
	skipBinary
)

func (r skipReason) count(s *Stats) {
	switch r {
	case skipFiltered:
		s.Filtered++
	case skipVendored:
		s.Vendored++
	case skipOversized:
		s.Oversized++
	case skipBinary:
		s.Binary++
	case skipNone:
	}
}

// filter applies the per-file admission rules. The walker prunes
// excluded and hidden directories up front, so the segment checks here
// only matter for git-listed candidates.
type filter struct {
	maxSize uint64
	exclude []string
	exts    map[string]struct{}
}

func newFilter(opts Options) *filter {
	f := &filter{
		maxSize: opts.MaxFileSize,
		exclude: opts.ExcludeDirs,
	}

	if len(opts.Extensions) > 0 {
		f.exts = make(map[string]struct{}, len(opts.Extensions))
		for _, ext := range opts.Extensions {
			f.exts[strings.ToLower(ext)] = struct{}{}
		}
	}

	return f
}

func (f *filter) admit(root, rel string) (bool, skipReason) {
	for _, seg := range strings.Split(rel, "/") {
		if hidden(seg) || slices.Contains(f.exclude, seg) {
			return false, skipFiltered
		}
	}

	if f.exts != nil {
		ext := strings.ToLower(filepath.Ext(rel))
		if _, ok := f.exts[ext]; !ok {
			return false, skipFiltered
		}
	}

	if enry.IsVendor(rel) {
		return false, skipVendored
	}

	abs := filepath.Join(root, filepath.FromSlash(rel))

	info, err := os.Stat(abs)
	if err != nil {
		// Tracked but absent on disk (e.g. deleted, not yet committed).
		return false, skipFiltered
	}

	if f.maxSize > 0 && uint64(info.Size()) > f.maxSize {
		return false, skipOversized
	}

	if isBinary(abs) {
		return false, skipBinary
	}

	return true, skipNone
}

// hidden reports whether a base name is a dotfile.
func hidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// isBinary sniffs the leading bytes of the file at abs.
func isBinary(abs string) bool {
	file, err := os.Open(abs)
	if err != nil {
		return false
	}
	defer file.Close()

	buf := make([]byte, sniffLen)

	n, err := file.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return false
	}

	return enry.IsBinary(buf[:n])
}
