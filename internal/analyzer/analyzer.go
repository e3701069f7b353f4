// Package analyzer implements the default chunk analysis capability:
// regex-driven symbol extraction, relative-import edges, pattern
// detection and language tagging. It never parses code for real; the
// graph it produces is a heuristic sketch meant to stay cheap on large
// repositories.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/src-d/enry/v2"

	"github.com/codescout-dev/codescout/pkg/engine"
)

// Analyzer produces chunk results for files under a repository root.
// It holds no per-run state and is safe for concurrent calls.
type Analyzer struct {
	root   string
	logger *slog.Logger
}

// New returns an analyzer rooted at root. A nil logger falls back to
// slog.Default().
func New(root string, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Analyzer{
		root:   root,
		logger: logger.With(slog.String("component", "analyzer")),
	}
}

// AnalyzeChunk satisfies engine.AnalyzeChunk. Unreadable files become
// AnalysisError entries, never chunk failures.
func (a *Analyzer) AnalyzeChunk(ctx context.Context, chunk engine.Chunk) (engine.AnalysisResult, error) {
	start := time.Now()

	res := engine.AnalysisResult{
		ChunkID: chunk.ID,
		Metrics: engine.ChunkMetrics{Languages: make(map[string]int)},
	}

	for _, file := range chunk.Files {
		if ctx.Err() != nil {
			return engine.AnalysisResult{}, ctx.Err()
		}

		data, err := os.ReadFile(a.abs(file))
		if err != nil {
			res.Errors = append(res.Errors, engine.AnalysisError{
				File:    file,
				Message: fmt.Sprintf("read file: %v", err),
			})

			continue
		}

		a.analyzeFile(&res, file, data)
	}

	res.ProcessingTime = time.Since(start)

	a.logger.Debug("chunk analyzed",
		slog.String("chunk", chunk.ID),
		slog.Int("files", res.Metrics.FilesProcessed),
		slog.Int("nodes", len(res.Nodes)),
		slog.Int("edges", len(res.Edges)),
		slog.Int("patterns", len(res.Patterns)),
		slog.Duration("took", res.ProcessingTime))

	return res, nil
}

func (a *Analyzer) analyzeFile(res *engine.AnalysisResult, file string, data []byte) {
	lines := strings.Split(string(data), "\n")

	lineCount := len(lines)
	if lineCount > 0 && lines[lineCount-1] == "" {
		lineCount--
	}

	res.Metrics.FilesProcessed++
	res.Metrics.LinesProcessed += lineCount
	res.Metrics.BytesProcessed += int64(len(data))

	lang := enry.GetLanguage(path.Base(file), data)
	if lang != "" {
		res.Metrics.Languages[lang]++
	}

	fileID := fileNodeID(file)

	props := map[string]any{
		"lines": lineCount,
		"bytes": len(data),
	}
	if lang != "" {
		props["language"] = lang
	}

	res.Nodes = append(res.Nodes, engine.GraphNode{
		ID:         fileID,
		Type:       "file",
		Name:       path.Base(file),
		Properties: props,
	})

	seen := make(map[string]struct{})

	for _, sym := range extractSymbols(lines) {
		id := symbolNodeID(file, sym.name)
		if _, dup := seen[id]; dup {
			continue
		}

		seen[id] = struct{}{}

		res.Nodes = append(res.Nodes, engine.GraphNode{
			ID:   id,
			Type: sym.kind,
			Name: sym.name,
			Properties: map[string]any{
				"file": file,
				"line": sym.line,
			},
		})

		res.Edges = append(res.Edges, engine.GraphEdge{
			Source: fileID,
			Target: id,
			Type:   "declares",
		})
	}

	for _, spec := range extractImports(lines) {
		target, ok := resolveRelative(file, spec, a.fileExists)
		if !ok {
			continue
		}

		key := engine.EdgeKey{Source: fileID, Target: fileNodeID(target), Type: "imports"}
		if _, dup := seen[key.String()]; dup {
			continue
		}

		seen[key.String()] = struct{}{}

		res.Edges = append(res.Edges, engine.GraphEdge{
			Source:     key.Source,
			Target:     key.Target,
			Type:       key.Type,
			Properties: map[string]any{"specifier": spec},
		})
	}

	res.Patterns = append(res.Patterns, detectPatterns(file, lines, lineCount)...)
}

// Lookup satisfies engine.DependencyLookup. Files whose imports resolve
// inside the set get those as dependencies; the rest keep the same-dir
// same-stem heuristic.
func (a *Analyzer) Lookup(files []string) map[string][]string {
	set := make(map[string]struct{}, len(files))
	for _, f := range files {
		set[f] = struct{}{}
	}

	inSet := func(p string) bool {
		_, ok := set[p]

		return ok
	}

	deps := engine.SameDirLookup(files)

	for _, file := range files {
		data, err := os.ReadFile(a.abs(file))
		if err != nil {
			continue
		}

		var resolved []string

		for _, spec := range extractImports(strings.Split(string(data), "\n")) {
			target, ok := resolveRelative(file, spec, inSet)
			if ok && target != file {
				resolved = append(resolved, target)
			}
		}

		if len(resolved) > 0 {
			deps[file] = dedupe(resolved)
		}
	}

	return deps
}

func (a *Analyzer) abs(file string) string {
	return filepath.Join(a.root, filepath.FromSlash(file))
}

func (a *Analyzer) fileExists(rel string) bool {
	info, err := os.Stat(a.abs(rel))

	return err == nil && info.Mode().IsRegular()
}

func fileNodeID(file string) string {
	return "file:" + file
}

func symbolNodeID(file, name string) string {
	return "sym:" + file + "#" + name
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]

	for _, s := range in {
		if _, dup := seen[s]; dup {
			continue
		}

		seen[s] = struct{}{}
		out = append(out, s)
	}

	return out
}
