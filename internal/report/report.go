// Package report turns a finished analysis run into something a human
// or a pipeline can consume: go-pretty tables on the terminal, JSON or
// YAML exports through the persist codecs, and an optional go-echarts
// HTML page.
package report

import (
	"slices"
	"strings"
	"time"

	"github.com/codescout-dev/codescout/pkg/engine"
)

// Document is the exportable record of one analysis run. Slices are
// sorted so identical runs export byte-identical documents.
type Document struct {
	Root        string    `json:"root" yaml:"root"`
	GeneratedAt time.Time `json:"generatedAt" yaml:"generatedAt"`

	Summary Summary       `json:"summary" yaml:"summary"`
	Chunks  []ChunkReport `json:"chunks" yaml:"chunks"`

	Nodes     []engine.GraphNode     `json:"nodes" yaml:"nodes"`
	Edges     []engine.GraphEdge     `json:"edges" yaml:"edges"`
	Patterns  []engine.Pattern       `json:"patterns" yaml:"patterns"`
	Conflicts []engine.MergeConflict `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`
	Errors    []engine.AnalysisError `json:"errors,omitempty" yaml:"errors,omitempty"`
	Failures  []Failure              `json:"failures,omitempty" yaml:"failures,omitempty"`

	Performance Performance `json:"performance" yaml:"performance"`
}

// Summary carries the headline counts.
type Summary struct {
	Files     int `json:"files" yaml:"files"`
	Chunks    int `json:"chunks" yaml:"chunks"`
	Nodes     int `json:"nodes" yaml:"nodes"`
	Edges     int `json:"edges" yaml:"edges"`
	Patterns  int `json:"patterns" yaml:"patterns"`
	Conflicts int `json:"conflicts" yaml:"conflicts"`
	Errors    int `json:"errors" yaml:"errors"`
	Failures  int `json:"failures" yaml:"failures"`
}

// ChunkReport describes one planned chunk and, when it completed, its
// processing time.
type ChunkReport struct {
	ID         string        `json:"id" yaml:"id"`
	Priority   string        `json:"priority" yaml:"priority"`
	Files      int           `json:"files" yaml:"files"`
	Complexity float64       `json:"complexity" yaml:"complexity"`
	SizeBytes  int64         `json:"sizeBytes" yaml:"sizeBytes"`
	Duration   time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// Failure describes a chunk that exhausted its retries.
type Failure struct {
	ChunkID  string `json:"chunkId" yaml:"chunkId"`
	Files    int    `json:"files" yaml:"files"`
	Attempts int    `json:"attempts" yaml:"attempts"`
	Error    string `json:"error" yaml:"error"`
}

// Performance mirrors the tracker's run-level figures.
type Performance struct {
	TotalChunks        int           `json:"totalChunks" yaml:"totalChunks"`
	CompletedChunks    int           `json:"completedChunks" yaml:"completedChunks"`
	WallClock          time.Duration `json:"wallClock" yaml:"wallClock"`
	AverageChunkTime   time.Duration `json:"averageChunkTime" yaml:"averageChunkTime"`
	ParallelEfficiency float64       `json:"parallelEfficiency" yaml:"parallelEfficiency"`
	PeakHeapBytes      uint64        `json:"peakHeapBytes" yaml:"peakHeapBytes"`
}

// BuildInput bundles everything a run produced. Durations maps chunk
// IDs to processing times, collected from completion events.
type BuildInput struct {
	Root      string
	Files     int
	Chunks    []engine.Chunk
	Combined  engine.CombinedResult
	Perf      engine.PerformanceReport
	Failures  []engine.FailedChunk
	Durations map[string]time.Duration
}

// Build assembles the document for one run.
func Build(in BuildInput) *Document {
	doc := &Document{
		Root:        in.Root,
		GeneratedAt: time.Now().UTC(),
		Nodes:       sortedNodes(in.Combined.Nodes),
		Edges:       sortedEdges(in.Combined.Edges),
		Patterns:    sortedPatterns(in.Combined.Patterns),
		Conflicts:   in.Combined.Conflicts,
		Errors:      in.Combined.Errors,
		Performance: Performance{
			TotalChunks:        in.Perf.TotalChunks,
			CompletedChunks:    in.Perf.CompletedChunks,
			WallClock:          in.Perf.WallClock,
			AverageChunkTime:   in.Perf.AverageChunkTime,
			ParallelEfficiency: in.Perf.ParallelEfficiency,
			PeakHeapBytes:      in.Perf.PeakHeapBytes,
		},
	}

	for _, c := range in.Chunks {
		doc.Chunks = append(doc.Chunks, ChunkReport{
			ID:         c.ID,
			Priority:   c.Priority.String(),
			Files:      len(c.Files),
			Complexity: c.EstimatedComplexity,
			SizeBytes:  c.TotalSize,
			Duration:   in.Durations[c.ID],
		})
	}

	for _, f := range in.Failures {
		failure := Failure{
			ChunkID:  f.Chunk.ID,
			Files:    len(f.Chunk.Files),
			Attempts: f.Attempts,
		}
		if f.LastErr != nil {
			failure.Error = f.LastErr.Error()
		}

		doc.Failures = append(doc.Failures, failure)
	}

	doc.Summary = Summary{
		Files:     in.Files,
		Chunks:    len(in.Chunks),
		Nodes:     in.Combined.TotalNodes,
		Edges:     in.Combined.TotalEdges,
		Patterns:  in.Combined.TotalPatterns,
		Conflicts: len(in.Combined.Conflicts),
		Errors:    len(in.Combined.Errors),
		Failures:  len(in.Failures),
	}

	return doc
}

func sortedNodes(nodes map[string]engine.GraphNode) []engine.GraphNode {
	out := make([]engine.GraphNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n)
	}

	slices.SortFunc(out, func(a, b engine.GraphNode) int {
		return strings.Compare(a.ID, b.ID)
	})

	return out
}

func sortedEdges(edges map[engine.EdgeKey]engine.GraphEdge) []engine.GraphEdge {
	out := make([]engine.GraphEdge, 0, len(edges))
	for _, e := range edges {
		out = append(out, e)
	}

	slices.SortFunc(out, func(a, b engine.GraphEdge) int {
		return strings.Compare(a.Key().String(), b.Key().String())
	})

	return out
}

func sortedPatterns(patterns map[engine.PatternKey]engine.Pattern) []engine.Pattern {
	out := make([]engine.Pattern, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, p)
	}

	slices.SortFunc(out, func(a, b engine.Pattern) int {
		return strings.Compare(a.Key().String(), b.Key().String())
	})

	return out
}
