package engine

import (
	"context"
	"fmt"
	"time"
)

// Priority classifies how urgently a chunk should be scheduled.
// The numeric value doubles as the descending sort weight.
type Priority int

const (
	// PriorityLow is assigned to chunks with no high-signal files and low
	// estimated complexity.
	PriorityLow Priority = 1
	// PriorityMedium is assigned to chunks that match a medium-signal
	// pattern or exceed the medium complexity threshold.
	PriorityMedium Priority = 2
	// PriorityHigh is assigned to chunks that match a high-signal pattern
	// or exceed the high complexity threshold.
	PriorityHigh Priority = 3
)

// String returns the lowercase priority name.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Chunk is one schedulable unit of analysis work: a set of related files
// grouped by the planner.
type Chunk struct {
	// ID is unique within a single plan, of the form "chunk-N".
	ID string `json:"id"`
	// Files lists the paths this chunk covers. Every input file belongs
	// to exactly one chunk.
	Files []string `json:"files"`
	// Priority orders chunks for dispatch. Higher runs first.
	Priority Priority `json:"priority"`
	// EstimatedComplexity is the summed per-file complexity estimate.
	EstimatedComplexity float64 `json:"estimatedComplexity"`
	// Dependencies lists files outside the chunk that members depend on.
	Dependencies []string `json:"dependencies,omitempty"`
	// TotalSize is the summed byte size of member files that could be
	// measured.
	TotalSize int64 `json:"totalSize"`
}

// GraphNode is one entity discovered during analysis (a file, a symbol,
// a module). Nodes are identified by ID across chunks.
type GraphNode struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
}

// GraphEdge is a directed, typed relation between two nodes.
type GraphEdge struct {
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

// EdgeKey is the merge identity of an edge.
type EdgeKey struct {
	Source string
	Target string
	Type   string
}

// Key returns the edge's merge identity.
func (e GraphEdge) Key() EdgeKey {
	return EdgeKey{Source: e.Source, Target: e.Target, Type: e.Type}
}

// String renders the key for conflict records and logs.
func (k EdgeKey) String() string {
	return k.Source + "->" + k.Target + ":" + k.Type
}

// Pattern is a detected code pattern with a confidence score in [0,1].
type Pattern struct {
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	File       string         `json:"file"`
	Confidence float64        `json:"confidence"`
	Properties map[string]any `json:"properties,omitempty"`
}

// PatternKey is the merge identity of a pattern.
type PatternKey struct {
	Type string
	Name string
	File string
}

// Key returns the pattern's merge identity.
func (p Pattern) Key() PatternKey {
	return PatternKey{Type: p.Type, Name: p.Name, File: p.File}
}

// String renders the key for logs.
func (k PatternKey) String() string {
	return k.Type + "/" + k.Name + "@" + k.File
}

// ChunkMetrics carries per-chunk processing counters filled in by the
// analysis capability.
type ChunkMetrics struct {
	FilesProcessed int            `json:"filesProcessed"`
	LinesProcessed int            `json:"linesProcessed"`
	BytesProcessed int64          `json:"bytesProcessed"`
	Languages      map[string]int `json:"languages,omitempty"`
}

// AnalysisError records a non-fatal, file-scoped problem encountered
// while analyzing a chunk. Errors accumulate; they never abort a run.
type AnalysisError struct {
	File    string `json:"file"`
	Message string `json:"message"`
}

// AnalysisResult is the output of analyzing one chunk.
type AnalysisResult struct {
	ChunkID        string          `json:"chunkId"`
	Nodes          []GraphNode     `json:"nodes"`
	Edges          []GraphEdge     `json:"edges"`
	Patterns       []Pattern       `json:"patterns"`
	Metrics        ChunkMetrics    `json:"metrics"`
	Errors         []AnalysisError `json:"errors,omitempty"`
	ProcessingTime time.Duration   `json:"processingTime"`
}

// ConflictKind names the entity class a merge conflict occurred on.
type ConflictKind string

const (
	// ConflictNode marks a node-ID collision between chunks.
	ConflictNode ConflictKind = "node"
	// ConflictEdge marks an edge-key collision between chunks.
	ConflictEdge ConflictKind = "edge"
)

// MergeConflict records that two chunks produced the same entity and how
// the collision was resolved. Pattern collisions resolve by confidence
// and are not recorded.
type MergeConflict struct {
	Kind              ConflictKind `json:"kind"`
	EntityID          string       `json:"entityId"`
	ConflictingChunks []string     `json:"conflictingChunks"`
	Resolution        string       `json:"resolution"`
	Reason            string       `json:"reason"`
}

// CombinedResult is the merged output of a whole run: identity-keyed
// entities, accumulated errors and conflicts, and run-level totals.
type CombinedResult struct {
	Nodes    map[string]GraphNode
	Edges    map[EdgeKey]GraphEdge
	Patterns map[PatternKey]Pattern

	Conflicts []MergeConflict
	Errors    []AnalysisError

	// TotalNodes, TotalEdges and TotalPatterns are distinct-key counts.
	TotalNodes    int
	TotalEdges    int
	TotalPatterns int

	// ProcessingTime sums the per-chunk processing times of the merged
	// results. Wall-clock timing lives in PerformanceReport.
	ProcessingTime time.Duration

	// MemoryUsage is the peak heap sample observed by the tracker during
	// the run. It is stamped by the engine, not computed by Merge.
	MemoryUsage uint64
}

// FailedChunk describes a chunk that exhausted its retries.
type FailedChunk struct {
	Chunk    Chunk
	Attempts int
	LastErr  error
}

// AnalyzeChunk is the pluggable analysis capability invoked once per
// chunk attempt. Implementations must be safe for concurrent calls.
type AnalyzeChunk func(ctx context.Context, chunk Chunk) (AnalysisResult, error)

// DependencyLookup resolves, for the given file set, which other files
// each file depends on. Keys and values are file paths from the input
// set; unknown files map to nil.
type DependencyLookup func(files []string) map[string][]string
