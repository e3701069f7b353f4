package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_NoResults_ValidEmpty(t *testing.T) {
	t.Parallel()

	combined := Merge(nil)

	assert.NotNil(t, combined.Nodes)
	assert.NotNil(t, combined.Edges)
	assert.NotNil(t, combined.Patterns)
	assert.Zero(t, combined.TotalNodes)
	assert.Zero(t, combined.TotalEdges)
	assert.Zero(t, combined.TotalPatterns)
	assert.Empty(t, combined.Conflicts)
	assert.Empty(t, combined.Errors)
}

func TestMerge_NodeCollision_LastWriterWinsWithConflict(t *testing.T) {
	t.Parallel()

	first := AnalysisResult{
		ChunkID: "chunk-a",
		Nodes: []GraphNode{{
			ID:         "f:foo",
			Type:       "function",
			Name:       "foo",
			Properties: map[string]any{"lines": 10, "exported": true},
		}},
	}
	second := AnalysisResult{
		ChunkID: "chunk-b",
		Nodes: []GraphNode{{
			ID:         "f:foo",
			Type:       "function",
			Name:       "foo",
			Properties: map[string]any{"lines": 12, "async": true},
		}},
	}

	combined := Merge([]AnalysisResult{first, second})

	require.Equal(t, 1, combined.TotalNodes)

	node := combined.Nodes["f:foo"]
	assert.Equal(t, 12, node.Properties["lines"], "later writer wins on collision")
	assert.Equal(t, true, node.Properties["exported"], "non-colliding keys union")
	assert.Equal(t, true, node.Properties["async"])

	require.Len(t, combined.Conflicts, 1)

	conflict := combined.Conflicts[0]
	assert.Equal(t, ConflictNode, conflict.Kind)
	assert.Equal(t, "f:foo", conflict.EntityID)
	assert.Equal(t, []string{"chunk-a", "chunk-b"}, conflict.ConflictingChunks)
	assert.Equal(t, "last-writer-wins", conflict.Resolution)
}

func TestMerge_EdgeCollision_RecordsConflict(t *testing.T) {
	t.Parallel()

	edge := GraphEdge{Source: "a.ts", Target: "b.ts", Type: "imports"}

	first := AnalysisResult{
		ChunkID: "chunk-a",
		Edges:   []GraphEdge{{Source: "a.ts", Target: "b.ts", Type: "imports", Properties: map[string]any{"weight": 1}}},
	}
	second := AnalysisResult{
		ChunkID: "chunk-b",
		Edges:   []GraphEdge{{Source: "a.ts", Target: "b.ts", Type: "imports", Properties: map[string]any{"weight": 3}}},
	}

	combined := Merge([]AnalysisResult{first, second})

	require.Equal(t, 1, combined.TotalEdges)
	assert.Equal(t, 3, combined.Edges[edge.Key()].Properties["weight"])

	require.Len(t, combined.Conflicts, 1)
	assert.Equal(t, ConflictEdge, combined.Conflicts[0].Kind)
	assert.Equal(t, "a.ts->b.ts:imports", combined.Conflicts[0].EntityID)
}

func TestMerge_PatternCollision_MaxConfidenceNoConflict(t *testing.T) {
	t.Parallel()

	first := AnalysisResult{
		ChunkID: "chunk-a",
		Patterns: []Pattern{{
			Type: "entrypoint", Name: "main", File: "main.go",
			Confidence: 0.9,
			Properties: map[string]any{"detector": "name"},
		}},
	}
	second := AnalysisResult{
		ChunkID: "chunk-b",
		Patterns: []Pattern{{
			Type: "entrypoint", Name: "main", File: "main.go",
			Confidence: 0.4,
			Properties: map[string]any{"corroborated": true},
		}},
	}

	combined := Merge([]AnalysisResult{first, second})

	require.Equal(t, 1, combined.TotalPatterns)

	merged := combined.Patterns[PatternKey{Type: "entrypoint", Name: "main", File: "main.go"}]
	assert.InDelta(t, 0.9, merged.Confidence, 1e-9, "higher confidence survives either order")
	assert.Equal(t, "name", merged.Properties["detector"])
	assert.Equal(t, true, merged.Properties["corroborated"])

	assert.Empty(t, combined.Conflicts, "pattern collisions are deliberately not recorded")
}

func TestMerge_IdentitySetsAreOrderInvariant(t *testing.T) {
	t.Parallel()

	a := AnalysisResult{
		ChunkID:  "chunk-a",
		Nodes:    []GraphNode{{ID: "n1"}, {ID: "shared"}},
		Edges:    []GraphEdge{{Source: "n1", Target: "shared", Type: "uses"}},
		Patterns: []Pattern{{Type: "t", Name: "p", File: "f", Confidence: 0.5}},
	}
	b := AnalysisResult{
		ChunkID:  "chunk-b",
		Nodes:    []GraphNode{{ID: "n2"}, {ID: "shared"}},
		Edges:    []GraphEdge{{Source: "n2", Target: "shared", Type: "uses"}},
		Patterns: []Pattern{{Type: "t", Name: "p", File: "f", Confidence: 0.8}},
	}

	ab := Merge([]AnalysisResult{a, b})
	ba := Merge([]AnalysisResult{b, a})

	nodeIDs := func(c CombinedResult) []string {
		ids := make([]string, 0, len(c.Nodes))
		for id := range c.Nodes {
			ids = append(ids, id)
		}

		return ids
	}

	assert.ElementsMatch(t, nodeIDs(ab), nodeIDs(ba))
	assert.Equal(t, ab.TotalNodes, ba.TotalNodes)
	assert.Equal(t, ab.TotalEdges, ba.TotalEdges)
	assert.Equal(t, ab.TotalPatterns, ba.TotalPatterns)

	// Confidence resolution is symmetric even though property overrides
	// are not.
	key := PatternKey{Type: "t", Name: "p", File: "f"}
	assert.InDelta(t, ab.Patterns[key].Confidence, ba.Patterns[key].Confidence, 1e-9)
}

func TestMerge_ConflictedPropertyValues_AreOrderDependent(t *testing.T) {
	t.Parallel()

	// Last-writer-wins makes resolved values depend on result order, by
	// design.
	a := AnalysisResult{
		ChunkID: "chunk-a",
		Nodes:   []GraphNode{{ID: "shared", Properties: map[string]any{"owner": "a"}}},
	}
	b := AnalysisResult{
		ChunkID: "chunk-b",
		Nodes:   []GraphNode{{ID: "shared", Properties: map[string]any{"owner": "b"}}},
	}

	ab := Merge([]AnalysisResult{a, b})
	ba := Merge([]AnalysisResult{b, a})

	assert.Equal(t, "b", ab.Nodes["shared"].Properties["owner"])
	assert.Equal(t, "a", ba.Nodes["shared"].Properties["owner"])
}

func TestMerge_SameChunkDuplicate_NoConflictRecord(t *testing.T) {
	t.Parallel()

	res := AnalysisResult{
		ChunkID: "chunk-a",
		Nodes: []GraphNode{
			{ID: "n", Properties: map[string]any{"first": true}},
			{ID: "n", Properties: map[string]any{"second": true}},
		},
	}

	combined := Merge([]AnalysisResult{res})

	assert.Equal(t, 1, combined.TotalNodes)
	assert.Empty(t, combined.Conflicts, "conflicts are a cross-chunk notion")
	assert.Equal(t, true, combined.Nodes["n"].Properties["first"])
	assert.Equal(t, true, combined.Nodes["n"].Properties["second"])
}

func TestMerge_ErrorsConcatenateWithoutDedup(t *testing.T) {
	t.Parallel()

	dup := AnalysisError{File: "x.go", Message: "unreadable"}

	combined := Merge([]AnalysisResult{
		{ChunkID: "chunk-a", Errors: []AnalysisError{dup}},
		{ChunkID: "chunk-b", Errors: []AnalysisError{dup, {File: "y.go", Message: "binary"}}},
	})

	require.Len(t, combined.Errors, 3)
	assert.Equal(t, dup, combined.Errors[0])
	assert.Equal(t, dup, combined.Errors[1])
}

func TestMerge_ProcessingTimeSums(t *testing.T) {
	t.Parallel()

	combined := Merge([]AnalysisResult{
		{ChunkID: "chunk-a", ProcessingTime: 120 * time.Millisecond},
		{ChunkID: "chunk-b", ProcessingTime: 80 * time.Millisecond},
	})

	assert.Equal(t, 200*time.Millisecond, combined.ProcessingTime)
}

func TestMerge_ThreeWayCollision_ConflictPerCollision(t *testing.T) {
	t.Parallel()

	mk := func(chunk, owner string) AnalysisResult {
		return AnalysisResult{
			ChunkID: chunk,
			Nodes:   []GraphNode{{ID: "shared", Properties: map[string]any{"owner": owner}}},
		}
	}

	combined := Merge([]AnalysisResult{mk("chunk-a", "a"), mk("chunk-b", "b"), mk("chunk-c", "c")})

	assert.Equal(t, 1, combined.TotalNodes)
	assert.Equal(t, "c", combined.Nodes["shared"].Properties["owner"])

	require.Len(t, combined.Conflicts, 2)
	assert.Equal(t, []string{"chunk-a", "chunk-b"}, combined.Conflicts[0].ConflictingChunks)
	assert.Equal(t, []string{"chunk-b", "chunk-c"}, combined.Conflicts[1].ConflictingChunks)
}
