package engine

import (
	"maps"
	"math"
)

// Merge folds per-chunk results into one CombinedResult, processing
// results in input order. It is a pure function of its input: no I/O, no
// engine state, deterministic for a given ordering.
//
// Nodes and edges merge last-writer-wins per property key, and every
// cross-chunk key collision is recorded as a MergeConflict. Patterns
// resolve asymmetrically: the higher confidence wins, properties union,
// and no conflict is recorded. The identity sets of the output are
// order-invariant; conflict-resolved property values are not.
//
// MemoryUsage is left zero here; the engine stamps it from the tracker's
// peak sample.
func Merge(results []AnalysisResult) CombinedResult {
	combined := CombinedResult{
		Nodes:    make(map[string]GraphNode),
		Edges:    make(map[EdgeKey]GraphEdge),
		Patterns: make(map[PatternKey]Pattern),
	}

	// Last writing chunk per key, for conflict records.
	nodeOwner := make(map[string]string)
	edgeOwner := make(map[EdgeKey]string)

	for _, res := range results {
		mergeNodes(&combined, nodeOwner, res)
		mergeEdges(&combined, edgeOwner, res)
		mergePatterns(&combined, res)

		combined.Errors = append(combined.Errors, res.Errors...)
		combined.ProcessingTime += res.ProcessingTime
	}

	combined.TotalNodes = len(combined.Nodes)
	combined.TotalEdges = len(combined.Edges)
	combined.TotalPatterns = len(combined.Patterns)

	return combined
}

func mergeNodes(combined *CombinedResult, owner map[string]string, res AnalysisResult) {
	for _, node := range res.Nodes {
		existing, ok := combined.Nodes[node.ID]
		if !ok {
			combined.Nodes[node.ID] = node
			owner[node.ID] = res.ChunkID

			continue
		}

		merged := node
		merged.Properties = unionProperties(existing.Properties, node.Properties)
		combined.Nodes[node.ID] = merged

		// Duplicates within one chunk resolve silently; a conflict is a
		// cross-chunk notion.
		if prev := owner[node.ID]; prev != res.ChunkID {
			combined.Conflicts = append(combined.Conflicts, MergeConflict{
				Kind:              ConflictNode,
				EntityID:          node.ID,
				ConflictingChunks: []string{prev, res.ChunkID},
				Resolution:        "last-writer-wins",
				Reason:            "node id produced by multiple chunks",
			})
		}

		owner[node.ID] = res.ChunkID
	}
}

func mergeEdges(combined *CombinedResult, owner map[EdgeKey]string, res AnalysisResult) {
	for _, edge := range res.Edges {
		key := edge.Key()

		existing, ok := combined.Edges[key]
		if !ok {
			combined.Edges[key] = edge
			owner[key] = res.ChunkID

			continue
		}

		merged := edge
		merged.Properties = unionProperties(existing.Properties, edge.Properties)
		combined.Edges[key] = merged

		if prev := owner[key]; prev != res.ChunkID {
			combined.Conflicts = append(combined.Conflicts, MergeConflict{
				Kind:              ConflictEdge,
				EntityID:          key.String(),
				ConflictingChunks: []string{prev, res.ChunkID},
				Resolution:        "last-writer-wins",
				Reason:            "edge key produced by multiple chunks",
			})
		}

		owner[key] = res.ChunkID
	}
}

// mergePatterns keeps the maximum confidence on collision and unions
// properties with incoming values overriding. Deliberately records no
// conflicts.
func mergePatterns(combined *CombinedResult, res AnalysisResult) {
	for _, pat := range res.Patterns {
		key := pat.Key()

		existing, ok := combined.Patterns[key]
		if !ok {
			combined.Patterns[key] = pat

			continue
		}

		merged := existing
		merged.Confidence = math.Max(existing.Confidence, pat.Confidence)
		merged.Properties = unionProperties(existing.Properties, pat.Properties)
		combined.Patterns[key] = merged
	}
}

// unionProperties merges two property maps with incoming values
// overriding on key collision. Neither input is mutated.
func unionProperties(existing, incoming map[string]any) map[string]any {
	if existing == nil && incoming == nil {
		return nil
	}

	merged := make(map[string]any, len(existing)+len(incoming))
	maps.Copy(merged, existing)
	maps.Copy(merged, incoming)

	return merged
}
