package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/codescout-dev/codescout/pkg/engine"
)

// maxErrorLines caps the analysis-error listing on the terminal. The
// exported document always carries the full list.
const maxErrorLines = 10

// maxPatternRows caps the pattern table.
const maxPatternRows = 15

// Format renders the document as terminal text. Verbose lifts the
// pattern and error row caps.
func Format(doc *Document, verbose bool) string {
	parts := []string{
		fmt.Sprintf("Analysis of %s", doc.Root),
		summarySection(doc),
		chunkSection(doc),
	}

	if s := patternSection(doc, verbose); s != "" {
		parts = append(parts, s)
	}

	if s := conflictSection(doc); s != "" {
		parts = append(parts, s)
	}

	if s := failureSection(doc); s != "" {
		parts = append(parts, s)
	}

	if s := errorSection(doc, verbose); s != "" {
		parts = append(parts, s)
	}

	parts = append(parts, performanceSection(doc))

	return strings.Join(parts, "\n\n") + "\n"
}

// FormatPlan renders a chunk plan preview: the chunk table without
// analysis results or timings.
func FormatPlan(root string, files int, chunks []engine.Chunk) string {
	doc := Build(BuildInput{Root: root, Files: files, Chunks: chunks})

	var total int64
	for _, c := range chunks {
		total += c.TotalSize
	}

	parts := []string{
		fmt.Sprintf("Chunk plan for %s", root),
		fmt.Sprintf("%d files across %d chunks, %s total",
			files, len(chunks), humanize.Bytes(uint64(max(total, 0)))),
		chunkSection(doc),
	}

	return strings.Join(parts, "\n\n") + "\n"
}

func summarySection(doc *Document) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)

	tbl.AppendHeader(table.Row{"Files", "Chunks", "Nodes", "Edges", "Patterns", "Conflicts", "Errors", "Failures"})
	tbl.AppendRow(table.Row{
		doc.Summary.Files,
		doc.Summary.Chunks,
		doc.Summary.Nodes,
		doc.Summary.Edges,
		doc.Summary.Patterns,
		doc.Summary.Conflicts,
		doc.Summary.Errors,
		doc.Summary.Failures,
	})

	return tbl.Render()
}

func chunkSection(doc *Document) string {
	if len(doc.Chunks) == 0 {
		return "No chunks planned"
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)

	tbl.AppendHeader(table.Row{"Chunk", "Priority", "Files", "Complexity", "Size", "Time"})

	for _, c := range doc.Chunks {
		took := "-"
		if c.Duration > 0 {
			took = c.Duration.Round(time.Millisecond).String()
		}

		tbl.AppendRow(table.Row{
			c.ID,
			c.Priority,
			c.Files,
			fmt.Sprintf("%.1f", c.Complexity),
			humanize.Bytes(uint64(max(c.SizeBytes, 0))),
			took,
		})
	}

	return tbl.Render()
}

func patternSection(doc *Document, verbose bool) string {
	if len(doc.Patterns) == 0 {
		return ""
	}

	// Highest confidence first, then key order for stability.
	pats := make([]int, len(doc.Patterns))
	for i := range pats {
		pats[i] = i
	}

	sort.SliceStable(pats, func(i, j int) bool {
		return doc.Patterns[pats[i]].Confidence > doc.Patterns[pats[j]].Confidence
	})

	if !verbose && len(pats) > maxPatternRows {
		pats = pats[:maxPatternRows]
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)

	tbl.AppendHeader(table.Row{"Pattern", "File", "Confidence"})

	for _, idx := range pats {
		p := doc.Patterns[idx]
		tbl.AppendRow(table.Row{p.Type, p.File, fmt.Sprintf("%.2f", p.Confidence)})
	}

	if hidden := len(doc.Patterns) - len(pats); hidden > 0 {
		tbl.AppendFooter(table.Row{fmt.Sprintf("and %d more", hidden)})
	}

	return tbl.Render()
}

func conflictSection(doc *Document) string {
	if len(doc.Conflicts) == 0 {
		return ""
	}

	lines := make([]string, 0, len(doc.Conflicts)+1)
	lines = append(lines, fmt.Sprintf("Merge conflicts (%d, resolved last-writer-wins):", len(doc.Conflicts)))

	for _, c := range doc.Conflicts {
		lines = append(lines, fmt.Sprintf("  %s %s from chunks %s",
			c.Kind, c.EntityID, strings.Join(c.ConflictingChunks, ", ")))
	}

	return strings.Join(lines, "\n")
}

func failureSection(doc *Document) string {
	if len(doc.Failures) == 0 {
		return ""
	}

	red := color.New(color.FgRed)

	lines := make([]string, 0, len(doc.Failures)+1)
	lines = append(lines, red.Sprintf("Failed chunks (%d):", len(doc.Failures)))

	for _, f := range doc.Failures {
		lines = append(lines, red.Sprintf("  %s: %d files, %d attempts: %s",
			f.ChunkID, f.Files, f.Attempts, f.Error))
	}

	return strings.Join(lines, "\n")
}

func errorSection(doc *Document, verbose bool) string {
	if len(doc.Errors) == 0 {
		return ""
	}

	yellow := color.New(color.FgYellow)

	lines := make([]string, 0, maxErrorLines+2)
	lines = append(lines, yellow.Sprintf("File errors (%d):", len(doc.Errors)))

	shown := doc.Errors
	if !verbose && len(shown) > maxErrorLines {
		shown = shown[:maxErrorLines]
	}

	for _, e := range shown {
		lines = append(lines, yellow.Sprintf("  %s: %s", e.File, e.Message))
	}

	if hidden := len(doc.Errors) - len(shown); hidden > 0 {
		lines = append(lines, yellow.Sprintf("  and %d more", hidden))
	}

	return strings.Join(lines, "\n")
}

func performanceSection(doc *Document) string {
	perf := doc.Performance

	return fmt.Sprintf("Completed %d/%d chunks in %s (avg %s/chunk, parallel efficiency %.0f%%, peak heap %s)",
		perf.CompletedChunks,
		perf.TotalChunks,
		perf.WallClock.Round(time.Millisecond),
		perf.AverageChunkTime.Round(time.Millisecond),
		perf.ParallelEfficiency*100,
		humanize.Bytes(perf.PeakHeapBytes))
}
