package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-echarts/go-echarts/v2/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePlot_ProducesHTML(t *testing.T) {
	t.Parallel()

	doc := Build(sampleInput())
	path := filepath.Join(t.TempDir(), "report.html")

	require.NoError(t, WritePlot(path, doc))

	html, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Contains(t, string(html), "chunk-0")
	assert.Contains(t, string(html), "echarts")
}

func TestDurationBar_Renders(t *testing.T) {
	t.Parallel()

	bar := durationBar(Build(sampleInput()))
	require.NotNil(t, bar)

	var buf bytes.Buffer

	require.NoError(t, render.NewChartRender(bar).Render(&buf))
	assert.Positive(t, buf.Len())
}

func TestPriorityPie_GroupsChunks(t *testing.T) {
	t.Parallel()

	pie := priorityPie(Build(sampleInput()))
	require.NotNil(t, pie)

	var buf bytes.Buffer

	require.NoError(t, render.NewChartRender(pie).Render(&buf))

	// One high and one low chunk, no medium slice.
	out := buf.String()
	assert.Contains(t, out, "high")
	assert.Contains(t, out, "low")
}
