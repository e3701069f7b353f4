package report

import (
	"fmt"
	"os"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const (
	chartWidth  = "900px"
	chartHeight = "420px"
)

// WritePlot renders the run as a self-contained HTML page: a per-chunk
// processing-time bar and a priority distribution pie.
func WritePlot(path string, doc *Document) error {
	page := components.NewPage()
	page.AddCharts(durationBar(doc), priorityPie(doc))

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create plot file: %w", err)
	}
	defer file.Close()

	if err := page.Render(file); err != nil {
		return fmt.Errorf("render plot: %w", err)
	}

	return nil
}

func durationBar(doc *Document) *charts.Bar {
	labels := make([]string, len(doc.Chunks))
	values := make([]opts.BarData, len(doc.Chunks))

	for i, c := range doc.Chunks {
		labels[i] = c.ID
		values[i] = opts.BarData{Value: float64(c.Duration) / float64(time.Millisecond)}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: "Chunk processing time", Subtitle: "milliseconds per chunk"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "ms"}),
	)

	bar.SetXAxis(labels)
	bar.AddSeries("Processing time", values,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)

	return bar
}

func priorityPie(doc *Document) *charts.Pie {
	counts := make(map[string]int)
	for _, c := range doc.Chunks {
		counts[c.Priority]++
	}

	var data []opts.PieData

	// Fixed order keeps renders stable across runs.
	for _, name := range []string{"high", "medium", "low"} {
		if n := counts[name]; n > 0 {
			data = append(data, opts.PieData{Name: name, Value: n})
		}
	}

	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: "Chunk priority distribution"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "item"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
	)

	pie.AddSeries("Priority", data).
		SetSeriesOptions(
			charts.WithLabelOpts(opts.Label{
				Show:      opts.Bool(true),
				Formatter: "{b}: {c} ({d}%)",
			}),
		)

	return pie
}
