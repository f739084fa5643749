package chart

import (
	"fmt"
	"image/color"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var seriesColors = map[string]color.RGBA{
	NoseXLabel: {R: 255, G: 99, B: 132, A: 255},
	NoseYLabel: {R: 53, G: 162, B: 235, A: 255},
}

// RenderHTML writes a standalone go-echarts line chart page
func RenderHTML(w io.Writer, title string, data Data) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "900px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("window=%d", len(data.Labels))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "sample", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "px", NameLocation: "middle", NameGap: 35}),
	)

	line.SetXAxis(data.Labels)
	for _, ds := range data.Datasets {
		points := make([]opts.LineData, len(ds.Data))
		for i, v := range ds.Data {
			points[i] = opts.LineData{Value: v}
		}
		line.AddSeries(ds.Label, points,
			charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(ds.Tension > 0)}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: ds.BorderColor}),
		)
	}

	if err := line.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

// RenderPNG writes a gonum/plot line chart as PNG
func RenderPNG(w io.Writer, title string, data Data) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "sample"
	p.Y.Label.Text = "px"
	p.Add(plotter.NewGrid())

	for _, ds := range data.Datasets {
		if len(ds.Data) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(ds.Data))
		for i, v := range ds.Data {
			pts[i] = plotter.XY{X: float64(i), Y: v}
		}

		l, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to build series %q: %w", ds.Label, err)
		}
		l.Width = vg.Points(1)
		if c, ok := seriesColors[ds.Label]; ok {
			l.Color = c
		}
		p.Add(l)
		p.Legend.Add(ds.Label, l)
	}

	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to create png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write png: %w", err)
	}
	return nil
}
