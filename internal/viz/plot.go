package viz

import (
	"fmt"

	"github.com/guptarohit/asciigraph"
)

var seriesColors = []asciigraph.AnsiColor{
	asciigraph.Cyan,
	asciigraph.Yellow,
	asciigraph.Green,
	asciigraph.Magenta,
	asciigraph.Red,
	asciigraph.Blue,
}

type PlotOptions struct {
	Width   int
	Height  int
	Caption string
}

// Plot draws one line per named column. Columns must be non-empty.
func Plot(names []string, columns [][]float64, opts PlotOptions) (string, error) {
	if len(names) != len(columns) {
		return "", fmt.Errorf("plot: %d names for %d columns", len(names), len(columns))
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("plot: nothing to draw")
	}
	for i, c := range columns {
		if len(c) == 0 {
			return "", fmt.Errorf("plot: column %s is empty", names[i])
		}
	}
	if opts.Width <= 0 {
		opts.Width = 80
	}
	if opts.Height <= 0 {
		opts.Height = 15
	}

	colors := make([]asciigraph.AnsiColor, len(columns))
	for i := range colors {
		colors[i] = seriesColors[i%len(seriesColors)]
	}

	options := []asciigraph.Option{
		asciigraph.Height(opts.Height),
		asciigraph.Width(opts.Width),
		asciigraph.SeriesColors(colors...),
	}
	if len(columns) > 1 {
		options = append(options, asciigraph.SeriesLegends(names...))
	}
	if opts.Caption != "" {
		options = append(options, asciigraph.Caption(opts.Caption))
	}
	return asciigraph.PlotMany(columns, options...), nil
}
