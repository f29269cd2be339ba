// Package export renders stored runs for use outside the terminal.
package export

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
)

// Palette colors series in order; it wraps for more species.
var Palette = []string{"#00a8cc", "#ffd700", "#00ff88", "#ff4444", "#cc66ff", "#4488aa"}

type SVGOptions struct {
	Width  int
	Height int
	// LogScale plots log10 of the values; non-positive values are dropped.
	LogScale bool
}

// Line is one named series sampled at the shared times.
type Line struct {
	Name   string
	Values []float64
}

// SeriesSVG writes one path per line against times, with a legend.
func SeriesSVG(w io.Writer, times []float64, lines []Line, opts SVGOptions) error {
	if len(times) < 2 {
		return errors.New("svg: need at least two samples")
	}
	if len(lines) == 0 {
		return errors.New("svg: nothing to draw")
	}
	for _, l := range lines {
		if len(l.Values) != len(times) {
			return fmt.Errorf("svg: %s has %d values for %d times", l.Name, len(l.Values), len(times))
		}
	}
	if opts.Width <= 0 {
		opts.Width = 800
	}
	if opts.Height <= 0 {
		opts.Height = 400
	}

	value := func(v float64) (float64, bool) {
		if opts.LogScale {
			if v <= 0 {
				return 0, false
			}
			return math.Log10(v), true
		}
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	}

	minX, maxX := times[0], times[len(times)-1]
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, l := range lines {
		for _, v := range l.Values {
			if y, ok := value(v); ok {
				minY = math.Min(minY, y)
				maxY = math.Max(maxY, y)
			}
		}
	}
	if math.IsInf(minY, 1) {
		return errors.New("svg: no drawable values")
	}

	// Add padding
	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeY = maxY - minY

	width, height := float64(opts.Width), float64(opts.Height)

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, opts.Width, opts.Height, opts.Width, opts.Height)

	for i, l := range lines {
		color := Palette[i%len(Palette)]
		sb.WriteString(`<path fill="none" stroke="` + color + `" stroke-width="1.5" d="`)
		pen := "M"
		for j, v := range l.Values {
			y, ok := value(v)
			if !ok {
				pen = "M"
				continue
			}
			px := (times[j] - minX) / rangeX * width
			py := height - (y-minY)/rangeY*height
			fmt.Fprintf(&sb, "%s%.1f,%.1f ", pen, px, py)
			pen = "L"
		}
		sb.WriteString("\"/>\n")
		fmt.Fprintf(&sb, `<text x="10" y="%d" fill="%s" font-family="monospace" font-size="12">%s</text>
`, 20+16*i, color, escape(l.Name))
	}

	sb.WriteString("</svg>\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

func escape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}
