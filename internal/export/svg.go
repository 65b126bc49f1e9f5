// Package export renders recorded traces for use outside the terminal.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/san-kum/lazyfall/internal/storage"
)

// Point is one vertex of a polyline in data coordinates.
type Point struct{ X, Y float64 }

// TracePoints returns height over time for a recorded trace.
func TracePoints(rows []storage.Row) []Point {
	pts := make([]Point, len(rows))
	for i, r := range rows {
		pts[i] = Point{X: r.TimeMs, Y: r.Y}
	}
	return pts
}

// PolylineSVG draws points as a single path scaled to width x height. The
// y axis is anchored at zero so the ground sits on the bottom edge.
func PolylineSVG(points []Point, width, height int, strokeColor string) string {
	if len(points) < 2 {
		return ""
	}

	minX, maxX := points[0].X, points[0].X
	minY, maxY := 0.0, points[0].Y
	for _, p := range points {
		minX = min(minX, p.X)
		maxX = max(maxX, p.X)
		minY = min(minY, p.Y)
		maxY = max(maxY, p.Y)
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	maxY += rangeY * 0.1
	rangeY = maxY - minY

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<line x1="0" y1="%d" x2="%d" y2="%d" stroke="#444466" stroke-width="1"/>
<path fill="none" stroke="%s" stroke-width="1.5" d="M`,
		width, height, width, height, height, width, height, strokeColor)

	for i, p := range points {
		x := (p.X - minX) / rangeX * float64(width)
		y := float64(height) - (p.Y-minY)/rangeY*float64(height)
		if i == 0 {
			fmt.Fprintf(&sb, "%.1f,%.1f", x, y)
		} else {
			fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
		}
	}

	sb.WriteString(`"/>
</svg>`)
	return sb.String()
}

// WriteTraceSVG writes a height-over-time chart of rows to w.
func WriteTraceSVG(w io.Writer, rows []storage.Row) error {
	svg := PolylineSVG(TracePoints(rows), 800, 300, "#00ffff")
	if svg == "" {
		return fmt.Errorf("trace has %d samples, need at least 2", len(rows))
	}
	_, err := io.WriteString(w, svg+"\n")
	return err
}
