package viz

import (
	"strings"
)

// Braille Patterns: 2x4 dots
// 1 4
// 2 5
// 3 6
// 7 8
//
// Unicode offset 0x2800
var pixelMap = [4][2]int{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const blank = 0x2800

type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{
		Width:  w,
		Height: h,
		Grid:   make([][]rune, h),
	}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

// Set lights the sub-pixel at (x, y). The canvas is Width*2 sub-pixels
// wide and Height*4 tall, with y growing downwards.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.Grid[row][col] |= rune(pixelMap[y%4][x%2])
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = blank
		}
	}
}

// DrawLine draws a line using Bresenham's algorithm
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx := absInt(x1 - x0)
	dy := absInt(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

// Bounds is the world rectangle a Scene maps onto its canvas.
type Bounds struct {
	MinX, MaxX float32
	MaxY       float32
}

// Scene is a side view of the population: world x across, height up,
// ground along the bottom row.
type Scene struct {
	canvas *Canvas
	bounds Bounds
}

func NewScene(w, h int, b Bounds) *Scene {
	return &Scene{canvas: NewCanvas(w, h), bounds: b}
}

// Project maps a world point to canvas sub-pixels. ok is false for points
// outside the bounds.
func (s *Scene) Project(x, y float32) (px, py int, ok bool) {
	b := s.bounds
	if x < b.MinX || x > b.MaxX || y < 0 || y > b.MaxY || b.MaxX <= b.MinX || b.MaxY <= 0 {
		return 0, 0, false
	}
	subW := s.canvas.Width*2 - 1
	subH := s.canvas.Height*4 - 1
	px = int((x - b.MinX) / (b.MaxX - b.MinX) * float32(subW))
	py = subH - int(y/b.MaxY*float32(subH))
	return px, py, true
}

// Draw redraws the ground and one 2x2 dot per body.
func (s *Scene) Draw(points [][2]float32) {
	c := s.canvas
	c.Clear()
	ground := c.Height*4 - 1
	c.DrawLine(0, ground, c.Width*2-1, ground)
	for _, p := range points {
		px, py, ok := s.Project(p[0], p[1])
		if !ok {
			continue
		}
		c.Set(px, py)
		c.Set(px+1, py)
		c.Set(px, py-1)
		c.Set(px+1, py-1)
	}
}

func (s *Scene) String() string {
	return s.canvas.String()
}

func (c *Canvas) String() string {
	var b strings.Builder
	for i, row := range c.Grid {
		b.WriteString(string(row))
		if i < len(c.Grid)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
