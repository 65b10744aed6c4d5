package geometry

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// Mask is a boolean pixel grid with the dimensions of the source image
type Mask struct {
	Height int
	Width  int
	bits   []bool
}

// NewMask allocates an empty mask
func NewMask(height, width int) *Mask {
	return &Mask{Height: height, Width: width, bits: make([]bool, height*width)}
}

// At reports whether pixel (row, col) is covered
func (m *Mask) At(row, col int) bool {
	return m.bits[row*m.Width+col]
}

// Set marks pixel (row, col) as covered
func (m *Mask) Set(row, col int) {
	m.bits[row*m.Width+col] = true
}

// Count returns the number of covered pixels
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.bits {
		if b {
			n++
		}
	}
	return n
}

// Any reports whether at least one pixel is covered
func (m *Mask) Any() bool {
	for _, b := range m.bits {
		if b {
			return true
		}
	}
	return false
}

// Indices returns the row-major indices of covered pixels
func (m *Mask) Indices() []int {
	var out []int
	for i, b := range m.bits {
		if b {
			out = append(out, i)
		}
	}
	return out
}

// MaskFromGeometry rasterizes g onto a height x width grid. A pixel is
// covered when its center lies inside the geometry or when any boundary
// edge passes through its interior, so thin regions are never lost.
// Pixel (row, col) spans [col, col+1) x [row, row+1).
func MaskFromGeometry(g orb.Geometry, height, width int) *Mask {
	m := NewMask(height, width)
	if height <= 0 || width <= 0 {
		return m
	}
	for _, p := range polygons(g) {
		m.fillCenters(p)
		for _, r := range p {
			m.touchRing(r)
		}
	}
	return m
}

// fillCenters marks the pixel centers inside p. A center is inside when
// the shell winds around it and no hole does, so self-overlapping and
// self-intersecting rings keep every lobe.
func (m *Mask) fillCenters(p orb.Polygon) {
	b := p.Bound()
	rowStart := clampInt(int(math.Floor(b.Min[1])), 0, m.Height-1)
	rowEnd := clampInt(int(math.Ceil(b.Max[1])), 0, m.Height-1)

	line := make([]bool, m.Width)
	var xs []crossing
	for row := rowStart; row <= rowEnd; row++ {
		yc := float64(row) + 0.5
		clear(line)

		xs = crossings(p[0], yc, xs[:0])
		m.fillSpans(line, xs, true)
		for _, h := range p[1:] {
			xs = crossings(h, yc, xs[:0])
			m.fillSpans(line, xs, false)
		}

		for col, in := range line {
			if in {
				m.Set(row, col)
			}
		}
	}
}

// crossing is where a ring edge meets a scanline. Dir is +1 for edges
// running up and -1 for edges running down.
type crossing struct {
	x   float64
	dir int
}

// crossings appends the edges of r that cross y, sorted by x
func crossings(r orb.Ring, y float64, xs []crossing) []crossing {
	n := len(r)
	for i := 0; i < n; i++ {
		a, c := r[i], r[(i+1)%n]
		if (a[1] <= y) == (c[1] <= y) {
			continue
		}
		dir := 1
		if a[1] > c[1] {
			dir = -1
		}
		xs = append(xs, crossing{x: a[0] + (y-a[1])*(c[0]-a[0])/(c[1]-a[1]), dir: dir})
	}
	sort.Slice(xs, func(i, j int) bool { return xs[i].x < xs[j].x })
	return xs
}

// fillSpans sets line to v for every column whose center has a non-zero
// winding number
func (m *Mask) fillSpans(line []bool, xs []crossing, v bool) {
	w := 0
	for i, c := range xs {
		w += c.dir
		if w == 0 || i+1 == len(xs) {
			continue
		}
		colStart := int(math.Ceil(c.x - 0.5))
		colEnd := int(math.Ceil(xs[i+1].x-0.5)) - 1
		if colStart < 0 {
			colStart = 0
		}
		if colEnd > m.Width-1 {
			colEnd = m.Width - 1
		}
		for col := colStart; col <= colEnd; col++ {
			line[col] = v
		}
	}
}

func (m *Mask) touchRing(r orb.Ring) {
	n := len(r)
	for i := 0; i < n; i++ {
		m.touchSegment(r[i], r[(i+1)%n])
	}
}

// touchSegment marks every pixel whose open interior the segment a-b crosses.
// Segments running exactly along pixel borders mark nothing.
func (m *Mask) touchSegment(a, b orb.Point) {
	if a[1] == b[1] {
		if isIntegral(a[1]) {
			return
		}
		row := int(math.Floor(a[1]))
		if row < 0 || row >= m.Height {
			return
		}
		m.touchSpan(row, math.Min(a[0], b[0]), math.Max(a[0], b[0]))
		return
	}

	yMin, yMax := math.Min(a[1], b[1]), math.Max(a[1], b[1])
	if yMax <= 0 || yMin >= float64(m.Height) {
		return
	}
	rowStart := clampInt(int(math.Floor(yMin)), 0, m.Height-1)
	rowEnd := clampInt(int(math.Ceil(yMax))-1, 0, m.Height-1)

	xAt := func(y float64) float64 {
		return a[0] + (y-a[1])*(b[0]-a[0])/(b[1]-a[1])
	}

	for row := rowStart; row <= rowEnd; row++ {
		lo := math.Max(yMin, float64(row))
		hi := math.Min(yMax, float64(row+1))
		if lo >= hi {
			continue
		}
		x0, x1 := xAt(lo), xAt(hi)
		m.touchSpan(row, math.Min(x0, x1), math.Max(x0, x1))
	}
}

// touchSpan marks the pixels of row whose open x-interval meets [x0, x1]
func (m *Mask) touchSpan(row int, x0, x1 float64) {
	var colStart, colEnd int
	if x0 == x1 {
		if isIntegral(x0) {
			return
		}
		colStart = int(math.Floor(x0))
		colEnd = colStart
	} else {
		colStart = int(math.Floor(x0))
		colEnd = int(math.Ceil(x1)) - 1
	}
	if colStart < 0 {
		colStart = 0
	}
	if colEnd > m.Width-1 {
		colEnd = m.Width - 1
	}
	for col := colStart; col <= colEnd; col++ {
		m.Set(row, col)
	}
}

func isIntegral(v float64) bool {
	return v == math.Floor(v)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
