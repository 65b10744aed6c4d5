package geometry

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/planar"
)

// FixClip repairs g if it is invalid and intersects it with the image
// rectangle [0,width] x [0,height]. It returns nil when no polygonal area
// remains, an orb.Polygon for a single part and an orb.MultiPolygon otherwise.
// Pieces without area left by the intersection are discarded.
func FixClip(g orb.Geometry, width, height int) orb.Geometry {
	polys := polygons(g)
	if len(polys) == 0 {
		return nil
	}

	if !valid(polys) {
		polys = repair(polys)
	}

	bound := orb.Bound{
		Min: orb.Point{0, 0},
		Max: orb.Point{float64(width), float64(height)},
	}

	var parts []orb.Polygon
	for _, p := range polys {
		clipped := clip.Polygon(bound, p.Clone())
		if clipped = dropDegenerate(clipped); clipped != nil {
			parts = append(parts, clipped)
		}
	}

	switch len(parts) {
	case 0:
		return nil
	case 1:
		return parts[0]
	}
	return orb.MultiPolygon(parts)
}

// polygons flattens the polygonal members of g. Other geometry types
// contribute nothing.
func polygons(g orb.Geometry) []orb.Polygon {
	switch t := g.(type) {
	case orb.Polygon:
		if len(t) == 0 {
			return nil
		}
		return []orb.Polygon{t}
	case orb.MultiPolygon:
		out := make([]orb.Polygon, 0, len(t))
		for _, p := range t {
			if len(p) > 0 {
				out = append(out, p)
			}
		}
		return out
	case orb.Collection:
		var out []orb.Polygon
		for _, member := range t {
			out = append(out, polygons(member)...)
		}
		return out
	}
	return nil
}

// valid reports whether every ring is closed, free of repeated vertices
// and encloses some area
func valid(polys []orb.Polygon) bool {
	for _, p := range polys {
		for _, r := range p {
			if len(r) < 4 || !r.Closed() {
				return false
			}
			for i := 1; i < len(r); i++ {
				if r[i] == r[i-1] {
					return false
				}
			}
			if degenerate(r) {
				return false
			}
		}
	}
	return true
}

// repair rebuilds each polygon from cleaned rings. A polygon whose shell
// collapses is dropped along with its holes.
func repair(polys []orb.Polygon) []orb.Polygon {
	out := make([]orb.Polygon, 0, len(polys))
	for _, p := range polys {
		shell := cleanRing(p[0])
		if shell == nil {
			continue
		}
		if shell.Orientation() == orb.CW && !selfIntersects(shell) {
			shell.Reverse()
		}

		fixed := orb.Polygon{shell}
		for _, h := range p[1:] {
			hole := cleanRing(h)
			if hole == nil {
				continue
			}
			if hole.Orientation() == orb.CCW && !selfIntersects(hole) {
				hole.Reverse()
			}
			fixed = append(fixed, hole)
		}
		out = append(out, fixed)
	}
	return out
}

// cleanRing drops consecutive duplicate vertices and closes the ring.
// It returns nil for rings that no longer enclose any area.
func cleanRing(r orb.Ring) orb.Ring {
	out := make(orb.Ring, 0, len(r)+1)
	for _, pt := range r {
		if len(out) > 0 && out[len(out)-1] == pt {
			continue
		}
		out = append(out, pt)
	}
	if len(out) > 1 && out[0] == out[len(out)-1] {
		out = out[:len(out)-1]
	}
	if len(out) < 3 {
		return nil
	}
	out = append(out, out[0])

	if degenerate(out) {
		return nil
	}
	return out
}

// dropDegenerate removes the rings without area that clipping along the
// image border produces
func dropDegenerate(p orb.Polygon) orb.Polygon {
	if len(p) == 0 {
		return nil
	}
	shell := closeRing(p[0])
	if degenerate(shell) {
		return nil
	}

	out := orb.Polygon{shell}
	for _, h := range p[1:] {
		h = closeRing(h)
		if !degenerate(h) {
			out = append(out, h)
		}
	}
	return out
}

func closeRing(r orb.Ring) orb.Ring {
	if len(r) > 0 && !r.Closed() {
		r = append(r, r[0])
	}
	return r
}

// degenerate reports whether the closed ring r encloses no area. A zero
// net area only counts when no two edges cross: the lobes of a bowtie
// cancel in the signed area but still cover pixels.
func degenerate(r orb.Ring) bool {
	if len(r) < 4 {
		return true
	}
	if planar.Area(r) != 0 {
		return false
	}
	return !selfIntersects(r)
}

// selfIntersects reports whether two non-adjacent edges of the closed ring
// r cross at a point interior to both
func selfIntersects(r orb.Ring) bool {
	n := len(r) - 1
	for i := 0; i < n; i++ {
		a, b := r[i], r[i+1]
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue
			}
			if properCross(a, b, r[j], r[j+1]) {
				return true
			}
		}
	}
	return false
}

// properCross reports whether segments p1-p2 and q1-q2 cross at a single
// point that is not an endpoint of either
func properCross(p1, p2, q1, q2 orb.Point) bool {
	d1 := orient(q1, q2, p1)
	d2 := orient(q1, q2, p2)
	d3 := orient(p1, p2, q1)
	d4 := orient(p1, p2, q2)
	return d1*d2 < 0 && d3*d4 < 0
}

// orient returns the sign of the turn a-b-c: positive for counterclockwise
func orient(a, b, c orb.Point) float64 {
	v := (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
