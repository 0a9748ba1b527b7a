package tzgrid

import (
	"math"
)

// Ring is a closed polygon boundary stored as two parallel coordinate
// slices. The closing vertex is not duplicated; edge i runs from vertex i
// to vertex (i+1) mod n.
type Ring struct {
	Lngs []float64
	Lats []float64
}

// NumVertices returns the vertex count of the ring.
func (r *Ring) NumVertices() int {
	return len(r.Lngs)
}

// Contains reports whether the point is strictly inside the ring using the
// even-odd crossing-number rule. Edges are treated as half-open intervals so
// a crossing through a shared vertex is counted once; points exactly on an
// edge are not guaranteed to be inside.
func (r *Ring) Contains(lng, lat float64) bool {
	n := len(r.Lngs)
	if n < 3 {
		return false
	}

	inside := false
	p1x, p1y := r.Lngs[0], r.Lats[0]
	for i := 1; i <= n; i++ {
		p2x, p2y := r.Lngs[i%n], r.Lats[i%n]
		if lat > min(p1y, p2y) && lat <= max(p1y, p2y) && lng <= max(p1x, p2x) {
			if p1x == p2x {
				inside = !inside
			} else if p1y != p2y {
				xinters := (lat-p1y)*(p2x-p1x)/(p2y-p1y) + p1x
				if lng <= xinters {
					inside = !inside
				}
			}
		}
		p1x, p1y = p2x, p2y
	}
	return inside
}

// signedArea returns twice the signed shoelace area of the ring in degree
// space. Positive means counter-clockwise winding.
func (r *Ring) signedArea() float64 {
	n := len(r.Lngs)
	var area float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		area += r.Lngs[i]*r.Lats[j] - r.Lngs[j]*r.Lats[i]
	}
	return area
}

// reverse flips the winding order in place.
func (r *Ring) reverse() {
	for i, j := 0, len(r.Lngs)-1; i < j; i, j = i+1, j-1 {
		r.Lngs[i], r.Lngs[j] = r.Lngs[j], r.Lngs[i]
		r.Lats[i], r.Lats[j] = r.Lats[j], r.Lats[i]
	}
}

// Polygon is one exterior ring plus zero or more holes. The bounding box
// covers the exterior ring only; holes lie inside it by construction.
type Polygon struct {
	Exterior Ring
	Holes    []Ring

	MinLng, MinLat float64
	MaxLng, MaxLat float64
}

// NewPolygon builds a polygon from its rings, normalizing winding (exterior
// counter-clockwise, holes clockwise) and computing the exterior bounds.
func NewPolygon(exterior Ring, holes []Ring) *Polygon {
	if exterior.signedArea() < 0 {
		exterior.reverse()
	}
	for i := range holes {
		if holes[i].signedArea() > 0 {
			holes[i].reverse()
		}
	}

	p := &Polygon{Exterior: exterior, Holes: holes}
	p.computeBounds()
	return p
}

func (p *Polygon) computeBounds() {
	p.MinLng, p.MinLat = math.Inf(1), math.Inf(1)
	p.MaxLng, p.MaxLat = math.Inf(-1), math.Inf(-1)
	for i, lng := range p.Exterior.Lngs {
		lat := p.Exterior.Lats[i]
		p.MinLng = min(p.MinLng, lng)
		p.MaxLng = max(p.MaxLng, lng)
		p.MinLat = min(p.MinLat, lat)
		p.MaxLat = max(p.MaxLat, lat)
	}
}

// Contains reports whether the point is inside the exterior ring and outside
// every hole.
func (p *Polygon) Contains(lng, lat float64) bool {
	if lng < p.MinLng || lng > p.MaxLng || lat < p.MinLat || lat > p.MaxLat {
		return false
	}
	if !p.Exterior.Contains(lng, lat) {
		return false
	}
	for i := range p.Holes {
		if p.Holes[i].Contains(lng, lat) {
			return false
		}
	}
	return true
}

// Distance returns the planar distance in degrees from the point to the
// polygon: 0 when the point is inside (boundary inclusive), otherwise the
// minimum distance to any ring edge.
func (p *Polygon) Distance(lng, lat float64) float64 {
	if p.Contains(lng, lat) {
		return 0
	}
	d := p.Exterior.distance(lng, lat)
	for i := range p.Holes {
		d = min(d, p.Holes[i].distance(lng, lat))
	}
	return d
}

func (r *Ring) distance(lng, lat float64) float64 {
	n := len(r.Lngs)
	if n == 0 {
		return math.Inf(1)
	}
	if n == 1 {
		return math.Hypot(lng-r.Lngs[0], lat-r.Lats[0])
	}
	d := math.Inf(1)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		d = min(d, distToSegment(lng, lat, r.Lngs[i], r.Lats[i], r.Lngs[j], r.Lats[j]))
	}
	return d
}

// distToSegment returns the distance from point (px,py) to the segment
// (ax,ay)-(bx,by), clamping the projection to the segment endpoints.
func distToSegment(px, py, ax, ay, bx, by float64) float64 {
	dx, dy := bx-ax, by-ay
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return math.Hypot(px-ax, py-ay)
	}
	t := ((px-ax)*dx + (py-ay)*dy) / l2
	t = max(0, min(1, t))
	return math.Hypot(px-(ax+t*dx), py-(ay+t*dy))
}
