package tzgrid

import (
	"github.com/golang/geo/s2"
)

// preparedPolygon is the derived read-only form of a Polygon. It carries a
// fully built s2.ShapeIndex so repeated containment tests run against the
// index cells instead of scanning every edge.
type preparedPolygon struct {
	index *s2.ShapeIndex
}

// prepare converts the polygon rings to oriented s2 loops and builds the
// shape index. NewPolygon already normalized winding so the interior is on
// the left-hand side of every loop.
func prepare(p *Polygon) *preparedPolygon {
	loops := make([]*s2.Loop, 0, 1+len(p.Holes))
	loops = append(loops, ringToLoop(&p.Exterior))
	for i := range p.Holes {
		loops = append(loops, ringToLoop(&p.Holes[i]))
	}

	index := s2.NewShapeIndex()
	index.Add(s2.PolygonFromOrientedLoops(loops))
	index.Build()

	return &preparedPolygon{index: index}
}

// Contains tests point containment with the open vertex model: boundary
// vertices and edges are outside, matching the half-open planar rule.
// A ContainsPointQuery is not safe for concurrent use, so one is built per
// call against the shared immutable index.
func (pp *preparedPolygon) Contains(lng, lat float64) bool {
	q := s2.NewContainsPointQuery(pp.index, s2.VertexModelOpen)
	return q.Contains(s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lng)))
}

func ringToLoop(r *Ring) *s2.Loop {
	pts := make([]s2.Point, len(r.Lngs))
	for i := range r.Lngs {
		pts[i] = s2.PointFromLatLng(s2.LatLngFromDegrees(r.Lats[i], r.Lngs[i]))
	}
	return s2.LoopFromPoints(pts)
}
