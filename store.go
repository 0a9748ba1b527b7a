package tzgrid

import (
	"sort"
	"sync/atomic"
)

// zonePolygon pairs the raw rings with a publish-once slot for the prepared
// form. The slot only transitions nil -> non-nil; two goroutines racing to
// prepare the same polygon both produce equivalent values, so the last
// writer winning is fine.
type zonePolygon struct {
	raw      *Polygon
	prepared atomic.Pointer[preparedPolygon]
}

// PolygonStore owns every time-zone polygon, keyed by zone name. Polygon
// indices within a zone are stable: they follow the input feature order of
// the build. The store is immutable after construction except for the
// prepared-form cache.
type PolygonStore struct {
	zones map[string][]*zonePolygon
	names []string // zone names, ascending
}

// NewPolygonStore builds a store from zone polygon lists. The per-zone slice
// order defines the polygon indices.
func NewPolygonStore(zones map[string][]*Polygon) *PolygonStore {
	s := &PolygonStore{
		zones: make(map[string][]*zonePolygon, len(zones)),
		names: make([]string, 0, len(zones)),
	}
	for name, polys := range zones {
		zps := make([]*zonePolygon, len(polys))
		for i, p := range polys {
			zps[i] = &zonePolygon{raw: p}
		}
		s.zones[name] = zps
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)
	return s
}

// Zones returns every zone name in ascending order.
func (s *PolygonStore) Zones() []string {
	return s.names
}

// PolygonCount returns the number of polygons held for the zone.
func (s *PolygonStore) PolygonCount(zone string) int {
	return len(s.zones[zone])
}

// Polygon returns the raw polygon at the given index, or nil if the zone or
// index does not exist.
func (s *PolygonStore) Polygon(zone string, idx int) *Polygon {
	zps := s.zones[zone]
	if idx < 0 || idx >= len(zps) {
		return nil
	}
	return zps[idx].raw
}

// Contains reports whether polygon idx of the zone contains the point,
// preparing and caching the fast form on first use. Presence or absence of
// the cached form never changes the answer.
func (s *PolygonStore) Contains(zone string, idx int, lng, lat float64) bool {
	zps := s.zones[zone]
	if idx < 0 || idx >= len(zps) {
		return false
	}
	zp := zps[idx]

	pp := zp.prepared.Load()
	if pp == nil {
		pp = prepare(zp.raw)
		zp.prepared.Store(pp)
	}
	return pp.Contains(lng, lat)
}

// Distance returns the planar distance in degrees from the point to polygon
// idx of the zone, 0 when contained. It always works on the raw rings.
func (s *PolygonStore) Distance(zone string, idx int, lng, lat float64) (float64, error) {
	zps := s.zones[zone]
	if idx < 0 || idx >= len(zps) {
		return 0, ErrUnknownPolygon
	}
	return zps[idx].raw.Distance(lng, lat), nil
}

// PrepareAll eagerly builds the prepared form of every polygon. Useful when
// predictable query latency matters more than startup cost.
func (s *PolygonStore) PrepareAll() {
	for _, name := range s.names {
		for _, zp := range s.zones[name] {
			if zp.prepared.Load() == nil {
				zp.prepared.Store(prepare(zp.raw))
			}
		}
	}
}
