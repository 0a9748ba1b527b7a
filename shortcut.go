package tzgrid

import (
	"math"
	"sort"
)

// ShortcutIndex maps 1-degree grid cells to the polygons whose bounding box
// touches the cell, one table per axis. Intersecting the two per-axis
// entries at a query point yields the candidate set; everything else can be
// skipped without a containment test.
type ShortcutIndex struct {
	Lng map[int]map[string][]int
	Lat map[int]map[string][]int
}

// Candidate is one zone to test at a query point, with the polygon indices
// surviving the per-axis intersection, ascending.
type Candidate struct {
	Zone    string
	Indices []int
}

// cellOf is the grid cell of a coordinate: the mathematical floor, so
// cellOf(-0.3) is -1.
func cellOf(v float64) int {
	return int(math.Floor(v))
}

// BuildShortcuts constructs the index from every polygon in the store. A
// polygon appears in each cell its exterior bounding box spans, inclusive on
// both ends.
func BuildShortcuts(store *PolygonStore) *ShortcutIndex {
	idx := &ShortcutIndex{
		Lng: make(map[int]map[string][]int),
		Lat: make(map[int]map[string][]int),
	}
	for _, zone := range store.Zones() {
		for i := 0; i < store.PolygonCount(zone); i++ {
			p := store.Polygon(zone, i)
			for c := cellOf(p.MinLng); c <= cellOf(p.MaxLng); c++ {
				appendCell(idx.Lng, c, zone, i)
			}
			for c := cellOf(p.MinLat); c <= cellOf(p.MaxLat); c++ {
				appendCell(idx.Lat, c, zone, i)
			}
		}
	}
	return idx
}

func appendCell(m map[int]map[string][]int, cell int, zone string, polyIdx int) {
	zm := m[cell]
	if zm == nil {
		zm = make(map[string][]int)
		m[cell] = zm
	}
	// Polygons are visited in ascending index order, so the list stays
	// sorted and unique without a separate pass.
	if l := zm[zone]; len(l) > 0 && l[len(l)-1] == polyIdx {
		return
	}
	zm[zone] = append(zm[zone], polyIdx)
}

// CandidatesAt returns the zones and polygon indices to test at the point,
// ordered by ascending zone name then ascending index. A cell absent from
// either table means no candidates; that is the normal open-ocean outcome,
// not an error.
func (idx *ShortcutIndex) CandidatesAt(lat, lng float64) []Candidate {
	latZones := idx.Lat[cellOf(lat)]
	lngZones := idx.Lng[cellOf(lng)]
	if len(latZones) == 0 || len(lngZones) == 0 {
		return nil
	}

	names := make([]string, 0, len(latZones))
	for zone := range latZones {
		if _, ok := lngZones[zone]; ok {
			names = append(names, zone)
		}
	}
	sort.Strings(names)

	// A zone can survive the name intersection with no common polygon
	// index; it stays in the candidate list (it still counts for the
	// single-candidate fallback shortcut) but contributes nothing to test.
	cands := make([]Candidate, 0, len(names))
	for _, zone := range names {
		cands = append(cands, Candidate{
			Zone:    zone,
			Indices: intersectSorted(latZones[zone], lngZones[zone]),
		})
	}
	return cands
}

// intersectSorted intersects two ascending unique int slices.
func intersectSorted(a, b []int) []int {
	var out []int
	for i, j := 0, 0; i < len(a) && j < len(b); {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}
