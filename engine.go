package tzgrid

import (
	"math"
)

// Options configures an Engine at construction time.
type Options struct {
	// ForceTZ enables the nearest-zone fallback queries. Engines built
	// without it refuse TzNameAtForce.
	ForceTZ bool

	// EagerPrepare builds every prepared polygon at construction instead of
	// on first containment test. Higher startup cost, predictable latency.
	EagerPrepare bool
}

// Engine answers timezone lookups against an immutable polygon store and
// shortcut index. A constructed engine is a shared read-only value: any
// number of goroutines may query it concurrently.
type Engine struct {
	store     *PolygonStore
	shortcuts *ShortcutIndex
	forceTZ   bool
}

// NewEngine assembles an engine from an already built store and index.
func NewEngine(store *PolygonStore, shortcuts *ShortcutIndex, opts Options) *Engine {
	if opts.EagerPrepare {
		store.PrepareAll()
	}
	return &Engine{
		store:     store,
		shortcuts: shortcuts,
		forceTZ:   opts.ForceTZ,
	}
}

// Store exposes the engine's polygon store.
func (e *Engine) Store() *PolygonStore { return e.store }

// Shortcuts exposes the engine's shortcut index.
func (e *Engine) Shortcuts() *ShortcutIndex { return e.shortcuts }

func validateCoords(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return ErrCoordinate
	}
	if math.IsNaN(lng) || math.IsInf(lng, 0) || lng < -180 || lng > 180 {
		return ErrCoordinate
	}
	return nil
}

// TzNameAt returns the IANA zone name containing the point, or the empty
// string when no polygon contains it. Points in open water yield ("", nil);
// that is the normal outcome, not an error.
func (e *Engine) TzNameAt(lat, lng float64) (string, error) {
	if err := validateCoords(lat, lng); err != nil {
		return "", err
	}
	zone, _ := e.lookup(lat, lng)
	return zone, nil
}

// TzNameAtForce is TzNameAt with the nearest-zone fallback: when no polygon
// contains the point, the closest candidate within the same 1-degree cell is
// returned. The engine must have been built with Options.ForceTZ.
func (e *Engine) TzNameAtForce(lat, lng float64) (string, error) {
	if !e.forceTZ {
		return "", ErrFallbackDisabled
	}
	if err := validateCoords(lat, lng); err != nil {
		return "", err
	}

	zone, cands := e.lookup(lat, lng)
	if zone != "" {
		return zone, nil
	}
	return e.nearest(lat, lng, cands), nil
}

// lookup runs the containment scan over the shortcut candidates, first hit
// wins. It returns the candidate set so the fallback can reuse it.
func (e *Engine) lookup(lat, lng float64) (string, []Candidate) {
	cands := e.shortcuts.CandidatesAt(lat, lng)
	for _, c := range cands {
		for _, idx := range c.Indices {
			if e.store.Contains(c.Zone, idx, lng, lat) {
				return c.Zone, cands
			}
		}
	}
	return "", cands
}

// nearest picks the candidate zone with the minimum polygon distance to the
// point. Candidates are ordered by zone name, so on equal distances the
// first seen wins the lexicographic tie. The search never leaves the query's
// grid cell: an empty candidate set stays empty.
func (e *Engine) nearest(lat, lng float64, cands []Candidate) string {
	if len(cands) == 0 {
		return ""
	}
	if len(cands) == 1 {
		return cands[0].Zone
	}

	best := ""
	bestDist := math.Inf(1)
	for _, c := range cands {
		for _, idx := range c.Indices {
			d, err := e.store.Distance(c.Zone, idx, lng, lat)
			if err != nil {
				continue
			}
			if d < bestDist {
				bestDist = d
				best = c.Zone
			}
		}
	}
	return best
}
