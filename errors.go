package tzgrid

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrCoordinate is returned when a query coordinate is non-finite or
	// outside the WGS84 domain.
	ErrCoordinate = errors.New("coordinate out of range")

	// ErrFallbackDisabled is returned by TzNameAtForce when the engine was
	// built without nearest-zone fallback support.
	ErrFallbackDisabled = errors.New("nearest-zone fallback not enabled on this engine")

	// ErrUnknownPolygon is returned by store operations addressing a zone or
	// polygon index that does not exist.
	ErrUnknownPolygon = errors.New("unknown zone or polygon index")
)

// DataError describes a feature rejected during ingest. In strict mode the
// build fails with the first one; otherwise the feature is skipped and
// counted.
type DataError struct {
	Feature int    // position in the input feature list
	Zone    string // TZID if present
	Reason  string
}

func (e *DataError) Error() string {
	if e.Zone == "" {
		return fmt.Sprintf("feature %d: %s", e.Feature, e.Reason)
	}
	return fmt.Sprintf("feature %d (%s): %s", e.Feature, e.Zone, e.Reason)
}
