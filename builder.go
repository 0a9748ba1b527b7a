package tzgrid

import (
	"bufio"
	"compress/gzip"
	"io"
	"os"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/pkg/errors"
)

// BuildOptions controls the precompute ingest.
type BuildOptions struct {
	// Strict fails the build on the first rejected feature instead of
	// skipping it.
	Strict bool
}

// BuildStats summarizes one build run.
type BuildStats struct {
	Features    int // features read from the input
	NonPolygons int // skipped: geometry type other than Polygon
	Rejected    int // skipped in lenient mode: malformed features
	Zones       int
	Polygons    int
	Vertices    int
}

// geoJSONFeatureCollection mirrors the tz_world input schema. Coordinates
// stay raw until the geometry type is known.
type geoJSONFeatureCollection struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

type geoJSONFeature struct {
	Type       string `json:"type"`
	Properties struct {
		TZID string `json:"TZID"`
	} `json:"properties"`
	Geometry struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	} `json:"geometry"`
}

// BuildFile ingests a tz_world FeatureCollection (plain or gzip-compressed
// JSON) and writes the polygon and shortcut artifacts to dbPath.
func BuildFile(inputPath, dbPath string, opts BuildOptions) (BuildStats, error) {
	f, err := os.Open(inputPath)
	if err != nil {
		return BuildStats{}, errors.Wrap(err, "open input")
	}
	defer f.Close()
	return Build(f, dbPath, opts)
}

// Build is BuildFile over an arbitrary reader.
func Build(r io.Reader, dbPath string, opts BuildOptions) (BuildStats, error) {
	data, err := readMaybeGzip(r)
	if err != nil {
		return BuildStats{}, err
	}

	zones, stats, err := parseFeatureCollection(data, opts)
	if err != nil {
		return stats, err
	}

	store := NewPolygonStore(zones)
	idx := BuildShortcuts(store)

	meta := BuildMeta{
		FormatVersion: formatVersion,
		DatasetID:     uuid.NewSHA1(uuid.NameSpaceOID, data),
		Zones:         uint64(stats.Zones),
		Polygons:      uint64(stats.Polygons),
		Vertices:      uint64(stats.Vertices),
	}
	if err := saveArtifacts(dbPath, zones, idx, meta); err != nil {
		return stats, err
	}
	return stats, nil
}

// readMaybeGzip reads the whole input, transparently decompressing when the
// stream starts with the gzip magic bytes.
func readMaybeGzip(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "read input")
	}
	var src io.Reader = br
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip input")
		}
		defer gz.Close()
		src = gz
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, errors.Wrap(err, "read input")
	}
	return data, nil
}

// parseFeatureCollection turns the raw FeatureCollection into per-zone
// polygon lists. Polygon indices follow input feature order, which keeps
// them stable across builds of the same dataset.
func parseFeatureCollection(data []byte, opts BuildOptions) (map[string][]*Polygon, BuildStats, error) {
	var fc geoJSONFeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, BuildStats{}, errors.Wrap(err, "parse feature collection")
	}

	zones := make(map[string][]*Polygon)
	stats := BuildStats{Features: len(fc.Features)}

	reject := func(derr *DataError) error {
		if opts.Strict {
			return derr
		}
		stats.Rejected++
		return nil
	}

	for fi, feat := range fc.Features {
		if feat.Geometry.Type != "Polygon" {
			stats.NonPolygons++
			continue
		}
		tzid := feat.Properties.TZID
		if tzid == "" {
			if err := reject(&DataError{Feature: fi, Reason: "missing TZID"}); err != nil {
				return nil, stats, err
			}
			continue
		}

		var rawRings [][][]float64
		if err := json.Unmarshal(feat.Geometry.Coordinates, &rawRings); err != nil {
			if err := reject(&DataError{Feature: fi, Zone: tzid, Reason: "malformed coordinates"}); err != nil {
				return nil, stats, err
			}
			continue
		}
		if len(rawRings) == 0 {
			if err := reject(&DataError{Feature: fi, Zone: tzid, Reason: "polygon with no rings"}); err != nil {
				return nil, stats, err
			}
			continue
		}

		rings := make([]Ring, 0, len(rawRings))
		var derr *DataError
		for _, raw := range rawRings {
			ring, rerr := buildRing(fi, tzid, raw)
			if rerr != nil {
				derr = rerr
				break
			}
			rings = append(rings, ring)
		}
		if derr == nil {
			if verr := validateRings(rings); verr != nil {
				derr = &DataError{Feature: fi, Zone: tzid, Reason: verr.Error()}
			}
		}
		if derr != nil {
			if err := reject(derr); err != nil {
				return nil, stats, err
			}
			continue
		}

		p := NewPolygon(rings[0], rings[1:])
		zones[tzid] = append(zones[tzid], p)
		stats.Polygons++
		stats.Vertices += p.Exterior.NumVertices()
		for i := range p.Holes {
			stats.Vertices += p.Holes[i].NumVertices()
		}
	}

	stats.Zones = len(zones)
	return zones, stats, nil
}

// buildRing converts one raw coordinate ring, tolerating both closed and
// unclosed input. The stored ring never duplicates the closing vertex.
func buildRing(fi int, tzid string, raw [][]float64) (Ring, *DataError) {
	for _, pt := range raw {
		if len(pt) != 2 {
			return Ring{}, &DataError{Feature: fi, Zone: tzid, Reason: "coordinate is not a lng/lat pair"}
		}
	}
	n := len(raw)
	if n > 1 && raw[0][0] == raw[n-1][0] && raw[0][1] == raw[n-1][1] {
		n--
	}
	if n < 3 {
		return Ring{}, &DataError{Feature: fi, Zone: tzid, Reason: "ring with fewer than three vertices"}
	}
	ring := Ring{
		Lngs: make([]float64, n),
		Lats: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		ring.Lngs[i] = raw[i][0]
		ring.Lats[i] = raw[i][1]
	}
	return ring, nil
}

// validateRings runs the eager geometry validation of every build, so a
// polygon a geometry library would reject fails at build time rather than on
// the first query against it.
func validateRings(rings []Ring) error {
	lss := make([]geom.LineString, len(rings))
	for i := range rings {
		lss[i] = ringToLineString(&rings[i])
	}
	return geom.NewPolygon(lss).Validate()
}

func ringToLineString(r *Ring) geom.LineString {
	n := len(r.Lngs)
	flat := make([]float64, 0, (n+1)*2)
	for i := 0; i < n; i++ {
		flat = append(flat, r.Lngs[i], r.Lats[i])
	}
	// LineString rings must be explicitly closed for validation.
	flat = append(flat, r.Lngs[0], r.Lats[0])
	return geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
}
