package tzgrid

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func closedBox(minLng, minLat, maxLng, maxLat float64) [][]float64 {
	return [][]float64{
		{minLng, minLat}, {maxLng, minLat}, {maxLng, maxLat}, {minLng, maxLat}, {minLng, minLat},
	}
}

func feature(tzid string, rings ...[][]float64) map[string]any {
	return map[string]any{
		"type":       "Feature",
		"properties": map[string]any{"TZID": tzid},
		"geometry": map[string]any{
			"type":        "Polygon",
			"coordinates": rings,
		},
	}
}

func collection(t *testing.T, features ...map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"type":     "FeatureCollection",
		"features": features,
	})
	require.NoError(t, err)
	return data
}

// testCollection mirrors the synthetic world of testZones as GeoJSON input.
func testCollection(t *testing.T) []byte {
	return collection(t,
		feature("Band/A", closedBox(10.0, 10.0, 10.4, 10.9)),
		feature("Band/B", closedBox(10.6, 10.0, 10.9, 10.9)),
		feature("Outer/Zone", closedBox(20.0, 20.0, 20.9, 20.9), closedBox(20.3, 20.3, 20.6, 20.6)),
		feature("Inner/Zone", closedBox(20.35, 20.35, 20.55, 20.55)),
		feature("Neg/Zone", closedBox(-0.5, -0.5, 0.5, 0.5)),
		feature("Lone/Zone", closedBox(30.0, 30.0, 30.2, 30.2)),
	)
}

func buildToTemp(t *testing.T, data []byte, opts BuildOptions) (string, BuildStats) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tz.db")
	stats, err := Build(bytes.NewReader(data), path, opts)
	require.NoError(t, err)
	return path, stats
}

func TestBuildAndOpen(t *testing.T) {
	path, stats := buildToTemp(t, testCollection(t), BuildOptions{Strict: true})
	require.Equal(t, 6, stats.Features)
	require.Equal(t, 6, stats.Zones)
	require.Equal(t, 6, stats.Polygons)
	require.Zero(t, stats.Rejected)

	engine, err := Open(path, Options{ForceTZ: true})
	require.NoError(t, err)

	got, err := engine.TzNameAt(10.5, 10.2)
	require.NoError(t, err)
	require.Equal(t, "Band/A", got)

	got, err = engine.TzNameAt(20.45, 20.45)
	require.NoError(t, err)
	require.Equal(t, "Inner/Zone", got)

	got, err = engine.TzNameAt(50.0, -150.0)
	require.NoError(t, err)
	require.Equal(t, "", got)

	got, err = engine.TzNameAtForce(10.5, 10.45)
	require.NoError(t, err)
	require.Equal(t, "Band/A", got)
}

func TestBuildGzipInput(t *testing.T) {
	plain := testCollection(t)

	var gzipped bytes.Buffer
	gw := gzip.NewWriter(&gzipped)
	_, err := gw.Write(plain)
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	plainPath, _ := buildToTemp(t, plain, BuildOptions{Strict: true})
	gzPath, _ := buildToTemp(t, gzipped.Bytes(), BuildOptions{Strict: true})

	plainMeta, err := ReadMeta(plainPath)
	require.NoError(t, err)
	gzMeta, err := ReadMeta(gzPath)
	require.NoError(t, err)

	// The fingerprint covers the decompressed bytes, so both inputs are
	// the same dataset.
	require.Equal(t, plainMeta.DatasetID, gzMeta.DatasetID)

	a, err := os.ReadFile(plainPath)
	require.NoError(t, err)
	b, err := os.ReadFile(gzPath)
	require.NoError(t, err)
	require.True(t, bytes.Equal(a, b))
}

func TestBuildDeterministic(t *testing.T) {
	data := testCollection(t)
	path1, _ := buildToTemp(t, data, BuildOptions{Strict: true})
	path2, _ := buildToTemp(t, data, BuildOptions{Strict: true})

	a, err := os.ReadFile(path1)
	require.NoError(t, err)
	b, err := os.ReadFile(path2)
	require.NoError(t, err)
	require.True(t, bytes.Equal(a, b), "artifact bytes differ between identical builds")
}

func TestBuildSkipsNonPolygonGeometries(t *testing.T) {
	data := collection(t,
		feature("Band/A", closedBox(10.0, 10.0, 10.4, 10.9)),
		map[string]any{
			"type":       "Feature",
			"properties": map[string]any{"TZID": "Multi/Zone"},
			"geometry": map[string]any{
				"type":        "MultiPolygon",
				"coordinates": [][][][]float64{{closedBox(0, 0, 1, 1)}},
			},
		},
		map[string]any{
			"type":       "Feature",
			"properties": map[string]any{"TZID": "Point/Zone"},
			"geometry": map[string]any{
				"type":        "Point",
				"coordinates": []float64{1, 1},
			},
		},
	)

	path, stats := buildToTemp(t, data, BuildOptions{Strict: true})
	require.Equal(t, 2, stats.NonPolygons)
	require.Equal(t, 1, stats.Zones)

	engine, err := Open(path, Options{})
	require.NoError(t, err)
	got, err := engine.TzNameAt(0.5, 0.5)
	require.NoError(t, err)
	require.Equal(t, "", got)
}

func TestBuildStrictRejections(t *testing.T) {
	cases := []struct {
		name string
		feat map[string]any
	}{
		{"missing TZID", feature("", closedBox(0, 0, 1, 1))},
		{"too few vertices", feature("Tiny/Zone", [][]float64{{0, 0}, {1, 1}, {0, 0}})},
		{"bad pair", feature("Pair/Zone", [][]float64{{0}, {1, 1}, {1, 0}, {0, 0}})},
		{"no rings", feature("Empty/Zone")},
		{"self-intersecting ring", feature("Bowtie/Zone",
			[][]float64{{0, 0}, {1, 1}, {1, 0}, {0, 1}, {0, 0}})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := collection(t, tc.feat)
			path := filepath.Join(t.TempDir(), "tz.db")

			_, err := Build(bytes.NewReader(data), path, BuildOptions{Strict: true})
			require.Error(t, err)
			var derr *DataError
			require.True(t, errors.As(err, &derr))

			// Lenient mode skips the feature instead.
			stats, err := Build(bytes.NewReader(data), path, BuildOptions{})
			require.NoError(t, err)
			require.Equal(t, 1, stats.Rejected)
			require.Zero(t, stats.Zones)
		})
	}
}

func TestBuildToleratesUnclosedRings(t *testing.T) {
	unclosed := [][]float64{{10.0, 10.0}, {10.4, 10.0}, {10.4, 10.9}, {10.0, 10.9}}
	data := collection(t, feature("Band/A", unclosed))

	path, stats := buildToTemp(t, data, BuildOptions{Strict: true})
	require.Equal(t, 1, stats.Polygons)
	require.Equal(t, 4, stats.Vertices)

	engine, err := Open(path, Options{})
	require.NoError(t, err)
	got, err := engine.TzNameAt(10.5, 10.2)
	require.NoError(t, err)
	require.Equal(t, "Band/A", got)
}

func TestBuildStablePolygonIndices(t *testing.T) {
	data := collection(t,
		feature("Split/Zone", closedBox(10.0, 10.0, 10.2, 10.2)),
		feature("Other/Zone", closedBox(40.0, 40.0, 40.5, 40.5)),
		feature("Split/Zone", closedBox(12.0, 12.0, 12.2, 12.2)),
	)
	path, _ := buildToTemp(t, data, BuildOptions{Strict: true})

	engine, err := Open(path, Options{})
	require.NoError(t, err)

	store := engine.Store()
	require.Equal(t, 2, store.PolygonCount("Split/Zone"))

	// Indices follow input feature order.
	require.Equal(t, 10.0, store.Polygon("Split/Zone", 0).MinLng)
	require.Equal(t, 12.0, store.Polygon("Split/Zone", 1).MinLng)
}

func TestRoundTripSameAnswers(t *testing.T) {
	zones := testZones()
	store := NewPolygonStore(zones)
	direct := NewEngine(store, BuildShortcuts(store), Options{ForceTZ: true})

	path := filepath.Join(t.TempDir(), "tz.db")
	meta := BuildMeta{FormatVersion: formatVersion}
	require.NoError(t, saveArtifacts(path, zones, BuildShortcuts(store), meta))

	loaded, err := Open(path, Options{ForceTZ: true})
	require.NoError(t, err)

	for lat := -1.0; lat < 32.0; lat += 0.31 {
		for lng := -1.0; lng < 32.0; lng += 0.31 {
			want, err := direct.TzNameAtForce(lat, lng)
			require.NoError(t, err)
			got, err := loaded.TzNameAtForce(lat, lng)
			require.NoError(t, err)
			require.Equal(t, want, got, "lat=%f lng=%f", lat, lng)
		}
	}
}

func TestEncodeDecodeZonePolygons(t *testing.T) {
	polys := []*Polygon{
		NewPolygon(boxRing(20.0, 20.0, 20.9, 20.9), []Ring{boxRing(20.3, 20.3, 20.6, 20.6)}),
		boxPolygon(-0.5, -0.5, 0.5, 0.5),
	}

	decoded, err := decodeZonePolygons(encodeZonePolygons(polys))
	require.NoError(t, err)
	require.Len(t, decoded, 2)

	for i, p := range polys {
		require.Equal(t, p.Exterior, decoded[i].Exterior)
		require.Equal(t, p.Holes, decoded[i].Holes)
		require.Equal(t, p.MinLng, decoded[i].MinLng)
		require.Equal(t, p.MaxLat, decoded[i].MaxLat)
	}
}

func TestEncodeDecodeCell(t *testing.T) {
	zm := map[string][]int{
		"B/Zone": {0, 3, 7},
		"A/Zone": {1},
	}
	decoded, err := decodeCell(encodeCell(zm))
	require.NoError(t, err)
	require.Equal(t, zm, decoded)
}

func TestCellKeyRoundTrip(t *testing.T) {
	for _, c := range []int{-180, -1, 0, 1, 89, 179} {
		require.Equal(t, c, cellFromKey(cellKey(c)))
	}
	// Keys sort like the cells they encode.
	require.Equal(t, -1, bytes.Compare(cellKey(-10), cellKey(3)))
	require.Equal(t, -1, bytes.Compare(cellKey(3), cellKey(4)))
}

func TestReadMeta(t *testing.T) {
	data := testCollection(t)
	path, stats := buildToTemp(t, data, BuildOptions{Strict: true})

	meta, err := ReadMeta(path)
	require.NoError(t, err)
	require.Equal(t, uint64(formatVersion), meta.FormatVersion)
	require.Equal(t, uint64(stats.Zones), meta.Zones)
	require.Equal(t, uint64(stats.Polygons), meta.Polygons)
	require.Equal(t, uint64(stats.Vertices), meta.Vertices)
	require.NotEqual(t, "00000000-0000-0000-0000-000000000000", meta.DatasetID.String())
}
