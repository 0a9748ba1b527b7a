package main

import (
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/akhenakh/tzgrid"
)

func main() {
	inputFile := flag.String("in", "tz_world.json.gz", "Input GeoJSON file (plain or gzip)")
	dbFile := flag.String("db", "tzdata.db", "Output artifact DB file")
	lenient := flag.Bool("lenient", false, "Skip malformed features instead of failing")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	start := time.Now()
	stats, err := tzgrid.BuildFile(*inputFile, *dbFile, tzgrid.BuildOptions{Strict: !*lenient})
	if err != nil {
		log.Fatal().Err(err).Msg("build failed")
	}

	meta, err := tzgrid.ReadMeta(*dbFile)
	if err != nil {
		log.Fatal().Err(err).Msg("reading back artifact meta failed")
	}

	log.Info().
		Int("features", stats.Features).
		Int("non_polygons", stats.NonPolygons).
		Int("rejected", stats.Rejected).
		Int("zones", stats.Zones).
		Int("polygons", stats.Polygons).
		Int("vertices", stats.Vertices).
		Str("dataset_id", meta.DatasetID.String()).
		Dur("elapsed", time.Since(start)).
		Msg("artifacts built")
}
