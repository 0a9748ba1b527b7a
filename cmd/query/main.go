package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/akhenakh/tzgrid"
)

func main() {
	dbFile := flag.String("db", "tzdata.db", "Artifact DB file path")
	lat := flag.Float64("lat", 0.0, "Latitude")
	lng := flag.Float64("lng", 0.0, "Longitude")
	force := flag.Bool("force", false, "Fall back to the nearest zone in the same 1-degree cell")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	start := time.Now()
	engine, err := tzgrid.Open(*dbFile, tzgrid.Options{ForceTZ: *force})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open artifacts")
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("engine loaded")

	start = time.Now()
	var zone string
	if *force {
		zone, err = engine.TzNameAtForce(*lat, *lng)
	} else {
		zone, err = engine.TzNameAt(*lat, *lng)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("query failed")
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("query done")

	if zone == "" {
		fmt.Println("no timezone found")
		return
	}
	fmt.Println(zone)
}
