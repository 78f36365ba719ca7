// Command ghi-ingest runs a single ingestion of the municipality feed and
// prints the run report as JSON.
//
// Usage:
//
//	go run ./cmd/ghi-ingest -csv data/municipios.csv
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/i474232898/ghi-aggregation/internal/config"
	"github.com/i474232898/ghi-aggregation/internal/ingest"
	"github.com/i474232898/ghi-aggregation/internal/irradiance/providers"
	"github.com/i474232898/ghi-aggregation/internal/observability"
	"github.com/i474232898/ghi-aggregation/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	csvPath := flag.String("csv", cfg.IngestCSVPath, "path to the municipality CSV feed")
	flag.Parse()

	if *csvPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	os.Exit(run(cfg, *csvPath))
}

func run(cfg *config.AppConfig, csvPath string) int {
	logg := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	st, err := store.Open(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		logg.Error("failed to open store", "driver", cfg.DBDriver, "error", err)
		return 1
	}
	defer st.Close()

	climate := providers.NewNASAPowerClient(
		&http.Client{Timeout: cfg.NASAPowerTimeout},
		cfg.NASAPowerBaseURL,
		cfg.NASAPowerStartYear,
		cfg.NASAPowerEndYear,
	)

	var geocoder ingest.Geocoder
	if cfg.GeocoderAPIKey != "" {
		geocoder = providers.NewGeocoder(cfg.GeocoderAPIKey, cfg.GeocoderCountry)
	}

	ingester := ingest.New(st, climate, geocoder, ingest.Options{
		RequestDelay: cfg.IngestRequestDelay,
		Concurrency:  cfg.IngestConcurrency,
	}, logg, observability.NewMetrics())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := ingester.IngestFile(ctx, csvPath)
	if err != nil {
		logg.Error("ingestion failed", "error", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logg.Error("failed to write report", "error", err)
		return 1
	}
	return 0
}
