// Package ingest loads the municipality feed into the reading store: each row
// resolves its department, municipality and location, then fetches the
// monthly GHI series of the point and stores every month not already present.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/ghi-aggregation/internal/irradiance"
	"github.com/i474232898/ghi-aggregation/internal/observability"
)

// ErrAlreadyRunning is returned when a run is requested while another one is
// in progress.
var ErrAlreadyRunning = errors.New("ingest: a run is already in progress")

// ClimateSource returns the monthly series of a point keyed "YYYYMM", in MJ/m²/day.
type ClimateSource interface {
	MonthlySeries(ctx context.Context, lat, lon float64) (map[string]float64, error)
}

// Geocoder resolves rows without coordinates.
type Geocoder interface {
	Locate(ctx context.Context, municipality, department string) (lat, lon float64, err error)
}

// Options tunes an Ingester. Zero values select the defaults.
type Options struct {
	// RequestDelay is the minimum spacing between climate requests.
	RequestDelay time.Duration
	// Concurrency bounds the rows processed at once.
	Concurrency int
	Clock       clockwork.Clock
}

// Report summarizes one ingestion run.
type Report struct {
	RunID      uuid.UUID `json:"run_id"`
	Source     string    `json:"source"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Rows     int `json:"rows"`
	Dropped  int `json:"dropped_rows"`
	Geocoded int `json:"geocoded_rows"`
	Failed   int `json:"failed_rows"`
	Inserted int `json:"inserted_readings"`
	Skipped  int `json:"skipped_readings"`
	Ignored  int `json:"ignored_samples"`
}

// Ingester runs ingestion against a store. A single Ingester never runs two
// ingestions at once.
type Ingester struct {
	store       irradiance.Store
	climate     ClimateSource
	geocoder    Geocoder
	pacer       *Pacer
	concurrency int
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *observability.Metrics

	running atomic.Bool
}

// New creates an Ingester. geocoder may be nil, in which case rows without
// coordinates are dropped.
func New(store irradiance.Store, climate ClimateSource, geocoder Geocoder, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Ingester {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Ingester{
		store:       store,
		climate:     climate,
		geocoder:    geocoder,
		pacer:       NewPacer(opts.Clock, opts.RequestDelay),
		concurrency: opts.Concurrency,
		clock:       opts.Clock,
		logger:      logger,
		metrics:     metrics,
	}
}

// IngestFile runs ingestion over the CSV feed at path.
func (in *Ingester) IngestFile(ctx context.Context, path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("ingest: open feed: %w", err)
	}
	defer f.Close()
	return in.Ingest(ctx, path, f)
}

// Ingest runs ingestion over a CSV feed. Row failures are logged and counted
// without stopping the run; only an unreadable feed or a cancelled context
// fail it.
func (in *Ingester) Ingest(ctx context.Context, source string, feed io.Reader) (Report, error) {
	if !in.running.CompareAndSwap(false, true) {
		return Report{}, ErrAlreadyRunning
	}
	defer in.running.Store(false)

	in.metrics.IngestionRunning.Set(1)
	defer in.metrics.IngestionRunning.Set(0)

	report := Report{RunID: uuid.New(), Source: source, StartedAt: in.clock.Now().UTC()}
	logger := in.logger.With("run_id", report.RunID.String())

	rows, dropped, err := ReadRows(feed)
	if err != nil {
		in.metrics.IngestionRuns.WithLabelValues("error").Inc()
		return Report{}, err
	}
	report.Rows = len(rows)
	report.Dropped = dropped
	in.metrics.IngestedRows.WithLabelValues("dropped").Add(float64(dropped))
	logger.Info("ingestion started", "source", source, "rows", len(rows), "dropped", dropped)

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(in.concurrency)

	for _, row := range rows {
		g.Go(func() error {
			res, err := in.ingestRow(gCtx, row)

			mu.Lock()
			defer mu.Unlock()
			if res.geocoded {
				report.Geocoded++
			}
			report.Inserted += res.inserted
			report.Skipped += res.skipped
			report.Ignored += res.ignored

			if err != nil {
				// Cancellation stops the run; anything else only fails the row.
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				report.Failed++
				in.metrics.IngestedRows.WithLabelValues("failed").Inc()
				logger.Warn("row failed", "municipality", row.Municipality, "department", row.Department, "error", err)
				return nil
			}
			in.metrics.IngestedRows.WithLabelValues("processed").Inc()
			return nil
		})
	}

	err = g.Wait()
	report.FinishedAt = in.clock.Now().UTC()
	if err != nil {
		in.metrics.IngestionRuns.WithLabelValues("error").Inc()
		logger.Warn("ingestion aborted", "error", err)
		return report, err
	}

	in.metrics.IngestionRuns.WithLabelValues("success").Inc()
	logger.Info("ingestion finished",
		"rows", report.Rows,
		"failed", report.Failed,
		"inserted", report.Inserted,
		"skipped", report.Skipped,
		"duration", report.FinishedAt.Sub(report.StartedAt).String(),
	)
	return report, nil
}

type rowResult struct {
	geocoded bool
	inserted int
	skipped  int
	ignored  int
}

func (in *Ingester) ingestRow(ctx context.Context, row Row) (rowResult, error) {
	var res rowResult

	if !row.HasCoordinates {
		if in.geocoder == nil {
			return res, errors.New("row has no coordinates and no geocoder is configured")
		}
		lat, lon, err := in.geocoder.Locate(ctx, row.Municipality, row.Department)
		if err != nil {
			return res, err
		}
		row.Latitude, row.Longitude, row.HasCoordinates = lat, lon, true
		res.geocoded = true
	}

	dept, err := in.store.EnsureDepartment(ctx, row.Department)
	if err != nil {
		return res, err
	}
	mun, err := in.store.EnsureMunicipality(ctx, dept.ID, row.Municipality)
	if err != nil {
		return res, err
	}
	loc, err := in.store.EnsureLocation(ctx, mun.ID, row.Latitude, row.Longitude)
	if err != nil {
		return res, err
	}

	series, err := in.fetch(ctx, loc)
	if err != nil {
		return res, err
	}

	readings, ignored := samplesFromSeries(loc.ID, series)
	res.ignored = ignored

	for _, r := range readings {
		inserted, err := in.store.UpsertIfAbsent(ctx, r)
		if err != nil {
			return res, err
		}
		if inserted {
			res.inserted++
			in.metrics.Readings.WithLabelValues("inserted").Inc()
		} else {
			res.skipped++
			in.metrics.Readings.WithLabelValues("skipped").Inc()
		}
	}
	return res, nil
}

func (in *Ingester) fetch(ctx context.Context, loc irradiance.Location) (map[string]float64, error) {
	if err := in.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	start := in.clock.Now()
	series, err := in.climate.MonthlySeries(ctx, loc.Latitude, loc.Longitude)
	in.metrics.ClimateAPIDuration.Observe(in.clock.Since(start).Seconds())

	switch {
	case err != nil:
		in.metrics.ClimateRequests.WithLabelValues("error").Inc()
		return nil, err
	case len(series) == 0:
		in.metrics.ClimateRequests.WithLabelValues("empty").Inc()
		return nil, fmt.Errorf("no GHI values for (%v, %v)", loc.Latitude, loc.Longitude)
	}
	in.metrics.ClimateRequests.WithLabelValues("success").Inc()
	return series, nil
}

// samplesFromSeries converts a "YYYYMM" keyed series into readings. Keys that
// do not name a known month are counted as ignored.
func samplesFromSeries(locationID uint, series map[string]float64) ([]irradiance.Reading, int) {
	keys := make([]string, 0, len(series))
	for key := range series {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	readings := make([]irradiance.Reading, 0, len(series))
	ignored := 0
	for _, key := range keys {
		if len(key) != 6 {
			ignored++
			continue
		}
		year, err := strconv.Atoi(key[:4])
		if err != nil {
			ignored++
			continue
		}
		month, ok := irradiance.MonthFromCode(key[4:])
		if !ok {
			ignored++
			continue
		}
		readings = append(readings, irradiance.NewReading(locationID, month, year, series[key]))
	}
	return readings, ignored
}
