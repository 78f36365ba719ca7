package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpapi "github.com/i474232898/ghi-aggregation/internal/api/http"
	"github.com/i474232898/ghi-aggregation/internal/config"
	"github.com/i474232898/ghi-aggregation/internal/ingest"
	"github.com/i474232898/ghi-aggregation/internal/irradiance"
	"github.com/i474232898/ghi-aggregation/internal/irradiance/providers"
	"github.com/i474232898/ghi-aggregation/internal/observability"
	"github.com/i474232898/ghi-aggregation/internal/scheduler"
	"github.com/i474232898/ghi-aggregation/internal/store"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logg := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	st, err := store.Open(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		logg.Error("failed to open store", "driver", cfg.DBDriver, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// Forecast gateway with resilience (backoff + circuit breaker).
	var gateway irradiance.ForecastGateway
	switch cfg.ForecastProvider {
	case "gemini":
		gateway, err = providers.NewGeminiGateway(context.Background(), &http.Client{Timeout: cfg.ForecastTimeout}, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL)
		if err != nil {
			logg.Error("failed to create forecast gateway", "error", err)
			os.Exit(1)
		}
	default:
		gateway = providers.NewClimatologyGateway()
	}

	// Core service orchestrating store and gateway.
	service := irradiance.NewService(st, gateway, cfg.HistoricalYears, logg, metrics)

	var runIngestion httpapi.IngestionFunc
	if cfg.IngestCSVPath != "" {
		ingester := newIngester(cfg, st, logg, metrics)
		runIngestion = func(ctx context.Context) (ingest.Report, error) {
			return ingester.IngestFile(ctx, cfg.IngestCSVPath)
		}

		// Scheduler that periodically re-ingests the feed.
		sched := scheduler.New(ingester, cfg.IngestCSVPath, cfg.IngestInterval, cfg.IngestTimeout, logg)
		if err := sched.Start(); err != nil {
			logg.Error("failed to start scheduler", "error", err)
			os.Exit(1)
		}
		defer sched.Stop()
	}

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "ghi-aggregation",
		DisableStartupMessage: true,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if status, _ := httpapi.Classify(err); status >= fiber.StatusInternalServerError {
				logg.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
			}
			return httpapi.ErrorHandler(c, err)
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "ghi-aggregation",
		})
	})

	app.Get("/readyz", func(c *fiber.Ctx) error {
		if err := st.Ping(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
				"error":  err.Error(),
			})
		}
		return c.JSON(fiber.Map{"status": "ready"})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API routes.
	httpapi.RegisterRoutes(app, service, runIngestion)

	go func() {
		logg.Info("listening", "port", cfg.Port, "store", cfg.DBDriver, "forecast", gateway.Name())
		if err := app.Listen(":" + cfg.Port); err != nil {
			logg.Error("fiber server stopped", "error", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Error("error during shutdown", "error", err)
	}
}

func newIngester(cfg *config.AppConfig, st irradiance.Store, logg *slog.Logger, metrics *observability.Metrics) *ingest.Ingester {
	climate := providers.NewNASAPowerClient(
		&http.Client{Timeout: cfg.NASAPowerTimeout},
		cfg.NASAPowerBaseURL,
		cfg.NASAPowerStartYear,
		cfg.NASAPowerEndYear,
	)

	// Rows without coordinates need a Google API key to be geocoded.
	var geocoder ingest.Geocoder
	if cfg.GeocoderAPIKey != "" {
		geocoder = providers.NewGeocoder(cfg.GeocoderAPIKey, cfg.GeocoderCountry)
	}

	return ingest.New(st, climate, geocoder, ingest.Options{
		RequestDelay: cfg.IngestRequestDelay,
		Concurrency:  cfg.IngestConcurrency,
	}, logg, metrics)
}
