package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type AppConfig struct {
	Port            string        `envconfig:"PORT" default:"8080" validate:"required,numeric"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn warning error"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json text"`

	// Storage. DatabaseURL is a file path for sqlite and a DSN for postgres.
	DBDriver    string `envconfig:"DB_DRIVER" default:"sqlite" validate:"oneof=sqlite postgres memory"`
	DatabaseURL string `envconfig:"DATABASE_URL" default:"ghi.db"`

	// NASA POWER climate API.
	NASAPowerBaseURL   string        `envconfig:"NASA_POWER_BASE_URL" default:"https://power.larc.nasa.gov" validate:"url"`
	NASAPowerTimeout   time.Duration `envconfig:"NASA_POWER_TIMEOUT" default:"30s"`
	NASAPowerStartYear int           `envconfig:"NASA_POWER_START_YEAR" default:"2019" validate:"gte=1981"`
	NASAPowerEndYear   int           `envconfig:"NASA_POWER_END_YEAR" default:"2023" validate:"gtefield=NASAPowerStartYear"`

	// HistoricalYears is the default forecast input window.
	HistoricalYears []int `envconfig:"HISTORICAL_YEARS" default:"2019,2020,2021,2022,2023" validate:"min=1"`

	// Ingestion. An empty IngestCSVPath disables scheduled and on-demand runs.
	IngestCSVPath      string        `envconfig:"INGEST_CSV_PATH"`
	IngestInterval     time.Duration `envconfig:"INGEST_INTERVAL" default:"24h"`
	IngestTimeout      time.Duration `envconfig:"INGEST_TIMEOUT" default:"1h" validate:"gt=0"`
	IngestRequestDelay time.Duration `envconfig:"INGEST_REQUEST_DELAY" default:"1s"`
	IngestConcurrency  int           `envconfig:"INGEST_CONCURRENCY" default:"4" validate:"gte=1,lte=64"`

	// Forecasting.
	ForecastProvider string        `envconfig:"FORECAST_PROVIDER" default:"climatology" validate:"oneof=gemini climatology"`
	GeminiAPIKey     string        `envconfig:"GEMINI_API_KEY"`
	GeminiModel      string        `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash"`
	GeminiBaseURL    string        `envconfig:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com" validate:"url"`
	ForecastTimeout  time.Duration `envconfig:"FORECAST_TIMEOUT" default:"60s"`

	// GeocoderAPIKey enables geocoding of feed rows without coordinates.
	GeocoderAPIKey  string `envconfig:"GEOCODER_API_KEY"`
	GeocoderCountry string `envconfig:"GEOCODER_COUNTRY" default:"Colombia"`
}

// Load reads configuration from the environment, after loading a .env file
// if one exists. Variables already set in the environment win over .env.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
	return fromEnv()
}

func fromEnv() (*AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.check(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// check covers the rules that span several fields.
func (c *AppConfig) check() error {
	if c.ForecastProvider == "gemini" && c.GeminiAPIKey == "" {
		return errors.New("GEMINI_API_KEY is required when FORECAST_PROVIDER=gemini")
	}
	if c.DBDriver != "memory" && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for DB_DRIVER=%s", c.DBDriver)
	}
	return nil
}
