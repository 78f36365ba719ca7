package store

import (
	"github.com/i474232898/ghi-aggregation/internal/irradiance"
)

// Open returns the store selected by driver: "memory", "sqlite" or "postgres".
func Open(driver, dsn string) (irradiance.Store, error) {
	if driver == "memory" {
		return NewMemoryStore(), nil
	}
	return OpenGorm(driver, dsn)
}
