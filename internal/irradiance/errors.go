package irradiance

import "errors"

var (
	// ErrNotFound is returned for unknown departments, municipalities or locations.
	ErrNotFound = errors.New("not found")

	// ErrInvalidMonth is returned when a month bound is not a canonical month name.
	ErrInvalidMonth = errors.New("invalid month")

	// ErrInvalidRange is returned when the start month comes after the end month.
	ErrInvalidRange = errors.New("invalid month range")

	// ErrNoData is returned when a valid entity has nothing left after filtering.
	ErrNoData = errors.New("no data")

	// ErrNoHistoricalData is returned when no readings exist for the requested
	// historical years.
	ErrNoHistoricalData = errors.New("no historical data")

	// ErrForecastUnavailable wraps any failure of the forecast gateway.
	ErrForecastUnavailable = errors.New("forecast unavailable")
)
