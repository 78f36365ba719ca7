package irradiance

import (
	"context"
)

// Reader is the read side of the reading store. Lists are ordered by ID and
// municipality readings are grouped by location.
type Reader interface {
	Departments(ctx context.Context) ([]Department, error)
	Department(ctx context.Context, id uint) (Department, error)
	DepartmentByName(ctx context.Context, name string) (Department, error)
	Municipalities(ctx context.Context, departmentID uint) ([]Municipality, error)
	Municipality(ctx context.Context, id uint) (Municipality, error)
	Locations(ctx context.Context, municipalityID uint) ([]Location, error)
	AllLocations(ctx context.Context) ([]Location, error)
	ReadingsForLocation(ctx context.Context, locationID uint) ([]Reading, error)

	// ReadingsForMunicipality joins the readings of every location of the
	// municipality. A nil year returns all years.
	ReadingsForMunicipality(ctx context.Context, municipalityID uint, year *int) ([]Reading, error)
}

// Store is the contract the in-memory and relational reading stores satisfy.
type Store interface {
	Reader

	// View runs fn against a consistent read unit that is released when fn
	// returns.
	View(ctx context.Context, fn func(Reader) error) error

	// EnsureDepartment, EnsureMunicipality and EnsureLocation return the
	// existing entity or create it. They are safe to call concurrently.
	EnsureDepartment(ctx context.Context, name string) (Department, error)
	EnsureMunicipality(ctx context.Context, departmentID uint, name string) (Municipality, error)
	EnsureLocation(ctx context.Context, municipalityID uint, lat, lon float64) (Location, error)

	// UpsertIfAbsent stores r unless a reading with the same location, month
	// and year exists. It reports whether an insert happened.
	UpsertIfAbsent(ctx context.Context, r Reading) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}

// ForecastRequest is the payload handed to a ForecastGateway.
type ForecastRequest struct {
	Municipality string            `json:"municipality"`
	History      []HistoricalPoint `json:"history"`
	TargetYear   int               `json:"target_year"`
	Months       []Month           `json:"months"`
}

// Prediction is a gateway answer: one point per requested month plus
// optional method metadata.
type Prediction struct {
	Points      []MonthValue `json:"points"`
	Method      string       `json:"method,omitempty"`
	ErrorMargin float64      `json:"error_margin_kwh,omitempty"`
	Notes       string       `json:"notes,omitempty"`
}

// ForecastGateway abstracts the forecasting backend (an LLM, a statistical
// model). Implementations own their timeouts and retries.
type ForecastGateway interface {
	Name() string
	Forecast(ctx context.Context, req ForecastRequest) (Prediction, error)
}
