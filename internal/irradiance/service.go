package irradiance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/i474232898/ghi-aggregation/internal/accuracy"
	"github.com/i474232898/ghi-aggregation/internal/observability"
)

// Service answers the aggregation queries. Reads for one query run inside a
// single store View; gateway calls happen after the View is released.
type Service struct {
	store           Store
	gateway         ForecastGateway
	historicalYears []int
	logger          *slog.Logger
	metrics         *observability.Metrics
}

// NewService creates a new Service. gateway may be nil, in which case
// forecasts fail with ErrForecastUnavailable.
func NewService(store Store, gateway ForecastGateway, historicalYears []int, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		store:           store,
		gateway:         gateway,
		historicalYears: historicalYears,
		logger:          logger,
		metrics:         metrics,
	}
}

// ForecastResult is the historical input together with the gateway answer.
type ForecastResult struct {
	Municipality Municipality      `json:"municipality"`
	TargetYear   int               `json:"target_year"`
	Months       []Month           `json:"months"`
	History      []HistoricalPoint `json:"history"`
	Prediction   Prediction        `json:"prediction"`
	Gateway      string            `json:"gateway"`
}

// Evaluation compares a predicted series with the stored one for a municipality.
type Evaluation struct {
	Municipality Municipality    `json:"municipality"`
	Year         int             `json:"year"`
	Months       []Month         `json:"months"`
	Actual       []float64       `json:"actual"`
	Predicted    []float64       `json:"predicted"`
	Metrics      accuracy.Result `json:"metrics"`
}

// MunicipalityPrediction is the predicted series posted for one municipality.
type MunicipalityPrediction struct {
	MunicipalityID uint         `json:"municipality_id" validate:"required"`
	Predictions    []MonthValue `json:"predictions" validate:"required,min=1,dive"`
}

// DepartmentEvaluation is the per-municipality report and its average.
type DepartmentEvaluation struct {
	Department Department              `json:"department"`
	Year       int                     `json:"year"`
	Results    []accuracy.EntityResult `json:"results"`
	Excluded   []uint                  `json:"excluded_municipalities,omitempty"`
	Summary    accuracy.Summary        `json:"summary"`
}

// Departments lists every department.
func (s *Service) Departments(ctx context.Context) ([]Department, error) {
	return s.store.Departments(ctx)
}

// DepartmentByName finds a department by its exact stored name.
func (s *Service) DepartmentByName(ctx context.Context, name string) (Department, error) {
	return s.store.DepartmentByName(ctx, strings.TrimSpace(name))
}

// Municipalities lists the municipalities of a department.
func (s *Service) Municipalities(ctx context.Context, departmentID uint) ([]Municipality, error) {
	var out []Municipality
	err := s.store.View(ctx, func(r Reader) error {
		if _, err := r.Department(ctx, departmentID); err != nil {
			return err
		}
		var err error
		out, err = r.Municipalities(ctx, departmentID)
		return err
	})
	return out, err
}

// LocationAnnualFigures returns the annual average of every location that has
// monthly data for year. Locations without data are skipped.
func (s *Service) LocationAnnualFigures(ctx context.Context, year int) ([]LocationAnnual, error) {
	var out []LocationAnnual
	err := s.store.View(ctx, func(r Reader) error {
		locations, err := r.AllLocations(ctx)
		if err != nil {
			return err
		}

		names := make(map[uint]string)
		for _, loc := range locations {
			readings, err := r.ReadingsForLocation(ctx, loc.ID)
			if err != nil {
				return err
			}
			avg, err := AnnualAverage(readings, year)
			if errors.Is(err, ErrNoData) {
				continue
			}
			if err != nil {
				return err
			}

			name, ok := names[loc.MunicipalityID]
			if !ok {
				m, err := r.Municipality(ctx, loc.MunicipalityID)
				if err != nil {
					return err
				}
				name = m.Name
				names[loc.MunicipalityID] = name
			}

			figure := LocationAnnual{
				LocationID:   loc.ID,
				Municipality: name,
				Latitude:     loc.Latitude,
				Longitude:    loc.Longitude,
				AverageKWh:   avg,
			}
			if v, ok := AnnualMarkerValue(readings, year); ok {
				figure.ReportedKWh = &v
			}
			out = append(out, figure)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no location has readings for %d", ErrNoData, year)
	}
	return out, nil
}

// DepartmentRollup returns the per-municipality statistics of a department for year.
func (s *Service) DepartmentRollup(ctx context.Context, departmentID uint, year int) ([]MunicipalityStats, error) {
	var groups []MunicipalityReadings
	err := s.store.View(ctx, func(r Reader) error {
		if _, err := r.Department(ctx, departmentID); err != nil {
			return err
		}
		municipalities, err := r.Municipalities(ctx, departmentID)
		if err != nil {
			return err
		}
		for _, m := range municipalities {
			group, err := loadMunicipality(ctx, r, m)
			if err != nil {
				return err
			}
			groups = append(groups, group)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stats := DepartmentRollup(groups, year)
	if len(stats) == 0 {
		return nil, fmt.Errorf("%w: department %d has no readings for %d", ErrNoData, departmentID, year)
	}
	return stats, nil
}

func loadMunicipality(ctx context.Context, r Reader, m Municipality) (MunicipalityReadings, error) {
	locations, err := r.Locations(ctx, m.ID)
	if err != nil {
		return MunicipalityReadings{}, err
	}
	group := MunicipalityReadings{Municipality: m, Locations: make([]LocationReadings, 0, len(locations))}
	for _, loc := range locations {
		readings, err := r.ReadingsForLocation(ctx, loc.ID)
		if err != nil {
			return MunicipalityReadings{}, err
		}
		group.Locations = append(group.Locations, LocationReadings{Location: loc, Readings: readings})
	}
	return group, nil
}

// MonthRange returns the readings of a municipality between two months of year.
func (s *Service) MonthRange(ctx context.Context, municipalityID uint, start, end string, year int) ([]MonthValue, error) {
	if _, err := MonthsBetween(start, end); err != nil {
		return nil, err
	}

	var readings []Reading
	err := s.store.View(ctx, func(r Reader) error {
		if _, err := r.Municipality(ctx, municipalityID); err != nil {
			return err
		}
		var err error
		readings, err = r.ReadingsForMunicipality(ctx, municipalityID, &year)
		return err
	})
	if err != nil {
		return nil, err
	}
	return MonthRange(readings, start, end, year)
}

// HistoricalSeries assembles the forecast input of a municipality. An empty
// years slice falls back to the configured historical years.
func (s *Service) HistoricalSeries(ctx context.Context, municipalityID uint, years []int) ([]HistoricalPoint, error) {
	_, series, err := s.historical(ctx, municipalityID, years)
	return series, err
}

func (s *Service) historical(ctx context.Context, municipalityID uint, years []int) (Municipality, []HistoricalPoint, error) {
	if len(years) == 0 {
		years = s.historicalYears
	}

	var (
		mun      Municipality
		readings []Reading
	)
	err := s.store.View(ctx, func(r Reader) error {
		var err error
		if mun, err = r.Municipality(ctx, municipalityID); err != nil {
			return err
		}
		readings, err = r.ReadingsForMunicipality(ctx, municipalityID, nil)
		return err
	})
	if err != nil {
		return Municipality{}, nil, err
	}

	series, err := HistoricalSeries(readings, years)
	if err != nil {
		return Municipality{}, nil, err
	}
	return mun, series, nil
}

// Forecast asks the gateway for the months between start and end of targetYear,
// using the municipality's historical series as input. Gateway failures and
// answers that do not cover exactly the requested months are reported as
// ErrForecastUnavailable.
func (s *Service) Forecast(ctx context.Context, municipalityID uint, targetYear int, start, end string) (ForecastResult, error) {
	months, err := MonthsBetween(start, end)
	if err != nil {
		return ForecastResult{}, err
	}

	mun, history, err := s.historical(ctx, municipalityID, nil)
	if err != nil {
		return ForecastResult{}, err
	}

	if s.gateway == nil {
		return ForecastResult{}, fmt.Errorf("%w: no forecast gateway configured", ErrForecastUnavailable)
	}
	gateway := s.gateway.Name()

	prediction, err := s.gateway.Forecast(ctx, ForecastRequest{
		Municipality: mun.Name,
		History:      history,
		TargetYear:   targetYear,
		Months:       months,
	})
	if err == nil {
		prediction.Points, err = coverage(prediction.Points, months)
	}
	if err != nil {
		s.metrics.ForecastRequests.WithLabelValues(gateway, "error").Inc()
		s.logger.Warn("forecast failed", "gateway", gateway, "municipality", mun.Name, "error", err)
		return ForecastResult{}, fmt.Errorf("%w: %w", ErrForecastUnavailable, err)
	}
	s.metrics.ForecastRequests.WithLabelValues(gateway, "success").Inc()

	return ForecastResult{
		Municipality: mun,
		TargetYear:   targetYear,
		Months:       months,
		History:      history,
		Prediction:   prediction,
		Gateway:      gateway,
	}, nil
}

// coverage checks that points hold exactly one value per requested month and
// returns them in canonical order.
func coverage(points []MonthValue, months []Month) ([]MonthValue, error) {
	if len(points) != len(months) {
		return nil, fmt.Errorf("expected %d points, got %d", len(months), len(points))
	}
	want := make(map[Month]bool, len(months))
	for _, m := range months {
		want[m] = true
	}
	seen := make(map[Month]bool, len(points))
	out := make([]MonthValue, 0, len(points))
	for _, p := range points {
		m, err := ParseMonth(string(p.Month))
		if err != nil {
			return nil, err
		}
		if !want[m] || seen[m] {
			return nil, fmt.Errorf("unexpected or repeated month %s", m)
		}
		seen[m] = true
		out = append(out, MonthValue{Month: m, ValueKWh: p.ValueKWh})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Month.Index() < out[j].Month.Index() })
	return out, nil
}

// Evaluate scores predicted against the stored readings of year. The stored
// series covers the span of the predicted months and both sides are aligned
// by month before scoring.
func (s *Service) Evaluate(ctx context.Context, municipalityID uint, year int, predicted []MonthValue) (Evaluation, error) {
	var mun Municipality
	var readings []Reading
	err := s.store.View(ctx, func(r Reader) error {
		var err error
		if mun, err = r.Municipality(ctx, municipalityID); err != nil {
			return err
		}
		readings, err = r.ReadingsForMunicipality(ctx, municipalityID, &year)
		return err
	})
	if err != nil {
		return Evaluation{}, err
	}
	return evaluate(mun, readings, year, predicted)
}

func evaluate(mun Municipality, readings []Reading, year int, predicted []MonthValue) (Evaluation, error) {
	if len(predicted) == 0 {
		return Evaluation{}, fmt.Errorf("%w: empty prediction", accuracy.ErrLengthMismatch)
	}

	normalized := make([]MonthValue, len(predicted))
	lo, hi := len(Months), -1
	for i, p := range predicted {
		m, err := ParseMonth(string(p.Month))
		if err != nil {
			return Evaluation{}, err
		}
		normalized[i] = MonthValue{Month: m, ValueKWh: p.ValueKWh}
		lo, hi = min(lo, m.Index()), max(hi, m.Index())
	}

	actual, err := MonthRange(readings, string(Months[lo]), string(Months[hi]), year)
	if err != nil {
		return Evaluation{}, err
	}

	months, actualVals, predVals := AlignByMonth(actual, normalized)
	if len(months) == 0 {
		return Evaluation{}, fmt.Errorf("%w: no predicted month has readings in %d", ErrNoData, year)
	}

	metrics, err := accuracy.Evaluate(actualVals, predVals)
	if err != nil {
		return Evaluation{}, err
	}

	return Evaluation{
		Municipality: mun,
		Year:         year,
		Months:       months,
		Actual:       actualVals,
		Predicted:    predVals,
		Metrics:      metrics,
	}, nil
}

// EvaluateDepartment evaluates each posted municipality of a department and
// averages the metrics. Municipalities with nothing to align against are
// listed as excluded and left out of the average.
func (s *Service) EvaluateDepartment(ctx context.Context, departmentID uint, year int, predictions []MunicipalityPrediction) (DepartmentEvaluation, error) {
	var (
		dept     Department
		members  = make(map[uint]Municipality)
		readings = make(map[uint][]Reading)
	)
	err := s.store.View(ctx, func(r Reader) error {
		var err error
		if dept, err = r.Department(ctx, departmentID); err != nil {
			return err
		}
		municipalities, err := r.Municipalities(ctx, departmentID)
		if err != nil {
			return err
		}
		for _, m := range municipalities {
			members[m.ID] = m
		}
		for _, p := range predictions {
			if _, ok := members[p.MunicipalityID]; !ok {
				return fmt.Errorf("%w: municipality %d in department %d", ErrNotFound, p.MunicipalityID, departmentID)
			}
			rs, err := r.ReadingsForMunicipality(ctx, p.MunicipalityID, &year)
			if err != nil {
				return err
			}
			readings[p.MunicipalityID] = rs
		}
		return nil
	})
	if err != nil {
		return DepartmentEvaluation{}, err
	}

	report := DepartmentEvaluation{Department: dept, Year: year}
	for _, p := range predictions {
		mun := members[p.MunicipalityID]
		ev, err := evaluate(mun, readings[p.MunicipalityID], year, p.Predictions)
		if errors.Is(err, ErrNoData) {
			s.logger.Debug("municipality excluded from evaluation", "municipality", mun.Name, "year", year)
			report.Excluded = append(report.Excluded, mun.ID)
			continue
		}
		if err != nil {
			return DepartmentEvaluation{}, fmt.Errorf("municipality %s: %w", mun.Name, err)
		}
		report.Results = append(report.Results, accuracy.EntityResult{
			ID:      mun.ID,
			Name:    mun.Name,
			Points:  len(ev.Months),
			Metrics: ev.Metrics,
		})
	}

	if len(report.Results) == 0 {
		return DepartmentEvaluation{}, fmt.Errorf("%w: no municipality could be evaluated for %d", ErrNoData, year)
	}
	report.Summary = accuracy.Summarize(report.Results)
	return report, nil
}
