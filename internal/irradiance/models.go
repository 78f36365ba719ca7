package irradiance

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Month is a canonical Spanish month name as stored on a Reading.
type Month string

const (
	Enero      Month = "ENERO"
	Febrero    Month = "FEBRERO"
	Marzo      Month = "MARZO"
	Abril      Month = "ABRIL"
	Mayo       Month = "MAYO"
	Junio      Month = "JUNIO"
	Julio      Month = "JULIO"
	Agosto     Month = "AGOSTO"
	Septiembre Month = "SEPTIEMBRE"
	Octubre    Month = "OCTUBRE"
	Noviembre  Month = "NOVIEMBRE"
	Diciembre  Month = "DICIEMBRE"

	// MonthAnnual marks the yearly figure reported by the climate API.
	// It is never part of monthly aggregation.
	MonthAnnual Month = "ANUAL"
)

// Months lists the canonical month order used by every range and sort operation.
var Months = [12]Month{
	Enero, Febrero, Marzo, Abril, Mayo, Junio,
	Julio, Agosto, Septiembre, Octubre, Noviembre, Diciembre,
}

var monthIndex = func() map[Month]int {
	m := make(map[Month]int, len(Months))
	for i, name := range Months {
		m[name] = i
	}
	return m
}()

// ParseMonth normalizes s and returns the canonical month it names.
func ParseMonth(s string) (Month, error) {
	m := Month(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := monthIndex[m]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return m, nil
}

// Index returns the 0-based canonical position of m, or -1 for the annual
// marker and unknown names.
func (m Month) Index() int {
	if i, ok := monthIndex[m]; ok {
		return i
	}
	return -1
}

// IsCalendar reports whether m is one of the twelve canonical months.
func (m Month) IsCalendar() bool {
	return m.Index() >= 0
}

// MonthFromCode maps a two-digit climate API month code ("01".."12", "13")
// to a Month. Code 13 is the annual figure.
func MonthFromCode(code string) (Month, bool) {
	if code == "13" {
		return MonthAnnual, true
	}
	if len(code) != 2 {
		return "", false
	}
	n, err := strconv.Atoi(code)
	if err != nil || n < 1 || n > 12 {
		return "", false
	}
	return Months[n-1], true
}

// MonthsBetween validates start and end and returns the inclusive canonical
// slice between them.
func MonthsBetween(start, end string) ([]Month, error) {
	s, err := ParseMonth(start)
	if err != nil {
		return nil, err
	}
	e, err := ParseMonth(end)
	if err != nil {
		return nil, err
	}
	if s.Index() > e.Index() {
		return nil, fmt.Errorf("%w: %s is after %s", ErrInvalidRange, s, e)
	}
	out := make([]Month, 0, e.Index()-s.Index()+1)
	out = append(out, Months[s.Index():e.Index()+1]...)
	return out, nil
}

// Department is the top level of the administrative hierarchy.
type Department struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// Municipality belongs to exactly one Department.
type Municipality struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	DepartmentID uint   `json:"department_id"`
}

// Location is a sample point inside a Municipality. Coordinates are rounded
// to three decimals so repeated ingestion resolves to the same row.
type Location struct {
	ID             uint    `json:"id"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	MunicipalityID uint    `json:"municipality_id"`
}

// Reading is one monthly GHI figure for a Location.
type Reading struct {
	ID         uint    `json:"id"`
	LocationID uint    `json:"location_id"`
	Month      Month   `json:"month"`
	Year       int     `json:"year"`
	ValueMJ    float64 `json:"value_mj"`  // MJ/m²/day
	ValueKWh   float64 `json:"value_kwh"` // kWh/m²/day
}

// NewReading builds a Reading from a raw MJ/m²/day value, applying the
// storage rounding rules.
func NewReading(locationID uint, month Month, year int, valueMJ float64) Reading {
	return Reading{
		LocationID: locationID,
		Month:      month,
		Year:       year,
		ValueMJ:    Round(valueMJ, 2),
		ValueKWh:   MJToKWh(valueMJ),
	}
}

// MonthValue is one point of a monthly series.
type MonthValue struct {
	Month    Month   `json:"month" validate:"required"`
	ValueKWh float64 `json:"value_kwh"`
}

// HistoricalPoint is one (month, year) point of the forecast input series.
type HistoricalPoint struct {
	Month    Month   `json:"month"`
	Year     int     `json:"year"`
	ValueKWh float64 `json:"value_kwh"`
}

// Extreme pairs an aggregate value with the month of the raw reading that
// represents it.
type Extreme struct {
	ValueKWh float64 `json:"value_kwh"`
	Month    Month   `json:"month"`
}

// MunicipalityStats is one row of a department rollup.
type MunicipalityStats struct {
	MunicipalityID uint    `json:"municipality_id"`
	Municipality   string  `json:"municipality"`
	Locations      int     `json:"locations"`
	Max            Extreme `json:"max"`
	Min            Extreme `json:"min"`
	Mean           Extreme `json:"mean"`
}

// LocationAnnual is the per-location annual figure for one year.
type LocationAnnual struct {
	LocationID   uint     `json:"location_id"`
	Municipality string   `json:"municipality_name"`
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	AverageKWh   float64  `json:"average_kwh"`
	ReportedKWh  *float64 `json:"reported_annual_kwh,omitempty"`
}

// Round rounds v half away from zero to the given number of decimals.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// MJToKWh converts MJ/m²/day to kWh/m²/day, rounded to 2 decimals.
func MJToKWh(mj float64) float64 {
	return Round(mj/3.6, 2)
}

// RoundCoordinate gives a coordinate the precision used for Location identity.
func RoundCoordinate(v float64) float64 {
	return Round(v, 3)
}

// SortByMonth orders readings by canonical month index, keeping the relative
// order of readings that share a month.
func SortByMonth(readings []Reading) {
	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].Month.Index() < readings[j].Month.Index()
	})
}
