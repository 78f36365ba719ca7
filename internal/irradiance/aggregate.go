package irradiance

import (
	"fmt"
	"math"
	"sort"
)

// valueEpsilon absorbs float noise when comparing values stored with two decimals.
const valueEpsilon = 1e-9

// LocationReadings is the raw readings of one location.
type LocationReadings struct {
	Location Location
	Readings []Reading
}

// MunicipalityReadings groups a municipality with the readings of each of its
// locations. Location order is the iteration order used for tie-breaks.
type MunicipalityReadings struct {
	Municipality Municipality
	Locations    []LocationReadings
}

// monthlyForYear returns the calendar-month readings of year, ordered by
// canonical month index. The input slice is not modified.
func monthlyForYear(readings []Reading, year int) []Reading {
	out := make([]Reading, 0, len(readings))
	for _, r := range readings {
		if r.Year == year && r.Month.IsCalendar() {
			out = append(out, r)
		}
	}
	SortByMonth(out)
	return out
}

func meanKWh(readings []Reading) float64 {
	var sum float64
	for _, r := range readings {
		sum += r.ValueKWh
	}
	return sum / float64(len(readings))
}

// AnnualAverage is the mean kWh of the calendar months of year for a single
// location, rounded to 2 decimals. It returns ErrNoData when the location has
// no month for that year.
func AnnualAverage(readings []Reading, year int) (float64, error) {
	monthly := monthlyForYear(readings, year)
	if len(monthly) == 0 {
		return 0, fmt.Errorf("%w: no monthly readings for %d", ErrNoData, year)
	}
	return Round(meanKWh(monthly), 2), nil
}

// AnnualMarkerValue returns the kWh value of the ANUAL reading of year, if one
// was ingested.
func AnnualMarkerValue(readings []Reading, year int) (float64, bool) {
	for _, r := range readings {
		if r.Year == year && r.Month == MonthAnnual {
			return r.ValueKWh, true
		}
	}
	return 0, false
}

// DepartmentRollup computes max/min/mean statistics per municipality from
// per-location annual averages. Municipalities without any location that has
// data for year are left out of the result.
//
// The month attached to max and min is the first raw reading, in
// location-then-month order, whose value equals the extreme. Location averages
// rarely coincide with a raw value, so when no reading matches exactly the
// closest reading is used instead. The month attached to mean is always the
// closest raw reading, first encountered on ties.
func DepartmentRollup(groups []MunicipalityReadings, year int) []MunicipalityStats {
	stats := make([]MunicipalityStats, 0, len(groups))

	for _, g := range groups {
		var (
			averages   []float64
			candidates []Reading
		)

		for _, loc := range g.Locations {
			monthly := monthlyForYear(loc.Readings, year)
			if len(monthly) == 0 {
				continue
			}
			averages = append(averages, Round(meanKWh(monthly), 2))
			candidates = append(candidates, monthly...)
		}

		if len(averages) == 0 {
			continue
		}

		maxVal, minVal, sum := averages[0], averages[0], 0.0
		for _, v := range averages {
			if v > maxVal {
				maxVal = v
			}
			if v < minVal {
				minVal = v
			}
			sum += v
		}
		mean := Round(sum/float64(len(averages)), 2)

		stats = append(stats, MunicipalityStats{
			MunicipalityID: g.Municipality.ID,
			Municipality:   g.Municipality.Name,
			Locations:      len(averages),
			Max:            Extreme{ValueKWh: maxVal, Month: matchingMonth(candidates, maxVal)},
			Min:            Extreme{ValueKWh: minVal, Month: matchingMonth(candidates, minVal)},
			Mean:           Extreme{ValueKWh: mean, Month: candidates[nearest(candidates, mean)].Month},
		})
	}

	return stats
}

// matchingMonth returns the month of the first candidate equal to target,
// falling back to the closest one.
func matchingMonth(candidates []Reading, target float64) Month {
	for _, r := range candidates {
		if math.Abs(r.ValueKWh-target) < valueEpsilon {
			return r.Month
		}
	}
	return candidates[nearest(candidates, target)].Month
}

// nearest returns the index of the candidate closest to target. Ties keep the
// earliest index. candidates must not be empty.
func nearest(candidates []Reading, target float64) int {
	best := 0
	bestDiff := math.Abs(candidates[0].ValueKWh - target)
	for i := 1; i < len(candidates); i++ {
		d := math.Abs(candidates[i].ValueKWh - target)
		if d < bestDiff-valueEpsilon {
			best, bestDiff = i, d
		}
	}
	return best
}

// MonthRange returns every reading of year whose month lies between start and
// end inclusive, sorted by canonical month index. Readings of the same month
// keep their input order, so callers pass municipality readings grouped by
// location.
func MonthRange(readings []Reading, start, end string, year int) ([]MonthValue, error) {
	months, err := MonthsBetween(start, end)
	if err != nil {
		return nil, err
	}
	lo, hi := months[0].Index(), months[len(months)-1].Index()

	selected := make([]Reading, 0, len(readings))
	for _, r := range readings {
		idx := r.Month.Index()
		if r.Year == year && idx >= lo && idx <= hi {
			selected = append(selected, r)
		}
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: no readings between %s and %s of %d", ErrNoData, months[0], months[len(months)-1], year)
	}

	SortByMonth(selected)
	out := make([]MonthValue, len(selected))
	for i, r := range selected {
		out[i] = MonthValue{Month: r.Month, ValueKWh: r.ValueKWh}
	}
	return out, nil
}

// HistoricalSeries averages calendar-month readings across locations for each
// (month, year) of the requested years and orders the result by year, then
// canonical month. An empty years slice selects every year present.
func HistoricalSeries(readings []Reading, years []int) ([]HistoricalPoint, error) {
	wanted := make(map[int]bool, len(years))
	for _, y := range years {
		wanted[y] = true
	}

	type key struct {
		year  int
		month int
	}
	type accumulator struct {
		sum   float64
		count int
	}

	groups := make(map[key]*accumulator)
	for _, r := range readings {
		if !r.Month.IsCalendar() {
			continue
		}
		if len(wanted) > 0 && !wanted[r.Year] {
			continue
		}
		k := key{year: r.Year, month: r.Month.Index()}
		acc, ok := groups[k]
		if !ok {
			acc = &accumulator{}
			groups[k] = acc
		}
		acc.sum += r.ValueKWh
		acc.count++
	}

	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: years %v", ErrNoHistoricalData, years)
	}

	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		return keys[i].month < keys[j].month
	})

	series := make([]HistoricalPoint, len(keys))
	for i, k := range keys {
		acc := groups[k]
		series[i] = HistoricalPoint{
			Month:    Months[k.month],
			Year:     k.year,
			ValueKWh: Round(acc.sum/float64(acc.count), 2),
		}
	}
	return series, nil
}

// AlignByMonth pairs actual and predicted values month by month in canonical
// order. Several values for the same month on one side are averaged; months
// present on only one side are dropped.
func AlignByMonth(actual, predicted []MonthValue) (months []Month, actualVals, predVals []float64) {
	r := averageByMonth(actual)
	p := averageByMonth(predicted)

	for _, m := range Months {
		rv, okR := r[m]
		pv, okP := p[m]
		if !okR || !okP {
			continue
		}
		months = append(months, m)
		actualVals = append(actualVals, rv)
		predVals = append(predVals, pv)
	}
	return months, actualVals, predVals
}

func averageByMonth(values []MonthValue) map[Month]float64 {
	sums := make(map[Month]float64)
	counts := make(map[Month]int)
	for _, v := range values {
		if !v.Month.IsCalendar() {
			continue
		}
		sums[v.Month] += v.ValueKWh
		counts[v.Month]++
	}
	out := make(map[Month]float64, len(sums))
	for m, s := range sums {
		out[m] = s / float64(counts[m])
	}
	return out
}
