package irradiance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reading(loc uint, month Month, year int, kwh float64) Reading {
	return Reading{LocationID: loc, Month: month, Year: year, ValueKWh: kwh}
}

func TestAnnualAverage(t *testing.T) {
	readings := []Reading{
		reading(1, Enero, 2023, 5.0),
		reading(1, Febrero, 2023, 6.0),
		reading(1, Marzo, 2023, 4.333),
		reading(1, MonthAnnual, 2023, 100),
		reading(1, Enero, 2022, 1.0),
	}

	avg, err := AnnualAverage(readings, 2023)
	require.NoError(t, err)
	assert.InDelta(t, 5.11, avg, 1e-9)

	_, err = AnnualAverage(readings, 2019)
	assert.ErrorIs(t, err, ErrNoData)

	onlyAnnual := []Reading{reading(1, MonthAnnual, 2020, 5)}
	_, err = AnnualAverage(onlyAnnual, 2020)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestAnnualMarkerValue(t *testing.T) {
	readings := []Reading{
		reading(1, Enero, 2023, 5.0),
		reading(1, MonthAnnual, 2023, 5.4),
	}
	v, ok := AnnualMarkerValue(readings, 2023)
	assert.True(t, ok)
	assert.InDelta(t, 5.4, v, 1e-9)

	_, ok = AnnualMarkerValue(readings, 2022)
	assert.False(t, ok)
}

func TestDepartmentRollup_TwoLocations(t *testing.T) {
	groups := []MunicipalityReadings{{
		Municipality: Municipality{ID: 10, Name: "Tunja"},
		Locations: []LocationReadings{
			{
				Location: Location{ID: 1},
				Readings: []Reading{reading(1, Febrero, 2023, 6.0), reading(1, Enero, 2023, 5.0)},
			},
			{
				Location: Location{ID: 2},
				Readings: []Reading{reading(2, Enero, 2023, 4.0), reading(2, Febrero, 2023, 5.0)},
			},
		},
	}}

	stats := DepartmentRollup(groups, 2023)
	require.Len(t, stats, 1)

	s := stats[0]
	assert.Equal(t, uint(10), s.MunicipalityID)
	assert.Equal(t, "Tunja", s.Municipality)
	assert.Equal(t, 2, s.Locations)

	assert.InDelta(t, 5.0, s.Mean.ValueKWh, 1e-9)
	assert.Equal(t, Enero, s.Mean.Month)

	assert.InDelta(t, 5.5, s.Max.ValueKWh, 1e-9)
	assert.InDelta(t, 4.5, s.Min.ValueKWh, 1e-9)
	// Neither extreme is a raw value; both resolve to the first closest reading.
	assert.Equal(t, Enero, s.Max.Month)
	assert.Equal(t, Enero, s.Min.Month)
}

func TestDepartmentRollup_ExactMatchWins(t *testing.T) {
	groups := []MunicipalityReadings{{
		Municipality: Municipality{ID: 1, Name: "Paipa"},
		Locations: []LocationReadings{
			{Location: Location{ID: 1}, Readings: []Reading{reading(1, Marzo, 2023, 6.0)}},
			{Location: Location{ID: 2}, Readings: []Reading{reading(2, Julio, 2023, 4.0)}},
			{Location: Location{ID: 3}, Readings: []Reading{reading(3, Abril, 2023, 5.0)}},
		},
	}}

	stats := DepartmentRollup(groups, 2023)
	require.Len(t, stats, 1)
	assert.Equal(t, Marzo, stats[0].Max.Month)
	assert.Equal(t, Julio, stats[0].Min.Month)
	assert.Equal(t, Abril, stats[0].Mean.Month)
	assert.InDelta(t, 5.0, stats[0].Mean.ValueKWh, 1e-9)
}

func TestDepartmentRollup_SkipsMunicipalitiesWithoutData(t *testing.T) {
	groups := []MunicipalityReadings{
		{
			Municipality: Municipality{ID: 1, Name: "Empty"},
			Locations: []LocationReadings{
				{Location: Location{ID: 1}, Readings: []Reading{reading(1, Enero, 2020, 3)}},
			},
		},
		{Municipality: Municipality{ID: 2, Name: "NoLocations"}},
		{
			Municipality: Municipality{ID: 3, Name: "Full"},
			Locations: []LocationReadings{
				{Location: Location{ID: 2}, Readings: []Reading{reading(2, Enero, 2023, 3)}},
				{Location: Location{ID: 3}},
			},
		},
	}

	stats := DepartmentRollup(groups, 2023)
	require.Len(t, stats, 1)
	assert.Equal(t, "Full", stats[0].Municipality)
	assert.Equal(t, 1, stats[0].Locations)
}

func TestMonthRange(t *testing.T) {
	readings := []Reading{
		reading(1, Abril, 2023, 4.1),
		reading(1, Enero, 2023, 5.1),
		reading(1, Marzo, 2023, 3.1),
		reading(2, Marzo, 2023, 3.2),
		reading(2, Febrero, 2022, 9.9),
		reading(2, MonthAnnual, 2023, 4.0),
		reading(2, Febrero, 2023, 2.2),
	}

	got, err := MonthRange(readings, "febrero", "ABRIL", 2023)
	require.NoError(t, err)
	assert.Equal(t, []MonthValue{
		{Month: Febrero, ValueKWh: 2.2},
		{Month: Marzo, ValueKWh: 3.1},
		{Month: Marzo, ValueKWh: 3.2},
		{Month: Abril, ValueKWh: 4.1},
	}, got)

	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].Month.Index(), got[i].Month.Index())
	}
}

func TestMonthRange_SingleLocationStrictlyIncreasing(t *testing.T) {
	var readings []Reading
	for i := len(Months) - 1; i >= 0; i-- {
		readings = append(readings, reading(1, Months[i], 2021, float64(i)))
	}

	got, err := MonthRange(readings, "ENERO", "DICIEMBRE", 2021)
	require.NoError(t, err)
	require.Len(t, got, 12)
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1].Month.Index(), got[i].Month.Index())
	}
}

func TestMonthRange_Errors(t *testing.T) {
	readings := []Reading{reading(1, Enero, 2023, 5)}

	_, err := MonthRange(readings, "MARZO", "ENERO", 2023)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = MonthRange(readings, "ENERO", "NOPE", 2023)
	assert.ErrorIs(t, err, ErrInvalidMonth)

	_, err = MonthRange(readings, "FEBRERO", "MARZO", 2023)
	assert.ErrorIs(t, err, ErrNoData)

	got, err := MonthRange(readings, "ENERO", "ENERO", 2023)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestHistoricalSeries(t *testing.T) {
	readings := []Reading{
		reading(1, Enero, 2020, 4.2),
		reading(1, Enero, 2019, 5.1),
		reading(1, Enero, 2018, 9.9),
	}

	got, err := HistoricalSeries(readings, []int{2019, 2020})
	require.NoError(t, err)
	assert.Equal(t, []HistoricalPoint{
		{Month: Enero, Year: 2019, ValueKWh: 5.1},
		{Month: Enero, Year: 2020, ValueKWh: 4.2},
	}, got)
}

func TestHistoricalSeries_AveragesAcrossLocations(t *testing.T) {
	readings := []Reading{
		reading(1, Febrero, 2020, 4.0),
		reading(2, Febrero, 2020, 5.0),
		reading(1, Enero, 2020, 3.33),
		reading(2, Enero, 2020, 3.35),
		reading(1, MonthAnnual, 2020, 4.1),
		reading(1, Diciembre, 2019, 6.0),
	}

	got, err := HistoricalSeries(readings, nil)
	require.NoError(t, err)
	assert.Equal(t, []HistoricalPoint{
		{Month: Diciembre, Year: 2019, ValueKWh: 6.0},
		{Month: Enero, Year: 2020, ValueKWh: 3.34},
		{Month: Febrero, Year: 2020, ValueKWh: 4.5},
	}, got)

	_, err = HistoricalSeries(readings, []int{1999})
	assert.ErrorIs(t, err, ErrNoHistoricalData)
}

func TestAlignByMonth(t *testing.T) {
	actual := []MonthValue{
		{Month: Marzo, ValueKWh: 3},
		{Month: Enero, ValueKWh: 1},
		{Month: Enero, ValueKWh: 2},
		{Month: Junio, ValueKWh: 6},
	}
	predicted := []MonthValue{
		{Month: Enero, ValueKWh: 1.4},
		{Month: Marzo, ValueKWh: 3.1},
		{Month: Abril, ValueKWh: 4},
	}

	months, a, p := AlignByMonth(actual, predicted)
	assert.Equal(t, []Month{Enero, Marzo}, months)
	assert.InDeltaSlice(t, []float64{1.5, 3}, a, 1e-9)
	assert.InDeltaSlice(t, []float64{1.4, 3.1}, p, 1e-9)
}
