package irradiance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMonth(t *testing.T) {
	m, err := ParseMonth("  enero ")
	require.NoError(t, err)
	assert.Equal(t, Enero, m)
	assert.Equal(t, 0, m.Index())

	m, err = ParseMonth("DICIEMBRE")
	require.NoError(t, err)
	assert.Equal(t, 11, m.Index())

	_, err = ParseMonth("JANUARY")
	assert.ErrorIs(t, err, ErrInvalidMonth)

	_, err = ParseMonth("ANUAL")
	assert.ErrorIs(t, err, ErrInvalidMonth)
}

func TestMonthIndexAndCalendar(t *testing.T) {
	assert.Equal(t, -1, MonthAnnual.Index())
	assert.False(t, MonthAnnual.IsCalendar())
	assert.True(t, Septiembre.IsCalendar())
	assert.Equal(t, 8, Septiembre.Index())
}

func TestMonthFromCode(t *testing.T) {
	tests := []struct {
		code string
		want Month
		ok   bool
	}{
		{"01", Enero, true},
		{"06", Junio, true},
		{"12", Diciembre, true},
		{"13", MonthAnnual, true},
		{"00", "", false},
		{"14", "", false},
		{"1", "", false},
		{"ab", "", false},
	}
	for _, tt := range tests {
		got, ok := MonthFromCode(tt.code)
		assert.Equal(t, tt.ok, ok, tt.code)
		assert.Equal(t, tt.want, got, tt.code)
	}
}

func TestMonthsBetween(t *testing.T) {
	months, err := MonthsBetween("marzo", "MAYO")
	require.NoError(t, err)
	assert.Equal(t, []Month{Marzo, Abril, Mayo}, months)

	months, err = MonthsBetween("JULIO", "JULIO")
	require.NoError(t, err)
	assert.Equal(t, []Month{Julio}, months)

	_, err = MonthsBetween("MAYO", "MARZO")
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = MonthsBetween("MAYO", "SOMETIME")
	assert.ErrorIs(t, err, ErrInvalidMonth)
}

func TestNewReadingConvertsUnits(t *testing.T) {
	r := NewReading(7, Abril, 2021, 18.004)
	assert.Equal(t, uint(7), r.LocationID)
	assert.InDelta(t, 18.0, r.ValueMJ, 1e-9)
	assert.InDelta(t, 5.0, r.ValueKWh, 1e-9)

	assert.InDelta(t, 1.39, MJToKWh(5.0), 1e-9)
	assert.InDelta(t, 4.568, RoundCoordinate(4.56789), 1e-9)
}

func TestSortByMonthIsStable(t *testing.T) {
	readings := []Reading{
		{ID: 1, Month: Marzo},
		{ID: 2, Month: Enero},
		{ID: 3, Month: Marzo},
		{ID: 4, Month: Enero},
	}
	SortByMonth(readings)

	ids := make([]uint, len(readings))
	for i, r := range readings {
		ids[i] = r.ID
	}
	assert.Equal(t, []uint{2, 4, 1, 3}, ids)
}
