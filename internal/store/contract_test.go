package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/ghi-aggregation/internal/irradiance"
)

// testStoreContract exercises the behaviour every irradiance.Store must share.
func testStoreContract(t *testing.T, newStore func(t *testing.T) irradiance.Store) {
	t.Run("EnsureIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		d1, err := s.EnsureDepartment(ctx, "Boyacá")
		require.NoError(t, err)
		d2, err := s.EnsureDepartment(ctx, "Boyacá")
		require.NoError(t, err)
		assert.Equal(t, d1, d2)

		m1, err := s.EnsureMunicipality(ctx, d1.ID, "Tunja")
		require.NoError(t, err)
		m2, err := s.EnsureMunicipality(ctx, d1.ID, "Tunja")
		require.NoError(t, err)
		assert.Equal(t, m1, m2)
		assert.Equal(t, d1.ID, m1.DepartmentID)

		l1, err := s.EnsureLocation(ctx, m1.ID, 5.53512, -73.36749)
		require.NoError(t, err)
		assert.InDelta(t, 5.535, l1.Latitude, 1e-9)
		assert.InDelta(t, -73.367, l1.Longitude, 1e-9)

		// Same point after rounding.
		l2, err := s.EnsureLocation(ctx, m1.ID, 5.5349, -73.3674)
		require.NoError(t, err)
		assert.Equal(t, l1.ID, l2.ID)

		all, err := s.AllLocations(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("SameNameInDifferentDepartments", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a, err := s.EnsureDepartment(ctx, "Boyacá")
		require.NoError(t, err)
		b, err := s.EnsureDepartment(ctx, "Nariño")
		require.NoError(t, err)

		ma, err := s.EnsureMunicipality(ctx, a.ID, "Buenavista")
		require.NoError(t, err)
		mb, err := s.EnsureMunicipality(ctx, b.ID, "Buenavista")
		require.NoError(t, err)
		assert.NotEqual(t, ma.ID, mb.ID)

		got, err := s.Municipalities(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, []irradiance.Municipality{mb}, got)
	})

	t.Run("UpsertIfAbsentKeepsFirstReading", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		loc := seedLocation(t, s)

		inserted, err := s.UpsertIfAbsent(ctx, irradiance.NewReading(loc.ID, irradiance.Enero, 2023, 18.0))
		require.NoError(t, err)
		assert.True(t, inserted)

		inserted, err = s.UpsertIfAbsent(ctx, irradiance.NewReading(loc.ID, irradiance.Enero, 2023, 21.6))
		require.NoError(t, err)
		assert.False(t, inserted)

		readings, err := s.ReadingsForLocation(ctx, loc.ID)
		require.NoError(t, err)
		require.Len(t, readings, 1)
		assert.InDelta(t, 5.0, readings[0].ValueKWh, 1e-9)
		assert.InDelta(t, 18.0, readings[0].ValueMJ, 1e-9)
		assert.Equal(t, irradiance.Enero, readings[0].Month)
	})

	t.Run("ReadingsForMunicipalityFiltersByYear", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		loc := seedLocation(t, s)

		for _, r := range []irradiance.Reading{
			irradiance.NewReading(loc.ID, irradiance.Enero, 2022, 18.0),
			irradiance.NewReading(loc.ID, irradiance.Enero, 2023, 19.8),
			irradiance.NewReading(loc.ID, irradiance.MonthAnnual, 2023, 19.0),
		} {
			_, err := s.UpsertIfAbsent(ctx, r)
			require.NoError(t, err)
		}

		all, err := s.ReadingsForMunicipality(ctx, loc.MunicipalityID, nil)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		year := 2023
		filtered, err := s.ReadingsForMunicipality(ctx, loc.MunicipalityID, &year)
		require.NoError(t, err)
		require.Len(t, filtered, 2)
		for _, r := range filtered {
			assert.Equal(t, 2023, r.Year)
		}

		none, err := s.ReadingsForMunicipality(ctx, loc.MunicipalityID+100, nil)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("LookupsReportNotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Department(ctx, 42)
		assert.ErrorIs(t, err, irradiance.ErrNotFound)
		_, err = s.DepartmentByName(ctx, "Atlántida")
		assert.ErrorIs(t, err, irradiance.ErrNotFound)
		_, err = s.Municipality(ctx, 42)
		assert.ErrorIs(t, err, irradiance.ErrNotFound)
	})

	t.Run("OrphansAreRejected", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.EnsureMunicipality(ctx, 42, "Nowhere")
		assert.Error(t, err)
		_, err = s.EnsureLocation(ctx, 42, 1, 1)
		assert.Error(t, err)
		_, err = s.UpsertIfAbsent(ctx, irradiance.NewReading(42, irradiance.Enero, 2023, 18))
		assert.Error(t, err)
	})

	t.Run("ViewSeesConsistentData", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		loc := seedLocation(t, s)

		err := s.View(ctx, func(r irradiance.Reader) error {
			m, err := r.Municipality(ctx, loc.MunicipalityID)
			if err != nil {
				return err
			}
			locs, err := r.Locations(ctx, m.ID)
			if err != nil {
				return err
			}
			assert.Equal(t, []irradiance.Location{loc}, locs)
			return nil
		})
		require.NoError(t, err)
		assert.NoError(t, s.Ping(ctx))
	})
}

func seedLocation(t *testing.T, s irradiance.Store) irradiance.Location {
	t.Helper()
	ctx := context.Background()

	d, err := s.EnsureDepartment(ctx, "Boyacá")
	require.NoError(t, err)
	m, err := s.EnsureMunicipality(ctx, d.ID, "Tunja")
	require.NoError(t, err)
	l, err := s.EnsureLocation(ctx, m.ID, 5.535, -73.367)
	require.NoError(t, err)
	return l
}
