package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/kelvins/geocoder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubGeocoder(lookup func(geocoder.Address) (geocoder.Location, error)) *Geocoder {
	return &Geocoder{country: "Colombia", lookup: lookup, cache: make(map[string][2]float64)}
}

func TestGeocoder_LocateCaches(t *testing.T) {
	calls := 0
	g := stubGeocoder(func(addr geocoder.Address) (geocoder.Location, error) {
		calls++
		assert.Equal(t, geocoder.Address{City: "Paipa", State: "Boyacá", Country: "Colombia"}, addr)
		return geocoder.Location{Latitude: 5.78, Longitude: -73.117}, nil
	})

	for i := 0; i < 2; i++ {
		lat, lon, err := g.Locate(context.Background(), "Paipa", "Boyacá")
		require.NoError(t, err)
		assert.Equal(t, 5.78, lat)
		assert.Equal(t, -73.117, lon)
	}
	assert.Equal(t, 1, calls)
}

func TestGeocoder_LocateFailures(t *testing.T) {
	g := stubGeocoder(func(geocoder.Address) (geocoder.Location, error) {
		return geocoder.Location{}, nil
	})
	_, _, err := g.Locate(context.Background(), "Atlántida", "Nowhere")
	assert.ErrorIs(t, err, ErrNotGeocoded)

	boom := errors.New("quota exceeded")
	g = stubGeocoder(func(geocoder.Address) (geocoder.Location, error) {
		return geocoder.Location{}, boom
	})
	_, _, err = g.Locate(context.Background(), "Paipa", "Boyacá")
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = g.Locate(ctx, "Paipa", "Boyacá")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewGeocoderSetsAPIKey(t *testing.T) {
	prev := geocoder.ApiKey
	t.Cleanup(func() { geocoder.ApiKey = prev })

	g := NewGeocoder("test-key", "Colombia")
	assert.Equal(t, "test-key", geocoder.ApiKey)
	assert.Equal(t, "Colombia", g.country)
}
