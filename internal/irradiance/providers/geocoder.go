package providers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kelvins/geocoder"
)

// ErrNotGeocoded is returned when the geocoder finds no match.
var ErrNotGeocoded = errors.New("address could not be geocoded")

// Geocoder resolves a municipality to coordinates through the Google
// Geocoding API. Results are cached per (municipality, department).
type Geocoder struct {
	country string
	lookup  func(geocoder.Address) (geocoder.Location, error)

	mu    sync.Mutex
	cache map[string][2]float64
}

// NewGeocoder configures the package-level API key used by kelvins/geocoder.
func NewGeocoder(apiKey, country string) *Geocoder {
	geocoder.ApiKey = apiKey
	return &Geocoder{
		country: country,
		lookup:  geocoder.Geocoding,
		cache:   make(map[string][2]float64),
	}
}

func (g *Geocoder) Locate(ctx context.Context, municipality, department string) (float64, float64, error) {
	key := municipality + "|" + department

	g.mu.Lock()
	if c, ok := g.cache[key]; ok {
		g.mu.Unlock()
		return c[0], c[1], nil
	}
	g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	loc, err := g.lookup(geocoder.Address{
		City:    municipality,
		State:   department,
		Country: g.country,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("geocode %s, %s: %w", municipality, department, err)
	}
	if loc.Latitude == 0 && loc.Longitude == 0 {
		return 0, 0, fmt.Errorf("%w: %s, %s", ErrNotGeocoded, municipality, department)
	}

	g.mu.Lock()
	g.cache[key] = [2]float64{loc.Latitude, loc.Longitude}
	g.mu.Unlock()

	return loc.Latitude, loc.Longitude, nil
}
