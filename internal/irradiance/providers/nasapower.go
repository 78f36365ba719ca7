package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sony/gobreaker"

	"github.com/i474232898/ghi-aggregation/internal/irradiance"
)

const (
	// DefaultNASAPowerURL is the public NASA POWER API root.
	DefaultNASAPowerURL = "https://power.larc.nasa.gov"

	ghiParameter = "ALLSKY_SFC_SW_DWN"

	// nasaFillValue marks a missing month in POWER responses.
	nasaFillValue = -999
)

// ErrNoSeries is returned when a POWER response carries no GHI parameter.
var ErrNoSeries = errors.New("nasa power: no GHI series in response")

// NASAPowerClient reads monthly all-sky surface shortwave irradiance from the
// NASA POWER point API.
type NASAPowerClient struct {
	name      string
	baseURL   string
	startYear int
	endYear   int
	httpCfg   HTTPClientConfig
	circuit   *gobreaker.CircuitBreaker
}

func NewNASAPowerClient(client *http.Client, baseURL string, startYear, endYear int) *NASAPowerClient {
	if baseURL == "" {
		baseURL = DefaultNASAPowerURL
	}
	return &NASAPowerClient{
		name:      "nasapower",
		baseURL:   baseURL,
		startYear: startYear,
		endYear:   endYear,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: DefaultBackoff,
		},
		circuit: newBreaker("nasapower"),
	}
}

// WithBackoff overrides the retry policy. Tests use it to keep retries fast.
func (c *NASAPowerClient) WithBackoff(b BackoffConfig) *NASAPowerClient {
	c.httpCfg.Backoff = b
	return c
}

func (c *NASAPowerClient) Name() string {
	return c.name
}

// MonthlySeries returns the GHI series of the point keyed "YYYYMM" in
// MJ/m²/day. Null and fill values are left out. Month "13" is the yearly
// figure.
func (c *NASAPowerClient) MonthlySeries(ctx context.Context, lat, lon float64) (map[string]float64, error) {
	lat, lon = irradiance.RoundCoordinate(lat), irradiance.RoundCoordinate(lon)

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
		values.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
		values.Set("start", strconv.Itoa(c.startYear))
		values.Set("end", strconv.Itoa(c.endYear))
		values.Set("community", "RE")
		values.Set("parameters", ghiParameter)
		values.Set("format", "json")

		u := fmt.Sprintf("%s/api/temporal/monthly/point?%s", c.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return nil, fmt.Errorf("nasa power (%v, %v): %w", lat, lon, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Properties struct {
			Parameter map[string]map[string]*float64 `json:"parameter"`
		} `json:"properties"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("nasa power: decode: %w", err)
	}

	raw, ok := payload.Properties.Parameter[ghiParameter]
	if !ok {
		return nil, ErrNoSeries
	}

	series := make(map[string]float64, len(raw))
	for key, v := range raw {
		if v == nil || *v <= nasaFillValue {
			continue
		}
		series[key] = *v
	}
	return series, nil
}

