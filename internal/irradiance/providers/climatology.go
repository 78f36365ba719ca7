package providers

import (
	"context"
	"fmt"
	"math"

	"github.com/i474232898/ghi-aggregation/internal/irradiance"
)

// ClimatologyGateway forecasts each month as the mean of the same month over
// the historical series. It needs no network and is deterministic.
type ClimatologyGateway struct{}

func NewClimatologyGateway() ClimatologyGateway {
	return ClimatologyGateway{}
}

func (ClimatologyGateway) Name() string {
	return "climatology"
}

// Forecast fails when a requested month never appears in the history. The
// error margin is the mean standard deviation of the requested months.
func (ClimatologyGateway) Forecast(ctx context.Context, req irradiance.ForecastRequest) (irradiance.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return irradiance.Prediction{}, err
	}

	byMonth := make(map[irradiance.Month][]float64)
	for _, p := range req.History {
		byMonth[p.Month] = append(byMonth[p.Month], p.ValueKWh)
	}

	points := make([]irradiance.MonthValue, 0, len(req.Months))
	var spread float64
	for _, m := range req.Months {
		values := byMonth[m]
		if len(values) == 0 {
			return irradiance.Prediction{}, fmt.Errorf("climatology: no history for %s", m)
		}

		var sum float64
		for _, v := range values {
			sum += v
		}
		mean := sum / float64(len(values))

		var sq float64
		for _, v := range values {
			sq += (v - mean) * (v - mean)
		}
		spread += math.Sqrt(sq / float64(len(values)))

		points = append(points, irradiance.MonthValue{Month: m, ValueKWh: irradiance.Round(mean, 2)})
	}

	margin := 0.0
	if len(points) > 0 {
		margin = irradiance.Round(spread/float64(len(points)), 2)
	}

	return irradiance.Prediction{
		Points:      points,
		Method:      "climatology",
		ErrorMargin: margin,
		Notes:       fmt.Sprintf("mean of %d historical points", len(req.History)),
	}, nil
}
