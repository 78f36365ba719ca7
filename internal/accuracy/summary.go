package accuracy

// EntityResult is the evaluation of one entity, e.g. a municipality.
type EntityResult struct {
	ID      uint   `json:"id"`
	Name    string `json:"name"`
	Points  int    `json:"points"`
	Metrics Result `json:"metrics"`
}

// Summary is the arithmetic mean of each metric across entities.
type Summary struct {
	Entities int     `json:"entities"`
	MAE      float64 `json:"mae"`
	RMSE     float64 `json:"rmse"`
	MAPE     float64 `json:"mape"`
	R2       float64 `json:"r2"`
}

// Summarize averages the metrics of results. Entities that could not be
// evaluated must not be passed in; they are excluded, not counted as zero.
// An empty input yields a zero Summary with Entities == 0.
func Summarize(results []EntityResult) Summary {
	if len(results) == 0 {
		return Summary{}
	}

	var s Summary
	for _, r := range results {
		s.MAE += r.Metrics.MAE
		s.RMSE += r.Metrics.RMSE
		s.MAPE += r.Metrics.MAPE
		s.R2 += r.Metrics.R2
	}

	n := float64(len(results))
	return Summary{
		Entities: len(results),
		MAE:      round(s.MAE/n, 3),
		RMSE:     round(s.RMSE/n, 3),
		MAPE:     round(s.MAPE/n, 2),
		R2:       round(s.R2/n, 3),
	}
}
