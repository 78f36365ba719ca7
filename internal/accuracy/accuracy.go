// Package accuracy scores a predicted series against the observed one.
//
// Inputs are plain value slices that the caller has already aligned by key;
// this package never matches months or entities itself.
package accuracy

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrLengthMismatch is returned when the two series are empty or differ in length.
	ErrLengthMismatch = errors.New("real and predicted series must have the same non-zero length")

	// ErrDivisionByZero is returned when MAPE is undefined because a real value is zero.
	ErrDivisionByZero = errors.New("mape undefined: real series contains a zero value")
)

// Result holds the error metrics of one comparison.
type Result struct {
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	MAPE float64 `json:"mape"`
	R2   float64 `json:"r2"`
}

// Evaluate computes MAE, RMSE, MAPE (percent) and R² of predicted against actual.
//
// R² is 0 when every actual value is identical. MAPE is not defined when an actual
// value is zero; Evaluate then fails with ErrDivisionByZero rather than
// reporting NaN. MAE, RMSE and R² are rounded to 3 decimals, MAPE to 2.
func Evaluate(actual, predicted []float64) (Result, error) {
	if len(actual) == 0 || len(actual) != len(predicted) {
		return Result{}, fmt.Errorf("%w: got %d and %d", ErrLengthMismatch, len(actual), len(predicted))
	}
	for i, r := range actual {
		if r == 0 {
			return Result{}, fmt.Errorf("%w (index %d)", ErrDivisionByZero, i)
		}
	}

	n := float64(len(actual))

	var sumAbs, sumSq, sumPct, sumReal float64
	for i := range actual {
		diff := actual[i] - predicted[i]
		sumAbs += math.Abs(diff)
		sumSq += diff * diff
		sumPct += math.Abs(diff) / math.Abs(actual[i])
		sumReal += actual[i]
	}

	mean := sumReal / n
	var ssTot float64
	for _, r := range actual {
		ssTot += (r - mean) * (r - mean)
	}

	// Identical actual values can still leave float residue in ssTot.
	r2 := 0.0
	if ssTot > 1e-12 {
		r2 = 1 - sumSq/ssTot
	}

	return Result{
		MAE:  round(sumAbs/n, 3),
		RMSE: round(math.Sqrt(sumSq/n), 3),
		MAPE: round(sumPct/n*100, 2),
		R2:   round(r2, 3),
	}, nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
