package evaluation

import (
	"errors"
	"fmt"
	"math"
)

var ErrMismatchedLength = errors.New("actual and predicted lengths differ")

// Metrics are the point errors of one forecast against the realized prices.
// MAPE is a percentage.
type Metrics struct {
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	MAPE float64 `json:"mape"`
}

// Score compares a forecast with realized prices. Zero actual prices are
// excluded from MAPE.
func Score(actual, predicted []float64) (Metrics, error) {
	if len(actual) == 0 || len(actual) != len(predicted) {
		return Metrics{}, fmt.Errorf("%w: %d vs %d", ErrMismatchedLength, len(actual), len(predicted))
	}
	var absSum, sqSum, pctSum float64
	pctN := 0
	for i, a := range actual {
		diff := a - predicted[i]
		absSum += math.Abs(diff)
		sqSum += diff * diff
		if a != 0 {
			pctSum += math.Abs(diff / a)
			pctN++
		}
	}
	n := float64(len(actual))
	m := Metrics{MAE: absSum / n, RMSE: math.Sqrt(sqSum / n)}
	if pctN > 0 {
		m.MAPE = pctSum / float64(pctN) * 100
	}
	return m, nil
}
