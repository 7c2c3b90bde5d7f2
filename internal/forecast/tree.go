package forecast

import (
	"fmt"
	"math"

	"cryptobeacon/internal/ml/features"
)

// MinFeatureRows is the fewest valid feature rows the tree forecaster trains
// on.
const MinFeatureRows = 22

// Regressor is a point regression model over feature vectors.
type Regressor interface {
	Fit(x [][]float64, y []float64) error
	Predict(x []float64) float64
}

// RegressorFactory builds a fresh, unfitted regressor per request.
type RegressorFactory func() Regressor

// Tree predicts the next close from engineered features and rolls forward by
// appending each prediction to the history.
type Tree struct {
	backend string
	factory RegressorFactory
}

func NewTree(backend string, factory RegressorFactory) *Tree {
	return &Tree{backend: backend, factory: factory}
}

func (t *Tree) Name() string { return "tree/" + t.backend }

func (t *Tree) Forecast(prices []float64, days int) ([]float64, error) {
	if t.factory == nil {
		return nil, fmt.Errorf("%s: %w", t.Name(), ErrModelUnavailable)
	}
	rows := features.BuildRows(prices)
	if len(rows) < MinFeatureRows {
		return nil, fmt.Errorf("%s: %w: %d feature rows", t.Name(), ErrInsufficientData, len(rows))
	}
	x, y := features.TrainingSet(rows)
	model := t.factory()
	if model == nil {
		return nil, fmt.Errorf("%s: %w", t.Name(), ErrModelUnavailable)
	}
	if err := model.Fit(x, y); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", t.Name(), ErrNumericalFit, err)
	}

	history := append(make([]float64, 0, len(prices)+days), prices...)
	out := make([]float64, 0, days)
	for d := 0; d < days; d++ {
		row, ok := features.Latest(history)
		if !ok {
			out = append(out, history[len(history)-1])
			continue
		}
		next := model.Predict(row)
		if math.IsNaN(next) || math.IsInf(next, 0) {
			return nil, fmt.Errorf("%s: %w: non-finite prediction on day %d", t.Name(), ErrNumericalFit, d+1)
		}
		out = append(out, next)
		history = append(history, next)
	}
	return Anchor(out, prices[len(prices)-1]), nil
}
