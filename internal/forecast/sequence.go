package forecast

import (
	"cryptobeacon/internal/ml/models/lstm"
)

// Sequence trains a fresh LSTM per request.
type Sequence struct {
	opts lstm.Options
}

func NewSequence(opts lstm.Options) *Sequence {
	return &Sequence{opts: opts}
}

func (s *Sequence) Name() string { return "lstm" }

func (s *Sequence) Forecast(prices []float64, days int) ([]float64, error) {
	model := lstm.New(s.opts)
	if err := model.Fit(prices); err != nil {
		return nil, classify(s.Name(), err, lstm.ErrInsufficientData)
	}
	out, err := model.Forecast(prices, days)
	if err != nil {
		return nil, classify(s.Name(), err, lstm.ErrInsufficientData)
	}
	return Anchor(out, prices[len(prices)-1]), nil
}
