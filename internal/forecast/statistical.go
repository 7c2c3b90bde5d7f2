package forecast

import (
	"cryptobeacon/internal/ml/models/arima"
)

// Statistical fits an automatically ordered ARIMA model and forecasts all
// days in one call.
type Statistical struct {
	name string
	opts arima.Options
}

// NewStatistical uses the weekly seasonal search.
func NewStatistical() *Statistical {
	return &Statistical{name: "arima", opts: arima.DefaultOptions()}
}

// NewStatisticalWith uses a custom search, e.g. the non-seasonal one.
func NewStatisticalWith(name string, opts arima.Options) *Statistical {
	return &Statistical{name: name, opts: opts}
}

func (s *Statistical) Name() string { return s.name }

func (s *Statistical) Forecast(prices []float64, days int) ([]float64, error) {
	model, err := arima.AutoFit(prices, s.opts)
	if err != nil {
		return nil, classify(s.name, err, arima.ErrInsufficientData)
	}
	out, err := model.Forecast(days)
	if err != nil {
		return nil, classify(s.name, err)
	}
	return Anchor(out, prices[len(prices)-1]), nil
}
