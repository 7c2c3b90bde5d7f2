package forecast

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cryptobeacon/internal/ml/ensemble"
	"cryptobeacon/internal/ml/models/arima"
)

// Member is an ensemble participant and its weight before renormalization.
type Member struct {
	Forecaster Forecaster
	Weight     float64
}

// Ensemble averages the anchored forecasts of its members, renormalizing the
// weights over members that succeed.
type Ensemble struct {
	members  []Member
	combiner *ensemble.Service
	logger   zerolog.Logger
}

// DefaultMembers is seasonal 0.40, non-seasonal ARIMA 0.35, trend 0.25.
func DefaultMembers(seasonalModel *Seasonal) []Member {
	return []Member{
		{Forecaster: seasonalModel, Weight: 0.40},
		{Forecaster: NewStatisticalWith("arima", arima.NonSeasonalOptions()), Weight: 0.35},
		{Forecaster: NewTrend(), Weight: 0.25},
	}
}

func NewEnsemble(members ...Member) *Ensemble {
	return &Ensemble{members: members, combiner: ensemble.NewService(), logger: log.Logger}
}

// WithLogger replaces the logger used for member failures.
func (e *Ensemble) WithLogger(l zerolog.Logger) *Ensemble {
	e.logger = l
	return e
}

func (e *Ensemble) Name() string { return "ensemble" }

func (e *Ensemble) Members() []Member {
	return append([]Member(nil), e.members...)
}

func (e *Ensemble) Forecast(prices []float64, days int) ([]float64, error) {
	return e.ForecastWith(prices, days, nil)
}

// ForecastWith combines pre-computed member forecasts keyed by member name
// when supplied; otherwise it runs every member. Supplied names without a
// configured member share the mean configured weight.
func (e *Ensemble) ForecastWith(prices []float64, days int, supplied map[string][]float64) ([]float64, error) {
	if len(prices) == 0 || days < 1 {
		return nil, fmt.Errorf("ensemble: %w", ErrInvalidInput)
	}
	last := prices[len(prices)-1]

	var components []ensemble.Component
	if len(supplied) > 0 {
		components = e.suppliedComponents(supplied, days)
	} else {
		for _, m := range e.members {
			out, err := safeForecast(m.Forecaster, prices, days)
			if err != nil {
				e.logger.Debug().Err(err).Str("member", m.Forecaster.Name()).Msg("ensemble member failed")
				continue
			}
			components = append(components, ensemble.Component{Name: m.Forecaster.Name(), Weight: m.Weight, Forecast: out})
		}
	}

	if len(components) == 0 {
		return repeat(last, days), nil
	}
	combined, err := e.combiner.Combine(components, days)
	if err != nil {
		return repeat(last, days), nil
	}
	return Anchor(combined, last), nil
}

func (e *Ensemble) suppliedComponents(supplied map[string][]float64, days int) []ensemble.Component {
	weights := make(map[string]float64, len(e.members))
	var mean float64
	for _, m := range e.members {
		weights[m.Forecaster.Name()] = m.Weight
		mean += m.Weight
	}
	if len(e.members) > 0 {
		mean /= float64(len(e.members))
	} else {
		mean = 1
	}
	out := make([]ensemble.Component, 0, len(supplied))
	for _, name := range sortedKeys(supplied) {
		values := supplied[name]
		if len(values) != days || !allFinite(values) {
			continue
		}
		w, ok := weights[name]
		if !ok {
			w = mean
		}
		out = append(out, ensemble.Component{Name: name, Weight: w, Forecast: values})
	}
	return out
}
