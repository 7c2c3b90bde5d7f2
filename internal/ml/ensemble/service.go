package ensemble

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

var ErrNoComponents = errors.New("ensemble: no components")

// Component is one member forecast with its configured weight.
type Component struct {
	Name     string
	Weight   float64
	Forecast []float64
}

type Service struct{}

func NewService() *Service { return &Service{} }

// Weights returns the component weights renormalized to sum to one, index
// aligned with components. Non-positive weights become zero.
func (s *Service) Weights(components []Component) ([]float64, error) {
	out := make([]float64, len(components))
	for i, c := range components {
		if c.Weight > 0 {
			out[i] = c.Weight
		}
	}
	total := floats.Sum(out)
	if total <= 0 {
		return nil, ErrNoComponents
	}
	floats.Scale(1/total, out)
	return out, nil
}

// Combine returns the per-day weighted sum of the component forecasts. Every
// weighted forecast must have length days.
func (s *Service) Combine(components []Component, days int) ([]float64, error) {
	weights, err := s.Weights(components)
	if err != nil {
		return nil, err
	}
	out := make([]float64, days)
	for i, c := range components {
		if weights[i] == 0 {
			continue
		}
		if len(c.Forecast) != days {
			return nil, fmt.Errorf("ensemble: component %q has %d values, want %d", c.Name, len(c.Forecast), days)
		}
		floats.AddScaled(out, weights[i], c.Forecast)
	}
	return out, nil
}
