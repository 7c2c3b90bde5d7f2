package forecast

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData means the series is too short for a model.
	ErrInsufficientData = errors.New("forecast: insufficient data")
	// ErrModelUnavailable means a model backend is not configured or failed
	// to initialize.
	ErrModelUnavailable = errors.New("forecast: model unavailable")
	// ErrNumericalFit means fitting diverged, raised, or produced non-finite
	// output.
	ErrNumericalFit = errors.New("forecast: numerical fit failed")
	// ErrInvalidInput is reported for empty series or non-positive horizons.
	ErrInvalidInput = errors.New("forecast: invalid input")
)

// classify wraps a model error with the matching sentinel.
func classify(model string, err error, insufficient ...error) error {
	for _, target := range insufficient {
		if errors.Is(err, target) {
			return fmt.Errorf("%s: %w: %w", model, ErrInsufficientData, err)
		}
	}
	return fmt.Errorf("%s: %w: %w", model, ErrNumericalFit, err)
}
