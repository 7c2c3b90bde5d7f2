package ta

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// MeanStd returns the mean and population standard deviation of values.
func MeanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	mean, variance := stat.PopMeanVariance(values, nil)
	return mean, math.Sqrt(variance)
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMASeries is the rolling arithmetic mean. Positions before the first full
// window are NaN.
func SMASeries(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EWMSeries is the bias-adjusted exponentially weighted mean with
// alpha = 2/(span+1). Every position is defined: point i is the weighted
// average of values[0..i] with weights (1-alpha)^(i-j).
func EWMSeries(values []float64, span int) []float64 {
	if len(values) == 0 {
		return nil
	}
	out := make([]float64, len(values))
	if span <= 1 {
		copy(out, values)
		return out
	}
	alpha := 2.0 / float64(span+1)
	decay := 1 - alpha
	var num, den float64
	for i, v := range values {
		num = num*decay + v
		den = den*decay + 1
		out[i] = num / den
	}
	return out
}

// RollingStdSeries is the rolling sample standard deviation (n-1 divisor).
func RollingStdSeries(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period < 2 {
		return out
	}
	for i := period - 1; i < len(values); i++ {
		out[i] = stat.StdDev(values[i-period+1:i+1], nil)
	}
	return out
}

// PctChangeSeries returns values[i]/values[i-lag] - 1, NaN where undefined.
func PctChangeSeries(values []float64, lag int) []float64 {
	out := nanSeries(len(values))
	if lag <= 0 {
		return out
	}
	for i := lag; i < len(values); i++ {
		prev := values[i-lag]
		if prev == 0 {
			continue
		}
		out[i] = values[i]/prev - 1
	}
	return out
}

// MomentumSeries returns values[i] - values[i-lag].
func MomentumSeries(values []float64, lag int) []float64 {
	out := nanSeries(len(values))
	if lag <= 0 {
		return out
	}
	for i := lag; i < len(values); i++ {
		out[i] = values[i] - values[i-lag]
	}
	return out
}
