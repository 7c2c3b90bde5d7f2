package arima

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// kpssCritical is the 5% critical value of the level-stationarity KPSS test.
const kpssCritical = 0.463

// seasonalStrengthThreshold follows the usual 0.64 cutoff for seasonal
// differencing.
const seasonalStrengthThreshold = 0.64

type Options struct {
	StartP, StartQ int
	MaxP, MaxQ     int
	MaxD           int
	Seasonal       bool
	Period         int
	MaxSP, MaxSQ   int
	MaxSD          int
	MaxOrder       int
	MaxFits        int
}

// DefaultOptions selects a weekly seasonal model.
func DefaultOptions() Options {
	return Options{
		StartP:   1,
		StartQ:   1,
		MaxP:     3,
		MaxQ:     3,
		MaxD:     2,
		Seasonal: true,
		Period:   7,
		MaxSP:    1,
		MaxSQ:    1,
		MaxSD:    1,
		MaxOrder: 5,
		MaxFits:  60,
	}
}

// NonSeasonalOptions is the lighter search used inside the ensemble.
func NonSeasonalOptions() Options {
	o := DefaultOptions()
	o.Seasonal = false
	o.Period = 1
	o.MaxSP, o.MaxSQ, o.MaxSD = 0, 0, 0
	return o
}

// AutoFit chooses differencing orders by unit-root tests and the ARMA orders
// by a stepwise AIC search.
func AutoFit(series []float64, opts Options) (*Model, error) {
	if len(series) < 10 {
		return nil, fmt.Errorf("%w: %d points", ErrInsufficientData, len(series))
	}
	for _, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite input", ErrNoConvergence)
		}
	}
	if opts.Period <= 1 {
		opts.Seasonal = false
		opts.Period = 1
	}

	sd := 0
	x := series
	if opts.Seasonal && opts.MaxSD > 0 && len(series) >= 3*opts.Period && SeasonalStrength(series, opts.Period) > seasonalStrengthThreshold {
		sd = 1
		x = diff(series, opts.Period)
	}
	d := 0
	for d < opts.MaxD && len(x) > 10 && KPSS(x) > kpssCritical {
		x = diff(x, 1)
		d++
	}

	s := search{series: series, opts: opts, visited: make(map[Order]bool)}
	base := Order{D: d, SD: sd, Period: opts.Period}
	start := base
	start.P, start.Q = min(opts.StartP, opts.MaxP), min(opts.StartQ, opts.MaxQ)
	if opts.Seasonal {
		start.SP, start.SQ = min(1, opts.MaxSP), min(1, opts.MaxSQ)
	}
	s.try(start)
	s.try(base)
	s.try(Order{P: min(1, opts.MaxP), D: d, SD: sd, SP: boolInt(opts.Seasonal && opts.MaxSP > 0), Period: opts.Period})
	s.try(Order{Q: min(1, opts.MaxQ), D: d, SD: sd, SQ: boolInt(opts.Seasonal && opts.MaxSQ > 0), Period: opts.Period})

	for improved := true; improved && s.best != nil; {
		improved = false
		cur := s.best.order
		for _, next := range s.neighbors(cur) {
			if s.try(next) {
				improved = true
			}
		}
	}
	if s.best == nil {
		if s.lastErr != nil {
			return nil, s.lastErr
		}
		return nil, ErrNoConvergence
	}
	return s.best, nil
}

type search struct {
	series  []float64
	opts    Options
	visited map[Order]bool
	fits    int
	best    *Model
	lastErr error
}

// try fits o if it has not been seen and reports whether it became the best.
func (s *search) try(o Order) bool {
	if s.visited[o] || s.fits >= s.opts.MaxFits {
		return false
	}
	s.visited[o] = true
	if o.P < 0 || o.Q < 0 || o.SP < 0 || o.SQ < 0 || o.P > s.opts.MaxP || o.Q > s.opts.MaxQ ||
		o.SP > s.opts.MaxSP || o.SQ > s.opts.MaxSQ || o.P+o.Q+o.SP+o.SQ > s.opts.MaxOrder {
		return false
	}
	s.fits++
	m, err := Fit(s.series, o)
	if err != nil {
		s.lastErr = err
		return false
	}
	if _, err := m.Forecast(1); err != nil {
		s.lastErr = err
		return false
	}
	if s.best == nil || m.aic < s.best.aic {
		s.best = m
		return true
	}
	return false
}

func (s *search) neighbors(o Order) []Order {
	out := []Order{}
	add := func(dp, dq, dsp, dsq int) {
		n := o
		n.P += dp
		n.Q += dq
		n.SP += dsp
		n.SQ += dsq
		out = append(out, n)
	}
	for _, step := range []int{-1, 1} {
		add(step, 0, 0, 0)
		add(0, step, 0, 0)
		add(step, step, 0, 0)
		if s.opts.Seasonal {
			add(0, 0, step, 0)
			add(0, 0, 0, step)
		}
	}
	add(1, -1, 0, 0)
	add(-1, 1, 0, 0)
	return out
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// KPSS returns the level-stationarity KPSS statistic with a Bartlett kernel
// long-run variance.
func KPSS(x []float64) float64 {
	n := len(x)
	if n < 3 {
		return 0
	}
	mean := stat.Mean(x, nil)
	e := make([]float64, n)
	var partial, num float64
	for i, v := range x {
		e[i] = v - mean
		partial += e[i]
		num += partial * partial
	}
	num /= float64(n) * float64(n)

	lags := int(math.Trunc(4 * math.Pow(float64(n)/100, 0.25)))
	var s2 float64
	for _, v := range e {
		s2 += v * v
	}
	for l := 1; l <= lags && l < n; l++ {
		var acc float64
		for t := l; t < n; t++ {
			acc += e[t] * e[t-l]
		}
		s2 += 2 * (1 - float64(l)/float64(lags+1)) * acc
	}
	s2 /= float64(n)
	if s2 <= 0 {
		return 0
	}
	return num / s2
}

// SeasonalStrength measures how much of the detrended variance a fixed
// periodic profile explains, in [0,1].
func SeasonalStrength(x []float64, period int) float64 {
	n := len(x)
	if period < 2 || n < 2*period {
		return 0
	}
	half := period / 2
	detrended := make([]float64, 0, n)
	pos := make([]int, 0, n)
	for t := half; t < n-half; t++ {
		var sum float64
		if period%2 == 1 {
			for k := t - half; k <= t+half; k++ {
				sum += x[k]
			}
			sum /= float64(period)
		} else {
			for k := t - half + 1; k < t+half; k++ {
				sum += x[k]
			}
			sum += 0.5*x[t-half] + 0.5*x[t+half]
			sum /= float64(period)
		}
		detrended = append(detrended, x[t]-sum)
		pos = append(pos, t%period)
	}

	profile := make([]float64, period)
	counts := make([]float64, period)
	for i, v := range detrended {
		profile[pos[i]] += v
		counts[pos[i]]++
	}
	var centre float64
	for k := range profile {
		if counts[k] > 0 {
			profile[k] /= counts[k]
		}
		centre += profile[k]
	}
	centre /= float64(period)

	remainder := make([]float64, len(detrended))
	for i, v := range detrended {
		remainder[i] = v - (profile[pos[i]] - centre)
	}
	total := stat.Variance(detrended, nil)
	if math.IsNaN(total) || total <= 1e-12*stat.Variance(x, nil) {
		return 0
	}
	return math.Max(0, 1-stat.Variance(remainder, nil)/total)
}
