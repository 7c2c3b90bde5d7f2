// Package arima fits seasonal ARIMA(p,d,q)(P,D,Q)m models by Hannan-Rissanen
// regression and selects orders automatically.
package arima

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrInsufficientData = errors.New("arima: insufficient data")
	ErrNoConvergence    = errors.New("arima: no model converged")
)

// Order is a full seasonal ARIMA description. Period is ignored when SP, SD
// and SQ are all zero.
type Order struct {
	P, D, Q    int
	SP, SD, SQ int
	Period     int
}

func (o Order) String() string {
	if o.SP == 0 && o.SD == 0 && o.SQ == 0 {
		return fmt.Sprintf("ARIMA(%d,%d,%d)", o.P, o.D, o.Q)
	}
	return fmt.Sprintf("ARIMA(%d,%d,%d)(%d,%d,%d)[%d]", o.P, o.D, o.Q, o.SP, o.SD, o.SQ, o.Period)
}

func (o Order) arLags() []int {
	lags := make([]int, 0, o.P+o.SP)
	for i := 1; i <= o.P; i++ {
		lags = append(lags, i)
	}
	for i := 1; i <= o.SP; i++ {
		lags = append(lags, i*o.Period)
	}
	return lags
}

func (o Order) maLags() []int {
	lags := make([]int, 0, o.Q+o.SQ)
	for i := 1; i <= o.Q; i++ {
		lags = append(lags, i)
	}
	for i := 1; i <= o.SQ; i++ {
		lags = append(lags, i*o.Period)
	}
	return lags
}

// Model is a fitted ARIMA model. Seasonal AR and MA terms enter the
// regression as additional lags rather than as a multiplicative polynomial.
type Model struct {
	order     Order
	intercept bool
	constant  float64
	arLags    []int
	arCoef    []float64
	maLags    []int
	maCoef    []float64
	sigma2    float64
	aic       float64

	stages [][]float64
	diffs  []int
	resid  []float64
}

func (m *Model) Order() Order    { return m.order }
func (m *Model) AIC() float64    { return m.aic }
func (m *Model) Sigma2() float64 { return m.sigma2 }

// Fit estimates the given order on series.
func Fit(series []float64, order Order) (*Model, error) {
	if order.Period <= 0 {
		order.Period = 1
	}
	stages, diffs := difference(series, order)
	w := stages[len(stages)-1]

	m := &Model{
		order:     order,
		intercept: order.D+order.SD < 2,
		arLags:    order.arLags(),
		maLags:    order.maLags(),
		stages:    stages,
		diffs:     diffs,
	}
	maxLag := 0
	for _, l := range append(append([]int(nil), m.arLags...), m.maLags...) {
		maxLag = max(maxLag, l)
	}

	params := len(m.arLags) + len(m.maLags)
	if m.intercept {
		params++
	}
	if len(w)-maxLag < params+3 {
		return nil, fmt.Errorf("%w: %d differenced points for %s", ErrInsufficientData, len(w), order)
	}

	innovations := make([]float64, len(w))
	start := maxLag
	if len(m.maLags) > 0 {
		long := min(max(2*maxLag, 10), len(w)/3)
		if long < 1 {
			return nil, fmt.Errorf("%w: cannot estimate innovations for %s", ErrInsufficientData, order)
		}
		res, err := longAR(w, long)
		if err != nil {
			return nil, err
		}
		innovations = res
		start = long + maxLag
	}
	rows := len(w) - start
	if rows < params+3 {
		return nil, fmt.Errorf("%w: %d regression rows for %s", ErrInsufficientData, rows, order)
	}
	if params == 0 {
		m.resid = append([]float64(nil), w...)
		return m, m.score(w, 0)
	}

	x := mat.NewDense(rows, params, nil)
	y := mat.NewVecDense(rows, nil)
	for r := 0; r < rows; r++ {
		t := start + r
		y.SetVec(r, w[t])
		c := 0
		if m.intercept {
			x.Set(r, c, 1)
			c++
		}
		for _, l := range m.arLags {
			x.Set(r, c, w[t-l])
			c++
		}
		for _, l := range m.maLags {
			x.Set(r, c, innovations[t-l])
			c++
		}
	}
	var beta mat.VecDense
	if err := beta.SolveVec(x, y); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoConvergence, order, err)
	}

	c := 0
	if m.intercept {
		m.constant = beta.AtVec(c)
		c++
	}
	m.arCoef = make([]float64, len(m.arLags))
	for i := range m.arCoef {
		m.arCoef[i] = beta.AtVec(c)
		c++
	}
	m.maCoef = make([]float64, len(m.maLags))
	for i := range m.maCoef {
		m.maCoef[i] = beta.AtVec(c)
		c++
	}
	stabilize(m.arCoef)
	stabilize(m.maCoef)

	m.resid = m.css(w, maxLag)
	return m, m.score(w, maxLag)
}

// stabilize rescales coefficients whose absolute sum would make the
// recursion explosive.
func stabilize(coef []float64) {
	var sum float64
	for _, c := range coef {
		sum += math.Abs(c)
	}
	if sum >= 0.99 {
		f := 0.98 / sum
		for i := range coef {
			coef[i] *= f
		}
	}
}

func (m *Model) css(w []float64, start int) []float64 {
	resid := make([]float64, len(w))
	for t := start; t < len(w); t++ {
		resid[t] = w[t] - m.step(w, resid, t)
	}
	return resid
}

func (m *Model) step(w, resid []float64, t int) float64 {
	v := m.constant
	for i, l := range m.arLags {
		v += m.arCoef[i] * w[t-l]
	}
	for i, l := range m.maLags {
		v += m.maCoef[i] * resid[t-l]
	}
	return v
}

func (m *Model) score(w []float64, start int) error {
	n := len(w) - start
	var ss float64
	for t := start; t < len(w); t++ {
		ss += m.resid[t] * m.resid[t]
	}
	m.sigma2 = math.Max(ss/float64(n), 1e-12)
	k := len(m.arLags) + len(m.maLags) + 1
	if m.intercept {
		k++
	}
	m.aic = float64(n)*math.Log(m.sigma2) + 2*float64(k)
	if math.IsNaN(m.aic) || math.IsInf(m.aic, 0) {
		return fmt.Errorf("%w: %s produced non-finite likelihood", ErrNoConvergence, m.order)
	}
	return nil
}

// longAR fits AR(order) by least squares and returns its residuals, zero
// where undefined.
func longAR(w []float64, order int) ([]float64, error) {
	rows := len(w) - order
	if rows <= order+1 {
		return nil, fmt.Errorf("%w: long autoregression needs more data", ErrInsufficientData)
	}
	x := mat.NewDense(rows, order+1, nil)
	y := mat.NewVecDense(rows, nil)
	for r := 0; r < rows; r++ {
		t := order + r
		y.SetVec(r, w[t])
		x.Set(r, 0, 1)
		for j := 1; j <= order; j++ {
			x.Set(r, j, w[t-j])
		}
	}
	var beta mat.VecDense
	if err := beta.SolveVec(x, y); err != nil {
		return nil, fmt.Errorf("%w: long autoregression: %v", ErrNoConvergence, err)
	}
	out := make([]float64, len(w))
	for t := order; t < len(w); t++ {
		v := beta.AtVec(0)
		for j := 1; j <= order; j++ {
			v += beta.AtVec(j) * w[t-j]
		}
		out[t] = w[t] - v
	}
	return out, nil
}

// Forecast returns h future values on the original scale.
func (m *Model) Forecast(h int) ([]float64, error) {
	if h <= 0 {
		return nil, nil
	}
	w := m.stages[len(m.stages)-1]
	ext := append(append(make([]float64, 0, len(w)+h), w...), make([]float64, h)...)
	resid := append(append(make([]float64, 0, len(w)+h), m.resid...), make([]float64, h)...)
	for t := len(w); t < len(ext); t++ {
		ext[t] = m.step(ext, resid, t)
	}
	future := ext[len(w):]
	for i := len(m.diffs) - 1; i >= 0; i-- {
		future = integrate(m.stages[i], future, m.diffs[i])
	}
	for _, v := range future {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %s forecast diverged", ErrNoConvergence, m.order)
		}
	}
	return future, nil
}

// difference applies D seasonal then d regular differences and returns every
// intermediate stage with the lag used to reach the next one.
func difference(series []float64, o Order) ([][]float64, []int) {
	stages := [][]float64{append([]float64(nil), series...)}
	var lags []int
	for i := 0; i < o.SD; i++ {
		stages = append(stages, diff(stages[len(stages)-1], o.Period))
		lags = append(lags, o.Period)
	}
	for i := 0; i < o.D; i++ {
		stages = append(stages, diff(stages[len(stages)-1], 1))
		lags = append(lags, 1)
	}
	return stages, lags
}

func diff(x []float64, lag int) []float64 {
	if len(x) <= lag {
		return nil
	}
	out := make([]float64, len(x)-lag)
	for i := lag; i < len(x); i++ {
		out[i-lag] = x[i] - x[i-lag]
	}
	return out
}

func integrate(base, future []float64, lag int) []float64 {
	ext := append(append(make([]float64, 0, len(base)+len(future)), base...), future...)
	for t := len(base); t < len(ext); t++ {
		ext[t] = ext[t-lag] + future[t-len(base)]
	}
	return ext[len(base):]
}
