// Package seasonal fits a decomposable daily time series model: a piecewise
// linear trend with automatic changepoints, Fourier seasonalities and US
// holiday effects, estimated jointly by ridge regression.
package seasonal

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/us"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrNotFitted        = errors.New("seasonal: model not fitted")
	ErrInsufficientData = errors.New("seasonal: insufficient data")
	ErrNonPositive      = errors.New("seasonal: multiplicative mode requires positive values")
)

const day = 24 * time.Hour

// Seasonality is a Fourier series with the given period in days.
type Seasonality struct {
	Name   string
	Period float64
	Order  int
}

// Options configures the model. Yearly seasonality is only added when the
// training span reaches YearlyMinSpan days.
type Options struct {
	Changepoints     int
	ChangepointRange float64
	ChangepointPrior float64
	SeasonalityPrior float64
	HolidayPrior     float64
	Multiplicative   bool
	Seasonalities    []Seasonality
	Yearly           Seasonality
	YearlyMinSpan    float64
	Holidays         []*cal.Holiday
	HolidayWindow    int
}

func DefaultOptions() Options {
	return Options{
		Changepoints:     30,
		ChangepointRange: 0.9,
		ChangepointPrior: 0.25,
		SeasonalityPrior: 15,
		HolidayPrior:     10,
		Multiplicative:   true,
		Seasonalities: []Seasonality{
			{Name: "weekly", Period: 7, Order: 3},
			{Name: "monthly", Period: 30.5, Order: 5},
		},
		Yearly:        Seasonality{Name: "yearly", Period: 365.25, Order: 10},
		YearlyMinSpan: 365,
		Holidays:      []*cal.Holiday{us.ChristmasDay, us.ThanksgivingDay},
		HolidayWindow: 1,
	}
}

// DailyTimestamps returns n consecutive midnights ending on the day of end.
func DailyTimestamps(end time.Time, n int) []time.Time {
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = last.Add(-time.Duration(n-1-i) * day)
	}
	return out
}

type Model struct {
	opts          Options
	start         time.Time
	span          float64
	changepoints  []float64
	seasonalities []Seasonality
	holidays      []*cal.Holiday
	beta          []float64
	level         float64
	fitted        bool
}

func New(opts Options) *Model {
	if opts.ChangepointRange <= 0 || opts.ChangepointRange > 1 {
		opts.ChangepointRange = 0.9
	}
	if opts.ChangepointPrior <= 0 {
		opts.ChangepointPrior = 0.05
	}
	if opts.SeasonalityPrior <= 0 {
		opts.SeasonalityPrior = 10
	}
	if opts.HolidayPrior <= 0 {
		opts.HolidayPrior = 10
	}
	return &Model{opts: opts}
}

// penalty maps a prior scale onto a ridge coefficient for targets of unit
// magnitude.
func penalty(prior float64) float64 {
	return 0.01 / (prior * prior)
}

func (m *Model) Fit(t []time.Time, y []float64) error {
	if len(t) != len(y) {
		return fmt.Errorf("seasonal: %d timestamps for %d values", len(t), len(y))
	}
	if len(y) < 14 {
		return fmt.Errorf("%w: %d points", ErrInsufficientData, len(y))
	}
	target, level, err := m.transform(y)
	if err != nil {
		return err
	}

	m.start = t[0]
	m.span = t[len(t)-1].Sub(t[0]).Hours() / 24
	if m.span <= 0 {
		return fmt.Errorf("%w: zero time span", ErrInsufficientData)
	}
	m.level = level

	m.changepoints = m.changepoints[:0]
	count := min(m.opts.Changepoints, int(m.opts.ChangepointRange*float64(len(y)))-1)
	for j := 1; j <= count; j++ {
		m.changepoints = append(m.changepoints, m.opts.ChangepointRange*float64(j)/float64(count+1))
	}
	m.seasonalities = append([]Seasonality(nil), m.opts.Seasonalities...)
	if m.opts.Yearly.Order > 0 && m.opts.YearlyMinSpan > 0 && m.span >= m.opts.YearlyMinSpan {
		m.seasonalities = append(m.seasonalities, m.opts.Yearly)
	}
	m.holidays = m.holidays[:0]
	for _, h := range m.opts.Holidays {
		for _, ts := range t {
			if m.nearHoliday(h, ts) {
				m.holidays = append(m.holidays, h)
				break
			}
		}
	}

	lambdas := m.penalties()
	cols := len(lambdas)
	var penalized int
	for _, l := range lambdas {
		if l > 0 {
			penalized++
		}
	}
	rows := len(y) + penalized
	x := mat.NewDense(rows, cols, nil)
	b := mat.NewVecDense(rows, nil)
	for i, ts := range t {
		x.SetRow(i, m.features(ts))
		b.SetVec(i, target[i])
	}
	r := len(y)
	for j, l := range lambdas {
		if l > 0 {
			x.Set(r, j, math.Sqrt(l))
			r++
		}
	}

	var beta mat.VecDense
	if err := beta.SolveVec(x, b); err != nil {
		return fmt.Errorf("seasonal: ridge solve: %w", err)
	}
	m.beta = make([]float64, cols)
	for j := range m.beta {
		m.beta[j] = beta.AtVec(j)
		if math.IsNaN(m.beta[j]) || math.IsInf(m.beta[j], 0) {
			return errors.New("seasonal: non-finite coefficients")
		}
	}
	m.fitted = true
	return nil
}

func (m *Model) transform(y []float64) ([]float64, float64, error) {
	out := make([]float64, len(y))
	if m.opts.Multiplicative {
		var sum float64
		for _, v := range y {
			if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, 0, ErrNonPositive
			}
			sum += v
		}
		level := sum / float64(len(y))
		for i, v := range y {
			out[i] = math.Log(v / level)
		}
		return out, level, nil
	}
	var level float64
	for _, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, 0, errors.New("seasonal: non-finite input")
		}
		level = math.Max(level, math.Abs(v))
	}
	if level == 0 {
		level = 1
	}
	for i, v := range y {
		out[i] = v / level
	}
	return out, level, nil
}

func (m *Model) penalties() []float64 {
	out := []float64{0, 0}
	for range m.changepoints {
		out = append(out, penalty(m.opts.ChangepointPrior))
	}
	for _, s := range m.seasonalities {
		for k := 0; k < 2*s.Order; k++ {
			out = append(out, penalty(m.opts.SeasonalityPrior))
		}
	}
	for range m.holidays {
		out = append(out, penalty(m.opts.HolidayPrior))
	}
	return out
}

func (m *Model) features(ts time.Time) []float64 {
	days := ts.Sub(m.start).Hours() / 24
	tau := days / m.span
	out := make([]float64, 0, 2+len(m.changepoints))
	out = append(out, 1, tau)
	for _, c := range m.changepoints {
		out = append(out, math.Max(0, tau-c))
	}
	for _, s := range m.seasonalities {
		for k := 1; k <= s.Order; k++ {
			arg := 2 * math.Pi * float64(k) * days / s.Period
			out = append(out, math.Sin(arg), math.Cos(arg))
		}
	}
	for _, h := range m.holidays {
		if m.nearHoliday(h, ts) {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
	}
	return out
}

func (m *Model) nearHoliday(h *cal.Holiday, ts time.Time) bool {
	d := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	for _, year := range []int{d.Year() - 1, d.Year(), d.Year() + 1} {
		_, observed := h.Calc(year)
		if observed.IsZero() {
			continue
		}
		o := time.Date(observed.Year(), observed.Month(), observed.Day(), 0, 0, 0, 0, time.UTC)
		gap := math.Abs(d.Sub(o).Hours() / 24)
		if gap <= float64(m.opts.HolidayWindow) {
			return true
		}
	}
	return false
}

// Predict evaluates the fitted model at each timestamp.
func (m *Model) Predict(t []time.Time) ([]float64, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}
	out := make([]float64, len(t))
	for i, ts := range t {
		var v float64
		for j, f := range m.features(ts) {
			v += m.beta[j] * f
		}
		if m.opts.Multiplicative {
			v = math.Exp(v) * m.level
		} else {
			v *= m.level
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.New("seasonal: non-finite prediction")
		}
		out[i] = v
	}
	return out, nil
}

// Components reports the names of the seasonal and holiday terms in use.
func (m *Model) Components() []string {
	out := make([]string, 0, len(m.seasonalities)+len(m.holidays))
	for _, s := range m.seasonalities {
		out = append(out, s.Name)
	}
	for _, h := range m.holidays {
		out = append(out, h.Name)
	}
	return out
}
