// Package features derives technical indicator rows from a daily close
// series for the tree-based forecaster.
package features

import (
	"math"

	"cryptobeacon/internal/ta"
)

// MinHistory is the index of the first row whose lag and window features are
// all defined.
const MinHistory = 21

var names = []string{
	"lag_1", "lag_3", "lag_7", "lag_14", "lag_21",
	"sma_7", "ema_7", "sma_14", "ema_14", "sma_21", "ema_21",
	"momentum_7", "momentum_14",
	"volatility_7", "volatility_14",
	"returns_1", "returns_7",
	"price_to_sma7", "price_to_sma14",
}

var lags = []int{1, 3, 7, 14, 21}

// Row is one feature vector. Target is the next close and is only meaningful
// when HasTarget is set.
type Row struct {
	Index     int
	Values    []float64
	Target    float64
	HasTarget bool
}

// Names returns the feature column names in vector order.
func Names() []string {
	out := make([]string, len(names))
	copy(out, names)
	return out
}

type series struct {
	sma7, sma14, sma21 []float64
	ema7, ema14, ema21 []float64
	mom7, mom14        []float64
	vol7, vol14        []float64
	ret1, ret7         []float64
}

func compute(prices []float64) series {
	return series{
		sma7:  ta.SMASeries(prices, 7),
		sma14: ta.SMASeries(prices, 14),
		sma21: ta.SMASeries(prices, 21),
		ema7:  ta.EWMSeries(prices, 7),
		ema14: ta.EWMSeries(prices, 14),
		ema21: ta.EWMSeries(prices, 21),
		mom7:  ta.MomentumSeries(prices, 7),
		mom14: ta.MomentumSeries(prices, 14),
		vol7:  ta.RollingStdSeries(prices, 7),
		vol14: ta.RollingStdSeries(prices, 14),
		ret1:  ta.PctChangeSeries(prices, 1),
		ret7:  ta.PctChangeSeries(prices, 7),
	}
}

func (s series) row(prices []float64, i int) ([]float64, bool) {
	if i < MinHistory || i >= len(prices) {
		return nil, false
	}
	out := make([]float64, 0, len(names))
	for _, lag := range lags {
		out = append(out, prices[i-lag])
	}
	out = append(out,
		s.sma7[i], s.ema7[i], s.sma14[i], s.ema14[i], s.sma21[i], s.ema21[i],
		s.mom7[i], s.mom14[i],
		s.vol7[i], s.vol14[i],
		s.ret1[i], s.ret7[i],
		ratio(prices[i], s.sma7[i]), ratio(prices[i], s.sma14[i]),
	)
	for _, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false
		}
	}
	return out, true
}

func ratio(a, b float64) float64 {
	if b == 0 {
		return math.NaN()
	}
	return a / b
}

// BuildRows returns every valid feature row of prices in chronological
// order. The final row carries no target.
func BuildRows(prices []float64) []Row {
	if len(prices) <= MinHistory {
		return nil
	}
	s := compute(prices)
	rows := make([]Row, 0, len(prices)-MinHistory)
	for i := MinHistory; i < len(prices); i++ {
		values, ok := s.row(prices, i)
		if !ok {
			continue
		}
		row := Row{Index: i, Values: values}
		if i+1 < len(prices) {
			row.Target = prices[i+1]
			row.HasTarget = true
		}
		rows = append(rows, row)
	}
	return rows
}

// TrainingSet splits labeled rows into a design matrix and targets.
func TrainingSet(rows []Row) ([][]float64, []float64) {
	x := make([][]float64, 0, len(rows))
	y := make([]float64, 0, len(rows))
	for _, r := range rows {
		if !r.HasTarget {
			continue
		}
		x = append(x, r.Values)
		y = append(y, r.Target)
	}
	return x, y
}

// Latest returns the feature vector of the most recent price.
func Latest(prices []float64) ([]float64, bool) {
	if len(prices) <= MinHistory {
		return nil, false
	}
	return compute(prices).row(prices, len(prices)-1)
}
