package evaluation

import (
	"fmt"
	"io"
	"slices"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// LineLatest charts the realized prices around the last test point together
// with every model's forecast made there.
func LineLatest(symbol string, prices []float64, r *Results, lookback int) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(
			opts.Title{
				Title:    fmt.Sprintf("%s forecasts", symbol),
				Subtitle: fmt.Sprintf("%d-day horizon", r.Days),
			},
		),
	)
	if len(r.Points) == 0 {
		return line
	}
	idx := r.Points[len(r.Points)-1]
	from := max(0, idx-lookback)
	to := min(len(prices), idx+r.Days)

	x := make([]int, 0, to-from)
	actual := make([]opts.LineData, 0, to-from)
	for i := from; i < to; i++ {
		x = append(x, i)
		actual = append(actual, opts.LineData{Value: prices[i]})
	}
	line.SetXAxis(x).AddSeries("Actual", actual)

	var latest []Sample
	for _, s := range r.Samples {
		if s.TrainSize == idx {
			latest = append(latest, s)
		}
	}
	slices.SortFunc(latest, func(a, b Sample) int {
		switch {
		case a.Model < b.Model:
			return -1
		case a.Model > b.Model:
			return 1
		}
		return 0
	})
	for _, s := range latest {
		data := make([]opts.LineData, 0, to-from)
		for i := from; i < to; i++ {
			if i < idx || i-idx >= len(s.Forecast) {
				data = append(data, opts.LineData{Value: "-"})
				continue
			}
			data = append(data, opts.LineData{Value: s.Forecast[i-idx]})
		}
		line.AddSeries(s.Model, data)
	}
	return line
}

// RenderChart writes a standalone HTML page with the chart.
func RenderChart(w io.Writer, line *charts.Line) error {
	page := components.NewPage()
	page.AddCharts(line)
	return page.Render(w)
}
