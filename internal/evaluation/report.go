package evaluation

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"cryptobeacon/internal/ta"
)

// Summary aggregates one model's samples.
type Summary struct {
	Model    string
	Samples  int
	Failures int
	AvgMAPE  float64
	StdMAPE  float64
	AvgMAE   float64
	AvgRMSE  float64
	AvgTime  time.Duration
}

// Summarize ranks models by average MAPE, lowest first. Models that never
// succeeded are omitted.
func Summarize(r *Results) []Summary {
	var out []Summary
	for name, samples := range r.ByModel() {
		mape := make([]float64, len(samples))
		mae := make([]float64, len(samples))
		rmse := make([]float64, len(samples))
		var elapsed time.Duration
		for i, s := range samples {
			mape[i] = s.Metrics.MAPE
			mae[i] = s.Metrics.MAE
			rmse[i] = s.Metrics.RMSE
			elapsed += s.Elapsed
		}
		avgMAPE, stdMAPE := ta.MeanStd(mape)
		avgMAE, _ := ta.MeanStd(mae)
		avgRMSE, _ := ta.MeanStd(rmse)
		out = append(out, Summary{
			Model:    name,
			Samples:  len(samples),
			Failures: r.Failures[name],
			AvgMAPE:  avgMAPE,
			StdMAPE:  stdMAPE,
			AvgMAE:   avgMAE,
			AvgRMSE:  avgRMSE,
			AvgTime:  elapsed / time.Duration(len(samples)),
		})
	}
	slices.SortFunc(out, func(a, b Summary) int {
		if a.AvgMAPE != b.AvgMAPE {
			if a.AvgMAPE < b.AvgMAPE {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Model, b.Model)
	})
	return out
}

// WriteReport renders the ranked markdown report.
func WriteReport(w io.Writer, symbol string, r *Results, generated time.Time) error {
	summary := Summarize(r)
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s forecast model comparison\n\n", symbol)
	fmt.Fprintf(&sb, "**Generated**: %s\n\n", generated.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "%d rolling evaluations with %d-day forecasts (training sizes %v).\n\n", len(r.Points), r.Days, r.Points)

	sb.WriteString("| Rank | Model | Avg MAPE | Std Dev | Avg MAE | Avg RMSE | Avg Time | Failures |\n")
	sb.WriteString("|------|-------|----------|---------|---------|----------|----------|----------|\n")
	for i, s := range summary {
		fmt.Fprintf(&sb, "| %d | **%s** | %.2f%% | ±%.2f%% | %.4f | %.4f | %.2fs | %d |\n",
			i+1, s.Model, s.AvgMAPE, s.StdMAPE, s.AvgMAE, s.AvgRMSE, s.AvgTime.Seconds(), s.Failures)
	}
	for name, n := range r.Failures {
		if !slices.ContainsFunc(summary, func(s Summary) bool { return s.Model == name }) {
			fmt.Fprintf(&sb, "| - | %s | failed | | | | | %d |\n", name, n)
		}
	}

	if len(summary) > 0 {
		best := summary[0]
		fmt.Fprintf(&sb, "\n## Recommendation\n\n**%s** has the lowest average error at %.2f%% MAPE.\n", best.Model, best.AvgMAPE)
	} else {
		sb.WriteString("\nNo model produced a usable forecast.\n")
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
