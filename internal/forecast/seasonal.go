package forecast

import (
	"time"

	"cryptobeacon/internal/ml/models/seasonal"
)

// Seasonal fits the date-indexed seasonal model on synthetic daily
// timestamps ending today. The dates only fix the ordering and spacing.
type Seasonal struct {
	opts seasonal.Options
	now  func() time.Time
}

func NewSeasonal(now func() time.Time) *Seasonal {
	if now == nil {
		now = time.Now
	}
	return &Seasonal{opts: seasonal.DefaultOptions(), now: now}
}

func (s *Seasonal) Name() string { return "seasonal" }

func (s *Seasonal) Forecast(prices []float64, days int) ([]float64, error) {
	all := seasonal.DailyTimestamps(s.now().UTC().AddDate(0, 0, days), len(prices)+days)
	model := seasonal.New(s.opts)
	if err := model.Fit(all[:len(prices)], prices); err != nil {
		return nil, classify(s.Name(), err, seasonal.ErrInsufficientData)
	}
	out, err := model.Predict(all[len(prices):])
	if err != nil {
		return nil, classify(s.Name(), err)
	}
	return Anchor(out, prices[len(prices)-1]), nil
}
