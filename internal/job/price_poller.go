package job

import (
	"context"
	"sync/atomic"
	"time"

	"cryptobeacon/internal/domain"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

type PriceDataRefresher interface {
	RefreshPrices(ctx context.Context) error
	RefreshShortCandles(ctx context.Context, symbol string) error
	RefreshDailyCandles(ctx context.Context, symbol string, limit int) error
}

// ForecastWarmer is satisfied by *service.ForecastService.
type ForecastWarmer interface {
	ForecastSymbol(ctx context.Context, symbol string, days int) (*domain.ForecastResult, error)
}

// rotation walks the tracked symbols perTick at a time, every interval,
// after an initial delay that staggers it against the other loops.
type rotation struct {
	name     string
	delay    time.Duration
	interval time.Duration
	perTick  int
	run      func(ctx context.Context, symbol string) error
}

// PricePoller keeps spot prices, intraday candles and the daily history the
// forecaster reads fresh, and optionally pre-computes forecasts.
type PricePoller struct {
	tracer       trace.Tracer
	priceService PriceDataRefresher
	pollInterval time.Duration
	historyDays  int
	symbols      []string

	warmer     ForecastWarmer
	warmDays   int
	warmedRuns atomic.Int64
}

// NewPricePoller refreshes spot prices every pollIntervalSecs and keeps
// historyDays of daily candles per symbol in storage.
func NewPricePoller(tracer trace.Tracer, priceService PriceDataRefresher, pollIntervalSecs, historyDays int) *PricePoller {
	if historyDays <= 0 {
		historyDays = 180
	}
	if pollIntervalSecs <= 0 {
		pollIntervalSecs = 60
	}
	return &PricePoller{
		tracer:       tracer,
		priceService: priceService,
		pollInterval: time.Duration(pollIntervalSecs) * time.Second,
		historyDays:  historyDays,
		symbols:      domain.SupportedSymbols,
	}
}

// SetWarmer makes the daily rotation compute a days-ahead forecast for each
// symbol right after its history is refreshed, so the cache is hot.
func (p *PricePoller) SetWarmer(w ForecastWarmer, days int) {
	p.warmer = w
	p.warmDays = days
}

func (p *PricePoller) rotations() []rotation {
	return []rotation{
		{
			name:     "short-candles",
			delay:    10 * time.Second,
			interval: 5 * time.Minute,
			perTick:  2,
			run:      p.priceService.RefreshShortCandles,
		},
		{
			name:     "daily-candles",
			delay:    30 * time.Second,
			interval: 30 * time.Minute,
			perTick:  1,
			run:      p.refreshDaily,
		},
	}
}

// Start runs every polling loop until ctx is cancelled.
func (p *PricePoller) Start(ctx context.Context) {
	log.Info().Dur("interval", p.pollInterval).Int("history_days", p.historyDays).
		Bool("warm_forecasts", p.warmer != nil).Msg("price poller starting")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p.every(ctx, "current-prices", 0, p.pollInterval, p.priceService.RefreshPrices)
		return nil
	})
	for _, r := range p.rotations() {
		g.Go(func() error {
			next := 0
			p.every(ctx, r.name, r.delay, r.interval, func(ctx context.Context) error {
				p.tick(ctx, r, &next)
				return nil
			})
			return nil
		})
	}
	_ = g.Wait()
	log.Info().Msg("price poller stopped")
}

// every runs fn after delay, then on each interval tick until ctx is done.
func (p *PricePoller) every(ctx context.Context, name string, delay, interval time.Duration, fn func(context.Context) error) {
	if delay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}

	run := func() {
		if err := fn(ctx); err != nil {
			log.Warn().Err(err).Str("poller", name).Msg("poll failed")
		}
	}
	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

func (p *PricePoller) tick(ctx context.Context, r rotation, next *int) {
	if len(p.symbols) == 0 {
		return
	}
	ctx, span := p.tracer.Start(ctx, "price-poller."+r.name)
	defer span.End()

	for i := 0; i < r.perTick; i++ {
		symbol := p.symbols[*next%len(p.symbols)]
		*next++
		span.SetAttributes(attribute.String("symbol", symbol))
		if err := r.run(ctx, symbol); err != nil {
			log.Warn().Err(err).Str("poller", r.name).Str("symbol", symbol).Msg("refresh failed")
		}
	}
}

func (p *PricePoller) refreshDaily(ctx context.Context, symbol string) error {
	if err := p.priceService.RefreshDailyCandles(ctx, symbol, p.historyDays); err != nil {
		return err
	}
	if p.warmer == nil {
		return nil
	}
	res, err := p.warmer.ForecastSymbol(ctx, symbol, p.warmDays)
	if err != nil {
		log.Debug().Err(err).Str("symbol", symbol).Msg("forecast warm-up failed")
		return nil
	}
	p.warmedRuns.Add(1)
	log.Debug().Str("symbol", symbol).Str("model", res.Model).Msg("forecast cache warmed")
	return nil
}
