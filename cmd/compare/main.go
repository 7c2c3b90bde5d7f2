package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"cryptobeacon/internal/bootstrap"
	"cryptobeacon/internal/config"
	"cryptobeacon/internal/domain"
	"cryptobeacon/internal/evaluation"
	"cryptobeacon/internal/forecast"
	"cryptobeacon/internal/provider"
	"cryptobeacon/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
)

type compareFlags struct {
	symbol   string
	input    string
	history  int
	days     int
	samples  int
	workers  int
	output   string
	chart    string
	logLevel string
}

var (
	loadEnvFunc     = godotenv.Load
	loadConfigFunc  = config.Load
	fetchClosesFunc = fetchBinanceCloses
	nowFunc         = time.Now
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &compareFlags{}
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Rolling-window comparison of the forecasting models",
		Long: "Evaluates every primitive forecaster and the ensemble at evenly spaced points\n" +
			"near the end of a daily price history and ranks them by average MAPE.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd.Context(), cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().StringVarP(&f.symbol, "symbol", "s", "BTC", "asset symbol to fetch from Binance")
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "read closes from a file (one price per line) instead of Binance")
	cmd.Flags().IntVar(&f.history, "history", 365, "days of history to fetch")
	cmd.Flags().IntVarP(&f.days, "days", "d", 7, "forecast horizon in days")
	cmd.Flags().IntVarP(&f.samples, "samples", "n", 5, "number of rolling evaluation points")
	cmd.Flags().IntVar(&f.workers, "workers", 4, "models evaluated concurrently")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "write the markdown report to this file instead of stdout")
	cmd.Flags().StringVar(&f.chart, "chart", "", "write an HTML chart of the latest forecasts to this file")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "info", "log level")
	return cmd
}

func runCompare(ctx context.Context, stdout io.Writer, f *compareFlags) error {
	loadEnvFunc()
	if err := logger.Init(logger.Config{Level: f.logLevel, Format: "console"}); err != nil {
		log.Warn().Err(err).Msg("logger configuration")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := loadConfigFunc()

	symbol, ok := domain.NormalizeSymbol(f.symbol)
	if !ok {
		return fmt.Errorf("invalid symbol %q", f.symbol)
	}

	var prices []float64
	var err error
	if f.input != "" {
		prices, err = readCloses(f.input)
	} else {
		prices, err = fetchClosesFunc(ctx, cfg.BinanceBaseURL, symbol, f.history)
	}
	if err != nil {
		return err
	}
	if err := forecast.ValidateSeries(prices); err != nil {
		return err
	}
	log.Info().Str("symbol", symbol).Int("prices", len(prices)).Msg("loaded history")

	fc := bootstrap.ForecastConfig(cfg)
	models := evaluation.DefaultModels(fc)
	ens := forecast.NewEnsemble(forecast.DefaultMembers(forecast.NewSeasonal(fc.Now))...)
	ev := evaluation.NewEvaluator(models, ens, evaluation.Options{
		Days:        f.days,
		Samples:     f.samples,
		Concurrency: f.workers,
	})
	res, err := ev.Run(ctx, prices)
	if err != nil {
		return err
	}

	out := stdout
	if f.output != "" {
		file, err := os.Create(f.output)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}
	if err := evaluation.WriteReport(out, symbol, res, nowFunc()); err != nil {
		return err
	}

	if f.chart != "" {
		file, err := os.Create(f.chart)
		if err != nil {
			return err
		}
		defer file.Close()
		if err := evaluation.RenderChart(file, evaluation.LineLatest(symbol, prices, res, 30)); err != nil {
			return err
		}
		log.Info().Str("path", f.chart).Msg("chart written")
	}
	return nil
}

func fetchBinanceCloses(ctx context.Context, baseURL, symbol string, days int) ([]float64, error) {
	p := provider.NewBinanceProvider(trace.NewNoopTracerProvider().Tracer("compare"), baseURL)
	candles, err := p.FetchDailyCandles(ctx, symbol, days)
	if err != nil {
		return nil, err
	}
	return domain.Closes(candles), nil
}

func readCloses(path string) ([]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var prices []float64
	sc := bufio.NewScanner(file)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		prices = append(prices, v)
	}
	return prices, sc.Err()
}
