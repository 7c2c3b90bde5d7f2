package bot

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cryptobeacon/internal/domain"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"
)

type PriceQuerier interface {
	GetCurrentPrice(ctx context.Context, symbol string) (*domain.PriceSnapshot, error)
}

type ForecastQuerier interface {
	ForecastSymbol(ctx context.Context, symbol string, days int) (*domain.ForecastResult, error)
}

const (
	defaultForecastDays = 7
	maxForecastDays     = 30
	forecastReplyTTL    = 90 * time.Second
)

func StartTelegramBot(prices PriceQuerier, forecasts ForecastQuerier) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		log.Info().Msg("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Telegram bot")
	}

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	b.Handle("/price", func(c tele.Context) error {
		args := c.Args()
		if len(args) == 0 {
			return c.Send(fmt.Sprintf("Usage: /price BTC\nSupported: %s", strings.Join(domain.SupportedSymbols, ", ")))
		}
		symbol := strings.ToUpper(args[0])
		if _, ok := domain.CoinGeckoID[symbol]; !ok {
			return c.Send(fmt.Sprintf("Unknown symbol: %s\nSupported: %s", symbol, strings.Join(domain.SupportedSymbols, ", ")))
		}
		snapshot, err := prices.GetCurrentPrice(context.Background(), symbol)
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching price for %s: %v", symbol, err))
		}
		msg := fmt.Sprintf(
			"%s\nPrice: $%.2f\n24h Change: %.2f%%\n24h Volume: $%.0f",
			symbol, snapshot.PriceUSD, snapshot.Change24hPct, snapshot.Volume24h,
		)
		return c.Send(msg)
	})

	b.Handle("/forecast", func(c tele.Context) error {
		symbol, days, err := parseForecastArgs(c.Args())
		if err != nil {
			return c.Send(err.Error())
		}
		_ = c.Notify(tele.Typing)
		ctx, cancel := context.WithTimeout(context.Background(), forecastReplyTTL)
		defer cancel()
		res, err := forecasts.ForecastSymbol(ctx, symbol, days)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("telegram forecast failed")
			return c.Send(fmt.Sprintf("Could not forecast %s: %v", symbol, err))
		}
		return c.Send(formatForecast(res))
	})

	log.Info().Msg("Telegram bot started")
	go b.Start()
}

func parseForecastArgs(args []string) (string, int, error) {
	if len(args) == 0 {
		return "", 0, fmt.Errorf("Usage: /forecast BTC [days]\nDays: 1-%d, default %d", maxForecastDays, defaultForecastDays)
	}
	symbol, ok := domain.NormalizeSymbol(args[0])
	if !ok {
		return "", 0, fmt.Errorf("Invalid symbol: %s", args[0])
	}
	days := defaultForecastDays
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 || n > maxForecastDays {
			return "", 0, fmt.Errorf("Days must be a number between 1 and %d", maxForecastDays)
		}
		days = n
	}
	return symbol, days, nil
}

func formatForecast(res *domain.ForecastResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %d-day forecast (%s)\n", res.Symbol, len(res.Forecast), res.Model)
	fmt.Fprintf(&sb, "Now: %s\n", formatPrice(res.CurrentPrice))
	for i, v := range res.Forecast {
		label := fmt.Sprintf("Day %d", i+1)
		if i < len(res.Labels) {
			label = res.Labels[i]
		}
		fmt.Fprintf(&sb, "%s: %s\n", label, formatPrice(v))
	}
	fmt.Fprintf(&sb, "Change: %+.2f%%", res.ChangePercent)
	return sb.String()
}

// formatPrice keeps significant digits for sub-cent assets.
func formatPrice(v float64) string {
	switch {
	case v >= 1:
		return fmt.Sprintf("$%.2f", v)
	case v >= 0.01:
		return fmt.Sprintf("$%.4f", v)
	default:
		return fmt.Sprintf("$%.8f", v)
	}
}
