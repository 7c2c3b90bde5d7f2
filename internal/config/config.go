package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

type Config struct {
	TelegramBotToken  string
	DatabaseURL       string
	RedisURL          string
	CoinGeckoPollSecs int
	BinanceBaseURL    string
	APIKey            string
	HTTPPort          int

	LogLevel  string
	LogFormat string

	SSHPort        int
	SSHHostKeyPath string

	ForecastDefaultDays    int
	ForecastMaxDays        int
	ForecastHistoryDays    int
	ForecastTreeBackend    string
	ForecastEnableEnsemble bool
	ForecastEnableSequence bool
	ForecastCacheTTLSecs   int
	ForecastTimeoutSecs    int
	ForecastMaxConcurrent  int
	ForecastMinHistory     int
	ForecastWarmCache      bool
}

func Load() *Config {
	cfg := &Config{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		APIKey:           strings.TrimSpace(os.Getenv("API_KEY")),
	}

	if cfg.TelegramBotToken == "" {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN not set")
	}
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set")
	}
	if cfg.RedisURL == "" {
		log.Warn().Msg("REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}
	if cfg.APIKey == "" {
		log.Warn().Msg("API_KEY not set, POST /api/forecast is unauthenticated")
	}

	cfg.BinanceBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("BINANCE_BASE_URL")), "/")
	if cfg.BinanceBaseURL == "" {
		cfg.BinanceBaseURL = "https://api.binance.com"
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT")))
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		if cfg.LogFormat != "" {
			log.Warn().Str("value", cfg.LogFormat).Msg("unsupported LOG_FORMAT, defaulting to console")
		}
		cfg.LogFormat = "console"
	}

	cfg.CoinGeckoPollSecs = positiveInt("COINGECKO_POLL_SECS", 60)
	cfg.HTTPPort = positiveInt("HTTP_PORT", 8080)
	cfg.SSHPort = positiveInt("SSH_PORT", 2222)
	cfg.SSHHostKeyPath = strings.TrimSpace(os.Getenv("SSH_HOST_KEY_PATH"))
	if cfg.SSHHostKeyPath == "" {
		cfg.SSHHostKeyPath = ".ssh/cryptobeacon_ed25519"
	}

	cfg.ForecastMaxDays = positiveInt("FORECAST_MAX_DAYS", 30)
	cfg.ForecastDefaultDays = positiveInt("FORECAST_DEFAULT_DAYS", 7)
	if cfg.ForecastDefaultDays > cfg.ForecastMaxDays {
		log.Warn().
			Int("default_days", cfg.ForecastDefaultDays).
			Int("max_days", cfg.ForecastMaxDays).
			Msg("FORECAST_DEFAULT_DAYS exceeds FORECAST_MAX_DAYS, clamping")
		cfg.ForecastDefaultDays = cfg.ForecastMaxDays
	}
	cfg.ForecastHistoryDays = positiveInt("FORECAST_HISTORY_DAYS", 180)
	cfg.ForecastCacheTTLSecs = positiveInt("FORECAST_CACHE_TTL_SECONDS", 3600)
	cfg.ForecastTimeoutSecs = positiveInt("FORECAST_TIMEOUT_SECONDS", 60)
	cfg.ForecastMaxConcurrent = positiveInt("FORECAST_MAX_CONCURRENT", 2)
	cfg.ForecastMinHistory = positiveInt("FORECAST_MIN_HISTORY", 30)

	cfg.ForecastTreeBackend = strings.ToLower(strings.TrimSpace(os.Getenv("FORECAST_TREE_BACKEND")))
	if cfg.ForecastTreeBackend == "" {
		cfg.ForecastTreeBackend = "gbrt"
	}
	cfg.ForecastEnableEnsemble = boolEnv("FORECAST_ENABLE_ENSEMBLE", true)
	cfg.ForecastEnableSequence = boolEnv("FORECAST_ENABLE_SEQUENCE", true)
	cfg.ForecastWarmCache = boolEnv("FORECAST_WARM_CACHE", false)

	return cfg
}

func positiveInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Warn().Str("key", key).Str("value", v).Int("default", def).Msg("invalid value, using default")
		return def
	}
	return n
}

func boolEnv(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Bool("default", def).Msg("invalid value, using default")
		return def
	}
	return b
}
