package cache

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Client is nil when Redis is unreachable at startup; services then skip
// caching and compute every forecast.
var Client *redis.Client

// PriceKey holds the latest spot snapshot for a symbol.
func PriceKey(symbol string) string { return "price:" + symbol }

// ForecastKey holds a served forecast for a symbol and horizon.
func ForecastKey(symbol string, days int) string {
	return "forecast:" + symbol + ":" + strconv.Itoa(days)
}

var (
	newRedisClient = func(opts *redis.Options) *redis.Client {
		return redis.NewClient(opts)
	}
	pingRedis = func(ctx context.Context, client *redis.Client) error {
		return client.Ping(ctx).Err()
	}
)

// Options turns REDIS_URL into client options. Both a bare host:port and a
// redis:// or rediss:// URL are accepted.
func Options(raw string) (*redis.Options, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "localhost:6379"
	}
	var opts *redis.Options
	if strings.HasPrefix(raw, "redis://") || strings.HasPrefix(raw, "rediss://") {
		parsed, err := redis.ParseURL(raw)
		if err != nil {
			return nil, err
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: raw}
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 3 * time.Second
	}
	return opts, nil
}

// InitRedis connects Client. A bad URL is fatal; an unreachable server only
// disables the cache.
func InitRedis(ctx context.Context) {
	opts, err := Options(os.Getenv("REDIS_URL"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse REDIS_URL")
	}

	client := newRedisClient(opts)
	if err := pingRedis(ctx, client); err != nil {
		log.Warn().Err(err).Str("addr", opts.Addr).Msg("Redis unreachable, caching disabled")
		_ = client.Close()
		Client = nil
		return
	}
	Client = client
	log.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
}

func Close() {
	if Client != nil {
		_ = Client.Close()
		Client = nil
	}
}
