package forecast

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"cryptobeacon/internal/ml/features"
	"cryptobeacon/internal/ml/models/gbrt"
	"cryptobeacon/internal/ml/models/lstm"
	"cryptobeacon/internal/ml/models/xgboost"
)

// Tree backends.
const (
	BackendGBRT = "gbrt"
	BackendBoo  = "boo"
	BackendNone = "none"
)

// Config selects the tiers of an orchestrator at startup.
type Config struct {
	TreeBackend    string
	EnableEnsemble bool
	EnableSequence bool
	MinHistory     int
	GBRT           gbrt.Options
	Boo            xgboost.TrainOptions
	Sequence       lstm.Options
	Now            func() time.Time
}

func DefaultConfig() Config {
	return Config{
		TreeBackend:    BackendGBRT,
		EnableEnsemble: true,
		EnableSequence: true,
		MinHistory:     DefaultMinHistory,
		GBRT:           gbrt.DefaultOptions(),
		Boo:            xgboost.DefaultTrainOptions(),
		Sequence:       lstm.DefaultOptions(),
		Now:            time.Now,
	}
}

// TreeFactory resolves a tree backend name. BackendNone yields a nil factory
// and no error.
func TreeFactory(cfg Config) (RegressorFactory, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.TreeBackend)) {
	case BackendGBRT, "":
		opts := cfg.GBRT
		return func() Regressor { return gbrt.New(opts) }, nil
	case BackendBoo, "xgboost":
		opts := cfg.Boo
		return func() Regressor { return xgboost.New(features.Names(), opts) }, nil
	case BackendNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unknown tree backend %q", ErrModelUnavailable, cfg.TreeBackend)
	}
}

// Tiers builds the forecaster chain described by cfg. Backends that cannot be
// resolved are left out.
func Tiers(cfg Config) []Forecaster {
	var tiers []Forecaster
	factory, err := TreeFactory(cfg)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("tree forecaster disabled")
	case factory != nil:
		name := strings.ToLower(strings.TrimSpace(cfg.TreeBackend))
		if name == "" {
			name = BackendGBRT
		}
		tiers = append(tiers, NewTree(name, factory))
	}
	if cfg.EnableEnsemble {
		tiers = append(tiers, NewEnsemble(DefaultMembers(NewSeasonal(cfg.Now))...))
	}
	if cfg.EnableSequence {
		tiers = append(tiers, NewSequence(cfg.Sequence))
	}
	return tiers
}

// Build returns an orchestrator for cfg.
func Build(cfg Config, opts ...Option) *Orchestrator {
	if cfg.MinHistory > 0 {
		opts = append([]Option{WithMinHistory(cfg.MinHistory)}, opts...)
	}
	return NewOrchestrator(Tiers(cfg), opts...)
}
