package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	orig := output
	origLogger := log.Logger
	origLevel := zerolog.GlobalLevel()
	buf := &bytes.Buffer{}
	output = buf
	t.Cleanup(func() {
		output = orig
		log.Logger = origLogger
		zerolog.SetGlobalLevel(origLevel)
	})
	return buf
}

func TestInitJSON(t *testing.T) {
	buf := captureOutput(t)
	if err := Init(Config{Level: "warn", Format: "json"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	log.Info().Msg("hidden")
	log.Warn().Str("symbol", "BTC").Msg("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %s", out)
	}
	if !strings.Contains(out, `"symbol":"BTC"`) || !strings.Contains(out, `"level":"warn"`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestInitInvalidLevelFallsBackToInfo(t *testing.T) {
	captureOutput(t)
	if err := Init(Config{Level: "loud"}); err == nil {
		t.Fatal("expected error for invalid level")
	}
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info level, got %s", zerolog.GlobalLevel())
	}
}

func TestComponentTagsLines(t *testing.T) {
	buf := captureOutput(t)
	if err := Init(Config{Level: "debug", Format: "json"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l := Component("poller")
	l.Info().Msg("tick")
	if !strings.Contains(buf.String(), `"component":"poller"`) {
		t.Fatalf("missing component field: %s", buf.String())
	}
}
