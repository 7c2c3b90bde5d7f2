package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"cryptobeacon/internal/domain"
)

type fakeForecasts struct {
	calls []string
	err   error
}

func (f *fakeForecasts) ForecastSymbol(_ context.Context, symbol string, days int) (*domain.ForecastResult, error) {
	f.calls = append(f.calls, symbol)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float64, days)
	for i := range out {
		out[i] = 100 + float64(i+1)
	}
	return &domain.ForecastResult{
		Symbol:         symbol,
		CurrentPrice:   100,
		PredictedPrice: out[days-1],
		ChangePercent:  float64(days),
		Forecast:       out,
		Labels:         domain.DayLabels(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), days),
		Model:          "ensemble",
	}, nil
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestNewAppModelDefaults(t *testing.T) {
	m := NewAppModel(Services{})
	if m.Symbol() != domain.SupportedSymbols[0] {
		t.Fatalf("expected first supported symbol, got %s", m.Symbol())
	}
	if m.Days() != 7 {
		t.Fatalf("expected 7 days, got %d", m.Days())
	}
	if !m.loading {
		t.Fatal("expected initial loading state")
	}
}

func TestArrowKeysCycleSymbols(t *testing.T) {
	m := NewAppModel(Services{Symbols: []string{"BTC", "ETH", "SOL"}})
	m.Update(keyMsg("right"))
	if m.Symbol() != "ETH" {
		t.Fatalf("expected ETH, got %s", m.Symbol())
	}
	m.Update(keyMsg("left"))
	m.Update(keyMsg("left"))
	if m.Symbol() != "SOL" {
		t.Fatalf("expected wrap to SOL, got %s", m.Symbol())
	}
}

func TestDaysStayInRange(t *testing.T) {
	m := NewAppModel(Services{Symbols: []string{"BTC"}, Days: 2, MaxDays: 3})
	m.Update(keyMsg("up"))
	m.Update(keyMsg("up"))
	if m.Days() != 3 {
		t.Fatalf("expected days capped at 3, got %d", m.Days())
	}
	for range 5 {
		m.Update(keyMsg("down"))
	}
	if m.Days() != 1 {
		t.Fatalf("expected days floored at 1, got %d", m.Days())
	}
}

func TestFetchRendersTable(t *testing.T) {
	svc := &fakeForecasts{}
	m := NewAppModel(Services{Forecasts: svc, Symbols: []string{"BTC"}, Days: 3})
	msg := m.fetch()()
	m.Update(msg)
	if m.loading || m.result == nil {
		t.Fatal("expected result after fetch")
	}
	view := m.View()
	for _, want := range []string{"BTC", "$103.00", "ensemble", "Total"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestStaleResultIgnored(t *testing.T) {
	svc := &fakeForecasts{}
	m := NewAppModel(Services{Forecasts: svc, Symbols: []string{"BTC", "ETH"}})
	stale := m.fetch()()
	m.Update(keyMsg("right"))
	m.Update(stale)
	if !m.loading || m.result != nil {
		t.Fatal("expected stale BTC result to be dropped")
	}
}

func TestFetchErrorShown(t *testing.T) {
	m := NewAppModel(Services{Forecasts: &fakeForecasts{err: errors.New("upstream down")}, Symbols: []string{"BTC"}})
	m.Update(m.fetch()())
	if !strings.Contains(m.View(), "upstream down") {
		t.Fatal("expected error in view")
	}
}

func TestQuitKey(t *testing.T) {
	m := NewAppModel(Services{Symbols: []string{"BTC"}})
	_, cmd := m.Update(keyMsg("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}
}
