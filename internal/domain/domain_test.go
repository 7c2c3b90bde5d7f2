package domain

import (
	"testing"
	"time"
)

func TestNormalizeSymbol(t *testing.T) {
	cases := map[string]struct {
		want string
		ok   bool
	}{
		"btc":      {"BTC", true},
		" pepe ":   {"PEPE", true},
		"x":        {"X", false},
		"BTC/USDT": {"BTC/USDT", false},
		"":         {"", false},
	}
	for in, tc := range cases {
		got, ok := NormalizeSymbol(in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("NormalizeSymbol(%q) = %q, %v; want %q, %v", in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestClosesSortsByOpenTime(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := []*Candle{
		{OpenTime: base.AddDate(0, 0, 2), Close: 3},
		{OpenTime: base, Close: 1},
		nil,
		{OpenTime: base.AddDate(0, 0, 1), Close: 2},
	}
	got := Closes(candles)
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("unexpected closes: %v", got)
	}
}

func TestDayLabels(t *testing.T) {
	monday := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	got := DayLabels(monday, 3)
	want := []string{"Tue", "Wed", "Thu"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("labels = %v, want %v", got, want)
		}
	}
}

func TestStablecoinsAndPairs(t *testing.T) {
	if !Stablecoins["USDT"] || Stablecoins["BTC"] {
		t.Fatal("unexpected stablecoin table")
	}
	if BinancePair("ETH") != "ETHUSDT" {
		t.Fatalf("unexpected pair %s", BinancePair("ETH"))
	}
	for _, sym := range SupportedSymbols {
		if _, ok := CoinGeckoID[sym]; !ok {
			t.Errorf("%s missing CoinGecko id", sym)
		}
	}
}

func TestTrackedAssetTables(t *testing.T) {
	if len(SupportedSymbols) != len(TrackedAssets) || SupportedSymbols[0] != "BTC" {
		t.Fatalf("unexpected symbols %v", SupportedSymbols)
	}
	for id, sym := range CoinGeckoIDToSymbol {
		if CoinGeckoID[sym] != id {
			t.Errorf("%s and %s do not round trip", sym, id)
		}
	}
}
