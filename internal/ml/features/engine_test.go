package features

import (
	"testing"
)

func TestBuildRowsStartsAtLongestLag(t *testing.T) {
	prices := ramp(40)
	rows := BuildRows(prices)
	if len(rows) != 40-MinHistory {
		t.Fatalf("expected %d rows, got %d", 40-MinHistory, len(rows))
	}
	if rows[0].Index != MinHistory {
		t.Fatalf("expected first row at %d, got %d", MinHistory, rows[0].Index)
	}
	if len(rows[0].Values) != len(Names()) {
		t.Fatalf("expected %d features, got %d", len(Names()), len(rows[0].Values))
	}
	last := rows[len(rows)-1]
	if last.HasTarget {
		t.Fatal("expected final row to have no target")
	}
	if !rows[0].HasTarget || rows[0].Target != prices[MinHistory+1] {
		t.Fatalf("expected target %v, got %+v", prices[MinHistory+1], rows[0])
	}
}

func TestBuildRowsLagValues(t *testing.T) {
	prices := ramp(30)
	rows := BuildRows(prices)
	r := rows[0]
	want := []float64{prices[20], prices[18], prices[14], prices[7], prices[0]}
	for i, w := range want {
		if r.Values[i] != w {
			t.Fatalf("lag column %d: expected %v, got %v", i, w, r.Values[i])
		}
	}
}

func TestTrainingSetDropsUnlabeledRow(t *testing.T) {
	rows := BuildRows(ramp(50))
	x, y := TrainingSet(rows)
	if len(x) != len(rows)-1 || len(y) != len(x) {
		t.Fatalf("expected %d labeled rows, got x=%d y=%d", len(rows)-1, len(x), len(y))
	}
}

func TestLatestRequiresHistory(t *testing.T) {
	if _, ok := Latest(ramp(MinHistory)); ok {
		t.Fatal("expected no features for short history")
	}
	got, ok := Latest(ramp(MinHistory + 1))
	if !ok || len(got) != len(Names()) {
		t.Fatalf("expected full vector, got ok=%v len=%d", ok, len(got))
	}
}

func ramp(n int) []float64 {
	out := make([]float64, n)
	price := 100.0
	for i := range out {
		price += 0.8
		if i%3 == 0 {
			price -= 0.5
		}
		out[i] = price
	}
	return out
}
