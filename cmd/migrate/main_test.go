package main

import (
	"bytes"
	"strings"
	"testing"
	"testing/fstest"
	"time"
)

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		t.Fatalf("unexpected error loading embedded migrations: %v", err)
	}
	want := []string{"create_candles", "create_forecast_runs"}
	if len(migrations) != len(want) {
		t.Fatalf("expected %d migrations, got %d", len(want), len(migrations))
	}
	for i, name := range want {
		m := migrations[i]
		if m.Version != int64(i+1) || m.Name != name {
			t.Fatalf("migration %d: got %d %s", i, m.Version, m.Name)
		}
		if m.UpSQL == "" || m.DownSQL == "" {
			t.Fatalf("migration %d: expected non-empty up/down sql", m.Version)
		}
	}
	if !strings.Contains(migrations[1].UpSQL, "forecast_runs") {
		t.Fatal("expected forecast_runs DDL in version 2")
	}
}

func TestLoadMigrationsRejectsBadSets(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"missing down": {
			"migrations/0001_a.up.sql": {Data: []byte("SELECT 1")},
		},
		"bad name": {
			"migrations/first.up.sql": {Data: []byte("SELECT 1")},
		},
		"empty file": {
			"migrations/0001_a.up.sql":   {Data: []byte("  ")},
			"migrations/0001_a.down.sql": {Data: []byte("SELECT 1")},
		},
		"name conflict": {
			"migrations/0001_a.up.sql":   {Data: []byte("SELECT 1")},
			"migrations/0001_b.down.sql": {Data: []byte("SELECT 1")},
		},
		"no files": {},
	}
	for name, fsys := range cases {
		if _, err := loadMigrations(fsys); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func testMigrations() []migration {
	return []migration{
		{Version: 1, Name: "create_candles", UpSQL: "u1", DownSQL: "d1"},
		{Version: 2, Name: "create_forecast_runs", UpSQL: "u2", DownSQL: "d2"},
		{Version: 3, Name: "add_index", UpSQL: "u3", DownSQL: "d3"},
	}
}

func TestPending(t *testing.T) {
	applied := map[int64]time.Time{1: time.Now()}
	got := pending(testMigrations(), applied)
	if len(got) != 2 || got[0].Version != 2 || got[1].Version != 3 {
		t.Fatalf("unexpected pending set: %+v", got)
	}
}

func TestRollbackPlan(t *testing.T) {
	now := time.Now()
	applied := map[int64]time.Time{1: now, 2: now, 3: now}

	plan, err := rollbackPlan(testMigrations(), applied, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan) != 2 || plan[0].Version != 3 || plan[1].Version != 2 {
		t.Fatalf("expected newest first, got %+v", plan)
	}

	if _, err := rollbackPlan(testMigrations(), applied, 0); err == nil {
		t.Fatal("expected error for zero steps")
	}
	if _, err := rollbackPlan(testMigrations(), map[int64]time.Time{9: now}, 1); err == nil {
		t.Fatal("expected error for unknown applied version")
	}
}

func TestWriteStatus(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	if err := writeStatus(&buf, testMigrations()[:2], map[int64]time.Time{1: at}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "0001") || !strings.Contains(out, "2026-03-01T09:30:00Z") {
		t.Fatalf("applied row missing: %s", out)
	}
	if !strings.Contains(out, "create_forecast_runs") || !strings.Contains(out, "pending") {
		t.Fatalf("pending row missing: %s", out)
	}
}

func TestRootCmdRequiresDSN(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	orig := loadEnvFunc
	defer func() { loadEnvFunc = orig }()
	loadEnvFunc = func(...string) error { return nil }

	cmd := newRootCmd()
	cmd.SetArgs([]string{"status"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected missing DSN error, got %v", err)
	}
}

func TestDownRejectsBadSteps(t *testing.T) {
	orig := loadEnvFunc
	defer func() { loadEnvFunc = orig }()
	loadEnvFunc = func(...string) error { return nil }

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--dsn", "postgres://unused", "down", "zero"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "invalid down steps") {
		t.Fatalf("expected steps error, got %v", err)
	}
}
