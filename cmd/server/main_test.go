package main

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/tphummel/rackops/internal/catalog"
	"github.com/tphummel/rackops/internal/sim"
)

var configVars = []string{
	"API_TOKEN", "DB_PATH", "PORT", "SESSION_ID", "CATALOG_PATH",
	"TICK_INTERVAL", "AUTOSAVE_INTERVAL", "LOG_LEVEL",
}

// clearConfigEnv blanks every config variable for the duration of the test.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, v := range configVars {
		t.Setenv(v, "")
	}
}

func TestLoadConfig_MissingToken(t *testing.T) {
	clearConfigEnv(t)
	if _, err := loadConfig(); err == nil {
		t.Fatal("expected error when API_TOKEN is unset, got nil")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("API_TOKEN", "my-token")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DBPath != "./rackops.db" {
		t.Errorf("DB_PATH default: got %q, want ./rackops.db", cfg.DBPath)
	}
	if cfg.Port != "8080" {
		t.Errorf("PORT default: got %q, want 8080", cfg.Port)
	}
	if cfg.Session != "default" {
		t.Errorf("SESSION_ID default: got %q, want default", cfg.Session)
	}
	if cfg.TickInterval != 100*time.Millisecond {
		t.Errorf("TICK_INTERVAL default: got %v", cfg.TickInterval)
	}
	if cfg.AutosaveInterval != 30*time.Second {
		t.Errorf("AUTOSAVE_INTERVAL default: got %v", cfg.AutosaveInterval)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LOG_LEVEL default: got %v", cfg.LogLevel)
	}
}

func TestLoadConfig_CustomValues(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("API_TOKEN", "secret")
	t.Setenv("DB_PATH", "/data/rackops.db")
	t.Setenv("PORT", "9090")
	t.Setenv("SESSION_ID", "campaign-2")
	t.Setenv("TICK_INTERVAL", "250ms")
	t.Setenv("AUTOSAVE_INTERVAL", "0s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Token != "secret" || cfg.DBPath != "/data/rackops.db" || cfg.Port != "9090" || cfg.Session != "campaign-2" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.TickInterval != 250*time.Millisecond {
		t.Errorf("TickInterval: got %v", cfg.TickInterval)
	}
	if cfg.AutosaveInterval != 0 {
		t.Errorf("AutosaveInterval: got %v", cfg.AutosaveInterval)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel: got %v", cfg.LogLevel)
	}
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	tests := []struct{ key, value string }{
		{"TICK_INTERVAL", "fast"},
		{"TICK_INTERVAL", "0s"},
		{"AUTOSAVE_INTERVAL", "often"},
		{"LOG_LEVEL", "chatty"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv("API_TOKEN", "secret")
			t.Setenv(tt.key, tt.value)
			if _, err := loadConfig(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestLoadCatalog_Default(t *testing.T) {
	cat, err := loadCatalog("")
	if err != nil {
		t.Fatalf("loadCatalog: %v", err)
	}
	if _, ok := cat.HardwareByID("rack_std_01"); !ok {
		t.Error("default catalog missing rack_std_01")
	}
	if _, err := loadCatalog("/does/not/exist.yaml"); err == nil {
		t.Error("expected error for missing catalog file")
	}
}

type memStore struct {
	mu    sync.Mutex
	saves int
	data  []byte
}

func (m *memStore) Save(_ context.Context, _ string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.data = data
	return nil
}

func (m *memStore) Load(context.Context, string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data, nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func TestRunLoop_TicksAndAutosaves(t *testing.T) {
	engine, err := sim.New(sim.DefaultConfig(), catalog.Default(), nil)
	if err != nil {
		t.Fatalf("sim.New: %v", err)
	}
	store := &memStore{}
	cfg := config{Session: "loop", TickInterval: 5 * time.Millisecond, AutosaveInterval: 20 * time.Millisecond}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		runLoop(ctx, engine, store, cfg, logger)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for (engine.Stats().Ticks == 0 || store.count() == 0) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if engine.Stats().Ticks == 0 {
		t.Error("frame loop never ticked the engine")
	}
	if store.count() == 0 {
		t.Error("frame loop never autosaved")
	}
	if !engine.Snapshot().Time.After(sim.DefaultConfig().StartTime) {
		t.Error("game time did not advance")
	}
}

func TestFrameSeconds(t *testing.T) {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		elapsed time.Duration
		want    float64
	}{
		{"normal frame", 100 * time.Millisecond, 0.1},
		{"stalled process", 45 * time.Second, maxFrame.Seconds()},
		{"clock went backwards", -time.Second, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := frameSeconds(start, start.Add(tt.elapsed)); got != tt.want {
				t.Errorf("frameSeconds: got %v, want %v", got, tt.want)
			}
		})
	}
}
