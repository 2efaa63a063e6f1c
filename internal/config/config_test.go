package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Setenv("ALPACA_API_KEY", "")
	t.Setenv("ALPACA_SECRET_KEY", "")
	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Name != "polyarb-test" {
		t.Fatalf("unexpected App.Name: %s", cfg.App.Name)
	}
	if cfg.App.LogLevel != "debug" {
		t.Fatalf("unexpected App.LogLevel: %s", cfg.App.LogLevel)
	}
	if cfg.Alpaca.APIKey != "file-key" || cfg.Alpaca.SecretKey != "file-secret" {
		t.Fatalf("unexpected alpaca credentials: %+v", cfg.Alpaca)
	}
	if cfg.Interval() != 15*time.Second {
		t.Fatalf("unexpected interval: %s", cfg.Interval())
	}
	if cfg.Monitor.Polls != 4 {
		t.Fatalf("unexpected polls: %d", cfg.Monitor.Polls)
	}
	if cfg.Monitor.FeeRate != 0.002 {
		t.Fatalf("unexpected fee rate: %.4f", cfg.Monitor.FeeRate)
	}
	if cfg.MinBars() != 240 {
		t.Fatalf("expected min bars to default to history bars, got %d", cfg.MinBars())
	}
	if cfg.Strategy.Mode != "bucket_follow" {
		t.Fatalf("unexpected strategy mode: %s", cfg.Strategy.Mode)
	}
	if cfg.Strategy.Params.Neighbors != 60 {
		t.Fatalf("unexpected neighbors: %d", cfg.Strategy.Params.Neighbors)
	}
	if cfg.Strategy.Params.Horizon != 5 {
		t.Fatalf("expected default horizon 5, got %d", cfg.Strategy.Params.Horizon)
	}
	if cfg.Strategy.Params.ProbMax != 0.51 {
		t.Fatalf("unexpected prob max: %.3f", cfg.Strategy.Params.ProbMax)
	}
	if !cfg.Trade.Auto || cfg.Trade.Broker != "paper" {
		t.Fatalf("unexpected trade settings: %+v", cfg.Trade)
	}
	if cfg.Cooldown() != 2*time.Minute {
		t.Fatalf("unexpected cooldown: %s", cfg.Cooldown())
	}
	if cfg.Risk.MaxNotionalPerTrade != 75 {
		t.Fatalf("unexpected max notional: %.2f", cfg.Risk.MaxNotionalPerTrade)
	}
	if cfg.Paper.StartingCash != 5000 {
		t.Fatalf("expected starting cash 5000, got %.2f", cfg.Paper.StartingCash)
	}
	if cfg.Redis.Addr != "127.0.0.1:6379" || cfg.Redis.Channel != "polyarb:records" {
		t.Fatalf("unexpected redis settings: %+v", cfg.Redis)
	}
	if cfg.Polymarket.Limit != 200 {
		t.Fatalf("expected default gamma limit, got %d", cfg.Polymarket.Limit)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestLoadTOML(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "config.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.App.Name != "polyarb-toml" {
		t.Fatalf("unexpected App.Name: %s", cfg.App.Name)
	}
	if cfg.Monitor.IntervalSeconds != 60 || cfg.Monitor.FeeRate != 0.001 {
		t.Fatalf("unexpected monitor settings: %+v", cfg.Monitor)
	}
	if cfg.Strategy.Params.Neighbors != 40 {
		t.Fatalf("unexpected neighbors: %d", cfg.Strategy.Params.Neighbors)
	}
	if cfg.Monitor.HistoryBars != 300 {
		t.Fatalf("expected default history bars, got %d", cfg.Monitor.HistoryBars)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("ALPACA_SECRET_KEY", "env-secret")
	t.Setenv("ALPACA_PAPER", "false")
	t.Setenv("POLYARB_REDIS_ADDR", "redis:6379")

	cfg := Defaults()
	ApplyEnv(&cfg)
	if cfg.Alpaca.APIKey != "env-key" || cfg.Alpaca.SecretKey != "env-secret" {
		t.Fatalf("credentials not overridden: %+v", cfg.Alpaca)
	}
	if cfg.Alpaca.Paper {
		t.Fatalf("expected paper=false from env")
	}
	if cfg.Redis.Addr != "redis:6379" {
		t.Fatalf("unexpected redis addr %s", cfg.Redis.Addr)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"interval":     func(c *Config) { c.Monitor.IntervalSeconds = 0 },
		"fee":          func(c *Config) { c.Monitor.FeeRate = 0 },
		"mode":         func(c *Config) { c.Strategy.Mode = "magic" },
		"bucket range": func(c *Config) { c.Strategy.Mode = "bucket_follow"; c.Strategy.Params.ConfMin = 0.03 },
		"prob range":   func(c *Config) { c.Strategy.Mode = "bucket_follow"; c.Strategy.Params.ProbMax = 1.2 },
		"notional":     func(c *Config) { c.Trade.Auto = true; c.Trade.Broker = "paper"; c.Trade.NotionalUSD = 0 },
		"cooldown":     func(c *Config) { c.Trade.Auto = true; c.Trade.Broker = "paper"; c.Trade.CooldownSeconds = -1 },
		"credentials":  func(c *Config) { c.Trade.Auto = true; c.Trade.Broker = "alpaca" },
		"broker":       func(c *Config) { c.Trade.Auto = true; c.Trade.Broker = "ftx" },
		"opening qty":  func(c *Config) { c.Trade.Auto = true; c.Trade.Broker = "paper"; c.Paper.OpeningQty = -1 },
	}
	for name, mutate := range cases {
		cfg := Defaults()
		mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
		if !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: expected ErrInvalid, got %v", name, err)
		}
	}

	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate, got %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := Defaults()
	cfg.Monitor.FeeRate = 0.003
	if err := Save(path, &cfg); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.Monitor.FeeRate != 0.003 {
		t.Fatalf("unexpected fee rate after reload: %.4f", loaded.Monitor.FeeRate)
	}
}

func TestLoadDefaultsAppliesEnv(t *testing.T) {
	t.Setenv("ALPACA_API_KEY", "env-only")
	t.Setenv("POLYARB_LOG_LEVEL", "warn")
	cfg := LoadDefaults()
	if cfg.Alpaca.APIKey != "env-only" || cfg.App.LogLevel != "warn" {
		t.Fatalf("expected env overrides on defaults, got key=%q level=%q", cfg.Alpaca.APIKey, cfg.App.LogLevel)
	}
	if cfg.Monitor.IntervalSeconds != 30 || cfg.Strategy.Mode != "model_edge" {
		t.Fatalf("expected defaults to be kept: %+v", cfg.Monitor)
	}
}
