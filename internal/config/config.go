// Package config exposes strongly typed application configuration structs loaded from YAML or TOML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid marks configuration errors that must stop the process before polling starts.
var ErrInvalid = errors.New("invalid configuration")

// App captures process-wide runtime settings such as name, metrics address, and logging.
type App struct {
	Name        string `yaml:"name" toml:"name"`
	Env         string `yaml:"env" toml:"env"`
	MetricsAddr string `yaml:"metrics_addr" toml:"metrics_addr"`
	LogLevel    string `yaml:"log_level" toml:"log_level"`
	PrettyLogs  bool   `yaml:"pretty_logs" toml:"pretty_logs"`
}

// Polymarket configures discovery of the target market through the Gamma API.
type Polymarket struct {
	GammaURL string `yaml:"gamma_url" toml:"gamma_url"`
	TagSlug  string `yaml:"tag_slug" toml:"tag_slug"`
	Match    string `yaml:"match" toml:"match"`
	Limit    int    `yaml:"limit" toml:"limit"`
}

// Alpaca holds credentials and endpoints for market data and trading.
type Alpaca struct {
	APIKey     string `yaml:"api_key" toml:"api_key"`
	SecretKey  string `yaml:"secret_key" toml:"secret_key"`
	Paper      bool   `yaml:"paper" toml:"paper"`
	Symbol     string `yaml:"symbol" toml:"symbol"`
	DataURL    string `yaml:"data_url" toml:"data_url"`
	TradingURL string `yaml:"trading_url" toml:"trading_url"`
	StreamURL  string `yaml:"stream_url" toml:"stream_url"`
	Stream     bool   `yaml:"stream" toml:"stream"`
}

// Monitor configures the poll loop itself.
type Monitor struct {
	IntervalSeconds int     `yaml:"interval_seconds" toml:"interval_seconds"`
	Polls           int     `yaml:"polls" toml:"polls"`
	FeeRate         float64 `yaml:"fee_rate" toml:"fee_rate"`
	HistoryBars     int     `yaml:"history_bars" toml:"history_bars"`
	MinBars         int     `yaml:"min_bars" toml:"min_bars"`
	OutputPath      string  `yaml:"output_path" toml:"output_path"`
	PIDFile         string  `yaml:"pid_file" toml:"pid_file"`
	JSON            bool    `yaml:"json" toml:"json"`
}

// StrategyParams groups tunable knobs for the estimators.
type StrategyParams struct {
	Neighbors int     `yaml:"neighbors" toml:"neighbors"`
	Horizon   int     `yaml:"horizon" toml:"horizon"`
	ConfMin   float64 `yaml:"conf_min" toml:"conf_min"`
	ConfMax   float64 `yaml:"conf_max" toml:"conf_max"`
	ProbMin   float64 `yaml:"prob_min" toml:"prob_min"`
	ProbMax   float64 `yaml:"prob_max" toml:"prob_max"`
}

// Strategy specifies which estimator is active along with the parameter bundle.
type Strategy struct {
	Mode   string         `yaml:"mode" toml:"mode"`
	Params StrategyParams `yaml:"params" toml:"params"`
}

// Trade configures the auto-trade gate.
type Trade struct {
	Auto            bool    `yaml:"auto" toml:"auto"`
	Broker          string  `yaml:"broker" toml:"broker"`
	NotionalUSD     float64 `yaml:"notional_usd" toml:"notional_usd"`
	CooldownSeconds int     `yaml:"cooldown_seconds" toml:"cooldown_seconds"`
}

// Risk encodes guard-rails for how much size the gate may take on.
type Risk struct {
	MaxNotionalPerTrade float64 `yaml:"max_notional_per_trade" toml:"max_notional_per_trade"`
}

// Paper captures paper-trading account settings used by the dry-run broker.
type Paper struct {
	StartingCash         float64 `yaml:"starting_cash" toml:"starting_cash"`
	MaxPositionPerSymbol float64 `yaml:"max_position_per_symbol" toml:"max_position_per_symbol"`
	FillsPath            string  `yaml:"fills_path" toml:"fills_path"`
	OpeningQty           float64 `yaml:"opening_qty" toml:"opening_qty"`
	OpeningAvgCost       float64 `yaml:"opening_avg_cost" toml:"opening_avg_cost"`
}

// Redis configures optional fan-out of poll records.
type Redis struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db"`
	Channel  string `yaml:"channel" toml:"channel"`
	Stream   string `yaml:"stream" toml:"stream"`
}

// Config collects every configuration leaf.
type Config struct {
	App        App        `yaml:"app" toml:"app"`
	Polymarket Polymarket `yaml:"polymarket" toml:"polymarket"`
	Alpaca     Alpaca     `yaml:"alpaca" toml:"alpaca"`
	Monitor    Monitor    `yaml:"monitor" toml:"monitor"`
	Strategy   Strategy   `yaml:"strategy" toml:"strategy"`
	Trade      Trade      `yaml:"trade" toml:"trade"`
	Risk       Risk       `yaml:"risk" toml:"risk"`
	Paper      Paper      `yaml:"paper" toml:"paper"`
	Redis      Redis      `yaml:"redis" toml:"redis"`
}

// Defaults returns the configuration used when a key is absent from the file.
func Defaults() Config {
	return Config{
		App: App{Name: "polyarb", Env: "dev", MetricsAddr: ":9108", LogLevel: "info"},
		Polymarket: Polymarket{
			GammaURL: "https://gamma-api.polymarket.com",
			TagSlug:  "5m",
			Match:    "bitcoin up or down",
			Limit:    200,
		},
		Alpaca: Alpaca{
			Paper:     true,
			Symbol:    "BTC/USD",
			DataURL:   "https://data.alpaca.markets",
			StreamURL: "wss://stream.data.alpaca.markets/v1beta3/crypto/us",
		},
		Monitor: Monitor{
			IntervalSeconds: 30,
			FeeRate:         0.0015,
			HistoryBars:     300,
			OutputPath:      filepath.Join("data", "arb_monitor.jsonl"),
			PIDFile:         filepath.Join("data", "monitor.pid"),
		},
		Strategy: Strategy{
			Mode: "model_edge",
			Params: StrategyParams{
				Neighbors: 80,
				Horizon:   5,
				ConfMin:   0.01,
				ConfMax:   0.02,
				ProbMin:   0.505,
				ProbMax:   0.510,
			},
		},
		Trade: Trade{Broker: "alpaca", NotionalUSD: 100, CooldownSeconds: 300},
		Paper: Paper{StartingCash: 10000},
		Redis: Redis{Channel: "polyarb:records", Stream: "polyarb:records:stream"},
	}
}

// Load reads a YAML (or .toml) file over Defaults, then applies .env and environment overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("decode toml: %w", err)
		}
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	}

	_ = godotenv.Load()
	ApplyEnv(&cfg)
	return &cfg, nil
}

// LoadDefaults is Load without a file: Defaults plus .env and environment overrides.
func LoadDefaults() *Config {
	cfg := Defaults()
	_ = godotenv.Load()
	ApplyEnv(&cfg)
	return &cfg
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ApplyEnv overwrites secrets and deploy-time knobs from the environment when set.
func ApplyEnv(cfg *Config) {
	setStr(&cfg.Alpaca.APIKey, "ALPACA_API_KEY")
	setStr(&cfg.Alpaca.SecretKey, "ALPACA_SECRET_KEY")
	setBool(&cfg.Alpaca.Paper, "ALPACA_PAPER")
	setStr(&cfg.Redis.Addr, "POLYARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYARB_REDIS_PASSWORD")
	setStr(&cfg.App.LogLevel, "POLYARB_LOG_LEVEL")
}

// Validate rejects settings the poll loop cannot run with.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	m := c.Monitor
	check(m.IntervalSeconds > 0, "monitor.interval_seconds must be > 0")
	check(m.Polls >= 0, "monitor.polls must be >= 0")
	check(m.FeeRate > 0 && m.FeeRate < 1, "monitor.fee_rate must be in (0,1)")
	check(m.HistoryBars > 0, "monitor.history_bars must be > 0")
	check(m.MinBars >= 0, "monitor.min_bars must be >= 0")

	p := c.Strategy.Params
	switch strings.ToLower(strings.TrimSpace(c.Strategy.Mode)) {
	case "model_edge":
		check(p.Neighbors > 0, "strategy.params.neighbors must be > 0")
		check(p.Horizon > 0, "strategy.params.horizon must be > 0")
	case "bucket_follow":
		check(validRange(p.ConfMin, p.ConfMax), "strategy.params conf_min/conf_max must satisfy 0 <= min < max <= 1")
		check(validRange(p.ProbMin, p.ProbMax), "strategy.params prob_min/prob_max must satisfy 0 <= min < max <= 1")
	default:
		problems = append(problems, fmt.Sprintf("strategy.mode %q is not one of model_edge, bucket_follow", c.Strategy.Mode))
	}

	if c.Trade.Auto {
		check(c.Trade.NotionalUSD > 0, "trade.notional_usd must be > 0")
		check(c.Trade.CooldownSeconds >= 0, "trade.cooldown_seconds must be >= 0")
		switch c.Trade.Broker {
		case "alpaca":
			check(c.Alpaca.APIKey != "" && c.Alpaca.SecretKey != "", "alpaca.api_key and alpaca.secret_key are required for the alpaca broker")
		case "paper":
			check(c.Paper.StartingCash > 0, "paper.starting_cash must be > 0")
			check(c.Paper.OpeningQty >= 0 && c.Paper.OpeningAvgCost >= 0, "paper.opening_qty and paper.opening_avg_cost must be >= 0")
		default:
			problems = append(problems, fmt.Sprintf("trade.broker %q is not one of alpaca, paper", c.Trade.Broker))
		}
	}
	check(c.Risk.MaxNotionalPerTrade >= 0, "risk.max_notional_per_trade must be >= 0")
	check(strings.TrimSpace(c.Alpaca.Symbol) != "", "alpaca.symbol is required")

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// Interval is the poll cadence.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Monitor.IntervalSeconds) * time.Second
}

// Cooldown is the minimum spacing between two automated trades.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Trade.CooldownSeconds) * time.Second
}

// MinBars is the bar count below which model_edge refuses to estimate; defaults to HistoryBars.
func (c *Config) MinBars() int {
	if c.Monitor.MinBars > 0 {
		return c.Monitor.MinBars
	}
	return c.Monitor.HistoryBars
}

func validRange(lo, hi float64) bool {
	return lo >= 0 && hi <= 1 && lo < hi
}

func setStr(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
