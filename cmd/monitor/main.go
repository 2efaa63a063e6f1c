// Binary monitor polls the Polymarket BTC 5-minute up/down market, compares it with an Alpaca
// bar-driven estimate and optionally auto-trades on Alpaca (live or paper).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"polyarb-go/internal/bus"
	"polyarb-go/internal/config"
	"polyarb-go/internal/exchange"
	"polyarb-go/internal/execution"
	"polyarb-go/internal/journal"
	"polyarb-go/internal/metrics"
	"polyarb-go/internal/monitor"
	"polyarb-go/internal/paper"
	"polyarb-go/internal/pidfile"
	"polyarb-go/internal/risk"
	"polyarb-go/internal/strategy"
	"polyarb-go/internal/util"
)

const defaultConfigPath = "internal/config/config.yaml"

type cliFlags struct {
	configPath  string
	interval    int
	feeRate     float64
	mode        string
	historyBars int
	minBars     int
	neighbors   int
	polls       int
	output      string
	autoTrade   bool
	broker      string
	notional    float64
	cooldown    int
	confMin     float64
	confMax     float64
	probMin     float64
	probMax     float64
	pidFile     string
	stop        bool
	json        bool
	stream      bool
	logLevel    string
	pretty      bool
}

func parseFlags() *cliFlags {
	f := &cliFlags{}
	flag.StringVar(&f.configPath, "config", defaultConfigPath, "path to YAML or TOML config")
	flag.IntVar(&f.interval, "interval", 0, "seconds between polls")
	flag.Float64Var(&f.feeRate, "fee-rate", 0, "edge threshold; ARBITRAGE requires edge > fee")
	flag.StringVar(&f.mode, "mode", "", "strategy mode: model_edge | bucket_follow")
	flag.IntVar(&f.historyBars, "history-bars", 0, "minute bars fetched per poll")
	flag.IntVar(&f.minBars, "min-bars", 0, "minimum bars before model_edge estimates (default history-bars)")
	flag.IntVar(&f.neighbors, "neighbors", 0, "nearest neighbours for model_edge")
	flag.IntVar(&f.polls, "polls", 0, "number of polls; 0 runs until stopped")
	flag.StringVar(&f.output, "output", "", "JSONL output path")
	flag.BoolVar(&f.autoTrade, "auto-trade", false, "submit market orders on ARBITRAGE")
	flag.StringVar(&f.broker, "broker", "", "auto-trade venue: alpaca | paper")
	flag.Float64Var(&f.notional, "notional", 0, "USD notional per auto trade")
	flag.IntVar(&f.cooldown, "cooldown", 0, "seconds between auto trades")
	flag.Float64Var(&f.confMin, "conf-min", 0, "bucket_follow confidence lower bound (inclusive)")
	flag.Float64Var(&f.confMax, "conf-max", 0, "bucket_follow confidence upper bound (exclusive)")
	flag.Float64Var(&f.probMin, "prob-min", 0, "bucket_follow max probability lower bound (inclusive)")
	flag.Float64Var(&f.probMax, "prob-max", 0, "bucket_follow max probability upper bound (exclusive)")
	flag.StringVar(&f.pidFile, "pid-file", "", "PID file path")
	flag.BoolVar(&f.stop, "stop", false, "stop the running monitor and exit")
	flag.BoolVar(&f.json, "json", false, "print each round as JSON")
	flag.BoolVar(&f.stream, "stream", false, "use the Alpaca websocket for spot price")
	flag.StringVar(&f.logLevel, "log-level", "", "zerolog level")
	flag.BoolVar(&f.pretty, "pretty", false, "human readable logs")
	flag.Parse()
	return f
}

// apply copies explicitly set flags over the loaded config.
func (f *cliFlags) apply(cfg *config.Config) {
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "interval":
			cfg.Monitor.IntervalSeconds = f.interval
		case "fee-rate":
			cfg.Monitor.FeeRate = f.feeRate
		case "mode":
			cfg.Strategy.Mode = f.mode
		case "history-bars":
			cfg.Monitor.HistoryBars = f.historyBars
		case "min-bars":
			cfg.Monitor.MinBars = f.minBars
		case "neighbors":
			cfg.Strategy.Params.Neighbors = f.neighbors
		case "polls":
			cfg.Monitor.Polls = f.polls
		case "output":
			cfg.Monitor.OutputPath = f.output
		case "auto-trade":
			cfg.Trade.Auto = f.autoTrade
		case "broker":
			cfg.Trade.Broker = f.broker
		case "notional":
			cfg.Trade.NotionalUSD = f.notional
		case "cooldown":
			cfg.Trade.CooldownSeconds = f.cooldown
		case "conf-min":
			cfg.Strategy.Params.ConfMin = f.confMin
		case "conf-max":
			cfg.Strategy.Params.ConfMax = f.confMax
		case "prob-min":
			cfg.Strategy.Params.ProbMin = f.probMin
		case "prob-max":
			cfg.Strategy.Params.ProbMax = f.probMax
		case "pid-file":
			cfg.Monitor.PIDFile = f.pidFile
		case "json":
			cfg.Monitor.JSON = f.json
		case "stream":
			cfg.Alpaca.Stream = f.stream
		case "log-level":
			cfg.App.LogLevel = f.logLevel
		case "pretty":
			cfg.App.PrettyLogs = f.pretty
		}
	})
}

func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return config.LoadDefaults(), nil
	}
	return nil, err
}

func main() {
	flags := parseFlags()
	explicit := false
	flag.Visit(func(fl *flag.Flag) { explicit = explicit || fl.Name == "config" })

	cfg, err := loadConfig(flags.configPath, explicit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	flags.apply(cfg)

	log := util.NewLogger(cfg.App.LogLevel, cfg.App.PrettyLogs).With().Str("app", cfg.App.Name).Logger()

	if flags.stop {
		os.Exit(stopMonitor(log, cfg.Monitor.PIDFile))
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if err := pidfile.Acquire(cfg.Monitor.PIDFile); err != nil {
		log.Fatal().Err(err).Str("pid_file", cfg.Monitor.PIDFile).Msg("cannot start; use -stop to stop the running monitor")
	}
	defer func() {
		if err := pidfile.Remove(cfg.Monitor.PIDFile); err != nil {
			log.Warn().Err(err).Msg("remove pid file")
		}
	}()

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("monitor exited with error")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	srv := metrics.Serve(cfg.App.MetricsAddr)
	if srv != nil {
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	creds := exchange.Credentials{KeyID: cfg.Alpaca.APIKey, SecretKey: cfg.Alpaca.SecretKey}
	gamma := exchange.NewGammaClient(cfg.Polymarket.GammaURL, log.With().Str("component", "gamma").Logger(),
		exchange.WithGammaFilter(cfg.Polymarket.TagSlug, cfg.Polymarket.Match),
		exchange.WithGammaLimit(cfg.Polymarket.Limit),
	)
	bars := exchange.NewAlpacaBars(cfg.Alpaca.DataURL, cfg.Alpaca.Symbol, creds, log.With().Str("component", "bars").Logger())

	var stream *exchange.SpotStream
	var spot exchange.SpotSource
	if cfg.Alpaca.Stream {
		if creds.Empty() {
			log.Warn().Msg("spot stream needs alpaca credentials; using bar closes")
		} else {
			stream = exchange.NewSpotStream(cfg.Alpaca.StreamURL, cfg.Alpaca.Symbol, creds, log.With().Str("component", "stream").Logger())
			spot = stream
		}
	}
	fetcher := exchange.NewFetcher(gamma, bars, spot, cfg.Monitor.HistoryBars, log.With().Str("component", "fetcher").Logger())

	p := cfg.Strategy.Params
	strat, err := strategy.Build(cfg.Strategy.Mode, strategy.Params{
		Neighbors: p.Neighbors,
		Horizon:   p.Horizon,
		MinBars:   cfg.MinBars(),
		ConfMin:   p.ConfMin,
		ConfMax:   p.ConfMax,
		ProbMin:   p.ProbMin,
		ProbMax:   p.ProbMax,
	})
	if err != nil {
		return err
	}

	records := journal.NewWriter(cfg.Monitor.OutputPath)
	defer records.Close()

	opts := []monitor.Option{monitor.WithJournal(records)}

	if cfg.Redis.Addr != "" {
		pub, err := bus.Dial(ctx, bus.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
			Stream:   cfg.Redis.Stream,
		})
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable; records will not be published")
		} else {
			defer pub.Close()
			opts = append(opts, monitor.WithPublisher(pub))
		}
	}

	paperMode := cfg.Alpaca.Paper
	if cfg.Trade.Auto {
		var broker execution.Broker
		switch cfg.Trade.Broker {
		case "paper":
			fills := journal.NewWriter(cfg.Paper.FillsPath)
			defer fills.Close()
			recorder := paper.RecordTo(fills, func(err error) { log.Warn().Err(err).Msg("paper fill journal") })
			account := paper.NewAccount(cfg.Paper.StartingCash, cfg.Paper.MaxPositionPerSymbol)
			if cfg.Paper.OpeningQty > 0 {
				account.Seed(exchange.TradingSymbol(cfg.Alpaca.Symbol), cfg.Paper.OpeningQty, cfg.Paper.OpeningAvgCost)
				log.Info().Float64("qty", cfg.Paper.OpeningQty).Float64("avg_cost", cfg.Paper.OpeningAvgCost).Msg("paper opening position")
			}
			pb := paper.NewBroker(account, log.With().Str("component", "paper").Logger(), recorder)
			defer logPaperSession(log, pb)
			opts = append(opts, monitor.WithMarker(pb))
			broker = pb
			paperMode = true
		default:
			broker = execution.NewAlpacaBroker(execution.TradingURL(cfg.Alpaca.TradingURL, cfg.Alpaca.Paper), creds, log.With().Str("component", "alpaca").Logger())
		}
		gate := execution.NewGate(broker, execution.GateConfig{
			Symbol:   cfg.Alpaca.Symbol,
			Notional: cfg.Trade.NotionalUSD,
			Cooldown: cfg.Cooldown(),
			Limits:   risk.Limits{MaxNotionalPerTrade: cfg.Risk.MaxNotionalPerTrade},
		}, log.With().Str("component", "gate").Logger())
		opts = append(opts, monitor.WithGate(gate))
		log.Info().
			Str("broker", cfg.Trade.Broker).
			Float64("notional", cfg.Trade.NotionalUSD).
			Dur("cooldown", cfg.Cooldown()).
			Msg("auto trade enabled")
	}

	mon := monitor.New(fetcher, strat, monitor.Options{
		Interval: cfg.Interval(),
		Polls:    cfg.Monitor.Polls,
		FeeRate:  cfg.Monitor.FeeRate,
		Symbol:   cfg.Alpaca.Symbol,
		Paper:    paperMode,
		JSON:     cfg.Monitor.JSON,
		PIDFile:  cfg.Monitor.PIDFile,
	}, log.With().Str("component", "monitor").Logger(), opts...)

	auxCtx, cancelAux := context.WithCancel(ctx)
	defer cancelAux()
	g, gctx := errgroup.WithContext(auxCtx)

	g.Go(func() error {
		defer cancelAux()
		return mon.Run(ctx)
	})
	if stream != nil {
		g.Go(func() error {
			if err := stream.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Msg("spot stream stopped; falling back to bar closes")
			}
			return nil
		})
	}
	if srv != nil {
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}

func logPaperSession(log zerolog.Logger, pb *paper.Broker) {
	bought, sold := pb.Ledger().Totals()
	acct := pb.Account()
	log.Info().
		Int("fills", len(pb.Ledger().Snapshot())).
		Float64("bought_usd", bought).
		Float64("sold_usd", sold).
		Float64("cash", acct.AvailableCash()).
		Float64("realized_pnl", acct.RealizedPnL()).
		Msg("paper session")
}

func stopMonitor(log zerolog.Logger, pidPath string) int {
	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	pid, err := pidfile.Stop(ctx, pidPath, 15*time.Second)
	switch {
	case err == nil:
		log.Info().Int("pid", pid).Msg("monitor stopped")
		return 0
	case errors.Is(err, pidfile.ErrNotRunning):
		log.Warn().Str("pid_file", pidPath).Msg("no pid file; monitor not running")
	case errors.Is(err, pidfile.ErrStale):
		log.Warn().Int("pid", pid).Msg("pid not running; removed stale pid file")
	default:
		log.Error().Err(err).Int("pid", pid).Msg("stop failed")
	}
	return 1
}
