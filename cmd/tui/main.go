package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"polyarb-go/internal/config"
	"polyarb-go/internal/journal"
	"polyarb-go/internal/pidfile"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	reader := bufio.NewReader(os.Stdin)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	for {
		fmt.Println("\n=== PolyArb Control ===")
		fmt.Println("1) Show configuration summary")
		fmt.Println("2) Edit trade and risk knobs")
		fmt.Println("3) Edit strategy settings")
		fmt.Println("4) Save config")
		fmt.Println("5) Launch monitor")
		fmt.Println("6) Stop running monitor")
		fmt.Println("7) Summarize journal")
		fmt.Println("8) Reload config from disk")
		fmt.Println("0) Exit")
		fmt.Print("Select option: ")

		input, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(input)

		switch choice {
		case "1":
			printSummary(cfg)
		case "2":
			editTrade(reader, cfg)
		case "3":
			editStrategy(reader, cfg)
		case "4":
			if err := saveConfig(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			} else {
				fmt.Println("config saved (credentials are not written; keep them in .env)")
			}
		case "5":
			launchMonitor(reader, cfg)
		case "6":
			stopMonitor(cfg)
		case "7":
			summarizeJournal(cfg)
		case "8":
			reloaded, err := loadConfig()
			if err != nil {
				fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
			} else {
				cfg = reloaded
				fmt.Println("config reloaded")
			}
		case "0":
			return
		default:
			fmt.Println("unknown option")
		}
	}
}

func printSummary(cfg *config.Config) {
	fmt.Println("\n--- Configuration Summary ---")
	fmt.Printf("Market filter: tag=%s match=%q\n", cfg.Polymarket.TagSlug, cfg.Polymarket.Match)
	fmt.Printf("Spot symbol: %s (paper=%t, stream=%t)\n", cfg.Alpaca.Symbol, cfg.Alpaca.Paper, cfg.Alpaca.Stream)
	fmt.Printf("Interval: %ds | polls: %d | fee rate: %.3f%%\n", cfg.Monitor.IntervalSeconds, cfg.Monitor.Polls, cfg.Monitor.FeeRate*100)
	fmt.Printf("Strategy: %s | history bars: %d | min bars: %d\n", cfg.Strategy.Mode, cfg.Monitor.HistoryBars, cfg.MinBars())
	p := cfg.Strategy.Params
	fmt.Printf("  model: neighbors=%d horizon=%d\n", p.Neighbors, p.Horizon)
	fmt.Printf("  bucket: conf=[%.3f, %.3f) prob=[%.3f, %.3f)\n", p.ConfMin, p.ConfMax, p.ProbMin, p.ProbMax)
	fmt.Printf("Auto trade: %t via %s | notional $%.2f | cooldown %ds\n", cfg.Trade.Auto, cfg.Trade.Broker, cfg.Trade.NotionalUSD, cfg.Trade.CooldownSeconds)
	fmt.Printf("Per-trade notional cap: $%.2f (0 = off)\n", cfg.Risk.MaxNotionalPerTrade)
	fmt.Printf("Paper starting cash: $%.2f | opening qty: %.6f @ %.2f\n", cfg.Paper.StartingCash, cfg.Paper.OpeningQty, cfg.Paper.OpeningAvgCost)
	fmt.Printf("Journal: %s | PID file: %s\n", cfg.Monitor.OutputPath, cfg.Monitor.PIDFile)
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Validation: %v\n", err)
	} else {
		fmt.Println("Validation: ok")
	}
}

func editTrade(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Trade / Risk ---")
	cfg.Trade.Auto = promptBool(reader, "Auto trade", cfg.Trade.Auto)
	cfg.Trade.Broker = promptString(reader, "Broker (alpaca|paper)", cfg.Trade.Broker)
	cfg.Trade.NotionalUSD = promptFloat(reader, "Notional per trade (USD)", cfg.Trade.NotionalUSD)
	cfg.Trade.CooldownSeconds = int(promptFloat(reader, "Cooldown (seconds)", float64(cfg.Trade.CooldownSeconds)))
	cfg.Risk.MaxNotionalPerTrade = promptFloat(reader, "Max notional per trade (USD, 0 = off)", cfg.Risk.MaxNotionalPerTrade)
	cfg.Paper.StartingCash = promptFloat(reader, "Paper starting cash", cfg.Paper.StartingCash)
}

func editStrategy(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Strategy ---")
	cfg.Strategy.Mode = promptString(reader, "Mode (model_edge|bucket_follow)", cfg.Strategy.Mode)
	cfg.Monitor.FeeRate = promptPercent(reader, "Fee rate (%)", cfg.Monitor.FeeRate)
	cfg.Monitor.IntervalSeconds = int(promptFloat(reader, "Interval (seconds)", float64(cfg.Monitor.IntervalSeconds)))
	p := &cfg.Strategy.Params
	if strings.EqualFold(cfg.Strategy.Mode, "bucket_follow") {
		p.ConfMin = promptFloat(reader, "Confidence min", p.ConfMin)
		p.ConfMax = promptFloat(reader, "Confidence max", p.ConfMax)
		p.ProbMin = promptFloat(reader, "Max probability min", p.ProbMin)
		p.ProbMax = promptFloat(reader, "Max probability max", p.ProbMax)
		return
	}
	p.Neighbors = int(promptFloat(reader, "Neighbors", float64(p.Neighbors)))
	cfg.Monitor.HistoryBars = int(promptFloat(reader, "History bars", float64(cfg.Monitor.HistoryBars)))
}

func launchMonitor(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("Launching monitor...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "run", "./cmd/monitor", "-config", locateConfig())
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start monitor: %v\n", err)
		return
	}

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	fmt.Print("\nPress ENTER to stop the monitor and return to menu...")
	_, _ = reader.ReadString('\n')
	if err := shutdownMonitor(cfg.Monitor.PIDFile, done, 15*time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "graceful stop failed, killing: %v\n", err)
	}
}

// shutdownMonitor lets the monitor finish its round and release the PID file before the
// launcher is torn down. Killing `go run` alone would orphan the compiled child.
func shutdownMonitor(pidPath string, done <-chan struct{}, wait time.Duration) error {
	select {
	case <-done:
		return nil
	default:
	}
	if _, err := pidfile.Stop(context.Background(), pidPath, wait); err != nil && !errors.Is(err, pidfile.ErrStale) {
		return err
	}
	select {
	case <-done:
		return nil
	case <-time.After(wait):
		return fmt.Errorf("launcher still running after %s", wait)
	}
}

func stopMonitor(cfg *config.Config) {
	pid, err := pidfile.Stop(context.Background(), cfg.Monitor.PIDFile, 15*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stop: %v\n", err)
		return
	}
	fmt.Printf("monitor pid %d stopped\n", pid)
}

func summarizeJournal(cfg *config.Config) {
	s, err := journal.SummarizeFile(cfg.Monitor.OutputPath, 5)
	if err != nil {
		fmt.Fprintf(os.Stderr, "summarize: %v\n", err)
		return
	}
	fmt.Printf("\nrows=%d executed=%d max_edge=%.3f%%\n", s.Rows, s.Executed, s.MaxEdge*100)
	for _, k := range s.Signals() {
		fmt.Printf("  %-10s %d\n", k, s.BySignal[k])
	}
	for _, e := range s.Tail {
		fmt.Printf("  #%d %s %s %s %.3f%%\n", e.Round, e.Timestamp, e.Signal, e.BestSide, e.BestEdge*100)
	}
}

func promptString(reader *bufio.Reader, label, current string) string {
	fmt.Printf("%s [%s]: ", label, current)
	line, _ := reader.ReadString('\n')
	if line = strings.TrimSpace(line); line == "" {
		return current
	}
	return line
}

func promptBool(reader *bufio.Reader, label string, current bool) bool {
	fmt.Printf("%s [%t]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.ParseBool(line)
	if err != nil {
		fmt.Printf("invalid bool, keeping %t\n", current)
		return current
	}
	return val
}

func promptFloat(reader *bufio.Reader, label string, current float64) float64 {
	fmt.Printf("%s [%.4f]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.ParseFloat(line, 64)
	if err != nil {
		fmt.Printf("invalid number, keeping %.4f\n", current)
		return current
	}
	return val
}

func promptPercent(reader *bufio.Reader, label string, current float64) float64 {
	pct := promptFloat(reader, label, current*100)
	return pct / 100
}

func loadConfig() (*config.Config, error) {
	return config.Load(locateConfig())
}

func saveConfig(cfg *config.Config) error {
	out := *cfg
	out.Alpaca.APIKey = ""
	out.Alpaca.SecretKey = ""
	out.Redis.Password = ""
	return config.Save(locateConfig(), &out)
}

func locateConfig() string {
	if filepath.IsAbs(defaultConfigPath) {
		return defaultConfigPath
	}
	return filepath.Clean(defaultConfigPath)
}
