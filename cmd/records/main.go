// Binary records summarizes a monitor JSONL journal.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"polyarb-go/internal/config"
	"polyarb-go/internal/journal"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "config used to locate the journal")
	file := flag.String("file", "", "journal path (defaults to monitor.output_path)")
	tail := flag.Int("tail", 10, "number of trailing rows to show")
	asJSON := flag.Bool("json", false, "print the summary as JSON")
	flag.Parse()

	path := *file
	if path == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			cfg = config.LoadDefaults()
		}
		path = cfg.Monitor.OutputPath
	}

	summary, err := journal.SummarizeFile(path, *tail)
	if err != nil {
		fmt.Fprintf(os.Stderr, "summarize %s: %v\n", path, err)
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			fmt.Fprintf(os.Stderr, "encode: %v\n", err)
			os.Exit(1)
		}
		return
	}
	printSummary(os.Stdout, path, summary)
}

func printSummary(w io.Writer, path string, s journal.Summary) {
	fmt.Fprintf(w, "journal: %s\n", path)
	fmt.Fprintf(w, "rows: %d (malformed %d)  span: %s .. %s\n", s.Rows, s.Malformed, s.First, s.Last)
	parts := make([]string, 0, len(s.BySignal))
	for _, k := range s.Signals() {
		parts = append(parts, fmt.Sprintf("%s=%d", k, s.BySignal[k]))
	}
	fmt.Fprintf(w, "signals: %s\n", strings.Join(parts, " "))
	fmt.Fprintf(w, "best side: UP=%d DOWN=%d  max edge: %.3f%%\n", s.BySide["UP"], s.BySide["DOWN"], s.MaxEdge*100)
	fmt.Fprintf(w, "auto trades executed: %d\n", s.Executed)
	reasons := make([]string, 0, len(s.TradeReason))
	for reason := range s.TradeReason {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Fprintf(w, "  %-28s %d\n", reason, s.TradeReason[reason])
	}
	if len(s.Tail) == 0 {
		return
	}
	fmt.Fprintln(w, "last rows:")
	for _, e := range s.Tail {
		line := fmt.Sprintf("  #%d %s %-9s", e.Round, e.Timestamp, e.Signal)
		if e.BestSide != "" {
			line += fmt.Sprintf(" %s edge=%.3f%%", e.BestSide, e.BestEdge*100)
		}
		if e.AutoTrade != nil {
			line += " trade=" + e.AutoTrade.Reason
		}
		if e.Error != "" {
			line += " err=" + e.Error
		}
		fmt.Fprintln(w, line)
	}
}
