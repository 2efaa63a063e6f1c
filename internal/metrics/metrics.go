// Package metrics registers the Prometheus series the monitor exports and serves them over HTTP.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "polyarb_polls_total", Help: "Poll rounds completed by result"},
		[]string{"result"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "polyarb_signals_total", Help: "Signals emitted by kind and side"},
		[]string{"kind", "side"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "polyarb_orders_total", Help: "Auto-trade decisions by side and reason"},
		[]string{"side", "reason"},
	)
	FetchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "polyarb_fetch_errors_total", Help: "Market data fetch failures by source"},
		[]string{"source"},
	)
	BestEdge = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "polyarb_best_edge", Help: "Best edge of the latest round"},
	)
	Probability = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "polyarb_probability", Help: "Latest up probability by source (market|model)"},
		[]string{"source"},
	)
	SpotPrice = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "polyarb_spot_usd", Help: "Latest spot price used by the monitor"},
	)
	PollLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "polyarb_poll_seconds", Help: "Wall time of one poll round", Buckets: prometheus.DefBuckets},
	)
)

func init() {
	prometheus.MustRegister(PollsTotal, SignalsTotal, OrdersTotal, FetchErrors, BestEdge, Probability, SpotPrice, PollLatency)
}

// Serve exposes /metrics and /healthz on addr in a background goroutine. An empty addr disables it.
func Serve(addr string) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
