package observability

import (
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ItemsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postflow_items_dispatched_total",
		Help: "Queue items claimed and handed to the worker queue",
	}, []string{"platform"})

	PublishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postflow_publish_attempts_total",
		Help: "Publish attempts by outcome",
	}, []string{"platform", "outcome"}) // outcome: published, failed, retrying, skipped

	ItemsRequeued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postflow_items_requeued_total",
		Help: "Failed items moved back to queued by the retry sweep",
	})

	StaleClaimsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postflow_stale_claims_failed_total",
		Help: "Processing items failed after their lease expired",
	})

	PublishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "postflow_publish_duration_seconds",
		Help:    "Duration of platform publish calls",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"platform"})
)

// NewLogger builds the process logger. format is "json" or "text".
func NewLogger(format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// StartMetricsServer runs an HTTP server to expose Prometheus metrics.
func StartMetricsServer(addr string) {
	if addr == "" {
		return
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics server failed", "error", err)
		}
	}()
}
