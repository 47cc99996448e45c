// Package metrics exposes Prometheus collectors for the monitoring service.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	monitorTargetsTotal    *prometheus.CounterVec
	monitorVerdictsTotal   *prometheus.CounterVec
	monitorEventsTotal     *prometheus.CounterVec
	monitorHydrationsTotal *prometheus.CounterVec
	monitorLockSkipsTotal  prometheus.Counter
	monitorRunSeconds      prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		monitorTargetsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_targets_total",
				Help: "Total number of monitored targets handled, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		monitorVerdictsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_verdicts_total",
				Help: "Total number of verdicts produced, labeled by retailer and status.",
			},
			[]string{"retailer", "status"},
		)

		monitorEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_stock_events_total",
				Help: "Total number of persisted stock events, labeled by type.",
			},
			[]string{"type"},
		)

		monitorHydrationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_hydrations_total",
				Help: "Total number of headless hydration passes, labeled by retailer and outcome.",
			},
			[]string{"retailer", "outcome"},
		)

		monitorLockSkipsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "monitor_lock_skips_total",
				Help: "Total number of targets skipped because another run held the lock.",
			},
		)

		monitorRunSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "monitor_run_duration_seconds",
				Help:    "Histogram of complete monitor run durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		)
	})
}

// SanitizeSite extracts a lowercase hostname from a URL for labeling.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTarget counts one handled target by outcome (processed, error, skipped).
func ObserveTarget(outcome string) {
	monitorTargetsTotal.WithLabelValues(outcome).Inc()
}

// ObserveVerdict counts one decision engine verdict.
func ObserveVerdict(retailer, status string) {
	monitorVerdictsTotal.WithLabelValues(retailer, status).Inc()
}

// ObserveEvent counts one persisted stock event.
func ObserveEvent(eventType string) {
	monitorEventsTotal.WithLabelValues(eventType).Inc()
}

// ObserveHydration counts one headless hydration pass by outcome
// (resolved, unknown, error).
func ObserveHydration(retailer, outcome string) {
	monitorHydrationsTotal.WithLabelValues(retailer, outcome).Inc()
}

// ObserveLockSkip counts one target skipped due to lock contention.
func ObserveLockSkip() {
	monitorLockSkipsTotal.Inc()
}

// ObserveRun records the duration of a complete monitor run.
func ObserveRun(duration time.Duration) {
	monitorRunSeconds.Observe(duration.Seconds())
}
