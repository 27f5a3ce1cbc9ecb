// Package telemetry holds the Prometheus collectors of the overlay.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "poldercast"

// Reasons a received candidate is discarded.
const (
	ReasonEmptyID   = "empty_id"
	ReasonSelf      = "self"
	ReasonDuplicate = "duplicate"
	ReasonFiltered  = "filtered"

	ReasonQuarantined = "quarantined"
)

var (
	Registry = prometheus.NewRegistry()

	RoundsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Total number of gossip rounds run.",
		},
	)

	ExchangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "Total number of initiated exchanges, by module and result.",
		},
		[]string{"module", "result"},
	)

	ExchangeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_duration_seconds",
			Help:      "Latency of initiated exchanges.",
			// 100us .. ~1.6s
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		},
		[]string{"module"},
	)

	DiscardedCandidates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discarded_candidates_total",
			Help:      "Total number of received candidates dropped before merge.",
		},
		[]string{"module", "reason"},
	)

	InboundTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_exchanges_total",
			Help:      "Total number of exchanges answered.",
		},
	)

	ViewSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "view_size",
			Help:      "Number of entries in each module view, and in the merged view.",
		},
		[]string{"module"},
	)

	StoreSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "profile_store_size",
			Help:      "Number of profiles in the profile store.",
		},
	)

	StrikesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strikes_total",
			Help:      "Total number of strikes given to remote nodes, by reason.",
		},
		[]string{"reason"},
	)

	QuarantinedNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quarantined_nodes",
			Help:      "Number of remote nodes in quarantine.",
		},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"op", "status"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by version).",
		},
		[]string{"version"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		RoundsTotal,
		ExchangesTotal,
		ExchangeDuration,
		DiscardedCandidates,
		InboundTotal,
		ViewSize,
		StoreSize,
		StrikesTotal,
		QuarantinedNodes,
		RequestsTotal,
		buildInfo,
		uptime,
	)
}

// MetricsHandler exposes /metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetBuildInfo should be called once at startup.
func SetBuildInfo(version string) {
	buildInfo.WithLabelValues(version).Set(1)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps an http.Handler to count requests under the provided "op"
// label.
func Instrument(op string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)
		class := strconv.Itoa(sw.status/100) + "xx"
		RequestsTotal.WithLabelValues(op, class).Inc()
	}
}
