package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the messaging collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	appends         *prometheus.CounterVec
	idempotentHits  prometheus.Counter
	readAdvances    prometheus.Counter
	storageRetries  *prometheus.CounterVec
	storageFailures *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		appends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_messages_appended_total",
			Help: "Messages appended, by conversation kind and placement.",
		}, []string{"kind", "placement"}),
		idempotentHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_messages_idempotent_replays_total",
			Help: "Appends answered from an earlier request with the same idempotency key.",
		}),
		readAdvances: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_read_cursor_advances_total",
			Help: "Read cursor updates that moved the cursor forward.",
		}),
		storageRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_storage_retries_total",
			Help: "Storage calls retried after a timeout.",
		}, []string{"op"}),
		storageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_storage_failures_total",
			Help: "Storage calls that failed, by class.",
		}, []string{"op", "class"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pulse_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.appends, m.idempotentHits, m.readAdvances, m.storageRetries, m.storageFailures, m.httpDuration)
	return m
}

func (m *Metrics) MessageAppended(kind string, reply bool) {
	if m == nil {
		return
	}
	placement := "timeline"
	if reply {
		placement = "thread"
	}
	m.appends.WithLabelValues(kind, placement).Inc()
}

func (m *Metrics) IdempotentReplay() {
	if m == nil {
		return
	}
	m.idempotentHits.Inc()
}

func (m *Metrics) ReadAdvanced() {
	if m == nil {
		return
	}
	m.readAdvances.Inc()
}

func (m *Metrics) StorageRetry(op string) {
	if m == nil {
		return
	}
	m.storageRetries.WithLabelValues(op).Inc()
}

func (m *Metrics) StorageFailure(op, class string) {
	if m == nil {
		return
	}
	m.storageFailures.WithLabelValues(op, class).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler exposes the gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
