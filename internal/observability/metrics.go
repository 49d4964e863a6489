package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	connectionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "boardsync",
			Subsystem: "realtime",
			Name:      "connection_failures_total",
			Help:      "Realtime connection attempts that failed.",
		},
		[]string{"reason"},
	)
	connects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "boardsync",
			Subsystem: "realtime",
			Name:      "connects_total",
			Help:      "Completed realtime connect calls by result.",
		},
		[]string{"result"},
	)
	events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "boardsync",
			Subsystem: "realtime",
			Name:      "events_total",
			Help:      "Inbound realtime events routed to listeners.",
		},
		[]string{"event_type"},
	)
	publishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "boardsync",
			Subsystem: "realtime",
			Name:      "publishes_total",
			Help:      "Outbound realtime publish frames.",
		},
		[]string{"content_type"},
	)
	persistenceRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "boardsync",
			Subsystem: "persistence",
			Name:      "requests_total",
			Help:      "Board REST requests.",
		},
		[]string{"method", "status"},
	)
	persistenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "boardsync",
			Subsystem: "persistence",
			Name:      "request_duration_seconds",
			Help:      "Board REST request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)
	persistenceBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "boardsync",
			Subsystem: "persistence",
			Name:      "batches_total",
			Help:      "Content batches written by result.",
		},
		[]string{"result"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "boardsync",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests served.",
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			connectionFailures,
			connects,
			events,
			publishes,
			persistenceRequests,
			persistenceDuration,
			persistenceBatches,
			httpRequests,
		)
	})
}

func RecordConnectionFailure(reason string) {
	RegisterMetrics()
	connectionFailures.WithLabelValues(reason).Inc()
}

func RecordConnect(result string) {
	RegisterMetrics()
	connects.WithLabelValues(result).Inc()
}

func RecordEvent(eventType string) {
	RegisterMetrics()
	events.WithLabelValues(eventType).Inc()
}

func RecordPublish(contentType string) {
	RegisterMetrics()
	publishes.WithLabelValues(contentType).Inc()
}

// RecordPersistenceRequest records one REST round trip. Status 0 means the request never
// produced a response.
func RecordPersistenceRequest(method string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	persistenceRequests.WithLabelValues(method, statusLabel).Inc()
	persistenceDuration.WithLabelValues(method, statusLabel).Observe(duration.Seconds())
}

func RecordPersistenceBatch(success bool) {
	RegisterMetrics()
	result := "ok"
	if !success {
		result = "error"
	}
	persistenceBatches.WithLabelValues(result).Inc()
}

func RecordHTTPRequest(node, method, path string, status int) {
	RegisterMetrics()
	httpRequests.WithLabelValues(node, method, path, strconv.Itoa(status)).Inc()
}

// Metrics adapts the package recorders to the realtime metrics sink.
type Metrics struct{}

func (Metrics) ConnectionFailure(reason string) { RecordConnectionFailure(reason) }
func (Metrics) Connect(result string)           { RecordConnect(result) }
func (Metrics) Event(eventType string)          { RecordEvent(eventType) }
func (Metrics) Publish(contentType string)      { RecordPublish(contentType) }
