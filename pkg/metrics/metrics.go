package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Request metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total number of gateway requests by plane, method and status",
		},
		[]string{"plane", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Gateway request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"plane"},
	)

	// Upstream metrics
	UpstreamAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_upstream_attempts_total",
			Help: "Total number of upstream attempts by service and outcome",
		},
		[]string{"service", "outcome"},
	)

	// Registry metrics
	InstancesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_instances_total",
			Help: "Total number of registered instances by service and status",
		},
		[]string{"service", "status"},
	)

	// Scheduler metrics
	TasksQueued = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_tasks_queued",
			Help: "Number of tasks waiting in the scheduler queue",
		},
	)

	TasksByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_tasks_total",
			Help: "Total number of tracked tasks by status",
		},
		[]string{"status"},
	)

	// Stream metrics
	StreamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_streams_active",
			Help: "Number of live SSE streams",
		},
	)

	// Pool metrics
	PoolPending = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_pool_pending",
			Help: "Number of queued jobs per thread pool",
		},
		[]string{"pool"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(UpstreamAttempts)
	prometheus.MustRegister(InstancesTotal)
	prometheus.MustRegister(TasksQueued)
	prometheus.MustRegister(TasksByStatus)
	prometheus.MustRegister(StreamsActive)
	prometheus.MustRegister(PoolPending)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures a duration for histogram observation
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time on the histogram.
func (t *Timer) ObserveDuration(h prometheus.Observer) {
	h.Observe(t.Duration().Seconds())
}
