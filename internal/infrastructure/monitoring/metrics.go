package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "clouddesk"

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec

	// Mailbox metrics
	MailboxWrites   *prometheus.CounterVec
	MailboxEvents   prometheus.Counter
	MailboxPurges   prometheus.Counter
	NormalizeErrors *prometheus.CounterVec

	// Sync metrics
	SyncAttempts *prometheus.CounterVec
	SyncDuration prometheus.Histogram
	TasksKnown   prometheus.Gauge

	// Supervisor metrics
	ProcessesActive prometheus.Gauge
	Spawns          *prometheus.CounterVec
	Terminations    *prometheus.CounterVec

	// Handoff metrics
	Transitions *prometheus.CounterVec
	HandoffBusy prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	Uptime prometheus.GaugeFunc

	registry  prometheus.Gatherer
	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the JSON status API
type Snapshot struct {
	TotalRequests int64
	TotalErrors   int64
	Transitions   int64
	SyncFailures  int64
	LastSync      time.Time
}

// NewMetrics creates metrics registered on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return NewMetricsWith(reg, reg)
}

// NewMetricsWith registers metrics on reg. gatherer is exposed by Handler;
// pass nil to use prometheus.DefaultGatherer.
func NewMetricsWith(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	f := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),
		registry:  gatherer,

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of inbound HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Inbound HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"method", "path"},
		),
		RequestSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_size_bytes",
				Help:      "Inbound HTTP request size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),

		MailboxWrites: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mailbox_writes_total",
				Help:      "Mailbox documents written, by producer format",
			},
			[]string{"format"},
		),
		MailboxEvents: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mailbox_change_events_total",
				Help:      "Debounced mailbox change notifications delivered",
			},
		),
		MailboxPurges: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mailbox_purges_total",
				Help:      "Mailbox purges performed",
			},
		),
		NormalizeErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "normalize_errors_total",
				Help:      "Documents rejected by the normalizer",
			},
			[]string{"reason"},
		),

		SyncAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_attempts_total",
				Help:      "Remote task sync attempts by outcome",
			},
			[]string{"result"},
		),
		SyncDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_duration_seconds",
				Help:      "Remote task sync duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		TasksKnown: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tasks_known",
				Help:      "Tasks currently held by the synchronizer",
			},
		),

		ProcessesActive: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "processes_active",
				Help:      "Supervised child processes currently running",
			},
		),
		Spawns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "process_spawns_total",
				Help:      "Spawn attempts by role and outcome",
			},
			[]string{"role", "result"},
		),
		Terminations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "process_terminations_total",
				Help:      "Terminations by mode (graceful, forced, exited)",
			},
			[]string{"mode"},
		),

		Transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handoff_transitions_total",
				Help:      "Handoff state transitions",
			},
			[]string{"from", "to"},
		),
		HandoffBusy: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handoff_busy_total",
				Help:      "Triggers deferred because a transition was in flight",
			},
		),

		WSConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ws_connections",
				Help:      "Number of active WebSocket connections",
			},
		),
		WSMessages: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ws_messages_total",
				Help:      "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	m.Uptime = f.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Launcher uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Gatherer returns the registry the metrics endpoint should expose
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// RecordHTTPRequest records an inbound HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if len(status) > 0 && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordMailboxWrite records a document written to the mailbox
func (m *Metrics) RecordMailboxWrite(format string) {
	m.MailboxWrites.WithLabelValues(format).Inc()
}

// RecordMailboxEvent records a delivered change notification
func (m *Metrics) RecordMailboxEvent() {
	m.MailboxEvents.Inc()
}

// RecordMailboxPurge records a purge
func (m *Metrics) RecordMailboxPurge() {
	m.MailboxPurges.Inc()
}

// RecordNormalizeError records a rejected document
func (m *Metrics) RecordNormalizeError(reason string) {
	m.NormalizeErrors.WithLabelValues(reason).Inc()
}

// RecordSync records a sync attempt outcome ("success", "fallback", "auth_failed")
func (m *Metrics) RecordSync(result string, duration time.Duration, tasks int) {
	m.SyncAttempts.WithLabelValues(result).Inc()
	m.SyncDuration.Observe(duration.Seconds())
	m.TasksKnown.Set(float64(tasks))

	m.mu.Lock()
	m.snapshot.LastSync = time.Now()
	if result != "success" {
		m.snapshot.SyncFailures++
	}
	m.mu.Unlock()
}

// RecordSpawn records a spawn attempt
func (m *Metrics) RecordSpawn(role string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	} else {
		m.ProcessesActive.Inc()
	}
	m.Spawns.WithLabelValues(role, result).Inc()
}

// RecordTermination records the end of a supervised process
func (m *Metrics) RecordTermination(mode string) {
	m.Terminations.WithLabelValues(mode).Inc()
	m.ProcessesActive.Dec()
}

// RecordTransition records a handoff state change
func (m *Metrics) RecordTransition(from, to string) {
	m.Transitions.WithLabelValues(from, to).Inc()
	m.mu.Lock()
	m.snapshot.Transitions++
	m.mu.Unlock()
}

// RecordHandoffBusy records a trigger deferred by an in-flight transition
func (m *Metrics) RecordHandoffBusy() {
	m.HandoffBusy.Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}

// GetSnapshot returns a copy of the tracked values
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Since returns time since the metrics were created
func (m *Metrics) Since() time.Duration {
	return time.Since(m.startTime)
}
