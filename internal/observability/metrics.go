package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_gateway_active_sessions",
		Help: "Number of active voice sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_gateway_sessions_total",
		Help: "Total number of voice sessions processed",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_gateway_session_duration_seconds",
		Help:    "Duration of voice sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	// Upstream realtime metrics
	upstreamEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_gateway_upstream_events_total",
		Help: "Total upstream realtime events by kind",
	}, []string{"kind"})

	upstreamConnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_gateway_upstream_connects_total",
		Help: "Total upstream connection attempts",
	}, []string{"status"})

	// TTS metrics
	ttsRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_gateway_tts_requests_total",
		Help: "Total number of TTS synthesis requests",
	}, []string{"status"})

	ttsLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_gateway_tts_latency_seconds",
		Help:    "Time from synthesis request to first audio frame in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	// Conversation metrics
	bargeIns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_gateway_barge_ins_total",
		Help: "Total user interruptions during agent speech",
	})

	suppressedResponses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_gateway_suppressed_responses_total",
		Help: "Total upstream responses suppressed before first user speech",
	})

	agentResponses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_gateway_agent_responses_total",
		Help: "Total agent responses spoken to clients",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voice_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_gateway_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"
)

// Metrics tracks metrics for a single session
type Metrics struct {
	sessionID    string
	startTime    time.Time
	ttsStartTime time.Time
	mu           sync.Mutex
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *Metrics {
	return &Metrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records the start of a session
func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a session
func (m *Metrics) RecordSessionEnd() {
	if m == nil {
		return
	}
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordUpstreamEvent counts one inbound realtime event
func (m *Metrics) RecordUpstreamEvent(kind string) {
	if m == nil {
		return
	}
	upstreamEvents.WithLabelValues(kind).Inc()
}

// RecordUpstreamConnect records the outcome of an upstream connection attempt
func (m *Metrics) RecordUpstreamConnect(success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	upstreamConnects.WithLabelValues(status).Inc()
}

// RecordTTSStart records the start of one synthesis request
func (m *Metrics) RecordTTSStart() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.ttsStartTime = time.Now()
	m.mu.Unlock()
}

// RecordTTSEnd records the end of one synthesis request
func (m *Metrics) RecordTTSEnd(success bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ttsStartTime.IsZero() {
		ttsLatency.Observe(time.Since(m.ttsStartTime).Seconds())
	}

	status := "success"
	if !success {
		status = "error"
	}
	ttsRequests.WithLabelValues(status).Inc()
}

// RecordBargeIn records one user interruption
func (m *Metrics) RecordBargeIn() {
	if m == nil {
		return
	}
	bargeIns.Inc()
}

// RecordSuppressedResponse records one pre-speech response suppression
func (m *Metrics) RecordSuppressedResponse() {
	if m == nil {
		return
	}
	suppressedResponses.Inc()
}

// RecordAgentResponse records one spoken agent response
func (m *Metrics) RecordAgentResponse() {
	if m == nil {
		return
	}
	agentResponses.Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	if m == nil {
		return
	}
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioBytes records audio bytes processed
func (m *Metrics) RecordAudioBytes(direction string, bytes int64) {
	if m == nil {
		return
	}
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}
