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
		Name: "voxtype_active_sessions",
		Help: "Number of active recording sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxtype_sessions_total",
		Help: "Total number of recording sessions",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voxtype_session_duration_seconds",
		Help:    "Duration of recording sessions in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	sessionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxtype_session_outcomes_total",
		Help: "Terminal session outcomes",
	}, []string{"outcome"}) // complete, degraded, failed, cancelled

	// Transcription metrics
	transcriptionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxtype_transcription_requests_total",
		Help: "Total number of transcription requests",
	}, []string{"backend", "kind", "status"}) // kind: chunk or final

	transcriptionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voxtype_transcription_latency_seconds",
		Help:    "Transcription request latency in seconds",
		Buckets: []float64{0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
	}, []string{"backend", "kind"})

	// Draft metrics
	chunkQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voxtype_chunk_queue_depth",
		Help: "Number of chunks waiting for draft transcription",
	})

	draftRewrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxtype_draft_rewrites_total",
		Help: "Total number of draft file rewrites",
	})

	chunksDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxtype_chunks_dropped_total",
		Help: "Chunks discarded without transcription at shutdown",
	})

	// Audio metrics
	audioBytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxtype_audio_bytes_written_total",
		Help: "Total PCM bytes appended to recording files",
	})

	audioWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxtype_audio_write_failures_total",
		Help: "Recording file append failures (dropped buffers)",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxtype_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voxtype_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxtype_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// SessionMetrics tracks metrics for a single recording session
type SessionMetrics struct {
	sessionID string
	startTime time.Time
	mu        sync.Mutex
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *SessionMetrics {
	return &SessionMetrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records the start of a recording session
func (m *SessionMetrics) RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records a terminal session outcome
func (m *SessionMetrics) RecordSessionEnd(outcome string) {
	activeSessions.Dec()
	duration := time.Since(m.startTime).Seconds()
	sessionDuration.Observe(duration)
	sessionOutcomes.WithLabelValues(outcome).Inc()
}

// RecordTranscription records one transcription request
func RecordTranscription(backend, kind string, start time.Time, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	transcriptionRequests.WithLabelValues(backend, kind, status).Inc()
	transcriptionLatency.WithLabelValues(backend, kind).Observe(time.Since(start).Seconds())
}

// SetChunkQueueDepth updates the pending chunk gauge
func SetChunkQueueDepth(depth int) {
	chunkQueueDepth.Set(float64(depth))
}

// RecordDraftRewrite records one draft file rewrite
func RecordDraftRewrite() {
	draftRewrites.Inc()
}

// RecordChunksDropped records chunks discarded at shutdown
func RecordChunksDropped(n int) {
	chunksDropped.Add(float64(n))
}

// RecordAudioBytes records PCM bytes appended to a recording file
func RecordAudioBytes(n int64) {
	audioBytesWritten.Add(float64(n))
}

// RecordAudioWriteFailure records a dropped buffer
func RecordAudioWriteFailure() {
	audioWriteFailures.Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
