// Package metrics exposes Prometheus instrumentation for recording sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"meetrec/internal/domain"
)

// Metrics contains the Prometheus collectors for the recorder. A nil
// *Metrics records nothing.
type Metrics struct {
	// Session metrics
	SessionsStarted      prometheus.Counter
	SessionStartFailures *prometheus.CounterVec
	ActiveSessions       prometheus.Gauge
	SessionDuration      prometheus.Histogram
	SessionErrors        *prometheus.CounterVec

	// Watchdog metrics
	AutoStops *prometheus.CounterVec
	Warnings  *prometheus.CounterVec

	// Pipeline metrics
	AudioFramesSent  prometheus.Counter
	TranscriptEvents *prometheus.CounterVec
	RecordedBytes    prometheus.Histogram
}

// New registers every collector with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetrec_sessions_started_total",
			Help: "Total number of recording sessions started",
		}),
		SessionStartFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meetrec_session_start_failures_total",
			Help: "Total number of sessions that failed to start",
		}, []string{"code"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meetrec_active_sessions",
			Help: "Number of sessions currently recording",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "meetrec_session_duration_seconds",
			Help:    "Length of finished recording sessions",
			Buckets: []float64{30, 60, 300, 900, 1800, 2700, 3600, 4500, 5400},
		}),
		SessionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meetrec_session_errors_total",
			Help: "Total number of session errors reported",
		}, []string{"code"}),
		AutoStops: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meetrec_auto_stops_total",
			Help: "Total number of sessions stopped by a watchdog",
		}, []string{"reason"}),
		Warnings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meetrec_warnings_total",
			Help: "Total number of watchdog warnings raised",
		}, []string{"kind"}),
		AudioFramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetrec_audio_frames_sent_total",
			Help: "Total number of PCM frames sent to the transcription channel",
		}),
		TranscriptEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meetrec_transcript_events_total",
			Help: "Total number of transcript events received",
		}, []string{"kind"}),
		RecordedBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "meetrec_recorded_bytes",
			Help:    "Size of finalized recordings",
			Buckets: prometheus.ExponentialBuckets(64*1024, 4, 8),
		}),
	}
}

func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
}

func (m *Metrics) RecordStartFailure(code domain.ErrorCode) {
	if m == nil {
		return
	}
	m.SessionStartFailures.WithLabelValues(string(code)).Inc()
}

func (m *Metrics) RecordSessionStopped(durationSeconds float64, recordedBytes int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(durationSeconds)
	if recordedBytes > 0 {
		m.RecordedBytes.Observe(float64(recordedBytes))
	}
}

func (m *Metrics) RecordSessionError(code domain.ErrorCode) {
	if m == nil {
		return
	}
	m.SessionErrors.WithLabelValues(string(code)).Inc()
}

func (m *Metrics) RecordAutoStop(reason domain.StopReason) {
	if m == nil {
		return
	}
	m.AutoStops.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) RecordWarning(kind domain.WarningKind) {
	if m == nil {
		return
	}
	m.Warnings.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) RecordFrameSent() {
	if m == nil {
		return
	}
	m.AudioFramesSent.Inc()
}

func (m *Metrics) RecordTranscriptEvent(kind domain.TranscriptKind) {
	if m == nil {
		return
	}
	m.TranscriptEvents.WithLabelValues(string(kind)).Inc()
}
