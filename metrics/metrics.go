package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the relay.
type Metrics struct {
	// Session lifecycle
	ActiveSessions  prometheus.Gauge
	SessionsStarted prometheus.Counter
	SessionErrors   prometheus.Counter

	// Transcript relay
	AudioChunks           prometheus.Counter
	TranscriptsForwarded  *prometheus.CounterVec
	SessionDurationSecond prometheus.Histogram

	// Summarization
	Summaries     prometheus.Counter
	SummaryErrors prometheus.Counter
}

// New creates and registers all collectors against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "scribe_active_sessions",
			Help: "Current number of live client sessions",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_sessions_started_total",
			Help: "Total number of sessions started",
		}),
		SessionErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_session_errors_total",
			Help: "Total number of sessions torn down by an unexpected fault",
		}),
		AudioChunks: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_audio_chunks_total",
			Help: "Total number of audio chunks relayed to the recognizer",
		}),
		TranscriptsForwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_transcripts_forwarded_total",
			Help: "Total number of transcript messages sent to clients",
		}, []string{"finality"}),
		SessionDurationSecond: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_session_duration_seconds",
			Help:    "Duration of client sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		Summaries: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_summaries_total",
			Help: "Total number of summaries delivered to clients",
		}),
		SummaryErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_summary_errors_total",
			Help: "Total number of failed summarization attempts",
		}),
	}
}
