// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ekko"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Recording metrics
	RecordingsStarted prometheus.Counter
	RecordingsStopped prometheus.Counter
	RecordingsFailed  *prometheus.CounterVec
	RecordingActive   prometheus.Gauge
	RecordingDuration prometheus.Histogram
	TimeWarnings      *prometheus.CounterVec
	AudioBytesWritten prometheus.Counter

	// Pipeline metrics
	RunsStarted   prometheus.Counter
	RunsActive    prometheus.Gauge
	RunsFinished  *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec

	// External collaborator metrics
	CallLatency *prometheus.HistogramVec
	CallErrors  *prometheus.CounterVec

	// Best-effort cleanup metrics
	CleanupFailures *prometheus.CounterVec

	// Event bus metrics
	EventsDropped *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RecordingsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_started_total",
			Help:      "Total number of recording sessions started",
		}),
		RecordingsStopped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_stopped_total",
			Help:      "Total number of recording sessions stopped normally",
		}),
		RecordingsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_failed_total",
			Help:      "Total number of recording sessions terminated by an error",
		}, []string{"reason"}),
		RecordingActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recording_active",
			Help:      "1 while a recording session is active",
		}),
		RecordingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recording_duration_seconds",
			Help:      "Duration of finished recording sessions",
			Buckets:   []float64{60, 300, 900, 1800, 3600, 4200, 5400, 7200},
		}),
		TimeWarnings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "time_warnings_total",
			Help:      "Total number of duration warnings emitted",
		}, []string{"level"}),
		AudioBytesWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_written_total",
			Help:      "Total PCM bytes written to recording files",
		}),

		RunsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_started_total",
			Help:      "Total number of pipeline runs started",
		}),
		RunsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_active",
			Help:      "Number of pipeline runs not yet terminal",
		}),
		RunsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_finished_total",
			Help:      "Total number of pipeline runs by outcome",
		}, []string{"outcome"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Time spent in each pipeline stage",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 900},
		}, []string{"stage"}),

		CallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_call_latency_seconds",
			Help:      "Latency of calls to external collaborators",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 180},
		}, []string{"collaborator"}),
		CallErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_call_errors_total",
			Help:      "Total number of failed calls to external collaborators",
		}, []string{"collaborator"}),

		CleanupFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_failures_total",
			Help:      "Best-effort cleanup failures that were logged and ignored",
		}, []string{"kind"}),

		EventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped because a subscriber was not keeping up",
		}, []string{"kind"}),

		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordRecordingStart records a new capture session starting.
func (m *Metrics) RecordRecordingStart() {
	m.RecordingsStarted.Inc()
	m.RecordingActive.Set(1)
}

// RecordRecordingEnd records a capture session ending. An empty reason means
// the session was stopped normally.
func (m *Metrics) RecordRecordingEnd(reason string, durationSeconds float64) {
	m.RecordingActive.Set(0)
	m.RecordingDuration.Observe(durationSeconds)
	if reason == "" {
		m.RecordingsStopped.Inc()
		return
	}
	m.RecordingsFailed.WithLabelValues(reason).Inc()
}

// RecordTimeWarning records a duration warning.
func (m *Metrics) RecordTimeWarning(level string) {
	m.TimeWarnings.WithLabelValues(level).Inc()
}

// RecordAudioWritten records PCM bytes written to disk.
func (m *Metrics) RecordAudioWritten(n int) {
	m.AudioBytesWritten.Add(float64(n))
}

// RecordRunStart records a pipeline run starting.
func (m *Metrics) RecordRunStart() {
	m.RunsStarted.Inc()
	m.RunsActive.Inc()
}

// RecordRunEnd records a pipeline run reaching a terminal stage.
func (m *Metrics) RecordRunEnd(outcome string) {
	m.RunsActive.Dec()
	m.RunsFinished.WithLabelValues(outcome).Inc()
}

// RecordStage records time spent in a pipeline stage.
func (m *Metrics) RecordStage(stage string, seconds float64) {
	m.StageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordCall records a call to an external collaborator.
func (m *Metrics) RecordCall(collaborator string, err error, latencySeconds float64) {
	m.CallLatency.WithLabelValues(collaborator).Observe(latencySeconds)
	if err != nil {
		m.CallErrors.WithLabelValues(collaborator).Inc()
	}
}

// RecordCleanupFailure records a best-effort cleanup that failed.
func (m *Metrics) RecordCleanupFailure(kind string) {
	m.CleanupFailures.WithLabelValues(kind).Inc()
}

// RecordEventDropped records an event that a subscriber could not take.
func (m *Metrics) RecordEventDropped(kind string) {
	m.EventsDropped.WithLabelValues(kind).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
