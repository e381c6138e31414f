// Package telemetry exposes the pipeline's operational counters as
// Prometheus collectors. Collectors are registered once at package load and
// incremented from the acquisition and scheduling paths.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsReceived counts validated samples decoded from the device.
	PacketsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eeg_packets_received_total",
			Help: "Total number of valid samples decoded from the serial stream",
		},
	)

	// PacketsCorrupted counts malformed or out-of-range lines dropped.
	PacketsCorrupted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eeg_packets_corrupted_total",
			Help: "Total number of malformed or out-of-range lines dropped",
		},
	)

	// BytesRead counts raw bytes consumed from the transport.
	BytesRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eeg_bytes_read_total",
			Help: "Total bytes read from the serial transport",
		},
	)

	// Reconnects counts reconnect attempts.
	Reconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eeg_reconnect_attempts_total",
			Help: "Total number of reconnect attempts against the device",
		},
	)

	// WindowsProcessed counts emitted analysis windows.
	WindowsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eeg_windows_processed_total",
			Help: "Total number of analysis windows processed",
		},
	)

	// RecordsWritten counts records accepted by sinks.
	RecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eeg_records_written_total",
			Help: "Total number of window records written per sink",
		},
		[]string{"sink"},
	)

	// SinkErrors counts write failures per sink.
	SinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eeg_sink_errors_total",
			Help: "Total number of sink write failures",
		},
		[]string{"sink"},
	)

	// ProcessingSeconds observes per-window processing latency.
	ProcessingSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eeg_window_processing_seconds",
			Help:    "Per-window processing time in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// QualityScore tracks the most recent window quality score.
	QualityScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eeg_quality_score",
			Help: "Quality score of the most recent window (0-100)",
		},
	)

	// LateralizationIndex tracks the most recent LI.
	LateralizationIndex = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eeg_lateralization_index",
			Help: "Lateralization index of the most recent window (-1 to 1)",
		},
	)
)
