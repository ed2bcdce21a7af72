package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sounding_archive"

// Metrics holds the Prometheus gauges and counters describing one archive.
type Metrics struct {
	registry *prometheus.Registry

	Files         prometheus.Gauge
	MissingBlobs  prometheus.Gauge
	OrphanedBlobs prometheus.Gauge
	LastCheck     prometheus.Gauge

	FilesAdded   prometheus.Counter
	FilesRemoved prometheus.Counter
}

// NewMetrics creates the archive metrics and registers them with a registry of their
// own, so several archives can be measured in one process.
func NewMetrics() *Metrics {
	m := newMetrics()
	m.registry.MustRegister(
		m.Files,
		m.MissingBlobs,
		m.OrphanedBlobs,
		m.LastCheck,
		m.FilesAdded,
		m.FilesRemoved,
	)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		registry: prometheus.NewRegistry(),
		Files: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "files",
			Help:      "Number of files in the archive index.",
		}),
		MissingBlobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "missing_blobs",
			Help:      "Indexed files with no blob on disk at the last check.",
		}),
		OrphanedBlobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "orphaned_blobs",
			Help:      "Blobs on disk not referenced by the index at the last check.",
		}),
		LastCheck: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_check_timestamp_seconds",
			Help:      "Unix time of the last consistency check.",
		}),
		FilesAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_added_total",
			Help:      "Files added or replaced.",
		}),
		FilesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_removed_total",
			Help:      "Files removed.",
		}),
	}
}

// ObserveCheck records the outcome of a consistency check.
func (m *Metrics) ObserveCheck(files, missingOnDisk, missingFromIndex int) {
	m.Files.Set(float64(files))
	m.MissingBlobs.Set(float64(missingOnDisk))
	m.OrphanedBlobs.Set(float64(missingFromIndex))
	m.LastCheck.SetToCurrentTime()
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the metrics to path for the node exporter textfile collector.
// The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
