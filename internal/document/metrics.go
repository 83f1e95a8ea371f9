package document

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// Metrics holds the Prometheus collectors for document traffic.
type Metrics struct {
	Attempts        *prometheus.CounterVec // benefits_document_upload_attempts_total{outcome}
	Files           *prometheus.CounterVec // benefits_document_upload_files_total{result}
	BytesUploaded   prometheus.Counter
	BytesDownloaded prometheus.Counter
	OrphanFailures  prometheus.Counter
	OrphansSwept    prometheus.Counter
	AttemptDuration prometheus.Histogram
}

// InitMetrics registers the document collectors once; later calls return the
// same instance regardless of registry.
func InitMetrics(registry prometheus.Registerer) *Metrics {
	metricsOnce.Do(func() {
		if registry == nil {
			registry = prometheus.DefaultRegisterer
		}
		factory := promauto.With(registry)
		metricsInstance = &Metrics{
			Attempts: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "benefits_document_upload_attempts_total",
				Help: "Upload attempts by outcome",
			}, []string{"outcome"}),
			Files: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "benefits_document_upload_files_total",
				Help: "Uploaded files by final result",
			}, []string{"result"}),
			BytesUploaded: factory.NewCounter(prometheus.CounterOpts{
				Name: "benefits_document_bytes_uploaded_total",
				Help: "Bytes durably written by successful attempts",
			}),
			BytesDownloaded: factory.NewCounter(prometheus.CounterOpts{
				Name: "benefits_document_bytes_downloaded_total",
				Help: "Bytes streamed to downloaders",
			}),
			OrphanFailures: factory.NewCounter(prometheus.CounterOpts{
				Name: "benefits_document_orphan_cleanup_failures_total",
				Help: "Partial objects that could not be deleted after a failed attempt",
			}),
			OrphansSwept: factory.NewCounter(prometheus.CounterOpts{
				Name: "benefits_document_orphans_swept_total",
				Help: "Open objects removed by the background sweeper",
			}),
			AttemptDuration: factory.NewHistogram(prometheus.HistogramOpts{
				Name:    "benefits_document_upload_attempt_seconds",
				Help:    "Wall time of individual upload attempts",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
			}),
		}
	})
	return metricsInstance
}

func (m *Metrics) attempt(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(outcome).Inc()
	m.AttemptDuration.Observe(seconds)
}

func (m *Metrics) file(result string) {
	if m == nil {
		return
	}
	m.Files.WithLabelValues(result).Inc()
}

func (m *Metrics) uploaded(n int64) {
	if m == nil {
		return
	}
	m.BytesUploaded.Add(float64(n))
}

func (m *Metrics) downloaded(n int64) {
	if m == nil {
		return
	}
	m.BytesDownloaded.Add(float64(n))
}

func (m *Metrics) orphanFailure() {
	if m == nil {
		return
	}
	m.OrphanFailures.Inc()
}

// SweptOrphans records objects removed by the background sweeper.
func (m *Metrics) SweptOrphans(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.OrphansSwept.Add(float64(n))
}
