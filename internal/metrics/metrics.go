package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pagesOCR = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookdigitizer",
			Name:      "pages_ocr_total",
			Help:      "Total pages run through OCR by result (success, unreadable)",
		},
		[]string{"result"},
	)

	ocrConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "bookdigitizer",
			Name:      "ocr_confidence",
			Help:      "Per-page average OCR confidence (0-100)",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		},
	)

	structureReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookdigitizer",
			Name:      "structure_requests_total",
			Help:      "Text structuring attempts by result (success, fallback, empty)",
		},
		[]string{"result"},
	)

	providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bookdigitizer",
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of text-understanding provider requests by provider and model",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "model"},
	)

	booksCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bookdigitizer",
			Name:      "books_created_total",
			Help:      "Total books persisted",
		},
	)

	sourcesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookdigitizer",
			Name:      "sources_processed_total",
			Help:      "Pipeline sources by result (success, failed)",
		},
		[]string{"result"},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(pagesOCR, ocrConfidence, structureReqs, providerLatency, booksCreated, sourcesProcessed)
}

func IncPageOCR(result string) { pagesOCR.WithLabelValues(result).Inc() }

func ObserveConfidence(conf float64) { ocrConfidence.Observe(conf) }

func IncStructure(result string) { structureReqs.WithLabelValues(result).Inc() }

func IncBookCreated() { booksCreated.Inc() }

func IncSourceProcessed(result string) { sourcesProcessed.WithLabelValues(result).Inc() }

func ObserveProvider(provider, model string, dur time.Duration) {
	providerLatency.WithLabelValues(provider, model).Observe(dur.Seconds())
}
