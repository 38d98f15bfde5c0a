// Package metrics provides Prometheus metrics for the tariff server
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tariff_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tariff_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Upload metrics
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tariff_uploads_total",
			Help: "Total number of table uploads",
		},
		[]string{"file_type", "status"},
	)

	RowsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tariff_rows_ingested_total",
			Help: "Total number of data rows stored from uploads",
		},
		[]string{"file_type"},
	)

	IngestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tariff_ingest_duration_seconds",
			Help:    "Time taken to parse and store an upload",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"file_type"},
	)

	// Calculation metrics
	CalculationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tariff_calculations_total",
			Help: "Total number of allocation calculations served",
		},
		[]string{"kind"},
	)

	SourceEditsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tariff_source_edits_rejected_total",
			Help: "Source allocation edits rejected by validation",
		},
		[]string{"reason"},
	)

	TariffLookupMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tariff_lookup_misses_total",
			Help: "Tariff lookups with no matching route",
		},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tariff_errors_total",
			Help: "Total number of errors",
		},
		[]string{"type"},
	)
)

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordUpload records the outcome of a table upload
func RecordUpload(fileType string, rows int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failed"
		ErrorsTotal.WithLabelValues("upload").Inc()
	} else {
		RowsIngested.WithLabelValues(fileType).Add(float64(rows))
	}
	UploadsTotal.WithLabelValues(fileType, status).Inc()
	IngestDuration.WithLabelValues(fileType).Observe(duration.Seconds())
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Instrument wraps a handler with request count and latency metrics under a fixed route label
func Instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, req)
		RequestsTotal.WithLabelValues(route, req.Method, strconv.Itoa(rec.status)).Inc()
		RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
