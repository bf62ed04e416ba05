package observability

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tocka_jobs_started_total",
		Help: "The total number of started jobs",
	}, []string{"type"})

	JobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tocka_jobs_finished_total",
		Help: "The total number of finished jobs",
	}, []string{"type", "status"}) // status: completed, cancelled, error

	RowsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tocka_rows_processed_total",
		Help: "The total number of enriched input rows",
	})

	RemoteRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tocka_remote_request_duration_seconds",
		Help:    "Duration of inventory API calls.",
		Buckets: prometheus.LinearBuckets(0.1, 0.2, 10),
	}, []string{"op"})
)

// NewLogger creates a new structured logger.
func NewLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

// StartMetricsServer runs an HTTP server to expose Prometheus metrics.
func StartMetricsServer(addr string, logger *slog.Logger) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server failed", "error", err)
		}
	}()
}
