package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects and exposes upload metrics.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry        *prometheus.Registry
	uploadsTotal    *prometheus.CounterVec
	bytesTotal      prometheus.Counter
	retriesTotal    prometheus.Counter
	inflightUploads prometheus.Gauge
	duration        prometheus.Histogram
}

// New creates a new metrics collector with its own registry
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		uploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "artifactpush_uploads_total",
				Help: "Total number of files processed, by status",
			},
			[]string{"status"},
		),
		bytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "artifactpush_bytes_total",
				Help: "Total bytes uploaded successfully",
			},
		),
		retriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "artifactpush_retries_total",
				Help: "Total upload attempts beyond the first",
			},
		),
		inflightUploads: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "artifactpush_inflight_uploads",
				Help: "Number of uploads currently in progress",
			},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "artifactpush_upload_duration_seconds",
				Help:    "Time taken to upload a file, including retries",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	c.registry.MustRegister(c.uploadsTotal, c.bytesTotal, c.retriesTotal, c.inflightUploads, c.duration)

	return c
}

// IncInflight marks an upload as started
func (c *Collector) IncInflight() {
	if c == nil {
		return
	}
	c.inflightUploads.Inc()
}

// DecInflight marks an upload as finished
func (c *Collector) DecInflight() {
	if c == nil {
		return
	}
	c.inflightUploads.Dec()
}

// ObserveUpload records the terminal outcome of one upload
func (c *Collector) ObserveUpload(success bool, bytes int64, retries int, duration time.Duration) {
	if c == nil {
		return
	}

	status := "failed"
	if success {
		status = "success"
		c.bytesTotal.Add(float64(bytes))
	}
	c.uploadsTotal.WithLabelValues(status).Inc()
	c.retriesTotal.Add(float64(retries))
	if duration > 0 {
		c.duration.Observe(duration.Seconds())
	}
}

// IncStatFailed counts a candidate that failed before transfer
func (c *Collector) IncStatFailed() {
	if c == nil {
		return
	}
	c.uploadsTotal.WithLabelValues("stat_failed").Inc()
}

// Handler serves the collector's registry in Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// StartServer serves /metrics on addr until ctx is done
func (c *Collector) StartServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
