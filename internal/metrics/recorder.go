// Package metrics exposes purge and sweep outcomes as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reaper-go/internal/reaper"
)

const namespace = "reaper"

// Recorder implements reaper.Recorder on its own Prometheus registry.
type Recorder struct {
	registry *prometheus.Registry

	purges        *prometheus.CounterVec
	blobFailures  prometheus.Counter
	sweeps        prometheus.Counter
	sweepAccounts *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	lastSweepTime prometheus.Gauge
}

// NewRecorder creates a Recorder. If registry is nil a new one is created.
func NewRecorder(registry *prometheus.Registry) *Recorder {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		purges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "purges_total",
				Help:      "Account purges attempted, by result",
			},
			[]string{"result"},
		),
		blobFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_blob_delete_failures_total",
			Help:      "Media blobs that could not be deleted during a purge",
		}),
		sweeps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Completed sweeps",
		}),
		sweepAccounts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_accounts_total",
				Help:      "Accounts seen by sweeps, by outcome",
			},
			[]string{"outcome"},
		),
		sweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of a sweep",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}),
		lastSweepTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sweep_timestamp_seconds",
			Help:      "Unix time the last sweep completed",
		}),
	}
}

func (r *Recorder) PurgeSucceeded() { r.purges.WithLabelValues("success").Inc() }

func (r *Recorder) PurgeFailed() { r.purges.WithLabelValues("failure").Inc() }

func (r *Recorder) BlobDeleteFailed() { r.blobFailures.Inc() }

func (r *Recorder) SweepCompleted(result *reaper.SweepResult, elapsed time.Duration) {
	r.sweeps.Inc()
	r.sweepAccounts.WithLabelValues("due").Add(float64(result.Due))
	r.sweepAccounts.WithLabelValues("purged").Add(float64(result.Purged))
	r.sweepAccounts.WithLabelValues("failed").Add(float64(result.Failed))
	r.sweepAccounts.WithLabelValues("skipped").Add(float64(result.Skipped))
	r.sweepDuration.Observe(elapsed.Seconds())
	r.lastSweepTime.SetToCurrentTime()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// Compile-time check
var _ reaper.Recorder = (*Recorder)(nil)
