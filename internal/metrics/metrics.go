// Package metrics exposes Prometheus collectors for the request
// executor and uploader, grounded on the teacher's own use of
// github.com/prometheus/client_golang for operational metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors groups every metric this module registers. A nil
// *Collectors (see Noop) is safe to call methods on; all of them
// become no-ops, so wiring metrics is opt-in.
type Collectors struct {
	Retries          *prometheus.CounterVec
	EndpointSwitches prometheus.Counter
	UploadBytes      prometheus.Counter
	UploadDuration   prometheus.Histogram
	ConcurrentParts  prometheus.Gauge
}

// New registers a fresh set of collectors against reg. Pass
// prometheus.NewRegistry() for an isolated registry, or
// prometheus.DefaultRegisterer to publish on the default /metrics
// endpoint.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qsdk",
			Subsystem: "http",
			Name:      "retries_total",
			Help:      "Number of retried attempts, labeled by retry decision.",
		}, []string{"decision"}),
		EndpointSwitches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qsdk",
			Subsystem: "http",
			Name:      "endpoint_switches_total",
			Help:      "Number of times the executor abandoned an endpoint for another.",
		}),
		UploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qsdk",
			Subsystem: "upload",
			Name:      "bytes_total",
			Help:      "Total bytes successfully uploaded across all parts.",
		}),
		UploadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "qsdk",
			Subsystem: "upload",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of a complete object upload.",
			Buckets:   prometheus.DefBuckets,
		}),
		ConcurrentParts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "qsdk",
			Subsystem: "upload",
			Name:      "concurrent_parts",
			Help:      "Number of part uploads currently in flight.",
		}),
	}
	reg.MustRegister(c.Retries, c.EndpointSwitches, c.UploadBytes, c.UploadDuration, c.ConcurrentParts)
	return c
}

// Noop returns a Collectors whose methods are all safe no-ops, for
// callers that don't want metrics wired up.
func Noop() *Collectors { return nil }

func (c *Collectors) ObserveRetry(decision string) {
	if c == nil {
		return
	}
	c.Retries.WithLabelValues(decision).Inc()
}

func (c *Collectors) ObserveEndpointSwitch() {
	if c == nil {
		return
	}
	c.EndpointSwitches.Inc()
}

func (c *Collectors) ObserveUploadedBytes(n int64) {
	if c == nil {
		return
	}
	c.UploadBytes.Add(float64(n))
}

func (c *Collectors) ObserveUploadDuration(seconds float64) {
	if c == nil {
		return
	}
	c.UploadDuration.Observe(seconds)
}

func (c *Collectors) IncConcurrentParts() {
	if c == nil {
		return
	}
	c.ConcurrentParts.Inc()
}

func (c *Collectors) DecConcurrentParts() {
	if c == nil {
		return
	}
	c.ConcurrentParts.Dec()
}

// Handler returns an http.Handler serving reg's metrics in the
// Prometheus exposition format, for mounting under e.g. /metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
