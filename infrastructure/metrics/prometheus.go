// Package metrics exports indexer metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "memeindex"

// Prometheus records indexer events on its own registry.
type Prometheus struct {
	registry     *prometheus.Registry
	received     prometheus.Counter
	indexed      prometheus.Counter
	duplicates   prometheus.Counter
	failed       *prometheus.CounterVec
	deadLettered *prometheus.CounterVec
	processing   prometheus.Histogram
	backoff      prometheus.Gauge
}

// NewPrometheus creates the collectors and registers them together with
// the Go runtime and process collectors.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Queue messages received by the indexer.",
		}),
		indexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_indexed_total",
			Help:      "Posts embedded and stored for the first time.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_duplicate_total",
			Help:      "Messages whose post was already stored.",
		}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_failed_total",
			Help:      "Messages that failed processing, by stage.",
		}, []string{"stage"}),
		deadLettered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dead_lettered_total",
			Help:      "Messages moved to the dead-letter queue, by reason.",
		}, []string{"reason"}),
		processing: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_processing_seconds",
			Help:      "Time spent processing one message.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		backoff: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "receive_backoff_seconds",
			Help:      "Current delay before the next receive after failures. Zero when healthy.",
		}),
	}

	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.received,
		p.indexed,
		p.duplicates,
		p.failed,
		p.deadLettered,
		p.processing,
		p.backoff,
	)
	return p
}

// Registry returns the registry holding the collectors.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Received counts n received messages.
func (p *Prometheus) Received(n int) { p.received.Add(float64(n)) }

// Indexed counts a newly stored post.
func (p *Prometheus) Indexed() { p.indexed.Inc() }

// Duplicate counts a redelivered post.
func (p *Prometheus) Duplicate() { p.duplicates.Inc() }

// Failed counts a failure at stage.
func (p *Prometheus) Failed(stage string) { p.failed.WithLabelValues(stage).Inc() }

// DeadLettered counts a dead-lettered message.
func (p *Prometheus) DeadLettered(reason string) { p.deadLettered.WithLabelValues(reason).Inc() }

// Observe records the processing time of one message.
func (p *Prometheus) Observe(d time.Duration) { p.processing.Observe(d.Seconds()) }

// Backoff sets the current receive backoff.
func (p *Prometheus) Backoff(d time.Duration) { p.backoff.Set(d.Seconds()) }
