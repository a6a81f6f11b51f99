// Package metrics exposes the pool's Prometheus metrics (spec.md §6).
// Grounded on ChuLiYu-raft-recovery/internal/metrics.Collector: the same
// MustRegister-at-construction shape so every metric exists (even at
// zero) before the first scrape, which is itself a spec.md §6
// requirement ("counters must be pre-recorded with zero at startup").
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coreslab/nodeagent/internal/pool/types"
)

// Collector is the pool's metrics sink. All counters/histograms are
// pre-registered with zero values at construction time.
type Collector struct {
	registerLatency prometheus.Histogram
	workersStarted  prometheus.Counter
	cacheHits       prometheus.Counter
	cacheMisses     *prometheus.CounterVec
}

// New builds a Collector registered against reg. Pass prometheus.NewRegistry()
// in tests to avoid colliding with the global default registry across
// multiple test binaries.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	c := &Collector{
		registerLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "nodeagent_worker_register_latency_ms",
			Help:    "Latency in milliseconds between process spawn and worker registration.",
			Buckets: types.RegistrationLatencyBucketsMS,
		}),
		workersStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "nodeagent_workers_started_total",
			Help: "Total number of worker processes spawned.",
		}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "nodeagent_worker_cache_hits_total",
			Help: "Total number of pop requests served from the idle queue.",
		}),
		cacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nodeagent_worker_cache_misses_total",
			Help: "Total number of pop requests that missed the idle queue, by reason.",
		}, []string{"reason"}),
	}

	// Pre-record every known mismatch reason at zero so dashboards never
	// show a gap for a reason that simply hasn't fired yet.
	for _, reason := range []types.MismatchReason{
		types.MismatchOther,
		types.MismatchRootDetachedActor,
		types.MismatchRuntimeEnv,
		types.MismatchDynamicOptions,
	} {
		c.cacheMisses.WithLabelValues(string(reason)).Add(0)
	}

	return c
}

func (c *Collector) ObserveRegisterLatency(ms float64) { c.registerLatency.Observe(ms) }
func (c *Collector) IncWorkersStarted()                { c.workersStarted.Inc() }
func (c *Collector) IncCacheHit()                       { c.cacheHits.Inc() }
func (c *Collector) IncCacheMiss(reason types.MismatchReason) {
	c.cacheMisses.WithLabelValues(string(reason)).Inc()
}

// Handler returns the /metrics HTTP handler for promhttp scraping.
func Handler() http.Handler { return promhttp.Handler() }
