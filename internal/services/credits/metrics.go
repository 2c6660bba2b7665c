package credits

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector receives operational signals from the service.
type MetricsCollector interface {
	RecordCacheHit(cache string)
	RecordCacheMiss(cache string)
	RecordPurchase(source string, credits int)
	RecordUsage()
	RecordError(operation string, errType string)
}

// NoopMetricsCollector discards all metrics.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordCacheHit(string)      {}
func (NoopMetricsCollector) RecordCacheMiss(string)     {}
func (NoopMetricsCollector) RecordPurchase(string, int) {}
func (NoopMetricsCollector) RecordUsage()               {}
func (NoopMetricsCollector) RecordError(string, string) {}

// PrometheusCollector exports service metrics via prometheus.
type PrometheusCollector struct {
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	purchases   *prometheus.CounterVec
	credits     *prometheus.CounterVec
	usages      prometheus.Counter
	errors      *prometheus.CounterVec
}

// NewPrometheusCollector creates a collector and registers its metrics with
// reg.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "credits_cache_hits_total",
			Help: "Cache hits by cache name.",
		}, []string{"cache"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "credits_cache_misses_total",
			Help: "Cache misses by cache name.",
		}, []string{"cache"}),
		purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "credits_purchases_total",
			Help: "Completed purchases by source platform.",
		}, []string{"source"}),
		credits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "credits_purchased_total",
			Help: "Credits granted by completed purchases, by source platform.",
		}, []string{"source"}),
		usages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "credits_usages_total",
			Help: "Recorded credit usages.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "credits_errors_total",
			Help: "Operation errors by operation.",
		}, []string{"operation"}),
	}
	reg.MustRegister(c.cacheHits, c.cacheMisses, c.purchases, c.credits, c.usages, c.errors)
	return c
}

func (c *PrometheusCollector) RecordCacheHit(cache string) {
	c.cacheHits.WithLabelValues(cache).Inc()
}

func (c *PrometheusCollector) RecordCacheMiss(cache string) {
	c.cacheMisses.WithLabelValues(cache).Inc()
}

func (c *PrometheusCollector) RecordPurchase(source string, credits int) {
	c.purchases.WithLabelValues(source).Inc()
	c.credits.WithLabelValues(source).Add(float64(credits))
}

func (c *PrometheusCollector) RecordUsage() {
	c.usages.Inc()
}

func (c *PrometheusCollector) RecordError(operation string, errType string) {
	c.errors.WithLabelValues(operation).Inc()
}
