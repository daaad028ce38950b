package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterMetrics captures routing-hub dispatch outcomes.
type RouterMetrics interface {
	IncRoutes(domain, kind, status string)
	ObserveRouteDuration(domain, kind string, durationSeconds float64)
	IncTenantUnresolved(channel string)
}

// CacheMetrics captures layered-cache tier traffic.
type CacheMetrics interface {
	IncHit(tier string)
	IncMiss(tier string)
	IncLegacyDecode()
	IncUnreadable()
	IncEviction()
}

// FactoryMetrics captures handler construction outcomes.
type FactoryMetrics interface {
	IncBuilds(domain, handler, status string)
	ObserveBuildDuration(domain, handler string, durationSeconds float64)
	IncBuildsCoalesced(domain, handler string)
}

// Noop implements every metrics interface without emitting anything.
type Noop struct{}

func (Noop) IncRoutes(string, string, string) {}
func (Noop) ObserveRouteDuration(string, string, float64) {}
func (Noop) IncTenantUnresolved(string) {}
func (Noop) IncHit(string) {}
func (Noop) IncMiss(string) {}
func (Noop) IncLegacyDecode() {}
func (Noop) IncUnreadable() {}
func (Noop) IncEviction() {}
func (Noop) IncBuilds(string, string, string) {}
func (Noop) ObserveBuildDuration(string, string, float64) {}
func (Noop) IncBuildsCoalesced(string, string) {}

// Prom implements RouterMetrics, CacheMetrics and FactoryMetrics on Prometheus.
type Prom struct {
	routes           *prometheus.CounterVec
	routeDuration    *prometheus.HistogramVec
	tenantUnresolved *prometheus.CounterVec
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	legacyDecodes    prometheus.Counter
	unreadable       prometheus.Counter
	evictions        prometheus.Counter
	builds           *prometheus.CounterVec
	buildDuration    *prometheus.HistogramVec
	buildsCoalesced  *prometheus.CounterVec
	once             sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routes_total",
			Help:      "Routed messages by domain, handler kind and status",
		}, []string{"domain", "kind", "status"}),
		routeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "route_duration_seconds",
			Help:      "End-to-end route latency by domain and handler kind",
			Buckets:   prometheus.DefBuckets,
		}, []string{"domain", "kind"}),
		tenantUnresolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tenant_unresolved_total",
			Help:      "Messages with no resolvable tenant by channel",
		}, []string{"channel"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Layered cache hits by tier",
		}, []string{"tier"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Layered cache misses by tier",
		}, []string{"tier"}),
		legacyDecodes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_legacy_decodes_total",
			Help:      "Cache entries read through the legacy binary encoding",
		}),
		unreadable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_unreadable_total",
			Help:      "Cache entries unreadable in any encoding, treated as miss",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_tier1_evictions_total",
			Help:      "Tier-1 entries evicted on overflow",
		}),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_builds_total",
			Help:      "Handler constructions by domain, handler and status",
		}, []string{"domain", "handler", "status"}),
		buildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_build_duration_seconds",
			Help:      "Handler construction latency by domain and handler",
			Buckets:   prometheus.DefBuckets,
		}, []string{"domain", "handler"}),
		buildsCoalesced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_builds_coalesced_total",
			Help:      "Concurrent builds that waited on an in-flight construction",
		}, []string{"domain", "handler"}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(
			p.routes, p.routeDuration, p.tenantUnresolved,
			p.cacheHits, p.cacheMisses, p.legacyDecodes, p.unreadable, p.evictions,
			p.builds, p.buildDuration, p.buildsCoalesced,
		)
	})
}

func (p *Prom) IncRoutes(domain, kind, status string) {
	p.routes.WithLabelValues(domain, kind, status).Inc()
}

func (p *Prom) ObserveRouteDuration(domain, kind string, durationSeconds float64) {
	p.routeDuration.WithLabelValues(domain, kind).Observe(durationSeconds)
}

func (p *Prom) IncTenantUnresolved(channel string) {
	p.tenantUnresolved.WithLabelValues(channel).Inc()
}

func (p *Prom) IncHit(tier string)  { p.cacheHits.WithLabelValues(tier).Inc() }
func (p *Prom) IncMiss(tier string) { p.cacheMisses.WithLabelValues(tier).Inc() }
func (p *Prom) IncLegacyDecode()    { p.legacyDecodes.Inc() }
func (p *Prom) IncUnreadable()      { p.unreadable.Inc() }
func (p *Prom) IncEviction()        { p.evictions.Inc() }

func (p *Prom) IncBuilds(domain, handler, status string) {
	p.builds.WithLabelValues(domain, handler, status).Inc()
}

func (p *Prom) ObserveBuildDuration(domain, handler string, durationSeconds float64) {
	p.buildDuration.WithLabelValues(domain, handler).Observe(durationSeconds)
}

func (p *Prom) IncBuildsCoalesced(domain, handler string) {
	p.buildsCoalesced.WithLabelValues(domain, handler).Inc()
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
