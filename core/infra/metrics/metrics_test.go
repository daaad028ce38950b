package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromCounters(t *testing.T) {
	p := NewProm("crewmux_test")

	p.IncRoutes("cosmetics", "support", "ok")
	p.IncRoutes("cosmetics", "support", "ok")
	if got := testutil.ToFloat64(p.routes.WithLabelValues("cosmetics", "support", "ok")); got != 2 {
		t.Fatalf("routes counter = %v, want 2", got)
	}

	p.IncHit("tier1")
	p.IncMiss("tier2")
	if got := testutil.ToFloat64(p.cacheHits.WithLabelValues("tier1")); got != 1 {
		t.Fatalf("cache hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.cacheMisses.WithLabelValues("tier2")); got != 1 {
		t.Fatalf("cache misses = %v, want 1", got)
	}

	p.IncLegacyDecode()
	if got := testutil.ToFloat64(p.legacyDecodes); got != 1 {
		t.Fatalf("legacy decodes = %v, want 1", got)
	}

	p.IncBuilds("cosmetics", "sales", "ok")
	p.IncBuildsCoalesced("cosmetics", "sales")
	if got := testutil.ToFloat64(p.builds.WithLabelValues("cosmetics", "sales", "ok")); got != 1 {
		t.Fatalf("builds = %v, want 1", got)
	}
}

func TestNoopImplementsAll(t *testing.T) {
	var r RouterMetrics = Noop{}
	var c CacheMetrics = Noop{}
	var f FactoryMetrics = Noop{}
	r.IncRoutes("d", "k", "s")
	c.IncHit("tier1")
	f.IncBuilds("d", "h", "s")
}
