package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports a Global as Prometheus metrics.
type Collector struct {
	g *Global

	counters      []counterDesc
	allocSize     *prometheus.Desc
	lifetime      *prometheus.Desc
	arenaAllocLoc *prometheus.Desc
}

type counterDesc struct {
	desc  *prometheus.Desc
	value func(Snapshot) uint64
}

// NewCollector returns a collector reading g. Metric names are prefixed
// with namespace when it is not empty.
func NewCollector(g *Global, namespace string) *Collector {
	name := func(n string) string { return prometheus.BuildFQName(namespace, "arena", n) }
	counter := func(n, help string, v func(Snapshot) uint64) counterDesc {
		return counterDesc{desc: prometheus.NewDesc(name(n), help, nil, nil), value: v}
	}
	return &Collector{
		g: g,
		counters: []counterDesc{
			counter("init_total", "Arenas initialised.", func(s Snapshot) uint64 { return s.InitCount }),
			counter("reset_total", "Arena resets.", func(s Snapshot) uint64 { return s.ResetCount }),
			counter("destruct_total", "Arenas released.", func(s Snapshot) uint64 { return s.DestructCount }),
			counter("newblock_total", "Blocks obtained from block allocators.", func(s Snapshot) uint64 { return s.NewBlockCount }),
			counter("space_resettled_bytes_total", "Space held by arenas at reset.", func(s Snapshot) uint64 { return s.SpaceResettled }),
			counter("space_used_bytes_total", "Space held by arenas at release.", func(s Snapshot) uint64 { return s.SpaceUsed }),
			counter("space_wasted_bytes_total", "Unused block space at reset or release.", func(s Snapshot) uint64 { return s.SpaceWasted }),
		},
		allocSize: prometheus.NewDesc(name("allocation_size_bytes"),
			"Size of arena allocations.", nil, nil),
		lifetime: prometheus.NewDesc(name("lifetime_seconds"),
			"Time from arena creation to release.", nil, nil),
		arenaAllocLoc: prometheus.NewDesc(name("location_allocated_bytes_total"),
			"Bytes allocated per arena creation site.", []string{"location"}, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, cd := range c.counters {
		ch <- cd.desc
	}
	ch <- c.allocSize
	ch <- c.lifetime
	ch <- c.arenaAllocLoc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.g.Snapshot()
	for _, cd := range c.counters {
		ch <- prometheus.MustNewConstMetric(cd.desc, prometheus.CounterValue, float64(cd.value(s)))
	}

	sizeBuckets := make(map[float64]uint64, len(AllocSizeBuckets))
	var cum uint64
	for i, le := range AllocSizeBuckets {
		cum += s.AllocSizeCounter[i]
		sizeBuckets[float64(le)] = cum
	}
	ch <- prometheus.MustNewConstHistogram(c.allocSize, s.AllocCount, float64(s.SpaceAllocated), sizeBuckets)

	lifeBuckets := make(map[float64]uint64, len(LifetimeBuckets))
	cum = 0
	for i, le := range LifetimeBuckets {
		cum += s.LifetimeCounter[i]
		lifeBuckets[le.Seconds()] = cum
	}
	ch <- prometheus.MustNewConstHistogram(c.lifetime, s.DestructCount, float64(s.LifetimeNanos)/1e9, lifeBuckets)

	for loc, n := range s.ArenaAllocCounter {
		ch <- prometheus.MustNewConstMetric(c.arenaAllocLoc, prometheus.CounterValue, float64(n), loc)
	}
}
