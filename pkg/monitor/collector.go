package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "geoindex"

// Collector exports index Stats and, when present, the tree monitor of a
// named index to Prometheus.
type Collector struct {
	index   string
	stats   *Stats
	tree    TreeMonitor
	hits    *prometheus.Desc
	misses  *prometheus.Desc
	reads   *prometheus.Desc
	writes  *prometheus.Desc
	height  *prometheus.Desc
	splits  *prometheus.Desc
	rebuilt *prometheus.Desc
}

func NewCollector(index string, stats *Stats, tree TreeMonitor) *Collector {
	labels := prometheus.Labels{"index": index}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "index", name), help, nil, labels)
	}
	return &Collector{
		index:   index,
		stats:   stats,
		tree:    tree,
		hits:    desc("hits_total", "Loaded records that matched the search filter."),
		misses:  desc("misses_total", "Loaded records rejected by the search filter."),
		reads:   desc("searches_total", "Searches started against the index."),
		writes:  desc("writes_total", "Records added to or removed from the index."),
		height:  desc("height", "Current height of the tree."),
		splits:  desc("splits_total", "Node splits performed."),
		rebuilt: desc("rebuilds_total", "Full tree rebuilds performed."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.reads
	ch <- c.writes
	if c.tree != nil {
		ch <- c.height
		ch <- c.splits
		ch <- c.rebuilt
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(c.stats.Hits()))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(c.stats.Misses()))
	ch <- prometheus.MustNewConstMetric(c.reads, prometheus.CounterValue, float64(c.stats.Reads()))
	ch <- prometheus.MustNewConstMetric(c.writes, prometheus.CounterValue, float64(c.stats.Writes()))
	if c.tree != nil {
		ch <- prometheus.MustNewConstMetric(c.height, prometheus.GaugeValue, float64(c.tree.Height()))
		ch <- prometheus.MustNewConstMetric(c.splits, prometheus.CounterValue, float64(c.tree.NbrSplit()))
		ch <- prometheus.MustNewConstMetric(c.rebuilt, prometheus.CounterValue, float64(c.tree.NbrRebuilt()))
	}
}
