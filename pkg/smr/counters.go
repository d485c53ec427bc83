package smr

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Named tally counters, mirroring the fixed set of events the reference
// implementation tracks when its debug counters are compiled in.
const (
	ctrMallocs = iota
	ctrFrees
	ctrRetire
	ctrRetireUnused
	ctrFreed
	ctrCommit
	ctrCommitHelp
	ctrTooManyThreads
	numCounters
)

var counterNames = [numCounters]string{
	ctrMallocs:        "mallocs",
	ctrFrees:          "frees",
	ctrRetire:         "retire",
	ctrRetireUnused:   "retire_unused",
	ctrFreed:          "freed",
	ctrCommit:         "commit",
	ctrCommitHelp:     "commit_help",
	ctrTooManyThreads: "too_many_threads",
}

// Named yes/no decision counters (each tracks a true tally and a false
// tally), such as whether a linearized reader had to retry.
const (
	ctrLinearizeRetry = iota
	numYesNoCounters
)

var yesNoCounterNames = [numYesNoCounters]string{
	ctrLinearizeRetry: "linearize_retry",
}

// Counters holds the optional instrumentation for a Manager: monotonic
// tallies of named events, plus yes/no decision pairs. They are always
// collected, at a cost of one atomic add per event, whether or not a host
// application ever reads them.
type Counters struct {
	tallies [numCounters]uint64
	yesNo   [numYesNoCounters][2]uint64

	lastTallies [numCounters]uint64
	lastYesNo   [numYesNoCounters][2]uint64
}

func newCounters() *Counters {
	return &Counters{}
}

func (c *Counters) inc(id int) { c.add(id, 1) }

func (c *Counters) add(id int, n uint64) {
	atomic.AddUint64(&c.tallies[id], n)
}

func (c *Counters) yn(id int, yes bool) {
	if yes {
		atomic.AddUint64(&c.yesNo[id][0], 1)
	} else {
		atomic.AddUint64(&c.yesNo[id][1], 1)
	}
}

// Snapshot is a point-in-time read of every counter.
type Snapshot struct {
	Tallies map[string]uint64
	YesNo   map[string][2]uint64
}

// AllTime returns every counter's value since the Manager was created.
func (c *Counters) AllTime() Snapshot {
	return c.snapshot(nil)
}

// DeltaSinceLastCall returns every counter's change since the previous
// call to DeltaSinceLastCall (or since creation, for the first call).
func (c *Counters) DeltaSinceLastCall() Snapshot {
	prev := make([]uint64, numCounters)
	copy(prev, c.lastTallies[:])
	snap := c.snapshot(prev)

	for i := range c.tallies {
		c.lastTallies[i] = atomic.LoadUint64(&c.tallies[i])
	}
	for i := range c.yesNo {
		c.lastYesNo[i][0] = atomic.LoadUint64(&c.yesNo[i][0])
		c.lastYesNo[i][1] = atomic.LoadUint64(&c.yesNo[i][1])
	}
	return snap
}

func (c *Counters) snapshot(baseline []uint64) Snapshot {
	s := Snapshot{
		Tallies: make(map[string]uint64, numCounters),
		YesNo:   make(map[string][2]uint64, numYesNoCounters),
	}
	for i, name := range counterNames {
		v := atomic.LoadUint64(&c.tallies[i])
		if baseline != nil {
			v -= baseline[i]
		}
		s.Tallies[name] = v
	}
	for i, name := range yesNoCounterNames {
		y := atomic.LoadUint64(&c.yesNo[i][0])
		n := atomic.LoadUint64(&c.yesNo[i][1])
		if baseline != nil {
			y -= c.lastYesNo[i][0]
			n -= c.lastYesNo[i][1]
		}
		s.YesNo[name] = [2]uint64{y, n}
	}
	return s
}

// PrometheusCollector exposes this Manager's counters as a
// prometheus.Collector, so a host process can register it with its own
// registry without this package taking a dependency on a global one.
func (m *Manager) PrometheusCollector() prometheus.Collector {
	return &promCollector{m: m}
}

type promCollector struct{ m *Manager }

func (p *promCollector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(p, ch)
}

func (p *promCollector) Collect(ch chan<- prometheus.Metric) {
	snap := p.m.counts.AllTime()
	for name, v := range snap.Tallies {
		ch <- prometheus.MustNewConstMetric(
			prometheus.NewDesc("lattice_smr_events_total", "Cumulative SMR event counter.",
				nil, prometheus.Labels{"event": name}),
			prometheus.CounterValue, float64(v),
		)
	}
	for name, yn := range snap.YesNo {
		ch <- prometheus.MustNewConstMetric(
			prometheus.NewDesc("lattice_smr_decisions_total", "Cumulative SMR yes/no decision counter.",
				nil, prometheus.Labels{"decision": name, "outcome": "yes"}),
			prometheus.CounterValue, float64(yn[0]),
		)
		ch <- prometheus.MustNewConstMetric(
			prometheus.NewDesc("lattice_smr_decisions_total", "Cumulative SMR yes/no decision counter.",
				nil, prometheus.Labels{"decision": name, "outcome": "no"}),
			prometheus.CounterValue, float64(yn[1]),
		)
	}
}

// Counters returns the Manager's instrumentation for direct inspection.
func (m *Manager) Counters() *Counters { return m.counts }
