// Package metrics implements C12: atomic crawl counters, a bounded list of
// latency samples averaged in Snapshot, a bounded per-domain stats map, and
// a structured event emitter with pluggable sinks.
package metrics

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// DomainStats accumulates per-host counts; bounded by an LRU so a
// high-cardinality crawl can't grow this map without limit.
type DomainStats struct {
	Fetched  int64
	Errors   int64
	Bytes    int64
	LastSeen time.Time
}

// Collector aggregates crawl-wide counters and a bounded per-domain map.
// All exported methods are safe for concurrent use by the worker pool.
type Collector struct {
	totalFetched atomic.Int64
	totalErrors  atomic.Int64
	totalSkipped atomic.Int64
	totalBytes   atomic.Int64

	mu         sync.Mutex
	domains    *domainLRU
	errorKinds map[string]int64
	latencies  []time.Duration
	maxSamples int

	sinks []Sink
}

const defaultMaxDomains = 10_000
const defaultMaxLatencySamples = 10_000

// New creates a Collector bounding its per-domain map to maxDomains entries,
// evicting least-recently-touched domains once full.
func New(maxDomains int, sinks ...Sink) *Collector {
	if maxDomains <= 0 {
		maxDomains = defaultMaxDomains
	}
	return &Collector{
		domains:    newDomainLRU(maxDomains),
		errorKinds: make(map[string]int64),
		maxSamples: defaultMaxLatencySamples,
		sinks:      sinks,
	}
}

// domainLRU is a bounded, enumerable least-recently-used map keyed by host.
// Plain groupcache/lru (used by internal/dnscache, where only point lookups
// are needed) has no iteration API, which is exactly what Snapshot's
// top-K-by-traffic report needs here; container/list plus a side map gives
// O(1) touch/evict while staying walkable front-to-back for ranking.
type domainLRU struct {
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type domainNode struct {
	host  string
	stats DomainStats
}

func newDomainLRU(capacity int) *domainLRU {
	return &domainLRU{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

// touch moves host to the front (most-recently-used) of the list, applying
// mutate to its accumulated stats, creating the entry if new and evicting
// the least-recently-used entry if this push exceeds capacity.
func (d *domainLRU) touch(host string, mutate func(*DomainStats)) {
	if el, ok := d.items[host]; ok {
		d.ll.MoveToFront(el)
		mutate(&el.Value.(*domainNode).stats)
		return
	}

	node := &domainNode{host: host}
	mutate(&node.stats)
	d.items[host] = d.ll.PushFront(node)

	if d.ll.Len() > d.capacity {
		oldest := d.ll.Back()
		if oldest != nil {
			d.ll.Remove(oldest)
			delete(d.items, oldest.Value.(*domainNode).host)
		}
	}
}

// Len reports the number of tracked domains.
func (d *domainLRU) Len() int { return d.ll.Len() }

// snapshot returns every tracked domain's stats, most-recently-used first.
func (d *domainLRU) snapshot() []DomainSnapshot {
	out := make([]DomainSnapshot, 0, d.ll.Len())
	for el := d.ll.Front(); el != nil; el = el.Next() {
		node := el.Value.(*domainNode)
		out = append(out, DomainSnapshot{Host: node.host, Stats: node.stats})
	}
	return out
}

// RecordFetch updates counters and per-domain stats for a completed fetch.
func (c *Collector) RecordFetch(host string, bytes int64, duration time.Duration) {
	c.totalFetched.Add(1)
	c.totalBytes.Add(bytes)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.recordDomainLocked(host, func(s *DomainStats) {
		s.Fetched++
		s.Bytes += bytes
		s.LastSeen = time.Now()
	})
	if len(c.latencies) < c.maxSamples {
		c.latencies = append(c.latencies, duration)
	}
}

// RecordError updates counters for a failed fetch and buckets the error
// kind for the top-K report.
func (c *Collector) RecordError(host, kind string) {
	c.totalErrors.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.recordDomainLocked(host, func(s *DomainStats) {
		s.Errors++
		s.LastSeen = time.Now()
	})
	c.errorKinds[kind]++
}

// RecordSkip counts a task that was gated out before or after fetch
// (already-visited, robots-blocked, extraction-rejected).
func (c *Collector) RecordSkip() {
	c.totalSkipped.Add(1)
}

func (c *Collector) recordDomainLocked(host string, mutate func(*DomainStats)) {
	c.domains.touch(host, mutate)
}

// Snapshot is a point-in-time readout for the control surface / CLI.
type Snapshot struct {
	TotalFetched int64
	TotalErrors  int64
	TotalSkipped int64
	TotalBytes   int64
	AvgLatency   time.Duration
	TopDomains   []DomainSnapshot
	TopErrors    []ErrorKindCount
}

type DomainSnapshot struct {
	Host  string
	Stats DomainStats
}

type ErrorKindCount struct {
	Kind  string
	Count int64
}

// Snapshot computes a Snapshot including the topK busiest domains and topK
// most frequent error kinds.
func (c *Collector) Snapshot(topK int) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		TotalFetched: c.totalFetched.Load(),
		TotalErrors:  c.totalErrors.Load(),
		TotalSkipped: c.totalSkipped.Load(),
		TotalBytes:   c.totalBytes.Load(),
	}
	if len(c.latencies) > 0 {
		var sum time.Duration
		for _, d := range c.latencies {
			sum += d
		}
		snap.AvgLatency = sum / time.Duration(len(c.latencies))
	}

	snap.TopDomains = topDomainsByTraffic(c.domains.snapshot(), topK)
	snap.TopErrors = topErrorKinds(c.errorKinds, topK)
	return snap
}

// topDomainsByTraffic ranks domains by Fetched+Errors descending, breaking
// ties by the order domainLRU.snapshot returned them in (most-recently-used
// first).
func topDomainsByTraffic(domains []DomainSnapshot, k int) []DomainSnapshot {
	out := append([]DomainSnapshot(nil), domains...)
	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 && trafficOf(out[j-1]) < trafficOf(out[j]) {
			out[j-1], out[j] = out[j], out[j-1]
			j--
		}
	}
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

func trafficOf(d DomainSnapshot) int64 {
	return d.Stats.Fetched + d.Stats.Errors
}

func topErrorKinds(kinds map[string]int64, k int) []ErrorKindCount {
	out := make([]ErrorKindCount, 0, len(kinds))
	for kind, count := range kinds {
		out = append(out, ErrorKindCount{Kind: kind, Count: count})
	}
	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 && out[j-1].Count < out[j].Count {
			out[j-1], out[j] = out[j], out[j-1]
			j--
		}
	}
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// Emit pushes an event to every configured sink.
func (c *Collector) Emit(e CrawlEvent) {
	for _, s := range c.sinks {
		s.Emit(e)
	}
}
