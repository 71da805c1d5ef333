// Package dnscache implements C3: a TTL-bounded, LRU-capped host to IP
// cache sitting in front of the OS resolver.
package dnscache

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
)

const (
	// DefaultTTL is how long a resolved address is trusted before a
	// re-resolve is forced (spec.md 4.3).
	DefaultTTL = 300 * time.Second
	// defaultMaxEntries bounds memory for crawls touching many distinct
	// hosts; eviction is least-recently-used on top of TTL expiry.
	defaultMaxEntries = 50_000
)

// DnsResolutionFailed is returned when the OS resolver cannot resolve host.
type DnsResolutionFailed struct {
	Host string
	Err  error
}

func (e *DnsResolutionFailed) Error() string {
	return fmt.Sprintf("dns resolution failed for %s: %v", e.Host, e.Err)
}

func (e *DnsResolutionFailed) Unwrap() error { return e.Err }

type entry struct {
	ip       string
	cachedAt time.Time
}

// Resolver abstracts net.DefaultResolver so tests can inject a fake one.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Cache resolves and caches host -> IP, evicting on TTL expiry and on LRU
// pressure once bounded by maxEntries.
type Cache struct {
	mu       sync.Mutex
	ttl      time.Duration
	resolver Resolver
	lru      *lru.Cache
}

// New creates a Cache with the given TTL and entry cap. A zero ttl uses
// DefaultTTL; a zero maxEntries uses defaultMaxEntries.
func New(ttl time.Duration, maxEntries int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &Cache{
		ttl:      ttl,
		resolver: net.DefaultResolver,
		lru:      lru.New(maxEntries),
	}
}

// WithResolver overrides the backing resolver, primarily for tests.
func (c *Cache) WithResolver(r Resolver) *Cache {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolver = r
	return c
}

// Resolve returns a cached, fresh IP for host or performs (and caches) a
// blocking-safe OS resolution. Concurrency is safe: resolution happens
// outside the lock so one slow host cannot stall lookups for others, at the
// cost of occasional duplicate in-flight resolves for the same host under a
// cold cache -- an acceptable tradeoff given DNS resolution is idempotent.
func (c *Cache) Resolve(ctx context.Context, host string) (string, error) {
	if cached, ok := c.lookupFresh(host); ok {
		return cached, nil
	}

	addrs, err := c.resolver.LookupHost(ctx, host)
	if err != nil || len(addrs) == 0 {
		return "", &DnsResolutionFailed{Host: host, Err: err}
	}

	c.mu.Lock()
	c.lru.Add(host, entry{ip: addrs[0], cachedAt: time.Now()})
	c.mu.Unlock()

	return addrs[0], nil
}

func (c *Cache) lookupFresh(host string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(host)
	if !ok {
		return "", false
	}
	e := v.(entry)
	if time.Since(e.cachedAt) >= c.ttl {
		c.lru.Remove(host)
		return "", false
	}
	return e.ip, true
}

// Cleanup drops every cached entry, fresh or expired; it does not select
// expired entries. The LRU already reclaims space under pressure, and
// expired entries are evicted when a lookup finds them stale. No other
// package in this module calls Cleanup.
func (c *Cache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	// groupcache/lru has no iteration API; since every read path already
	// re-validates freshness and evicts lazily, an eager full-cache sweep
	// is not needed to preserve correctness. Cleanup is kept as an explicit
	// entrypoint (mirroring the DNS/robots cache symmetry from spec.md 4.3)
	// for callers that want to bound memory proactively between crawls.
	c.lru = lru.New(c.lru.MaxEntries)
}

// Len reports the current number of cached entries (for tests/metrics).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
