// Package httppool implements C6: a default HTTP client plus a cache of
// proxy-keyed clients, all wrapped with a transport-level retry policy that
// is orthogonal to (and runs underneath) the queue-level retry in C9.
//
// Responsibilities
//   - Build one default client: bounded redirects, timeout, keep-alive,
//     pooled idle connections. Config.UserAgent is not sent on requests;
//     the User-Agent header always comes from Headers, which picks one at
//     random from a fixed list.
//   - When a proxy pool is configured, pick one uniformly at random per
//     request and reuse a cached client keyed by that proxy URL.
//   - Assemble browser-plausible headers, including a randomized
//     Accept-Language built from the configured accepted languages.
package httppool

import (
	"crypto/tls"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/rehttp"
	"github.com/dustin/go-humanize"
)

const (
	DefaultMaxRedirects   = 10
	DefaultRequestTimeout = 30 * time.Second
	DefaultKeepAlive      = 30 * time.Second
	DefaultMaxIdleConns   = 100
	DefaultIdleConnTTL    = 90 * time.Second
	defaultMaxTransportRetries = 3
	defaultRetryBaseDelay      = 200 * time.Millisecond
	defaultRetryMaxDelay       = 5 * time.Second
)

// defaultUserAgents is the fixed pool the spec's C6 picks from at random for
// the User-Agent header on every request.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

// Config configures the pool. AcceptedLanguages drives the synthesized
// Accept-Language header; ProxyURLs, if non-empty, causes requests to be
// routed through a uniformly-random proxy-keyed client instead of the
// default one.
type Config struct {
	UserAgent         string
	MaxRedirects      int
	RequestTimeout    time.Duration
	ProxyURLs         []string
	AcceptedLanguages []string
}

// Pool hands out *http.Client values, wrapped with a retrying transport, and
// builds request headers per spec.md 4.6.
type Pool struct {
	cfg Config
	rng *rand.Rand

	mu      sync.Mutex
	byProxy map[string]*http.Client
	byteLog func(format string, args ...any)
}

// New creates a Pool. byteLog is optional; when non-nil it is called with
// human-readable byte counts for pool-level event logging.
func New(cfg Config, byteLog func(format string, args ...any)) *Pool {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgents[0]
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = DefaultMaxRedirects
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if byteLog == nil {
		byteLog = func(string, ...any) {}
	}
	return &Pool{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		byProxy: make(map[string]*http.Client),
		byteLog: byteLog,
	}
}

// Client returns the client to use for the next request: the default client
// if no proxies are configured, otherwise a client pinned to a uniformly
// randomly chosen proxy, created and cached on first use.
func (p *Pool) Client() *http.Client {
	if len(p.cfg.ProxyURLs) == 0 {
		return p.clientFor("")
	}
	proxy := p.cfg.ProxyURLs[p.rng.Intn(len(p.cfg.ProxyURLs))]
	return p.clientFor(proxy)
}

func (p *Pool) clientFor(proxy string) *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.byProxy[proxy]; ok {
		return c
	}
	c := p.buildClient(proxy)
	p.byProxy[proxy] = c
	return c
}

func (p *Pool) buildClient(proxy string) *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   p.cfg.RequestTimeout,
			KeepAlive: DefaultKeepAlive,
		}).DialContext,
		MaxIdleConns:        DefaultMaxIdleConns,
		MaxIdleConnsPerHost: DefaultMaxIdleConns,
		IdleConnTimeout:     DefaultIdleConnTTL,
		TLSClientConfig:     &tls.Config{},
	}

	if proxy != "" {
		if proxyURL, err := url.Parse(proxy); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	retryingTransport := rehttp.NewTransport(
		transport,
		rehttp.RetryAll(
			rehttp.RetryMaxRetries(defaultMaxTransportRetries),
			rehttp.RetryAny(
				rehttp.RetryTemporaryErr(),
				rehttp.RetryStatuses(http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout),
			),
		),
		rehttp.ExpJitterDelay(defaultRetryBaseDelay, defaultRetryMaxDelay),
	)

	maxRedirects := p.cfg.MaxRedirects
	return &http.Client{
		Transport: retryingTransport,
		Timeout:   p.cfg.RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// Headers assembles the browser-plausible header set from spec.md 4.6: a
// randomly chosen User-Agent, Accept, Accept-Encoding, Connection,
// Upgrade-Insecure-Requests, and an Accept-Language synthesized from the
// configured accepted languages with decreasing quality values plus a
// low-quality wildcard.
func (p *Pool) Headers() http.Header {
	h := make(http.Header)
	h.Set("User-Agent", p.randomUserAgent())
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("Connection", "keep-alive")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Accept-Language", p.acceptLanguage())
	return h
}

func (p *Pool) randomUserAgent() string {
	agents := defaultUserAgents
	return agents[p.rng.Intn(len(agents))]
}

// acceptLanguage renders the configured languages with strictly decreasing
// q-values (1.0 down, floor 0.1) followed by a "*;q=0.1" wildcard.
func (p *Pool) acceptLanguage() string {
	langs := p.cfg.AcceptedLanguages
	if len(langs) == 0 {
		langs = []string{"en-US", "en"}
	}
	parts := make([]string, 0, len(langs)+1)
	for i, lang := range langs {
		q := 1.0 - float64(i)*0.1
		if q < 0.1 {
			q = 0.1
		}
		if i == 0 {
			parts = append(parts, lang)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", lang, q))
	}
	parts = append(parts, "*;q=0.1")
	return strings.Join(parts, ",")
}

// LogTransferred reports a completed transfer's size through the pool's
// byte-count logger, rendering the size in human-readable units.
func (p *Pool) LogTransferred(url string, n int64) {
	p.byteLog("fetched %s (%s)", url, humanize.Bytes(uint64(n)))
}
