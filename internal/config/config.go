// Package config defines the WebCrawlerConfig schema and an immutable
// builder for constructing one. Loading a config from a file or flags is
// the caller's job (see cmd/crawler); this package only validates and
// holds values.
package config

import (
	"fmt"
	"net/url"
	"time"
)

type RateLimitConfig struct {
	MaxRPS   float64
	WindowMS int
}

type RetryConfig struct {
	MaxAttempts  int
	BaseDelayMS  int
	MaxDelayMS   int
	Multiplier   float64
	JitterFactor float64
}

type LoggingConfig struct {
	Level string
	Path  string
	JSON  bool
}

// WebCrawlerConfig is the full recognized option set from the config
// schema. Fields are unexported; use the With* builder methods to set
// them and Build to validate.
type WebCrawlerConfig struct {
	baseURLs            []url.URL
	acceptedLanguages   []string
	minWordLength       int
	userAgent           string
	proxyPool           []url.URL
	defaultRateLimit    RateLimitConfig
	domainRateLimits    map[string]RateLimitConfig
	retry               RetryConfig
	avoidURLExtensions  []string
	maxCrawlDepth       int
	maxTotalURLs        int
	maxConcurrent       int
	sessionTimeout      time.Duration
	cleanupInterval     time.Duration
	persistenceInterval time.Duration
	persistencePath     string
	logging             LoggingConfig
}

func (c WebCrawlerConfig) BaseURLs() []url.URL                         { return c.baseURLs }
func (c WebCrawlerConfig) AcceptedLanguages() []string                 { return c.acceptedLanguages }
func (c WebCrawlerConfig) MinWordLength() int                          { return c.minWordLength }
func (c WebCrawlerConfig) UserAgent() string                           { return c.userAgent }
func (c WebCrawlerConfig) ProxyPool() []url.URL                        { return c.proxyPool }
func (c WebCrawlerConfig) DefaultRateLimit() RateLimitConfig           { return c.defaultRateLimit }
func (c WebCrawlerConfig) DomainRateLimits() map[string]RateLimitConfig { return c.domainRateLimits }
func (c WebCrawlerConfig) Retry() RetryConfig                          { return c.retry }
func (c WebCrawlerConfig) AvoidURLExtensions() []string                { return c.avoidURLExtensions }
func (c WebCrawlerConfig) MaxCrawlDepth() int                          { return c.maxCrawlDepth }
func (c WebCrawlerConfig) MaxTotalURLs() int                           { return c.maxTotalURLs }
func (c WebCrawlerConfig) MaxConcurrent() int                          { return c.maxConcurrent }
func (c WebCrawlerConfig) SessionTimeout() time.Duration               { return c.sessionTimeout }
func (c WebCrawlerConfig) CleanupInterval() time.Duration              { return c.cleanupInterval }
func (c WebCrawlerConfig) PersistenceInterval() time.Duration          { return c.persistenceInterval }
func (c WebCrawlerConfig) PersistencePath() string                     { return c.persistencePath }
func (c WebCrawlerConfig) Logging() LoggingConfig                      { return c.logging }

// Default returns the recommended WebCrawlerConfig for the given seeds.
// Mirrors the control surface's get_default_config operation.
func Default(seedURLs []url.URL) *WebCrawlerConfig {
	return &WebCrawlerConfig{
		baseURLs:          seedURLs,
		acceptedLanguages: []string{"en"},
		minWordLength:     10,
		userAgent:         "crawler/1.0",
		defaultRateLimit:  RateLimitConfig{MaxRPS: 1, WindowMS: 1000},
		domainRateLimits:  map[string]RateLimitConfig{},
		retry: RetryConfig{
			MaxAttempts:  3,
			BaseDelayMS:  1000,
			MaxDelayMS:   300_000,
			Multiplier:   2.0,
			JitterFactor: 0.2,
		},
		avoidURLExtensions:  []string{".jpg", ".jpeg", ".png", ".gif", ".svg", ".pdf", ".zip", ".mp4", ".mp3"},
		maxCrawlDepth:       5,
		maxTotalURLs:        100_000,
		maxConcurrent:       10,
		sessionTimeout:      time.Hour,
		cleanupInterval:     30 * time.Second,
		persistenceInterval: 60 * time.Second,
		logging:             LoggingConfig{Level: "info", JSON: false},
	}
}

func (c *WebCrawlerConfig) WithAcceptedLanguages(langs []string) *WebCrawlerConfig {
	c.acceptedLanguages = langs
	return c
}

func (c *WebCrawlerConfig) WithMinWordLength(n int) *WebCrawlerConfig {
	c.minWordLength = n
	return c
}

func (c *WebCrawlerConfig) WithUserAgent(ua string) *WebCrawlerConfig {
	c.userAgent = ua
	return c
}

func (c *WebCrawlerConfig) WithProxyPool(proxies []url.URL) *WebCrawlerConfig {
	c.proxyPool = proxies
	return c
}

func (c *WebCrawlerConfig) WithDefaultRateLimit(r RateLimitConfig) *WebCrawlerConfig {
	c.defaultRateLimit = r
	return c
}

func (c *WebCrawlerConfig) WithDomainRateLimit(host string, r RateLimitConfig) *WebCrawlerConfig {
	if c.domainRateLimits == nil {
		c.domainRateLimits = map[string]RateLimitConfig{}
	}
	c.domainRateLimits[host] = r
	return c
}

func (c *WebCrawlerConfig) WithRetry(r RetryConfig) *WebCrawlerConfig {
	c.retry = r
	return c
}

func (c *WebCrawlerConfig) WithAvoidURLExtensions(exts []string) *WebCrawlerConfig {
	c.avoidURLExtensions = exts
	return c
}

func (c *WebCrawlerConfig) WithMaxCrawlDepth(depth int) *WebCrawlerConfig {
	c.maxCrawlDepth = depth
	return c
}

func (c *WebCrawlerConfig) WithMaxTotalURLs(n int) *WebCrawlerConfig {
	c.maxTotalURLs = n
	return c
}

func (c *WebCrawlerConfig) WithMaxConcurrent(n int) *WebCrawlerConfig {
	c.maxConcurrent = n
	return c
}

func (c *WebCrawlerConfig) WithSessionTimeout(d time.Duration) *WebCrawlerConfig {
	c.sessionTimeout = d
	return c
}

func (c *WebCrawlerConfig) WithCleanupInterval(d time.Duration) *WebCrawlerConfig {
	c.cleanupInterval = d
	return c
}

func (c *WebCrawlerConfig) WithPersistenceInterval(d time.Duration) *WebCrawlerConfig {
	c.persistenceInterval = d
	return c
}

func (c *WebCrawlerConfig) WithPersistencePath(path string) *WebCrawlerConfig {
	c.persistencePath = path
	return c
}

func (c *WebCrawlerConfig) WithLogging(l LoggingConfig) *WebCrawlerConfig {
	c.logging = l
	return c
}

// Build validates the accumulated config and returns it by value.
func (c *WebCrawlerConfig) Build() (WebCrawlerConfig, error) {
	if len(c.baseURLs) == 0 {
		return WebCrawlerConfig{}, fmt.Errorf("%w: no seed URLs configured", ErrInvalidConfig)
	}
	if c.maxConcurrent <= 0 {
		return WebCrawlerConfig{}, fmt.Errorf("%w: max_concurrent must be positive", ErrInvalidConfig)
	}
	if c.maxCrawlDepth < 0 {
		return WebCrawlerConfig{}, fmt.Errorf("%w: max_crawl_depth must not be negative", ErrInvalidConfig)
	}
	if c.maxTotalURLs <= 0 {
		return WebCrawlerConfig{}, fmt.Errorf("%w: max_total_urls must be positive", ErrInvalidConfig)
	}
	return *c, nil
}
