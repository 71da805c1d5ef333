package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/oakmoss/crawler/internal/config"
	"github.com/oakmoss/crawler/internal/fetchpipeline"
	"github.com/oakmoss/crawler/internal/metrics"
	"github.com/oakmoss/crawler/internal/queue"
)

// CrawlRequest is the input to start_crawl.
type CrawlRequest struct {
	Seeds  []string
	Config config.WebCrawlerConfig
}

// CrawlStatus is the output of get_crawl_status.
type CrawlStatus struct {
	SessionID   string
	State       State
	Counters    queue.Counts
	MetricsSnap metrics.Snapshot
}

// PipelineFactory builds the collaborators a session needs from a
// WebCrawlerConfig; cmd/crawler supplies the real one wiring C1-C9.
type PipelineFactory func(cfg config.WebCrawlerConfig) (*queue.Queue, *fetchpipeline.Pipeline, *metrics.Collector, error)

// Manager is the control surface: start_crawl, get_crawl_status,
// stop_crawl, get_default_config, validate_crawl_request. It owns every
// live Session, keyed by session_id.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	build    PipelineFactory
	sinks    []ResultSink
}

func NewManager(build PipelineFactory, sinks ...ResultSink) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		sinks:    sinks,
		build:    build,
	}
}

// GetDefaultConfig returns the recommended WebCrawlerConfig for the given
// seeds, per the control surface's get_default_config operation.
func GetDefaultConfig(seeds []string) (config.WebCrawlerConfig, error) {
	parsed := make([]url.URL, 0, len(seeds))
	for _, s := range seeds {
		u, err := url.Parse(s)
		if err != nil {
			return config.WebCrawlerConfig{}, fmt.Errorf("invalid seed url %q: %w", s, err)
		}
		parsed = append(parsed, *u)
	}
	return config.Default(parsed).Build()
}

// ValidateCrawlRequest rejects a request that cannot admissibly start a
// session: empty seeds, unparseable URLs, or non-positive limits.
func ValidateCrawlRequest(req CrawlRequest) error {
	if len(req.Seeds) == 0 {
		return fmt.Errorf("%w: no seed URLs", config.ErrInvalidConfig)
	}
	for _, s := range req.Seeds {
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: invalid seed url %q", config.ErrInvalidConfig, s)
		}
	}
	if req.Config.MaxConcurrent() <= 0 {
		return fmt.Errorf("%w: max_concurrent must be positive", config.ErrInvalidConfig)
	}
	if req.Config.MaxTotalURLs() <= 0 {
		return fmt.Errorf("%w: max_total_urls must be positive", config.ErrInvalidConfig)
	}
	for _, lang := range req.Config.AcceptedLanguages() {
		if lang == "" {
			return fmt.Errorf("%w: empty accepted_languages entry", config.ErrInvalidConfig)
		}
	}
	return nil
}

// StartCrawl validates the request, builds a Session via the configured
// PipelineFactory, registers it, and starts it in the background.
func (m *Manager) StartCrawl(ctx context.Context, req CrawlRequest) (string, error) {
	if err := ValidateCrawlRequest(req); err != nil {
		return "", err
	}

	q, pipeline, collector, err := m.build(req.Config)
	if err != nil {
		return "", err
	}

	id, err := newSessionID()
	if err != nil {
		return "", err
	}

	sess := New(id, Config{
		MaxConcurrent:       req.Config.MaxConcurrent(),
		CleanupInterval:     req.Config.CleanupInterval(),
		PersistenceInterval: req.Config.PersistenceInterval(),
		PersistencePath:     req.Config.PersistencePath(),
		SessionTimeout:      req.Config.SessionTimeout(),
	}, q, pipeline, collector, m.sinks...)

	if path := req.Config.PersistencePath(); path != "" {
		sess.WithPersister(NewFilePersister(path))
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	if err := sess.Initialize(req.Seeds); err != nil {
		return "", err
	}

	go func() {
		_ = sess.Start(ctx)
	}()

	return id, nil
}

// GetCrawlStatus returns a snapshot of a running or finished session.
func (m *Manager) GetCrawlStatus(sessionID string) (CrawlStatus, error) {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return CrawlStatus{}, err
	}
	return CrawlStatus{
		SessionID:   sessionID,
		State:       sess.State(),
		Counters:    sess.queue.Counts(),
		MetricsSnap: sess.metrics.Snapshot(10),
	}, nil
}

// StopCrawl cancels a running session.
func (m *Manager) StopCrawl(sessionID string) error {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	sess.Stop()
	return nil
}

func (m *Manager) lookup(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("unknown session_id %q", sessionID)
	}
	return sess, nil
}

func newSessionID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d-%s", time.Now().UnixNano(), hex.EncodeToString(buf)), nil
}
