package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/oakmoss/crawler/internal/config"
	"github.com/oakmoss/crawler/internal/extract"
	"github.com/oakmoss/crawler/internal/fetchpipeline"
	"github.com/oakmoss/crawler/internal/httppool"
	"github.com/oakmoss/crawler/internal/metrics"
	"github.com/oakmoss/crawler/internal/queue"
	"github.com/oakmoss/crawler/internal/robots"
	"github.com/oakmoss/crawler/internal/visited"
)

func TestValidateCrawlRequestRejectsEmptySeeds(t *testing.T) {
	cfg, _ := config.Default([]url.URL{{Scheme: "https", Host: "example.com"}}).Build()
	err := ValidateCrawlRequest(CrawlRequest{Config: cfg})
	if err == nil {
		t.Fatal("expected error for empty seeds")
	}
}

func TestValidateCrawlRequestRejectsMalformedSeed(t *testing.T) {
	cfg, _ := config.Default([]url.URL{{Scheme: "https", Host: "example.com"}}).Build()
	err := ValidateCrawlRequest(CrawlRequest{Seeds: []string{"not a url"}, Config: cfg})
	if err == nil {
		t.Fatal("expected error for malformed seed")
	}
}

func TestStartCrawlAndGetStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><article>hello world content here and more</article></body></html>`))
	}))
	defer srv.Close()

	build := func(cfg config.WebCrawlerConfig) (*queue.Queue, *fetchpipeline.Pipeline, *metrics.Collector, error) {
		q := queue.New(queue.Config{MaxConcurrent: cfg.MaxConcurrent()})
		p := &fetchpipeline.Pipeline{
			Bloom:     visited.New(1000, 0.01),
			Robots:    robots.New(srv.Client(), "testbot", time.Minute).WithSleeper(noSleep{}),
			RateLimit: noWait{},
			HTTP:      httppool.New(httppool.Config{}, nil),
			Extract:   extract.New(extract.Config{MinTextLength: 1, MinWordCount: 1}, func(string) (string, bool) { return "en", true }),
			Queue:     q,
		}
		return q, p, metrics.New(10), nil
	}

	mgr := NewManager(build)
	cfg, err := config.Default([]url.URL{{Scheme: "https", Host: "example.com"}}).Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id, err := mgr.StartCrawl(context.Background(), CrawlRequest{Seeds: []string{srv.URL + "/a"}, Config: cfg})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		status, err := mgr.GetCrawlStatus(id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if status.State == StateCompleted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected session to complete within deadline")
}
