package fetchpipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oakmoss/crawler/internal/extract"
	"github.com/oakmoss/crawler/internal/httppool"
	"github.com/oakmoss/crawler/internal/queue"
	"github.com/oakmoss/crawler/internal/robots"
	"github.com/oakmoss/crawler/internal/visited"
)

type noopWaiter struct{}

func (noopWaiter) Wait(string) {}

func newTestPipeline(srv *httptest.Server) *Pipeline {
	return &Pipeline{
		Bloom:     visited.New(1000, 0.01),
		Robots:    robots.New(srv.Client(), "testbot", time.Minute).WithSleeper(noSleepStub{}),
		RateLimit: noopWaiter{},
		HTTP:      httppool.New(httppool.Config{}, nil),
		Extract:   extract.New(extract.Config{MinTextLength: 1, MinWordCount: 1}, func(string) (string, bool) { return "en", true }),
		Queue:     queue.New(queue.Config{}),
	}
}

type noSleepStub struct{}

func (noSleepStub) Sleep(time.Duration) {}

func TestRunDetectsAlreadyVisited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><article>hello world content here and more</article></body></html>`))
	}))
	defer srv.Close()

	p := newTestPipeline(srv)
	task := &queue.Task{URL: srv.URL + "/page"}

	first := p.Run(context.Background(), task)
	if first.Outcome != OutcomeSuccess {
		t.Fatalf("expected first run to succeed, got %+v", first)
	}

	second := p.Run(context.Background(), task)
	if second.Outcome != OutcomeAlreadyVisited {
		t.Fatalf("expected second run to be deduped, got %+v", second)
	}
}

func TestRunRespectsRobotsDisallow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nDisallow: /\n"))
			return
		}
		w.Write([]byte(`<html><body>blocked content</body></html>`))
	}))
	defer srv.Close()

	p := newTestPipeline(srv)
	task := &queue.Task{URL: srv.URL + "/secret"}

	result := p.Run(context.Background(), task)
	if result.Outcome != OutcomeRobotsBlocked {
		t.Fatalf("expected robots_blocked, got %+v", result)
	}
}

func TestRunReportsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := newTestPipeline(srv)
	task := &queue.Task{URL: srv.URL + "/broken"}

	result := p.Run(context.Background(), task)
	if result.Outcome != OutcomeHTTPError {
		t.Fatalf("expected http_error, got %+v", result)
	}
	if !result.Retryable {
		t.Fatalf("expected a 500 to be retryable, got %+v", result)
	}
}

func TestRunReportsNonRetryableHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p := newTestPipeline(srv)
	task := &queue.Task{URL: srv.URL + "/missing"}

	result := p.Run(context.Background(), task)
	if result.Outcome != OutcomeHTTPError {
		t.Fatalf("expected http_error, got %+v", result)
	}
	if result.Retryable {
		t.Fatalf("expected a 404 to be non-retryable, got %+v", result)
	}
}
