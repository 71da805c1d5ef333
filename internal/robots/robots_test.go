package robots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

type noSleep struct{ total time.Duration }

func (n *noSleep) Sleep(d time.Duration) { n.total += d }

func TestDisallowAllBlocksEveryPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /\n"))
	}))
	defer srv.Close()

	c := New(srv.Client(), "testbot", time.Minute).WithSleeper(&noSleep{})
	target, _ := url.Parse(srv.URL + "/anything")
	if c.IsAllowed(context.Background(), target) {
		t.Fatal("expected disallow-all robots.txt to block every path")
	}
}

func TestAllowExceptionWithinDisallow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /\nAllow: /x\n"))
	}))
	defer srv.Close()

	c := New(srv.Client(), "testbot", time.Minute).WithSleeper(&noSleep{})
	allowed, _ := url.Parse(srv.URL + "/x/page")
	blocked, _ := url.Parse(srv.URL + "/y/page")
	if !c.IsAllowed(context.Background(), allowed) {
		t.Fatal("expected /x prefix to be allowed")
	}
	if c.IsAllowed(context.Background(), blocked) {
		t.Fatal("expected /y prefix to remain blocked")
	}
}

func TestFailOpenOn404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := New(srv.Client(), "testbot", time.Minute).WithSleeper(&noSleep{})
	target, _ := url.Parse(srv.URL + "/anything")
	if !c.IsAllowed(context.Background(), target) {
		t.Fatal("expected missing robots.txt to fail open")
	}
}

func TestCrawlDelaySleepsBeforeReturning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nCrawl-delay: 2\n"))
	}))
	defer srv.Close()

	sleeper := &noSleep{}
	c := New(srv.Client(), "testbot", time.Minute).WithSleeper(sleeper)
	target, _ := url.Parse(srv.URL + "/page")
	if !c.IsAllowed(context.Background(), target) {
		t.Fatal("expected allow")
	}
	if sleeper.total != 2*time.Second {
		t.Fatalf("expected 2s crawl delay, got %v", sleeper.total)
	}
}

func TestRequestRateAloneDrivesCrawlDelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nRequest-rate: 1/3\n"))
	}))
	defer srv.Close()

	sleeper := &noSleep{}
	c := New(srv.Client(), "testbot", time.Minute).WithSleeper(sleeper)
	target, _ := url.Parse(srv.URL + "/page")
	if !c.IsAllowed(context.Background(), target) {
		t.Fatal("expected allow")
	}
	if sleeper.total != 3*time.Second {
		t.Fatalf("expected Request-rate 1/3 to derive a 3s delay, got %v", sleeper.total)
	}
}

func TestParseRequestRate(t *testing.T) {
	d, ok := ParseRequestRate("1/5")
	if !ok {
		t.Fatal("expected to parse")
	}
	if d != 5*time.Second {
		t.Fatalf("expected 5s, got %v", d)
	}
}
