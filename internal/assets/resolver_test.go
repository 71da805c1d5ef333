package assets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/oakmoss/crawler/internal/timeutil"
	"github.com/oakmoss/crawler/internal/retry"
)

func testResolver(t *testing.T, srv *httptest.Server) *Resolver {
	t.Helper()
	return New(Config{OutputDir: t.TempDir()}, srv.Client(), retry.NewRetryParam(0, 1, 1, timeutil.NewBackoffParam(time.Millisecond, 2, 10*time.Millisecond)))
}

func TestResolveDownloadsAndRewritesImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake-image-bytes"))
	}))
	defer srv.Close()

	r := testResolver(t, srv)
	pageURL, _ := url.Parse(srv.URL + "/docs/page.html")
	markdown := []byte("see ![logo](/logo.png) for details")

	result := r.Resolve(context.Background(), pageURL, markdown)

	if result.Downloaded != 1 {
		t.Fatalf("expected 1 download, got %d (missing=%v)", result.Downloaded, result.Missing)
	}
	if string(result.Markdown) == string(markdown) {
		t.Fatal("expected markdown to be rewritten with a local path")
	}
}

func TestResolveDeduplicatesRepeatedAsset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("same-bytes"))
	}))
	defer srv.Close()

	r := testResolver(t, srv)
	pageURL, _ := url.Parse(srv.URL + "/page")

	r.Resolve(context.Background(), pageURL, []byte("![a](/one.png)"))
	result := r.Resolve(context.Background(), pageURL, []byte("![b](/two.png)"))

	if result.Deduplicated != 1 {
		t.Fatalf("expected second identical asset to dedup, got downloaded=%d deduped=%d", result.Downloaded, result.Deduplicated)
	}
}

func TestResolveReportsMissingOnUnparseableURL(t *testing.T) {
	r := New(Config{OutputDir: t.TempDir()}, nil, retry.NewRetryParam(0, 1, 1, timeutil.NewBackoffParam(time.Millisecond, 2, time.Millisecond)))
	pageURL, _ := url.Parse("https://example.com/page")

	result := r.Resolve(context.Background(), pageURL, []byte("![bad](%zz)"))

	if len(result.Missing) != 1 {
		t.Fatalf("expected 1 missing asset, got %+v", result.Missing)
	}
}
