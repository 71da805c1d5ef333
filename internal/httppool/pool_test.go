package httppool

import (
	"net/http"
	"strings"
	"testing"
)

func TestClientWithoutProxiesReturnsSingleDefault(t *testing.T) {
	p := New(Config{}, nil)
	c1 := p.Client()
	c2 := p.Client()
	if c1 != c2 {
		t.Fatal("expected the default client to be reused when no proxies are configured")
	}
}

func TestClientCachesPerProxy(t *testing.T) {
	p := New(Config{ProxyURLs: []string{"http://proxy-a:8080"}}, nil)
	c1 := p.Client()
	c2 := p.Client()
	if c1 != c2 {
		t.Fatal("expected the same proxy to resolve to the same cached client")
	}
}

func TestClientDistributesAcrossProxies(t *testing.T) {
	p := New(Config{ProxyURLs: []string{"http://a:1", "http://b:2", "http://c:3"}}, nil)
	seen := make(map[*http.Client]struct{})
	for i := 0; i < 50; i++ {
		seen[p.Client()] = struct{}{}
	}
	if len(seen) < 2 {
		t.Fatalf("expected random proxy selection to vary across many draws, saw %d distinct", len(seen))
	}
}

func TestHeadersIncludeExpectedFields(t *testing.T) {
	p := New(Config{AcceptedLanguages: []string{"fr-FR", "fr", "en"}}, nil)
	h := p.Headers()

	if h.Get("User-Agent") == "" {
		t.Fatal("expected a non-empty User-Agent")
	}
	if h.Get("Connection") != "keep-alive" {
		t.Fatalf("unexpected Connection header: %q", h.Get("Connection"))
	}
	if h.Get("Upgrade-Insecure-Requests") != "1" {
		t.Fatalf("unexpected Upgrade-Insecure-Requests: %q", h.Get("Upgrade-Insecure-Requests"))
	}
	al := h.Get("Accept-Language")
	if !strings.HasPrefix(al, "fr-FR,") {
		t.Fatalf("expected Accept-Language to lead with the first configured language unweighted, got %q", al)
	}
	if !strings.HasSuffix(al, "*;q=0.1") {
		t.Fatalf("expected Accept-Language to end with a low-quality wildcard, got %q", al)
	}
}

func TestAcceptLanguageDefaultsWhenUnconfigured(t *testing.T) {
	p := New(Config{}, nil)
	al := p.acceptLanguage()
	if !strings.Contains(al, "en-US") {
		t.Fatalf("expected default accept-language to include en-US, got %q", al)
	}
}
