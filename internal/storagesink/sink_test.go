package storagesink

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStoreAndLoadNDJSON(t *testing.T) {
	sink, err := New(Config{Dir: t.TempDir(), Format: FormatNDJSON})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sink.Close()

	result := StoredCrawlResult{
		URL: "https://example.com/page", WordCount: 120, Language: "en",
		Metadata:  ResultMetadata{Status: 200, ContentLength: 4096, SessionID: "s1"},
		Timestamp: time.Now(),
	}
	if err := sink.Store(result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := sink.Load(Filter{Language: "en"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(loaded) != 1 || loaded[0].URL != result.URL {
		t.Fatalf("expected stored result to round-trip through Load, got %+v", loaded)
	}
}

func TestStoreRendersMarkdownPreviewWhenEnabled(t *testing.T) {
	dir := t.TempDir()
	sink, err := New(Config{Dir: dir, Format: FormatNDJSON, RenderPreview: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sink.Close()

	result := StoredCrawlResult{
		URL: "https://example.com/page", Markdown: "# Hello\n\nworld",
		Metadata:  ResultMetadata{Status: 200},
		Timestamp: time.Now(),
	}
	if err := sink.Store(result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "previews"))
	if err != nil {
		t.Fatalf("expected previews dir to exist: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one rendered preview, got %d", len(entries))
	}

	data, err := os.ReadFile(filepath.Join(dir, "previews", entries[0].Name()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(data), "<h1>Hello</h1>") {
		t.Fatalf("expected rendered HTML to contain the heading, got %q", data)
	}
}

func TestLoadFiltersByHost(t *testing.T) {
	sink, err := New(Config{Dir: t.TempDir(), Format: FormatNDJSON})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sink.Close()

	sink.StoreBatch([]StoredCrawlResult{
		{URL: "https://a.example.com/x", Metadata: ResultMetadata{}},
		{URL: "https://b.example.com/y", Metadata: ResultMetadata{}},
	})

	loaded, err := sink.Load(Filter{Host: "a.example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(loaded) != 1 || loaded[0].URL != "https://a.example.com/x" {
		t.Fatalf("expected only a.example.com result, got %+v", loaded)
	}
}

func TestAnalyticsAggregatesAcrossStores(t *testing.T) {
	sink, err := New(Config{Dir: t.TempDir(), Format: FormatCSV})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sink.Close()

	sink.StoreBatch([]StoredCrawlResult{
		{URL: "https://a.example.com", WordCount: 100, Language: "en", Metadata: ResultMetadata{ContentLength: 10}},
		{URL: "https://b.example.com", WordCount: 200, Language: "en", Metadata: ResultMetadata{ContentLength: 20}},
	})

	a := sink.Analytics()
	if a.TotalStored != 2 {
		t.Fatalf("expected 2 stored, got %d", a.TotalStored)
	}
	if a.AverageWordCount != 150 {
		t.Fatalf("expected average word count 150, got %v", a.AverageWordCount)
	}
	if a.ByLanguage["en"] != 2 {
		t.Fatalf("expected 2 english entries, got %+v", a.ByLanguage)
	}
}

func TestRotationCreatesNewFileWhenExceedingMaxBytes(t *testing.T) {
	sink, err := New(Config{Dir: t.TempDir(), Format: FormatNDJSON, MaxFileBytes: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sink.Close()

	sink.Store(StoredCrawlResult{URL: "https://a.example.com"})
	sink.Store(StoredCrawlResult{URL: "https://b.example.com"})

	if sink.rotation < 2 {
		t.Fatalf("expected at least 2 rotations given MaxFileBytes=1, got %d", sink.rotation)
	}
}
