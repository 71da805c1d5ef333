package metrics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"
)

func TestRecordFetchUpdatesTotalsAndDomain(t *testing.T) {
	c := New(10)
	c.RecordFetch("example.com", 1024, 50*time.Millisecond)
	c.RecordFetch("example.com", 2048, 150*time.Millisecond)

	snap := c.Snapshot(5)
	if snap.TotalFetched != 2 {
		t.Fatalf("expected 2 fetches, got %d", snap.TotalFetched)
	}
	if snap.TotalBytes != 3072 {
		t.Fatalf("expected 3072 bytes, got %d", snap.TotalBytes)
	}
	if snap.AvgLatency != 100*time.Millisecond {
		t.Fatalf("expected avg latency 100ms, got %v", snap.AvgLatency)
	}
}

func TestRecordErrorBucketsByKind(t *testing.T) {
	c := New(10)
	c.RecordError("a.example", "timeout")
	c.RecordError("b.example", "timeout")
	c.RecordError("c.example", "dns_failure")

	snap := c.Snapshot(5)
	if snap.TotalErrors != 3 {
		t.Fatalf("expected 3 errors, got %d", snap.TotalErrors)
	}
	if len(snap.TopErrors) == 0 || snap.TopErrors[0].Kind != "timeout" || snap.TopErrors[0].Count != 2 {
		t.Fatalf("expected timeout to be the top error kind, got %+v", snap.TopErrors)
	}
}

func TestDomainMapEvictsBeyondCapacity(t *testing.T) {
	c := New(2)
	c.RecordFetch("a.example", 1, time.Millisecond)
	c.RecordFetch("b.example", 1, time.Millisecond)
	c.RecordFetch("c.example", 1, time.Millisecond)

	if c.domains.Len() > 2 {
		t.Fatalf("expected domain map bounded to 2 entries, got %d", c.domains.Len())
	}
}

func TestSnapshotRanksTopDomainsByTraffic(t *testing.T) {
	c := New(10)
	c.RecordFetch("quiet.example", 1, time.Millisecond)
	c.RecordFetch("busy.example", 1, time.Millisecond)
	c.RecordFetch("busy.example", 1, time.Millisecond)
	c.RecordError("busy.example", "timeout")

	snap := c.Snapshot(1)
	if len(snap.TopDomains) != 1 {
		t.Fatalf("expected topK=1 to return exactly one domain, got %+v", snap.TopDomains)
	}
	if snap.TopDomains[0].Host != "busy.example" {
		t.Fatalf("expected busy.example to rank first, got %+v", snap.TopDomains)
	}
	if snap.TopDomains[0].Stats.Fetched != 2 || snap.TopDomains[0].Stats.Errors != 1 {
		t.Fatalf("expected accumulated stats to survive ranking, got %+v", snap.TopDomains[0].Stats)
	}
}

func TestFileSinkEmitsOneJSONLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewFileSink(&buf)
	sink.Emit(CrawlEvent{Kind: "fetch", URL: "https://example.com", Status: 200})
	sink.Emit(CrawlEvent{Kind: "error", URL: "https://example.com/broken", Status: 500})

	lines := bytes.Count(buf.Bytes(), []byte("\n"))
	if lines != 2 {
		t.Fatalf("expected 2 lines, got %d", lines)
	}
}

func TestStdoutSinkTruncatesLongLines(t *testing.T) {
	var buf bytes.Buffer
	sink := &StdoutSink{out: &buf, width: 20}
	sink.Emit(CrawlEvent{Kind: "fetch", Outcome: "success", URL: "https://example.com/a/very/long/path/that/overflows"})

	line := buf.String()
	if len(line) == 0 {
		t.Fatal("expected output")
	}
	if w := runewidth.StringWidth(strings.TrimRight(line, "\n")); w > 20 {
		t.Fatalf("expected line truncated to at most 20 columns, got width %d: %q", w, line)
	}
}
