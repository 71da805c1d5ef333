package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

// TestWaitEnforcesWindow drives a real clock over a short window to check
// the boundary behavior from spec.md section 8: max_rps=1, window=1s, two
// immediate requests means the second blocks for close to a full window.
func TestWaitEnforcesWindow(t *testing.T) {
	l := New(HostLimit{MaxRequests: 1, Window: 100 * time.Millisecond})

	start := time.Now()
	l.Wait("example.com")
	l.Wait("example.com")
	elapsed := time.Since(start)

	if elapsed < 90*time.Millisecond {
		t.Fatalf("expected second Wait to block close to the window, elapsed=%v", elapsed)
	}
}

func TestWaitAllowsDistinctHostsIndependently(t *testing.T) {
	l := New(HostLimit{MaxRequests: 1, Window: time.Hour})
	done := make(chan struct{}, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); l.Wait("a.example.com"); done <- struct{}{} }()
	go func() { defer wg.Done(); l.Wait("b.example.com"); done <- struct{}{} }()
	wg.Wait()
	close(done)
	count := 0
	for range done {
		count++
	}
	if count != 2 {
		t.Fatalf("expected both hosts to proceed immediately, got %d", count)
	}
}

func TestGCEvictsIdleHosts(t *testing.T) {
	mock := clock.NewMock()
	l := New(HostLimit{MaxRequests: 10, Window: time.Second}).WithClock(mock)

	l.Wait("idle.example.com")
	if l.TrackedHosts() != 1 {
		t.Fatalf("expected 1 tracked host")
	}

	mock.Add(2 * time.Hour)
	l.GC()

	if l.TrackedHosts() != 0 {
		t.Fatalf("expected idle host to be evicted after GC, got %d tracked", l.TrackedHosts())
	}
}

func TestRobotsDelayComposesAsMax(t *testing.T) {
	l := New(HostLimit{MaxRequests: 100, Window: time.Millisecond})
	l.SetRobotsDelay("slow.example.com", 50*time.Millisecond)

	start := time.Now()
	l.Wait("slow.example.com")
	l.Wait("slow.example.com")
	elapsed := time.Since(start)

	if elapsed < 40*time.Millisecond {
		t.Fatalf("expected robots crawl-delay to dominate the tiny window, elapsed=%v", elapsed)
	}
}
