package queue

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestEnqueueRejectsWhenFull(t *testing.T) {
	q := New(Config{MaxQueueSize: 1})
	if err := q.Enqueue(&Task{TaskID: "a", URL: "https://a.example"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := q.Enqueue(&Task{TaskID: "b", URL: "https://b.example"})
	if err == nil || err.Cause != ErrCauseQueueFull {
		t.Fatalf("expected queue-full error, got %v", err)
	}
}

func TestDequeueOrdersByPriorityThenFIFO(t *testing.T) {
	q := New(Config{})
	q.Enqueue(&Task{TaskID: "low", Priority: PriorityLow})
	q.Enqueue(&Task{TaskID: "high-1", Priority: PriorityHigh})
	q.Enqueue(&Task{TaskID: "high-2", Priority: PriorityHigh})

	first, ok := q.Dequeue()
	if !ok || first.TaskID != "high-1" {
		t.Fatalf("expected high-1 first, got %+v ok=%v", first, ok)
	}
	second, ok := q.Dequeue()
	if !ok || second.TaskID != "high-2" {
		t.Fatalf("expected high-2 second (FIFO tie-break), got %+v", second)
	}
}

func TestDequeueRespectsConcurrencyLimit(t *testing.T) {
	q := New(Config{MaxConcurrent: 1})
	q.Enqueue(&Task{TaskID: "a"})
	q.Enqueue(&Task{TaskID: "b"})

	first, ok := q.Dequeue()
	if !ok {
		t.Fatal("expected first dequeue to succeed")
	}
	_, ok = q.Dequeue()
	if ok {
		t.Fatal("expected second dequeue to block on the concurrency semaphore")
	}

	if err := q.Complete(first.TaskID); err != nil {
		t.Fatalf("unexpected error completing: %v", err)
	}
	_, ok = q.Dequeue()
	if !ok {
		t.Fatal("expected dequeue to succeed after releasing the permit")
	}
}

func TestFailSchedulesRetryThenDeadLetters(t *testing.T) {
	mock := clock.NewMock()
	q := New(Config{MaxRetries: 2, Backoff: BackoffParam{BaseDelay: time.Second, Multiplier: 1, MaxDelay: time.Minute, JitterFactor: 0.0001}}).WithClock(mock)
	q.Enqueue(&Task{TaskID: "t"})

	task, _ := q.Dequeue()
	if err := q.Fail(task.TaskID, "boom", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	counts := q.Counts()
	if counts.Retrying != 1 {
		t.Fatalf("expected 1 retrying task, got %+v", counts)
	}

	mock.Add(2 * time.Second)
	q.ProcessRetryQueue()
	counts = q.Counts()
	if counts.Pending != 1 || counts.Retrying != 0 {
		t.Fatalf("expected retry promoted to pending, got %+v", counts)
	}

	task2, _ := q.Dequeue()
	if err := q.Fail(task2.TaskID, "boom again", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	counts = q.Counts()
	if counts.Dead != 1 {
		t.Fatalf("expected task to be dead-lettered after exhausting retries, got %+v", counts)
	}
}

func TestFailDeadLettersImmediatelyWhenNonRetryable(t *testing.T) {
	q := New(Config{MaxRetries: 5})
	q.Enqueue(&Task{TaskID: "t"})

	task, _ := q.Dequeue()
	if err := q.Fail(task.TaskID, "404 not found", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	counts := q.Counts()
	if counts.Dead != 1 || counts.Retrying != 0 {
		t.Fatalf("expected non-retryable failure to dead-letter despite retries remaining, got %+v", counts)
	}
}

func TestCheckZombiesFailsStaleInProgressTasks(t *testing.T) {
	mock := clock.NewMock()
	q := New(Config{MaxRetries: 3}).WithClock(mock)
	q.Enqueue(&Task{TaskID: "t"})
	q.Dequeue()

	mock.Add(time.Hour)
	q.CheckZombies(time.Minute)

	counts := q.Counts()
	if counts.Retrying != 1 {
		t.Fatalf("expected zombie task to be failed into retrying, got %+v", counts)
	}
}

func TestSnapshotRestorePreservesAttemptCountAndResetsInProgress(t *testing.T) {
	q := New(Config{})
	q.Enqueue(&Task{TaskID: "t", URL: "https://example.com"})
	task, _ := q.Dequeue()
	if task.AttemptCount != 1 {
		t.Fatalf("expected attempt_count incremented by dequeue, got %d", task.AttemptCount)
	}

	snap := q.Snapshot()
	if len(snap.InProgress) != 1 {
		t.Fatalf("expected 1 in-progress task in snapshot, got %d", len(snap.InProgress))
	}

	restored := New(Config{})
	restored.Restore(snap)
	counts := restored.Counts()
	if counts.Pending != 1 || counts.InProgress != 0 {
		t.Fatalf("expected in-progress task reassigned to pending, got %+v", counts)
	}

	next, ok := restored.Dequeue()
	if !ok {
		t.Fatal("expected restored task to be dequeueable")
	}
	if next.AttemptCount != 2 {
		t.Fatalf("expected attempt_count preserved across restore then incremented again, got %d", next.AttemptCount)
	}
}

func TestNewTaskIDIsDeterministic(t *testing.T) {
	a := NewTaskID("https://example.com/page", 0)
	b := NewTaskID("https://example.com/page", 0)
	c := NewTaskID("https://example.com/page", 1)
	if a != b {
		t.Fatal("expected identical inputs to produce identical task ids")
	}
	if a == c {
		t.Fatal("expected different seed indexes to produce different task ids")
	}
}
