package queue

import (
	"container/heap"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// BackoffParam parameterizes the retry delay formula from spec.md 4.9:
// delay = min(MaxDelay, BaseDelay * Multiplier^attempt) * (1 + JitterFactor*U[-1,1]).
type BackoffParam struct {
	BaseDelay    time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	JitterFactor float64
}

func (b BackoffParam) withDefaults() BackoffParam {
	if b.BaseDelay <= 0 {
		b.BaseDelay = time.Second
	}
	if b.Multiplier <= 0 {
		b.Multiplier = 2.0
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = 5 * time.Minute
	}
	if b.JitterFactor <= 0 {
		b.JitterFactor = 0.2
	}
	return b
}

// Config bundles the queue's capacity and retry policy.
type Config struct {
	MaxQueueSize  int
	MaxConcurrent int
	MaxRetries    int
	Backoff       BackoffParam
}

func (c Config) withDefaults() Config {
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 100_000
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 10
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	c.Backoff = c.Backoff.withDefaults()
	return c
}

// Counts is a point-in-time snapshot of bucket sizes, for C11/C12.
type Counts struct {
	Pending    int
	InProgress int
	Retrying   int
	Completed  int
	Dead       int
}

// Queue is C9: a priority queue with bounded concurrency, retry backoff,
// zombie reaping and crash-recovery snapshots. All mutating operations take
// the same lock; callers do not need their own synchronization.
type Queue struct {
	mu sync.Mutex

	cfg        Config
	pending    pendingHeap
	inProgress map[string]*Task
	retry      []*Task // FIFO by delay_until-agnostic insertion order; see ProcessRetryQueue
	completed  []*Task
	dead       []*Task

	sem chan struct{}

	nextSeq int64
	clock   clock.Clock
	rng     *rand.Rand
	rngMu   sync.Mutex
}

// New creates a Queue ready for use.
func New(cfg Config) *Queue {
	cfg = cfg.withDefaults()
	return &Queue{
		cfg:        cfg,
		pending:    make(pendingHeap, 0),
		inProgress: make(map[string]*Task),
		sem:        make(chan struct{}, cfg.MaxConcurrent),
		clock:      clock.New(),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithClock overrides the clock, for deterministic tests.
func (q *Queue) WithClock(c clock.Clock) *Queue {
	q.clock = c
	return q
}

// Enqueue pushes task onto the pending heap, rejecting it if the pending
// bucket is already at capacity.
func (q *Queue) Enqueue(task *Task) *QueueError {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) >= q.cfg.MaxQueueSize {
		return &QueueError{Message: "max_queue_size reached", Cause: ErrCauseQueueFull}
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = q.clock.Now()
	}
	task.Status = StatusPending
	task.seq = q.nextSeq
	q.nextSeq++
	heap.Push(&q.pending, task)
	return nil
}

// Dequeue promotes ready retries, then -- if a concurrency permit is free --
// pops the highest-priority pending task and transitions it to InProgress.
func (q *Queue) Dequeue() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.promoteReadyRetriesLocked()

	select {
	case q.sem <- struct{}{}:
	default:
		return nil, false
	}

	if len(q.pending) == 0 {
		<-q.sem
		return nil, false
	}

	task := heap.Pop(&q.pending).(*Task)
	now := q.clock.Now()
	task.Status = StatusInProgress
	task.StartedAt = timePtr(now)
	task.LastAttemptAt = timePtr(now)
	task.AttemptCount++
	q.inProgress[task.TaskID] = task
	return task, true
}

// Complete moves an in-progress task to the completed bucket and releases
// its concurrency permit.
func (q *Queue) Complete(taskID string) *QueueError {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.inProgress[taskID]
	if !ok {
		return &QueueError{Message: taskID, Cause: ErrCauseNotFound}
	}
	delete(q.inProgress, taskID)
	task.Status = StatusCompleted
	q.completed = append(q.completed, task)
	q.releasePermit()
	return nil
}

// Fail reports a task failure. When retryable is true and attempts remain
// it schedules a backoff retry; otherwise (attempts exhausted, or the
// failure cause is marked non-retryable regardless of attempts remaining)
// it moves the task straight to the dead-letter bucket. Either way the
// task's concurrency permit is released.
func (q *Queue) Fail(taskID string, errMsg string, retryable bool) *QueueError {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.inProgress[taskID]
	if !ok {
		return &QueueError{Message: taskID, Cause: ErrCauseNotFound}
	}
	delete(q.inProgress, taskID)
	task.LastError = errMsg

	if retryable && task.AttemptCount < q.cfg.MaxRetries {
		delay := q.backoffDelay(task.AttemptCount)
		task.Status = StatusRetrying
		task.DelayUntil = timePtr(q.clock.Now().Add(delay))
		q.retry = append(q.retry, task)
	} else {
		task.Status = StatusDead
		q.dead = append(q.dead, task)
	}
	q.releasePermit()
	return nil
}

func (q *Queue) releasePermit() {
	select {
	case <-q.sem:
	default:
	}
}

func (q *Queue) backoffDelay(attempt int) time.Duration {
	b := q.cfg.Backoff
	base := float64(b.BaseDelay) * pow(b.Multiplier, attempt)
	if base > float64(b.MaxDelay) {
		base = float64(b.MaxDelay)
	}
	q.rngMu.Lock()
	jitter := 1 + b.JitterFactor*(2*q.rng.Float64()-1)
	q.rngMu.Unlock()
	return time.Duration(base * jitter)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// ProcessRetryQueue scans the retry bucket and promotes every task whose
// DelayUntil has elapsed back to pending. O(n) in the retry bucket size;
// intended to be called at a low frequency by the orchestrator's monitor
// task, not per-dequeue (Dequeue already promotes opportunistically).
func (q *Queue) ProcessRetryQueue() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.promoteReadyRetriesLocked()
}

func (q *Queue) promoteReadyRetriesLocked() {
	now := q.clock.Now()
	remaining := q.retry[:0]
	for _, task := range q.retry {
		if task.DelayUntil != nil && !task.DelayUntil.After(now) {
			task.Status = StatusPending
			task.DelayUntil = nil
			task.seq = q.nextSeq
			q.nextSeq++
			heap.Push(&q.pending, task)
		} else {
			remaining = append(remaining, task)
		}
	}
	q.retry = remaining
}

// CheckZombies synthesizes a timeout failure for every in-progress task
// whose StartedAt is older than timeout, routing it through the same
// retry/dead-letter decision as an ordinary Fail.
func (q *Queue) CheckZombies(timeout time.Duration) {
	q.mu.Lock()
	now := q.clock.Now()
	var zombies []string
	for id, task := range q.inProgress {
		if task.StartedAt != nil && now.Sub(*task.StartedAt) > timeout {
			zombies = append(zombies, id)
		}
	}
	q.mu.Unlock()

	for _, id := range zombies {
		q.Fail(id, "zombie: in-progress timeout exceeded", true)
	}
}

// Len returns the pending bucket size.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Counts reports the size of every bucket.
func (q *Queue) Counts() Counts {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Counts{
		Pending:    len(q.pending),
		InProgress: len(q.inProgress),
		Retrying:   len(q.retry),
		Completed:  len(q.completed),
		Dead:       len(q.dead),
	}
}

// DeadLetter returns a copy of the permanently failed tasks, for
// inspection/export.
func (q *Queue) DeadLetter() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Task, len(q.dead))
	for i, t := range q.dead {
		out[i] = *t
	}
	return out
}

func timePtr(t time.Time) *time.Time { return &t }
