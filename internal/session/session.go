// Package session implements C11: the orchestrator that drives C9's queue
// against C10's fetch pipeline with a worker pool, runs background
// maintenance (retry promotion, zombie reaping, checkpointing), and
// exposes the control-surface lifecycle.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oakmoss/crawler/internal/fetchpipeline"
	"github.com/oakmoss/crawler/internal/metrics"
	"github.com/oakmoss/crawler/internal/queue"
)

// State is a lifecycle state in Created -> Initialized -> Running <->
// Paused -> {Completed, Failed, Cancelled}.
type State int

const (
	StateCreated State = iota
	StateInitialized
	StateRunning
	StatePaused
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// legalTransitions enumerates the edges the state machine accepts.
var legalTransitions = map[State]map[State]bool{
	StateCreated:     {StateInitialized: true, StateFailed: true},
	StateInitialized: {StateRunning: true, StateFailed: true},
	StateRunning:     {StatePaused: true, StateCompleted: true, StateFailed: true, StateCancelled: true},
	StatePaused:      {StateRunning: true, StateCancelled: true, StateFailed: true},
}

// ErrIllegalTransition is returned when a lifecycle transition is requested
// that the state machine does not allow from the current state.
type ErrIllegalTransition struct {
	From, To State
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("illegal session transition: %s -> %s", e.From, e.To)
}

// Config holds C11's tunables, distinct from the full WebCrawlerConfig so
// the orchestrator can be driven directly in tests.
type Config struct {
	MaxConcurrent       int
	CleanupInterval     time.Duration
	PersistenceInterval time.Duration
	PersistencePath     string
	SessionTimeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 10
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 30 * time.Second
	}
	if c.PersistenceInterval <= 0 {
		c.PersistenceInterval = 60 * time.Second
	}
	return c
}

// Persister is the narrow interface the checkpoint task needs; the real
// implementation writes queue.MarshalSnapshot output to PersistencePath.
type Persister interface {
	Persist(snapshot queue.Snapshot) error
}

// ResultSink receives every fetchpipeline.Result the workers produce, after
// the session has reported it to the queue and recorded it in metrics.
type ResultSink interface {
	Handle(fetchpipeline.Result)
}

// Session drives a single crawl: seed admission, worker pool, monitor and
// checkpoint background tasks, and the lifecycle state machine.
type Session struct {
	ID       string
	cfg      Config
	queue    *queue.Queue
	pipeline *fetchpipeline.Pipeline
	metrics  *metrics.Collector
	sinks    []ResultSink
	persist  Persister

	mu    sync.Mutex
	state State

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	inFlight  int
	inFlightMu sync.Mutex

	startedAt time.Time
}

// New constructs a Session in the Created state. Call Initialize then
// Start to run it.
func New(id string, cfg Config, q *queue.Queue, p *fetchpipeline.Pipeline, m *metrics.Collector, sinks ...ResultSink) *Session {
	return &Session{
		ID:       id,
		cfg:      cfg.withDefaults(),
		queue:    q,
		pipeline: p,
		metrics:  m,
		sinks:    sinks,
		state:    StateCreated,
	}
}

func (s *Session) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !legalTransitions[s.state][to] {
		return &ErrIllegalTransition{From: s.state, To: to}
	}
	s.state = to
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Initialize enqueues the seed URLs at High priority and moves the session
// from Created to Initialized.
func (s *Session) Initialize(seeds []string) error {
	for _, seed := range seeds {
		task := &queue.Task{
			TaskID:     queue.NewTaskID(seed, 0),
			URL:        seed,
			Priority:   queue.PriorityHigh,
			MaxRetries: 3,
		}
		if qerr := s.queue.Enqueue(task); qerr != nil && qerr.Cause != queue.ErrCauseQueueFull {
			return qerr
		}
	}
	return s.transition(StateInitialized)
}

// Start spawns the worker pool and background tasks and blocks until the
// queue drains, the session times out, or ctx is cancelled. Callers
// wanting a non-blocking start should call it in a goroutine and poll
// State().
func (s *Session) Start(ctx context.Context) error {
	if err := s.transition(StateRunning); err != nil {
		return err
	}
	s.startedAt = time.Now()

	runCtx := ctx
	if s.cfg.SessionTimeout > 0 {
		var timeoutCancel context.CancelFunc
		runCtx, timeoutCancel = context.WithTimeout(ctx, s.cfg.SessionTimeout)
		defer timeoutCancel()
	}
	runCtx, cancel := context.WithCancel(runCtx)
	s.cancel = cancel
	defer cancel()

	for i := 0; i < s.cfg.MaxConcurrent; i++ {
		s.wg.Add(1)
		go s.worker(runCtx)
	}

	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		s.monitor(runCtx)
	}()

	checkpointDone := make(chan struct{})
	if s.persist != nil {
		go func() {
			defer close(checkpointDone)
			s.checkpoint(runCtx)
		}()
	} else {
		close(checkpointDone)
	}

	s.wg.Wait()
	cancel()
	<-monitorDone
	<-checkpointDone

	switch runCtx.Err() {
	case context.DeadlineExceeded:
		return s.transition(StateFailed)
	case context.Canceled:
		return s.transition(StateCancelled)
	default:
		return s.transition(StateCompleted)
	}
}

// Pause transitions Running -> Paused. Workers finish their current task
// and then idle until Resume is called.
func (s *Session) Pause() error { return s.transition(StatePaused) }

// Resume transitions Paused -> Running.
func (s *Session) Resume() error { return s.transition(StateRunning) }

// Stop cancels all workers and the background tasks. A worker reports its
// current task to the queue when that task's pipeline run returns; a run
// cut short by the cancellation is reported as a retryable failure. The
// monitor stops with the session, so no further zombie sweep runs.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) hasWork() bool {
	counts := s.queue.Counts()
	s.inFlightMu.Lock()
	inFlight := s.inFlight
	s.inFlightMu.Unlock()
	return counts.Pending > 0 || counts.Retrying > 0 || inFlight > 0
}

// worker loops: dequeue a task, run the pipeline, forward the result, and
// report success/failure back to the queue. It sleeps briefly when the
// queue is momentarily empty but other workers still hold tasks.
func (s *Session) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if s.State() == StatePaused {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		task, ok := s.queue.Dequeue()
		if !ok {
			if !s.hasWork() {
				return
			}
			time.Sleep(50 * time.Millisecond)
			continue
		}

		s.inFlightMu.Lock()
		s.inFlight++
		s.inFlightMu.Unlock()

		result := s.pipeline.Run(ctx, task)

		s.inFlightMu.Lock()
		s.inFlight--
		s.inFlightMu.Unlock()

		s.reportOutcome(task, result)
	}
}

func (s *Session) reportOutcome(task *queue.Task, result fetchpipeline.Result) {
	host := ""
	if result.URL != "" {
		host = hostOf(result.URL)
	}

	switch result.Outcome {
	case fetchpipeline.OutcomeSuccess:
		s.queue.Complete(task.TaskID)
		s.metrics.RecordFetch(host, int64(len(result.Text)), result.Duration)
	case fetchpipeline.OutcomeAlreadyVisited, fetchpipeline.OutcomeRobotsBlocked, fetchpipeline.OutcomeExtractSkipped:
		s.queue.Complete(task.TaskID)
		s.metrics.RecordSkip()
	default:
		s.queue.Fail(task.TaskID, result.Err, result.Retryable)
		s.metrics.RecordError(host, string(result.Outcome))
	}

	s.metrics.Emit(metrics.CrawlEvent{
		Time:    time.Now(),
		Kind:    "fetch",
		URL:     result.URL,
		Host:    host,
		Outcome: string(result.Outcome),
		Status:  result.StatusCode,
		Bytes:   int64(len(result.Text)),
	})

	for _, sink := range s.sinks {
		sink.Handle(result)
	}
}

// monitor runs process_retry_queue and check_zombies every CleanupInterval
// until ctx is cancelled.
func (s *Session) monitor(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.queue.ProcessRetryQueue()
			s.queue.CheckZombies(s.cfg.CleanupInterval * 4)
		}
	}
}

// checkpoint snapshots the queue to Persister every PersistenceInterval
// until ctx is cancelled.
func (s *Session) checkpoint(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PersistenceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.persist.Persist(s.queue.Snapshot())
		}
	}
}

// WithPersister attaches a checkpoint target; without one the checkpoint
// task never runs.
func (s *Session) WithPersister(p Persister) *Session {
	s.persist = p
	return s
}

func hostOf(rawURL string) string {
	for i := 0; i < len(rawURL); i++ {
		if rawURL[i] == '/' && i+1 < len(rawURL) && rawURL[i+1] == '/' {
			rest := rawURL[i+2:]
			for j := 0; j < len(rest); j++ {
				if rest[j] == '/' {
					return rest[:j]
				}
			}
			return rest
		}
	}
	return rawURL
}
