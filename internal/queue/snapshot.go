package queue

import (
	"container/heap"

	jsoniter "github.com/json-iterator/go"
)

var snapshotJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Snapshot is the wire form of a Queue's full state: every bucket plus the
// next sequence number. Restore gives restored pending tasks fresh sequence
// numbers continuing from NextSeq, in slice order.
type Snapshot struct {
	Pending    []Task `json:"pending"`
	InProgress []Task `json:"in_progress"`
	Retry      []Task `json:"retry"`
	Completed  []Task `json:"completed"`
	Dead       []Task `json:"dead"`
	NextSeq    int64  `json:"next_seq"`
}

// Snapshot captures the queue's current state. Unexported fields on Task
// (seq) are not part of the wire struct; Restore re-derives ordering from
// slice position instead.
func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	snap := Snapshot{NextSeq: q.nextSeq}
	for _, t := range q.pending {
		snap.Pending = append(snap.Pending, *t)
	}
	for _, t := range q.inProgress {
		snap.InProgress = append(snap.InProgress, *t)
	}
	for _, t := range q.retry {
		snap.Retry = append(snap.Retry, *t)
	}
	for _, t := range q.completed {
		snap.Completed = append(snap.Completed, *t)
	}
	for _, t := range q.dead {
		snap.Dead = append(snap.Dead, *t)
	}
	return snap
}

// MarshalSnapshot / UnmarshalSnapshot expose the wire encoding used for
// crash-recovery persistence.
func MarshalSnapshot(s Snapshot) ([]byte, error) {
	return snapshotJSON.Marshal(s)
}

func UnmarshalSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	err := snapshotJSON.Unmarshal(data, &s)
	return s, err
}

// Restore replaces the queue's state with snap. Per spec.md 4.9, in-progress
// entries are reassigned to Pending with delay_until cleared, while
// attempt_count is preserved across the restore (see DESIGN.md's resolution
// of the corresponding Open Question).
func (q *Queue) Restore(snap Snapshot) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = make(pendingHeap, 0, len(snap.Pending)+len(snap.InProgress)+len(snap.Retry))
	q.inProgress = make(map[string]*Task)
	q.retry = nil
	q.completed = nil
	q.dead = nil
	q.nextSeq = snap.NextSeq

	appendPending := func(t Task) {
		t.Status = StatusPending
		t.StartedAt = nil
		t.DelayUntil = nil
		cp := t
		cp.seq = q.nextSeq
		q.nextSeq++
		heap.Push(&q.pending, &cp)
	}

	for _, t := range snap.Pending {
		appendPending(t)
	}
	for _, t := range snap.InProgress {
		appendPending(t)
	}
	for _, t := range snap.Retry {
		cp := t
		q.retry = append(q.retry, &cp)
	}
	for _, t := range snap.Completed {
		cp := t
		q.completed = append(q.completed, &cp)
	}
	for _, t := range snap.Dead {
		cp := t
		q.dead = append(q.dead, &cp)
	}
}
