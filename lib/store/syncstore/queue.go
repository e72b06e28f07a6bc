package syncstore

import (
	"sync"

	"github.com/ValentinKolb/sKV/lib/store/oplog"
)

// queue is the pending queue of a sync store: a FIFO of ops with the additional
// ability to put a failed op back at the head.
//
// The op a reconciliation pass is replaying stays part of the queue until the pass
// settles it: Take hands out the head and keeps it in flight, Done discards it,
// Requeue restores it as head and MoveToBack appends it to the tail. Len and Snapshot
// count the in-flight op as the head.
//
// Thread-safety: all methods are safe for concurrent use. Only the reconciliation
// pass takes and settles ops, writers only push to the back.
type queue struct {
	mu       sync.Mutex
	items    []oplog.Op
	inflight *oplog.Op
}

func newQueue() *queue {
	return &queue{}
}

// PushBack appends op to the tail.
func (q *queue) PushBack(op oplog.Op) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, op)
}

func (q *queue) popFront() (oplog.Op, bool) {
	if len(q.items) == 0 {
		return oplog.Op{}, false
	}
	op := q.items[0]
	q.items[0] = oplog.Op{} // release payload for the gc
	q.items = q.items[1:]

	// give the backing array back once the queue ran empty
	if len(q.items) == 0 {
		q.items = nil
	}
	return op, true
}

// pushFront reinserts op at the head, restoring it as the next op to replay.
func (q *queue) pushFront(op oplog.Op) {
	items := make([]oplog.Op, 0, len(q.items)+1)
	items = append(items, op)
	q.items = append(items, q.items...)
}

// Take removes the head and keeps it in flight until it is settled.
// It returns false if the queue is empty or an op is already in flight.
func (q *queue) Take() (oplog.Op, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.inflight != nil {
		return oplog.Op{}, false
	}
	op, ok := q.popFront()
	if !ok {
		return op, false
	}
	q.inflight = &op
	return op, true
}

// Done discards the in-flight op (replicated or dropped).
func (q *queue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inflight = nil
}

// Requeue puts the in-flight op back at the head.
func (q *queue) Requeue() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inflight != nil {
		q.pushFront(*q.inflight)
		q.inflight = nil
	}
}

// MoveToBack appends the in-flight op to the tail.
func (q *queue) MoveToBack() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inflight != nil {
		q.items = append(q.items, *q.inflight)
		q.inflight = nil
	}
}

// Len returns the number of pending ops, including the one in flight.
func (q *queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inflight != nil {
		return len(q.items) + 1
	}
	return len(q.items)
}

// Snapshot returns deep copies of all pending ops in queue order, the in-flight op first.
func (q *queue) Snapshot() []oplog.Op {
	q.mu.Lock()
	defer q.mu.Unlock()

	ops := make([]oplog.Op, 0, len(q.items)+1)
	if q.inflight != nil {
		ops = append(ops, q.inflight.Clone())
	}
	for _, op := range q.items {
		ops = append(ops, op.Clone())
	}
	return ops
}
