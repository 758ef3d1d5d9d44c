// Package queue implements the bounded priority heap (C1) that orders
// queued changes by impact-derived priority, age, and retry count.
package queue

import (
	"container/heap"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ipiton-systems/autodev-engine/internal/domain"
)

// maxAttempts is the attempt_count threshold past which a requeued
// change is dropped as failed instead of re-inserted, regardless of
// its current priority.
const maxAttempts = 3

// Stats is the point-in-time snapshot returned by Queue.Stats. The
// conservation invariant Enqueued == Processed+Dropped+Failed+Resident
// holds at every external observation.
type Stats struct {
	Enqueued  uint64
	Processed uint64
	Dropped   uint64
	Failed    uint64
	Resident  int
}

// item is one heap element: the queued change plus its heap index,
// maintained by container/heap's Push/Swap so Remove(path) can locate
// and evict an arbitrary element in O(log n).
type item struct {
	change domain.QueuedChange
	index  int
}

// innerHeap implements container/heap.Interface. Ordering: priority
// descending, ties broken by queued_at ascending (older first).
type innerHeap []*item

func (h innerHeap) Len() int { return len(h) }

func (h innerHeap) Less(i, j int) bool {
	pi, pj := h[i].change.Priority, h[j].change.Priority
	if pi != pj {
		return pi > pj
	}
	return h[i].change.QueuedAt.Before(h[j].change.QueuedAt)
}

func (h innerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *innerHeap) Push(x interface{}) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *innerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// Queue is the bounded priority queue. A single exclusive mutex guards
// both the heap and the stats counters.
type Queue struct {
	mu       sync.Mutex
	heap     innerHeap
	byPath   map[string]*item
	capacity int
	stats    Stats
	logger   *slog.Logger
}

// New creates a Queue with the given bounded capacity.
func New(capacity int, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if capacity <= 0 {
		capacity = 1
	}
	q := &Queue{
		heap:     make(innerHeap, 0, capacity),
		byPath:   make(map[string]*item, capacity),
		capacity: capacity,
		logger:   logger.With("component", "queue"),
	}
	heap.Init(&q.heap)
	return q
}

// Enqueue inserts change with the priority derived from impact. If the
// queue is at capacity and the new priority does not exceed the
// current minimum resident priority, the new change is dropped and
// ErrQueueFull is returned. Otherwise, if at capacity, the current
// lowest-priority resident is evicted to make room.
func (q *Queue) Enqueue(change domain.CodeModification, impact domain.Impact) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.stats.Enqueued++

	qc := domain.QueuedChange{
		Change:   change,
		Impact:   impact,
		Priority: impact.BasePriority(),
		QueuedAt: time.Now(),
	}

	if len(q.heap) < q.capacity {
		q.push(qc)
		return nil
	}

	minIdx := q.minPriorityIndex()
	if q.heap[minIdx].change.Priority >= qc.Priority {
		q.stats.Dropped++
		q.logger.Debug("enqueue dropped: queue full, priority too low",
			"path", change.FilePath, "priority", qc.Priority)
		return ErrQueueFull
	}

	evicted := q.heap[minIdx]
	heap.Remove(&q.heap, minIdx)
	delete(q.byPath, evicted.change.Change.FilePath)
	q.stats.Dropped++
	q.logger.Debug("enqueue evicted lowest-priority resident",
		"evicted_path", evicted.change.Change.FilePath, "new_path", change.FilePath)

	q.push(qc)
	return nil
}

func (q *Queue) push(qc domain.QueuedChange) {
	it := &item{change: qc}
	heap.Push(&q.heap, it)
	q.byPath[qc.Change.FilePath] = it
}

// minPriorityIndex returns the index of the resident with the lowest
// priority, breaking ties in favor of evicting the most recently
// queued (keep the older one), since the heap itself only orders by
// "pop first", not "evict last".
func (q *Queue) minPriorityIndex() int {
	minIdx := 0
	for i := 1; i < len(q.heap); i++ {
		c, m := q.heap[i].change, q.heap[minIdx].change
		if c.Priority < m.Priority ||
			(c.Priority == m.Priority && c.QueuedAt.After(m.QueuedAt)) {
			minIdx = i
		}
	}
	return minIdx
}

// Dequeue removes and returns the highest-priority resident (oldest
// first on ties). The caller becomes responsible for eventually
// calling MarkProcessed or Requeue so the conservation invariant holds.
func (q *Queue) Dequeue() (domain.QueuedChange, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) == 0 {
		return domain.QueuedChange{}, false
	}
	it := heap.Pop(&q.heap).(*item)
	delete(q.byPath, it.change.Change.FilePath)
	return it.change, true
}

// Peek returns the highest-priority resident without removing it.
func (q *Queue) Peek() (domain.QueuedChange, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 {
		return domain.QueuedChange{}, false
	}
	return q.heap[0].change, true
}

// Size returns the number of resident changes.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// IsEmpty reports whether the queue currently holds no changes.
func (q *Queue) IsEmpty() bool {
	return q.Size() == 0
}

// Clear removes all resident changes without affecting historical
// stats counters (they describe what has already happened).
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.heap = q.heap[:0]
	q.byPath = make(map[string]*item, q.capacity)
}

// Remove evicts the resident change queued for path, if any.
func (q *Queue) Remove(path string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.byPath[path]
	if !ok {
		return ErrNotFound
	}
	heap.Remove(&q.heap, it.index)
	delete(q.byPath, path)
	return nil
}

// ListAll returns a priority-ordered snapshot of all resident changes.
func (q *Queue) ListAll() []domain.QueuedChange {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.QueuedChange, len(q.heap))
	for i, it := range q.heap {
		out[i] = it.change
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].QueuedAt.Before(out[j].QueuedAt)
	})
	return out
}

// Stats returns a snapshot of the queue's lifetime counters plus the
// current resident count.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.stats
	s.Resident = len(q.heap)
	return s
}

// MarkProcessed records that a previously dequeued change completed
// successfully and will not be requeued.
func (q *Queue) MarkProcessed() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stats.Processed++
}

// Requeue re-admits a previously dequeued change after a failed
// attempt. attempt_count is incremented; past maxAttempts the change
// is counted as failed and not re-inserted, otherwise its priority is
// decremented (saturating at zero) and it is pushed back onto the heap.
func (q *Queue) Requeue(change domain.QueuedChange) {
	q.mu.Lock()
	defer q.mu.Unlock()

	change.AttemptCount++
	if change.AttemptCount > maxAttempts {
		q.stats.Failed++
		q.logger.Debug("requeue dropped: max attempts exceeded",
			"path", change.Change.FilePath, "attempts", change.AttemptCount)
		return
	}
	if change.Priority > 0 {
		change.Priority--
	}
	q.push(change)
}
