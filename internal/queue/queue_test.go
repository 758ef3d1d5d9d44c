package queue

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ipiton-systems/autodev-engine/internal/domain"
)

func change(path string) domain.CodeModification {
	return domain.CodeModification{FilePath: path, Kind: domain.ModificationUpdate}
}

func TestEmptyQueueBoundary(t *testing.T) {
	q := New(4, nil)
	require.True(t, q.IsEmpty())
	_, ok := q.Dequeue()
	require.False(t, ok)
}

func TestEnqueueDequeueOrdering(t *testing.T) {
	q := New(10, nil)
	require.NoError(t, q.Enqueue(change("a.go"), domain.ImpactMinor))
	require.NoError(t, q.Enqueue(change("b.go"), domain.ImpactCritical))
	require.NoError(t, q.Enqueue(change("c.go"), domain.ImpactModerate))

	first, ok := q.Dequeue()
	require.True(t, ok)
	require.Equal(t, "b.go", first.Change.FilePath)

	second, ok := q.Dequeue()
	require.True(t, ok)
	require.Equal(t, "c.go", second.Change.FilePath)

	third, ok := q.Dequeue()
	require.True(t, ok)
	require.Equal(t, "a.go", third.Change.FilePath)
}

func TestTieBreakOlderFirst(t *testing.T) {
	q := New(10, nil)
	require.NoError(t, q.Enqueue(change("older.go"), domain.ImpactMajor))
	require.NoError(t, q.Enqueue(change("newer.go"), domain.ImpactMajor))

	first, _ := q.Dequeue()
	require.Equal(t, "older.go", first.Change.FilePath)
}

// TestQueueFullEqualPriorityDropsNew covers the boundary where the
// queue is full and the new item ties the current minimum priority:
// the new item is dropped and the queue is left unchanged.
func TestQueueFullEqualPriorityDropsNew(t *testing.T) {
	q := New(2, nil)
	require.NoError(t, q.Enqueue(change("a.go"), domain.ImpactMinor))
	require.NoError(t, q.Enqueue(change("b.go"), domain.ImpactMinor))

	err := q.Enqueue(change("c.go"), domain.ImpactMinor)
	require.ErrorIs(t, err, ErrQueueFull)
	require.Equal(t, 2, q.Size())

	stats := q.Stats()
	require.Equal(t, uint64(1), stats.Dropped)
}

// TestPriorityPreemption: capacity 2, resident [(p=1),(p=1)],
// enqueue(p=20) evicts one resident, keeps the p=20 and one p=1, next
// dequeue returns p=20.
func TestPriorityPreemption(t *testing.T) {
	q := New(2, nil)
	require.NoError(t, q.Enqueue(change("a.go"), domain.ImpactMinor))
	require.NoError(t, q.Enqueue(change("b.go"), domain.ImpactMinor))

	require.NoError(t, q.Enqueue(change("c.go"), domain.ImpactCritical))
	require.Equal(t, 2, q.Size())

	stats := q.Stats()
	require.Equal(t, uint64(1), stats.Dropped)
	require.Equal(t, uint64(3), stats.Enqueued)

	top, ok := q.Dequeue()
	require.True(t, ok)
	require.Equal(t, "c.go", top.Change.FilePath)
}

func TestRequeueDecrementsPriorityUntilMaxAttempts(t *testing.T) {
	q := New(4, nil)
	require.NoError(t, q.Enqueue(change("a.go"), domain.ImpactMajor))
	qc, ok := q.Dequeue()
	require.True(t, ok)
	require.EqualValues(t, 10, qc.Priority)

	q.Requeue(qc)
	qc, ok = q.Dequeue()
	require.True(t, ok)
	require.Equal(t, 1, qc.AttemptCount)
	require.EqualValues(t, 9, qc.Priority)

	// attempt_count == 3 retained
	qc.AttemptCount = 2
	q.Requeue(qc)
	_, ok = q.Dequeue()
	require.True(t, ok)
	stats := q.Stats()
	require.Equal(t, uint64(0), stats.Failed)

	// attempt_count == 4 dropped as failed
	qc.AttemptCount = 3
	q.Requeue(qc)
	stats = q.Stats()
	require.Equal(t, uint64(1), stats.Failed)
	require.Equal(t, 0, q.Size())
}

func TestStatsConservationInvariant(t *testing.T) {
	q := New(2, nil)
	require.NoError(t, q.Enqueue(change("a.go"), domain.ImpactMinor))
	require.NoError(t, q.Enqueue(change("b.go"), domain.ImpactMinor))
	require.Error(t, q.Enqueue(change("c.go"), domain.ImpactMinor))

	qc, _ := q.Dequeue()
	q.MarkProcessed()
	_ = qc

	stats := q.Stats()
	require.Equal(t, stats.Enqueued, stats.Processed+stats.Dropped+stats.Failed+uint64(stats.Resident))
}

func TestRemoveAndListAll(t *testing.T) {
	q := New(10, nil)
	require.NoError(t, q.Enqueue(change("a.go"), domain.ImpactMinor))
	require.NoError(t, q.Enqueue(change("b.go"), domain.ImpactMajor))

	require.NoError(t, q.Remove("a.go"))
	require.ErrorIs(t, q.Remove("a.go"), ErrNotFound)

	all := q.ListAll()
	require.Len(t, all, 1)
	require.Equal(t, "b.go", all[0].Change.FilePath)
}
