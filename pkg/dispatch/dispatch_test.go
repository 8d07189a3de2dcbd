package dispatch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExampleB(t *testing.T) {
	q := New()
	var ran []int
	for i := 0; i < 5; i++ {
		q.Enqueue(0, func() { ran = append(ran, i) })
	}

	assert.Equal(t, 2, q.Drain(2))
	assert.Equal(t, []int{0, 1}, ran)
	assert.Equal(t, 3, q.Len())

	assert.Equal(t, 2, q.Drain(2))
	assert.Equal(t, []int{0, 1, 2, 3}, ran)

	assert.Equal(t, 1, q.Drain(2))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, ran)

	assert.Equal(t, 0, q.Drain(2))
	assert.Equal(t, 0, q.Len())
}

func TestZeroBudgetRunsNothing(t *testing.T) {
	q := New()
	q.Enqueue(0, func() { t.Fatal("should not run") })
	assert.Equal(t, 0, q.Drain(0))
	assert.Equal(t, 0, q.Drain(-3))
	assert.Equal(t, 1, q.Len())
}

func TestNilActionIgnored(t *testing.T) {
	var q Queue
	q.Enqueue(1, nil)
	assert.Equal(t, 0, q.Len())
}

func TestSupersedeDiscardsStale(t *testing.T) {
	q := New()
	var ran []string
	q.Enqueue(1, func() { ran = append(ran, "old-a") })
	q.Enqueue(2, func() { ran = append(ran, "new-a") })
	q.Enqueue(1, func() { ran = append(ran, "old-b") })
	q.Enqueue(2, func() { ran = append(ran, "new-b") })

	q.Supersede(2)
	q.Enqueue(1, func() { ran = append(ran, "late") })
	assert.Equal(t, 4, q.Len(), "late stale action never enters the queue")

	// Stale entries do not count against the budget.
	assert.Equal(t, 2, q.Drain(2))
	assert.Equal(t, []string{"new-a", "new-b"}, ran)
	assert.Equal(t, uint64(3), q.Dropped())
	assert.Equal(t, 0, q.Len())

	q.Supersede(1)
	q.Enqueue(1, func() { ran = append(ran, "after-lowering") })
	assert.Equal(t, 0, q.Len(), "the minimum never moves backwards")
}

func TestDiscardDropsOneGeneration(t *testing.T) {
	q := New()
	var ran []string
	q.Enqueue(3, func() { ran = append(ran, "prev") })
	q.Enqueue(4, func() { ran = append(ran, "failed-a") })
	q.Enqueue(3, func() { ran = append(ran, "prev-visible") })
	q.Enqueue(4, func() { ran = append(ran, "failed-b") })

	q.Discard(4)
	assert.Equal(t, 2, q.Len())
	q.Enqueue(4, func() { ran = append(ran, "failed-late") })
	assert.Equal(t, 2, q.Len(), "a discarded generation stays rejected")

	q.Enqueue(5, func() { ran = append(ran, "next") })
	assert.Equal(t, 3, q.Drain(10))
	assert.Equal(t, []string{"prev", "prev-visible", "next"}, ran)
	assert.Equal(t, uint64(3), q.Dropped())

	// Discarding a superseded generation is a no-op.
	q.Supersede(5)
	q.Discard(2)
	q.Enqueue(5, func() { ran = append(ran, "still-current") })
	assert.Equal(t, 1, q.Drain(10))
}

func TestActionMayEnqueue(t *testing.T) {
	q := New()
	count := 0
	q.Enqueue(0, func() {
		count++
		q.Enqueue(0, func() { count++ })
	})
	assert.Equal(t, 1, q.Drain(10), "actions enqueued during a drain wait for the next tick")
	assert.Equal(t, 1, q.Drain(10))
	assert.Equal(t, 2, count)
}

func TestConcurrentProducers(t *testing.T) {
	const producers, per = 8, 500
	q := New()

	var mu sync.Mutex
	seen := make(map[int]int)
	lastPerProducer := make([]int, producers)
	for i := range lastPerProducer {
		lastPerProducer[i] = -1
	}

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				q.Enqueue(0, func() {
					mu.Lock()
					defer mu.Unlock()
					seen[p*per+i]++
					// FIFO: one producer's actions run in enqueue order.
					if i <= lastPerProducer[p] {
						t.Errorf("producer %d: action %d ran after %d", p, i, lastPerProducer[p])
					}
					lastPerProducer[p] = i
				})
			}
		}()
	}

	total := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for finished := false; !finished; {
		select {
		case <-done:
			finished = true
		default:
		}
		total += q.Drain(37)
	}
	total += q.Drain(producers * per)

	require.Equal(t, producers*per, total)
	assert.Len(t, seen, producers*per)
	for k, n := range seen {
		assert.Equal(t, 1, n, "action %d", k)
	}
}
