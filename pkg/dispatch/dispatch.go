// Package dispatch carries completion actions from worker goroutines to
// the single goroutine that owns the render state.
//
// Workers Enqueue from anywhere; the owner calls Drain once per tick with
// a budget. Depth is unbounded: the budget caps how many actions run per
// tick, it never rejects work.
package dispatch

import "sync"

// Action is a completion callback run on the draining goroutine.
type Action func()

// entry is an action tagged with the generation that produced it.
type entry struct {
	gen uint64
	fn  Action
}

// Queue is a multi-producer, single-consumer FIFO of actions.
// The zero value is ready to use and accepts every generation.
type Queue struct {
	mu      sync.Mutex
	items   []entry
	minGen  uint64
	dropped uint64
	failed  map[uint64]bool
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Enqueue appends fn tagged with gen. Safe for concurrent use. Actions of
// an already superseded or discarded generation are dropped immediately.
func (q *Queue) Enqueue(gen uint64, fn Action) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stale(gen) {
		q.dropped++
		return
	}
	q.items = append(q.items, entry{gen: gen, fn: fn})
}

// Supersede discards every action older than gen, now and in the future.
// Lowering the minimum is a no-op.
func (q *Queue) Supersede(gen uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if gen > q.minGen {
		q.minGen = gen
		for g := range q.failed {
			if g < gen {
				delete(q.failed, g)
			}
		}
	}
}

// Discard drops every queued action of gen and rejects any it enqueues
// later. Other generations are untouched.
func (q *Queue) Discard(gen uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if gen < q.minGen {
		return
	}
	if q.failed == nil {
		q.failed = make(map[uint64]bool)
	}
	q.failed[gen] = true
	kept := q.items[:0]
	for _, e := range q.items {
		if e.gen == gen {
			q.dropped++
			continue
		}
		kept = append(kept, e)
	}
	clear(q.items[len(kept):])
	q.items = kept
	if len(q.items) == 0 {
		q.items = nil
	}
}

// stale reports whether actions of gen must not run. Callers hold mu.
func (q *Queue) stale(gen uint64) bool {
	return gen < q.minGen || q.failed[gen]
}

// Drain runs up to budget current actions in FIFO order and returns how
// many ran. Stale actions are discarded without counting against the
// budget. Actions run outside the lock so they may Enqueue. A budget of
// zero or less runs nothing.
func (q *Queue) Drain(budget int) int {
	if budget <= 0 {
		return 0
	}
	batch := q.take(budget)
	for _, fn := range batch {
		fn()
	}
	return len(batch)
}

// take pops up to budget current actions.
func (q *Queue) take(budget int) []Action {
	q.mu.Lock()
	defer q.mu.Unlock()

	var batch []Action
	i := 0
	for ; i < len(q.items) && len(batch) < budget; i++ {
		e := q.items[i]
		if q.stale(e.gen) {
			q.dropped++
			continue
		}
		batch = append(batch, e.fn)
	}
	// Clear popped slots so their closures can be collected.
	clear(q.items[:i])
	q.items = q.items[i:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return batch
}

// Len returns the number of queued actions, stale ones included.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many stale actions have been discarded so far.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
