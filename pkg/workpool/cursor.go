// Package workpool provides the fan-out/fan-in primitives the generation
// pipeline is built from: a shared index cursor that hands out disjoint
// work items, a count-down latch whose last arrival runs a continuation,
// and Spawn, which runs a phase either on N goroutines or inline.
package workpool

import "sync/atomic"

// Cursor hands out the indices [0, total) exactly once each. Any number of
// goroutines may call Next concurrently.
type Cursor struct {
	next  atomic.Int64
	total int64
}

// NewCursor returns a cursor over [0, total).
func NewCursor(total int) *Cursor {
	c := &Cursor{}
	c.Reset(total)
	return c
}

// Reset re-arms the cursor over [0, total). It must not race with Next.
func (c *Cursor) Reset(total int) {
	if total < 0 {
		total = 0
	}
	c.total = int64(total)
	c.next.Store(0)
}

// Next claims the next unclaimed index. ok is false once the range is
// exhausted; after that every call returns false.
func (c *Cursor) Next() (index int, ok bool) {
	i := c.next.Add(1) - 1
	if i >= c.total {
		return 0, false
	}
	return int(i), true
}

// Stop exhausts the cursor so that no further indices are handed out.
func (c *Cursor) Stop() {
	c.next.Store(c.total)
}

// Total returns the size of the range.
func (c *Cursor) Total() int {
	return int(c.total)
}
