package workpool

import (
	"fmt"
	"sync/atomic"
)

// Latch is a single-use count-down barrier. Each of the n participants calls
// Arrive once; the participant that brings the count to zero runs the
// registered continuation on its own goroutine. Create one latch per phase.
type Latch struct {
	remaining atomic.Int64
	then      func()
}

// NewLatch returns a latch expecting n arrivals that runs then (which may be
// nil) on the last one. n must be at least 1.
func NewLatch(n int, then func()) *Latch {
	if n < 1 {
		panic(fmt.Sprintf("workpool: latch needs at least one participant, got %d", n))
	}
	l := &Latch{then: then}
	l.remaining.Store(int64(n))
	return l
}

// Arrive records one arrival and reports whether it was the last. The last
// arrival runs the continuation before returning. Arriving more often than
// the latch was created for panics.
func (l *Latch) Arrive() bool {
	r := l.remaining.Add(-1)
	switch {
	case r > 0:
		return false
	case r < 0:
		panic("workpool: latch arrived more times than participants")
	}
	if l.then != nil {
		l.then()
	}
	return true
}

// Remaining returns the number of arrivals still outstanding.
func (l *Latch) Remaining() int {
	return int(l.remaining.Load())
}
