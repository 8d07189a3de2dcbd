package workpool

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// ErrPanic is matched (via errors.Is) by every error produced from a
// recovered worker panic.
var ErrPanic = errors.New("workpool: worker panicked")

// PanicError carries the value and stack of a recovered panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error { return ErrPanic }

// ItemError reports the work item whose processing failed.
type ItemError struct {
	Index int
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// Phase is one data-parallel stage: Work is called once for every index in
// [0, Items), and Done runs exactly once after every worker has finished,
// on the goroutine of the last worker to finish.
type Phase struct {
	Items int
	Work  func(i int) error

	// Done receives the first failure as an *ItemError, or nil.
	Done func(err error)
}

// Resolve returns the worker count for a configured thread count: the
// smaller of configured and the number of CPUs. A result of zero or less
// means phases run inline.
func Resolve(configured int) int {
	if n := runtime.NumCPU(); configured > n {
		return n
	}
	return configured
}

// Spawn runs p on workers goroutines and returns immediately. With
// workers <= 0 the phase runs inline on the calling goroutine and Done has
// been called by the time Spawn returns.
//
// After the first failure the remaining indices are no longer handed out;
// items already claimed by other workers still finish.
func Spawn(workers int, p Phase) {
	cursor := NewCursor(p.Items)

	var (
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cursor.Stop()
		})
	}

	n := workers
	if n <= 0 {
		n = 1
	}
	latch := NewLatch(n, func() {
		if p.Done != nil {
			p.Done(firstErr)
		}
	})

	worker := func() {
		defer latch.Arrive()
		for {
			i, ok := cursor.Next()
			if !ok {
				return
			}
			if err := runItem(p.Work, i); err != nil {
				fail(&ItemError{Index: i, Err: err})
				return
			}
		}
	}

	if workers <= 0 {
		worker()
		return
	}
	for w := 0; w < workers; w++ {
		go worker()
	}
}

// runItem calls work(i), converting a panic into a *PanicError.
func runItem(work func(int) error, i int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return work(i)
}
