package workpool

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorSequential(t *testing.T) {
	c := NewCursor(3)
	var got []int
	for {
		i, ok := c.Next()
		if !ok {
			break
		}
		got = append(got, i)
	}
	assert.Equal(t, []int{0, 1, 2}, got)

	_, ok := c.Next()
	assert.False(t, ok, "exhausted cursor stays exhausted")
}

func TestCursorZeroAndNegative(t *testing.T) {
	for _, total := range []int{0, -4} {
		c := NewCursor(total)
		_, ok := c.Next()
		assert.False(t, ok)
		assert.Equal(t, 0, c.Total())
	}
}

func TestCursorConcurrentClaimsAreDisjoint(t *testing.T) {
	const total = 10000
	c := NewCursor(total)

	var mu sync.Mutex
	var claimed []int
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var local []int
			for {
				i, ok := c.Next()
				if !ok {
					break
				}
				local = append(local, i)
			}
			mu.Lock()
			claimed = append(claimed, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, claimed, total)
	sort.Ints(claimed)
	for i, v := range claimed {
		if v != i {
			t.Fatalf("claimed[%d] = %d, want %d", i, v, i)
		}
	}
}

func TestCursorStopAndReset(t *testing.T) {
	c := NewCursor(5)
	c.Next()
	c.Stop()
	_, ok := c.Next()
	assert.False(t, ok)

	c.Reset(2)
	i, ok := c.Next()
	assert.True(t, ok)
	assert.Equal(t, 0, i)
}

func TestLatchExactlyOneLast(t *testing.T) {
	const n = 64
	var fired atomic.Int32
	l := NewLatch(n, func() { fired.Add(1) })

	var lasts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Arrive() {
				lasts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), lasts.Load())
	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, 0, l.Remaining())
}

func TestLatchOverArrivalPanics(t *testing.T) {
	l := NewLatch(1, nil)
	assert.True(t, l.Arrive())
	assert.Panics(t, func() { l.Arrive() })
}

func TestLatchNeedsParticipants(t *testing.T) {
	assert.Panics(t, func() { NewLatch(0, nil) })
}

func TestSpawnInline(t *testing.T) {
	var seen []int
	var doneErr error
	called := false
	Spawn(0, Phase{
		Items: 4,
		Work: func(i int) error {
			seen = append(seen, i)
			return nil
		},
		Done: func(err error) {
			called = true
			doneErr = err
		},
	})

	// Inline mode has finished by the time Spawn returns.
	require.True(t, called)
	assert.NoError(t, doneErr)
	assert.Equal(t, []int{0, 1, 2, 3}, seen)
}

func TestSpawnWorkersVisitEveryIndexOnce(t *testing.T) {
	const items = 500
	counts := make([]int32, items)
	done := make(chan error, 1)

	Spawn(6, Phase{
		Items: items,
		Work: func(i int) error {
			atomic.AddInt32(&counts[i], 1)
			return nil
		},
		Done: func(err error) { done <- err },
	})

	require.NoError(t, <-done)
	for i, c := range counts {
		if c != 1 {
			t.Fatalf("index %d visited %d times", i, c)
		}
	}
}

func TestSpawnZeroItems(t *testing.T) {
	done := make(chan error, 1)
	Spawn(3, Phase{
		Items: 0,
		Work:  func(int) error { t.Error("no work expected"); return nil },
		Done:  func(err error) { done <- err },
	})
	assert.NoError(t, <-done)
}

func TestSpawnReportsFirstError(t *testing.T) {
	boom := errors.New("boom")
	done := make(chan error, 1)
	Spawn(0, Phase{
		Items: 10,
		Work: func(i int) error {
			if i == 3 {
				return boom
			}
			return nil
		},
		Done: func(err error) { done <- err },
	})

	err := <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var ie *ItemError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 3, ie.Index)
}

func TestSpawnRecoversPanics(t *testing.T) {
	done := make(chan error, 1)
	Spawn(4, Phase{
		Items: 20,
		Work: func(i int) error {
			if i == 7 {
				panic("bad tract")
			}
			return nil
		},
		Done: func(err error) { done <- err },
	})

	err := <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPanic)

	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "bad tract", pe.Value)
	assert.NotEmpty(t, pe.Stack)
}

func TestResolve(t *testing.T) {
	assert.Equal(t, 0, Resolve(0))
	assert.Equal(t, -1, Resolve(-1))
	assert.Equal(t, 1, Resolve(1))
	assert.LessOrEqual(t, Resolve(1<<20), 1<<20)
}
