package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestQueue_FIFO(t *testing.T) {
	ctx := testCtx(t)
	q := NewQueue[int](3)
	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Push(ctx, i))
	}
	require.Equal(t, 3, q.Len())
	for i := 1; i <= 3; i++ {
		v, err := q.Pop(ctx)
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
	require.Equal(t, 0, q.Len())
}

func TestQueue_MinimumCapacity(t *testing.T) {
	q := NewQueue[string](0)
	require.Equal(t, 1, q.Cap())
}

func TestQueue_PushBlocksWhenFull(t *testing.T) {
	q := NewQueue[int](1)
	require.NoError(t, q.Push(testCtx(t), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Push(ctx, 2)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	pushed := make(chan error, 1)
	go func() { pushed <- q.Push(testCtx(t), 3) }()
	select {
	case <-pushed:
		t.Fatalf("push returned while queue full")
	case <-time.After(20 * time.Millisecond):
	}
	v, err := q.Pop(testCtx(t))
	require.NoError(t, err)
	require.Equal(t, 1, v)
	require.NoError(t, <-pushed)
	v, err = q.Pop(testCtx(t))
	require.NoError(t, err)
	require.Equal(t, 3, v)
}

func TestQueue_PopBlocksWhenEmpty(t *testing.T) {
	q := NewQueue[int](1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := q.Pop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_CloseWakesWaiters(t *testing.T) {
	full := NewQueue[int](1)
	require.NoError(t, full.Push(testCtx(t), 1))
	empty := NewQueue[int](1)

	errs := make(chan error, 2)
	go func() { errs <- full.Push(testCtx(t), 2) }()
	go func() {
		_, err := empty.Pop(testCtx(t))
		errs <- err
	}()
	time.Sleep(10 * time.Millisecond)
	full.Close()
	empty.Close()
	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			require.True(t, errors.Is(err, ErrQueueClosed), "got %v", err)
		case <-time.After(time.Second):
			t.Fatalf("waiter not woken by close")
		}
	}
	require.True(t, full.Closed())
	full.Close() // idempotent

	_, err := full.Pop(testCtx(t))
	require.ErrorIs(t, err, ErrQueueClosed, "closed queue must not hand out buffered items")
}

// A single producer and consumer see every item exactly once, in order,
// whatever the capacity.
func TestQueue_OrderProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(1, 5).Draw(rt, "capacity")
		items := rapid.SliceOf(rapid.Int()).Draw(rt, "items")
		q := NewQueue[int](capacity)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		go func() {
			for _, v := range items {
				if err := q.Push(ctx, v); err != nil {
					return
				}
			}
		}()
		got := make([]int, 0, len(items))
		for range items {
			v, err := q.Pop(ctx)
			if err != nil {
				rt.Fatalf("pop: %v", err)
			}
			got = append(got, v)
		}
		if len(items) == 0 {
			return
		}
		if len(got) != len(items) {
			rt.Fatalf("got %d items, want %d", len(got), len(items))
		}
		for i := range items {
			if got[i] != items[i] {
				rt.Fatalf("item %d: got %d want %d", i, got[i], items[i])
			}
		}
	})
}
