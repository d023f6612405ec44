package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seantiz/compute/internal/model"
)

func task(id int) model.Task {
	return model.Task{ID: id, Kind: "sleep"}
}

func TestQueue_FIFO(t *testing.T) {
	q := New(0)
	for i := range 5 {
		require.NoError(t, q.Push(task(i)))
	}
	assert.Equal(t, 5, q.Len())

	for i := range 5 {
		got, err := q.Pop()
		require.NoError(t, err)
		assert.Equal(t, i, got.ID)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueue_PushAfterClose(t *testing.T) {
	q := New(0)
	q.Close()

	assert.ErrorIs(t, q.Push(task(0)), ErrQueueClosed)
	assert.True(t, q.Closed())
}

func TestQueue_CloseDrainsBeforeClosed(t *testing.T) {
	q := New(0)
	require.NoError(t, q.Push(task(0)))
	require.NoError(t, q.Push(task(1)))
	q.Close()
	q.Close() // idempotent

	got, err := q.Pop()
	require.NoError(t, err)
	assert.Equal(t, 0, got.ID)
	got, err = q.Pop()
	require.NoError(t, err)
	assert.Equal(t, 1, got.ID)

	_, err = q.Pop()
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := New(0)
	got := make(chan model.Task, 1)
	go func() {
		tk, err := q.Pop()
		if err == nil {
			got <- tk
		}
	}()

	select {
	case <-got:
		t.Fatal("Pop returned before any push")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, q.Push(task(42)))
	select {
	case tk := <-got:
		assert.Equal(t, 42, tk.ID)
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after push")
	}
}

func TestQueue_CloseWakesBlockedPop(t *testing.T) {
	q := New(0)
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Pop()
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("Close did not wake blocked Pop")
	}
}

func TestQueue_BoundedPushBlocks(t *testing.T) {
	q := New(2)
	require.NoError(t, q.Push(task(0)))
	require.NoError(t, q.Push(task(1)))

	pushed := make(chan error, 1)
	go func() { pushed <- q.Push(task(2)) }()

	select {
	case <-pushed:
		t.Fatal("Push on a full queue did not block")
	case <-time.After(20 * time.Millisecond):
	}

	_, err := q.Pop()
	require.NoError(t, err)
	select {
	case err := <-pushed:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Push did not unblock after Pop")
	}
	assert.Equal(t, 2, q.Len())
}

func TestQueue_CloseWakesBlockedPush(t *testing.T) {
	q := New(1)
	require.NoError(t, q.Push(task(0)))

	pushed := make(chan error, 1)
	go func() { pushed <- q.Push(task(1)) }()
	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-pushed:
		assert.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("Close did not wake blocked Push")
	}
}

func TestQueue_AbortReturnsPending(t *testing.T) {
	q := New(0)
	for i := range 3 {
		require.NoError(t, q.Push(task(i)))
	}

	pending := q.Abort()
	require.Len(t, pending, 3)
	for i, tk := range pending {
		assert.Equal(t, i, tk.ID)
	}

	_, err := q.Pop()
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.ErrorIs(t, q.Push(task(9)), ErrQueueClosed)
	assert.Empty(t, q.Abort())
}

func TestQueue_ConcurrentPopDeliversOnce(t *testing.T) {
	const (
		tasks   = 1000
		readers = 8
	)
	q := New(16)

	var (
		mu   sync.Mutex
		seen = make(map[int]int, tasks)
		wg   sync.WaitGroup
	)
	for range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				tk, err := q.Pop()
				if err != nil {
					return
				}
				mu.Lock()
				seen[tk.ID]++
				mu.Unlock()
			}
		}()
	}

	for i := range tasks {
		require.NoError(t, q.Push(task(i)))
	}
	q.Close()
	wg.Wait()

	require.Len(t, seen, tasks)
	for id, n := range seen {
		assert.Equal(t, 1, n, "task %d delivered %d times", id, n)
	}
}
