package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := New[string]()

	for _, s := range []string{"A", "B", "C"} {
		require.True(t, q.Enqueue(s))
	}

	for _, want := range []string{"A", "B", "C"} {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestQueue_TryDequeue_Empty(t *testing.T) {
	q := New[int]()

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestQueue_Dequeue_BlocksUntilAvailable(t *testing.T) {
	q := New[string]()
	done := make(chan string)

	go func() {
		if s, ok := q.Dequeue(context.Background()); ok {
			done <- s
		}
	}()

	// Give goroutine time to block
	time.Sleep(10 * time.Millisecond)
	q.Enqueue("late")

	select {
	case s := <-done:
		assert.Equal(t, "late", s)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not unblock")
	}
}

func TestQueue_Dequeue_ContextCancel(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool)
	go func() {
		_, ok := q.Dequeue(ctx)
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not unblock after cancel")
	}
}

func TestQueue_Close_DrainsThenStops(t *testing.T) {
	q := New[int]()
	q.Enqueue(1)
	q.Close()

	assert.False(t, q.Enqueue(2), "enqueue after close should return false")

	v, ok := q.Dequeue(context.Background())
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = q.Dequeue(context.Background())
	assert.False(t, ok)

	q.Close()
}

func TestQueue_Len(t *testing.T) {
	q := New[int]()
	assert.Equal(t, 0, q.Len())

	q.Enqueue(1)
	q.Enqueue(2)
	assert.Equal(t, 2, q.Len())

	q.TryDequeue()
	assert.Equal(t, 1, q.Len())
}

func TestQueue_ThreadSafe(t *testing.T) {
	q := New[int]()

	const producers = 10
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(id*1000 + i)
			}
		}(p)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := 0
	for received < producers*perProducer {
		if _, ok := q.Dequeue(ctx); !ok {
			t.Fatalf("consumer timeout: received %d items", received)
		}
		received++
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer, received)
}
