package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueDispatchesByType(t *testing.T) {
	q := NewQueue("test", QueueConfig{Workers: 1})

	var mu sync.Mutex
	seen := make(map[string]int)
	done := make(chan struct{}, 2)

	q.Register("a", func(ctx context.Context, job Job) error {
		mu.Lock()
		seen["a"]++
		mu.Unlock()
		done <- struct{}{}
		return nil
	})
	q.Register("b", func(ctx context.Context, job Job) error {
		mu.Lock()
		seen["b"]++
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1", Type: "a"}))
	require.NoError(t, q.Enqueue(Job{ID: "2", Type: "b"}))

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, seen["a"])
	assert.Equal(t, 1, seen["b"])
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	q := NewQueue("test", QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: 10 * time.Millisecond})

	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{})

	q.Register("flaky", func(ctx context.Context, job Job) error {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 2 {
			return errors.New("transient")
		}
		close(done)
		return nil
	})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1", Type: "flaky"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried")
	}
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("test", QueueConfig{})
	err := q.Enqueue(Job{ID: "1", Type: "a"})
	require.Error(t, err)
}
