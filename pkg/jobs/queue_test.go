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

func TestQueueRunsJobsInOrder(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	done := make(chan struct{})
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		mu.Lock()
		seen = append(seen, job.ID)
		n := len(seen)
		mu.Unlock()
		if n == 3 {
			close(done)
		}
		return nil
	}, QueueConfig{BufferSize: 4})

	q.Start(context.Background())
	defer q.Stop()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(Job{ID: id, Type: "import"}))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("jobs did not finish")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestQueueDoesNotRetryFailedJobs(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	first := make(chan struct{})
	second := make(chan struct{})
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		mu.Lock()
		calls++
		mu.Unlock()
		if job.ID == "fail" {
			close(first)
			return errors.New("boom")
		}
		close(second)
		return nil
	}, QueueConfig{})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "fail"}))
	require.NoError(t, q.Enqueue(Job{ID: "ok"}))

	<-first
	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("second job did not run")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls)
}

func TestEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	err := q.Enqueue(Job{ID: "x"})
	assert.Error(t, err)
}
