package task_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavecast/netio/internal/task"
)

func runLoop(t *testing.T, q *task.Queue, stop <-chan struct{}) {
	t.Helper()
	go func() {
		for {
			select {
			case tk := <-q.Tasks():
				task.Run(tk)
			case <-stop:
				return
			}
		}
	}()
}

func TestQueue_SubmitRunsOnLoop(t *testing.T) {
	q := task.NewQueue(0)
	stop := make(chan struct{})
	defer close(stop)
	runLoop(t, q, stop)

	res, err := q.Submit(context.Background(), func() (any, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, res)
}

func TestQueue_SubmitPropagatesError(t *testing.T) {
	q := task.NewQueue(0)
	stop := make(chan struct{})
	defer close(stop)
	runLoop(t, q, stop)

	wantErr := errors.New("boom")
	_, err := q.Submit(context.Background(), func() (any, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestQueue_SubmitOrderingSameGoroutine(t *testing.T) {
	q := task.NewQueue(8)
	stop := make(chan struct{})
	defer close(stop)
	runLoop(t, q, stop)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 10; i++ {
		i := i
		_, err := q.Submit(context.Background(), func() (any, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil, nil
		})
		require.NoError(t, err)
	}

	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestQueue_SubmitContextCancelled(t *testing.T) {
	q := task.NewQueue(0)
	// No loop goroutine draining; submission should block until ctx expires.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Submit(ctx, func() (any, error) { return nil, nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_TrySubmitThenWait(t *testing.T) {
	q := task.NewQueue(1)
	stop := make(chan struct{})
	defer close(stop)
	runLoop(t, q, stop)

	tk := q.TrySubmit(func() (any, error) { return "done", nil })
	res, err := tk.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", res)
}
