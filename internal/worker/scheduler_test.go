package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"ticket-transaction-engine/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLock struct {
	available bool
	acquired  atomic.Int32
	released  atomic.Int32
}

func (l *fakeLock) Acquire(context.Context) (bool, error) {
	if !l.available {
		return false, nil
	}
	l.acquired.Add(1)
	return true, nil
}

func (l *fakeLock) Release(context.Context) error {
	l.released.Add(1)
	return nil
}

func TestScheduler(t *testing.T) {
	t.Run("runs immediately then on every tick", func(t *testing.T) {
		var runs atomic.Int32
		s := worker.NewScheduler("test", 20*time.Millisecond, nil, func(context.Context) error {
			runs.Add(1)
			return nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		s.Start(ctx)

		assert.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	})

	t.Run("job errors do not stop the loop", func(t *testing.T) {
		var runs atomic.Int32
		s := worker.NewScheduler("failing", 10*time.Millisecond, nil, func(context.Context) error {
			runs.Add(1)
			return errors.New("boom")
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		s.Start(ctx)

		assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	})

	t.Run("run is skipped when lock is held elsewhere", func(t *testing.T) {
		lock := &fakeLock{available: false}
		called := false
		s := worker.NewScheduler("locked", time.Hour, lock, func(context.Context) error {
			called = true
			return nil
		})

		ran, err := s.RunOnce(context.Background())
		require.NoError(t, err)
		assert.False(t, ran)
		assert.False(t, called)
	})

	t.Run("lock is released after the run", func(t *testing.T) {
		lock := &fakeLock{available: true}
		s := worker.NewScheduler("locked", time.Hour, lock, func(context.Context) error { return nil })

		ran, err := s.RunOnce(context.Background())
		require.NoError(t, err)
		assert.True(t, ran)
		assert.Equal(t, int32(1), lock.acquired.Load())
		assert.Equal(t, int32(1), lock.released.Load())
	})

	t.Run("Run returns when context is cancelled", func(t *testing.T) {
		s := worker.NewScheduler("stop", time.Hour, nil, func(context.Context) error { return nil })
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan struct{})
		go func() {
			s.Run(ctx)
			close(done)
		}()
		cancel()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("scheduler did not stop")
		}
	})
}
