package notification

import (
	"context"
	"testing"
	"time"

	"ticket-transaction-engine/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Delivery) Delivery {
	t.Helper()
	select {
	case d, ok := <-ch:
		require.True(t, ok, "delivery channel closed")
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	return Delivery{}
}

func TestMemoryQueue(t *testing.T) {
	t.Run("publish then subscribe", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := NewMemoryQueue(4)
		require.NoError(t, q.Publish(ctx, &model.Notification{ID: "n-1", Kind: model.NotificationCreated, TransactionID: 1}))

		ch, err := q.Subscribe(ctx)
		require.NoError(t, err)

		d := receive(t, ch)
		assert.Equal(t, "n-1", d.Data.ID)
		d.Ack()
	})

	t.Run("nack requeue delivers again", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := NewMemoryQueue(4)
		require.NoError(t, q.Publish(ctx, &model.Notification{ID: "n-2", Kind: model.NotificationExpired, TransactionID: 2}))

		ch, err := q.Subscribe(ctx)
		require.NoError(t, err)

		first := receive(t, ch)
		first.Nack(true)

		second := receive(t, ch)
		assert.Equal(t, "n-2", second.Data.ID)
	})

	t.Run("publish respects cancelled context when full", func(t *testing.T) {
		q := NewMemoryQueue(1)
		require.NoError(t, q.Publish(context.Background(), &model.Notification{ID: "a"}))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := q.Publish(ctx, &model.Notification{ID: "b"})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("subscription closes with context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		q := NewMemoryQueue(1)

		ch, err := q.Subscribe(ctx)
		require.NoError(t, err)
		cancel()

		assert.Eventually(t, func() bool {
			_, ok := <-ch
			return !ok
		}, time.Second, 10*time.Millisecond)
	})
}
