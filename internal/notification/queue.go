package notification

import (
	"context"

	"ticket-transaction-engine/internal/model"
)

type Delivery struct {
	Data *model.Notification
	Ack  func()
	Nack func(requeue bool)
}

type Queue interface {
	// 發送通知到隊列
	Publish(ctx context.Context, n *model.Notification) error
	// 訂閱通知隊列
	Subscribe(ctx context.Context) (<-chan Delivery, error)
}

type MemoryQueue struct {
	ch chan *model.Notification
}

// NewMemoryQueue 單一 process 用的 channel 隊列 (測試、本機開發)
func NewMemoryQueue(bufferSize int) *MemoryQueue {
	return &MemoryQueue{
		ch: make(chan *model.Notification, bufferSize),
	}
}

func (q *MemoryQueue) Publish(ctx context.Context, n *model.Notification) error {
	select {
	case q.ch <- n:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Subscribe(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-q.ch:
				if !ok {
					return
				}

				d := Delivery{
					Data: n,
					Ack:  func() {},
					Nack: func(requeue bool) {
						if !requeue {
							return
						}
						// 重回隊列，隊列已滿則丟棄
						select {
						case q.ch <- n:
						default:
						}
					},
				}
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
