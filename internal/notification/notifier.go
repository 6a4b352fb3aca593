package notification

import (
	"context"
	"time"

	"ticket-transaction-engine/internal/model"
	"ticket-transaction-engine/internal/monitoring"
	"ticket-transaction-engine/pkg/clock"
	"ticket-transaction-engine/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notifier 通知為 best-effort：失敗只記 log，不影響已 commit 的交易
type Notifier interface {
	Notify(ctx context.Context, kind model.NotificationKind, transactionID int64, extra map[string]string)
}

const publishTimeout = 5 * time.Second

type QueueNotifier struct {
	queue Queue
	clock clock.Clock
}

func NewQueueNotifier(queue Queue, clk clock.Clock) *QueueNotifier {
	return &QueueNotifier{queue: queue, clock: clk}
}

// Notify 非同步送出，不等待結果；呼叫端的 ctx 取消不會中斷發送
func (n *QueueNotifier) Notify(ctx context.Context, kind model.NotificationKind, transactionID int64, extra map[string]string) {
	msg := &model.Notification{
		ID:            uuid.NewString(),
		Kind:          kind,
		TransactionID: transactionID,
		Extra:         extra,
		CreatedAt:     n.clock.Now(),
	}

	go func() {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()

		if err := n.queue.Publish(pubCtx, msg); err != nil {
			monitoring.TrackNotification(string(kind), "publish", "failed")
			logger.WithComponent("notification").Warn("publish notification failed",
				zap.String("kind", string(kind)),
				zap.Int64("transaction_id", transactionID),
				zap.Error(err),
			)
			return
		}
		monitoring.TrackNotification(string(kind), "publish", "ok")
	}()
}
