package worker

import (
	"context"
	"time"

	"ticket-transaction-engine/internal/monitoring"
	"ticket-transaction-engine/internal/notification"
	"ticket-transaction-engine/pkg/logger"

	"go.uber.org/zap"
)

const sendTimeout = 10 * time.Second

type NotificationWorker interface {
	// 訂閱通知隊列
	Start(ctx context.Context) error
}

type NotificationWorkerImpl struct {
	queue  notification.Queue
	sender notification.Sender
	log    *zap.Logger
}

func NewNotificationWorker(queue notification.Queue, sender notification.Sender) NotificationWorker {
	return &NotificationWorkerImpl{
		queue:  queue,
		sender: sender,
		log:    logger.WithComponent("notification"),
	}
}

func (w *NotificationWorkerImpl) Start(ctx context.Context) error {
	msgs, err := w.queue.Subscribe(ctx)
	if err != nil {
		return err
	}

	go func() {
		defer func() {
			if ctx.Err() != nil {
				w.log.Info("notification worker stopped")
				return
			}
			// 隊列自己關閉，之後不會再有通知送出
			w.log.Error("notification queue closed, worker stopped")
		}()

		for msg := range msgs {
			kind := string(msg.Data.Kind)

			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			err := w.sender.Send(sendCtx, msg.Data)
			cancel()

			if err != nil {
				// 送不出去就放回隊列重試
				monitoring.TrackNotification(kind, "deliver", "failed")
				w.log.Warn("deliver notification failed",
					zap.String("notification_id", msg.Data.ID),
					zap.String("kind", kind),
					zap.Int64("transaction_id", msg.Data.TransactionID),
					zap.Error(err),
				)
				msg.Nack(true)
				continue
			}
			monitoring.TrackNotification(kind, "deliver", "ok")
			msg.Ack()
		}
	}()
	return nil
}
