package notification

import (
	"context"

	"ticket-transaction-engine/internal/model"

	"go.uber.org/zap"
)

// Sender 實際把通知送給使用者 (email、push ...)
type Sender interface {
	Send(ctx context.Context, n *model.Notification) error
}

// LogSender 只寫 log，沒有接外部通道時使用
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, n *model.Notification) error {
	fields := []zap.Field{
		zap.String("notification_id", n.ID),
		zap.String("kind", string(n.Kind)),
		zap.Int64("transaction_id", n.TransactionID),
		zap.Time("created_at", n.CreatedAt),
	}
	for k, v := range n.Extra {
		fields = append(fields, zap.String(k, v))
	}
	s.log.Info("notification sent", fields...)
	return nil
}
