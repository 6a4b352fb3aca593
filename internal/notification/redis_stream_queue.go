package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"ticket-transaction-engine/internal/model"
	"ticket-transaction-engine/internal/monitoring"
	"ticket-transaction-engine/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// StreamKeyPrefix 每種通知一條 stream：transactions:notifications:<kind>
	StreamKeyPrefix    = "transactions:notifications"
	DeadLetterStream   = "transactions:notifications:dead"
	ConsumerGroupName  = "notification-workers"
	ConsumerNamePrefix = "notifier"

	payloadField = "notification"
)

// StreamKeyFor 通知類型對應的 stream
func StreamKeyFor(kind model.NotificationKind) string {
	return StreamKeyPrefix + ":" + string(kind)
}

func kindOfStream(stream string) model.NotificationKind {
	return model.NotificationKind(strings.TrimPrefix(stream, StreamKeyPrefix+":"))
}

// RedisStreamConfig 零值欄位使用預設
type RedisStreamConfig struct {
	// Kinds 這個 consumer 要處理的通知類型，空值為全部
	Kinds []model.NotificationKind
	// ReclaimIdle 未 ack 超過此時間的訊息會被重新領取
	ReclaimIdle time.Duration
	// MaxDeliveries 投遞次數達上限就移到 dead-letter stream
	MaxDeliveries int64
	BlockTime     time.Duration
	BatchSize     int64
}

func (c *RedisStreamConfig) withDefaults() RedisStreamConfig {
	cfg := RedisStreamConfig{
		Kinds:         model.NotificationKinds,
		ReclaimIdle:   30 * time.Second,
		MaxDeliveries: 5,
		BlockTime:     2 * time.Second,
		BatchSize:     10,
	}
	if c == nil {
		return cfg
	}
	if len(c.Kinds) > 0 {
		cfg.Kinds = c.Kinds
	}
	if c.ReclaimIdle > 0 {
		cfg.ReclaimIdle = c.ReclaimIdle
	}
	if c.MaxDeliveries > 0 {
		cfg.MaxDeliveries = c.MaxDeliveries
	}
	if c.BlockTime > 0 {
		cfg.BlockTime = c.BlockTime
	}
	if c.BatchSize > 0 {
		cfg.BatchSize = c.BatchSize
	}
	return cfg
}

// RedisStreamQueue 依通知類型分 stream；重試過多或無法解析的訊息移到 DeadLetterStream
type RedisStreamQueue struct {
	client   *redis.Client
	consumer string
	streams  []string
	cfg      RedisStreamConfig
	log      *zap.Logger
}

func NewRedisStreamQueue(ctx context.Context, client *redis.Client, consumerID string, config *RedisStreamConfig) (*RedisStreamQueue, error) {
	if consumerID == "" {
		consumerID = uuid.New().String()
	}
	cfg := config.withDefaults()

	q := &RedisStreamQueue{
		client:   client,
		consumer: ConsumerNamePrefix + ":" + consumerID,
		cfg:      cfg,
		log:      logger.WithComponent("mq"),
	}
	for _, kind := range cfg.Kinds {
		if !kind.IsValid() {
			return nil, fmt.Errorf("unknown notification kind %q", kind)
		}
		stream := StreamKeyFor(kind)
		err := client.XGroupCreateMkStream(ctx, stream, ConsumerGroupName, "0").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return nil, fmt.Errorf("create consumer group on %s: %w", stream, err)
		}
		q.streams = append(q.streams, stream)
	}
	return q, nil
}

// Publish 寫到該類型的 stream；未知類型直接拒絕
func (q *RedisStreamQueue) Publish(ctx context.Context, n *model.Notification) error {
	if !n.Kind.IsValid() {
		return fmt.Errorf("unknown notification kind %q", n.Kind)
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	err = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKeyFor(n.Kind),
		ID:     "*",
		Values: []interface{}{payloadField, string(payload)},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", n.Kind, err)
	}
	return nil
}

// Subscribe 同時跑讀取新訊息與領回逾時訊息兩個迴圈，ctx 結束後兩者都停下才關閉 channel
func (q *RedisStreamQueue) Subscribe(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			deliveries, err := q.readNew(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				q.log.Error("XReadGroup failed", zap.Error(err))
				sleepCtx(ctx, time.Second)
				continue
			}
			if !forward(ctx, deliveries, out) {
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(q.cfg.ReclaimIdle)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, stream := range q.streams {
					if !forward(ctx, q.reclaim(ctx, stream), out) {
						return
					}
				}
			}
		}
	}()
	go func() {
		wg.Wait()
		close(out)
	}()

	return out, nil
}

func forward(ctx context.Context, deliveries []Delivery, out chan<- Delivery) bool {
	for _, d := range deliveries {
		select {
		case out <- d:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// readNew 一次讀所有類型 stream 的新訊息 (">")
func (q *RedisStreamQueue) readNew(ctx context.Context) ([]Delivery, error) {
	args := make([]string, 0, len(q.streams)*2)
	args = append(args, q.streams...)
	for range q.streams {
		args = append(args, ">")
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroupName,
		Consumer: q.consumer,
		Streams:  args,
		Count:    q.cfg.BatchSize,
		Block:    q.cfg.BlockTime,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var deliveries []Delivery
	for _, s := range streams {
		for _, msg := range s.Messages {
			if d, ok := q.toDelivery(ctx, s.Stream, msg, 1); ok {
				deliveries = append(deliveries, d)
			}
		}
	}
	return deliveries, nil
}

// reclaim 領回閒置過久的訊息；投遞次數已達 MaxDeliveries 的移到 dead-letter
func (q *RedisStreamQueue) reclaim(ctx context.Context, stream string) []Delivery {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  ConsumerGroupName,
		Idle:   q.cfg.ReclaimIdle,
		Start:  "-",
		End:    "+",
		Count:  q.cfg.BatchSize,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			q.log.Error("XPendingExt failed", zap.String("stream", stream), zap.Error(err))
		}
		return nil
	}
	if len(pending) == 0 {
		return nil
	}

	deliveredTimes := make(map[string]int64, len(pending))
	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		deliveredTimes[p.ID] = p.RetryCount
		ids = append(ids, p.ID)
	}

	claimed, err := q.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    ConsumerGroupName,
		Consumer: q.consumer,
		MinIdle:  q.cfg.ReclaimIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			q.log.Error("XClaim failed", zap.String("stream", stream), zap.Error(err))
		}
		return nil
	}

	var deliveries []Delivery
	for _, msg := range claimed {
		times := deliveredTimes[msg.ID]
		if times >= q.cfg.MaxDeliveries {
			q.deadLetter(ctx, stream, msg, fmt.Sprintf("delivered %d times", times), times)
			continue
		}
		if d, ok := q.toDelivery(ctx, stream, msg, times+1); ok {
			deliveries = append(deliveries, d)
		}
	}
	return deliveries
}

// toDelivery 無法解析的訊息直接移到 dead-letter
func (q *RedisStreamQueue) toDelivery(ctx context.Context, stream string, msg redis.XMessage, times int64) (Delivery, bool) {
	n, err := decodeStreamMessage(msg)
	if err != nil {
		q.deadLetter(ctx, stream, msg, err.Error(), times)
		return Delivery{}, false
	}

	msgID := msg.ID
	return Delivery{
		Data: n,
		Ack: func() {
			q.ack(ctx, stream, msgID)
		},
		Nack: func(requeue bool) {
			if requeue {
				// 留在 PEL，ReclaimIdle 後重新領取
				q.log.Info("notification will be retried",
					zap.String("message_id", msgID),
					zap.String("kind", string(n.Kind)),
					zap.Int64("transaction_id", n.TransactionID),
					zap.Int64("deliveries", times),
				)
				return
			}
			q.deadLetter(ctx, stream, msg, "rejected by consumer", times)
		},
	}, true
}

func decodeStreamMessage(msg redis.XMessage) (*model.Notification, error) {
	raw, ok := msg.Values[payloadField].(string)
	if !ok {
		return nil, errors.New("missing notification field")
	}
	var n model.Notification
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	return &n, nil
}

// deadLetter 寫入 dead-letter stream 後才 ack 原訊息；寫入失敗則留在 PEL 下次再試
func (q *RedisStreamQueue) deadLetter(ctx context.Context, stream string, msg redis.XMessage, reason string, times int64) {
	kind := kindOfStream(stream)
	values := []interface{}{
		"source_stream", stream,
		"source_id", msg.ID,
		"kind", string(kind),
		"reason", reason,
		"deliveries", strconv.FormatInt(times, 10),
	}
	fields := []zap.Field{
		zap.String("message_id", msg.ID),
		zap.String("kind", string(kind)),
		zap.String("reason", reason),
	}
	if n, err := decodeStreamMessage(msg); err == nil {
		values = append(values,
			"notification_id", n.ID,
			"transaction_id", strconv.FormatInt(n.TransactionID, 10),
		)
		fields = append(fields, zap.Int64("transaction_id", n.TransactionID))
	}
	if raw, ok := msg.Values[payloadField].(string); ok {
		values = append(values, payloadField, raw)
	}

	err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStream,
		ID:     "*",
		Values: values,
	}).Err()
	if err != nil {
		monitoring.TrackNotification(string(kind), "dead_letter", "failed")
		q.log.Error("dead-letter notification failed", append(fields, zap.Error(err))...)
		return
	}

	monitoring.TrackNotification(string(kind), "dead_letter", "ok")
	q.log.Warn("notification moved to dead-letter stream", fields...)
	q.ack(ctx, stream, msg.ID)
}

func (q *RedisStreamQueue) ack(ctx context.Context, stream, msgID string) {
	if err := q.client.XAck(ctx, stream, ConsumerGroupName, msgID).Err(); err != nil {
		q.log.Error("XAck failed", zap.String("stream", stream), zap.String("message_id", msgID), zap.Error(err))
	}
}
