package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ticket-transaction-engine/internal/model"
	"ticket-transaction-engine/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AMQPConfig exchange 為 topic 類型，queue 以 "transaction.#" 綁定
type AMQPConfig struct {
	URL           string
	Exchange      string
	Queue         string
	PrefetchCount int
	// ReconnectDelay 重新訂閱的起始等待時間，每次失敗加倍到 maxReconnectDelay
	ReconnectDelay time.Duration
}

const (
	routingKeyPattern = "transaction.#"
	maxReconnectDelay = 30 * time.Second
)

type AMQPQueue struct {
	cfg AMQPConfig

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewAMQPQueue(cfg AMQPConfig) (*AMQPQueue, error) {
	if cfg.PrefetchCount <= 0 {
		cfg.PrefetchCount = 10
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	q := &AMQPQueue{cfg: cfg}
	if err := q.connect(); err != nil {
		return nil, err
	}
	return q, nil
}

// connect 建立連線並宣告 exchange / queue，呼叫端需持有 mu
func (q *AMQPQueue) connect() error {
	conn, err := amqp.Dial(q.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(q.cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(q.cfg.Queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.cfg.Queue, routingKeyPattern, q.cfg.Exchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("bind queue: %w", err)
	}
	q.conn = conn
	q.channel = ch
	return nil
}

func (q *AMQPQueue) ensureConnection() error {
	if q.conn == nil || q.conn.IsClosed() || q.channel == nil || q.channel.IsClosed() {
		logger.WithComponent("mq").Warn("amqp connection lost, reconnecting")
		return q.connect()
	}
	return nil
}

func (q *AMQPQueue) Publish(ctx context.Context, n *model.Notification) error {
	if !n.Kind.IsValid() {
		return fmt.Errorf("unknown notification kind %q", n.Kind)
	}
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.ensureConnection(); err != nil {
		return err
	}

	err = q.channel.PublishWithContext(ctx, q.cfg.Exchange, string(n.Kind), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    n.ID,
		Timestamp:    n.CreatedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Subscribe 連線或 channel 斷掉後會重新連線並再次 Consume，直到 ctx 結束
func (q *AMQPQueue) Subscribe(ctx context.Context) (<-chan Delivery, error) {
	msgs, closed, err := q.consume()
	if err != nil {
		return nil, err
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		consumeLoop(ctx, msgs, closed, q.consume, q.cfg.ReconnectDelay, out)
	}()
	return out, nil
}

type consumeFunc func() (<-chan amqp.Delivery, <-chan *amqp.Error, error)

// consume 開新的 consumer，並註冊 NotifyClose 取得斷線原因
func (q *AMQPQueue) consume() (<-chan amqp.Delivery, <-chan *amqp.Error, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.ensureConnection(); err != nil {
		return nil, nil, err
	}
	if err := q.channel.Qos(q.cfg.PrefetchCount, 0, false); err != nil {
		return nil, nil, fmt.Errorf("set qos: %w", err)
	}
	closed := q.channel.NotifyClose(make(chan *amqp.Error, 1))
	msgs, err := q.channel.Consume(q.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("consume: %w", err)
	}
	return msgs, closed, nil
}

func consumeLoop(ctx context.Context, msgs <-chan amqp.Delivery, closed <-chan *amqp.Error, resubscribe consumeFunc, delay time.Duration, out chan<- Delivery) {
	log := logger.WithComponent("mq")
	for {
		if !forwardAMQP(ctx, msgs, closed, out) {
			return
		}

		backoff := delay
		for {
			if ctx.Err() != nil {
				return
			}
			var err error
			msgs, closed, err = resubscribe()
			if err == nil {
				log.Info("amqp consumer resubscribed")
				break
			}
			log.Warn("amqp resubscribe failed", zap.Duration("retry_in", backoff), zap.Error(err))
			sleepCtx(ctx, backoff)
			backoff = min(backoff*2, maxReconnectDelay)
		}
	}
}

// forwardAMQP 回傳 false 表示 ctx 結束；true 表示 consumer 斷線需要重新訂閱
func forwardAMQP(ctx context.Context, msgs <-chan amqp.Delivery, closed <-chan *amqp.Error, out chan<- Delivery) bool {
	log := logger.WithComponent("mq")
	for {
		select {
		case <-ctx.Done():
			return false
		case amqpErr, ok := <-closed:
			if ok && amqpErr != nil {
				log.Warn("amqp channel closed", zap.Int("code", amqpErr.Code), zap.String("reason", amqpErr.Reason))
			}
			// 已關閉的 channel 不再 select
			closed = nil
		case msg, ok := <-msgs:
			if !ok {
				log.Warn("amqp delivery channel closed, resubscribing")
				return true
			}
			d, ok := acceptAMQPDelivery(msg)
			if !ok {
				continue
			}
			select {
			case out <- d:
			case <-ctx.Done():
				return false
			}
		}
	}
}

// acceptAMQPDelivery 無法解析的訊息直接 reject (不 requeue)
func acceptAMQPDelivery(msg amqp.Delivery) (Delivery, bool) {
	d, err := decodeAMQPDelivery(msg)
	if err != nil {
		log := logger.WithComponent("mq")
		log.Warn("discard malformed message", zap.String("message_id", msg.MessageId), zap.String("routing_key", msg.RoutingKey), zap.Error(err))
		if err := msg.Reject(false); err != nil {
			log.Error("amqp reject failed", zap.String("message_id", msg.MessageId), zap.Error(err))
		}
		return Delivery{}, false
	}
	return d, true
}

func decodeAMQPDelivery(msg amqp.Delivery) (Delivery, error) {
	var n model.Notification
	if err := json.Unmarshal(msg.Body, &n); err != nil {
		return Delivery{}, err
	}
	if !n.Kind.IsValid() {
		return Delivery{}, fmt.Errorf("unknown notification kind %q", n.Kind)
	}
	return Delivery{
		Data: &n,
		Ack: func() {
			if err := msg.Ack(false); err != nil {
				logger.WithComponent("mq").Error("amqp ack failed", zap.String("message_id", msg.MessageId), zap.Error(err))
			}
		},
		Nack: func(requeue bool) {
			if err := msg.Nack(false, requeue); err != nil {
				logger.WithComponent("mq").Error("amqp nack failed", zap.String("message_id", msg.MessageId), zap.Error(err))
			}
		},
	}, nil
}

func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.channel != nil {
		if err := q.channel.Close(); err != nil {
			return err
		}
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
