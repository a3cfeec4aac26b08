package notify

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	xerrors "BasicAgent-Console/internal/errors"
	"BasicAgent-Console/pkg/logger"
)

// RabbitMQConfig 描述 RabbitMQ 通知队列的连接参数。
type RabbitMQConfig struct {
	URL        string
	Queue      string
	Durable    bool
	AutoDelete bool
}

// RabbitMQBroker 使用 RabbitMQ 默认交换机投递通知。
type RabbitMQBroker struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewRabbitMQBroker 建立连接并声明队列。
func NewRabbitMQBroker(cfg RabbitMQConfig) (*RabbitMQBroker, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "agentconsole.notices"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, cfg.Durable, cfg.AutoDelete, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明 RabbitMQ 队列失败: %w", err)
	}
	return &RabbitMQBroker{conn: conn, ch: ch, queue: queue}, nil
}

// Publish 将通知以 JSON 消息投递到队列。
func (b *RabbitMQBroker) Publish(ctx context.Context, notice Notice) error {
	if b == nil || b.ch == nil {
		return errors.New("RabbitMQ 通知队列未初始化")
	}
	body, err := encode(notice)
	if err != nil {
		return err
	}
	if err := b.ch.PublishWithContext(ctx, "", b.queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   notice.ID,
		Body:        body,
	}); err != nil {
		return xerrors.Wrap(xerrors.CodePublishFailure, err, "RabbitMQ 发布通知失败")
	}
	return nil
}

// Consume 使用手动确认模式消费通知。处理失败或无法解析的消息不重新入队。
func (b *RabbitMQBroker) Consume(ctx context.Context, handler Handler) error {
	if b == nil || b.ch == nil {
		return errors.New("RabbitMQ 通知队列未初始化")
	}
	msgs, err := b.ch.ConsumeWithContext(ctx, b.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("订阅 RabbitMQ 队列失败: %w", err)
	}

	log := logger.Named("notify_rabbitmq")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			notice, err := decode(msg.Body)
			if err != nil {
				log.Warn("dropping malformed notice", "error", err)
				_ = msg.Nack(false, false)
				continue
			}
			if err := handler(ctx, notice); err != nil {
				log.Warn("notice handler failed", "id", notice.ID, "error", err)
				_ = msg.Nack(false, false)
				continue
			}
			_ = msg.Ack(false)
		}
	}
}

// Close 关闭 RabbitMQ 连接。
func (b *RabbitMQBroker) Close() error {
	if b == nil {
		return nil
	}
	if b.ch != nil {
		_ = b.ch.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

var (
	_ Broker = (*MemoryBroker)(nil)
	_ Broker = (*RedisBroker)(nil)
	_ Broker = (*RabbitMQBroker)(nil)
)
