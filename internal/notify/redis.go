package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "BasicAgent-Console/internal/errors"
	"BasicAgent-Console/pkg/logger"
)

// RedisConfig 描述 Redis list 通知队列的连接参数。
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	Queue     string
	BlockWait time.Duration
}

// RedisBroker 使用 Redis list 传递通知：LPUSH 投递，BRPOP 消费。
type RedisBroker struct {
	client *redis.Client
	queue  string
	wait   time.Duration
}

// NewRedisBroker 创建 Redis broker 并检查连通性。
func NewRedisBroker(ctx context.Context, cfg RedisConfig) (*RedisBroker, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return newRedisBroker(client, cfg), nil
}

func newRedisBroker(client *redis.Client, cfg RedisConfig) *RedisBroker {
	queue := cfg.Queue
	if queue == "" {
		queue = "agentconsole:notices"
	}
	wait := cfg.BlockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisBroker{client: client, queue: queue, wait: wait}
}

// Publish 将通知写入 Redis list。
func (b *RedisBroker) Publish(ctx context.Context, notice Notice) error {
	body, err := encode(notice)
	if err != nil {
		return err
	}
	if err := b.client.LPush(ctx, b.queue, body).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodePublishFailure, err, "Redis 发布通知失败")
	}
	return nil
}

// Consume 通过 BRPOP 读取通知，无法解析的消息记录日志后跳过。
func (b *RedisBroker) Consume(ctx context.Context, handler Handler) error {
	log := logger.Named("notify_redis")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		values, err := b.client.BRPop(ctx, b.wait, b.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			return fmt.Errorf("Redis 读取通知失败: %w", err)
		}
		if len(values) != 2 {
			continue
		}
		notice, err := decode([]byte(values[1]))
		if err != nil {
			log.Warn("dropping malformed notice", "error", err)
			continue
		}
		if err := handler(ctx, notice); err != nil {
			log.Warn("notice handler failed", "id", notice.ID, "error", err)
		}
	}
}

// Close 关闭 Redis 连接。
func (b *RedisBroker) Close() error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Close()
}
