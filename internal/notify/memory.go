package notify

import (
	"context"
	"errors"
	"sync"
)

// MemoryBroker 使用 channel 在进程内传递通知，主要用于单机运行与测试。
// 通知 channel 从不关闭，关闭信号通过 done 广播。
type MemoryBroker struct {
	ch        chan Notice
	done      chan struct{}
	closeOnce sync.Once
}

// ErrBrokerClosed 表示 broker 已关闭。
var ErrBrokerClosed = errors.New("通知队列已关闭")

// NewMemoryBroker 创建内存 broker。
func NewMemoryBroker(size int) *MemoryBroker {
	if size <= 0 {
		size = 64
	}
	return &MemoryBroker{ch: make(chan Notice, size), done: make(chan struct{})}
}

// Publish 投递通知，缓冲区已满时阻塞直到 ctx 结束或 broker 关闭。
func (b *MemoryBroker) Publish(ctx context.Context, notice Notice) error {
	select {
	case <-b.done:
		return ErrBrokerClosed
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return ErrBrokerClosed
	case b.ch <- notice:
		return nil
	}
}

// Consume 依次处理通知，处理失败的通知直接丢弃。broker 关闭后先处理完
// 缓冲区中剩余的通知再返回。
func (b *MemoryBroker) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case notice := <-b.ch:
			_ = handler(ctx, notice)
		case <-b.done:
			for {
				select {
				case notice := <-b.ch:
					_ = handler(ctx, notice)
				default:
					return nil
				}
			}
		}
	}
}

// Close 关闭 broker，之后的 Publish 返回 ErrBrokerClosed，阻塞中的 Publish 立即返回。
func (b *MemoryBroker) Close() error {
	b.closeOnce.Do(func() { close(b.done) })
	return nil
}
