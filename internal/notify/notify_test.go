package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "BasicAgent-Console/internal/errors"
)

func TestMemoryBrokerDelivers(t *testing.T) {
	broker := NewMemoryBroker(4)
	defer broker.Close()

	sent := NewNotice("0x01", "0x02", "custom:x", "0xaa", 7)
	if sent.ID == "" || sent.CreatedAt == 0 {
		t.Fatalf("notice missing id or timestamp: %+v", sent)
	}
	if err := broker.Publish(context.Background(), sent); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	received := make(chan Notice, 1)
	go func() {
		_ = broker.Consume(ctx, func(_ context.Context, n Notice) error {
			received <- n
			return nil
		})
	}()

	select {
	case got := <-received:
		if got != sent {
			t.Fatalf("unexpected notice: %+v", got)
		}
	case <-ctx.Done():
		t.Fatal("notice was not delivered")
	}
}

func TestMemoryBrokerClosed(t *testing.T) {
	broker := NewMemoryBroker(1)
	if err := broker.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := broker.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	if err := broker.Publish(context.Background(), Notice{}); err == nil {
		t.Fatal("expected publish on closed broker to fail")
	}
	if err := broker.Consume(context.Background(), func(context.Context, Notice) error { return nil }); err != nil {
		t.Fatalf("consume on closed broker should return nil, got %v", err)
	}
}

func TestMemoryBrokerPublishHonoursContext(t *testing.T) {
	broker := NewMemoryBroker(1)
	defer broker.Close()

	if err := broker.Publish(context.Background(), Notice{ID: "1"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := broker.Publish(ctx, Notice{ID: "2"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded on full buffer, got %v", err)
	}
}

func TestMemoryBrokerCloseReleasesBlockedPublish(t *testing.T) {
	broker := NewMemoryBroker(1)
	if err := broker.Publish(context.Background(), Notice{ID: "1"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	published := make(chan error, 1)
	go func() {
		published <- broker.Publish(context.Background(), Notice{ID: "2"})
	}()
	time.Sleep(20 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		_ = broker.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("close blocked behind a publish waiting on a full buffer")
	}

	select {
	case err := <-published:
		if !errors.Is(err, ErrBrokerClosed) {
			t.Fatalf("expected ErrBrokerClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked publish was not released by close")
	}
}

func TestMemoryBrokerConsumeDrainsAfterClose(t *testing.T) {
	broker := NewMemoryBroker(2)
	for _, id := range []string{"a", "b"} {
		if err := broker.Publish(context.Background(), Notice{ID: id}); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
	}
	_ = broker.Close()

	var got []string
	err := broker.Consume(context.Background(), func(_ context.Context, n Notice) error {
		got = append(got, n.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("consume returned %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected buffered notices to drain, got %v", got)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := decode([]byte("not json")); err == nil {
		t.Fatal("expected decode error")
	}
	body, err := encode(Notice{ID: "n1", TxHash: "0xaa", BlockNumber: 3})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if !strings.Contains(string(body), `"txHash":"0xaa"`) {
		t.Fatalf("unexpected wire format: %s", body)
	}
}

func TestRedisBrokerDefaultsAndPublishFailure(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	broker := newRedisBroker(client, RedisConfig{})
	defer broker.Close()

	if broker.queue != "agentconsole:notices" || broker.wait != 5*time.Second {
		t.Fatalf("unexpected defaults: queue=%s wait=%s", broker.queue, broker.wait)
	}
	err := broker.Publish(context.Background(), Notice{ID: "n1"})
	if err == nil || !strings.Contains(err.Error(), "Redis 发布通知失败") {
		t.Fatalf("expected publish failure, got %v", err)
	}
	if !xerrors.HasCode(err, xerrors.CodePublishFailure) {
		t.Fatalf("expected PUBLISH_FAILURE code, got %v", err)
	}
}

func TestNewRedisBrokerRequiresAddress(t *testing.T) {
	if _, err := NewRedisBroker(context.Background(), RedisConfig{}); err == nil {
		t.Fatal("expected error for empty address")
	}
}

func TestNewRabbitMQBrokerRequiresURL(t *testing.T) {
	if _, err := NewRabbitMQBroker(RabbitMQConfig{}); err == nil {
		t.Fatal("expected error for empty url")
	}
}
