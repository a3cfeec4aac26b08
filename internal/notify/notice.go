// Package notify fans out dispatch notices so that other processes watching
// the same contract know when to refresh. Notices carry no state that must be
// trusted: receivers always re-read status and events from the chain.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Notice 描述一次已上链的动作提交。
type Notice struct {
	ID          string `json:"id"`
	Contract    string `json:"contract"`
	Wallet      string `json:"wallet"`
	Payload     string `json:"payload"`
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	CreatedAt   int64  `json:"createdAt"`
}

// NewNotice 生成带 ID 与时间戳的通知。
func NewNotice(contract, wallet, payload, txHash string, blockNumber uint64) Notice {
	return Notice{
		ID:          uuid.NewString(),
		Contract:    contract,
		Wallet:      wallet,
		Payload:     payload,
		TxHash:      txHash,
		BlockNumber: blockNumber,
		CreatedAt:   time.Now().Unix(),
	}
}

// Handler 处理一条通知。
type Handler func(ctx context.Context, notice Notice) error

// Publisher 负责投递通知。
type Publisher interface {
	Publish(ctx context.Context, notice Notice) error
	Close() error
}

// Subscriber 负责消费通知，直到 ctx 结束。
type Subscriber interface {
	Consume(ctx context.Context, handler Handler) error
	Close() error
}

// Broker 同时具备投递与消费能力。
type Broker interface {
	Publisher
	Subscriber
}

func encode(notice Notice) ([]byte, error) {
	body, err := json.Marshal(notice)
	if err != nil {
		return nil, fmt.Errorf("序列化通知失败: %w", err)
	}
	return body, nil
}

func decode(body []byte) (Notice, error) {
	var notice Notice
	if err := json.Unmarshal(body, &notice); err != nil {
		return Notice{}, fmt.Errorf("解析通知失败: %w", err)
	}
	return notice, nil
}
