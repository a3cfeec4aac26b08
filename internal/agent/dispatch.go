package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	xerrors "BasicAgent-Console/internal/errors"
	"BasicAgent-Console/internal/observability/metrics"
	"BasicAgent-Console/internal/wallet"
	"BasicAgent-Console/internal/web3"
	"BasicAgent-Console/pkg/logger"
)

const (
	// DefaultMaxPayloadLength 是动作载荷的默认最大字符数。
	DefaultMaxPayloadLength = 500
	// DefaultReceiptPollInterval 是等待交易回执时的轮询间隔。
	DefaultReceiptPollInterval = time.Second
)

// DispatchRequest 描述一次状态变更调用。Owner 由调用方事先通过 Reader 读取，
// Dispatcher 不会重新读取；链上合约自身的权限检查才是最终裁决。
type DispatchRequest struct {
	Contract string
	Payload  string
	Session  wallet.Session
	Owner    string
}

// DispatchResult 是交易上链后的结果。
type DispatchResult struct {
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	GasUsed     uint64 `json:"gasUsed"`
}

// Dispatcher 通过会话绑定的钱包提交 triggerAgentAction 并等待上链。
type Dispatcher struct {
	endpoint     web3.Endpoint
	wallet       wallet.Capability
	maxPayload   int
	pollInterval time.Duration
	logger       *slog.Logger
}

// DispatcherOption 定义可选配置。
type DispatcherOption func(*Dispatcher)

// WithMaxPayloadLength 设置载荷最大字符数，0 表示不限制。
func WithMaxPayloadLength(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n < 0 {
			n = 0
		}
		d.maxPayload = n
	}
}

// WithReceiptPollInterval 设置回执轮询间隔。
func WithReceiptPollInterval(interval time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

// NewDispatcher 创建 Dispatcher。
func NewDispatcher(endpoint web3.Endpoint, w wallet.Capability, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		endpoint:     endpoint,
		wallet:       w,
		maxPayload:   DefaultMaxPayloadLength,
		pollInterval: DefaultReceiptPollInterval,
		logger:       logger.Named("action_dispatcher"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// ValidatePayload 校验载荷非空且字符数不超过 limit，limit 为 0 时不限制长度。
func ValidatePayload(payload string, limit int) error {
	if strings.TrimSpace(payload) == "" {
		return xerrors.Validation("动作数据不能为空", xerrors.WithMetadata("field", "payload"))
	}
	if limit > 0 && utf8.RuneCountInString(payload) > limit {
		return xerrors.Validation("动作数据超过长度上限", xerrors.WithMetadata("field", "payload"))
	}
	return nil
}

// Dispatch 校验前置条件，提交交易并等待回执。所有校验都在首次钱包或 RPC 调用之前完成，
// 失败时不做任何自动重试。
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (result DispatchResult, err error) {
	defer func() {
		code := "OK"
		if err != nil {
			code = string(xerrors.CodeOf(err))
		}
		metrics.ObserveDispatch(code)
	}()

	contract, err := web3.ParseAddress("合约", req.Contract)
	if err != nil {
		return DispatchResult{}, err
	}
	if err := ValidatePayload(req.Payload, d.maxPayload); err != nil {
		return DispatchResult{}, err
	}
	if !req.Session.Connected {
		return DispatchResult{}, xerrors.Validation("钱包未连接")
	}
	authorized, err := IsAuthorized(req.Session.Address.Hex(), req.Owner)
	if err != nil {
		return DispatchResult{}, err
	}
	if !authorized {
		return DispatchResult{}, xerrors.Validation("当前钱包不是合约所有者",
			xerrors.WithMetadata("wallet", req.Session.Address.Hex()),
			xerrors.WithMetadata("owner", req.Owner),
		)
	}
	if d.wallet == nil || d.endpoint == nil {
		return DispatchResult{}, xerrors.New(xerrors.CodeInitializationFailure, "未配置钱包或链端点")
	}

	input, err := agentABI.Pack(methodTrigger, req.Payload)
	if err != nil {
		return DispatchResult{}, xerrors.Wrap(xerrors.CodeDispatch, err, "编码交易数据失败")
	}

	hash, err := d.wallet.SendTransaction(ctx, wallet.TxRequest{
		From:    req.Session.Address,
		To:      contract,
		Data:    input,
		ChainID: req.Session.ChainID,
	})
	if err != nil {
		d.logger.Warn("transaction submission failed", "contract", contract.Hex(), "error", err)
		if errors.Is(err, wallet.ErrUserRejected) {
			return DispatchResult{}, xerrors.Wrap(xerrors.CodeUserRejected, err, "用户拒绝了交易")
		}
		return DispatchResult{}, xerrors.Wrap(xerrors.CodeDispatch, err, "提交交易失败")
	}
	d.logger.Info("transaction submitted", "contract", contract.Hex(), "tx_hash", hash.Hex())

	receipt, err := d.waitReceipt(ctx, hash)
	if err != nil {
		return DispatchResult{}, xerrors.Wrap(xerrors.CodeDispatch, err, "等待交易回执失败",
			xerrors.WithMetadata("tx_hash", hash.Hex()),
		)
	}

	result = DispatchResult{TxHash: hash.Hex(), GasUsed: receipt.GasUsed}
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if receipt.Status == types.ReceiptStatusFailed {
		d.logger.Warn("transaction reverted", "contract", contract.Hex(), "tx_hash", hash.Hex(), "block", result.BlockNumber)
		return result, xerrors.New(xerrors.CodeReverted, "交易执行被回滚",
			xerrors.WithMetadata("tx_hash", hash.Hex()),
		)
	}

	d.logger.Info("transaction confirmed", "contract", contract.Hex(), "tx_hash", hash.Hex(), "block", result.BlockNumber)
	return result, nil
}

// waitReceipt 轮询交易回执直到上链。ethereum.NotFound 表示交易仍在等待打包。
func (d *Dispatcher) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := d.endpoint.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, gethcore.NotFound) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
