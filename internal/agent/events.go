package agent

import (
	"context"
	"log/slog"
	"math/big"
	"sort"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	xerrors "BasicAgent-Console/internal/errors"
	"BasicAgent-Console/internal/web3"
	"BasicAgent-Console/pkg/logger"
)

// LookbackWindow 是事件扫描向前回溯的固定区块数，用于约束单次查询的 RPC 成本。
const LookbackWindow uint64 = 5000

// DefaultPageLimit 是未指定 limit 时的分页大小。
const DefaultPageLimit = 10

// PageRequest 描述一次分页请求。
type PageRequest struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Validate 校验分页参数：limit 必须为正，offset 不能为负。
func (p PageRequest) Validate() error {
	if p.Limit <= 0 {
		return xerrors.Validation("limit 必须大于 0", xerrors.WithMetadata("field", "limit"))
	}
	if p.Offset < 0 {
		return xerrors.Validation("offset 不能为负数", xerrors.WithMetadata("field", "offset"))
	}
	return nil
}

// ActionEvent 是一次已上链的动作事件。
type ActionEvent struct {
	Data        string `json:"data"`
	Timestamp   uint64 `json:"timestamp"`
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
}

// PageResult 是分页结果。TotalScanned 只统计回溯窗口内找到的事件数，
// 不是链上历史事件总数。
type PageResult struct {
	Events       []ActionEvent `json:"events"`
	TotalScanned int           `json:"totalScanned"`
}

// StartBlock 计算窗口起点 max(0, latest-LookbackWindow)。
func StartBlock(latest uint64) uint64 {
	if latest < LookbackWindow {
		return 0
	}
	return latest - LookbackWindow
}

// Paginator 在固定区块窗口内扫描动作事件。
type Paginator struct {
	endpoint web3.Endpoint
	explorer web3.ChainDefinition
	logger   *slog.Logger
}

// PaginatorOption 定义可选配置。
type PaginatorOption func(*Paginator)

// WithTxExplorer 为事件附加交易浏览器链接。
func WithTxExplorer(chain web3.ChainDefinition) PaginatorOption {
	return func(p *Paginator) {
		p.explorer = chain
	}
}

// NewPaginator 创建 Paginator。
func NewPaginator(endpoint web3.Endpoint, opts ...PaginatorOption) *Paginator {
	p := &Paginator{endpoint: endpoint, logger: logger.Named("event_paginator")}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// ListEvents 读取最新区块，扫描 [StartBlock(latest), latest] 内的事件，
// 按区块号与日志序号倒序排列后返回 [offset, offset+limit) 区间。
func (p *Paginator) ListEvents(ctx context.Context, contract string, page PageRequest) (PageResult, error) {
	addr, err := web3.ParseAddress("合约", contract)
	if err != nil {
		return PageResult{}, err
	}
	if err := page.Validate(); err != nil {
		return PageResult{}, err
	}
	if p == nil || p.endpoint == nil {
		return PageResult{}, xerrors.New(xerrors.CodeInitializationFailure, "未配置链端点")
	}

	latest, err := p.endpoint.BlockNumber(ctx)
	if err != nil {
		return PageResult{}, xerrors.Wrap(xerrors.CodeChainRead, err, "读取最新区块失败")
	}
	start := StartBlock(latest)

	logs, err := p.endpoint.FilterLogs(ctx, gethcore.FilterQuery{
		FromBlock: new(big.Int).SetUint64(start),
		ToBlock:   new(big.Int).SetUint64(latest),
		Addresses: []common.Address{addr},
		Topics:    [][]common.Hash{{agentABI.Events[EventName].ID}},
	})
	if err != nil {
		p.logger.Warn("filter logs failed", "contract", addr.Hex(), "from", start, "to", latest, "error", err)
		return PageResult{}, xerrors.Wrap(xerrors.CodeChainRead, err, "查询事件日志失败",
			xerrors.WithMetadata("contract", addr.Hex()),
		)
	}

	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber > logs[j].BlockNumber
		}
		return logs[i].Index > logs[j].Index
	})

	result := PageResult{Events: []ActionEvent{}, TotalScanned: len(logs)}
	if page.Offset >= len(logs) {
		return result, nil
	}
	end := page.Offset + page.Limit
	if end > len(logs) || end < page.Offset {
		end = len(logs)
	}
	for _, entry := range logs[page.Offset:end] {
		event, err := p.decode(entry)
		if err != nil {
			return PageResult{}, err
		}
		result.Events = append(result.Events, event)
	}

	p.logger.Debug("events listed", "contract", addr.Hex(), "from", start, "to", latest, "scanned", len(logs), "returned", len(result.Events))
	return result, nil
}

func (p *Paginator) decode(entry types.Log) (ActionEvent, error) {
	event := ActionEvent{
		TxHash:      entry.TxHash.Hex(),
		BlockNumber: entry.BlockNumber,
		ExplorerURL: p.explorer.TxURL(entry.TxHash.Hex()),
	}

	var (
		values []interface{}
		err    error
	)
	if len(entry.Topics) > 1 {
		event.Data = entry.Topics[1].Hex()
		values, err = indexedEventABI.Unpack(EventName, entry.Data)
	} else {
		values, err = agentABI.Unpack(EventName, entry.Data)
		if err == nil && len(values) == 2 {
			data, ok := values[0].(string)
			if !ok {
				return ActionEvent{}, malformedLog(entry)
			}
			event.Data = data
			values = values[1:]
		}
	}
	if err != nil {
		return ActionEvent{}, xerrors.Wrap(xerrors.CodeChainRead, err, "解析事件日志失败",
			xerrors.WithMetadata("tx_hash", entry.TxHash.Hex()),
		)
	}
	if len(values) != 1 {
		return ActionEvent{}, malformedLog(entry)
	}
	timestamp, ok := values[0].(*big.Int)
	if !ok || !timestamp.IsUint64() {
		return ActionEvent{}, malformedLog(entry)
	}
	event.Timestamp = timestamp.Uint64()
	return event, nil
}

func malformedLog(entry types.Log) error {
	return xerrors.New(xerrors.CodeChainRead, "事件日志格式异常",
		xerrors.WithMetadata("tx_hash", entry.TxHash.Hex()),
	)
}
