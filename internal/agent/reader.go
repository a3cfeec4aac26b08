package agent

import (
	"context"
	"log/slog"
	"math/big"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	xerrors "BasicAgent-Console/internal/errors"
	"BasicAgent-Console/internal/web3"
	"BasicAgent-Console/pkg/logger"
)

// AgentStatus 是合约当前状态的只读投影，每次都重新读取，不做缓存。
type AgentStatus struct {
	Owner               string `json:"owner"`
	LastActionTimestamp uint64 `json:"lastActionTimestamp"`
	LastActionData      string `json:"lastActionData"`
}

// Reader 通过 ChainEndpoint 读取合约状态。
type Reader struct {
	endpoint web3.Endpoint
	logger   *slog.Logger
}

// NewReader 创建 Reader。
func NewReader(endpoint web3.Endpoint) *Reader {
	return &Reader{endpoint: endpoint, logger: logger.Named("contract_reader")}
}

// ReadStatus 读取状态元组与所有者。两次调用彼此独立，不锁定区块高度；
// 任一调用失败时返回 ChainReadError，不返回部分结果。
func (r *Reader) ReadStatus(ctx context.Context, contract string) (AgentStatus, error) {
	addr, err := web3.ParseAddress("合约", contract)
	if err != nil {
		return AgentStatus{}, err
	}

	values, err := r.call(ctx, addr, methodStatus)
	if err != nil {
		return AgentStatus{}, err
	}
	timestamp, ok := values[0].(*big.Int)
	if !ok || !timestamp.IsUint64() {
		return AgentStatus{}, r.malformed(addr, methodStatus)
	}
	data, ok := values[1].(string)
	if !ok {
		return AgentStatus{}, r.malformed(addr, methodStatus)
	}

	owner, err := r.owner(ctx, addr)
	if err != nil {
		return AgentStatus{}, err
	}

	return AgentStatus{
		Owner:               owner.Hex(),
		LastActionTimestamp: timestamp.Uint64(),
		LastActionData:      data,
	}, nil
}

// Owner 只读取合约所有者。
func (r *Reader) Owner(ctx context.Context, contract string) (string, error) {
	addr, err := web3.ParseAddress("合约", contract)
	if err != nil {
		return "", err
	}
	owner, err := r.owner(ctx, addr)
	if err != nil {
		return "", err
	}
	return owner.Hex(), nil
}

func (r *Reader) owner(ctx context.Context, addr common.Address) (common.Address, error) {
	values, err := r.call(ctx, addr, methodOwner)
	if err != nil {
		return common.Address{}, err
	}
	owner, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, r.malformed(addr, methodOwner)
	}
	return owner, nil
}

func (r *Reader) call(ctx context.Context, addr common.Address, method string) ([]interface{}, error) {
	if r == nil || r.endpoint == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置链端点")
	}
	input, err := agentABI.Pack(method)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainRead, err, "编码合约调用失败")
	}

	out, err := r.endpoint.CallContract(ctx, gethcore.CallMsg{To: &addr, Data: input}, nil)
	if err != nil {
		r.logger.Warn("contract call failed", "contract", addr.Hex(), "method", method, "error", err)
		return nil, xerrors.Wrap(xerrors.CodeChainRead, err, "调用合约 "+method+" 失败",
			xerrors.WithMetadata("contract", addr.Hex()),
			xerrors.WithMetadata("method", method),
		)
	}

	values, err := agentABI.Unpack(method, out)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainRead, err, "解析合约 "+method+" 返回值失败",
			xerrors.WithMetadata("contract", addr.Hex()),
			xerrors.WithMetadata("method", method),
		)
	}
	if len(values) == 0 {
		return nil, r.malformed(addr, method)
	}
	return values, nil
}

func (r *Reader) malformed(addr common.Address, method string) error {
	return xerrors.New(xerrors.CodeChainRead, "合约 "+method+" 返回值格式异常",
		xerrors.WithMetadata("contract", addr.Hex()),
		xerrors.WithMetadata("method", method),
	)
}
