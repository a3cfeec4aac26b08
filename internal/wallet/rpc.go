package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"BasicAgent-Console/internal/web3"
)

// RPCCapability 通过 JSON-RPC 桥接外部钱包（例如浏览器扩展的本地桥或 WalletConnect 网关）。
type RPCCapability struct {
	client *gethrpc.Client
}

// DialRPC 连接钱包桥地址。
func DialRPC(ctx context.Context, url string) (*RPCCapability, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("未配置钱包桥地址")
	}
	client, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("连接钱包桥失败: %w", err)
	}
	return &RPCCapability{client: client}, nil
}

// NewRPCCapability 使用已建立的 RPC 连接。
func NewRPCCapability(client *gethrpc.Client) *RPCCapability {
	return &RPCCapability{client: client}
}

// Close 关闭与钱包桥的连接。
func (w *RPCCapability) Close() {
	if w != nil && w.client != nil {
		w.client.Close()
	}
}

// RequestAccounts 调用 eth_requestAccounts。
func (w *RPCCapability) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := w.client.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, classify(err)
	}
	return accounts, nil
}

// ChainID 调用 eth_chainId。
func (w *RPCCapability) ChainID(ctx context.Context) (uint64, error) {
	var id hexutil.Uint64
	if err := w.client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return 0, classify(err)
	}
	return uint64(id), nil
}

type switchChainArgs struct {
	ChainID string `json:"chainId"`
}

// SwitchChain 调用 wallet_switchEthereumChain。
func (w *RPCCapability) SwitchChain(ctx context.Context, chainIDHex string) error {
	err := w.client.CallContext(ctx, nil, "wallet_switchEthereumChain", switchChainArgs{ChainID: chainIDHex})
	return classify(err)
}

// AddChain 调用 wallet_addEthereumChain。
func (w *RPCCapability) AddChain(ctx context.Context, params web3.AddChainParams) error {
	return classify(w.client.CallContext(ctx, nil, "wallet_addEthereumChain", params))
}

type sendTxArgs struct {
	From    common.Address `json:"from"`
	To      common.Address `json:"to"`
	Data    hexutil.Bytes  `json:"data"`
	ChainID *hexutil.Big   `json:"chainId,omitempty"`
}

// SendTransaction 调用 eth_sendTransaction，由钱包完成签名与广播。
func (w *RPCCapability) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	args := sendTxArgs{From: req.From, To: req.To, Data: req.Data}
	if req.ChainID != 0 {
		args.ChainID = (*hexutil.Big)(new(big.Int).SetUint64(req.ChainID))
	}
	var hash common.Hash
	if err := w.client.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, classify(err)
	}
	return hash, nil
}

var _ Capability = (*RPCCapability)(nil)
