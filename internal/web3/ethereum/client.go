package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind/backends"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"BasicAgent-Console/internal/observability/metrics"
	"BasicAgent-Console/internal/web3"
)

// Config describes how to construct an EVM compatible endpoint.
type Config struct {
	Name   string
	RPCURL string
	// RequestTimeout bounds each RPC round trip. Zero leaves requests bounded
	// only by the caller's context.
	RequestTimeout time.Duration
}

// backend mirrors the subset of ethclient used by the console so the
// simulated backend can stand in during tests.
type backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	CallContract(ctx context.Context, msg gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, query gethcore.FilterQuery) ([]coretypes.Log, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*coretypes.Receipt, error)
}

// Client implements web3.Endpoint for EVM compatible chains.
type Client struct {
	name      string
	timeout   time.Duration
	rpcClient *gethrpc.Client
	backend   backend
	mu        sync.Mutex
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接链节点失败: %w", err)
	}

	return &Client{
		name:      cfg.Name,
		timeout:   cfg.RequestTimeout,
		rpcClient: rpcClient,
		backend:   ethclient.NewClient(rpcClient),
	}, nil
}

// NewSimulatedClient wraps a go-ethereum simulated backend for testing purposes.
func NewSimulatedClient(name string, sim *backends.SimulatedBackend) *Client {
	return &Client{name: name, backend: sim}
}

// Name returns the configured chain name.
func (c *Client) Name() string {
	return c.name
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
	c.backend = nil
}

// ChainID returns the chain id reported by the node.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := c.do(ctx, "eth_chainId", func(ctx context.Context, b backend) error {
		var err error
		id, err = b.ChainID(ctx)
		return err
	})
	return id, err
}

// BlockNumber returns the latest block height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var height uint64
	err := c.do(ctx, "eth_blockNumber", func(ctx context.Context, b backend) error {
		var err error
		height, err = b.BlockNumber(ctx)
		return err
	})
	return height, err
}

// CallContract executes a read-only message call.
func (c *Client) CallContract(ctx context.Context, msg gethcore.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := c.do(ctx, "eth_call", func(ctx context.Context, b backend) error {
		var err error
		out, err = b.CallContract(ctx, msg, blockNumber)
		return err
	})
	return out, err
}

// FilterLogs queries historical logs.
func (c *Client) FilterLogs(ctx context.Context, query gethcore.FilterQuery) ([]coretypes.Log, error) {
	var logs []coretypes.Log
	err := c.do(ctx, "eth_getLogs", func(ctx context.Context, b backend) error {
		var err error
		logs, err = b.FilterLogs(ctx, query)
		return err
	})
	return logs, err
}

// TransactionReceipt fetches a receipt. A pending transaction yields
// gethcore.NotFound, which is passed through unchanged.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*coretypes.Receipt, error) {
	var receipt *coretypes.Receipt
	err := c.do(ctx, "eth_getTransactionReceipt", func(ctx context.Context, b backend) error {
		var err error
		receipt, err = b.TransactionReceipt(ctx, hash)
		return err
	})
	return receipt, err
}

func (c *Client) do(ctx context.Context, method string, call func(context.Context, backend) error) error {
	c.mu.Lock()
	b := c.backend
	c.mu.Unlock()
	if b == nil {
		return errors.New("链客户端已关闭")
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	err := call(ctx, b)
	metrics.ObserveRPCCall(method, err, time.Since(start))
	return err
}

var _ web3.Endpoint = (*Client)(nil)
