package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"BasicAgent-Console/internal/config"
	"BasicAgent-Console/internal/web3"
	"BasicAgent-Console/internal/web3/ethereum"
)

// Registry holds the known chain definitions and the endpoint of the chain
// the operator's wallet is required to use.
type Registry struct {
	required web3.ChainDefinition
	chains   map[string]web3.ChainDefinition
	endpoint web3.Endpoint
}

// ResolveChain merges the chain definitions file with the inline web3
// settings. Inline values (including AGENT_* overrides) win over the file.
func ResolveChain(cfg config.Web3Config) (web3.ChainDefinition, map[string]web3.ChainDefinition, error) {
	defs, err := web3.LoadChainDefinitions(cfg.ChainsFile)
	if err != nil {
		return web3.ChainDefinition{}, nil, err
	}

	var chain web3.ChainDefinition
	if name := strings.TrimSpace(cfg.Chain); name != "" {
		def, ok := defs.Chains[name]
		if !ok {
			return web3.ChainDefinition{}, nil, fmt.Errorf("链 %s 未在配置中找到", name)
		}
		chain = def
	}

	if cfg.Name != "" {
		chain.Name = cfg.Name
	}
	if cfg.RPCURL != "" {
		chain.RPCURL = cfg.RPCURL
	}
	if cfg.ChainID != 0 {
		chain.ChainID = cfg.ChainID
		chain.ChainIDHex = cfg.ChainIDHex
	} else if cfg.ChainIDHex != "" {
		chain.ChainIDHex = cfg.ChainIDHex
	}
	if cfg.NativeCurrency.Symbol != "" {
		chain.NativeCurrency = cfg.NativeCurrency
	}
	if cfg.BlockExplorerURL != "" {
		chain.ExplorerURL = cfg.BlockExplorerURL
	}
	if cfg.TxExplorerURL != "" {
		chain.TxExplorerURL = cfg.TxExplorerURL
	}

	chainType := strings.ToLower(strings.TrimSpace(chain.Type))
	if chainType != "" && chainType != "evm" {
		return web3.ChainDefinition{}, nil, fmt.Errorf("链 %s 使用了不支持的类型 %s", chain.Name, chain.Type)
	}
	if strings.TrimSpace(chain.RPCURL) == "" {
		return web3.ChainDefinition{}, nil, errors.New("未配置目标链的 RPC 端点")
	}
	if err := chain.Validate(); err != nil {
		return web3.ChainDefinition{}, nil, fmt.Errorf("目标链配置无效: %w", err)
	}
	return chain, defs.Chains, nil
}

// NewRegistry resolves the required chain and dials its RPC endpoint.
func NewRegistry(ctx context.Context, cfg config.Web3Config) (*Registry, error) {
	chain, chains, err := ResolveChain(cfg)
	if err != nil {
		return nil, err
	}
	client, err := ethereum.NewClient(ctx, ethereum.Config{
		Name:           chain.Name,
		RPCURL:         chain.RPCURL,
		RequestTimeout: cfg.RequestTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("初始化链 %s 失败: %w", chain.Name, err)
	}
	return &Registry{required: chain, chains: chains, endpoint: client}, nil
}

// NewStaticRegistry wraps an existing endpoint, mainly for tests and the
// simulated backend.
func NewStaticRegistry(chain web3.ChainDefinition, endpoint web3.Endpoint) *Registry {
	return &Registry{required: chain, chains: map[string]web3.ChainDefinition{}, endpoint: endpoint}
}

// Required returns the chain the wallet must be aligned to.
func (r *Registry) Required() web3.ChainDefinition {
	return r.required
}

// Endpoint returns the read-only endpoint of the required chain.
func (r *Registry) Endpoint() (web3.Endpoint, error) {
	if r == nil || r.endpoint == nil {
		return nil, errors.New("未初始化的链端点")
	}
	return r.endpoint, nil
}

// Chain returns a chain definition from the definitions file.
func (r *Registry) Chain(name string) (web3.ChainDefinition, bool) {
	if r == nil {
		return web3.ChainDefinition{}, false
	}
	def, ok := r.chains[name]
	return def, ok
}

// Chains returns the names of the chains in the definitions file.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.chains))
	for name := range r.chains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases the endpoint.
func (r *Registry) Close() {
	if r == nil || r.endpoint == nil {
		return
	}
	r.endpoint.Close()
	r.endpoint = nil
}
