package web3

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChainDefinitions models the structure of configs/chains.yaml.
type ChainDefinitions struct {
	Chains map[string]ChainDefinition `yaml:"chains"`
}

// NativeCurrency describes the gas token advertised to wallets.
type NativeCurrency struct {
	Name     string `yaml:"name" json:"name"`
	Symbol   string `yaml:"symbol" json:"symbol"`
	Decimals int    `yaml:"decimals" json:"decimals"`
}

// ChainDefinition describes a single network the console can require.
type ChainDefinition struct {
	Type           string         `yaml:"type"`
	Name           string         `yaml:"name"`
	ChainID        uint64         `yaml:"chain_id"`
	ChainIDHex     string         `yaml:"chain_id_hex"`
	NativeCurrency NativeCurrency `yaml:"native_currency"`
	RPCURL         string         `yaml:"rpc_url"`
	WSURL          string         `yaml:"ws_url"`
	ExplorerURL    string         `yaml:"explorer_url"`
	TxExplorerURL  string         `yaml:"tx_explorer_url"`
	Description    string         `yaml:"description"`
}

// AddChainParams is the EIP-3085 payload used to register a chain with a
// wallet (wallet_addEthereumChain).
type AddChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

// LoadChainDefinitions parses the YAML file containing chain metadata.
func LoadChainDefinitions(path string) (ChainDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return ChainDefinitions{Chains: map[string]ChainDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ChainDefinitions{}, fmt.Errorf("读取链配置失败: %w", err)
	}

	var defs ChainDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return ChainDefinitions{}, fmt.Errorf("解析链配置失败: %w", err)
	}
	if defs.Chains == nil {
		defs.Chains = map[string]ChainDefinition{}
	}
	for name, def := range defs.Chains {
		if err := def.Validate(); err != nil {
			return ChainDefinitions{}, fmt.Errorf("链 %s 配置无效: %w", name, err)
		}
	}
	return defs, nil
}

// Validate checks that the decimal and hex chain ids agree.
func (d ChainDefinition) Validate() error {
	if d.ChainID == 0 {
		return fmt.Errorf("chain_id 不能为空")
	}
	if strings.TrimSpace(d.ChainIDHex) == "" {
		return nil
	}
	parsed, err := ParseChainIDHex(d.ChainIDHex)
	if err != nil {
		return err
	}
	if parsed != d.ChainID {
		return fmt.Errorf("chain_id %d 与 chain_id_hex %s 不一致", d.ChainID, d.ChainIDHex)
	}
	return nil
}

// HexChainID returns the 0x-prefixed chain id, preferring the configured
// spelling so wallets see exactly what the operator wrote.
func (d ChainDefinition) HexChainID() string {
	if hex := strings.TrimSpace(d.ChainIDHex); hex != "" {
		return hex
	}
	return "0x" + strconv.FormatUint(d.ChainID, 16)
}

// BigChainID returns the chain id as *big.Int.
func (d ChainDefinition) BigChainID() *big.Int {
	return new(big.Int).SetUint64(d.ChainID)
}

// AddChainParams builds the wallet registration payload for this chain.
func (d ChainDefinition) AddChainParams() AddChainParams {
	params := AddChainParams{
		ChainID:        d.HexChainID(),
		ChainName:      d.Name,
		NativeCurrency: d.NativeCurrency,
		RPCURLs:        []string{d.RPCURL},
	}
	if d.ExplorerURL != "" {
		params.BlockExplorerURLs = []string{d.ExplorerURL}
	}
	return params
}

// TxURL returns the explorer link for a transaction, or "" when no
// transaction explorer is configured.
func (d ChainDefinition) TxURL(txHash string) string {
	base := strings.TrimRight(strings.TrimSpace(d.TxExplorerURL), "/")
	if base == "" || txHash == "" {
		return ""
	}
	return base + "/tx/" + txHash
}

// ParseChainIDHex parses a 0x-prefixed chain id.
func ParseChainIDHex(raw string) (uint64, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		return 0, fmt.Errorf("chain id %q 缺少 0x 前缀", raw)
	}
	value, err := strconv.ParseUint(trimmed[2:], 16, 64)
	if err != nil {
		return 0, fmt.Errorf("解析 chain id %q 失败: %w", raw, err)
	}
	return value, nil
}
