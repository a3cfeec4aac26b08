package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"BasicAgent-Console/internal/web3"
	"BasicAgent-Console/pkg/logger"
)

// DefaultPath 是未设置 AGENT_CONFIG 时读取的配置文件。
const DefaultPath = "configs/agent.json"

// 默认目标网络与合约。
const (
	DefaultAgentAddress     = "0x12BF7CF7361653d63C1872Ae0F9636Ba80447fA5"
	DefaultChainName        = "Somnia Testnet"
	DefaultChainID          = 50312
	DefaultChainIDHex       = "0xC488"
	DefaultRPCURL           = "https://dream-rpc.somnia.network"
	DefaultBlockExplorerURL = "https://explorer.somnia.network"
	DefaultTxExplorerURL    = "https://somnia-testnet.blockscout.com"
)

// Config 描述控制台在启动阶段需要加载的全部配置。
type Config struct {
	Server        ServerConfig        `json:"server"`
	Agent         AgentConfig         `json:"agent"`
	Web3          Web3Config          `json:"web3"`
	Wallet        WalletConfig        `json:"wallet"`
	API           APIConfig           `json:"api"`
	Storage       StorageConfig       `json:"storage"`
	Notify        NotifyConfig        `json:"notify"`
	Logging       logger.Config       `json:"logging"`
	Observability ObservabilityConfig `json:"observability"`
	Runtime       RuntimeConfig       `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address                string `json:"address"`
	ShutdownTimeoutSeconds int    `json:"shutdown_timeout_seconds"`
}

// ShutdownTimeout 返回优雅退出的等待时间。
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

// AgentConfig 描述目标合约与提交参数。
type AgentConfig struct {
	Address string `json:"address"`
	// MaxPayloadLength 为 nil 时使用默认值 500，0 表示不限制。
	MaxPayloadLength      *int `json:"max_payload_length,omitempty"`
	ReceiptPollIntervalMs int  `json:"receipt_poll_interval_ms"`
	PageLimit             int  `json:"page_limit"`
}

// PayloadLimit 返回生效的载荷长度上限。
func (a AgentConfig) PayloadLimit() int {
	if a.MaxPayloadLength == nil {
		return 500
	}
	return *a.MaxPayloadLength
}

// ReceiptPollInterval 返回回执轮询间隔。
func (a AgentConfig) ReceiptPollInterval() time.Duration {
	return time.Duration(a.ReceiptPollIntervalMs) * time.Millisecond
}

// Web3Config 描述目标链。Chain 指向 ChainsFile 中的条目；内联字段非空时覆盖文件中的值。
type Web3Config struct {
	ChainsFile            string              `json:"chains_file"`
	Chain                 string              `json:"chain"`
	Name                  string              `json:"name"`
	RPCURL                string              `json:"rpc_url"`
	ChainID               uint64              `json:"chain_id"`
	ChainIDHex            string              `json:"chain_id_hex"`
	NativeCurrency        web3.NativeCurrency `json:"native_currency"`
	BlockExplorerURL      string              `json:"block_explorer_url"`
	TxExplorerURL         string              `json:"tx_explorer_url"`
	RequestTimeoutSeconds int                 `json:"request_timeout_seconds"`
}

// RequestTimeout 返回单次 RPC 调用的超时时间。
func (w Web3Config) RequestTimeout() time.Duration {
	return time.Duration(w.RequestTimeoutSeconds) * time.Second
}

// WalletConfig 描述钱包桥的地址（agentctl 使用）。
type WalletConfig struct {
	BridgeURL string `json:"bridge_url"`
}

// APIConfig 控制 REST 接口的行为。
type APIConfig struct {
	VerifySignatures bool `json:"verify_signatures"`
}

// StorageConfig 描述提交日志的存储后端。
type StorageConfig struct {
	Journal JournalConfig `json:"journal"`
}

// JournalConfig 支持 file 与 mysql 两种驱动。
type JournalConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

// NotifyConfig 描述提交通知的投递方式：none、memory、redis 或 rabbitmq。
type NotifyConfig struct {
	Driver   string         `json:"driver"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 连接参数。
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Queue    string `json:"queue"`
}

// RabbitMQConfig 描述 RabbitMQ 连接参数。
type RabbitMQConfig struct {
	URL     string `json:"url"`
	Queue   string `json:"queue"`
	Durable bool   `json:"durable"`
}

// ObservabilityConfig 控制指标暴露。
type ObservabilityConfig struct {
	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsAddress string `json:"metrics_address"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// Load 负责解析指定路径的 JSON 配置文件，然后应用环境变量覆盖并校验。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	return finish(&cfg, filepath.Dir(path))
}

// LoadFromEnv 先加载当前目录下的 .env，再读取 AGENT_CONFIG 指向的配置文件。
// 使用默认路径且文件不存在时，仅以默认值与环境变量构造配置。
func LoadFromEnv() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("加载 .env 失败: %w", err)
	}

	path := strings.TrimSpace(os.Getenv("AGENT_CONFIG"))
	if path == "" {
		path = DefaultPath
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return finish(&Config{}, ".")
		}
	}
	return Load(path)
}

func finish(cfg *Config, baseDir string) (*Config, error) {
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults(baseDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 使用环境变量覆盖对应字段。
func (c *Config) applyEnv() error {
	if v := os.Getenv("AGENT_ADDRESS"); v != "" {
		c.Agent.Address = v
	}
	if v := os.Getenv("AGENT_RPC_URL"); v != "" {
		c.Web3.RPCURL = v
	}
	if v := os.Getenv("AGENT_CHAIN_ID"); v != "" {
		id, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("解析 AGENT_CHAIN_ID 失败: %w", err)
		}
		c.Web3.ChainID = id
	}
	if v := os.Getenv("AGENT_CHAIN_ID_HEX"); v != "" {
		c.Web3.ChainIDHex = v
	}
	if v := os.Getenv("AGENT_BLOCK_EXPLORER"); v != "" {
		c.Web3.BlockExplorerURL = v
	}
	if v := os.Getenv("AGENT_TX_EXPLORER"); v != "" {
		c.Web3.TxExplorerURL = v
	}
	if v := os.Getenv("AGENT_WALLET_URL"); v != "" {
		c.Wallet.BridgeURL = v
	}
	return nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		c.Server.ShutdownTimeoutSeconds = 10
	}

	if c.Agent.Address == "" {
		c.Agent.Address = DefaultAgentAddress
	}
	if c.Agent.ReceiptPollIntervalMs <= 0 {
		c.Agent.ReceiptPollIntervalMs = 1000
	}
	if c.Agent.PageLimit <= 0 {
		c.Agent.PageLimit = 10
	}

	if c.Web3.Chain == "" {
		if c.Web3.Name == "" {
			c.Web3.Name = DefaultChainName
		}
		if c.Web3.RPCURL == "" {
			c.Web3.RPCURL = DefaultRPCURL
		}
		if c.Web3.ChainID == 0 {
			c.Web3.ChainID = DefaultChainID
			if c.Web3.ChainIDHex == "" {
				c.Web3.ChainIDHex = DefaultChainIDHex
			}
		}
		if c.Web3.NativeCurrency.Symbol == "" {
			c.Web3.NativeCurrency = web3.NativeCurrency{Name: "STT", Symbol: "STT", Decimals: 18}
		}
		if c.Web3.BlockExplorerURL == "" {
			c.Web3.BlockExplorerURL = DefaultBlockExplorerURL
		}
		if c.Web3.TxExplorerURL == "" {
			c.Web3.TxExplorerURL = DefaultTxExplorerURL
		}
	}
	if c.Web3.RequestTimeoutSeconds <= 0 {
		c.Web3.RequestTimeoutSeconds = 15
	}
	c.Web3.ChainsFile = resolvePath(baseDir, c.Web3.ChainsFile)

	if c.Storage.Journal.Driver == "" {
		c.Storage.Journal.Driver = "file"
	}
	if c.Notify.Driver == "" {
		c.Notify.Driver = "none"
	}

	if c.Observability.MetricsAddress == "" {
		c.Observability.MetricsAddress = ":9090"
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else {
		c.Runtime.DataDir = resolvePath(baseDir, c.Runtime.DataDir)
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path == "" {
		c.Logging.Audit.Path = filepath.Join(c.Runtime.DataDir, "audit.log")
	}
}

func resolvePath(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// Validate 检查配置的一致性。目标链的十进制与十六进制 chain id 必须一致。
func (c *Config) Validate() error {
	if !web3.IsAddress(c.Agent.Address) {
		return fmt.Errorf("合约地址 %q 格式无效", c.Agent.Address)
	}
	if c.Agent.MaxPayloadLength != nil && *c.Agent.MaxPayloadLength < 0 {
		return errors.New("max_payload_length 不能为负数")
	}

	if c.Web3.Chain == "" {
		if strings.TrimSpace(c.Web3.RPCURL) == "" {
			return errors.New("未配置 RPC 地址")
		}
		def := web3.ChainDefinition{ChainID: c.Web3.ChainID, ChainIDHex: c.Web3.ChainIDHex}
		if err := def.Validate(); err != nil {
			return fmt.Errorf("目标链配置无效: %w", err)
		}
	} else if c.Web3.ChainsFile == "" {
		return fmt.Errorf("指定了链 %s 但未配置 chains_file", c.Web3.Chain)
	}

	switch c.Storage.Journal.Driver {
	case "file":
	case "mysql":
		if strings.TrimSpace(c.Storage.Journal.DSN) == "" {
			return errors.New("mysql 提交日志需要配置 dsn")
		}
	default:
		return fmt.Errorf("不支持的提交日志驱动 %s", c.Storage.Journal.Driver)
	}

	switch c.Notify.Driver {
	case "none", "memory":
	case "redis":
		if c.Notify.Redis.Address == "" {
			return errors.New("redis 通知需要配置 address")
		}
	case "rabbitmq":
		if c.Notify.RabbitMQ.URL == "" {
			return errors.New("rabbitmq 通知需要配置 url")
		}
	default:
		return fmt.Errorf("不支持的通知驱动 %s", c.Notify.Driver)
	}
	return nil
}
