package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"BasicAgent-Console/internal/config"
	"BasicAgent-Console/internal/console"
	"BasicAgent-Console/internal/notify"
	"BasicAgent-Console/internal/storage/mysql"
	"BasicAgent-Console/internal/wallet"
	"BasicAgent-Console/internal/web3/provider"
	"BasicAgent-Console/pkg/logger"
)

// app 持有一次命令执行所需的配置与链端点。
type app struct {
	cfg      *config.Config
	registry *provider.Registry
	closers  []func()
}

// newApp 读取配置文件与 AGENT_* 环境变量，再套用命令行覆盖项。
func newApp(ctx context.Context, v *viper.Viper) (*app, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := strings.TrimSpace(v.GetString("config")); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return nil, err
	}
	if contract := strings.TrimSpace(v.GetString("contract")); contract != "" {
		cfg.Agent.Address = contract
	}
	if bridge := strings.TrimSpace(v.GetString("wallet-url")); bridge != "" {
		cfg.Wallet.BridgeURL = bridge
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, err
	}

	registry, err := provider.NewRegistry(ctx, cfg.Web3)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, registry: registry}
	a.onClose(registry.Close)
	return a, nil
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close 逆序释放资源。
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = logger.Sync()
}

// journal 按 storage.journal.driver 打开提交日志。
func (a *app) journal(ctx context.Context) (mysql.Journal, error) {
	cfg := a.cfg.Storage.Journal
	var (
		journal mysql.Journal
		err     error
	)
	switch cfg.Driver {
	case "file":
		journal, err = mysql.NewFileJournal(a.cfg.Runtime.DataDir)
	case "mysql":
		journal, err = mysql.NewSQLJournal(ctx, mysql.Config{
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeSeconds) * time.Second,
		})
	default:
		return nil, fmt.Errorf("不支持的提交日志驱动 %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	a.onClose(func() { _ = journal.Close() })
	return journal, nil
}

// broker 按 notify.driver 创建通知代理，driver 为 none 时返回 nil。
func (a *app) broker(ctx context.Context) (notify.Broker, error) {
	cfg := a.cfg.Notify
	var (
		broker notify.Broker
		err    error
	)
	switch cfg.Driver {
	case "none":
		return nil, nil
	case "memory":
		broker = notify.NewMemoryBroker(64)
	case "redis":
		broker, err = notify.NewRedisBroker(ctx, notify.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Queue:    cfg.Redis.Queue,
		})
	case "rabbitmq":
		broker, err = notify.NewRabbitMQBroker(notify.RabbitMQConfig{
			URL:     cfg.RabbitMQ.URL,
			Queue:   cfg.RabbitMQ.Queue,
			Durable: cfg.RabbitMQ.Durable,
		})
	default:
		return nil, fmt.Errorf("不支持的通知驱动 %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	a.onClose(func() { _ = broker.Close() })
	return broker, nil
}

// console 连接钱包桥并组装控制台，附带提交日志与通知发布。
func (a *app) console(ctx context.Context) (*console.Console, error) {
	endpoint, err := a.registry.Endpoint()
	if err != nil {
		return nil, err
	}
	bridge, err := wallet.DialRPC(ctx, a.cfg.Wallet.BridgeURL)
	if err != nil {
		return nil, err
	}
	a.onClose(bridge.Close)

	opts := []console.Option{
		console.WithPage(agentPage(a.cfg.Agent.PageLimit)),
		console.WithDispatcherOptions(dispatcherOptions(a.cfg.Agent)...),
	}
	journal, err := a.journal(ctx)
	if err != nil {
		return nil, err
	}
	opts = append(opts, console.WithJournal(journal))

	broker, err := a.broker(ctx)
	if err != nil {
		return nil, err
	}
	if broker != nil {
		opts = append(opts, console.WithPublisher(broker))
	}
	return console.New(a.cfg.Agent.Address, endpoint, bridge, a.registry.Required(), opts...)
}
