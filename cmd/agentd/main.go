package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"BasicAgent-Console/internal/api"
	"BasicAgent-Console/internal/config"
	"BasicAgent-Console/internal/observability/metrics"
	"BasicAgent-Console/internal/web3/provider"
	"BasicAgent-Console/pkg/logger"
)

// main 是控制台守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("agentd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	appLog := logger.Named("agentd")

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	registry, err := provider.NewRegistry(ctx, cfg.Web3)
	if err != nil {
		return err
	}
	defer registry.Close()

	endpoint, err := registry.Endpoint()
	if err != nil {
		return err
	}
	chain := registry.Required()

	if cfg.Observability.MetricsEnabled {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Observability.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				appLog.Error("metrics server stopped", slog.String("error", err.Error()))
			}
		}()
	}

	appLog.Info("agent console starting",
		slog.String("contract", cfg.Agent.Address),
		slog.String("chain", chain.Name),
		slog.Uint64("chain_id", chain.ChainID),
		slog.Any("chains", registry.Chains()),
	)

	server := api.NewServer(cfg.Server.Address, endpoint, chain,
		api.WithSignatureVerification(cfg.API.VerifySignatures),
		api.WithMaxPayloadLength(cfg.Agent.PayloadLimit()),
		api.WithShutdownTimeout(cfg.Server.ShutdownTimeout()),
	)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
