package wallet

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	xerrors "BasicAgent-Console/internal/errors"
	"BasicAgent-Console/internal/web3"
	"BasicAgent-Console/pkg/logger"
)

// State 描述钱包与目标链的对齐状态。
type State string

const (
	StateDisconnected State = "disconnected"
	StateNegotiating  State = "negotiating"
	StateAligned      State = "aligned"
	StateMisaligned   State = "misaligned"
	StateSwitching    State = "switching"
	StateSwitchFailed State = "network_switch_failed"
)

// Guard 校验并修复会话所在的链。它只与钱包交互，不访问链节点。
// Guard 同时记录状态机的当前位置：
// Disconnected → Negotiating → {Aligned|Misaligned} → Switching → {Aligned|NetworkSwitchFailed}。
type Guard struct {
	wallet Capability
	chain  web3.ChainDefinition
	logger *slog.Logger

	mu    sync.Mutex
	state State
}

// NewGuard 构造 Guard，chain 为要求的目标链。
func NewGuard(w Capability, chain web3.ChainDefinition) *Guard {
	return &Guard{wallet: w, chain: chain, logger: logger.Named("network_guard"), state: StateDisconnected}
}

// State 返回最近一次状态迁移后的状态。
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Guard) transition(next State) State {
	g.mu.Lock()
	prev := g.state
	g.state = next
	g.mu.Unlock()
	if prev != next {
		g.logger.Debug("wallet state changed", "from", prev, "to", next)
	}
	return next
}

// Negotiate 与钱包协商新会话，并按会话所在的链进入 Aligned 或 Misaligned。
// 协商失败时回到 Disconnected。
func (g *Guard) Negotiate(ctx context.Context) (Session, State, error) {
	g.transition(StateNegotiating)
	session, err := Negotiate(ctx, g.wallet)
	if err != nil {
		return Session{}, g.transition(StateDisconnected), err
	}
	return session, g.transition(g.Check(session)), nil
}

// Reset 在断开钱包后把状态机置回 Disconnected。
func (g *Guard) Reset() {
	g.transition(StateDisconnected)
}

// Chain 返回目标链定义。
func (g *Guard) Chain() web3.ChainDefinition {
	return g.chain
}

// Check 判断会话是否位于目标链。
func (g *Guard) Check(s Session) State {
	if !s.Connected {
		return StateDisconnected
	}
	if s.ChainID == g.chain.ChainID {
		return StateAligned
	}
	return StateMisaligned
}

// Reconcile 请求钱包切换到目标链，返回切换后的会话与状态。钱包不认识该链时
// 先注册再重试一次切换；其它错误一律视为 NetworkSwitchFailed，不做自动重试。
// 成功后重新协商会话，链 ID 以钱包重新上报的为准。
func (g *Guard) Reconcile(ctx context.Context, s Session) (Session, State, error) {
	switch state := g.Check(s); state {
	case StateAligned:
		return s, g.transition(state), nil
	case StateDisconnected:
		return s, g.transition(state), xerrors.Validation("钱包未连接")
	}

	g.transition(StateSwitching)
	target := g.chain.HexChainID()
	g.logger.Info("requesting network switch", "from", s.ChainID, "to", g.chain.ChainID)

	err := g.wallet.SwitchChain(ctx, target)
	if errors.Is(err, ErrUnrecognizedChain) {
		g.logger.Info("wallet does not know chain, registering", "chain", g.chain.Name)
		if addErr := g.wallet.AddChain(ctx, g.chain.AddChainParams()); addErr != nil {
			return s, StateSwitchFailed, g.failed(addErr, "向钱包注册目标链失败")
		}
		err = g.wallet.SwitchChain(ctx, target)
	}
	if err != nil {
		return s, StateSwitchFailed, g.failed(err, "切换网络失败")
	}

	fresh, err := Negotiate(ctx, g.wallet)
	if err != nil {
		return s, StateSwitchFailed, g.failed(err, "切换网络后重新协商失败")
	}
	if g.Check(fresh) != StateAligned {
		return fresh, StateSwitchFailed, g.failed(nil, "切换后钱包仍不在目标链上")
	}
	return fresh, g.transition(StateAligned), nil
}

func (g *Guard) failed(cause error, message string) error {
	g.transition(StateSwitchFailed)
	g.logger.Warn("network switch failed", "reason", message, "error", cause)
	if cause == nil {
		return xerrors.New(xerrors.CodeNetworkSwitchFailed, message)
	}
	return xerrors.Wrap(xerrors.CodeNetworkSwitchFailed, cause, message)
}
