// Package console is the operator-facing controller of the agent console.
// It strings the wallet, network guard, contract reader, event paginator and
// dispatcher together into the connect, refresh, trigger and disconnect
// flows. The wallet session and the read snapshot are values passed in and
// returned; the controller keeps no per-operator state of its own.
package console

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"BasicAgent-Console/internal/agent"
	xerrors "BasicAgent-Console/internal/errors"
	"BasicAgent-Console/internal/notify"
	"BasicAgent-Console/internal/storage/mysql"
	"BasicAgent-Console/internal/wallet"
	"BasicAgent-Console/internal/web3"
	"BasicAgent-Console/pkg/logger"
)

// RefreshDelay 是提交成功后到重新读取状态之间的固定等待时间。
// 等待结束时链上状态不保证已经可见。
const RefreshDelay = 2 * time.Second

// Snapshot 是一次刷新得到的只读视图，每次刷新整体替换。
type Snapshot struct {
	Status      agent.AgentStatus `json:"status"`
	Events      agent.PageResult  `json:"events"`
	IsOwner     bool              `json:"isOwner"`
	RefreshedAt time.Time         `json:"refreshedAt"`
}

// Journal 记录提交结果。
type Journal interface {
	Append(ctx context.Context, entry mysql.JournalEntry) error
}

// Console 编排一次操作员会话中的全部链上交互。
type Console struct {
	contract     string
	endpoint     web3.Endpoint
	guard        *wallet.Guard
	wallet       wallet.Capability
	reader       *agent.Reader
	paginator    *agent.Paginator
	dispatcher   *agent.Dispatcher
	journal      Journal
	publisher    notify.Publisher
	page         agent.PageRequest
	refreshDelay time.Duration
	sleep        func(context.Context, time.Duration) error
	logger       *slog.Logger
}

// Option 定义可选配置。
type Option func(*Console)

// WithJournal 配置提交日志。
func WithJournal(journal Journal) Option {
	return func(c *Console) {
		c.journal = journal
	}
}

// WithPublisher 配置提交成功后的通知投递。
func WithPublisher(publisher notify.Publisher) Option {
	return func(c *Console) {
		c.publisher = publisher
	}
}

// WithPage 设置刷新时读取的事件分页。
func WithPage(page agent.PageRequest) Option {
	return func(c *Console) {
		c.page = page
	}
}

// WithRefreshDelay 覆盖提交后刷新前的等待时间，主要用于测试。
func WithRefreshDelay(delay time.Duration) Option {
	return func(c *Console) {
		if delay < 0 {
			delay = 0
		}
		c.refreshDelay = delay
	}
}

// WithDispatcherOptions 透传给 agent.Dispatcher 的配置。
func WithDispatcherOptions(opts ...agent.DispatcherOption) Option {
	return func(c *Console) {
		c.dispatcher = agent.NewDispatcher(c.endpoint, c.wallet, opts...)
	}
}

// New 创建 Console。contract 在此处完成格式校验。
func New(contract string, endpoint web3.Endpoint, w wallet.Capability, chain web3.ChainDefinition, opts ...Option) (*Console, error) {
	if _, err := web3.ParseAddress("合约", contract); err != nil {
		return nil, err
	}
	if endpoint == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置链端点")
	}

	c := &Console{
		contract:     contract,
		endpoint:     endpoint,
		guard:        wallet.NewGuard(w, chain),
		wallet:       w,
		reader:       agent.NewReader(endpoint),
		paginator:    agent.NewPaginator(endpoint, agent.WithTxExplorer(chain)),
		dispatcher:   agent.NewDispatcher(endpoint, w),
		page:         agent.PageRequest{Limit: agent.DefaultPageLimit},
		refreshDelay: RefreshDelay,
		sleep:        sleepContext,
		logger:       logger.Named("console"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if err := c.page.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Contract 返回控制台操作的合约地址。
func (c *Console) Contract() string {
	return c.contract
}

// Guard 返回网络守卫。
func (c *Console) Guard() *wallet.Guard {
	return c.guard
}

// State 返回钱包状态机的当前状态。
func (c *Console) State() wallet.State {
	return c.guard.State()
}

// Connect 与钱包协商会话，必要时切换到目标链，然后执行首次刷新。
// 链对齐失败时返回未对齐的会话与 NetworkSwitchFailed，此时 State 为
// StateSwitchFailed，不会自动重试。
func (c *Console) Connect(ctx context.Context) (wallet.Session, Snapshot, error) {
	session, state, err := c.guard.Negotiate(ctx)
	if err != nil {
		return wallet.Session{}, Snapshot{}, err
	}
	c.logger.Info("wallet connected", "address", session.Address.Hex(), "chain_id", session.ChainID, "state", state)

	if state != wallet.StateAligned {
		session, _, err = c.guard.Reconcile(ctx, session)
		if err != nil {
			return session, Snapshot{}, err
		}
	}

	snapshot, err := c.Refresh(ctx, session)
	if err != nil {
		return session, Snapshot{}, err
	}
	return session, snapshot, nil
}

// Refresh 并发读取合约状态与事件，两者都成功才返回新快照。
func (c *Console) Refresh(ctx context.Context, session wallet.Session) (Snapshot, error) {
	var (
		status agent.AgentStatus
		events agent.PageResult
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		status, err = c.reader.ReadStatus(groupCtx, c.contract)
		return err
	})
	group.Go(func() error {
		var err error
		events, err = c.paginator.ListEvents(groupCtx, c.contract, c.page)
		return err
	})
	if err := group.Wait(); err != nil {
		return Snapshot{}, err
	}

	snapshot := Snapshot{Status: status, Events: events, RefreshedAt: time.Now()}
	if session.Connected {
		isOwner, err := agent.IsAuthorized(session.Address.Hex(), status.Owner)
		if err != nil {
			return Snapshot{}, err
		}
		snapshot.IsOwner = isOwner
	}
	return snapshot, nil
}

// Trigger 在会话对齐时提交动作，记录结果，成功后等待 RefreshDelay 再刷新。
// 刷新失败时仍返回交易结果，同时返回旧快照与刷新错误。
func (c *Console) Trigger(ctx context.Context, session wallet.Session, current Snapshot, payload string) (agent.DispatchResult, Snapshot, error) {
	switch c.guard.Check(session) {
	case wallet.StateDisconnected:
		return agent.DispatchResult{}, current, xerrors.Validation("钱包未连接")
	case wallet.StateMisaligned:
		return agent.DispatchResult{}, current, xerrors.New(xerrors.CodeNetworkSwitchFailed, "钱包不在目标链上，请先切换网络")
	}

	result, err := c.dispatcher.Dispatch(ctx, agent.DispatchRequest{
		Contract: c.contract,
		Payload:  payload,
		Session:  session,
		Owner:    current.Status.Owner,
	})
	c.record(ctx, session, payload, result, err)
	if err != nil {
		return result, current, err
	}

	if c.publisher != nil {
		notice := notify.NewNotice(c.contract, session.Address.Hex(), payload, result.TxHash, result.BlockNumber)
		if pubErr := c.publisher.Publish(ctx, notice); pubErr != nil {
			c.logger.Warn("publish notice failed", "tx_hash", result.TxHash, "error", pubErr)
		}
	}

	if err := c.sleep(ctx, c.refreshDelay); err != nil {
		return result, current, err
	}
	next, err := c.Refresh(ctx, session)
	if err != nil {
		return result, current, err
	}
	return result, next, nil
}

// Disconnect 丢弃会话与快照。
func (c *Console) Disconnect(session wallet.Session) (wallet.Session, Snapshot) {
	c.logger.Info("wallet disconnected", "address", session.Address.Hex())
	c.guard.Reset()
	return wallet.Disconnect(session), Snapshot{}
}

// record 把已到达钱包的提交结果写入审计日志与提交日志。前置校验失败不记录。
func (c *Console) record(ctx context.Context, session wallet.Session, payload string, result agent.DispatchResult, err error) {
	if xerrors.HasCode(err, xerrors.CodeValidation) {
		return
	}
	entry := mysql.JournalEntry{
		Contract:    c.contract,
		Wallet:      session.Address.Hex(),
		Payload:     payload,
		TxHash:      result.TxHash,
		BlockNumber: result.BlockNumber,
		Outcome:     "OK",
	}
	if err != nil {
		entry.Outcome = string(xerrors.CodeOf(err))
		entry.Message = err.Error()
	}

	logger.Audit().Info("agent action dispatched",
		"contract", entry.Contract,
		"wallet", entry.Wallet,
		"tx_hash", entry.TxHash,
		"code", entry.Outcome,
	)

	if c.journal == nil {
		return
	}
	if jerr := c.journal.Append(context.WithoutCancel(ctx), entry); jerr != nil {
		c.logger.Warn("journal append failed", "tx_hash", entry.TxHash, "error", jerr)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
