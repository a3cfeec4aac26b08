package wallet

import (
	"context"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	xerrors "BasicAgent-Console/internal/errors"
)

// CodeWalletUnavailable 表示无法与钱包完成协商。
const CodeWalletUnavailable xerrors.Code = "WALLET_UNAVAILABLE"

func init() {
	xerrors.Register(CodeWalletUnavailable, xerrors.Attributes{
		Message:     "wallet unavailable",
		Severity:    xerrors.SeverityWarning,
		HTTPStatus:  http.StatusServiceUnavailable,
		Recoverable: true,
	})
}

// Session 表示一次已连接的钱包会话。地址与链 ID 在会话生命周期内不可变，
// 切换链或账户后必须重新协商。
type Session struct {
	Address   common.Address `json:"address"`
	ChainID   uint64         `json:"chainId"`
	Connected bool           `json:"connected"`
}

// Negotiate 向钱包请求账户并读取当前链 ID，生成新的会话。
func Negotiate(ctx context.Context, w Capability) (Session, error) {
	if w == nil {
		return Session{}, xerrors.New(CodeWalletUnavailable, "未检测到钱包")
	}

	accounts, err := w.RequestAccounts(ctx)
	if err != nil {
		return Session{}, wrapWalletError(err, "请求钱包账户失败")
	}
	if len(accounts) == 0 {
		return Session{}, xerrors.Wrap(CodeWalletUnavailable, ErrNoAccounts, "")
	}

	chainID, err := w.ChainID(ctx)
	if err != nil {
		return Session{}, wrapWalletError(err, "读取钱包链 ID 失败")
	}

	return Session{Address: accounts[0], ChainID: chainID, Connected: true}, nil
}

// Disconnect 丢弃会话。
func Disconnect(Session) Session {
	return Session{}
}

func wrapWalletError(err error, message string) error {
	if errors.Is(err, ErrUserRejected) {
		return xerrors.Wrap(xerrors.CodeUserRejected, err, message)
	}
	return xerrors.Wrap(CodeWalletUnavailable, err, message)
}
