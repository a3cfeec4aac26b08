package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"BasicAgent-Console/internal/web3"
)

// EIP-1193 / MetaMask provider error codes.
const (
	codeUserRejected      = 4001
	codeUnauthorized      = 4100
	codeUnrecognizedChain = 4902
	codeInternal          = -32603
)

var (
	// ErrUserRejected 表示用户在钱包弹窗中拒绝了请求。
	ErrUserRejected = errors.New("用户拒绝了钱包请求")
	// ErrUnrecognizedChain 表示钱包不认识目标链，需要先注册。
	ErrUnrecognizedChain = errors.New("钱包未识别目标链")
	// ErrNoAccounts 表示钱包没有返回任何账户。
	ErrNoAccounts = errors.New("钱包未返回账户")
)

// TxRequest 描述交给钱包签名并广播的交易。
type TxRequest struct {
	From    common.Address
	To      common.Address
	Data    []byte
	ChainID uint64
}

// Capability 是外部签名能力的抽象，对应浏览器钱包的 EIP-1193 接口。
type Capability interface {
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (uint64, error)
	SwitchChain(ctx context.Context, chainIDHex string) error
	AddChain(ctx context.Context, params web3.AddChainParams) error
	SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error)
}

// classify 将钱包返回的数字错误码转换为带类型的哨兵错误，原始信息保留在错误链中。
func classify(err error) error {
	if err == nil {
		return nil
	}
	var rpcErr gethrpc.Error
	if !errors.As(err, &rpcErr) {
		return err
	}

	code := rpcErr.ErrorCode()
	if code == codeInternal {
		if nested, ok := nestedCode(err); ok {
			code = nested
		}
	}

	switch code {
	case codeUserRejected:
		return fmt.Errorf("%w: %v", ErrUserRejected, err)
	case codeUnrecognizedChain:
		return fmt.Errorf("%w: %v", ErrUnrecognizedChain, err)
	case codeUnauthorized:
		return fmt.Errorf("钱包未授权该账户或方法 (%d): %w", code, err)
	default:
		return err
	}
}

// nestedCode 读取 MetaMask 在 -32603 错误中附带的 originalError.code。
func nestedCode(err error) (int, bool) {
	var dataErr gethrpc.DataError
	if !errors.As(err, &dataErr) || dataErr.ErrorData() == nil {
		return 0, false
	}
	raw, marshalErr := json.Marshal(dataErr.ErrorData())
	if marshalErr != nil {
		return 0, false
	}
	var payload struct {
		OriginalError struct {
			Code int `json:"code"`
		} `json:"originalError"`
	}
	if json.Unmarshal(raw, &payload) != nil || payload.OriginalError.Code == 0 {
		return 0, false
	}
	return payload.OriginalError.Code, true
}
