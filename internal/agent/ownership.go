package agent

import (
	"BasicAgent-Console/internal/web3"
)

// IsAuthorized 判断 candidate 是否为合约所有者。两者都必须通过地址格式校验，
// 否则返回 false 与 ValidationError；比较忽略大小写，无副作用。
func IsAuthorized(candidate, owner string) (bool, error) {
	if _, err := web3.ParseAddress("钱包", candidate); err != nil {
		return false, err
	}
	if _, err := web3.ParseAddress("所有者", owner); err != nil {
		return false, err
	}
	return web3.SameAddress(candidate, owner), nil
}
