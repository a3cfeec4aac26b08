package web3

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	xerrors "BasicAgent-Console/internal/errors"
)

// addressHexLength 是去掉 0x 前缀后的地址长度。
const addressHexLength = common.AddressLength * 2

// IsAddress 严格校验地址格式：必须带 0x 前缀，且恰好 40 位十六进制字符。
// 大小写不参与校验。
func IsAddress(raw string) bool {
	if len(raw) != addressHexLength+2 {
		return false
	}
	if !strings.HasPrefix(raw, "0x") && !strings.HasPrefix(raw, "0X") {
		return false
	}
	for _, c := range raw[2:] {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// ParseAddress 校验并解析地址，field 用于错误信息中标识字段名。
func ParseAddress(field, raw string) (common.Address, error) {
	if !IsAddress(raw) {
		return common.Address{}, xerrors.Validation("无效的"+field+"地址",
			xerrors.WithMetadata("field", field),
			xerrors.WithMetadata("value", raw),
		)
	}
	return common.HexToAddress(raw), nil
}

// SameAddress 比较两个已通过格式校验的地址，忽略大小写。
func SameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}
