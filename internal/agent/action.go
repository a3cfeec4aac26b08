package agent

import (
	"strings"

	xerrors "BasicAgent-Console/internal/errors"
)

// ActionKind 是操作员表单提供的动作类别。
type ActionKind string

const (
	ActionCheckBalance ActionKind = "check-balance"
	ActionTransfer     ActionKind = "transfer"
	ActionStake        ActionKind = "stake"
	ActionCustom       ActionKind = "custom"
)

// ActionKinds 返回所有支持的动作类别。
func ActionKinds() []ActionKind {
	return []ActionKind{ActionCheckBalance, ActionTransfer, ActionStake, ActionCustom}
}

// FormatAction 生成 "<kind>:<data>" 形式的动作载荷。
func FormatAction(kind ActionKind, data string) (string, error) {
	known := false
	for _, k := range ActionKinds() {
		if k == kind {
			known = true
			break
		}
	}
	if !known {
		return "", xerrors.Validation("不支持的动作类型: "+string(kind), xerrors.WithMetadata("field", "kind"))
	}
	data = strings.TrimSpace(data)
	if data == "" {
		return "", xerrors.Validation("动作数据不能为空", xerrors.WithMetadata("field", "data"))
	}
	return string(kind) + ":" + data, nil
}
