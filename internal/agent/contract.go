package agent

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// EventName 是合约在每次动作触发后发出的事件名。
const EventName = "AgentActionTriggered"

const (
	methodStatus  = "getAgentStatus"
	methodOwner   = "owner"
	methodTrigger = "triggerAgentAction"
)

const agentABIJSON = `[
	{"type":"function","name":"getAgentStatus","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256"},{"name":"","type":"string"}]},
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"triggerAgentAction","stateMutability":"nonpayable",
	 "inputs":[{"name":"data","type":"string"}],"outputs":[]},
	{"type":"event","name":"AgentActionTriggered","anonymous":false,
	 "inputs":[{"name":"data","type":"string","indexed":false},{"name":"timestamp","type":"uint256","indexed":false}]}
]`

// 部分部署把 data 声明为 indexed，此时日志里只剩下字符串的 keccak 哈希。
// 两种声明的事件签名相同，按 topic 数量区分。
const indexedEventABIJSON = `[
	{"type":"event","name":"AgentActionTriggered","anonymous":false,
	 "inputs":[{"name":"data","type":"string","indexed":true},{"name":"timestamp","type":"uint256","indexed":false}]}
]`

var (
	agentABI        = mustParseABI(agentABIJSON)
	indexedEventABI = mustParseABI(indexedEventABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("解析合约 ABI 失败: %v", err))
	}
	return parsed
}

// ABI 返回控制台使用的合约 ABI 片段。
func ABI() abi.ABI {
	return agentABI
}
