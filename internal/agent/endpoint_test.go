package agent

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

const (
	testContract = "0x12BF7CF7361653d63C1872Ae0F9636Ba80447fA5"
	testOwner    = "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01"
)

// fakeEndpoint 在内存中模拟合约与链节点，并统计每类 RPC 的调用次数。
type fakeEndpoint struct {
	mu sync.Mutex

	latest    uint64
	logs      []types.Log
	owner     common.Address
	timestamp uint64
	data      string

	callErr   error
	blockErr  error
	filterErr error

	pendingReceipts int
	receiptStatus   uint64
	receiptErr      error

	calls     map[string]int
	lastQuery gethcore.FilterQuery
}

func newFakeEndpoint() *fakeEndpoint {
	return &fakeEndpoint{
		owner:         common.HexToAddress(testOwner),
		receiptStatus: types.ReceiptStatusSuccessful,
		calls:         make(map[string]int),
	}
}

func (f *fakeEndpoint) record(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
}

func (f *fakeEndpoint) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeEndpoint) ChainID(context.Context) (*big.Int, error) {
	f.record("eth_chainId")
	return big.NewInt(50312), nil
}

func (f *fakeEndpoint) BlockNumber(context.Context) (uint64, error) {
	f.record("eth_blockNumber")
	return f.latest, f.blockErr
}

func (f *fakeEndpoint) CallContract(_ context.Context, msg gethcore.CallMsg, _ *big.Int) ([]byte, error) {
	f.record("eth_call")
	if f.callErr != nil {
		return nil, f.callErr
	}
	switch {
	case bytes.HasPrefix(msg.Data, agentABI.Methods[methodStatus].ID):
		return agentABI.Methods[methodStatus].Outputs.Pack(new(big.Int).SetUint64(f.timestamp), f.data)
	case bytes.HasPrefix(msg.Data, agentABI.Methods[methodOwner].ID):
		return agentABI.Methods[methodOwner].Outputs.Pack(f.owner)
	}
	return nil, errors.New("execution reverted")
}

func (f *fakeEndpoint) FilterLogs(_ context.Context, q gethcore.FilterQuery) ([]types.Log, error) {
	f.record("eth_getLogs")
	f.mu.Lock()
	f.lastQuery = q
	f.mu.Unlock()
	if f.filterErr != nil {
		return nil, f.filterErr
	}
	var out []types.Log
	for _, l := range f.logs {
		if l.BlockNumber >= q.FromBlock.Uint64() && l.BlockNumber <= q.ToBlock.Uint64() {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeEndpoint) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.record("eth_getTransactionReceipt")
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pendingReceipts > 0 {
		f.pendingReceipts--
		return nil, gethcore.NotFound
	}
	return &types.Receipt{
		TxHash:      hash,
		Status:      f.receiptStatus,
		BlockNumber: big.NewInt(int64(f.latest + 1)),
		GasUsed:     42000,
	}, nil
}

func (f *fakeEndpoint) Close() {}

func actionLog(t *testing.T, block uint64, index uint, data string, timestamp int64) types.Log {
	t.Helper()
	event := agentABI.Events[EventName]
	packed, err := event.Inputs.NonIndexed().Pack(data, big.NewInt(timestamp))
	require.NoError(t, err)
	return types.Log{
		Topics:      []common.Hash{event.ID},
		Data:        packed,
		BlockNumber: block,
		Index:       index,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block*1000 + uint64(index))),
	}
}
