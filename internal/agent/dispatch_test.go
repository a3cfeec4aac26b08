package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	xerrors "BasicAgent-Console/internal/errors"
	"BasicAgent-Console/internal/wallet"
	"BasicAgent-Console/internal/web3"
)

type fakeWallet struct {
	sendErr error
	sent    []wallet.TxRequest
}

func (w *fakeWallet) RequestAccounts(context.Context) ([]common.Address, error) {
	return []common.Address{common.HexToAddress(testOwner)}, nil
}

func (w *fakeWallet) ChainID(context.Context) (uint64, error) { return 50312, nil }

func (w *fakeWallet) SwitchChain(context.Context, string) error { return nil }

func (w *fakeWallet) AddChain(context.Context, web3.AddChainParams) error { return nil }

func (w *fakeWallet) SendTransaction(_ context.Context, req wallet.TxRequest) (common.Hash, error) {
	if w.sendErr != nil {
		return common.Hash{}, w.sendErr
	}
	w.sent = append(w.sent, req)
	return common.HexToHash("0xabc123"), nil
}

func ownerSession() wallet.Session {
	return wallet.Session{Address: common.HexToAddress(testOwner), ChainID: 50312, Connected: true}
}

func newTestDispatcher(endpoint *fakeEndpoint, w *fakeWallet, opts ...DispatcherOption) *Dispatcher {
	opts = append([]DispatcherOption{WithReceiptPollInterval(time.Millisecond)}, opts...)
	return NewDispatcher(endpoint, w, opts...)
}

func TestDispatchSuccess(t *testing.T) {
	endpoint := newFakeEndpoint()
	endpoint.latest = 99
	endpoint.pendingReceipts = 2
	w := &fakeWallet{}

	result, err := newTestDispatcher(endpoint, w).Dispatch(context.Background(), DispatchRequest{
		Contract: testContract,
		Payload:  "stake:100",
		Session:  ownerSession(),
		Owner:    strings.ToLower(testOwner),
	})
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0xabc123").Hex(), result.TxHash)
	require.Equal(t, uint64(100), result.BlockNumber)
	require.Equal(t, uint64(42000), result.GasUsed)
	require.Equal(t, 3, endpoint.calls["eth_getTransactionReceipt"])

	require.Len(t, w.sent, 1)
	sent := w.sent[0]
	require.Equal(t, common.HexToAddress(testContract), sent.To)
	require.Equal(t, common.HexToAddress(testOwner), sent.From)
	require.Equal(t, uint64(50312), sent.ChainID)

	args, err := agentABI.Methods[methodTrigger].Inputs.Unpack(sent.Data[4:])
	require.NoError(t, err)
	require.Equal(t, "stake:100", args[0])
}

func TestDispatchPreconditionsNeverSubmit(t *testing.T) {
	disconnected := ownerSession()
	disconnected.Connected = false
	stranger := ownerSession()
	stranger.Address = common.HexToAddress(testContract)

	cases := map[string]DispatchRequest{
		"disconnected":      {Contract: testContract, Payload: "custom:x", Session: disconnected, Owner: testOwner},
		"not owner":         {Contract: testContract, Payload: "custom:x", Session: stranger, Owner: testOwner},
		"malformed owner":   {Contract: testContract, Payload: "custom:x", Session: ownerSession(), Owner: "0x1"},
		"malformed address": {Contract: "0x12BF7CF7361653d63C1872Ae0F9636Ba80447fA", Payload: "custom:x", Session: ownerSession(), Owner: testOwner},
		"empty payload":     {Contract: testContract, Payload: "  ", Session: ownerSession(), Owner: testOwner},
		"payload too long":  {Contract: testContract, Payload: strings.Repeat("x", 501), Session: ownerSession(), Owner: testOwner},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			endpoint := newFakeEndpoint()
			w := &fakeWallet{}

			_, err := newTestDispatcher(endpoint, w).Dispatch(context.Background(), req)
			require.True(t, xerrors.HasCode(err, xerrors.CodeValidation), "got %v", err)
			require.Empty(t, w.sent)
			require.Zero(t, endpoint.total())
		})
	}
}

func TestDispatchPayloadLimit(t *testing.T) {
	req := DispatchRequest{Contract: testContract, Payload: strings.Repeat("界", 500), Session: ownerSession(), Owner: testOwner}

	_, err := newTestDispatcher(newFakeEndpoint(), &fakeWallet{}).Dispatch(context.Background(), req)
	require.NoError(t, err, "limit counts characters, not bytes")

	req.Payload = strings.Repeat("x", 2000)
	_, err = newTestDispatcher(newFakeEndpoint(), &fakeWallet{}, WithMaxPayloadLength(0)).Dispatch(context.Background(), req)
	require.NoError(t, err)

	_, err = newTestDispatcher(newFakeEndpoint(), &fakeWallet{}, WithMaxPayloadLength(10)).Dispatch(context.Background(), req)
	require.True(t, xerrors.HasCode(err, xerrors.CodeValidation))
}

func TestDispatchUserRejected(t *testing.T) {
	endpoint := newFakeEndpoint()
	w := &fakeWallet{sendErr: wallet.ErrUserRejected}

	_, err := newTestDispatcher(endpoint, w).Dispatch(context.Background(), DispatchRequest{
		Contract: testContract, Payload: "custom:x", Session: ownerSession(), Owner: testOwner,
	})
	require.True(t, xerrors.HasCode(err, xerrors.CodeUserRejected))
	require.True(t, xerrors.Recoverable(err))
	require.Zero(t, endpoint.calls["eth_getTransactionReceipt"])
}

func TestDispatchSubmissionFailure(t *testing.T) {
	w := &fakeWallet{sendErr: errors.New("insufficient funds for gas")}

	_, err := newTestDispatcher(newFakeEndpoint(), w).Dispatch(context.Background(), DispatchRequest{
		Contract: testContract, Payload: "custom:x", Session: ownerSession(), Owner: testOwner,
	})
	require.True(t, xerrors.HasCode(err, xerrors.CodeDispatch))
	require.Contains(t, err.Error(), "insufficient funds")
}

func TestDispatchReceiptFailure(t *testing.T) {
	endpoint := newFakeEndpoint()
	endpoint.receiptErr = errors.New("connection reset")

	_, err := newTestDispatcher(endpoint, &fakeWallet{}).Dispatch(context.Background(), DispatchRequest{
		Contract: testContract, Payload: "custom:x", Session: ownerSession(), Owner: testOwner,
	})
	require.True(t, xerrors.HasCode(err, xerrors.CodeDispatch))
	require.Equal(t, 1, endpoint.calls["eth_getTransactionReceipt"])
}

func TestDispatchReverted(t *testing.T) {
	endpoint := newFakeEndpoint()
	endpoint.receiptStatus = types.ReceiptStatusFailed

	result, err := newTestDispatcher(endpoint, &fakeWallet{}).Dispatch(context.Background(), DispatchRequest{
		Contract: testContract, Payload: "custom:x", Session: ownerSession(), Owner: testOwner,
	})
	require.True(t, xerrors.HasCode(err, xerrors.CodeReverted))
	require.NotEmpty(t, result.TxHash)
	e, ok := xerrors.From(err)
	require.True(t, ok)
	require.Equal(t, result.TxHash, e.Metadata()["tx_hash"])
}

func TestDispatchHonoursCancellationWhilePending(t *testing.T) {
	endpoint := newFakeEndpoint()
	endpoint.pendingReceipts = 1 << 30

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestDispatcher(endpoint, &fakeWallet{}).Dispatch(ctx, DispatchRequest{
		Contract: testContract, Payload: "custom:x", Session: ownerSession(), Owner: testOwner,
	})
	require.True(t, xerrors.HasCode(err, xerrors.CodeDispatch))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
