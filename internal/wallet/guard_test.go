package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	xerrors "BasicAgent-Console/internal/errors"
	"BasicAgent-Console/internal/web3"
)

// scriptedWallet 按预设脚本响应钱包请求，并记录调用顺序。
type scriptedWallet struct {
	account    common.Address
	chainID    uint64
	switchErrs []error
	addErr     error
	calls      []string
	switchTo   uint64
	acceptsHex string
}

func (w *scriptedWallet) RequestAccounts(context.Context) ([]common.Address, error) {
	w.calls = append(w.calls, "eth_requestAccounts")
	return []common.Address{w.account}, nil
}

func (w *scriptedWallet) ChainID(context.Context) (uint64, error) {
	w.calls = append(w.calls, "eth_chainId")
	return w.chainID, nil
}

func (w *scriptedWallet) SwitchChain(_ context.Context, chainIDHex string) error {
	w.calls = append(w.calls, "wallet_switchEthereumChain")
	if len(w.switchErrs) > 0 {
		err := w.switchErrs[0]
		w.switchErrs = w.switchErrs[1:]
		if err != nil {
			return err
		}
	}
	if chainIDHex == w.acceptsHex {
		w.chainID = w.switchTo
	}
	return nil
}

func (w *scriptedWallet) AddChain(context.Context, web3.AddChainParams) error {
	w.calls = append(w.calls, "wallet_addEthereumChain")
	return w.addErr
}

func (w *scriptedWallet) SendTransaction(context.Context, TxRequest) (common.Hash, error) {
	w.calls = append(w.calls, "eth_sendTransaction")
	return common.Hash{}, nil
}

var somnia = web3.ChainDefinition{
	Name:       "Somnia Testnet",
	ChainID:    50312,
	ChainIDHex: "0xC488",
	RPCURL:     "https://dream-rpc.somnia.network",
}

func newScripted(chainID uint64) *scriptedWallet {
	return &scriptedWallet{
		account:    common.HexToAddress("0x12BF7CF7361653d63C1872Ae0F9636Ba80447fA5"),
		chainID:    chainID,
		switchTo:   50312,
		acceptsHex: "0xC488",
	}
}

func TestGuardCheck(t *testing.T) {
	guard := NewGuard(newScripted(1), somnia)

	if got := guard.Check(Session{}); got != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", got)
	}
	if got := guard.Check(Session{Connected: true, ChainID: 50312}); got != StateAligned {
		t.Fatalf("expected aligned, got %s", got)
	}
	if got := guard.Check(Session{Connected: true, ChainID: 1}); got != StateMisaligned {
		t.Fatalf("expected misaligned, got %s", got)
	}
}

func TestGuardReconcileAlignedIsNoop(t *testing.T) {
	w := newScripted(50312)
	guard := NewGuard(w, somnia)

	session := Session{Address: w.account, ChainID: 50312, Connected: true}
	got, state, err := guard.Reconcile(context.Background(), session)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if state != StateAligned {
		t.Fatalf("expected aligned, got %s", state)
	}
	if got != session || len(w.calls) != 0 {
		t.Fatalf("expected no wallet calls, got %v", w.calls)
	}
}

func TestGuardReconcileSwitchesAndRederives(t *testing.T) {
	w := newScripted(1)
	guard := NewGuard(w, somnia)

	got, state, err := guard.Reconcile(context.Background(), Session{Address: w.account, ChainID: 1, Connected: true})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if got.ChainID != 50312 {
		t.Fatalf("expected re-derived chain id, got %+v", got)
	}
	if state != StateAligned || guard.State() != StateAligned {
		t.Fatalf("expected aligned, got %s / %s", state, guard.State())
	}
	want := []string{"wallet_switchEthereumChain", "eth_requestAccounts", "eth_chainId"}
	if len(w.calls) != len(want) {
		t.Fatalf("unexpected calls %v", w.calls)
	}
	for i := range want {
		if w.calls[i] != want[i] {
			t.Fatalf("unexpected calls %v", w.calls)
		}
	}
}

func TestGuardReconcileRegistersUnknownChainThenRetriesOnce(t *testing.T) {
	w := newScripted(1)
	w.switchErrs = []error{ErrUnrecognizedChain}
	guard := NewGuard(w, somnia)

	got, _, err := guard.Reconcile(context.Background(), Session{Address: w.account, ChainID: 1, Connected: true})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if got.ChainID != 50312 {
		t.Fatalf("unexpected session %+v", got)
	}
	if w.calls[0] != "wallet_switchEthereumChain" || w.calls[1] != "wallet_addEthereumChain" || w.calls[2] != "wallet_switchEthereumChain" {
		t.Fatalf("unexpected call order %v", w.calls)
	}
}

func TestGuardReconcileFailsWithoutFurtherRetries(t *testing.T) {
	w := newScripted(1)
	w.switchErrs = []error{ErrUnrecognizedChain, ErrUnrecognizedChain, nil}
	guard := NewGuard(w, somnia)

	session := Session{Address: w.account, ChainID: 1, Connected: true}
	got, state, err := guard.Reconcile(context.Background(), session)
	if !xerrors.HasCode(err, xerrors.CodeNetworkSwitchFailed) {
		t.Fatalf("expected network switch failure, got %v", err)
	}
	if state != StateSwitchFailed || guard.State() != StateSwitchFailed {
		t.Fatalf("expected switch failed, got %s / %s", state, guard.State())
	}
	if got != session {
		t.Fatalf("session must stay misaligned, got %+v", got)
	}
	switches := 0
	for _, call := range w.calls {
		if call == "wallet_switchEthereumChain" {
			switches++
		}
	}
	if switches != 2 {
		t.Fatalf("expected exactly two switch attempts, got %d (%v)", switches, w.calls)
	}
}

func TestGuardReconcileOtherWalletErrors(t *testing.T) {
	w := newScripted(1)
	w.switchErrs = []error{errors.Join(ErrUserRejected, errors.New("User rejected the request."))}
	guard := NewGuard(w, somnia)

	_, state, err := guard.Reconcile(context.Background(), Session{Address: w.account, ChainID: 1, Connected: true})
	if !xerrors.HasCode(err, xerrors.CodeNetworkSwitchFailed) {
		t.Fatalf("expected network switch failure, got %v", err)
	}
	if state != StateSwitchFailed {
		t.Fatalf("expected switch failed, got %s", state)
	}
	if !errors.Is(err, ErrUserRejected) {
		t.Fatalf("expected underlying rejection to be preserved, got %v", err)
	}
	for _, call := range w.calls {
		if call == "wallet_addEthereumChain" {
			t.Fatalf("must not register chain for non-4902 errors: %v", w.calls)
		}
	}
}

func TestGuardReconcileAddChainFailure(t *testing.T) {
	w := newScripted(1)
	w.switchErrs = []error{ErrUnrecognizedChain}
	w.addErr = errors.New("add chain refused")
	guard := NewGuard(w, somnia)

	_, state, err := guard.Reconcile(context.Background(), Session{Address: w.account, ChainID: 1, Connected: true})
	if !xerrors.HasCode(err, xerrors.CodeNetworkSwitchFailed) {
		t.Fatalf("expected network switch failure, got %v", err)
	}
	if state != StateSwitchFailed {
		t.Fatalf("expected switch failed, got %s", state)
	}
}

func TestGuardReconcileStillMisalignedAfterSwitch(t *testing.T) {
	w := newScripted(1)
	w.acceptsHex = "0xdead"
	guard := NewGuard(w, somnia)

	got, state, err := guard.Reconcile(context.Background(), Session{Address: w.account, ChainID: 1, Connected: true})
	if !xerrors.HasCode(err, xerrors.CodeNetworkSwitchFailed) {
		t.Fatalf("expected network switch failure, got %v", err)
	}
	if state != StateSwitchFailed {
		t.Fatalf("expected switch failed, got %s", state)
	}
	if got.ChainID != 1 {
		t.Fatalf("expected re-read chain id to be reported, got %+v", got)
	}
}

func TestGuardNegotiateTracksState(t *testing.T) {
	w := newScripted(1)
	guard := NewGuard(w, somnia)
	if guard.State() != StateDisconnected {
		t.Fatalf("expected initial state disconnected, got %s", guard.State())
	}

	session, state, err := guard.Negotiate(context.Background())
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	if state != StateMisaligned || guard.State() != StateMisaligned {
		t.Fatalf("expected misaligned, got %s / %s", state, guard.State())
	}

	_, state, err = guard.Reconcile(context.Background(), session)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if state != StateAligned {
		t.Fatalf("expected aligned after switch, got %s", state)
	}

	guard.Reset()
	if guard.State() != StateDisconnected {
		t.Fatalf("expected disconnected after reset, got %s", guard.State())
	}
}

func TestGuardNegotiateFailureDisconnects(t *testing.T) {
	guard := NewGuard(rejectingWallet{newScripted(1)}, somnia)

	_, state, err := guard.Negotiate(context.Background())
	if !xerrors.HasCode(err, xerrors.CodeUserRejected) {
		t.Fatalf("expected user rejected, got %v", err)
	}
	if state != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", state)
	}
}

func TestNegotiateMapsRejection(t *testing.T) {
	_, err := Negotiate(context.Background(), rejectingWallet{newScripted(1)})
	if !xerrors.HasCode(err, xerrors.CodeUserRejected) {
		t.Fatalf("expected user rejected, got %v", err)
	}
	if _, err := Negotiate(context.Background(), nil); !xerrors.HasCode(err, CodeWalletUnavailable) {
		t.Fatalf("expected wallet unavailable, got %v", err)
	}
}

type rejectingWallet struct{ *scriptedWallet }

func (rejectingWallet) RequestAccounts(context.Context) ([]common.Address, error) {
	return nil, ErrUserRejected
}
