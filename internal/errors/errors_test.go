package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestWrapPreservesCauseMessage(t *testing.T) {
	cause := stdErrors.New("dial tcp 10.0.0.1:8545: connection refused")
	err := Wrap(CodeChainRead, cause, "读取合约状态失败")

	if !stdErrors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to be reachable")
	}
	want := "[CHAIN_READ_ERROR] 读取合约状态失败: dial tcp 10.0.0.1:8545: connection refused"
	if err.Error() != want {
		t.Fatalf("unexpected message: got %q want %q", err.Error(), want)
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeUserRejected, "签名被拒绝"))

	if !stdErrors.Is(err, New(CodeUserRejected, "")) {
		t.Fatalf("expected errors.Is to match by code")
	}
	if stdErrors.Is(err, New(CodeDispatch, "")) {
		t.Fatalf("did not expect a different code to match")
	}
	if CodeOf(err) != CodeUserRejected {
		t.Fatalf("unexpected code %s", CodeOf(err))
	}
}

func TestHTTPStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("bad address"), http.StatusBadRequest},
		{New(CodeChainRead, ""), http.StatusInternalServerError},
		{New(CodeReverted, ""), http.StatusInternalServerError},
		{stdErrors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatusOf(tc.err); got != tc.want {
			t.Fatalf("status for %v: got %d want %d", tc.err, got, tc.want)
		}
	}
}

func TestDefaultMessageAndMetadata(t *testing.T) {
	err := New(CodeReverted, "", WithMetadata("tx_hash", "0x01"), WithSeverity(SeverityCritical))

	if err.Message() != "transaction reverted" {
		t.Fatalf("unexpected default message %q", err.Message())
	}
	if err.Metadata()["tx_hash"] != "0x01" {
		t.Fatalf("metadata not attached: %+v", err.Metadata())
	}
	if err.Severity() != SeverityCritical {
		t.Fatalf("severity override ignored")
	}
	if Recoverable(err) {
		t.Fatalf("reverted transactions are not recoverable by retry")
	}
	if !Recoverable(New(CodeUserRejected, "")) {
		t.Fatalf("user rejection should be recoverable")
	}
}
