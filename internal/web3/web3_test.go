package web3

import (
	"os"
	"path/filepath"
	"testing"

	xerrors "BasicAgent-Console/internal/errors"
)

func TestIsAddress(t *testing.T) {
	cases := map[string]bool{
		"0x12BF7CF7361653d63C1872Ae0F9636Ba80447fA5":  true,
		"0x12bf7cf7361653d63c1872ae0f9636ba80447fa5":  true,
		"0X12BF7CF7361653D63C1872AE0F9636BA80447FA5":  true,
		"12BF7CF7361653d63C1872Ae0F9636Ba80447fA5":    false,
		"0x12BF7CF7361653d63C1872Ae0F9636Ba80447fA":   false,
		"0x12BF7CF7361653d63C1872Ae0F9636Ba80447fA5a": false,
		"0xZZBF7CF7361653d63C1872Ae0F9636Ba80447fA5":  false,
		"":   false,
		"0x": false,
	}
	for raw, want := range cases {
		if got := IsAddress(raw); got != want {
			t.Fatalf("IsAddress(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestParseAddressReturnsValidationError(t *testing.T) {
	_, err := ParseAddress("合约", "not-an-address")
	if !xerrors.HasCode(err, xerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLoadChainDefinitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	content := `chains:
  somnia-testnet:
    type: evm
    name: Somnia Testnet
    chain_id: 50312
    chain_id_hex: "0xC488"
    native_currency:
      name: STT
      symbol: STT
      decimals: 18
    rpc_url: https://dream-rpc.somnia.network
    explorer_url: https://explorer.somnia.network
    tx_explorer_url: https://somnia-testnet.blockscout.com/
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write chains file: %v", err)
	}

	defs, err := LoadChainDefinitions(path)
	if err != nil {
		t.Fatalf("load definitions: %v", err)
	}
	chain, ok := defs.Chains["somnia-testnet"]
	if !ok {
		t.Fatalf("missing chain definition: %+v", defs)
	}

	params := chain.AddChainParams()
	if params.ChainID != "0xC488" || params.NativeCurrency.Decimals != 18 {
		t.Fatalf("unexpected add chain params: %+v", params)
	}
	if len(params.BlockExplorerURLs) != 1 || params.BlockExplorerURLs[0] != "https://explorer.somnia.network" {
		t.Fatalf("unexpected explorer urls: %+v", params.BlockExplorerURLs)
	}
	if got := chain.TxURL("0xabc"); got != "https://somnia-testnet.blockscout.com/tx/0xabc" {
		t.Fatalf("unexpected tx url %q", got)
	}
}

func TestChainDefinitionRejectsMismatchedHex(t *testing.T) {
	def := ChainDefinition{ChainID: 50312, ChainIDHex: "0xC489"}
	if err := def.Validate(); err == nil {
		t.Fatal("expected mismatch error")
	}
	if got := (ChainDefinition{ChainID: 50312}).HexChainID(); got != "0xc488" {
		t.Fatalf("unexpected derived hex id %q", got)
	}
}
