package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"tranchefi/crypto"
	"tranchefi/native/effects"
	"tranchefi/services/ledgerd/journal"
	"tranchefi/services/ledgerd/ledger"
	"tranchefi/services/ledgerd/server"
	"tranchefi/storage"
)

func testAddress(prefix crypto.AddressPrefix, b byte) crypto.Address {
	return crypto.NewAddress(prefix, bytes.Repeat([]byte{b}, crypto.AddressLength))
}

func startLedgerd(t *testing.T) string {
	t.Helper()
	store, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	l, err := ledger.New(storage.NewMemDB(), ledger.Options{
		Custody:    testAddress(crypto.ContractPrefix, 0x05),
		Dispatcher: effects.NewDispatcher(&effects.Recorder{}, 0, nil),
		Journal:    store,
	})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	srv, err := server.New(server.Config{Ledger: l, Store: store})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("ledgerctl %s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

func TestFundCommandsAgainstServer(t *testing.T) {
	url := startLedgerd(t)
	investor := testAddress(crypto.AccountPrefix, 0xA1)

	run(t, "--server", url, "fund", "init",
		"--router", testAddress(crypto.ContractPrefix, 0x01).String(),
		"--pool", testAddress(crypto.ContractPrefix, 0x02).String(),
		"--principal-token", testAddress(crypto.ContractPrefix, 0x03).String(),
		"--alt-token", testAddress(crypto.ContractPrefix, 0x04).String())
	run(t, "--server", url, "--signer", investor.String(), "fund", "invest", "--amount", "10000")

	var state server.FundStateView
	if err := json.Unmarshal([]byte(run(t, "--server", url, "fund", "state")), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.TotalSenior != "8200" || state.TotalSubordinated != "1500" || state.TotalReserve != "300" {
		t.Fatalf("unexpected tranches %+v", state)
	}
	if len(state.Shares) != 1 || state.Shares[0].Investor != investor.String() {
		t.Fatalf("unexpected shares %+v", state.Shares)
	}
}

func flagCommand(values map[string]string) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	for _, name := range []string{"signer", "keystore", "investor", "amount"} {
		cmd.Flags().String(name, "", "")
	}
	for name, value := range values {
		_ = cmd.Flags().Set(name, value)
	}
	return cmd
}

func TestAddressFlagFallsBackToSigner(t *testing.T) {
	signer := testAddress(crypto.AccountPrefix, 0xB2)
	got, err := addressFlag(flagCommand(map[string]string{"signer": signer.String()}), "investor", true)
	if err != nil {
		t.Fatalf("address flag: %v", err)
	}
	if !got.Equal(signer) {
		t.Fatalf("expected signer fallback, got %s", got)
	}
	if _, err := addressFlag(flagCommand(nil), "investor", true); err == nil {
		t.Fatal("expected missing address to fail")
	}
	if _, err := addressFlag(flagCommand(map[string]string{"investor": "not-an-address"}), "investor", false); err == nil {
		t.Fatal("expected malformed address to fail")
	}
}

func TestRequiredString(t *testing.T) {
	if _, err := requiredString(flagCommand(nil), "amount"); err == nil {
		t.Fatal("expected empty amount to fail")
	}
	if v, err := requiredString(flagCommand(map[string]string{"amount": "5"}), "amount"); err != nil || v != "5" {
		t.Fatalf("unexpected %q, %v", v, err)
	}
}
