package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tranchefi/crypto"
	"tranchefi/services/ledgerd/client"
)

const (
	envServer     = "LEDGERCTL_SERVER"
	envToken      = "LEDGERCTL_TOKEN"
	envPassphrase = "LEDGERCTL_PASSPHRASE"
)

var rootCmd = &cobra.Command{
	Use:           "ledgerctl",
	Short:         "Operate the tranche fund and loan ledgers",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("server", envOr(envServer, "http://127.0.0.1:8087"), "ledgerd base URL (env "+envServer+")")
	flags.String("token", os.Getenv(envToken), "bearer token (env "+envToken+")")
	flags.String("signer", "", "bech32 signer address sent when no token is set")
	flags.String("keystore", "", "keystore whose address is used as the signer")
	flags.Duration("timeout", 30*time.Second, "request timeout")
	flags.Bool("simulate", false, "evaluate mutations without committing them")
	flags.String("idempotency-key", "", "idempotency key for the mutation (random by default)")
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// signerFrom resolves the calling account from --signer or --keystore.
func signerFrom(cmd *cobra.Command) (crypto.Address, error) {
	raw, _ := cmd.Flags().GetString("signer")
	if raw = strings.TrimSpace(raw); raw != "" {
		return crypto.DecodeAddress(raw)
	}
	path, _ := cmd.Flags().GetString("keystore")
	if path = strings.TrimSpace(path); path != "" {
		return crypto.KeystoreAddress(path)
	}
	return crypto.Address{}, nil
}

func newClient(cmd *cobra.Command) (*client.Client, error) {
	server, _ := cmd.Flags().GetString("server")
	token, _ := cmd.Flags().GetString("token")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	signer, err := signerFrom(cmd)
	if err != nil {
		return nil, fmt.Errorf("resolve signer: %w", err)
	}
	return client.New(client.Config{BaseURL: server, Token: token, Signer: signer, Timeout: timeout})
}

func callOptions(cmd *cobra.Command) client.Options {
	simulate, _ := cmd.Flags().GetBool("simulate")
	key, _ := cmd.Flags().GetString("idempotency-key")
	return client.Options{Simulate: simulate, IdempotencyKey: key}
}

// addressFlag reads a bech32 address flag, falling back to the signer when
// the flag is empty and useSigner is set.
func addressFlag(cmd *cobra.Command, name string, useSigner bool) (crypto.Address, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw = strings.TrimSpace(raw); raw != "" {
		addr, err := crypto.DecodeAddress(raw)
		if err != nil {
			return crypto.Address{}, fmt.Errorf("--%s: %w", name, err)
		}
		return addr, nil
	}
	if useSigner {
		signer, err := signerFrom(cmd)
		if err != nil {
			return crypto.Address{}, err
		}
		if !signer.IsZero() {
			return signer, nil
		}
	}
	return crypto.Address{}, fmt.Errorf("--%s is required", name)
}

func addressArg(raw string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("invalid address %q: %w", raw, err)
	}
	return addr, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
