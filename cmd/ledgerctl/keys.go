package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tranchefi/cmd/internal/passphrase"
	"tranchefi/crypto"
)

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysNewCmd)
	keysCmd.AddCommand(keysShowCmd)

	keysNewCmd.Flags().StringP("out", "o", "", "keystore file to create")
	keysNewCmd.Flags().Bool("force", false, "overwrite an existing keystore")
	keysShowCmd.Flags().Bool("verify", false, "decrypt the keystore to confirm the passphrase")
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage account keystores",
}

var keysNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Generate a key and write it to an encrypted keystore",
	RunE:  runKeysNew,
}

func runKeysNew(cmd *cobra.Command, _ []string) error {
	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		return fmt.Errorf("--out is required")
	}
	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(out); err == nil && !force {
		return fmt.Errorf("%s already exists; pass --force to overwrite", out)
	}
	pass, err := passphrase.NewSource(envPassphrase).WithConfirm().Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if err := crypto.SaveToKeystore(out, key, pass); err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	return printJSON(cmd, map[string]string{"address": key.PubKey().Address().String(), "keystore": out})
}

var keysShowCmd = &cobra.Command{
	Use:   "show KEYSTORE",
	Short: "Print the account address of a keystore",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysShow,
}

func runKeysShow(cmd *cobra.Command, args []string) error {
	addr, err := crypto.KeystoreAddress(args[0])
	if err != nil {
		return err
	}
	verify, _ := cmd.Flags().GetBool("verify")
	if verify {
		pass, err := passphrase.NewSource(envPassphrase).Get()
		if err != nil {
			return err
		}
		key, err := crypto.LoadFromKeystore(args[0], pass)
		if err != nil {
			return fmt.Errorf("decrypt keystore: %w", err)
		}
		if key.PubKey().Address() != addr {
			return fmt.Errorf("keystore address does not match its key")
		}
	}
	return printJSON(cmd, map[string]any{"address": addr.String(), "verified": verify})
}
