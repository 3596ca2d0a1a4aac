package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tranchefi/services/ledgerd/middleware"
)

const envAuthSecret = "LEDGERD_AUTH_SECRET"

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().String("secret", "", "HMAC secret shared with ledgerd (env "+envAuthSecret+")")
	tokenCmd.Flags().StringSlice("scope", nil, "scopes to grant, e.g. "+middleware.ScopeOperator)
	tokenCmd.Flags().Bool("operator", false, "grant the operator scope")
	tokenCmd.Flags().String("issuer", "", "iss claim")
	tokenCmd.Flags().String("audience", "", "aud claim")
	tokenCmd.Flags().Duration("ttl", time.Hour, "token lifetime")
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the signer account",
	RunE:  runToken,
}

func runToken(cmd *cobra.Command, _ []string) error {
	secret, _ := cmd.Flags().GetString("secret")
	if strings.TrimSpace(secret) == "" {
		secret = os.Getenv(envAuthSecret)
	}
	subject, err := signerFrom(cmd)
	if err != nil {
		return err
	}
	if subject.IsZero() {
		return fmt.Errorf("--signer or --keystore is required")
	}
	scopes, _ := cmd.Flags().GetStringSlice("scope")
	if operator, _ := cmd.Flags().GetBool("operator"); operator {
		scopes = append(scopes, middleware.ScopeOperator)
	}
	issuer, _ := cmd.Flags().GetString("issuer")
	audience, _ := cmd.Flags().GetString("audience")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	token, err := middleware.SignToken(secret, middleware.TokenRequest{
		Subject:  subject,
		Scopes:   scopes,
		Issuer:   issuer,
		Audience: audience,
		TTL:      ttl,
	}, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
