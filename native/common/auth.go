package common

import (
	"context"
	"fmt"

	"tranchefi/crypto"
)

type signersKey struct{}

// WithSigners returns a context carrying the principals that authorized the
// current call.
func WithSigners(ctx context.Context, signers ...crypto.Address) context.Context {
	existing := Signers(ctx)
	merged := make([]crypto.Address, 0, len(existing)+len(signers))
	merged = append(merged, existing...)
	for _, signer := range signers {
		if !signer.IsZero() {
			merged = append(merged, signer)
		}
	}
	return context.WithValue(ctx, signersKey{}, merged)
}

// Signers lists the principals attached to ctx.
func Signers(ctx context.Context) []crypto.Address {
	if ctx == nil {
		return nil
	}
	signers, _ := ctx.Value(signersKey{}).([]crypto.Address)
	return signers
}

// RequireAuth fails with ErrUnauthorized unless principal signed the call.
func RequireAuth(ctx context.Context, principal crypto.Address) error {
	for _, signer := range Signers(ctx) {
		if signer == principal {
			return nil
		}
	}
	return fmt.Errorf("%w: %s did not authorize the call", ErrUnauthorized, principal)
}
