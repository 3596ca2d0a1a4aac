package common

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"tranchefi/crypto"
)

func TestGuard(t *testing.T) {
	pauses := Pauses{"fund": true}
	if err := Guard(pauses, "fund"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(pauses, "credit"); err != nil {
		t.Fatalf("expected credit to be active, got %v", err)
	}
	if err := Guard(nil, "fund"); err != nil {
		t.Fatalf("nil pause view must not block, got %v", err)
	}
}

func TestRequireAuth(t *testing.T) {
	alice := crypto.NewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{0x0A}, 20))
	bob := crypto.NewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{0x0B}, 20))

	if err := RequireAuth(context.Background(), alice); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized without signers, got %v", err)
	}
	ctx := WithSigners(context.Background(), alice, crypto.Address{})
	if err := RequireAuth(ctx, alice); err != nil {
		t.Fatalf("expected alice to be authorized, got %v", err)
	}
	if err := RequireAuth(ctx, bob); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected bob to be rejected, got %v", err)
	}
	ctx = WithSigners(ctx, bob)
	if len(Signers(ctx)) != 2 {
		t.Fatalf("expected signers to accumulate, got %d", len(Signers(ctx)))
	}
}

func TestValidateAmount(t *testing.T) {
	cases := []struct {
		name  string
		value *big.Int
		ok    bool
	}{
		{"nil", nil, false},
		{"negative", big.NewInt(-1), false},
		{"zero", big.NewInt(0), true},
		{"max", new(big.Int).Set(MaxAmount), true},
		{"overflow", new(big.Int).Add(MaxAmount, big.NewInt(1)), false},
	}
	for _, tc := range cases {
		err := ValidateAmount("amount", tc.value)
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%s: expected ErrInvalidAmount, got %v", tc.name, err)
		}
	}
}
