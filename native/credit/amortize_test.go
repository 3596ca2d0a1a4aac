package credit

import (
	"math/big"
	"testing"
)

func TestAmortize(t *testing.T) {
	cases := []struct {
		requested, fee                 int64
		discount, disbursed, principal int64
	}{
		{10000, 2, 1000, 9000, 9180},
		{10000, 0, 1000, 9000, 9000},
		{999, 5, 99, 900, 945},
		{15, 3, 1, 14, 14},
		{0, 10, 0, 0, 0},
	}
	for _, tc := range cases {
		terms := Amortize(big.NewInt(tc.requested), big.NewInt(tc.fee))
		if terms.Discount.Int64() != tc.discount || terms.Disbursed.Int64() != tc.disbursed || terms.Principal.Int64() != tc.principal {
			t.Fatalf("amortize(%d, %d) = %s/%s/%s, want %d/%d/%d", tc.requested, tc.fee,
				terms.Discount, terms.Disbursed, terms.Principal,
				tc.discount, tc.disbursed, tc.principal)
		}
	}
}

func TestMonthsElapsed(t *testing.T) {
	start := uint64(1_700_000_000)
	if got := monthsElapsed(start, int64(start)+SecondsPerMonth-1); got != 0 {
		t.Fatalf("expected 0 months, got %d", got)
	}
	if got := monthsElapsed(start, int64(start)+3*SecondsPerMonth); got != 3 {
		t.Fatalf("expected 3 months, got %d", got)
	}
	if got := monthsElapsed(start, int64(start)-10); got != 0 {
		t.Fatalf("expected clock skew to clamp to 0, got %d", got)
	}
}
