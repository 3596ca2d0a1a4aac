package common

import (
	"fmt"
	"math/big"
)

// Amounts are signed 128-bit integers.
var (
	MaxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	MinAmount = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

// ValidateAmount rejects nil, negative and out-of-range caller amounts.
func ValidateAmount(name string, amount *big.Int) error {
	if amount == nil {
		return fmt.Errorf("%w: %s is required", ErrInvalidAmount, name)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("%w: %s must not be negative", ErrInvalidAmount, name)
	}
	if amount.Cmp(MaxAmount) > 0 {
		return fmt.Errorf("%w: %s exceeds 128-bit range", ErrInvalidAmount, name)
	}
	return nil
}

// CheckRange reports an overflow when v left the 128-bit range.
func CheckRange(name string, v *big.Int) error {
	if v == nil {
		return nil
	}
	if v.Cmp(MaxAmount) > 0 || v.Cmp(MinAmount) < 0 {
		return fmt.Errorf("%w: %s overflows 128-bit range", ErrInvalidAmount, name)
	}
	return nil
}

// Copy returns a detached copy of v, treating nil as zero.
func Copy(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
