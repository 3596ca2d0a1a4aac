package fund

import "math/big"

// Tranche weights, in percent of the deposited amount.
const (
	SeniorPercent       = 82
	SubordinatedPercent = 15
	ReservePercent      = 3
)

var hundred = big.NewInt(100)

// Tranches is the result of splitting a deposit.
type Tranches struct {
	Senior       *big.Int
	Subordinated *big.Int
	Reserve      *big.Int
}

// Total returns senior + subordinated + reserve. It can be up to 2 units
// below the deposit because every part truncates independently.
func (t Tranches) Total() *big.Int {
	total := new(big.Int).Add(t.Senior, t.Subordinated)
	return total.Add(total, t.Reserve)
}

// Split divides amount 82/15/3 with truncating division. The remainder is
// not allocated.
func Split(amount *big.Int) Tranches {
	return Tranches{
		Senior:       percentOf(amount, SeniorPercent),
		Subordinated: percentOf(amount, SubordinatedPercent),
		Reserve:      percentOf(amount, ReservePercent),
	}
}

func percentOf(amount *big.Int, pct int64) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(pct))
	return out.Quo(out, hundred)
}
