package credit

import "math/big"

// DiscountPercent is withheld from every requested amount at origination.
const DiscountPercent = 10

// SecondsPerMonth is the 30-day month used for elapsed-term reporting.
const SecondsPerMonth = 2_592_000

var hundred = big.NewInt(100)

// Terms is the result of amortizing a request.
type Terms struct {
	Discount  *big.Int
	Disbursed *big.Int
	Principal *big.Int
}

// Amortize applies the origination discount and fee:
//
//	discount  = requested * 10 / 100
//	disbursed = requested - discount
//	principal = disbursed + disbursed * fee / 100
//
// Divisions truncate.
func Amortize(requested, fee *big.Int) Terms {
	discount := new(big.Int).Mul(requested, big.NewInt(DiscountPercent))
	discount.Quo(discount, hundred)
	disbursed := new(big.Int).Sub(requested, discount)
	charge := new(big.Int).Mul(disbursed, fee)
	charge.Quo(charge, hundred)
	return Terms{
		Discount:  discount,
		Disbursed: disbursed,
		Principal: new(big.Int).Add(disbursed, charge),
	}
}

// interestOn returns remaining * rate / 100, truncated.
func interestOn(remaining, rate *big.Int) *big.Int {
	out := new(big.Int).Mul(remaining, rate)
	return out.Quo(out, hundred)
}

// monthsElapsed counts whole 30-day months between start and now.
func monthsElapsed(start uint64, now int64) uint64 {
	if now <= 0 || uint64(now) <= start {
		return 0
	}
	return (uint64(now) - start) / SecondsPerMonth
}
