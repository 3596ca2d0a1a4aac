package fund

import (
	"fmt"
	"math/big"

	"tranchefi/crypto"
	nativecommon "tranchefi/native/common"
	"tranchefi/native/effects"
)

// applyInvest credits the split to the tranches and the full amount to the
// investor's share.
func applyInvest(st *State, addrs *Addresses, investor crypto.Address, amount *big.Int) (Tranches, []effects.Effect, error) {
	parts := Split(amount)

	senior := new(big.Int).Add(st.TotalSenior, parts.Senior)
	subordinated := new(big.Int).Add(st.TotalSubordinated, parts.Subordinated)
	reserve := new(big.Int).Add(st.TotalReserve, parts.Reserve)
	share := new(big.Int).Add(st.Share(investor), amount)
	checks := []struct {
		name  string
		value *big.Int
	}{{"senior", senior}, {"subordinated", subordinated}, {"reserve", reserve}, {"share", share}}
	for _, c := range checks {
		if err := nativecommon.CheckRange(c.name, c.value); err != nil {
			return Tranches{}, nil, err
		}
	}
	st.TotalSenior = senior
	st.TotalSubordinated = subordinated
	st.TotalReserve = reserve
	st.Shares[investor] = share

	return parts, []effects.Effect{
		effects.Swap{
			Router:    addrs.Router,
			TokenIn:   addrs.PrincipalToken,
			AmountIn:  new(big.Int).Set(parts.Senior),
			TokenOut:  addrs.AltToken,
			Recipient: investor,
		},
		effects.Supply{
			Pool:   addrs.Pool,
			Token:  addrs.AltToken,
			Amount: new(big.Int).Set(parts.Subordinated),
		},
	}, nil
}

// applyDonate adds the full amount to the reserve. Donors receive no share.
func applyDonate(st *State, addrs *Addresses, custody, donor crypto.Address, amount *big.Int) ([]effects.Effect, error) {
	reserve := new(big.Int).Add(st.TotalReserve, amount)
	if err := nativecommon.CheckRange("reserve", reserve); err != nil {
		return nil, err
	}
	st.TotalReserve = reserve
	return []effects.Effect{
		effects.Transfer{
			Token:  addrs.PrincipalToken,
			From:   donor,
			To:     custody,
			Amount: new(big.Int).Set(amount),
		},
	}, nil
}

// checkUnstake validates a subordinated withdrawal. The tranche total is left
// untouched; the withdrawal is only requested from the pool.
func checkUnstake(st *State, addrs *Addresses, amount *big.Int) ([]effects.Effect, error) {
	if st.TotalSubordinated.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: subordinated tranche holds %s, requested %s",
			nativecommon.ErrInsufficientBalance, st.TotalSubordinated, amount)
	}
	return []effects.Effect{
		effects.Withdraw{
			Pool:   addrs.Pool,
			Token:  addrs.AltToken,
			Amount: new(big.Int).Set(amount),
		},
	}, nil
}

// applyRedeem pays principal plus yield out of the senior tranche and zeroes
// the investor's share.
func applyRedeem(st *State, addrs *Addresses, custody, investor crypto.Address, yield *big.Int) (*big.Int, *big.Int, []effects.Effect, error) {
	principal := st.Share(investor)
	if principal.Sign() == 0 {
		return nil, nil, nil, fmt.Errorf("%w: %s has no principal", nativecommon.ErrNothingToRedeem, investor)
	}
	payment := new(big.Int).Add(principal, yield)
	if err := nativecommon.CheckRange("payment", payment); err != nil {
		return nil, nil, nil, err
	}
	if st.TotalSenior.Cmp(payment) < 0 {
		return nil, nil, nil, fmt.Errorf("%w: senior tranche holds %s, payment is %s",
			nativecommon.ErrInsufficientBalance, st.TotalSenior, payment)
	}
	st.TotalSenior = new(big.Int).Sub(st.TotalSenior, payment)
	st.Shares[investor] = big.NewInt(0)

	return principal, payment, []effects.Effect{
		effects.Transfer{
			Token:  addrs.PrincipalToken,
			From:   custody,
			To:     investor,
			Amount: new(big.Int).Set(payment),
		},
	}, nil
}
