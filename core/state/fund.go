package state

import (
	"fmt"
	"math/big"
	"sort"

	"tranchefi/crypto"
	"tranchefi/native/fund"
)

type fundAddressesRecord struct {
	Router         string
	Pool           string
	PrincipalToken string
	AltToken       string
}

type fundShareRecord struct {
	Investor  string
	Principal *big.Int
}

type fundStateRecord struct {
	Shares            []fundShareRecord
	TotalSenior       *big.Int
	TotalSubordinated *big.Int
	TotalReserve      *big.Int
}

func decodeAddress(s string) (crypto.Address, error) {
	if s == "" {
		return crypto.Address{}, nil
	}
	return crypto.DecodeAddress(s)
}

type addressField struct {
	name  string
	value string
	dst   *crypto.Address
}

func decodeAddresses(fields ...addressField) error {
	for _, f := range fields {
		addr, err := decodeAddress(f.value)
		if err != nil {
			return fmt.Errorf("state: %s: %w", f.name, err)
		}
		*f.dst = addr
	}
	return nil
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// FundAddresses loads the fund's collaborators; nil when the fund has not
// been initialised.
func (m *Manager) FundAddresses() (*fund.Addresses, error) {
	var rec fundAddressesRecord
	ok, err := m.KVGet(FundAddressesKey(), &rec)
	if err != nil || !ok {
		return nil, err
	}
	addrs := new(fund.Addresses)
	if err := decodeAddresses(
		addressField{"router", rec.Router, &addrs.Router},
		addressField{"pool", rec.Pool, &addrs.Pool},
		addressField{"principal token", rec.PrincipalToken, &addrs.PrincipalToken},
		addressField{"alt token", rec.AltToken, &addrs.AltToken},
	); err != nil {
		return nil, err
	}
	return addrs, nil
}

func (m *Manager) PutFundAddresses(addrs *fund.Addresses) error {
	if addrs == nil {
		return fmt.Errorf("state: nil fund addresses")
	}
	return m.KVPut(FundAddressesKey(), fundAddressesRecord{
		Router:         addrs.Router.String(),
		Pool:           addrs.Pool.String(),
		PrincipalToken: addrs.PrincipalToken.String(),
		AltToken:       addrs.AltToken.String(),
	})
}

// FundState loads the fund ledger; nil when the fund has not been
// initialised.
func (m *Manager) FundState() (*fund.State, error) {
	var rec fundStateRecord
	ok, err := m.KVGet(FundStateKey(), &rec)
	if err != nil || !ok {
		return nil, err
	}
	st := fund.NewState()
	st.TotalSenior = bigOrZero(rec.TotalSenior)
	st.TotalSubordinated = bigOrZero(rec.TotalSubordinated)
	st.TotalReserve = bigOrZero(rec.TotalReserve)
	for _, share := range rec.Shares {
		investor, err := crypto.DecodeAddress(share.Investor)
		if err != nil {
			return nil, fmt.Errorf("state: share investor: %w", err)
		}
		st.Shares[investor] = bigOrZero(share.Principal)
	}
	return st, nil
}

// PutFundState stores the fund ledger with shares sorted by investor.
func (m *Manager) PutFundState(st *fund.State) error {
	if st == nil {
		return fmt.Errorf("state: nil fund state")
	}
	rec := fundStateRecord{
		Shares:            make([]fundShareRecord, 0, len(st.Shares)),
		TotalSenior:       bigOrZero(st.TotalSenior),
		TotalSubordinated: bigOrZero(st.TotalSubordinated),
		TotalReserve:      bigOrZero(st.TotalReserve),
	}
	for investor, principal := range st.Shares {
		rec.Shares = append(rec.Shares, fundShareRecord{Investor: investor.String(), Principal: bigOrZero(principal)})
	}
	sort.Slice(rec.Shares, func(i, j int) bool { return rec.Shares[i].Investor < rec.Shares[j].Investor })
	return m.KVPut(FundStateKey(), rec)
}
