package fund

import (
	"math/big"
	"sort"

	"tranchefi/crypto"
	nativecommon "tranchefi/native/common"
)

// Addresses lists the collaborators the fund talks to.
type Addresses struct {
	Router         crypto.Address
	Pool           crypto.Address
	PrincipalToken crypto.Address
	AltToken       crypto.Address
}

// State is the fund's tranche ledger. Shares tracks the principal each
// investor has contributed and not yet redeemed; redeemed entries stay in
// the map at zero.
type State struct {
	Shares            map[crypto.Address]*big.Int
	TotalSenior       *big.Int
	TotalSubordinated *big.Int
	TotalReserve      *big.Int
}

// NewState returns an empty, zeroed ledger.
func NewState() *State {
	return &State{
		Shares:            make(map[crypto.Address]*big.Int),
		TotalSenior:       big.NewInt(0),
		TotalSubordinated: big.NewInt(0),
		TotalReserve:      big.NewInt(0),
	}
}

// Share returns the principal recorded for investor, zero when absent.
func (s *State) Share(investor crypto.Address) *big.Int {
	if s == nil {
		return big.NewInt(0)
	}
	return nativecommon.Copy(s.Shares[investor])
}

// Investors returns the share holders sorted by their bech32 form.
func (s *State) Investors() []crypto.Address {
	if s == nil {
		return nil
	}
	out := make([]crypto.Address, 0, len(s.Shares))
	for addr := range s.Shares {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	clone := &State{
		Shares:            make(map[crypto.Address]*big.Int, len(s.Shares)),
		TotalSenior:       nativecommon.Copy(s.TotalSenior),
		TotalSubordinated: nativecommon.Copy(s.TotalSubordinated),
		TotalReserve:      nativecommon.Copy(s.TotalReserve),
	}
	for addr, principal := range s.Shares {
		clone.Shares[addr] = nativecommon.Copy(principal)
	}
	return clone
}

func (s *State) normalize() {
	if s.Shares == nil {
		s.Shares = make(map[crypto.Address]*big.Int)
	}
	if s.TotalSenior == nil {
		s.TotalSenior = big.NewInt(0)
	}
	if s.TotalSubordinated == nil {
		s.TotalSubordinated = big.NewInt(0)
	}
	if s.TotalReserve == nil {
		s.TotalReserve = big.NewInt(0)
	}
}
