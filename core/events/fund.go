package events

import (
	"math/big"

	"tranchefi/core/types"
	"tranchefi/crypto"
)

const (
	// TypeFundInitialized is emitted when the fund addresses are (re)written.
	TypeFundInitialized = "fund.initialized"
	// TypeFundInvested is emitted after a deposit is split across the tranches.
	TypeFundInvested = "fund.invested"
	// TypeFundDonated is emitted when a donor tops up the reserve.
	TypeFundDonated = "fund.donated"
	// TypeFundUnstakeRequested is emitted when a subordinated withdrawal is
	// requested from the yield pool.
	TypeFundUnstakeRequested = "fund.unstake_requested"
	// TypeFundRedeemed is emitted when an investor's principal and yield are paid.
	TypeFundRedeemed = "fund.redeemed"
)

type FundInitialized struct {
	Router         crypto.Address
	Pool           crypto.Address
	PrincipalToken crypto.Address
	AltToken       crypto.Address
}

func (FundInitialized) EventType() string { return TypeFundInitialized }

func (e FundInitialized) Event() *types.Event {
	return &types.Event{
		Type: TypeFundInitialized,
		Attributes: map[string]string{
			"router":         addressString(e.Router),
			"pool":           addressString(e.Pool),
			"principalToken": addressString(e.PrincipalToken),
			"altToken":       addressString(e.AltToken),
		},
	}
}

type FundInvested struct {
	Investor     crypto.Address
	Amount       *big.Int
	Senior       *big.Int
	Subordinated *big.Int
	Reserve      *big.Int
}

func (FundInvested) EventType() string { return TypeFundInvested }

func (e FundInvested) Event() *types.Event {
	return &types.Event{
		Type: TypeFundInvested,
		Attributes: map[string]string{
			"investor":     addressString(e.Investor),
			"amount":       amountString(e.Amount),
			"senior":       amountString(e.Senior),
			"subordinated": amountString(e.Subordinated),
			"reserve":      amountString(e.Reserve),
		},
	}
}

type FundDonated struct {
	Donor  crypto.Address
	Amount *big.Int
}

func (FundDonated) EventType() string { return TypeFundDonated }

func (e FundDonated) Event() *types.Event {
	return &types.Event{
		Type: TypeFundDonated,
		Attributes: map[string]string{
			"donor":  addressString(e.Donor),
			"amount": amountString(e.Amount),
		},
	}
}

type FundUnstakeRequested struct {
	Amount    *big.Int
	Recipient crypto.Address
}

func (FundUnstakeRequested) EventType() string { return TypeFundUnstakeRequested }

func (e FundUnstakeRequested) Event() *types.Event {
	return &types.Event{
		Type: TypeFundUnstakeRequested,
		Attributes: map[string]string{
			"amount":    amountString(e.Amount),
			"recipient": addressString(e.Recipient),
		},
	}
}

type FundRedeemed struct {
	Investor  crypto.Address
	Principal *big.Int
	Yield     *big.Int
	Payment   *big.Int
}

func (FundRedeemed) EventType() string { return TypeFundRedeemed }

func (e FundRedeemed) Event() *types.Event {
	return &types.Event{
		Type: TypeFundRedeemed,
		Attributes: map[string]string{
			"investor":  addressString(e.Investor),
			"principal": amountString(e.Principal),
			"yield":     amountString(e.Yield),
			"payment":   amountString(e.Payment),
		},
	}
}
