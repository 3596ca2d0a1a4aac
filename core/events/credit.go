package events

import (
	"math/big"
	"strconv"

	"tranchefi/core/types"
	"tranchefi/crypto"
)

const (
	TypeCreditInitialized = "credit.initialized"
	// TypeCreditRequested is emitted when a borrower files (or replaces) a
	// loan request.
	TypeCreditRequested = "credit.requested"
	// TypeCreditAccepted is emitted when a request is approved and disbursed.
	TypeCreditAccepted = "credit.accepted"
	// TypeCreditInstallmentPaid is emitted for every installment.
	TypeCreditInstallmentPaid = "credit.installment_paid"
	// TypeCreditRepaid is emitted when an installment retires the loan.
	TypeCreditRepaid = "credit.repaid"
	// TypeCreditPaidOff is emitted when a borrower settles early.
	TypeCreditPaidOff = "credit.paid_off"
)

type CreditInitialized struct {
	Router         crypto.Address
	Pool           crypto.Address
	PrincipalToken crypto.Address
}

func (CreditInitialized) EventType() string { return TypeCreditInitialized }

func (e CreditInitialized) Event() *types.Event {
	return &types.Event{
		Type: TypeCreditInitialized,
		Attributes: map[string]string{
			"router":         addressString(e.Router),
			"pool":           addressString(e.Pool),
			"principalToken": addressString(e.PrincipalToken),
		},
	}
}

type CreditRequested struct {
	Borrower       crypto.Address
	Amount         *big.Int
	InterestRate   *big.Int
	OriginationFee *big.Int
}

func (CreditRequested) EventType() string { return TypeCreditRequested }

func (e CreditRequested) Event() *types.Event {
	return &types.Event{
		Type: TypeCreditRequested,
		Attributes: map[string]string{
			"borrower":       addressString(e.Borrower),
			"amount":         amountString(e.Amount),
			"interestRate":   amountString(e.InterestRate),
			"originationFee": amountString(e.OriginationFee),
		},
	}
}

type CreditAccepted struct {
	Borrower     crypto.Address
	Requested    *big.Int
	Disbursed    *big.Int
	Principal    *big.Int
	TermInMonths uint32
	Start        uint64
}

func (CreditAccepted) EventType() string { return TypeCreditAccepted }

func (e CreditAccepted) Event() *types.Event {
	return &types.Event{
		Type: TypeCreditAccepted,
		Attributes: map[string]string{
			"borrower":     addressString(e.Borrower),
			"requested":    amountString(e.Requested),
			"disbursed":    amountString(e.Disbursed),
			"principal":    amountString(e.Principal),
			"termInMonths": strconv.FormatUint(uint64(e.TermInMonths), 10),
			"start":        strconv.FormatUint(e.Start, 10),
		},
	}
}

type CreditInstallmentPaid struct {
	Borrower      crypto.Address
	Amount        *big.Int
	Interest      *big.Int
	PaidPrincipal *big.Int
	Remaining     *big.Int
}

func (CreditInstallmentPaid) EventType() string { return TypeCreditInstallmentPaid }

func (e CreditInstallmentPaid) Event() *types.Event {
	return &types.Event{
		Type: TypeCreditInstallmentPaid,
		Attributes: map[string]string{
			"borrower":      addressString(e.Borrower),
			"amount":        amountString(e.Amount),
			"interest":      amountString(e.Interest),
			"paidPrincipal": amountString(e.PaidPrincipal),
			"remaining":     amountString(e.Remaining),
		},
	}
}

type CreditRepaid struct {
	Borrower          crypto.Address
	Principal         *big.Int
	TotalInterestPaid *big.Int
}

func (CreditRepaid) EventType() string { return TypeCreditRepaid }

func (e CreditRepaid) Event() *types.Event {
	return &types.Event{
		Type: TypeCreditRepaid,
		Attributes: map[string]string{
			"borrower":          addressString(e.Borrower),
			"principal":         amountString(e.Principal),
			"totalInterestPaid": amountString(e.TotalInterestPaid),
		},
	}
}

type CreditPaidOff struct {
	Borrower      crypto.Address
	AmountDue     *big.Int
	MonthsElapsed uint64
}

func (CreditPaidOff) EventType() string { return TypeCreditPaidOff }

func (e CreditPaidOff) Event() *types.Event {
	return &types.Event{
		Type: TypeCreditPaidOff,
		Attributes: map[string]string{
			"borrower":      addressString(e.Borrower),
			"amountDue":     amountString(e.AmountDue),
			"monthsElapsed": strconv.FormatUint(e.MonthsElapsed, 10),
		},
	}
}
