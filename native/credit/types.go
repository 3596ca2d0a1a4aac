package credit

import (
	"math/big"

	"tranchefi/crypto"
	nativecommon "tranchefi/native/common"
)

// Addresses lists the collaborators the loan ledger talks to.
type Addresses struct {
	Router         crypto.Address
	Pool           crypto.Address
	PrincipalToken crypto.Address
}

// LoanRequest is a borrower's pending (or approved) application. Rates are
// whole percentages.
type LoanRequest struct {
	Borrower       crypto.Address
	Amount         *big.Int
	InterestRate   *big.Int
	OriginationFee *big.Int
	Approved       bool
}

func (r *LoanRequest) Clone() *LoanRequest {
	if r == nil {
		return nil
	}
	return &LoanRequest{
		Borrower:       r.Borrower,
		Amount:         nativecommon.Copy(r.Amount),
		InterestRate:   nativecommon.Copy(r.InterestRate),
		OriginationFee: nativecommon.Copy(r.OriginationFee),
		Approved:       r.Approved,
	}
}

// Loan is an active loan. While it exists PaidPrincipal < Principal.
type Loan struct {
	Borrower          crypto.Address
	Principal         *big.Int
	InterestRate      *big.Int
	TotalInterestPaid *big.Int
	PaidPrincipal     *big.Int
	TermInMonths      uint32
	StartTimestamp    uint64
}

func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	return &Loan{
		Borrower:          l.Borrower,
		Principal:         nativecommon.Copy(l.Principal),
		InterestRate:      nativecommon.Copy(l.InterestRate),
		TotalInterestPaid: nativecommon.Copy(l.TotalInterestPaid),
		PaidPrincipal:     nativecommon.Copy(l.PaidPrincipal),
		TermInMonths:      l.TermInMonths,
		StartTimestamp:    l.StartTimestamp,
	}
}

// Outstanding returns Principal - PaidPrincipal.
func (l *Loan) Outstanding() *big.Int {
	return new(big.Int).Sub(nativecommon.Copy(l.Principal), nativecommon.Copy(l.PaidPrincipal))
}

// Installment summarises a PayInstallment call.
type Installment struct {
	Interest  *big.Int
	Remaining *big.Int
	Repaid    bool
}

// Payoff summarises a PayOffLoan call.
type Payoff struct {
	AmountDue     *big.Int
	MonthsElapsed uint64
}
