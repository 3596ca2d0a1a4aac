package state

import "tranchefi/crypto"

const (
	fundAddressesKey   = "fund/addresses"
	fundStateKey       = "fund/state"
	creditAddressesKey = "credit/addresses"
	creditRequestPref  = "credit/request/"
	creditLoanPref     = "credit/loan/"
)

// FundAddressesKey returns the key of the fund's collaborator record.
func FundAddressesKey() []byte { return []byte(fundAddressesKey) }

// FundStateKey returns the key of the fund ledger singleton.
func FundStateKey() []byte { return []byte(fundStateKey) }

// CreditAddressesKey returns the key of the loan ledger's collaborator record.
func CreditAddressesKey() []byte { return []byte(creditAddressesKey) }

// LoanRequestKey returns the key of the borrower's loan request.
func LoanRequestKey(borrower crypto.Address) []byte {
	return []byte(creditRequestPref + borrower.String())
}

// LoanKey returns the key of the borrower's active loan.
func LoanKey(borrower crypto.Address) []byte {
	return []byte(creditLoanPref + borrower.String())
}
