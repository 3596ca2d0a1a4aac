package state

import (
	"fmt"
	"math/big"

	"tranchefi/crypto"
	"tranchefi/native/credit"
)

type creditAddressesRecord struct {
	Router         string
	Pool           string
	PrincipalToken string
}

type loanRequestRecord struct {
	Borrower       string
	Amount         *big.Int
	InterestRate   *big.Int
	OriginationFee *big.Int
	Approved       bool
}

type loanRecord struct {
	Borrower          string
	Principal         *big.Int
	InterestRate      *big.Int
	TotalInterestPaid *big.Int
	PaidPrincipal     *big.Int
	TermInMonths      uint32
	StartTimestamp    uint64
}

func (m *Manager) CreditAddresses() (*credit.Addresses, error) {
	var rec creditAddressesRecord
	ok, err := m.KVGet(CreditAddressesKey(), &rec)
	if err != nil || !ok {
		return nil, err
	}
	addrs := new(credit.Addresses)
	if err := decodeAddresses(
		addressField{"router", rec.Router, &addrs.Router},
		addressField{"pool", rec.Pool, &addrs.Pool},
		addressField{"principal token", rec.PrincipalToken, &addrs.PrincipalToken},
	); err != nil {
		return nil, err
	}
	return addrs, nil
}

func (m *Manager) PutCreditAddresses(addrs *credit.Addresses) error {
	if addrs == nil {
		return fmt.Errorf("state: nil credit addresses")
	}
	return m.KVPut(CreditAddressesKey(), creditAddressesRecord{
		Router:         addrs.Router.String(),
		Pool:           addrs.Pool.String(),
		PrincipalToken: addrs.PrincipalToken.String(),
	})
}

// LoanRequest loads the borrower's request; nil when none was filed.
func (m *Manager) LoanRequest(borrower crypto.Address) (*credit.LoanRequest, error) {
	var rec loanRequestRecord
	ok, err := m.KVGet(LoanRequestKey(borrower), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &credit.LoanRequest{
		Borrower:       borrower,
		Amount:         bigOrZero(rec.Amount),
		InterestRate:   bigOrZero(rec.InterestRate),
		OriginationFee: bigOrZero(rec.OriginationFee),
		Approved:       rec.Approved,
	}, nil
}

func (m *Manager) PutLoanRequest(req *credit.LoanRequest) error {
	if req == nil {
		return fmt.Errorf("state: nil loan request")
	}
	return m.KVPut(LoanRequestKey(req.Borrower), loanRequestRecord{
		Borrower:       req.Borrower.String(),
		Amount:         bigOrZero(req.Amount),
		InterestRate:   bigOrZero(req.InterestRate),
		OriginationFee: bigOrZero(req.OriginationFee),
		Approved:       req.Approved,
	})
}

// Loan loads the borrower's active loan; nil when there is none.
func (m *Manager) Loan(borrower crypto.Address) (*credit.Loan, error) {
	var rec loanRecord
	ok, err := m.KVGet(LoanKey(borrower), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &credit.Loan{
		Borrower:          borrower,
		Principal:         bigOrZero(rec.Principal),
		InterestRate:      bigOrZero(rec.InterestRate),
		TotalInterestPaid: bigOrZero(rec.TotalInterestPaid),
		PaidPrincipal:     bigOrZero(rec.PaidPrincipal),
		TermInMonths:      rec.TermInMonths,
		StartTimestamp:    rec.StartTimestamp,
	}, nil
}

func (m *Manager) PutLoan(loan *credit.Loan) error {
	if loan == nil {
		return fmt.Errorf("state: nil loan")
	}
	return m.KVPut(LoanKey(loan.Borrower), loanRecord{
		Borrower:          loan.Borrower.String(),
		Principal:         bigOrZero(loan.Principal),
		InterestRate:      bigOrZero(loan.InterestRate),
		TotalInterestPaid: bigOrZero(loan.TotalInterestPaid),
		PaidPrincipal:     bigOrZero(loan.PaidPrincipal),
		TermInMonths:      loan.TermInMonths,
		StartTimestamp:    loan.StartTimestamp,
	})
}

func (m *Manager) DeleteLoan(borrower crypto.Address) error {
	return m.KVDelete(LoanKey(borrower))
}
