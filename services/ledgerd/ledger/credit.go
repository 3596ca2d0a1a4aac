package ledger

import (
	"context"
	"math/big"

	"tranchefi/crypto"
	"tranchefi/native/credit"
	"tranchefi/native/effects"
)

type RequestResult struct {
	Receipt
	Request *credit.LoanRequest
}

type AcceptResult struct {
	Receipt
	Loan *credit.Loan
}

type InstallmentResult struct {
	Receipt
	Installment credit.Installment
}

type PayoffResult struct {
	Receipt
	Payoff credit.Payoff
}

func (l *Ledger) InitCredit(ctx context.Context, router, pool, principalToken crypto.Address) (Receipt, error) {
	return l.execute(ctx, moduleCredit, "init", func(s *session) ([]effects.Effect, error) {
		return nil, s.credit.Init(ctx, router, pool, principalToken)
	})
}

func (l *Ledger) RequestCredit(ctx context.Context, borrower crypto.Address, amount, interestRate, originationFee *big.Int) (RequestResult, error) {
	var req *credit.LoanRequest
	receipt, err := l.execute(ctx, moduleCredit, "request_credit", func(s *session) ([]effects.Effect, error) {
		out, err := s.credit.RequestCredit(ctx, borrower, amount, interestRate, originationFee)
		req = out
		return nil, err
	})
	if err != nil {
		return RequestResult{}, err
	}
	return RequestResult{Receipt: receipt, Request: req}, nil
}

func (l *Ledger) AcceptCredit(ctx context.Context, borrower crypto.Address, termInMonths uint32) (AcceptResult, error) {
	var loan *credit.Loan
	receipt, err := l.execute(ctx, moduleCredit, "accept_credit", func(s *session) ([]effects.Effect, error) {
		out, list, err := s.credit.AcceptCredit(ctx, borrower, termInMonths)
		loan = out
		return list, err
	})
	if err != nil {
		return AcceptResult{}, err
	}
	return AcceptResult{Receipt: receipt, Loan: loan}, nil
}

func (l *Ledger) PayInstallment(ctx context.Context, borrower crypto.Address, amount *big.Int) (InstallmentResult, error) {
	var inst credit.Installment
	receipt, err := l.execute(ctx, moduleCredit, "pay_installment", func(s *session) ([]effects.Effect, error) {
		out, list, err := s.credit.PayInstallment(ctx, borrower, amount)
		inst = out
		return list, err
	})
	if err != nil {
		return InstallmentResult{}, err
	}
	return InstallmentResult{Receipt: receipt, Installment: inst}, nil
}

func (l *Ledger) PayOffLoan(ctx context.Context, borrower crypto.Address) (PayoffResult, error) {
	var payoff credit.Payoff
	receipt, err := l.execute(ctx, moduleCredit, "pay_off_loan", func(s *session) ([]effects.Effect, error) {
		out, list, err := s.credit.PayOffLoan(ctx, borrower)
		payoff = out
		return list, err
	})
	if err != nil {
		return PayoffResult{}, err
	}
	return PayoffResult{Receipt: receipt, Payoff: payoff}, nil
}

func (l *Ledger) LoanRequest(borrower crypto.Address) (*credit.LoanRequest, error) {
	var out *credit.LoanRequest
	err := l.query(func(s *session) error {
		req, err := s.credit.LoanRequest(borrower)
		out = req
		return err
	})
	return out, err
}

func (l *Ledger) Loan(borrower crypto.Address) (*credit.Loan, error) {
	var out *credit.Loan
	err := l.query(func(s *session) error {
		loan, err := s.credit.Loan(borrower)
		out = loan
		return err
	})
	return out, err
}

func (l *Ledger) CreditAddresses() (*credit.Addresses, error) {
	var out *credit.Addresses
	err := l.query(func(s *session) error {
		addrs, err := s.credit.Addresses()
		out = addrs
		return err
	})
	return out, err
}
