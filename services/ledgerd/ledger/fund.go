package ledger

import (
	"context"
	"math/big"

	"tranchefi/crypto"
	"tranchefi/native/effects"
	"tranchefi/native/fund"
)

// InvestResult carries the tranche split of a deposit.
type InvestResult struct {
	Receipt
	Tranches fund.Tranches
}

// RedeemResult carries the amount paid back to the investor.
type RedeemResult struct {
	Receipt
	Payment *big.Int
}

func (l *Ledger) InitFund(ctx context.Context, router, pool, principalToken, altToken crypto.Address) (Receipt, error) {
	return l.execute(ctx, moduleFund, "init", func(s *session) ([]effects.Effect, error) {
		return nil, s.fund.Init(ctx, router, pool, principalToken, altToken)
	})
}

func (l *Ledger) Invest(ctx context.Context, investor crypto.Address, amount *big.Int) (InvestResult, error) {
	var split fund.Tranches
	receipt, err := l.execute(ctx, moduleFund, "invest", func(s *session) ([]effects.Effect, error) {
		tranches, list, err := s.fund.Invest(ctx, investor, amount)
		split = tranches
		return list, err
	})
	if err != nil {
		return InvestResult{}, err
	}
	return InvestResult{Receipt: receipt, Tranches: split}, nil
}

func (l *Ledger) Donate(ctx context.Context, donor crypto.Address, amount *big.Int) (Receipt, error) {
	return l.execute(ctx, moduleFund, "donate", func(s *session) ([]effects.Effect, error) {
		return s.fund.Donate(ctx, donor, amount)
	})
}

func (l *Ledger) UnstakeSubordinated(ctx context.Context, amount *big.Int, recipient crypto.Address) (Receipt, error) {
	return l.execute(ctx, moduleFund, "unstake_subordinated", func(s *session) ([]effects.Effect, error) {
		return s.fund.UnstakeSubordinated(ctx, amount, recipient)
	})
}

func (l *Ledger) Redeem(ctx context.Context, investor crypto.Address, yield *big.Int) (RedeemResult, error) {
	var payment *big.Int
	receipt, err := l.execute(ctx, moduleFund, "redeem", func(s *session) ([]effects.Effect, error) {
		paid, list, err := s.fund.Redeem(ctx, investor, yield)
		payment = paid
		return list, err
	})
	if err != nil {
		return RedeemResult{}, err
	}
	return RedeemResult{Receipt: receipt, Payment: payment}, nil
}

// FundState returns the committed tranche ledger.
func (l *Ledger) FundState() (*fund.State, error) {
	var out *fund.State
	err := l.query(func(s *session) error {
		st, err := s.fund.State()
		out = st
		return err
	})
	return out, err
}

// FundAddresses returns the collaborators configured at init.
func (l *Ledger) FundAddresses() (*fund.Addresses, error) {
	var out *fund.Addresses
	err := l.query(func(s *session) error {
		addrs, err := s.fund.Addresses()
		out = addrs
		return err
	})
	return out, err
}
