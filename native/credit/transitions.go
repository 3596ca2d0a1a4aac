package credit

import (
	"fmt"
	"math/big"

	"tranchefi/crypto"
	nativecommon "tranchefi/native/common"
	"tranchefi/native/effects"
)

// applyAccept approves req and originates the loan. The disbursed amount is
// paid from custody to the borrower.
func applyAccept(req *LoanRequest, addrs *Addresses, custody crypto.Address, termInMonths uint32, now uint64) (*Loan, Terms, []effects.Effect, error) {
	if req.Approved {
		return nil, Terms{}, nil, fmt.Errorf("%w: request from %s", nativecommon.ErrAlreadyApproved, req.Borrower)
	}
	terms := Amortize(req.Amount, req.OriginationFee)
	if err := nativecommon.CheckRange("principal", terms.Principal); err != nil {
		return nil, Terms{}, nil, err
	}
	loan := &Loan{
		Borrower:          req.Borrower,
		Principal:         new(big.Int).Set(terms.Principal),
		InterestRate:      nativecommon.Copy(req.InterestRate),
		TotalInterestPaid: big.NewInt(0),
		PaidPrincipal:     big.NewInt(0),
		TermInMonths:      termInMonths,
		StartTimestamp:    now,
	}
	req.Approved = true
	return loan, terms, []effects.Effect{
		effects.Transfer{
			Token:  addrs.PrincipalToken,
			From:   custody,
			To:     req.Borrower,
			Amount: new(big.Int).Set(terms.Disbursed),
		},
	}, nil
}

// applyInstallment records amount against the principal first and then
// charges interest on what is left. An overpayment leaves remaining and
// interest negative; the loan is retired in that case.
func applyInstallment(loan *Loan, addrs *Addresses, amount *big.Int) (Installment, []effects.Effect, error) {
	paid := new(big.Int).Add(nativecommon.Copy(loan.PaidPrincipal), amount)
	if err := nativecommon.CheckRange("paid principal", paid); err != nil {
		return Installment{}, nil, err
	}
	loan.PaidPrincipal = paid

	remaining := loan.Outstanding()
	interest := interestOn(remaining, loan.InterestRate)
	total := new(big.Int).Add(nativecommon.Copy(loan.TotalInterestPaid), interest)
	if err := nativecommon.CheckRange("interest", total); err != nil {
		return Installment{}, nil, err
	}
	loan.TotalInterestPaid = total

	result := Installment{
		Interest:  interest,
		Remaining: remaining,
		Repaid:    loan.PaidPrincipal.Cmp(loan.Principal) >= 0,
	}
	return result, []effects.Effect{
		effects.Supply{
			Pool:   addrs.Pool,
			Token:  addrs.PrincipalToken,
			Amount: new(big.Int).Set(interest),
		},
	}, nil
}

// settle computes the payoff for loan. Elapsed months are reported only and
// never change the amount due.
func settle(loan *Loan, addrs *Addresses, custody crypto.Address, now int64) (Payoff, []effects.Effect, error) {
	due := new(big.Int).Add(loan.Outstanding(), nativecommon.Copy(loan.TotalInterestPaid))
	if err := nativecommon.CheckRange("amount due", due); err != nil {
		return Payoff{}, nil, err
	}
	payoff := Payoff{AmountDue: due, MonthsElapsed: monthsElapsed(loan.StartTimestamp, now)}
	return payoff, []effects.Effect{
		effects.Transfer{
			Token:  addrs.PrincipalToken,
			From:   loan.Borrower,
			To:     custody,
			Amount: new(big.Int).Set(due),
		},
	}, nil
}
