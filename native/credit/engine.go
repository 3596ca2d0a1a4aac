package credit

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"tranchefi/core/events"
	"tranchefi/crypto"
	nativecommon "tranchefi/native/common"
	"tranchefi/native/effects"
)

var (
	errNilState = errors.New("credit engine: state not configured")
	errCustody  = errors.New("credit engine: custody address not configured")
)

const moduleName = "credit"

type engineState interface {
	CreditAddresses() (*Addresses, error)
	PutCreditAddresses(addrs *Addresses) error
	LoanRequest(borrower crypto.Address) (*LoanRequest, error)
	PutLoanRequest(req *LoanRequest) error
	Loan(borrower crypto.Address) (*Loan, error)
	PutLoan(loan *Loan) error
	DeleteLoan(borrower crypto.Address) error
}

// Engine runs the loan ledger: request, approval, installments and payoff.
type Engine struct {
	state   engineState
	custody crypto.Address
	emitter events.Emitter
	pauses  nativecommon.PauseView
	nowFn   func() int64
}

// NewEngine constructs a credit engine disbursing from custody.
func NewEngine(custody crypto.Address) *Engine {
	return &Engine{
		custody: custody,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the clock used for loan start and payoff timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nativecommon.Guard(e.pauses, moduleName)
}

func (e *Engine) addresses() (*Addresses, error) {
	addrs, err := e.state.CreditAddresses()
	if err != nil {
		return nil, err
	}
	if addrs == nil {
		return nil, fmt.Errorf("credit engine: %w", nativecommon.ErrNotInitialized)
	}
	return addrs, nil
}

func (e *Engine) activeLoan(borrower crypto.Address) (*Loan, error) {
	loan, err := e.state.Loan(borrower)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, fmt.Errorf("%w: %s", nativecommon.ErrNoActiveLoan, borrower)
	}
	return loan, nil
}

func (e *Engine) pendingRequest(borrower crypto.Address) (*LoanRequest, error) {
	req, err := e.state.LoanRequest(borrower)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("%w: loan request not found for %s", nativecommon.ErrNoActiveLoan, borrower)
	}
	return req, nil
}

// Init records the collaborator addresses, overwriting any previous ones.
func (e *Engine) Init(ctx context.Context, router, pool, principalToken crypto.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.state.PutCreditAddresses(&Addresses{Router: router, Pool: pool, PrincipalToken: principalToken}); err != nil {
		return err
	}
	e.emit(events.CreditInitialized{Router: router, Pool: pool, PrincipalToken: principalToken})
	return nil
}

// RequestCredit stores a fresh, unapproved request for borrower, replacing
// any earlier one.
func (e *Engine) RequestCredit(ctx context.Context, borrower crypto.Address, amount, interestRate, originationFee *big.Int) (*LoanRequest, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.RequireAuth(ctx, borrower); err != nil {
		return nil, err
	}
	for _, check := range []struct {
		name  string
		value *big.Int
	}{{"amount", amount}, {"interest rate", interestRate}, {"origination fee", originationFee}} {
		if err := nativecommon.ValidateAmount(check.name, check.value); err != nil {
			return nil, err
		}
	}
	req := &LoanRequest{
		Borrower:       borrower,
		Amount:         new(big.Int).Set(amount),
		InterestRate:   new(big.Int).Set(interestRate),
		OriginationFee: new(big.Int).Set(originationFee),
	}
	if err := e.state.PutLoanRequest(req); err != nil {
		return nil, err
	}
	e.emit(events.CreditRequested{
		Borrower:       borrower,
		Amount:         new(big.Int).Set(amount),
		InterestRate:   new(big.Int).Set(interestRate),
		OriginationFee: new(big.Int).Set(originationFee),
	})
	return req.Clone(), nil
}

// AcceptCredit approves the borrower's request, originates the loan and
// disburses the discounted amount.
func (e *Engine) AcceptCredit(ctx context.Context, borrower crypto.Address, termInMonths uint32) (*Loan, []effects.Effect, error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	if e.custody.IsZero() {
		return nil, nil, errCustody
	}
	addrs, err := e.addresses()
	if err != nil {
		return nil, nil, err
	}
	req, err := e.pendingRequest(borrower)
	if err != nil {
		return nil, nil, err
	}
	start := e.now()
	if start < 0 {
		start = 0
	}
	loan, terms, out, err := applyAccept(req, addrs, e.custody, termInMonths, uint64(start))
	if err != nil {
		return nil, nil, err
	}
	if err := e.state.PutLoan(loan); err != nil {
		return nil, nil, err
	}
	if err := e.state.PutLoanRequest(req); err != nil {
		return nil, nil, err
	}
	e.emit(events.CreditAccepted{
		Borrower:     borrower,
		Requested:    new(big.Int).Set(req.Amount),
		Disbursed:    terms.Disbursed,
		Principal:    terms.Principal,
		TermInMonths: termInMonths,
		Start:        loan.StartTimestamp,
	})
	return loan.Clone(), out, nil
}

// PayInstallment records amount against the borrower's loan and supplies the
// resulting interest to the pool. The amount itself is not collected from
// the borrower.
func (e *Engine) PayInstallment(ctx context.Context, borrower crypto.Address, amount *big.Int) (Installment, []effects.Effect, error) {
	if err := e.ready(); err != nil {
		return Installment{}, nil, err
	}
	if err := nativecommon.RequireAuth(ctx, borrower); err != nil {
		return Installment{}, nil, err
	}
	if err := nativecommon.ValidateAmount("amount", amount); err != nil {
		return Installment{}, nil, err
	}
	addrs, err := e.addresses()
	if err != nil {
		return Installment{}, nil, err
	}
	loan, err := e.activeLoan(borrower)
	if err != nil {
		return Installment{}, nil, err
	}
	result, out, err := applyInstallment(loan, addrs, amount)
	if err != nil {
		return Installment{}, nil, err
	}
	if result.Repaid {
		err = e.state.DeleteLoan(borrower)
	} else {
		err = e.state.PutLoan(loan)
	}
	if err != nil {
		return Installment{}, nil, err
	}
	e.emit(events.CreditInstallmentPaid{
		Borrower:      borrower,
		Amount:        new(big.Int).Set(amount),
		Interest:      new(big.Int).Set(result.Interest),
		PaidPrincipal: new(big.Int).Set(loan.PaidPrincipal),
		Remaining:     new(big.Int).Set(result.Remaining),
	})
	if result.Repaid {
		e.emit(events.CreditRepaid{
			Borrower:          borrower,
			Principal:         new(big.Int).Set(loan.Principal),
			TotalInterestPaid: new(big.Int).Set(loan.TotalInterestPaid),
		})
	}
	return result, out, nil
}

// PayOffLoan settles the loan: the remaining principal plus all interest
// charged so far is transferred from the borrower to custody.
func (e *Engine) PayOffLoan(ctx context.Context, borrower crypto.Address) (Payoff, []effects.Effect, error) {
	if err := e.ready(); err != nil {
		return Payoff{}, nil, err
	}
	if err := nativecommon.RequireAuth(ctx, borrower); err != nil {
		return Payoff{}, nil, err
	}
	if e.custody.IsZero() {
		return Payoff{}, nil, errCustody
	}
	addrs, err := e.addresses()
	if err != nil {
		return Payoff{}, nil, err
	}
	loan, err := e.activeLoan(borrower)
	if err != nil {
		return Payoff{}, nil, err
	}
	payoff, out, err := settle(loan, addrs, e.custody, e.now())
	if err != nil {
		return Payoff{}, nil, err
	}
	if err := e.state.DeleteLoan(borrower); err != nil {
		return Payoff{}, nil, err
	}
	e.emit(events.CreditPaidOff{
		Borrower:      borrower,
		AmountDue:     new(big.Int).Set(payoff.AmountDue),
		MonthsElapsed: payoff.MonthsElapsed,
	})
	return payoff, out, nil
}

// LoanRequest returns the borrower's request.
func (e *Engine) LoanRequest(borrower crypto.Address) (*LoanRequest, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	req, err := e.pendingRequest(borrower)
	if err != nil {
		return nil, err
	}
	return req.Clone(), nil
}

// Loan returns the borrower's active loan.
func (e *Engine) Loan(borrower crypto.Address) (*Loan, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	loan, err := e.activeLoan(borrower)
	if err != nil {
		return nil, err
	}
	return loan.Clone(), nil
}

// Addresses returns the configured collaborators.
func (e *Engine) Addresses() (*Addresses, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	addrs, err := e.addresses()
	if err != nil {
		return nil, err
	}
	copied := *addrs
	return &copied, nil
}
