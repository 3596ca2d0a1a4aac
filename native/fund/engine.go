package fund

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"tranchefi/core/events"
	"tranchefi/crypto"
	nativecommon "tranchefi/native/common"
	"tranchefi/native/effects"
)

var (
	errNilState = errors.New("fund engine: state not configured")
	errCustody  = errors.New("fund engine: custody address not configured")
)

const moduleName = "fund"

type engineState interface {
	FundAddresses() (*Addresses, error)
	PutFundAddresses(addrs *Addresses) error
	FundState() (*State, error)
	PutFundState(st *State) error
}

// Engine runs the fund's state transitions. Every mutating call loads the
// ledger, applies a pure transition, persists it and hands back the
// collaborator effects the caller must issue.
type Engine struct {
	state   engineState
	custody crypto.Address
	emitter events.Emitter
	pauses  nativecommon.PauseView
}

// NewEngine constructs a fund engine. custody is the account that holds the
// fund's principal tokens.
func NewEngine(custody crypto.Address) *Engine {
	return &Engine{custody: custody, emitter: events.NoopEmitter{}}
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

// Custody returns the fund's custody account.
func (e *Engine) Custody() crypto.Address { return e.custody }

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

func (e *Engine) load() (*Addresses, *State, error) {
	addrs, err := e.state.FundAddresses()
	if err != nil {
		return nil, nil, err
	}
	st, err := e.state.FundState()
	if err != nil {
		return nil, nil, err
	}
	if addrs == nil || st == nil {
		return nil, nil, fmt.Errorf("fund engine: %w", nativecommon.ErrNotInitialized)
	}
	st.normalize()
	return addrs, st, nil
}

// Init records the collaborator addresses and resets the ledger to zero.
// Calling it again overwrites both.
func (e *Engine) Init(ctx context.Context, router, pool, principalToken, altToken crypto.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	addrs := &Addresses{Router: router, Pool: pool, PrincipalToken: principalToken, AltToken: altToken}
	if err := e.state.PutFundAddresses(addrs); err != nil {
		return err
	}
	if err := e.state.PutFundState(NewState()); err != nil {
		return err
	}
	e.emit(events.FundInitialized{Router: router, Pool: pool, PrincipalToken: principalToken, AltToken: altToken})
	return nil
}

// Invest splits amount across the tranches and credits the full amount to
// the investor. The senior part is swapped into the alt token for the
// investor and the subordinated part is supplied to the pool.
func (e *Engine) Invest(ctx context.Context, investor crypto.Address, amount *big.Int) (Tranches, []effects.Effect, error) {
	if err := e.ready(); err != nil {
		return Tranches{}, nil, err
	}
	if err := nativecommon.ValidateAmount("amount", amount); err != nil {
		return Tranches{}, nil, err
	}
	addrs, st, err := e.load()
	if err != nil {
		return Tranches{}, nil, err
	}
	parts, out, err := applyInvest(st, addrs, investor, amount)
	if err != nil {
		return Tranches{}, nil, err
	}
	if err := e.state.PutFundState(st); err != nil {
		return Tranches{}, nil, err
	}
	e.emit(events.FundInvested{
		Investor:     investor,
		Amount:       new(big.Int).Set(amount),
		Senior:       parts.Senior,
		Subordinated: parts.Subordinated,
		Reserve:      parts.Reserve,
	})
	return parts, out, nil
}

// Donate adds amount to the reserve on behalf of donor, who must have
// authorized the call.
func (e *Engine) Donate(ctx context.Context, donor crypto.Address, amount *big.Int) ([]effects.Effect, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.RequireAuth(ctx, donor); err != nil {
		return nil, err
	}
	if err := nativecommon.ValidateAmount("amount", amount); err != nil {
		return nil, err
	}
	if e.custody.IsZero() {
		return nil, errCustody
	}
	addrs, st, err := e.load()
	if err != nil {
		return nil, err
	}
	out, err := applyDonate(st, addrs, e.custody, donor, amount)
	if err != nil {
		return nil, err
	}
	if err := e.state.PutFundState(st); err != nil {
		return nil, err
	}
	e.emit(events.FundDonated{Donor: donor, Amount: new(big.Int).Set(amount)})
	return out, nil
}

// UnstakeSubordinated requests amount back from the pool. The subordinated
// total is checked but not decremented, and nothing is persisted.
// TODO: decrement TotalSubordinated once pool withdrawals report the amount
// actually returned.
func (e *Engine) UnstakeSubordinated(ctx context.Context, amount *big.Int, recipient crypto.Address) ([]effects.Effect, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.ValidateAmount("amount", amount); err != nil {
		return nil, err
	}
	addrs, st, err := e.load()
	if err != nil {
		return nil, err
	}
	out, err := checkUnstake(st, addrs, amount)
	if err != nil {
		return nil, err
	}
	e.emit(events.FundUnstakeRequested{Amount: new(big.Int).Set(amount), Recipient: recipient})
	return out, nil
}

// Redeem pays the investor's principal plus yield out of the senior tranche
// and returns the payment.
func (e *Engine) Redeem(ctx context.Context, investor crypto.Address, yield *big.Int) (*big.Int, []effects.Effect, error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	if err := nativecommon.ValidateAmount("yield", yield); err != nil {
		return nil, nil, err
	}
	if e.custody.IsZero() {
		return nil, nil, errCustody
	}
	addrs, st, err := e.load()
	if err != nil {
		return nil, nil, err
	}
	principal, payment, out, err := applyRedeem(st, addrs, e.custody, investor, yield)
	if err != nil {
		return nil, nil, err
	}
	if err := e.state.PutFundState(st); err != nil {
		return nil, nil, err
	}
	e.emit(events.FundRedeemed{
		Investor:  investor,
		Principal: principal,
		Yield:     new(big.Int).Set(yield),
		Payment:   new(big.Int).Set(payment),
	})
	return payment, out, nil
}

// State returns a copy of the ledger.
func (e *Engine) State() (*State, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	_, st, err := e.load()
	if err != nil {
		return nil, err
	}
	return st.Clone(), nil
}

// Addresses returns the configured collaborators.
func (e *Engine) Addresses() (*Addresses, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	addrs, _, err := e.load()
	if err != nil {
		return nil, err
	}
	copied := *addrs
	return &copied, nil
}
