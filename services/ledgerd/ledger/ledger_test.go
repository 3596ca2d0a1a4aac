package ledger

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"tranchefi/core/events"
	"tranchefi/crypto"
	nativecommon "tranchefi/native/common"
	"tranchefi/native/credit"
	"tranchefi/native/effects"
	"tranchefi/services/ledgerd/journal"
	"tranchefi/storage"
)

func makeAddress(prefix crypto.AddressPrefix, b byte) crypto.Address {
	return crypto.NewAddress(prefix, bytes.Repeat([]byte{b}, crypto.AddressLength))
}

var (
	router    = makeAddress(crypto.ContractPrefix, 0x01)
	pool      = makeAddress(crypto.ContractPrefix, 0x02)
	principal = makeAddress(crypto.ContractPrefix, 0x03)
	alt       = makeAddress(crypto.ContractPrefix, 0x04)
	custody   = makeAddress(crypto.ContractPrefix, 0x05)
	alice     = makeAddress(crypto.AccountPrefix, 0xA1)
	bob       = makeAddress(crypto.AccountPrefix, 0xB0)
	carol     = makeAddress(crypto.AccountPrefix, 0xC0)
)

const startTime = int64(1_700_000_000)

type fixture struct {
	ledger   *Ledger
	recorder *effects.Recorder
	journal  *journal.Store
	db       *storage.MemDB
	now      int64
}

func newFixture(t *testing.T, pauses nativecommon.PauseView) *fixture {
	t.Helper()
	store, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	fx := &fixture{recorder: &effects.Recorder{}, journal: store, db: storage.NewMemDB(), now: startTime}
	fx.ledger, err = New(fx.db, Options{
		Custody:    custody,
		Pauses:     pauses,
		Dispatcher: effects.NewDispatcher(fx.recorder, 0, nil),
		Journal:    store,
		Now:        func() int64 { return fx.now },
	})
	require.NoError(t, err)
	return fx
}

func TestNewRequiresDatabaseAndCustody(t *testing.T) {
	_, err := New(nil, Options{Custody: custody})
	require.ErrorIs(t, err, errNilDatabase)
	_, err = New(storage.NewMemDB(), Options{})
	require.Error(t, err)
}

func TestInvestCommitsAndDispatches(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	_, err := fx.ledger.InitFund(ctx, router, pool, principal, alt)
	require.NoError(t, err)

	res, err := fx.ledger.Invest(ctx, alice, big.NewInt(1000))
	require.NoError(t, err)
	require.Equal(t, "fund.invest", res.Operation)
	require.Equal(t, int64(820), res.Tranches.Senior.Int64())
	require.Equal(t, int64(150), res.Tranches.Subordinated.Int64())
	require.Equal(t, int64(30), res.Tranches.Reserve.Int64())
	require.Len(t, res.Outcomes, 2)
	require.Zero(t, res.FailedEffects())
	require.Len(t, res.Events, 1)
	require.Equal(t, events.TypeFundInvested, res.Events[0].Type)

	calls := fx.recorder.Calls()
	require.Len(t, calls, 2)
	require.Equal(t, effects.MethodSwap, calls[0].Method)
	require.Equal(t, router, calls[0].Contract)
	require.Equal(t, effects.MethodSupply, calls[1].Method)
	require.Equal(t, pool, calls[1].Contract)

	st, err := fx.ledger.FundState()
	require.NoError(t, err)
	require.Equal(t, int64(1000), st.Share(alice).Int64())
	require.Equal(t, int64(820), st.TotalSenior.Int64())

	journaled, err := fx.journal.ListEffects(ctx, 10, false)
	require.NoError(t, err)
	require.Len(t, journaled, 2)
	for _, rec := range journaled {
		require.Equal(t, res.OperationID, rec.OperationID)
		require.Equal(t, journal.StatusApplied, rec.Status)
	}
}

func TestSimulationDiscardsWrites(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	_, err := fx.ledger.InitFund(ctx, router, pool, principal, alt)
	require.NoError(t, err)

	res, err := fx.ledger.Invest(WithSimulation(ctx), alice, big.NewInt(5500))
	require.NoError(t, err)
	require.True(t, res.Simulated)
	require.Len(t, res.Effects, 2)
	require.Empty(t, res.Outcomes)
	require.Equal(t, int64(4510), res.Tranches.Senior.Int64())
	require.Empty(t, fx.recorder.Calls())

	st, err := fx.ledger.FundState()
	require.NoError(t, err)
	require.Zero(t, st.Share(alice).Sign())
	require.Zero(t, st.TotalSenior.Sign())
}

func TestEffectFailureKeepsCommit(t *testing.T) {
	fx := newFixture(t, nil)
	fx.recorder.Fail = map[string]error{effects.MethodSupply: errors.New("pool offline")}
	ctx := context.Background()
	_, err := fx.ledger.InitFund(ctx, router, pool, principal, alt)
	require.NoError(t, err)

	res, err := fx.ledger.Invest(ctx, alice, big.NewInt(100))
	require.NoError(t, err)
	require.Equal(t, 1, res.FailedEffects())
	require.Len(t, fx.recorder.Calls(), 2)

	st, err := fx.ledger.FundState()
	require.NoError(t, err)
	require.Equal(t, int64(100), st.Share(alice).Int64())

	failed, err := fx.journal.ListEffects(ctx, 10, true)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, "pool offline", failed[0].Error)
	require.Equal(t, string(effects.KindSupply), failed[0].Kind)
}

func TestRejectedOperationLeavesNoTrace(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	_, err := fx.ledger.Invest(ctx, alice, big.NewInt(100))
	require.ErrorIs(t, err, nativecommon.ErrNotInitialized)
	_, err = fx.ledger.FundState()
	require.ErrorIs(t, err, nativecommon.ErrNotInitialized)

	_, err = fx.ledger.InitFund(ctx, router, pool, principal, alt)
	require.NoError(t, err)
	_, err = fx.ledger.Redeem(ctx, alice, big.NewInt(10))
	require.ErrorIs(t, err, nativecommon.ErrNothingToRedeem)
	require.Empty(t, fx.recorder.Calls())
}

func TestPausedModule(t *testing.T) {
	fx := newFixture(t, nativecommon.Pauses{"credit": true})
	ctx := context.Background()
	_, err := fx.ledger.InitFund(ctx, router, pool, principal, alt)
	require.NoError(t, err)
	_, err = fx.ledger.InitCredit(ctx, router, pool, principal)
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)
}

func TestRedeemPaysInvestor(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	_, err := fx.ledger.InitFund(ctx, router, pool, principal, alt)
	require.NoError(t, err)
	_, err = fx.ledger.Invest(ctx, alice, big.NewInt(1000))
	require.NoError(t, err)
	_, err = fx.ledger.Invest(ctx, bob, big.NewInt(10000))
	require.NoError(t, err)

	res, err := fx.ledger.Redeem(ctx, alice, big.NewInt(50))
	require.NoError(t, err)
	require.Equal(t, int64(1050), res.Payment.Int64())

	st, err := fx.ledger.FundState()
	require.NoError(t, err)
	require.Zero(t, st.Share(alice).Sign())
	require.Equal(t, int64(7970), st.TotalSenior.Int64())
}

func TestCreditLifecycle(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	borrowerCtx := nativecommon.WithSigners(ctx, carol)

	_, err := fx.ledger.InitCredit(ctx, router, pool, principal)
	require.NoError(t, err)

	req, err := fx.ledger.RequestCredit(borrowerCtx, carol, big.NewInt(10000), big.NewInt(5), big.NewInt(2))
	require.NoError(t, err)
	require.False(t, req.Request.Approved)

	accepted, err := fx.ledger.AcceptCredit(ctx, carol, 12)
	require.NoError(t, err)
	require.Equal(t, int64(9180), accepted.Loan.Principal.Int64())
	require.Equal(t, uint64(startTime), accepted.Loan.StartTimestamp)

	stored, err := fx.ledger.LoanRequest(carol)
	require.NoError(t, err)
	require.True(t, stored.Approved)

	inst, err := fx.ledger.PayInstallment(borrowerCtx, carol, big.NewInt(1180))
	require.NoError(t, err)
	require.Equal(t, int64(400), inst.Installment.Interest.Int64())
	require.Equal(t, int64(8000), inst.Installment.Remaining.Int64())
	require.False(t, inst.Installment.Repaid)

	fx.now = startTime + 2*credit.SecondsPerMonth
	payoff, err := fx.ledger.PayOffLoan(borrowerCtx, carol)
	require.NoError(t, err)
	require.Equal(t, int64(8400), payoff.Payoff.AmountDue.Int64())
	require.Equal(t, uint64(2), payoff.Payoff.MonthsElapsed)

	_, err = fx.ledger.Loan(carol)
	require.ErrorIs(t, err, nativecommon.ErrNoActiveLoan)

	addrs, err := fx.ledger.CreditAddresses()
	require.NoError(t, err)
	require.Equal(t, pool, addrs.Pool)
}

func TestCreditRequiresBorrowerSignature(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	_, err := fx.ledger.InitCredit(ctx, router, pool, principal)
	require.NoError(t, err)
	_, err = fx.ledger.RequestCredit(nativecommon.WithSigners(ctx, alice), carol, big.NewInt(100), big.NewInt(5), big.NewInt(2))
	require.ErrorIs(t, err, nativecommon.ErrUnauthorized)
}

func TestOutcomeLabel(t *testing.T) {
	require.Equal(t, "ok", outcomeLabel(nil))
	require.Equal(t, "paused", outcomeLabel(nativecommon.ErrModulePaused))
	require.Equal(t, "already_approved", outcomeLabel(nativecommon.ErrAlreadyApproved))
	require.Equal(t, "error", outcomeLabel(errors.New("boom")))
}
