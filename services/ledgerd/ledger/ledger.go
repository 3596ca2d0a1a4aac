package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tranchefi/core/events"
	"tranchefi/core/state"
	"tranchefi/core/types"
	"tranchefi/crypto"
	nativecommon "tranchefi/native/common"
	"tranchefi/native/credit"
	"tranchefi/native/effects"
	"tranchefi/native/fund"
	"tranchefi/observability"
	"tranchefi/services/ledgerd/journal"
	"tranchefi/storage"
)

const (
	moduleFund   = "fund"
	moduleCredit = "credit"
)

var errNilDatabase = errors.New("ledger: database required")

// Journal persists the outcome of dispatched effects.
type Journal interface {
	RecordEffects(ctx context.Context, records []journal.EffectRecord) error
}

// Options configures a Ledger.
type Options struct {
	Custody    crypto.Address
	Pauses     nativecommon.PauseView
	Dispatcher *effects.Dispatcher
	Journal    Journal
	Logger     *slog.Logger
	Now        func() int64
}

// Ledger hosts the fund and loan ledgers over a single database. Calls are
// serialised: each one runs against a fresh write set that is committed
// before its effects are dispatched to the collaborators.
type Ledger struct {
	stateMu    sync.Mutex
	dispatchMu sync.Mutex

	db         storage.Database
	custody    crypto.Address
	pauses     nativecommon.PauseView
	dispatcher *effects.Dispatcher
	journal    Journal
	logger     *slog.Logger
	nowFn      func() int64
}

func New(db storage.Database, opts Options) (*Ledger, error) {
	if db == nil {
		return nil, errNilDatabase
	}
	if opts.Custody.IsZero() {
		return nil, fmt.Errorf("ledger: custody address required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = effects.NewDispatcher(effects.LogInvoker{Logger: logger}, 0, logger)
	}
	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	return &Ledger{
		db:         db,
		custody:    opts.Custody,
		pauses:     opts.Pauses,
		dispatcher: dispatcher,
		journal:    opts.Journal,
		logger:     logger,
		nowFn:      now,
	}, nil
}

// Custody returns the account holding the fund's and the lender's balances.
func (l *Ledger) Custody() crypto.Address { return l.custody }

type simulateKey struct{}

// WithSimulation marks ctx so mutations are evaluated and then discarded.
func WithSimulation(ctx context.Context) context.Context {
	return context.WithValue(ctx, simulateKey{}, true)
}

// IsSimulation reports whether ctx was marked by WithSimulation.
func IsSimulation(ctx context.Context) bool {
	simulate, _ := ctx.Value(simulateKey{}).(bool)
	return simulate
}

// Receipt describes a completed mutation.
type Receipt struct {
	OperationID string
	Operation   string
	Simulated   bool
	Effects     []effects.Effect
	Outcomes    []effects.Outcome
	Events      []*types.Event
}

// FailedEffects returns the number of effects the collaborators rejected.
func (r Receipt) FailedEffects() int {
	return effects.Failed(r.Outcomes)
}

type session struct {
	manager *state.Manager
	buffer  *events.Buffer
	fund    *fund.Engine
	credit  *credit.Engine
}

func (l *Ledger) newSession() *session {
	manager := state.NewManager(l.db)
	buffer := &events.Buffer{}

	fundEngine := fund.NewEngine(l.custody)
	fundEngine.SetState(manager)
	fundEngine.SetPauses(l.pauses)
	fundEngine.SetEmitter(buffer)

	creditEngine := credit.NewEngine(l.custody)
	creditEngine.SetState(manager)
	creditEngine.SetPauses(l.pauses)
	creditEngine.SetEmitter(buffer)
	creditEngine.SetNowFunc(l.nowFn)

	return &session{manager: manager, buffer: buffer, fund: fundEngine, credit: creditEngine}
}

// execute runs fn against a fresh session, commits its writes, then
// dispatches the returned effects. Effect failures never roll the commit
// back; they are logged, journaled and reported on the receipt.
func (l *Ledger) execute(ctx context.Context, module, operation string, fn func(*session) ([]effects.Effect, error)) (Receipt, error) {
	start := time.Now()
	simulate := IsSimulation(ctx)
	receipt := Receipt{
		OperationID: journal.NewOperationID(),
		Operation:   module + "." + operation,
		Simulated:   simulate,
	}

	l.stateMu.Lock()
	sess := l.newSession()
	list, err := fn(sess)
	if err != nil {
		sess.manager.Discard()
		l.stateMu.Unlock()
		observability.Ledger().ObserveOperation(module, operation, outcomeLabel(err), time.Since(start))
		l.logger.Info("ledger operation rejected",
			slog.String("operation", receipt.Operation),
			slog.String("error", err.Error()))
		return Receipt{}, err
	}
	receipt.Effects = list
	receipt.Events = events.Render(sess.buffer.Drain())

	if simulate {
		sess.manager.Discard()
		l.stateMu.Unlock()
		observability.Ledger().RecordSimulation(module, operation)
		observability.Ledger().ObserveOperation(module, operation, "simulated", time.Since(start))
		return receipt, nil
	}

	if err := sess.manager.Commit(); err != nil {
		sess.manager.Discard()
		l.stateMu.Unlock()
		observability.Ledger().ObserveOperation(module, operation, "commit_failed", time.Since(start))
		return Receipt{}, fmt.Errorf("%s: commit: %w", receipt.Operation, err)
	}
	// Effects leave in commit order.
	l.dispatchMu.Lock()
	l.stateMu.Unlock()
	receipt.Outcomes = l.dispatcher.Dispatch(context.WithoutCancel(ctx), list)
	l.dispatchMu.Unlock()

	l.publish(receipt)
	l.record(ctx, receipt)
	observability.Ledger().ObserveOperation(module, operation, "ok", time.Since(start))
	return receipt, nil
}

func (l *Ledger) publish(receipt Receipt) {
	for _, evt := range receipt.Events {
		attrs := make([]any, 0, len(evt.Attributes)+2)
		attrs = append(attrs, slog.String("operation_id", receipt.OperationID))
		for k, v := range evt.Attributes {
			attrs = append(attrs, slog.String(k, v))
		}
		l.logger.Info(evt.Type, attrs...)
		observability.Events().Record(evt.Type)
	}
}

func (l *Ledger) record(ctx context.Context, receipt Receipt) {
	if len(receipt.Outcomes) == 0 {
		return
	}
	records := make([]journal.EffectRecord, 0, len(receipt.Outcomes))
	for i, outcome := range receipt.Outcomes {
		failed := outcome.Err != nil
		observability.Ledger().RecordEffect(string(outcome.Effect.Kind()), failed)
		rec := journal.EffectRecord{
			OperationID: receipt.OperationID,
			Operation:   receipt.Operation,
			Sequence:    i,
			Kind:        string(outcome.Effect.Kind()),
			Contract:    outcome.Effect.Contract().String(),
			Attributes:  outcome.Effect.Attributes(),
			Status:      journal.StatusApplied,
		}
		if failed {
			rec.Status = journal.StatusFailed
			rec.Error = outcome.Err.Error()
		}
		records = append(records, rec)
	}
	if l.journal == nil {
		return
	}
	if err := l.journal.RecordEffects(context.WithoutCancel(ctx), records); err != nil {
		l.logger.Error("journal effects",
			slog.String("operation_id", receipt.OperationID),
			slog.String("error", err.Error()))
	}
}

// query runs fn under the state lock against committed state.
func (l *Ledger) query(fn func(*session) error) error {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	return fn(l.newSession())
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, nativecommon.ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, nativecommon.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, nativecommon.ErrNoActiveLoan):
		return "no_active_loan"
	case errors.Is(err, nativecommon.ErrAlreadyApproved):
		return "already_approved"
	case errors.Is(err, nativecommon.ErrNothingToRedeem):
		return "nothing_to_redeem"
	case errors.Is(err, nativecommon.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, nativecommon.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, nativecommon.ErrModulePaused):
		return "paused"
	default:
		return "error"
	}
}
