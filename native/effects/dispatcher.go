package effects

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tranchefi/crypto"
)

var errNoInvoker = errors.New("effects: invoker not configured")

// Outcome records the result of applying a single effect.
type Outcome struct {
	Effect   Effect
	Err      error
	Duration time.Duration
}

// Dispatcher applies effects in order. Every effect is attempted even when an
// earlier one failed; failures are reported, never retried.
type Dispatcher struct {
	invoker Invoker
	timeout time.Duration
	logger  *slog.Logger
}

// NewDispatcher constructs a dispatcher. A zero timeout leaves call deadlines
// to the parent context.
func NewDispatcher(inv Invoker, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{invoker: inv, timeout: timeout, logger: logger}
}

func (d *Dispatcher) Dispatch(ctx context.Context, list []Effect) []Outcome {
	outcomes := make([]Outcome, 0, len(list))
	for _, eff := range list {
		start := time.Now()
		err := d.apply(ctx, eff)
		outcome := Outcome{Effect: eff, Err: err, Duration: time.Since(start)}
		if err != nil {
			d.logger.Warn("effect failed",
				slog.String("kind", string(eff.Kind())),
				slog.String("contract", eff.Contract().String()),
				slog.String("error", err.Error()))
		} else {
			d.logger.Debug("effect applied",
				slog.String("kind", string(eff.Kind())),
				slog.String("contract", eff.Contract().String()))
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (d *Dispatcher) apply(ctx context.Context, eff Effect) error {
	if d == nil || d.invoker == nil {
		return errNoInvoker
	}
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	return eff.Apply(ctx, d.invoker)
}

// Failed counts outcomes that carry an error.
func Failed(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// LogInvoker only logs calls. ledgerd uses it when no collaborator endpoint is
// configured.
type LogInvoker struct {
	Logger *slog.Logger
}

func (l LogInvoker) Invoke(_ context.Context, contract crypto.Address, method string, args ...any) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("collaborator call",
		slog.String("contract", contract.String()),
		slog.String("method", method),
		slog.Any("args", args))
	return nil
}
