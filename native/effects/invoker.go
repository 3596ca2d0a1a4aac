package effects

import (
	"context"
	"math/big"
	"sync"

	"tranchefi/crypto"
)

// Collaborator method names.
const (
	MethodTransfer = "transfer"
	MethodSwap     = "swap_exact_tokens_for_tokens"
	MethodSupply   = "supply"
	MethodWithdraw = "withdraw"
)

// Invoker performs a call against an external contract. Implementations must
// not assume the call can be rolled back.
type Invoker interface {
	Invoke(ctx context.Context, contract crypto.Address, method string, args ...any) error
}

func amountArg(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// Token wraps a token contract.
type Token struct {
	Invoker Invoker
	Address crypto.Address
}

func (t Token) Transfer(ctx context.Context, from, to crypto.Address, amount *big.Int) error {
	return t.Invoker.Invoke(ctx, t.Address, MethodTransfer, from.String(), to.String(), amountArg(amount))
}

// Router wraps the swap router contract.
type Router struct {
	Invoker Invoker
	Address crypto.Address
}

func (r Router) Swap(ctx context.Context, tokenIn crypto.Address, amountIn *big.Int, tokenOut, recipient crypto.Address) error {
	return r.Invoker.Invoke(ctx, r.Address, MethodSwap, tokenIn.String(), amountArg(amountIn), tokenOut.String(), recipient.String())
}

// Pool wraps the yield/lending pool contract.
type Pool struct {
	Invoker Invoker
	Address crypto.Address
}

func (p Pool) Supply(ctx context.Context, token crypto.Address, amount *big.Int) error {
	return p.Invoker.Invoke(ctx, p.Address, MethodSupply, token.String(), amountArg(amount))
}

func (p Pool) Withdraw(ctx context.Context, token crypto.Address, amount *big.Int) error {
	return p.Invoker.Invoke(ctx, p.Address, MethodWithdraw, token.String(), amountArg(amount))
}

// Call is a single recorded invocation.
type Call struct {
	Contract crypto.Address
	Method   string
	Args     []any
}

// Recorder is an in-memory Invoker that records calls. Failures can be
// injected per method.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	Fail  map[string]error
}

func (r *Recorder) Invoke(_ context.Context, contract crypto.Address, method string, args ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Contract: contract, Method: method, Args: append([]any(nil), args...)})
	if err, ok := r.Fail[method]; ok {
		return err
	}
	return nil
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}
