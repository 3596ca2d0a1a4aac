package effects

import (
	"context"
	"math/big"

	"tranchefi/crypto"
)

// Kind names an effect type.
type Kind string

const (
	KindTransfer Kind = "transfer"
	KindSwap     Kind = "swap"
	KindSupply   Kind = "supply"
	KindWithdraw Kind = "withdraw"
)

// Effect is an outbound call produced by a ledger transition. Effects are
// issued only after the transition has been persisted and are never undone.
type Effect interface {
	Kind() Kind
	// Contract is the collaborator the effect is addressed to.
	Contract() crypto.Address
	Apply(ctx context.Context, inv Invoker) error
	Attributes() map[string]string
}

// Transfer moves Amount of Token from From to To.
type Transfer struct {
	Token  crypto.Address
	From   crypto.Address
	To     crypto.Address
	Amount *big.Int
}

func (Transfer) Kind() Kind                 { return KindTransfer }
func (e Transfer) Contract() crypto.Address { return e.Token }

func (e Transfer) Apply(ctx context.Context, inv Invoker) error {
	return Token{Invoker: inv, Address: e.Token}.Transfer(ctx, e.From, e.To, e.Amount)
}

func (e Transfer) Attributes() map[string]string {
	return map[string]string{
		"token":  e.Token.String(),
		"from":   e.From.String(),
		"to":     e.To.String(),
		"amount": amountArg(e.Amount),
	}
}

// Swap exchanges AmountIn of TokenIn for TokenOut, delivered to Recipient.
type Swap struct {
	Router    crypto.Address
	TokenIn   crypto.Address
	AmountIn  *big.Int
	TokenOut  crypto.Address
	Recipient crypto.Address
}

func (Swap) Kind() Kind                 { return KindSwap }
func (e Swap) Contract() crypto.Address { return e.Router }

func (e Swap) Apply(ctx context.Context, inv Invoker) error {
	return Router{Invoker: inv, Address: e.Router}.Swap(ctx, e.TokenIn, e.AmountIn, e.TokenOut, e.Recipient)
}

func (e Swap) Attributes() map[string]string {
	return map[string]string{
		"router":    e.Router.String(),
		"tokenIn":   e.TokenIn.String(),
		"amountIn":  amountArg(e.AmountIn),
		"tokenOut":  e.TokenOut.String(),
		"recipient": e.Recipient.String(),
	}
}

// Supply deposits Amount of Token into the pool.
type Supply struct {
	Pool   crypto.Address
	Token  crypto.Address
	Amount *big.Int
}

func (Supply) Kind() Kind                 { return KindSupply }
func (e Supply) Contract() crypto.Address { return e.Pool }

func (e Supply) Apply(ctx context.Context, inv Invoker) error {
	return Pool{Invoker: inv, Address: e.Pool}.Supply(ctx, e.Token, e.Amount)
}

func (e Supply) Attributes() map[string]string {
	return map[string]string{
		"pool":   e.Pool.String(),
		"token":  e.Token.String(),
		"amount": amountArg(e.Amount),
	}
}

// Withdraw pulls Amount of Token out of the pool.
type Withdraw struct {
	Pool   crypto.Address
	Token  crypto.Address
	Amount *big.Int
}

func (Withdraw) Kind() Kind                 { return KindWithdraw }
func (e Withdraw) Contract() crypto.Address { return e.Pool }

func (e Withdraw) Apply(ctx context.Context, inv Invoker) error {
	return Pool{Invoker: inv, Address: e.Pool}.Withdraw(ctx, e.Token, e.Amount)
}

func (e Withdraw) Attributes() map[string]string {
	return map[string]string{
		"pool":   e.Pool.String(),
		"token":  e.Token.String(),
		"amount": amountArg(e.Amount),
	}
}

// View is the serialisable form of an effect.
type View struct {
	Kind       Kind              `json:"kind"`
	Contract   string            `json:"contract"`
	Attributes map[string]string `json:"attributes"`
}

func Describe(list []Effect) []View {
	out := make([]View, 0, len(list))
	for _, eff := range list {
		out = append(out, View{Kind: eff.Kind(), Contract: eff.Contract().String(), Attributes: eff.Attributes()})
	}
	return out
}
