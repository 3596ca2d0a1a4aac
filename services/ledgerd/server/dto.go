package server

import (
	"fmt"
	"math/big"
	"strings"

	"tranchefi/core/types"
	"tranchefi/crypto"
	"tranchefi/native/credit"
	"tranchefi/native/effects"
	"tranchefi/native/fund"
	"tranchefi/services/ledgerd/ledger"
)

// Amounts travel as base-10 strings.

type FundInitRequest struct {
	Router         crypto.Address `json:"router"`
	Pool           crypto.Address `json:"pool"`
	PrincipalToken crypto.Address `json:"principalToken"`
	AltToken       crypto.Address `json:"altToken"`
}

type InvestRequest struct {
	Investor crypto.Address `json:"investor"`
	Amount   string         `json:"amount"`
}

type DonateRequest struct {
	Donor  crypto.Address `json:"donor"`
	Amount string         `json:"amount"`
}

type UnstakeRequest struct {
	Amount    string         `json:"amount"`
	Recipient crypto.Address `json:"recipient"`
}

type RedeemRequest struct {
	Investor crypto.Address `json:"investor"`
	Yield    string         `json:"yield"`
}

type CreditInitRequest struct {
	Router         crypto.Address `json:"router"`
	Pool           crypto.Address `json:"pool"`
	PrincipalToken crypto.Address `json:"principalToken"`
}

type CreditRequest struct {
	Borrower       crypto.Address `json:"borrower"`
	Amount         string         `json:"amount"`
	InterestRate   string         `json:"interestRate"`
	OriginationFee string         `json:"originationFee"`
}

type AcceptRequest struct {
	TermInMonths uint32 `json:"termInMonths"`
}

type InstallmentRequest struct {
	Amount string `json:"amount"`
}

type OutcomeView struct {
	Kind       effects.Kind `json:"kind"`
	Contract   string       `json:"contract"`
	Error      string       `json:"error,omitempty"`
	DurationMs int64        `json:"durationMs"`
}

type ReceiptView struct {
	OperationID   string         `json:"operationId"`
	Operation     string         `json:"operation"`
	Simulated     bool           `json:"simulated"`
	Effects       []effects.View `json:"effects"`
	Outcomes      []OutcomeView  `json:"outcomes,omitempty"`
	FailedEffects int            `json:"failedEffects"`
	Events        []*types.Event `json:"events"`
}

type TranchesView struct {
	Senior       string `json:"senior"`
	Subordinated string `json:"subordinated"`
	Reserve      string `json:"reserve"`
}

type InvestResponse struct {
	ReceiptView
	Tranches TranchesView `json:"tranches"`
}

type RedeemResponse struct {
	ReceiptView
	Payment string `json:"payment"`
}

type ShareView struct {
	Investor  string `json:"investor"`
	Principal string `json:"principal"`
}

type FundStateView struct {
	Router            string      `json:"router"`
	Pool              string      `json:"pool"`
	PrincipalToken    string      `json:"principalToken"`
	AltToken          string      `json:"altToken"`
	Custody           string      `json:"custody"`
	TotalSenior       string      `json:"totalSenior"`
	TotalSubordinated string      `json:"totalSubordinated"`
	TotalReserve      string      `json:"totalReserve"`
	Shares            []ShareView `json:"shares"`
}

type LoanRequestView struct {
	Borrower       string `json:"borrower"`
	Amount         string `json:"amount"`
	InterestRate   string `json:"interestRate"`
	OriginationFee string `json:"originationFee"`
	Approved       bool   `json:"approved"`
}

type LoanView struct {
	Borrower          string `json:"borrower"`
	Principal         string `json:"principal"`
	InterestRate      string `json:"interestRate"`
	TotalInterestPaid string `json:"totalInterestPaid"`
	PaidPrincipal     string `json:"paidPrincipal"`
	Outstanding       string `json:"outstanding"`
	TermInMonths      uint32 `json:"termInMonths"`
	StartTimestamp    uint64 `json:"startTimestamp"`
}

type RequestCreditResponse struct {
	ReceiptView
	Request LoanRequestView `json:"request"`
}

type AcceptResponse struct {
	ReceiptView
	Loan LoanView `json:"loan"`
}

type InstallmentResponse struct {
	ReceiptView
	Interest  string `json:"interest"`
	Remaining string `json:"remaining"`
	Repaid    bool   `json:"repaid"`
}

type PayoffResponse struct {
	ReceiptView
	AmountDue     string `json:"amountDue"`
	MonthsElapsed uint64 `json:"monthsElapsed"`
}

func parseAmount(name, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: %s is required", errBadRequest, name)
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a base-10 integer", errBadRequest, name)
	}
	return v, nil
}

func requireAddress(name string, addr crypto.Address) error {
	if addr.IsZero() {
		return fmt.Errorf("%w: %s is required", errBadRequest, name)
	}
	return nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func receiptView(r ledger.Receipt) ReceiptView {
	view := ReceiptView{
		OperationID:   r.OperationID,
		Operation:     r.Operation,
		Simulated:     r.Simulated,
		Effects:       effects.Describe(r.Effects),
		FailedEffects: r.FailedEffects(),
		Events:        r.Events,
	}
	if view.Events == nil {
		view.Events = []*types.Event{}
	}
	for _, outcome := range r.Outcomes {
		ov := OutcomeView{
			Kind:       outcome.Effect.Kind(),
			Contract:   outcome.Effect.Contract().String(),
			DurationMs: outcome.Duration.Milliseconds(),
		}
		if outcome.Err != nil {
			ov.Error = outcome.Err.Error()
		}
		view.Outcomes = append(view.Outcomes, ov)
	}
	return view
}

func tranchesView(t fund.Tranches) TranchesView {
	return TranchesView{
		Senior:       amountString(t.Senior),
		Subordinated: amountString(t.Subordinated),
		Reserve:      amountString(t.Reserve),
	}
}

func fundStateView(addrs *fund.Addresses, st *fund.State, custody crypto.Address) FundStateView {
	view := FundStateView{
		Router:            addrs.Router.String(),
		Pool:              addrs.Pool.String(),
		PrincipalToken:    addrs.PrincipalToken.String(),
		AltToken:          addrs.AltToken.String(),
		Custody:           custody.String(),
		TotalSenior:       amountString(st.TotalSenior),
		TotalSubordinated: amountString(st.TotalSubordinated),
		TotalReserve:      amountString(st.TotalReserve),
		Shares:            []ShareView{},
	}
	for _, investor := range st.Investors() {
		view.Shares = append(view.Shares, ShareView{Investor: investor.String(), Principal: amountString(st.Share(investor))})
	}
	return view
}

func loanRequestView(req *credit.LoanRequest) LoanRequestView {
	return LoanRequestView{
		Borrower:       req.Borrower.String(),
		Amount:         amountString(req.Amount),
		InterestRate:   amountString(req.InterestRate),
		OriginationFee: amountString(req.OriginationFee),
		Approved:       req.Approved,
	}
}

func loanView(loan *credit.Loan) LoanView {
	return LoanView{
		Borrower:          loan.Borrower.String(),
		Principal:         amountString(loan.Principal),
		InterestRate:      amountString(loan.InterestRate),
		TotalInterestPaid: amountString(loan.TotalInterestPaid),
		PaidPrincipal:     amountString(loan.PaidPrincipal),
		Outstanding:       amountString(loan.Outstanding()),
		TermInMonths:      loan.TermInMonths,
		StartTimestamp:    loan.StartTimestamp,
	}
}
