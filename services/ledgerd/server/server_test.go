package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tranchefi/crypto"
	nativecommon "tranchefi/native/common"
	"tranchefi/native/effects"
	"tranchefi/services/ledgerd/journal"
	"tranchefi/services/ledgerd/ledger"
	"tranchefi/services/ledgerd/middleware"
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
	carol     = makeAddress(crypto.AccountPrefix, 0xC0)
	operator  = makeAddress(crypto.AccountPrefix, 0x0F)
)

const (
	secret    = "server-test-secret"
	startTime = int64(1_700_000_000)
)

type harness struct {
	handler  http.Handler
	store    *journal.Store
	recorder *effects.Recorder
	auth     bool
}

func newHarness(t *testing.T, authEnabled bool) *harness {
	t.Helper()
	store, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	recorder := &effects.Recorder{}
	l, err := ledger.New(storage.NewMemDB(), ledger.Options{
		Custody:    custody,
		Dispatcher: effects.NewDispatcher(recorder, 0, nil),
		Journal:    store,
		Now:        func() int64 { return startTime },
	})
	require.NoError(t, err)

	srv, err := New(Config{
		Ledger:        l,
		Store:         store,
		Authenticator: middleware.NewAuthenticator(middleware.AuthConfig{Enabled: authEnabled, HMACSecret: secret}, nil),
	})
	require.NoError(t, err)
	return &harness{handler: srv.Handler(), store: store, recorder: recorder, auth: authEnabled}
}

type call struct {
	method  string
	path    string
	body    any
	signer  crypto.Address
	scopes  []string
	headers map[string]string
}

func (h *harness) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if c.body != nil {
		payload, err := json.Marshal(c.body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(c.method, c.path, reader)
	if !c.signer.IsZero() {
		if h.auth {
			token, err := middleware.SignToken(secret, middleware.TokenRequest{Subject: c.signer, Scopes: c.scopes, TTL: time.Hour}, time.Now())
			require.NoError(t, err)
			req.Header.Set("Authorization", "Bearer "+token)
		} else {
			req.Header.Set(middleware.HeaderSigner, c.signer.String())
		}
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	res := httptest.NewRecorder()
	h.handler.ServeHTTP(res, req)
	return res
}

func decodeBody[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out), res.Body.String())
	return out
}

func (h *harness) initFund(t *testing.T) {
	t.Helper()
	res := h.do(t, call{method: http.MethodPost, path: "/v1/fund/init", signer: operator, scopes: []string{middleware.ScopeOperator}, body: FundInitRequest{
		Router: router, Pool: pool, PrincipalToken: principal, AltToken: alt,
	}})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
}

func (h *harness) initCredit(t *testing.T) {
	t.Helper()
	res := h.do(t, call{method: http.MethodPost, path: "/v1/credit/init", signer: operator, scopes: []string{middleware.ScopeOperator}, body: CreditInitRequest{
		Router: router, Pool: pool, PrincipalToken: principal,
	}})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, false)
	res := h.do(t, call{method: http.MethodGet, path: "/healthz"})
	require.Equal(t, http.StatusOK, res.Code)
	require.JSONEq(t, `{"status":"ok"}`, res.Body.String())
}

func TestFundStateBeforeInit(t *testing.T) {
	h := newHarness(t, false)
	res := h.do(t, call{method: http.MethodGet, path: "/v1/fund/state"})
	require.Equal(t, http.StatusConflict, res.Code)
}

func TestInvestAndState(t *testing.T) {
	h := newHarness(t, false)
	h.initFund(t)

	res := h.do(t, call{method: http.MethodPost, path: "/v1/fund/invest", signer: alice, body: InvestRequest{Investor: alice, Amount: "10000"}})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	invest := decodeBody[InvestResponse](t, res)
	require.Equal(t, TranchesView{Senior: "8200", Subordinated: "1500", Reserve: "300"}, invest.Tranches)
	require.Len(t, invest.Effects, 2)
	require.Len(t, invest.Outcomes, 2)
	require.Zero(t, invest.FailedEffects)

	res = h.do(t, call{method: http.MethodGet, path: "/v1/fund/state"})
	require.Equal(t, http.StatusOK, res.Code)
	st := decodeBody[FundStateView](t, res)
	require.Equal(t, "8200", st.TotalSenior)
	require.Equal(t, "1500", st.TotalSubordinated)
	require.Equal(t, "300", st.TotalReserve)
	require.Equal(t, custody.String(), st.Custody)
	require.Equal(t, []ShareView{{Investor: alice.String(), Principal: "10000"}}, st.Shares)
}

func TestSimulateDoesNotPersist(t *testing.T) {
	h := newHarness(t, false)
	h.initFund(t)

	res := h.do(t, call{method: http.MethodPost, path: "/v1/fund/invest?simulate=true", body: InvestRequest{Investor: alice, Amount: "100"}})
	require.Equal(t, http.StatusOK, res.Code)
	invest := decodeBody[InvestResponse](t, res)
	require.True(t, invest.Simulated)
	require.Len(t, invest.Effects, 2)
	require.Empty(t, invest.Outcomes)
	require.Empty(t, h.recorder.Calls())

	st := decodeBody[FundStateView](t, h.do(t, call{method: http.MethodGet, path: "/v1/fund/state"}))
	require.Equal(t, "0", st.TotalSenior)
	require.Empty(t, st.Shares)
}

func TestIdempotentReplay(t *testing.T) {
	h := newHarness(t, false)
	h.initFund(t)

	headers := map[string]string{headerIdempotencyKey: "invest-1"}
	body := InvestRequest{Investor: alice, Amount: "1000"}
	first := h.do(t, call{method: http.MethodPost, path: "/v1/fund/invest", signer: alice, body: body, headers: headers})
	require.Equal(t, http.StatusOK, first.Code)

	second := h.do(t, call{method: http.MethodPost, path: "/v1/fund/invest", signer: alice, body: body, headers: headers})
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
	require.JSONEq(t, first.Body.String(), second.Body.String())
	require.Len(t, h.recorder.Calls(), 2)

	st := decodeBody[FundStateView](t, h.do(t, call{method: http.MethodGet, path: "/v1/fund/state"}))
	require.Equal(t, "820", st.TotalSenior)

	conflict := h.do(t, call{method: http.MethodPost, path: "/v1/fund/invest", signer: alice, body: InvestRequest{Investor: alice, Amount: "5"}, headers: headers})
	require.Equal(t, http.StatusConflict, conflict.Code)

	n, err := h.store.CountAudit(context.Background(), alice.String())
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestDonateRequiresDonorSignature(t *testing.T) {
	h := newHarness(t, false)
	h.initFund(t)

	res := h.do(t, call{method: http.MethodPost, path: "/v1/fund/donate", signer: carol, body: DonateRequest{Donor: alice, Amount: "50"}})
	require.Equal(t, http.StatusForbidden, res.Code)

	res = h.do(t, call{method: http.MethodPost, path: "/v1/fund/donate", signer: alice, body: DonateRequest{Donor: alice, Amount: "50"}})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	receipt := decodeBody[ReceiptView](t, res)
	require.Len(t, receipt.Effects, 1)
	require.Equal(t, effects.KindTransfer, receipt.Effects[0].Kind)
	require.Equal(t, custody.String(), receipt.Effects[0].Attributes["to"])
}

func TestRedeemErrorsMapToStatus(t *testing.T) {
	h := newHarness(t, false)
	h.initFund(t)

	res := h.do(t, call{method: http.MethodPost, path: "/v1/fund/redeem", body: RedeemRequest{Investor: alice, Yield: "0"}})
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)

	res = h.do(t, call{method: http.MethodPost, path: "/v1/fund/invest", body: InvestRequest{Investor: alice, Amount: "-1"}})
	require.Equal(t, http.StatusBadRequest, res.Code)

	res = h.do(t, call{method: http.MethodPost, path: "/v1/fund/invest", body: InvestRequest{Investor: alice, Amount: "ten"}})
	require.Equal(t, http.StatusBadRequest, res.Code)

	res = h.do(t, call{method: http.MethodPost, path: "/v1/fund/invest", body: map[string]string{"investor": "bogus", "amount": "1"}})
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestCreditLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t, false)
	h.initCredit(t)
	loanPath := "/v1/credit/loans/" + carol.String()

	res := h.do(t, call{method: http.MethodPost, path: "/v1/credit/requests", signer: carol, body: CreditRequest{
		Borrower: carol, Amount: "10000", InterestRate: "5", OriginationFee: "2",
	}})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	res = h.do(t, call{method: http.MethodGet, path: "/v1/credit/requests/" + carol.String()})
	require.Equal(t, http.StatusOK, res.Code)
	require.False(t, decodeBody[LoanRequestView](t, res).Approved)

	res = h.do(t, call{method: http.MethodPost, path: "/v1/credit/requests/" + carol.String() + "/accept", body: AcceptRequest{TermInMonths: 12}})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	accepted := decodeBody[AcceptResponse](t, res)
	require.Equal(t, "9180", accepted.Loan.Principal)
	require.Equal(t, "9000", accepted.Effects[0].Attributes["amount"])

	res = h.do(t, call{method: http.MethodPost, path: "/v1/credit/requests/" + carol.String() + "/accept", body: AcceptRequest{TermInMonths: 12}})
	require.Equal(t, http.StatusConflict, res.Code)

	res = h.do(t, call{method: http.MethodPost, path: loanPath + "/installments", signer: carol, body: InstallmentRequest{Amount: "1180"}})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	inst := decodeBody[InstallmentResponse](t, res)
	require.Equal(t, "400", inst.Interest)
	require.Equal(t, "8000", inst.Remaining)

	res = h.do(t, call{method: http.MethodGet, path: loanPath})
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "8000", decodeBody[LoanView](t, res).Outstanding)

	res = h.do(t, call{method: http.MethodPost, path: loanPath + "/payoff", signer: carol})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.Equal(t, "8400", decodeBody[PayoffResponse](t, res).AmountDue)

	res = h.do(t, call{method: http.MethodGet, path: loanPath})
	require.Equal(t, http.StatusNotFound, res.Code)
}

func TestBorrowerPathMustBeAddress(t *testing.T) {
	h := newHarness(t, false)
	res := h.do(t, call{method: http.MethodGet, path: "/v1/credit/loans/not-an-address"})
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestOperatorScopeEnforced(t *testing.T) {
	h := newHarness(t, true)
	body := FundInitRequest{Router: router, Pool: pool, PrincipalToken: principal, AltToken: alt}

	res := h.do(t, call{method: http.MethodPost, path: "/v1/fund/init", body: body})
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res = h.do(t, call{method: http.MethodPost, path: "/v1/fund/init", signer: alice, body: body})
	require.Equal(t, http.StatusForbidden, res.Code)

	h.initFund(t)
	res = h.do(t, call{method: http.MethodPost, path: "/v1/fund/invest", signer: alice, body: InvestRequest{Investor: alice, Amount: "100"}})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
}

func TestEffectsJournalEndpoint(t *testing.T) {
	h := newHarness(t, false)
	h.recorder.Fail = map[string]error{effects.MethodSwap: errors.New("router offline")}
	h.initFund(t)

	res := h.do(t, call{method: http.MethodPost, path: "/v1/fund/invest", body: InvestRequest{Investor: alice, Amount: "100"}})
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, 1, decodeBody[InvestResponse](t, res).FailedEffects)

	res = h.do(t, call{method: http.MethodGet, path: "/v1/effects?failed=true"})
	require.Equal(t, http.StatusOK, res.Code)
	listing := decodeBody[struct {
		Effects []journal.EffectRecord `json:"effects"`
	}](t, res)
	require.Len(t, listing.Effects, 1)
	require.Equal(t, "router offline", listing.Effects[0].Error)

	res = h.do(t, call{method: http.MethodGet, path: "/v1/effects?limit=x"})
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		nativecommon.ErrNotInitialized:      http.StatusConflict,
		nativecommon.ErrInsufficientBalance: http.StatusUnprocessableEntity,
		nativecommon.ErrNoActiveLoan:        http.StatusNotFound,
		nativecommon.ErrAlreadyApproved:     http.StatusConflict,
		nativecommon.ErrNothingToRedeem:     http.StatusUnprocessableEntity,
		nativecommon.ErrUnauthorized:        http.StatusForbidden,
		nativecommon.ErrInvalidAmount:       http.StatusBadRequest,
		nativecommon.ErrModulePaused:        http.StatusServiceUnavailable,
		errors.New("boom"):                  http.StatusInternalServerError,
	}
	for err, want := range cases {
		require.Equal(t, want, statusFor(fmt.Errorf("wrapped: %w", err)), err.Error())
	}
}

func TestIdempotencyKeyRunsMutationOnce(t *testing.T) {
	h := newHarness(t, false)
	h.initFund(t)

	payload, err := json.Marshal(InvestRequest{Investor: alice, Amount: "1000"})
	require.NoError(t, err)

	const attempts = 8
	codes := make([]int, attempts)
	replays := make([]bool, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/v1/fund/invest", bytes.NewReader(payload))
			req.Header.Set(middleware.HeaderSigner, alice.String())
			req.Header.Set(headerIdempotencyKey, "invest-concurrent")
			res := httptest.NewRecorder()
			h.handler.ServeHTTP(res, req)
			codes[i] = res.Code
			replays[i] = res.Header().Get("Idempotent-Replay") == "true"
		}(i)
	}
	wg.Wait()

	executed := 0
	for i, code := range codes {
		switch {
		case code == http.StatusOK && !replays[i]:
			executed++
		case code == http.StatusOK, code == http.StatusConflict:
		default:
			t.Fatalf("unexpected status %d", code)
		}
	}
	require.Equal(t, 1, executed)
	require.Len(t, h.recorder.Calls(), 2)

	st := decodeBody[FundStateView](t, h.do(t, call{method: http.MethodGet, path: "/v1/fund/state"}))
	require.Equal(t, "820", st.TotalSenior)
}

func TestFailedMutationReleasesIdempotencyKey(t *testing.T) {
	h := newHarness(t, false)
	h.initFund(t)
	headers := map[string]string{headerIdempotencyKey: "invest-retry"}

	res := h.do(t, call{method: http.MethodPost, path: "/v1/fund/invest", signer: alice, body: InvestRequest{Investor: alice, Amount: "-1"}, headers: headers})
	require.Equal(t, http.StatusBadRequest, res.Code)

	res = h.do(t, call{method: http.MethodPost, path: "/v1/fund/invest", signer: alice, body: InvestRequest{Investor: alice, Amount: "1000"}, headers: headers})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.Empty(t, res.Header().Get("Idempotent-Replay"))
}
