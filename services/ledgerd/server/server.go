package server

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"tranchefi/crypto"
	"tranchefi/services/ledgerd/journal"
	"tranchefi/services/ledgerd/ledger"
	"tranchefi/services/ledgerd/middleware"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	maxRequestBody       = 64 << 10
)

// Store persists idempotency keys, the audit log and the effect journal.
type Store interface {
	ReserveIdempotency(ctx context.Context, subject, key, requestHash string) (*journal.StoredResponse, error)
	CompleteIdempotency(ctx context.Context, subject, key string, status int, body []byte) error
	ReleaseIdempotency(ctx context.Context, subject, key string) error
	InsertAuditLog(ctx context.Context, entry journal.AuditEntry) error
	ListEffects(ctx context.Context, limit int, failedOnly bool) ([]journal.EffectRecord, error)
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Ledger        *ledger.Ledger
	Store         Store
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	Logger        *slog.Logger
	Now           func() time.Time
}

// Server exposes the fund and loan ledgers over HTTP.
type Server struct {
	ledger *ledger.Ledger
	store  Store
	auth   *middleware.Authenticator
	limits *middleware.RateLimiter
	obs    *middleware.Observability
	logger *slog.Logger
	nowFn  func() time.Time

	router http.Handler
}

func New(cfg Config) (*Server, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("server: ledger required")
	}
	if cfg.Store == nil {
		return nil, errors.New("server: store required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		ledger: cfg.Ledger,
		store:  cfg.Store,
		auth:   cfg.Authenticator,
		limits: cfg.RateLimiter,
		obs:    cfg.Observability,
		logger: logger,
		nowFn:  cfg.Now,
	}
	if srv.auth == nil {
		srv.auth = middleware.NewAuthenticator(middleware.AuthConfig{}, logger)
	}
	if srv.limits == nil {
		srv.limits = middleware.NewRateLimiter(nil, logger)
	}
	if srv.obs == nil {
		srv.obs = middleware.NewObservability(middleware.ObservabilityConfig{}, logger)
	}
	if srv.nowFn == nil {
		srv.nowFn = time.Now
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.obs.MetricsHandler())

	r.Route("/v1/fund", func(fr chi.Router) {
		fr.Use(s.limits.Middleware("fund"))
		fr.With(s.route("fund.init", middleware.ScopeOperator)...).Post("/init", s.mutate(s.fundInit))
		fr.With(s.route("fund.invest")...).Post("/invest", s.mutate(s.fundInvest))
		fr.With(s.route("fund.donate")...).Post("/donate", s.mutate(s.fundDonate))
		fr.With(s.route("fund.unstake", middleware.ScopeOperator)...).Post("/unstake", s.mutate(s.fundUnstake))
		fr.With(s.route("fund.redeem", middleware.ScopeOperator)...).Post("/redeem", s.mutate(s.fundRedeem))
		fr.With(s.route("fund.state")...).Get("/state", s.handleFundState)
	})

	r.Route("/v1/credit", func(cr chi.Router) {
		cr.Use(s.limits.Middleware("credit"))
		cr.With(s.route("credit.init", middleware.ScopeOperator)...).Post("/init", s.mutate(s.creditInit))
		cr.With(s.route("credit.request")...).Post("/requests", s.mutate(s.creditRequest))
		cr.With(s.route("credit.request.get")...).Get("/requests/{borrower}", s.handleLoanRequest)
		cr.With(s.route("credit.accept", middleware.ScopeOperator)...).Post("/requests/{borrower}/accept", s.mutate(s.creditAccept))
		cr.With(s.route("credit.loan.get")...).Get("/loans/{borrower}", s.handleLoan)
		cr.With(s.route("credit.installment")...).Post("/loans/{borrower}/installments", s.mutate(s.creditInstallment))
		cr.With(s.route("credit.payoff")...).Post("/loans/{borrower}/payoff", s.mutate(s.creditPayoff))
	})

	r.With(s.route("effects.list", middleware.ScopeOperator)...).Get("/v1/effects", s.handleEffects)
	return r
}

func (s *Server) route(name string, scopes ...string) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{s.obs.Middleware(name), s.auth.Middleware(scopes...)}
}

// mutation executes a ledger call for a decoded request and returns the
// success status and response payload.
type mutation func(r *http.Request, body []byte) (int, any, error)

// mutate wraps a mutation with body limits, the simulate flag, idempotent
// replay and audit logging. The idempotency key is reserved before the
// mutation runs so concurrent duplicates cannot both execute. Simulated
// calls bypass the idempotency cache.
func (s *Server) mutate(fn mutation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := middleware.PrincipalFrom(r.Context())
		body, err := readRequestBody(r)
		if err != nil {
			s.respondError(w, r, principal.Subject, nil, http.StatusBadRequest, err)
			return
		}
		simulate := queryBool(r, "simulate")
		key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
		requestHash := hashRequest(r.Method, r.URL.Path, body)
		reserved := false
		if key != "" && !simulate {
			cached, cacheErr := s.store.ReserveIdempotency(r.Context(), principal.Subject, key, requestHash)
			if cacheErr != nil {
				s.respondError(w, r, principal.Subject, body, statusFor(cacheErr), cacheErr)
				return
			}
			if cached != nil {
				w.Header().Set("Idempotent-Replay", "true")
				s.write(w, r, principal.Subject, body, cached.Status, cached.Body)
				return
			}
			reserved = true
		}

		ctx := r.Context()
		if simulate {
			ctx = ledger.WithSimulation(ctx)
		}
		status, resp, err := fn(r.WithContext(ctx), body)
		var payload []byte
		if err == nil {
			payload, err = json.Marshal(resp)
		}
		if err != nil {
			if reserved {
				s.releaseKey(r.Context(), principal.Subject, key)
			}
			s.respondError(w, r, principal.Subject, body, statusFor(err), err)
			return
		}
		if reserved {
			if err := s.store.CompleteIdempotency(context.WithoutCancel(r.Context()), principal.Subject, key, status, payload); err != nil {
				s.logger.Error("complete idempotency key", slog.String("key", key), slog.String("error", err.Error()))
			}
		}
		s.write(w, r, principal.Subject, body, status, payload)
	}
}

func (s *Server) releaseKey(ctx context.Context, subject, key string) {
	if err := s.store.ReleaseIdempotency(context.WithoutCancel(ctx), subject, key); err != nil {
		s.logger.Error("release idempotency key", slog.String("key", key), slog.String("error", err.Error()))
	}
}

func (s *Server) fundInit(r *http.Request, body []byte) (int, any, error) {
	var req FundInitRequest
	if err := decode(body, &req); err != nil {
		return 0, nil, err
	}
	for _, f := range []struct {
		name string
		addr crypto.Address
	}{{"router", req.Router}, {"pool", req.Pool}, {"principalToken", req.PrincipalToken}, {"altToken", req.AltToken}} {
		if err := requireAddress(f.name, f.addr); err != nil {
			return 0, nil, err
		}
	}
	receipt, err := s.ledger.InitFund(r.Context(), req.Router, req.Pool, req.PrincipalToken, req.AltToken)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, receiptView(receipt), nil
}

func (s *Server) fundInvest(r *http.Request, body []byte) (int, any, error) {
	var req InvestRequest
	if err := decode(body, &req); err != nil {
		return 0, nil, err
	}
	if err := requireAddress("investor", req.Investor); err != nil {
		return 0, nil, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return 0, nil, err
	}
	res, err := s.ledger.Invest(r.Context(), req.Investor, amount)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, InvestResponse{ReceiptView: receiptView(res.Receipt), Tranches: tranchesView(res.Tranches)}, nil
}

func (s *Server) fundDonate(r *http.Request, body []byte) (int, any, error) {
	var req DonateRequest
	if err := decode(body, &req); err != nil {
		return 0, nil, err
	}
	if err := requireAddress("donor", req.Donor); err != nil {
		return 0, nil, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return 0, nil, err
	}
	receipt, err := s.ledger.Donate(r.Context(), req.Donor, amount)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, receiptView(receipt), nil
}

func (s *Server) fundUnstake(r *http.Request, body []byte) (int, any, error) {
	var req UnstakeRequest
	if err := decode(body, &req); err != nil {
		return 0, nil, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return 0, nil, err
	}
	receipt, err := s.ledger.UnstakeSubordinated(r.Context(), amount, req.Recipient)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, receiptView(receipt), nil
}

func (s *Server) fundRedeem(r *http.Request, body []byte) (int, any, error) {
	var req RedeemRequest
	if err := decode(body, &req); err != nil {
		return 0, nil, err
	}
	if err := requireAddress("investor", req.Investor); err != nil {
		return 0, nil, err
	}
	yield, err := parseAmount("yield", req.Yield)
	if err != nil {
		return 0, nil, err
	}
	res, err := s.ledger.Redeem(r.Context(), req.Investor, yield)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, RedeemResponse{ReceiptView: receiptView(res.Receipt), Payment: amountString(res.Payment)}, nil
}

func (s *Server) handleFundState(w http.ResponseWriter, r *http.Request) {
	addrs, err := s.ledger.FundAddresses()
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	st, err := s.ledger.FundState()
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, fundStateView(addrs, st, s.ledger.Custody()))
}

func (s *Server) creditInit(r *http.Request, body []byte) (int, any, error) {
	var req CreditInitRequest
	if err := decode(body, &req); err != nil {
		return 0, nil, err
	}
	for _, f := range []struct {
		name string
		addr crypto.Address
	}{{"router", req.Router}, {"pool", req.Pool}, {"principalToken", req.PrincipalToken}} {
		if err := requireAddress(f.name, f.addr); err != nil {
			return 0, nil, err
		}
	}
	receipt, err := s.ledger.InitCredit(r.Context(), req.Router, req.Pool, req.PrincipalToken)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, receiptView(receipt), nil
}

func (s *Server) creditRequest(r *http.Request, body []byte) (int, any, error) {
	var req CreditRequest
	if err := decode(body, &req); err != nil {
		return 0, nil, err
	}
	if err := requireAddress("borrower", req.Borrower); err != nil {
		return 0, nil, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return 0, nil, err
	}
	rate, err := parseAmount("interestRate", req.InterestRate)
	if err != nil {
		return 0, nil, err
	}
	fee, err := parseAmount("originationFee", req.OriginationFee)
	if err != nil {
		return 0, nil, err
	}
	res, err := s.ledger.RequestCredit(r.Context(), req.Borrower, amount, rate, fee)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, RequestCreditResponse{ReceiptView: receiptView(res.Receipt), Request: loanRequestView(res.Request)}, nil
}

func (s *Server) creditAccept(r *http.Request, body []byte) (int, any, error) {
	borrower, err := borrowerParam(r)
	if err != nil {
		return 0, nil, err
	}
	var req AcceptRequest
	if err := decode(body, &req); err != nil {
		return 0, nil, err
	}
	res, err := s.ledger.AcceptCredit(r.Context(), borrower, req.TermInMonths)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, AcceptResponse{ReceiptView: receiptView(res.Receipt), Loan: loanView(res.Loan)}, nil
}

func (s *Server) creditInstallment(r *http.Request, body []byte) (int, any, error) {
	borrower, err := borrowerParam(r)
	if err != nil {
		return 0, nil, err
	}
	var req InstallmentRequest
	if err := decode(body, &req); err != nil {
		return 0, nil, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return 0, nil, err
	}
	res, err := s.ledger.PayInstallment(r.Context(), borrower, amount)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, InstallmentResponse{
		ReceiptView: receiptView(res.Receipt),
		Interest:    amountString(res.Installment.Interest),
		Remaining:   amountString(res.Installment.Remaining),
		Repaid:      res.Installment.Repaid,
	}, nil
}

func (s *Server) creditPayoff(r *http.Request, _ []byte) (int, any, error) {
	borrower, err := borrowerParam(r)
	if err != nil {
		return 0, nil, err
	}
	res, err := s.ledger.PayOffLoan(r.Context(), borrower)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, PayoffResponse{
		ReceiptView:   receiptView(res.Receipt),
		AmountDue:     amountString(res.Payoff.AmountDue),
		MonthsElapsed: res.Payoff.MonthsElapsed,
	}, nil
}

func (s *Server) handleLoanRequest(w http.ResponseWriter, r *http.Request) {
	borrower, err := borrowerParam(r)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	req, err := s.ledger.LoanRequest(borrower)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, loanRequestView(req))
}

func (s *Server) handleLoan(w http.ResponseWriter, r *http.Request) {
	borrower, err := borrowerParam(r)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	loan, err := s.ledger.Loan(borrower)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, loanView(loan))
}

func (s *Server) handleEffects(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %w", err))
			return
		}
		limit = n
	}
	records, err := s.store.ListEffects(r.Context(), limit, queryBool(r, "failed"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if records == nil {
		records = []journal.EffectRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"effects": records})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func borrowerParam(r *http.Request) (crypto.Address, error) {
	raw := chi.URLParam(r, "borrower")
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: borrower: %v", errBadRequest, err)
	}
	return addr, nil
}

func decode(body []byte, out any) error {
	if len(strings.TrimSpace(string(body))) == 0 {
		return fmt.Errorf("%w: request body required", errBadRequest)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: invalid JSON payload: %v", errBadRequest, err)
	}
	return nil
}

func queryBool(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

func readRequestBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxRequestBody {
		return nil, fmt.Errorf("request body exceeds %d bytes", maxRequestBody)
	}
	return data, nil
}

func hashRequest(method, path string, body []byte) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{strings.ToUpper(method), path, string(body)}, "\n")))
	return fmt.Sprintf("%x", sum[:])
}

func errorPayload(err error) []byte {
	payload, _ := json.Marshal(map[string]string{"error": err.Error()})
	return payload
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, subject string, body []byte, status int, err error) {
	s.write(w, r, subject, body, status, errorPayload(err))
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, subject string, requestBody []byte, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
	entry := journal.AuditEntry{
		Subject:        subject,
		Method:         r.Method,
		Path:           r.URL.RequestURI(),
		RequestBody:    append([]byte(nil), requestBody...),
		ResponseStatus: status,
		ResponseBody:   append([]byte(nil), payload...),
		Timestamp:      s.nowFn().UTC(),
	}
	if err := s.store.InsertAuditLog(context.WithoutCancel(r.Context()), entry); err != nil {
		s.logger.Error("audit log", slog.String("path", entry.Path), slog.String("error", err.Error()))
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(errorPayload(err))
}
