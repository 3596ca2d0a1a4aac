package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"tranchefi/crypto"
	"tranchefi/services/ledgerd/journal"
	"tranchefi/services/ledgerd/middleware"
	"tranchefi/services/ledgerd/server"
)

// Config controls how the Client reaches ledgerd.
type Config struct {
	BaseURL string
	// Token is sent as a bearer token when set.
	Token string
	// Signer is sent in the signer header when no token is configured.
	Signer  crypto.Address
	Timeout time.Duration
}

// Options tune a single mutating call.
type Options struct {
	Simulate bool
	// IdempotencyKey defaults to a random UUID.
	IdempotencyKey string
}

// APIError is a non-2xx response from ledgerd.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledgerd: %d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
}

// Client is a typed HTTP client for the ledgerd API.
type Client struct {
	baseURL string
	token   string
	signer  crypto.Address
	http    *http.Client
}

func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   strings.TrimSpace(cfg.Token),
		signer:  cfg.Signer,
		http:    &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}, nil
}

func (c *Client) InitFund(ctx context.Context, req server.FundInitRequest, opts Options) (*server.ReceiptView, error) {
	var out server.ReceiptView
	return &out, c.mutate(ctx, "/v1/fund/init", req, opts, &out)
}

func (c *Client) Invest(ctx context.Context, req server.InvestRequest, opts Options) (*server.InvestResponse, error) {
	var out server.InvestResponse
	return &out, c.mutate(ctx, "/v1/fund/invest", req, opts, &out)
}

func (c *Client) Donate(ctx context.Context, req server.DonateRequest, opts Options) (*server.ReceiptView, error) {
	var out server.ReceiptView
	return &out, c.mutate(ctx, "/v1/fund/donate", req, opts, &out)
}

func (c *Client) UnstakeSubordinated(ctx context.Context, req server.UnstakeRequest, opts Options) (*server.ReceiptView, error) {
	var out server.ReceiptView
	return &out, c.mutate(ctx, "/v1/fund/unstake", req, opts, &out)
}

func (c *Client) Redeem(ctx context.Context, req server.RedeemRequest, opts Options) (*server.RedeemResponse, error) {
	var out server.RedeemResponse
	return &out, c.mutate(ctx, "/v1/fund/redeem", req, opts, &out)
}

func (c *Client) FundState(ctx context.Context) (*server.FundStateView, error) {
	var out server.FundStateView
	return &out, c.get(ctx, "/v1/fund/state", &out)
}

func (c *Client) InitCredit(ctx context.Context, req server.CreditInitRequest, opts Options) (*server.ReceiptView, error) {
	var out server.ReceiptView
	return &out, c.mutate(ctx, "/v1/credit/init", req, opts, &out)
}

func (c *Client) RequestCredit(ctx context.Context, req server.CreditRequest, opts Options) (*server.RequestCreditResponse, error) {
	var out server.RequestCreditResponse
	return &out, c.mutate(ctx, "/v1/credit/requests", req, opts, &out)
}

func (c *Client) LoanRequest(ctx context.Context, borrower crypto.Address) (*server.LoanRequestView, error) {
	var out server.LoanRequestView
	return &out, c.get(ctx, "/v1/credit/requests/"+url.PathEscape(borrower.String()), &out)
}

func (c *Client) AcceptCredit(ctx context.Context, borrower crypto.Address, termInMonths uint32, opts Options) (*server.AcceptResponse, error) {
	var out server.AcceptResponse
	path := "/v1/credit/requests/" + url.PathEscape(borrower.String()) + "/accept"
	return &out, c.mutate(ctx, path, server.AcceptRequest{TermInMonths: termInMonths}, opts, &out)
}

func (c *Client) Loan(ctx context.Context, borrower crypto.Address) (*server.LoanView, error) {
	var out server.LoanView
	return &out, c.get(ctx, "/v1/credit/loans/"+url.PathEscape(borrower.String()), &out)
}

func (c *Client) PayInstallment(ctx context.Context, borrower crypto.Address, amount string, opts Options) (*server.InstallmentResponse, error) {
	var out server.InstallmentResponse
	path := "/v1/credit/loans/" + url.PathEscape(borrower.String()) + "/installments"
	return &out, c.mutate(ctx, path, server.InstallmentRequest{Amount: amount}, opts, &out)
}

func (c *Client) PayOffLoan(ctx context.Context, borrower crypto.Address, opts Options) (*server.PayoffResponse, error) {
	var out server.PayoffResponse
	path := "/v1/credit/loans/" + url.PathEscape(borrower.String()) + "/payoff"
	return &out, c.mutate(ctx, path, struct{}{}, opts, &out)
}

// Effects lists journaled collaborator calls, newest first.
func (c *Client) Effects(ctx context.Context, limit int, failedOnly bool) ([]journal.EffectRecord, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", fmt.Sprint(limit))
	}
	if failedOnly {
		query.Set("failed", "true")
	}
	path := "/v1/effects"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out struct {
		Effects []journal.EffectRecord `json:"effects"`
	}
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Effects, nil
}

func (c *Client) mutate(ctx context.Context, path string, body any, opts Options, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if opts.Simulate {
		path += "?simulate=true"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	key := strings.TrimSpace(opts.IdempotencyKey)
	if key == "" {
		key = uuid.NewString()
	}
	req.Header.Set("Idempotency-Key", key)
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if !c.signer.IsZero() {
		req.Header.Set(middleware.HeaderSigner, c.signer.String())
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &envelope) != nil || envelope.Error == "" {
			envelope.Error = strings.TrimSpace(string(data))
		}
		return &APIError{Status: resp.StatusCode, Message: envelope.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
