package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"tranchefi/crypto"
	nativecommon "tranchefi/native/common"
)

const (
	// ScopeOperator grants access to the fund manager and lender routes.
	ScopeOperator = "ledger:operator"
	// HeaderSigner names the caller when token auth is disabled.
	HeaderSigner = "X-Ledger-Signer"

	anonymous = "anonymous"
)

type AuthConfig struct {
	Enabled    bool
	HMACSecret string
	Issuer     string
	Audience   string
	ScopeClaim string
	ClockSkew  time.Duration
}

// Principal is the authenticated caller of a request.
type Principal struct {
	Subject string
	Address crypto.Address
	Scopes  []string
}

type principalKey struct{}

// PrincipalFrom returns the caller attached by the Authenticator.
func PrincipalFrom(ctx context.Context) Principal {
	if p, ok := ctx.Value(principalKey{}).(Principal); ok {
		return p
	}
	return Principal{Subject: anonymous}
}

// WithPrincipal attaches p to ctx and registers its address as a signer.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if p.Subject == "" {
		p.Subject = anonymous
	}
	ctx = context.WithValue(ctx, principalKey{}, p)
	if !p.Address.IsZero() {
		ctx = nativecommon.WithSigners(ctx, p.Address)
	}
	return ctx
}

type Authenticator struct {
	cfg    AuthConfig
	logger *slog.Logger
	secret []byte
}

func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ScopeClaim == "" {
		cfg.ScopeClaim = "scope"
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{cfg: cfg, logger: logger, secret: []byte(strings.TrimSpace(cfg.HMACSecret))}
}

// Middleware authenticates the request and enforces requiredScopes. The
// token subject must be a bech32 account address; it becomes the signer of
// the ledger call. With auth disabled the signer is read from HeaderSigner
// and scopes are not enforced.
func (a *Authenticator) Middleware(requiredScopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.cfg.Enabled {
				principal := Principal{Subject: anonymous}
				if raw := strings.TrimSpace(r.Header.Get(HeaderSigner)); raw != "" {
					addr, err := crypto.DecodeAddress(raw)
					if err != nil {
						writeError(w, http.StatusBadRequest, "invalid "+HeaderSigner+" header")
						return
					}
					principal = Principal{Subject: addr.String(), Address: addr}
				}
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
				return
			}
			tokenString := extractBearer(r.Header.Get("Authorization"))
			if tokenString == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			claims, err := a.parseToken(tokenString)
			if err == nil {
				err = validateClaims(claims, a.cfg.Issuer, a.cfg.Audience)
			}
			if err != nil {
				a.logger.Warn("auth: token rejected", slog.String("error", err.Error()))
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			subject, _ := claims["sub"].(string)
			addr, err := crypto.DecodeAddress(subject)
			if err != nil {
				a.logger.Warn("auth: subject is not an address", slog.String("sub", subject))
				writeError(w, http.StatusUnauthorized, "invalid token subject")
				return
			}
			scopes := extractScopes(claims, a.cfg.ScopeClaim)
			if !hasScopes(scopes, requiredScopes) {
				writeError(w, http.StatusForbidden, "insufficient scope")
				return
			}
			principal := Principal{Subject: addr.String(), Address: addr, Scopes: scopes}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("auth secret not configured")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithLeeway(a.cfg.ClockSkew))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not map")
	}
	return claims, nil
}

// TokenRequest describes a bearer token to mint.
type TokenRequest struct {
	Subject  crypto.Address
	Scopes   []string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// SignToken mints an HS256 token accepted by the Authenticator.
func SignToken(secret string, req TokenRequest, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("signing secret required")
	}
	if req.Subject.IsZero() {
		return "", errors.New("subject address required")
	}
	claims := jwt.MapClaims{
		"sub": req.Subject.String(),
		"iat": now.Unix(),
	}
	if req.TTL > 0 {
		claims["exp"] = now.Add(req.TTL).Unix()
	}
	if len(req.Scopes) > 0 {
		claims["scope"] = strings.Join(req.Scopes, " ")
	}
	if req.Issuer != "" {
		claims["iss"] = req.Issuer
	}
	if req.Audience != "" {
		claims["aud"] = req.Audience
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(strings.TrimSpace(secret)))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func validateClaims(claims jwt.MapClaims, issuer, audience string) error {
	if issuer != "" {
		if value, ok := claims["iss"].(string); !ok || value != issuer {
			return errors.New("issuer mismatch")
		}
	}
	if audience != "" {
		switch val := claims["aud"].(type) {
		case string:
			if val != audience {
				return errors.New("audience mismatch")
			}
		case []interface{}:
			matched := false
			for _, entry := range val {
				if s, ok := entry.(string); ok && s == audience {
					matched = true
					break
				}
			}
			if !matched {
				return errors.New("audience mismatch")
			}
		default:
			return errors.New("audience missing")
		}
	}
	return nil
}

func extractScopes(claims jwt.MapClaims, scopeClaim string) []string {
	raw, ok := claims[scopeClaim]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func hasScopes(scopes []string, required []string) bool {
	set := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		set[scope] = struct{}{}
	}
	for _, req := range required {
		if _, ok := set[req]; !ok {
			return false
		}
	}
	return true
}

func extractBearer(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, "{\"error\":%q}\n", message)
}
