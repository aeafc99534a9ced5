package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"fundchain/crypto"
)

// AuthConfig controls bearer token verification.
type AuthConfig struct {
	HMACSecret string
	Issuer     string
	Audience   string
	ClockSkew  time.Duration
}

type contextKey string

const callerContextKey contextKey = "fund.caller"

var (
	errMissingToken = errors.New("missing bearer token")
	errNoSecret     = errors.New("auth secret not configured")
)

// Authenticator verifies HMAC-signed JWTs whose subject is the caller's
// bech32 address and attaches the decoded address to the request context.
type Authenticator struct {
	cfg    AuthConfig
	secret []byte
}

// NewAuthenticator validates cfg and returns a ready authenticator.
func NewAuthenticator(cfg AuthConfig) (*Authenticator, error) {
	secret := []byte(strings.TrimSpace(cfg.HMACSecret))
	if len(secret) == 0 {
		return nil, errNoSecret
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 30 * time.Second
	}
	return &Authenticator{cfg: cfg, secret: secret}, nil
}

// Middleware rejects requests without a valid token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := a.Authenticate(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), callerContextKey, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Authenticate resolves an Authorization header value to a caller address.
func (a *Authenticator) Authenticate(header string) ([20]byte, error) {
	tokenString := extractBearer(header)
	if tokenString == "" {
		return [20]byte{}, errMissingToken
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return [20]byte{}, errors.New("invalid token")
	}
	caller, err := crypto.ParseFundAddress(claims.Subject)
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid token subject: %w", err)
	}
	return caller, nil
}

// IssueToken signs an HS256 token for subject valid for ttl.
func IssueToken(cfg AuthConfig, subject [20]byte, ttl time.Duration, now time.Time) (string, error) {
	secret := []byte(strings.TrimSpace(cfg.HMACSecret))
	if len(secret) == 0 {
		return "", errNoSecret
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	claims := jwt.RegisteredClaims{
		Subject:   crypto.FormatFundAddress(subject),
		Issuer:    cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// CallerFromContext returns the authenticated caller, if any.
func CallerFromContext(ctx context.Context) ([20]byte, bool) {
	caller, ok := ctx.Value(callerContextKey).([20]byte)
	return caller, ok
}

func extractBearer(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
