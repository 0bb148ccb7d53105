package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/transportuni/chatbot-api/config"
)

// TokenKind discriminates short-lived access tokens from long-lived refresh tokens.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Claims is the JWT payload: {sub, iat, exp, type}.
type Claims struct {
	Type TokenKind `json:"type"`
	jwt.RegisteredClaims
}

// Reasons a token fails verification.
const (
	ReasonMalformed        = "malformed"
	ReasonSignatureInvalid = "signature_invalid"
	ReasonExpired          = "expired"
	ReasonWrongKind        = "wrong_kind"
)

// TokenError is the structured failure returned by TokenService.Verify.
// errors.Is matches two TokenErrors with the same Reason, so callers compare
// against the Err* sentinels below.
type TokenError struct {
	Reason string
	Err    error
}

func (e *TokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token %s: %v", e.Reason, e.Err)
	}
	return "token " + e.Reason
}

func (e *TokenError) Unwrap() error { return e.Err }

// Is reports whether target is a TokenError with the same reason.
func (e *TokenError) Is(target error) bool {
	t, ok := target.(*TokenError)
	return ok && t.Reason == e.Reason
}

var (
	ErrTokenMalformed = &TokenError{Reason: ReasonMalformed}
	ErrTokenSignature = &TokenError{Reason: ReasonSignatureInvalid}
	ErrTokenExpired   = &TokenError{Reason: ReasonExpired}
	ErrTokenKind      = &TokenError{Reason: ReasonWrongKind}
)

// TokenService issues and verifies HMAC-signed bearer tokens.
// The secret is copied in at construction and never changes afterwards.
type TokenService struct {
	secret     []byte
	method     *jwt.SigningMethodHMAC
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	parser     *jwt.Parser
}

// TokenOption customises a TokenService.
type TokenOption func(*TokenService)

// WithClock replaces time.Now, mainly for tests that need to step past an expiry.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

// NewTokenService builds a TokenService from the auth configuration.
func NewTokenService(cfg *config.AuthConfig, opts ...TokenOption) (*TokenService, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	var method *jwt.SigningMethodHMAC
	switch cfg.JWTAlgorithm {
	case "", "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("unsupported jwt algorithm %q", cfg.JWTAlgorithm)
	}

	s := &TokenService{
		secret:     []byte(cfg.JWTSecret),
		method:     method,
		accessTTL:  cfg.AccessTokenDuration,
		refreshTTL: cfg.RefreshTokenDuration,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.clock),
	)
	return s, nil
}

// clock is the service's notion of now, in whole seconds.
func (s *TokenService) clock() time.Time {
	return s.now().Truncate(time.Second)
}

// AccessTTL is the default lifetime of access tokens.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL is the default lifetime of refresh tokens.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// Issue signs a token for subject that expires ttl after now.
// It returns the compact token and its expiry.
func (s *TokenService) Issue(subject string, kind TokenKind, ttl time.Duration) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errors.New("token subject is empty")
	}
	if ttl < 0 {
		return "", time.Time{}, fmt.Errorf("negative token ttl %s", ttl)
	}
	issuedAt := s.clock()
	expiresAt := issuedAt.Add(ttl).Truncate(time.Second)
	claims := &Claims{
		Type: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// IssueAccess issues an access token with the configured access lifetime.
func (s *TokenService) IssueAccess(subject string) (string, time.Time, error) {
	return s.Issue(subject, KindAccess, s.accessTTL)
}

// IssueRefresh issues a refresh token with the configured refresh lifetime.
func (s *TokenService) IssueRefresh(subject string) (string, time.Time, error) {
	return s.Issue(subject, KindRefresh, s.refreshTTL)
}

// Verify checks the signature, algorithm and expiry of token. A token is
// expired once now reaches its exp claim. Failures are always *TokenError.
func (s *TokenService) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, classifyJWTError(err)
	}
	if claims.Subject == "" {
		return nil, &TokenError{Reason: ReasonMalformed, Err: errors.New("missing subject")}
	}
	switch claims.Type {
	case KindAccess, KindRefresh:
	default:
		return nil, &TokenError{Reason: ReasonMalformed, Err: fmt.Errorf("unknown token type %q", claims.Type)}
	}
	return claims, nil
}

// VerifyKind is Verify plus a check that the token is of the wanted kind.
func (s *TokenService) VerifyKind(token string, kind TokenKind) (*Claims, error) {
	claims, err := s.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.Type != kind {
		return nil, &TokenError{Reason: ReasonWrongKind, Err: fmt.Errorf("expected %s token, got %s", kind, claims.Type)}
	}
	return claims, nil
}

func classifyJWTError(err error) *TokenError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return &TokenError{Reason: ReasonExpired, Err: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return &TokenError{Reason: ReasonSignatureInvalid, Err: err}
	default:
		return &TokenError{Reason: ReasonMalformed, Err: err}
	}
}
