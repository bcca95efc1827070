package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/projectdesk/projectdesk/internal/model"
	"github.com/projectdesk/projectdesk/internal/store"
)

var (
	// ErrInvalidCredentials is the single login failure: callers cannot tell
	// an unknown username from a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthenticated is the single request-authentication failure the
	// HTTP boundary sees, whatever the root cause was.
	ErrUnauthenticated = errors.New("could not validate credentials")

	// Token verification failure kinds. These stay inside the service layer;
	// the boundary collapses them all into ErrUnauthenticated.
	ErrTokenExpired     = errors.New("token expired")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrMalformedToken   = errors.New("malformed token")
	ErrMissingSubject   = errors.New("token has no subject")
)

// Config holds the immutable authentication settings, built once at startup
// and injected everywhere that needs them.
type Config struct {
	Secret            string
	Algorithm         string // HS256, HS384, or HS512
	TokenTTL          time.Duration
	MinPasswordLength int
	AdminEmail        string
	AdminPassword     string
}

// AuthService owns credential hashing, token issuance and verification, and
// principal resolution. It holds no mutable state; every method is safe for
// concurrent use.
type AuthService struct {
	store  *store.Store
	secret []byte
	method jwt.SigningMethod
	cfg    Config
}

// NewAuthService wires the auth core against the directory store. It rejects
// unknown signing algorithms up front so a misconfigured process never
// issues a token.
func NewAuthService(st *store.Store, cfg Config) (*AuthService, error) {
	var method jwt.SigningMethod
	switch cfg.Algorithm {
	case "", "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}

	return &AuthService{
		store:  st,
		secret: []byte(cfg.Secret),
		method: method,
		cfg:    cfg,
	}, nil
}

// Config returns the immutable auth configuration this service was built with.
func (s *AuthService) Config() Config {
	return s.cfg
}

// HashPassword produces a salted bcrypt digest. Two calls on the same
// plaintext yield different digests; both verify.
func (s *AuthService) HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// VerifyPassword reports whether the plaintext matches the stored digest.
// A malformed digest simply fails verification.
func (s *AuthService) VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// IssueToken creates a signed bearer token for the subject, expiring after
// the configured TTL.
func (s *AuthService) IssueToken(subject string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
		Issuer:    "projectdesk",
	}

	token := jwt.NewWithClaims(s.method, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken checks the token's signature and expiry and returns its
// subject. Failures are classified into the token error kinds above; none
// of them leak past Authenticate.
func (s *AuthService) VerifyToken(tokenStr string) (string, error) {
	claims := &jwt.RegisteredClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.secret, nil
	})
	switch {
	case err == nil && token.Valid:
		// fall through to the subject check
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "", ErrInvalidSignature
	default:
		return "", ErrMalformedToken
	}

	if claims.Subject == "" {
		return "", ErrMissingSubject
	}
	return claims.Subject, nil
}

// Login verifies the username/password pair and issues a fresh token.
// Unknown username and wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return "", ErrInvalidCredentials
	}
	if !s.VerifyPassword(password, user.PasswordHash) {
		return "", ErrInvalidCredentials
	}
	return s.IssueToken(user.Username)
}

// Authenticate resolves a bearer token to a live user record. Every failure
// mode, from a tampered token to a soft-deleted subject, comes back as
// ErrUnauthenticated.
func (s *AuthService) Authenticate(ctx context.Context, tokenStr string) (*model.User, error) {
	subject, err := s.VerifyToken(tokenStr)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	user, err := s.store.GetUserByUsername(ctx, subject)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

// Renew re-verifies a token and, if still valid, issues a replacement with
// a full TTL window. This is the sliding-session mechanism: a continuously
// active bearer never expires. Invalid tokens return ok=false; renewal is
// best-effort and must never fail a request.
func (s *AuthService) Renew(tokenStr string) (string, bool) {
	subject, err := s.VerifyToken(tokenStr)
	if err != nil {
		return "", false
	}
	fresh, err := s.IssueToken(subject)
	if err != nil {
		return "", false
	}
	return fresh, true
}
