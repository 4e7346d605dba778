// Package auth provides stateless session tokens using JWT.
// Designed for horizontal scaling - no shared state between instances.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/pocket/adapters/clock"
	"github.com/artpar/pocket/ports"
	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the JWT claims of a session.
type Claims struct {
	Username    string              `json:"username"`
	Groups      []string            `json:"groups,omitempty"`
	Permissions map[string][]string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies HS256 session tokens.
// Thread-safe and suitable for concurrent use.
type TokenService struct {
	secret     []byte
	issuer     string
	expiration time.Duration
	clock      ports.Clock
}

// Option configures a TokenService.
type Option func(*TokenService)

// WithClock sets the time source used for issuing and verifying.
func WithClock(c ports.Clock) Option {
	return func(s *TokenService) { s.clock = c }
}

// WithIssuer sets the iss claim. Tokens from other issuers are rejected.
func WithIssuer(issuer string) Option {
	return func(s *TokenService) { s.issuer = issuer }
}

// NewTokenService creates a new JWT token service.
// If secret is empty, a random 32-byte secret is generated. Tokens live for
// exactly expiration; zero or negative means they are expired as soon as
// they are issued.
func NewTokenService(secret string, expiration time.Duration, opts ...Option) *TokenService {
	var secretBytes []byte
	if secret == "" {
		secretBytes = make([]byte, 32)
		rand.Read(secretBytes)
	} else {
		secretBytes = []byte(secret)
	}

	if expiration < 0 {
		expiration = 0
	}

	s := &TokenService{
		secret:     secretBytes,
		issuer:     "pocket",
		expiration: expiration,
		clock:      clock.Real{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue signs claims and returns the token with its expiry.
func (s *TokenService) Issue(c ports.TokenClaims) (string, time.Time, error) {
	now := s.clock.Now().UTC()
	expiresAt := now.Add(s.expiration)

	claims := Claims{
		Username:    c.Username,
		Groups:      c.Groups,
		Permissions: c.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   c.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// Verify validates a token and returns its claims. Expired tokens fail
// with ports.ErrTokenExpired, everything else with ports.ErrTokenInvalid.
func (s *TokenService) Verify(tokenString string) (ports.TokenClaims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return ports.TokenClaims{}, err
	}

	out := ports.TokenClaims{
		Subject:     claims.Subject,
		Username:    claims.Username,
		Groups:      claims.Groups,
		Permissions: claims.Permissions,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

func (s *TokenService) parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	},
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ports.ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ports.ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ports.ErrTokenInvalid
	}

	return claims, nil
}

// Ensure interface compliance.
var _ ports.TokenCodec = (*TokenService)(nil)
