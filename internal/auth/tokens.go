package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken indicates the token failed validation.
var ErrInvalidToken = errors.New("invalid token")

const refreshTokenBytes = 64

// Claims are the JWT claims carried by access tokens.
type Claims struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenIssuer signs short-lived HS256 access tokens and mints opaque refresh
// tokens. It is stateless; all knobs come from configuration at construction.
type TokenIssuer struct {
	key       []byte
	issuer    string
	audience  string
	accessTTL time.Duration
	skew      time.Duration
	now       func() time.Time
}

// IssuerOption configures a TokenIssuer.
type IssuerOption func(*TokenIssuer)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) IssuerOption {
	return func(ti *TokenIssuer) {
		if fn != nil {
			ti.now = fn
		}
	}
}

func NewTokenIssuer(key, issuer, audience string, accessTTL, skew time.Duration, opts ...IssuerOption) (*TokenIssuer, error) {
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("auth: signing key is required")
	}
	if accessTTL <= 0 {
		return nil, errors.New("auth: access ttl must be positive")
	}
	ti := &TokenIssuer{
		key:       []byte(key),
		issuer:    issuer,
		audience:  audience,
		accessTTL: accessTTL,
		skew:      skew,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(ti)
	}
	return ti, nil
}

// AccessTTL reports the configured access-token lifetime.
func (ti *TokenIssuer) AccessTTL() time.Duration { return ti.accessTTL }

// IssueAccessToken signs an HS256 JWT carrying subject, email and roles.
func (ti *TokenIssuer) IssueAccessToken(userID, email string, roles []string) (string, time.Time, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", time.Time{}, errors.New("auth: userID is required")
	}

	now := ti.now().UTC()
	expiresAt := now.Add(ti.accessTTL)
	claims := Claims{
		Email: email,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ti.issuer,
			Audience:  jwt.ClaimStrings{ti.audience},
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseAndValidate verifies the signature, issuer, audience and lifetime of an
// access token, allowing the configured clock skew.
func (ti *TokenIssuer) ParseAndValidate(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return ti.key, nil
	},
		jwt.WithIssuer(ti.issuer),
		jwt.WithAudience(ti.audience),
		jwt.WithLeeway(ti.skew),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// NewRefreshToken mints an opaque refresh token: 64 bytes of entropy,
// base64-encoded, carrying no claims.
func (ti *TokenIssuer) NewRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("refresh token entropy: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
