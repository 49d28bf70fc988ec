// Package identity defines the contract between the access-control core and
// the credential store. The core never touches password hashing or refresh
// token persistence directly; everything goes through Store so the backing
// technology stays substitutable.
package identity

import (
	"context"
	"time"
)

// Info is the projection of a login identity the credential store hands back.
type Info struct {
	UserID   string
	Email    string
	FullName string
	Roles    []string
}

// RefreshToken is a persisted opaque refresh token. Tokens are never deleted,
// only flagged revoked.
type RefreshToken struct {
	Token      string
	UserID     string
	ExpiryDate time.Time
	IsRevoked  bool
	CreatedAt  time.Time
}

// NewCredentials carries the inputs for creating a login identity.
type NewCredentials struct {
	Email    string
	Password string
	FullName string
}

// Store is the identity bridge. Implementations own hashed passwords,
// email uniqueness and refresh-token persistence.
type Store interface {
	// ValidateCredentials returns the identity when email+password match,
	// or nil without distinguishing unknown email from a wrong password.
	ValidateCredentials(ctx context.Context, email, password string) (*Info, error)

	// Register creates a login identity with the default User role attached.
	// Returns nil when the email is already taken.
	Register(ctx context.Context, creds NewCredentials) (*Info, error)

	EmailExists(ctx context.Context, email string) (bool, error)

	// EnsureRole creates the identity-side role if missing. Idempotent.
	EnsureRole(ctx context.Context, roleName string) error

	// AssignRole and RemoveRole mutate identity-side role membership.
	// Both are idempotent; both report false when the identity is missing.
	AssignRole(ctx context.Context, userID, roleName string) (bool, error)
	RemoveRole(ctx context.Context, userID, roleName string) (bool, error)

	DeleteByID(ctx context.Context, userID string) (bool, error)
	DeleteByEmail(ctx context.Context, email string) (bool, error)

	// FindByRefreshToken resolves the identity owning an unrevoked,
	// unexpired refresh token. Returns nil when no such token exists.
	FindByRefreshToken(ctx context.Context, token string) (*Info, error)

	StoreRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error

	// RevokeRefreshToken flips is_revoked with a conditional update keyed on
	// revoked=false: only the first caller for a given token value wins.
	// Returns false when the token is unknown or already revoked.
	RevokeRefreshToken(ctx context.Context, token string) (bool, error)
}
