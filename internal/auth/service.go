package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"erbms.org/internal/identity"
	"erbms.org/internal/obs"
	"erbms.org/internal/rbac"
)

// LoginStatus is the three-state outcome of a login attempt.
type LoginStatus int

const (
	// LoginInvalidCredentials covers unknown email, wrong password and
	// identities with no business user. The states are indistinguishable to
	// the caller so account existence cannot be probed.
	LoginInvalidCredentials LoginStatus = iota
	// LoginPendingApproval means the credentials were correct but the
	// account has not been activated by an admin yet.
	LoginPendingApproval
	LoginSuccess
)

// AuthResponse carries a freshly issued token pair and the user projection.
type AuthResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresAt    time.Time     `json:"expires_at"`
	User         rbac.UserView `json:"user"`
}

// LoginResult pairs the status with the response present only on success.
type LoginResult struct {
	Status   LoginStatus
	Response *AuthResponse
}

// Service is the access-control core: registration, login, token refresh and
// logout. It orchestrates the identity bridge, the entity store and the token
// issuer; it holds no mutable state of its own.
type Service struct {
	identities   identity.Store
	users        rbac.UserStore
	issuer       *TokenIssuer
	adminEmail   string
	refreshExtra time.Duration
}

func NewService(identities identity.Store, users rbac.UserStore, issuer *TokenIssuer, adminEmail string, refreshExtra time.Duration) (*Service, error) {
	if identities == nil || users == nil || issuer == nil {
		return nil, errors.New("auth: identity store, user store and issuer are required")
	}
	if refreshExtra <= 0 {
		refreshExtra = 7 * 24 * time.Hour
	}
	return &Service{
		identities:   identities,
		users:        users,
		issuer:       issuer,
		adminEmail:   strings.TrimSpace(adminEmail),
		refreshExtra: refreshExtra,
	}, nil
}

// Register creates a login identity and, when none exists yet, a pending
// business user awaiting admin approval. Re-registering an email whose
// business user already exists is still reported successful.
func (s *Service) Register(ctx context.Context, fullName, email, password string) (bool, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	fullName = strings.TrimSpace(fullName)
	if email == "" || !strings.Contains(email, "@") || fullName == "" || password == "" {
		return false, fmt.Errorf("%w: full name, valid email and password are required", rbac.ErrInvalidInput)
	}

	info, err := s.identities.Register(ctx, identity.NewCredentials{
		Email:    email,
		Password: password,
		FullName: fullName,
	})
	if err != nil {
		return false, err
	}
	if info == nil {
		return false, nil
	}

	existing, err := s.users.FindByEmail(ctx, info.Email)
	if err != nil && !errors.Is(err, rbac.ErrNotFound) {
		return false, err
	}
	if existing == nil {
		user := &rbac.User{
			ID:       info.UserID,
			Email:    info.Email,
			FullName: info.FullName,
			IsActive: false,
			Roles:    info.Roles,
		}
		if err := s.users.Add(ctx, user); err != nil {
			return false, err
		}
	}
	return true, nil
}

// EmailAvailable reports whether no identity uses the email yet.
func (s *Service) EmailAvailable(ctx context.Context, email string) (bool, error) {
	exists, err := s.identities.EmailExists(ctx, email)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

// Login validates credentials and issues tokens for active accounts.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	info, err := s.identities.ValidateCredentials(ctx, email, password)
	if err != nil {
		return LoginResult{}, err
	}
	if info == nil {
		obs.CountLogin("invalid")
		return LoginResult{Status: LoginInvalidCredentials}, nil
	}

	user, err := s.users.Find(ctx, info.UserID)
	if errors.Is(err, rbac.ErrNotFound) {
		obs.CountLogin("invalid")
		return LoginResult{Status: LoginInvalidCredentials}, nil
	}
	if err != nil {
		return LoginResult{}, err
	}
	if !user.IsActive {
		obs.CountLogin("pending")
		return LoginResult{Status: LoginPendingApproval}, nil
	}

	resp, err := s.issueTokens(ctx, info, user)
	if err != nil {
		return LoginResult{}, err
	}
	obs.CountLogin("success")
	return LoginResult{Status: LoginSuccess, Response: resp}, nil
}

// Refresh rotates a refresh token: the presented token is conditionally
// revoked first, and a new pair is minted only when that revocation won.
// A nil response with nil error means unauthorized.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, nil
	}
	info, err := s.identities.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, nil
	}

	user, err := s.users.Find(ctx, info.UserID)
	if errors.Is(err, rbac.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// Same activation gate as login: a user deactivated after login cannot
	// refresh their way back in.
	if !user.IsActive {
		return nil, nil
	}

	revoked, err := s.identities.RevokeRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if !revoked {
		// Lost the rotation race or token was revoked meanwhile. Fail closed.
		return nil, nil
	}

	return s.issueTokens(ctx, info, user)
}

// Logout revokes the refresh token. Returns false when the token is unknown
// or already revoked; double-logout is not an error at this layer.
func (s *Service) Logout(ctx context.Context, refreshToken string) (bool, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return false, nil
	}
	return s.identities.RevokeRefreshToken(ctx, refreshToken)
}

func (s *Service) issueTokens(ctx context.Context, info *identity.Info, user *rbac.User) (*AuthResponse, error) {
	accessToken, expiresAt, err := s.issuer.IssueAccessToken(info.UserID, info.Email, info.Roles)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.issuer.NewRefreshToken()
	if err != nil {
		return nil, err
	}

	// Refresh lifetime is anchored to the access token's expiry at issuance,
	// not to a fixed clock.
	if err := s.identities.StoreRefreshToken(ctx, info.UserID, refreshToken, expiresAt.Add(s.refreshExtra)); err != nil {
		return nil, err
	}

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		User: rbac.UserView{
			ID:            info.UserID,
			Email:         info.Email,
			FullName:      info.FullName,
			IsActive:      user.IsActive,
			CreatedAt:     user.CreatedAt,
			Roles:         info.Roles,
			IsSystemAdmin: strings.EqualFold(info.Email, s.adminEmail),
		},
	}, nil
}
