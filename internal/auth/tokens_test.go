package auth

import (
	"encoding/base64"
	"slices"
	"testing"
	"time"
)

func newTestIssuer(t *testing.T, opts ...IssuerOption) *TokenIssuer {
	t.Helper()
	ti, err := NewTokenIssuer("test-signing-key", "erbms", "erbms-client", time.Hour, 2*time.Minute, opts...)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	return ti
}

func TestIssueAndValidateAccessToken(t *testing.T) {
	ti := newTestIssuer(t)

	token, expiresAt, err := ti.IssueAccessToken("user-42", "jane@x.com", []string{"User", "Admin"})
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if got := time.Until(expiresAt); got < 59*time.Minute || got > time.Hour {
		t.Fatalf("unexpected expiry distance: %v", got)
	}

	claims, err := ti.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "user-42" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
	if claims.Email != "jane@x.com" {
		t.Fatalf("unexpected email %q", claims.Email)
	}
	if !slices.Contains(claims.Roles, "Admin") || !slices.Contains(claims.Roles, "User") {
		t.Fatalf("roles not preserved: %v", claims.Roles)
	}
	if claims.ID == "" {
		t.Fatal("expected a jti claim")
	}
}

func TestParseRejectsWrongIssuerAndAudience(t *testing.T) {
	ti := newTestIssuer(t)
	token, _, err := ti.IssueAccessToken("user-1", "a@b.c", nil)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	other, err := NewTokenIssuer("test-signing-key", "someone-else", "erbms-client", time.Hour, 2*time.Minute)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	if _, err := other.ParseAndValidate(token); err == nil {
		t.Fatal("expected issuer mismatch to fail")
	}

	otherAud, err := NewTokenIssuer("test-signing-key", "erbms", "other-client", time.Hour, 2*time.Minute)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	if _, err := otherAud.ParseAndValidate(token); err == nil {
		t.Fatal("expected audience mismatch to fail")
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	ti := newTestIssuer(t)
	token, _, err := ti.IssueAccessToken("user-1", "a@b.c", nil)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	other, err := NewTokenIssuer("a-different-key", "erbms", "erbms-client", time.Hour, 2*time.Minute)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	if _, err := other.ParseAndValidate(token); err == nil {
		t.Fatal("expected signature mismatch to fail")
	}
}

func TestClockSkewTolerance(t *testing.T) {
	issuedAt := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	issueClock := func() time.Time { return issuedAt }
	ti := newTestIssuer(t, WithClock(issueClock))

	token, expiresAt, err := ti.IssueAccessToken("user-9", "x@y.z", nil)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	// Just inside the 2-minute leeway after expiry.
	lateClock := func() time.Time { return expiresAt.Add(90 * time.Second) }
	validator := newTestIssuer(t, WithClock(lateClock))
	if _, err := validator.ParseAndValidate(token); err != nil {
		t.Fatalf("expected token inside skew window to validate: %v", err)
	}

	// Well past the leeway.
	tooLate := func() time.Time { return expiresAt.Add(5 * time.Minute) }
	strict := newTestIssuer(t, WithClock(tooLate))
	if _, err := strict.ParseAndValidate(token); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestNewRefreshTokenIsOpaqueAndUnique(t *testing.T) {
	ti := newTestIssuer(t)

	first, err := ti.NewRefreshToken()
	if err != nil {
		t.Fatalf("NewRefreshToken: %v", err)
	}
	second, err := ti.NewRefreshToken()
	if err != nil {
		t.Fatalf("NewRefreshToken: %v", err)
	}
	if first == second {
		t.Fatal("refresh tokens must not repeat")
	}

	raw, err := base64.StdEncoding.DecodeString(first)
	if err != nil {
		t.Fatalf("refresh token is not base64: %v", err)
	}
	if len(raw) != refreshTokenBytes {
		t.Fatalf("expected %d bytes of entropy, got %d", refreshTokenBytes, len(raw))
	}
}
