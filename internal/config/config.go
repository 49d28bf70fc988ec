package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the immutable process configuration, loaded once at startup and
// passed explicitly to the components that need it.
type Config struct {
	Addr  string
	PGDSN string

	// Token issuance
	JWTKey        string
	JWTIssuer     string
	JWTAudience   string
	AccessTTL     time.Duration
	RefreshExtra  time.Duration
	ClockSkew     time.Duration

	// Seed / system admin
	AdminEmail    string
	AdminPassword string
	AdminFullName string
	SeedRoles     []string

	// HTTP surface
	ClientOrigin string
}

const (
	defaultExpiresMinutes = 60
	defaultRefreshExtra   = 7 * 24 * time.Hour
	defaultClockSkew      = 2 * time.Minute
)

// Load reads configuration from the environment. The signing key is the only
// required value; everything else falls back to development defaults.
func Load() (Config, error) {
	key := strings.TrimSpace(os.Getenv("ERBMS_JWT_KEY"))
	if key == "" {
		return Config{}, errors.New("config: ERBMS_JWT_KEY is required")
	}

	expiresMinutes := defaultExpiresMinutes
	if raw := strings.TrimSpace(os.Getenv("ERBMS_JWT_EXPIRES_MINUTES")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return Config{}, fmt.Errorf("config: invalid ERBMS_JWT_EXPIRES_MINUTES %q", raw)
		}
		expiresMinutes = v
	}

	cfg := Config{
		Addr:          envOr("ERBMS_ADDR", ":8080"),
		PGDSN:         strings.TrimSpace(os.Getenv("ERBMS_PG_DSN")),
		JWTKey:        key,
		JWTIssuer:     envOr("ERBMS_JWT_ISSUER", "erbms"),
		JWTAudience:   envOr("ERBMS_JWT_AUDIENCE", "erbms-client"),
		AccessTTL:     time.Duration(expiresMinutes) * time.Minute,
		RefreshExtra:  defaultRefreshExtra,
		ClockSkew:     defaultClockSkew,
		AdminEmail:    envOr("ERBMS_ADMIN_EMAIL", "admin@erbms.local"),
		AdminPassword: envOr("ERBMS_ADMIN_PASSWORD", "ChangeMe123!"),
		AdminFullName: envOr("ERBMS_ADMIN_FULL_NAME", "System Admin"),
		SeedRoles:     splitList(envOr("ERBMS_SEED_ROLES", "Admin,Manager,User")),
		ClientOrigin:  envOr("ERBMS_CLIENT_ORIGIN", "http://localhost:5173"),
	}
	return cfg, nil
}

// IsSystemAdmin reports whether the email designates the configured system
// admin. Case-insensitive, evaluated per read; the flag is never stored.
func (c Config) IsSystemAdmin(email string) bool {
	return strings.EqualFold(strings.TrimSpace(email), c.AdminEmail)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
