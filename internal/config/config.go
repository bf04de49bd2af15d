// Package config holds configuration for the two binaries: envconfig-based
// settings for the relay and pflag-based CLI settings for the connector.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Settings is the relay server configuration, read from RELAY_* environment
// variables.
type Settings struct {
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:":8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// JWTSecret signs session tokens. SharedSecret gates session creation.
	// Both fall back to well-known development values outside production.
	JWTSecret    string `envconfig:"JWT_SECRET" default:""`
	SharedSecret string `envconfig:"SHARED_SECRET" default:""`
	// SharedSecretHash, when set, is a bcrypt hash checked instead of the
	// plaintext SharedSecret.
	SharedSecretHash string `envconfig:"SHARED_SECRET_HASH" default:""`

	TokenTTL       time.Duration `envconfig:"TOKEN_TTL" default:"24h"`
	SessionMaxIdle time.Duration `envconfig:"SESSION_MAX_IDLE" default:"24h"`
	// SweepSpec is a cron spec for the idle-eviction sweep.
	SweepSpec string `envconfig:"SWEEP_SPEC" default:"@hourly"`

	BufferSize int `envconfig:"BUFFER_SIZE" default:"100"`

	// OriginPatterns restrict websocket upgrade origins. "*" allows all.
	OriginPatterns []string `envconfig:"ORIGIN_PATTERNS" default:"*"`

	// LogPath, when set, mirrors log output into a file.
	LogPath string `envconfig:"LOG_PATH" default:""`
}

const (
	devJWTSecret    = "dev-only-secret-key"
	devSharedSecret = "dev-shared-secret"
)

// Load reads relay settings from the environment. Secrets are mandatory in
// production; development falls back to fixed dev values.
func Load() (Settings, error) {
	var s Settings
	if err := envconfig.Process("RELAY", &s); err != nil {
		return Settings{}, fmt.Errorf("load config: %w", err)
	}

	production := s.Environment == "production"
	if s.JWTSecret == "" {
		if production {
			return Settings{}, fmt.Errorf("RELAY_JWT_SECRET is required in production")
		}
		s.JWTSecret = devJWTSecret
	}
	if s.SharedSecret == "" && s.SharedSecretHash == "" {
		if production {
			return Settings{}, fmt.Errorf("RELAY_SHARED_SECRET or RELAY_SHARED_SECRET_HASH is required in production")
		}
		s.SharedSecret = devSharedSecret
	}

	return s, nil
}
