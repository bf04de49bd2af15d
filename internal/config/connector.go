package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// ConnectorConfig is the connector-side configuration, assembled from CLI
// flags and environment defaults.
type ConnectorConfig struct {
	ServerURL string
	Token     string
	Shell     string
	// Env is the child shell environment: defaults overridden by explicit
	// KEY=VALUE flags.
	Env map[string]string

	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
}

// Connector reconnection defaults.
const (
	DefaultReconnectInterval    = 2 * time.Second
	DefaultMaxReconnectAttempts = 10
)

// DefaultShell returns the shell to spawn when none is given: $SHELL, or
// /bin/bash.
func DefaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/bash"
}

// DefaultEnv returns the baseline child environment, inheriting terminal
// and locale settings from the connector's own environment.
func DefaultEnv() map[string]string {
	return map[string]string{
		"TERM": envOr("TERM", "xterm-256color"),
		"LANG": envOr("LANG", "en_US.UTF-8"),
		"HOME": envOr("HOME", "/"),
		"PATH": envOr("PATH", "/usr/local/bin:/usr/bin:/bin"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ParseEnvOverrides parses repeatable KEY=VALUE strings. Entries without
// an '=' past the first character are ignored.
func ParseEnvOverrides(pairs []string) map[string]string {
	env := make(map[string]string)
	for _, pair := range pairs {
		i := strings.Index(pair, "=")
		if i <= 0 {
			continue
		}
		env[pair[:i]] = pair[i+1:]
	}
	return env
}

// ParseConnectorFlags parses the connector CLI arguments (excluding the
// program name). --url and --token are required.
func ParseConnectorFlags(args []string) (ConnectorConfig, error) {
	fs := pflag.NewFlagSet("connector", pflag.ContinueOnError)

	url := fs.StringP("url", "u", "", "relay server URL (e.g. https://relay.example.com)")
	tok := fs.StringP("token", "t", "", "connector JWT token")
	shell := fs.StringP("shell", "s", DefaultShell(), "shell to spawn")
	envPairs := fs.StringArrayP("env", "e", nil, "environment override KEY=VALUE (repeatable)")

	if err := fs.Parse(args); err != nil {
		return ConnectorConfig{}, err
	}
	if *url == "" {
		return ConnectorConfig{}, fmt.Errorf("--url is required")
	}
	if *tok == "" {
		return ConnectorConfig{}, fmt.Errorf("--token is required")
	}

	env := DefaultEnv()
	for k, v := range ParseEnvOverrides(*envPairs) {
		env[k] = v
	}

	return ConnectorConfig{
		ServerURL:            *url,
		Token:                *tok,
		Shell:                *shell,
		Env:                  env,
		ReconnectInterval:    DefaultReconnectInterval,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
	}, nil
}
