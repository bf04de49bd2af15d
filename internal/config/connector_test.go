package config

import "testing"

func TestParseEnvOverrides(t *testing.T) {
	env := ParseEnvOverrides([]string{"TERM=screen", "EMPTY=", "=bad", "novalue", "A=b=c"})

	if env["TERM"] != "screen" {
		t.Fatalf("TERM = %q", env["TERM"])
	}
	if v, ok := env["EMPTY"]; !ok || v != "" {
		t.Fatalf("EMPTY = %q, %v", v, ok)
	}
	if env["A"] != "b=c" {
		t.Fatalf("A = %q, want value containing '='", env["A"])
	}
	if _, ok := env[""]; ok {
		t.Fatal("entry with empty key accepted")
	}
	if _, ok := env["novalue"]; ok {
		t.Fatal("entry without '=' accepted")
	}
}

func TestParseConnectorFlags(t *testing.T) {
	cfg, err := ParseConnectorFlags([]string{
		"--url", "relay.example.com",
		"--token", "tok123",
		"--shell", "/bin/zsh",
		"--env", "FOO=bar",
		"--env", "TERM=screen",
	})
	if err != nil {
		t.Fatalf("ParseConnectorFlags: %v", err)
	}

	if cfg.ServerURL != "relay.example.com" {
		t.Fatalf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.Token != "tok123" {
		t.Fatalf("Token = %q", cfg.Token)
	}
	if cfg.Shell != "/bin/zsh" {
		t.Fatalf("Shell = %q", cfg.Shell)
	}
	if cfg.Env["FOO"] != "bar" {
		t.Fatalf("Env[FOO] = %q", cfg.Env["FOO"])
	}
	// Explicit overrides beat the inherited defaults.
	if cfg.Env["TERM"] != "screen" {
		t.Fatalf("Env[TERM] = %q, want override", cfg.Env["TERM"])
	}
	// Defaults survive when not overridden.
	if cfg.Env["PATH"] == "" {
		t.Fatal("Env[PATH] default missing")
	}
	if cfg.ReconnectInterval != DefaultReconnectInterval {
		t.Fatalf("ReconnectInterval = %v", cfg.ReconnectInterval)
	}
}

func TestParseConnectorFlagsRequired(t *testing.T) {
	if _, err := ParseConnectorFlags([]string{"--token", "tok"}); err == nil {
		t.Fatal("missing --url should fail")
	}
	if _, err := ParseConnectorFlags([]string{"--url", "relay.example.com"}); err == nil {
		t.Fatal("missing --token should fail")
	}
}

func TestParseConnectorFlagsShorthand(t *testing.T) {
	cfg, err := ParseConnectorFlags([]string{"-u", "relay.example.com", "-t", "tok", "-e", "X=1"})
	if err != nil {
		t.Fatalf("ParseConnectorFlags: %v", err)
	}
	if cfg.Env["X"] != "1" {
		t.Fatalf("Env[X] = %q", cfg.Env["X"])
	}
}
