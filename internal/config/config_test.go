package config

import (
	"testing"
	"time"
)

func TestLoadDevelopmentDefaults(t *testing.T) {
	// No RELAY_* variables set: development fallbacks apply.
	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.ListenAddr != ":8080" {
		t.Fatalf("ListenAddr = %q", s.ListenAddr)
	}
	if s.JWTSecret != devJWTSecret {
		t.Fatalf("JWTSecret = %q, want dev fallback", s.JWTSecret)
	}
	if s.SharedSecret != devSharedSecret {
		t.Fatalf("SharedSecret = %q, want dev fallback", s.SharedSecret)
	}
	if s.TokenTTL != 24*time.Hour {
		t.Fatalf("TokenTTL = %v", s.TokenTTL)
	}
	if s.SessionMaxIdle != 24*time.Hour {
		t.Fatalf("SessionMaxIdle = %v", s.SessionMaxIdle)
	}
	if s.SweepSpec != "@hourly" {
		t.Fatalf("SweepSpec = %q", s.SweepSpec)
	}
	if s.BufferSize != 100 {
		t.Fatalf("BufferSize = %d", s.BufferSize)
	}
}

func TestLoadProductionRequiresSecrets(t *testing.T) {
	t.Setenv("RELAY_ENVIRONMENT", "production")

	if _, err := Load(); err == nil {
		t.Fatal("production without secrets should fail")
	}

	t.Setenv("RELAY_JWT_SECRET", "prod-jwt")
	if _, err := Load(); err == nil {
		t.Fatal("production without shared secret should fail")
	}

	t.Setenv("RELAY_SHARED_SECRET", "prod-shared")
	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.JWTSecret != "prod-jwt" || s.SharedSecret != "prod-shared" {
		t.Fatalf("secrets not picked up: %+v", s)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RELAY_LISTEN_ADDR", ":9999")
	t.Setenv("RELAY_SESSION_MAX_IDLE", "1h")
	t.Setenv("RELAY_BUFFER_SIZE", "50")

	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.ListenAddr != ":9999" {
		t.Fatalf("ListenAddr = %q", s.ListenAddr)
	}
	if s.SessionMaxIdle != time.Hour {
		t.Fatalf("SessionMaxIdle = %v", s.SessionMaxIdle)
	}
	if s.BufferSize != 50 {
		t.Fatalf("BufferSize = %d", s.BufferSize)
	}
}
