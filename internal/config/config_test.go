// ABOUTME: Tests for configuration loading
// ABOUTME: Covers defaults, validation and field population
package config

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := NewConfig(zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}
	return cfg
}

func TestDefaultsPopulated(t *testing.T) {
	cfg := newTestConfig(t)

	if err := cfg.populateFromViper(); err != nil {
		t.Fatalf("populate failed: %v", err)
	}

	if cfg.ClientID == "" {
		t.Error("expected a generated client ID")
	}
	if cfg.ClientName == "" {
		t.Error("expected a client name from the hostname")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %q", cfg.LogLevel)
	}
	if !cfg.HardwareVolume {
		t.Error("expected hardware volume enabled by default")
	}
	if cfg.SyncDelay != 0 {
		t.Errorf("expected zero sync delay, got %v", cfg.SyncDelay)
	}
}

func TestServerURLSchemeValidation(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.viper.Set(configKeyServerURL, "http://example.com/sendspin")

	err := cfg.populateFromViper()
	if err == nil {
		t.Fatal("expected error for non-websocket scheme")
	}
	if !strings.Contains(err.Error(), "ws or wss") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWebsocketURLAccepted(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.viper.Set(configKeyServerURL, "wss://example.com/sendspin")

	if err := cfg.populateFromViper(); err != nil {
		t.Fatalf("expected wss URL accepted: %v", err)
	}
	if cfg.ServerURL != "wss://example.com/sendspin" {
		t.Errorf("unexpected server URL %q", cfg.ServerURL)
	}
}

func TestSyncDelayConversion(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.viper.Set(configKeySyncDelayMs, 150)

	if err := cfg.populateFromViper(); err != nil {
		t.Fatalf("populate failed: %v", err)
	}
	if cfg.SyncDelay != 150*time.Millisecond {
		t.Errorf("expected 150ms sync delay, got %v", cfg.SyncDelay)
	}
}

func TestNegativeSyncDelayClamped(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.viper.Set(configKeySyncDelayMs, -20)

	if err := cfg.populateFromViper(); err != nil {
		t.Fatalf("populate failed: %v", err)
	}
	if cfg.SyncDelay != 0 {
		t.Errorf("expected negative delay clamped to 0, got %v", cfg.SyncDelay)
	}
}

func TestInvalidLogLevelFallsBack(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.viper.Set(configKeyLogLevel, "loud")

	if err := cfg.populateFromViper(); err != nil {
		t.Fatalf("populate failed: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected fallback to info, got %q", cfg.LogLevel)
	}
}

func TestConfiguredClientIDKept(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.viper.Set(configKeyClientID, "living-room")

	if err := cfg.populateFromViper(); err != nil {
		t.Fatalf("populate failed: %v", err)
	}
	if cfg.ClientID != "living-room" {
		t.Errorf("expected configured client ID kept, got %q", cfg.ClientID)
	}
}
