package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfigRejectsUnknownField(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	content := `{
  "api": {
    "base": "http://localhost:9000",
    "unknown_field": 1
  }
}`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := LoadConfig(cfgPath)
	if err == nil {
		t.Fatalf("expected unknown field error")
	}
	if !strings.Contains(strings.ToLower(err.Error()), "unknown field") {
		t.Fatalf("expected unknown field error, got: %v", err)
	}
}

func TestLoadConfigRejectsTrailingJSONContent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	content := `{"api":{"base":"http://localhost:9000"}}{"extra":true}`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := LoadConfig(cfgPath)
	if err == nil {
		t.Fatalf("expected trailing json content error")
	}
	if !strings.Contains(err.Error(), "trailing JSON content") {
		t.Fatalf("expected trailing JSON content error, got: %v", err)
	}
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Chat.DefaultRetailer != "instamart" {
		t.Fatalf("unexpected default retailer: %q", cfg.Chat.DefaultRetailer)
	}
	if errs := Validate(cfg); len(errs) != 0 {
		t.Fatalf("default config should validate, got %v", errs)
	}
}

func TestRetailerOverridesFallBackToAPIDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	content := `{
  "api": {"base": "http://automation.local/", "timeout_sec": 30},
  "retailers": {
    "oyo": {"enabled": true, "api_base": "http://hotels.local", "timeout_sec": 90}
  }
}`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if got := cfg.RetailerBase("oyo"); got != "http://hotels.local" {
		t.Fatalf("oyo base mismatch: %q", got)
	}
	if got := cfg.RetailerBase("instamart"); got != "http://automation.local" {
		t.Fatalf("instamart base should fall back to api.base, got %q", got)
	}
	if got := cfg.RetailerTimeoutSec("oyo"); got != 90 {
		t.Fatalf("oyo timeout mismatch: %d", got)
	}
	if got := cfg.RetailerTimeoutSec("swiggy"); got != 30 {
		t.Fatalf("swiggy timeout should fall back, got %d", got)
	}
}

func TestValidateFlagsHalfConfiguredAuth(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Auth.Email = "demo@khwaaish.in"

	errs := Validate(cfg)
	found := false
	for _, err := range errs {
		if strings.Contains(err.Error(), "auth.email and auth.password") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected auth validation error, got %v", errs)
	}
}
