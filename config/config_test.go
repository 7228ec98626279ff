package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "ALLOWED_ORIGINS", "REDIS_HOST", "REDIS_DB", "ICE_SERVERS", "RECONCILE_INTERVAL"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("expected 2 default origins, got %v", cfg.AllowedOrigins)
	}
	if cfg.Redis.Enabled() {
		t.Error("expected redis to be disabled without REDIS_HOST")
	}
	if cfg.Client.ReconcileInterval != 5*time.Second {
		t.Errorf("expected 5s reconcile interval, got %s", cfg.Client.ReconcileInterval)
	}
	if len(cfg.Client.ICEServers) != 1 {
		t.Errorf("expected one default ICE server, got %v", cfg.Client.ICEServers)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("RECONCILE_INTERVAL", "750ms")

	cfg := Load()

	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if !cfg.Redis.Enabled() || cfg.Redis.DB != 3 {
		t.Errorf("unexpected redis config %+v", cfg.Redis)
	}
	if cfg.Client.ReconcileInterval != 750*time.Millisecond {
		t.Errorf("expected 750ms, got %s", cfg.Client.ReconcileInterval)
	}
}
