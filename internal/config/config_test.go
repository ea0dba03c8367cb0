package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() with empty env: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q; want 8080", cfg.Port)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Errorf("APIBasePath = %q; want /api/v1", cfg.APIBasePath)
	}
	if cfg.Presence.HeartbeatInterval != 30*time.Second {
		t.Errorf("HeartbeatInterval = %v; want 30s", cfg.Presence.HeartbeatInterval)
	}
	if cfg.Presence.StaleThreshold != 2*time.Minute {
		t.Errorf("StaleThreshold = %v; want 2m", cfg.Presence.StaleThreshold)
	}
	if cfg.Notify.WaveDelay != 4*time.Second {
		t.Errorf("WaveDelay = %v; want 4s", cfg.Notify.WaveDelay)
	}
	if cfg.Notify.RenotifyMax != 2 {
		t.Errorf("RenotifyMax = %d; want 2", cfg.Notify.RenotifyMax)
	}
	if cfg.Session.NoMessageThreshold != 30*time.Minute {
		t.Errorf("NoMessageThreshold = %v; want 30m", cfg.Session.NoMessageThreshold)
	}
}

func TestLoad_EnvOverridesAndNormalization(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "WARNING")
	t.Setenv("GIN_MODE", "bogus")
	t.Setenv("API_BASE_PATH", "api/v2/")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("RENOTIFY_MAX", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load(): %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q; want warn", cfg.LogLevel)
	}
	if cfg.GinMode != "release" {
		t.Errorf("GinMode = %q; want release fallback", cfg.GinMode)
	}
	if cfg.APIBasePath != "/api/v2" {
		t.Errorf("APIBasePath = %q; want /api/v2", cfg.APIBasePath)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 {
		t.Errorf("AllowedOrigins = %v; want 2 entries", cfg.CORS.AllowedOrigins)
	}
	if cfg.Notify.RenotifyMax != 5 {
		t.Errorf("RenotifyMax = %d; want 5", cfg.Notify.RenotifyMax)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"LOG_LEVEL":                "verbose",
		"READ_TIMEOUT":             "-5s",
		"DISPATCH_PER_MINUTE":      "0",
		"OTEL_TRACES_SAMPLER_ARG":  "1.5",
		"PRESENCE_STALE_THRESHOLD": "10s", // below heartbeat interval
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() accepted %s=%s", key, val)
			}
		})
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":        "/",
		"/":       "/",
		"api":     "/api",
		"/api/":   "/api",
		"/api/v1": "/api/v1",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Errorf("normalizeBasePath(%q) = %q; want %q", in, got, want)
		}
	}
}
