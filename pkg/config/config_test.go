package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DASHBOARD_COOKIE", "")
	t.Setenv("LIFE_DATA_COOKIE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != "7860" {
		t.Fatalf("port = %s, want 7860", cfg.Server.Port)
	}
	if cfg.Extraction.Interval != 15*time.Second {
		t.Fatalf("interval = %v, want 15s", cfg.Extraction.Interval)
	}
	if cfg.Extraction.FirstReadyTimeout != 30*time.Second || cfg.Extraction.ReadyTimeout != 60*time.Second {
		t.Fatalf("readiness timeouts = %v/%v", cfg.Extraction.FirstReadyTimeout, cfg.Extraction.ReadyTimeout)
	}
	if cfg.Target.MarkerText != DefaultMarkerText || cfg.Target.CookieName != "satoken" {
		t.Fatalf("unexpected target defaults: %+v", cfg.Target)
	}
	if cfg.Target.HasCredential() {
		t.Fatalf("HasCredential() = true without cookie env")
	}
	if diff := cmp.Diff(DefaultMetricNames, cfg.Target.MetricNames); diff != "" {
		t.Fatalf("metric names mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFallsBackToLegacyCookieVariable(t *testing.T) {
	t.Setenv("DASHBOARD_COOKIE", "")
	t.Setenv("LIFE_DATA_COOKIE", " legacy-token ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Target.CookieValue != "legacy-token" {
		t.Fatalf("cookie = %q, want legacy-token", cfg.Target.CookieValue)
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	t.Setenv("EXTRACTION_INTERVAL", "soon")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want invalid EXTRACTION_INTERVAL")
	}
}

func TestLoadTrustedProxies(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 127.0.0.1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.RateLimit.TrustedProxies) != 2 || cfg.RateLimit.TrustedProxies[1] != "127.0.0.1" {
		t.Fatalf("TrustedProxies = %v", cfg.RateLimit.TrustedProxies)
	}

	t.Setenv("TRUSTED_PROXIES", "proxy.local")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want invalid TRUSTED_PROXIES")
	}
}

func TestLoadRequiresSelectorForValueStrategy(t *testing.T) {
	t.Setenv("READINESS_STRATEGY", "value")
	t.Setenv("TARGET_VALUE_SELECTOR", "")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want selector requirement")
	}
}

func TestProfileOverlayRespectsEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "target.yaml")
	body := `
dashboard_id: shop-42
url: https://example.com/board
cookie:
  name: session
  domain: example.com
readiness:
  marker_text: Live data
metrics: [GMV, Visitors]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	t.Setenv("TARGET_PROFILE_FILE", path)
	t.Setenv("TARGET_MARKER_TEXT", "Overridden")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Target.URL != "https://example.com/board" || cfg.Target.DashboardID != "shop-42" {
		t.Fatalf("profile not applied: %+v", cfg.Target)
	}
	if cfg.Target.CookieName != "session" || cfg.Target.CookieDomain != "example.com" {
		t.Fatalf("cookie settings not applied: %+v", cfg.Target)
	}
	if cfg.Target.MarkerText != "Overridden" {
		t.Fatalf("marker = %q, env must win over profile", cfg.Target.MarkerText)
	}
	if diff := cmp.Diff([]string{"GMV", "Visitors"}, cfg.Target.MetricNames); diff != "" {
		t.Fatalf("metrics mismatch (-want +got):\n%s", diff)
	}
}

func TestParseProfileRejectsUnknownKeys(t *testing.T) {
	if _, err := ParseProfile([]byte("urll: typo\n")); err == nil {
		t.Fatalf("ParseProfile() error = nil, want unknown field error")
	}
}

func TestParseKeyValues(t *testing.T) {
	got := parseKeyValues("Env=prod, Service = extractor ,broken,=x")
	want := map[string]string{"Env": "prod", "Service": "extractor"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("parseKeyValues mismatch (-want +got):\n%s", diff)
	}
}
