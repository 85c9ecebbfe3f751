package market_test

import (
	"os"
	"path/filepath"
	"testing"

	market "qtcache/pkg/market"
	_ "qtcache/pkg/market/exchanges/questrade"
)

// Ensures env placeholders are expanded and durations parsed.
func TestGatewayConfig_EnvExpansionAndDurations(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("QT_TOKEN_FILE_VAR", filepath.Join(dir, "secrets", "token.json"))
	t.Setenv("QT_REFRESH_VAR", "refresh-abc")
	t.Setenv("TOUT", "9s")
	t.Setenv("HTTP_TOUT", "13s")

	yaml := []byte(`
default: qt
providers:
  qt:
    type: questrade
    token_file: ${QT_TOKEN_FILE_VAR}
    refresh_token: ${QT_REFRESH_VAR}
    timeout: ${TOUT}
    http_timeout: ${HTTP_TOUT}
`)
	path := filepath.Join(dir, "questrade.yaml")
	if err := os.WriteFile(path, yaml, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := market.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	p := cfg.Providers["qt"]
	if p == nil {
		t.Fatalf("provider qt missing")
	}
	if p.TokenFile != filepath.Join(dir, "secrets", "token.json") {
		t.Fatalf("TokenFile not expanded, got %q", p.TokenFile)
	}
	if p.RefreshToken != "refresh-abc" {
		t.Fatalf("RefreshToken not expanded, got %q", p.RefreshToken)
	}
	if p.Timeout.String() != "9s" || p.HTTPTimeout.String() != "13s" {
		t.Fatalf("durations not parsed, timeout=%s http_timeout=%s", p.Timeout, p.HTTPTimeout)
	}
}
