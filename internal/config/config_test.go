package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"qtcache/pkg/market"
	_ "qtcache/pkg/market/exchanges/questrade"
)

// Test_gatewayConfig_envExpansion verifies that the gateway config expands
// environment variables when loaded directly via market.LoadConfig.
func Test_gatewayConfig_envExpansion(t *testing.T) {
	dir := t.TempDir()

	gatewayYAML := []byte(`
default: qt
providers:
  qt:
    type: questrade
    practice: true
    token_file: ${QT_TOKEN_FILE}
    refresh_token: ${QT_REFRESH_TOKEN}
    timeout: ${QT_TIMEOUT}
    http_timeout: ${QT_HTTP_TIMEOUT}
    max_retries: 2
`)
	path := filepath.Join(dir, "questrade.yaml")
	if err := os.WriteFile(path, gatewayYAML, 0o600); err != nil {
		t.Fatalf("write questrade.yaml: %v", err)
	}

	t.Setenv("QT_TOKEN_FILE", "/tmp/qt/token.json")
	t.Setenv("QT_REFRESH_TOKEN", "seed-token")
	t.Setenv("QT_TIMEOUT", "7s")
	t.Setenv("QT_HTTP_TIMEOUT", "11s")

	cfg, err := market.LoadConfig(path)
	if err != nil {
		t.Fatalf("market.LoadConfig: %v", err)
	}
	p := cfg.Providers["qt"]
	if p == nil {
		t.Fatalf("gateway provider 'qt' missing")
	}
	if !p.Practice {
		t.Fatalf("practice flag not parsed")
	}
	if p.TokenFile != "/tmp/qt/token.json" || p.RefreshToken != "seed-token" {
		t.Fatalf("token settings not expanded, got file=%q refresh=%q", p.TokenFile, p.RefreshToken)
	}
	if p.Timeout.String() != "7s" || p.HTTPTimeout.String() != "11s" {
		t.Fatalf("gateway timeouts not parsed, got timeout=%s http_timeout=%s", p.Timeout, p.HTTPTimeout)
	}
}

func validConfig() *Config {
	cfg := &Config{DataPath: "./data"}
	cfg.TTL = CacheTTL{Short: 10, Medium: 60, Long: 3600}
	return cfg
}

func TestValidate_TTLBounds(t *testing.T) {
	cfg := validConfig()
	cfg.TTL.Short = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected ttl.short validation error")
	}
}

func TestValidate_AppliesDefaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Env != "test" || !cfg.IsTestEnv() {
		t.Fatalf("env default not applied, got %q", cfg.Env)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("database driver default not applied, got %q", cfg.Database.Driver)
	}
	if cfg.SyncInterval() != market.OneDay || cfg.ForecastInterval() != market.OneMinute {
		t.Fatalf("interval defaults not applied, got sync=%s forecast=%s", cfg.SyncInterval(), cfg.ForecastInterval())
	}
	if cfg.Sync.Schedule != DefaultSyncSchedule {
		t.Fatalf("sync schedule default not applied, got %q", cfg.Sync.Schedule)
	}
	if got := cfg.DatabaseDSN(); got != filepath.Join("data", "candles.db") {
		t.Fatalf("DatabaseDSN() = %q", got)
	}
	if got := cfg.DataFile(cfg.Export.BackupDir); got != filepath.Join("data", "backups") {
		t.Fatalf("DataFile(backups) = %q", got)
	}
	if got := cfg.DataFile("/var/qtcache/journal"); got != "/var/qtcache/journal" {
		t.Fatalf("DataFile(abs) = %q", got)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "env", mutate: func(c *Config) { c.Env = "staging" }, want: "env"},
		{name: "driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, want: "database.driver"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Database.Driver = "pgx" }, want: "database.dsn"},
		{name: "sync interval", mutate: func(c *Config) { c.Sync.Interval = "Weekly" }, want: "sync.interval"},
		{name: "forecast interval", mutate: func(c *Config) { c.Forecast.Interval = "Hourly" }, want: "forecast.interval"},
		{name: "min bars", mutate: func(c *Config) { c.Forecast.MinBars = -1 }, want: "forecast.minBars"},
		{name: "delays", mutate: func(c *Config) { c.Sync.SymbolDelayMs = -5 }, want: "delays"},
		{name: "schedule", mutate: func(c *Config) { c.Sync.Schedule = "30 17 * * 1-5" }, want: "sync.schedule"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestIntervalAccessorsNormaliseCase(t *testing.T) {
	cfg := validConfig()
	cfg.Sync.Interval = "onehour"
	cfg.Forecast.Interval = "FIVEMINUTES"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.SyncInterval() != market.OneHour || cfg.ForecastInterval() != market.FiveMinutes {
		t.Fatalf("got sync=%s forecast=%s", cfg.SyncInterval(), cfg.ForecastInterval())
	}
}
