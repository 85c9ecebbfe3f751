package cli

import (
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"qtcache/internal/config"
	"qtcache/pkg/confkit"
)

// ConfigSummaryLines returns human readable lines describing the loaded app config.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	lines := []string{
		fmt.Sprintf("Environment: %s", cfg.Env),
		fmt.Sprintf("Data path: %s", cfg.DataPath),
		fmt.Sprintf("Database: %s (%s)", cfg.Database.Driver, databaseTarget(cfg)),
		fmt.Sprintf("Redis: %s", presence(strings.TrimSpace(cfg.Redis.Host) != "")),
		fmt.Sprintf("TTL (short/medium/long): %ds / %ds / %ds", cfg.TTL.Short, cfg.TTL.Medium, cfg.TTL.Long),
		fmt.Sprintf("Sync: interval=%s lookback=%dd schedule=%q backup=%t", cfg.SyncInterval(), cfg.Sync.LookbackDays, cfg.Sync.Schedule, cfg.Sync.Backup),
		fmt.Sprintf("Export dirs: parquet=%s backups=%s journal=%s",
			cfg.DataFile(cfg.Export.Dir), cfg.DataFile(cfg.Export.BackupDir), cfg.DataFile(cfg.Export.JournalDir)),
		fmt.Sprintf("Forecast: interval=%s min_bars=%d tz=%s indicators=%t",
			cfg.ForecastInterval(), cfg.Forecast.MinBars, cfg.Forecast.Timezone, cfg.Forecast.Indicators),
		sectionLine("Gateway config", cfg.Gateway),
	}

	return lines
}

// LogConfigSummary emits the configuration summary using logx.
func LogConfigSummary(cfg *config.Config) {
	lines := ConfigSummaryLines(cfg)
	if len(lines) == 0 {
		return
	}
	logx.Info("configuration summary")
	for _, line := range lines {
		logx.Infof("config • %s", line)
	}
}

// databaseTarget hides credentials of network DSNs.
func databaseTarget(cfg *config.Config) string {
	if cfg.Database.Driver == "" || cfg.Database.Driver == "sqlite" {
		return cfg.DatabaseDSN()
	}
	dsn := cfg.DatabaseDSN()
	if at := strings.LastIndex(dsn, "@"); at >= 0 {
		return dsn[at+1:]
	}
	return "configured"
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func sectionLine[T any](name string, section confkit.Section[T]) string {
	switch {
	case strings.TrimSpace(section.File) != "":
		return fmt.Sprintf("%s: %s", name, section.File)
	case section.Value != nil:
		return fmt.Sprintf("%s: inline", name)
	default:
		return fmt.Sprintf("%s: not configured", name)
	}
}
