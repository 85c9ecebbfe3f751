package svc

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
	"github.com/zeromicro/go-zero/core/syncx"

	cachekeys "qtcache/internal/cache"
	"qtcache/internal/config"
	"qtcache/internal/persistence/engine"
	marketpersist "qtcache/internal/persistence/market"
	"qtcache/pkg/journal"
	marketpkg "qtcache/pkg/market"
	_ "qtcache/pkg/market/exchanges/questrade"
	"qtcache/pkg/market/indicators"
)

type ServiceContext struct {
	Config config.Config

	GatewayConfig *marketpkg.Config
	Gateways      map[string]marketpkg.Gateway
	Gateway       marketpkg.Gateway

	Engine *engine.Engine
	// Redis and SymbolCache are nil unless Redis.Host is configured.
	Redis       *redis.Redis
	SymbolCache cache.Cache
	TTL         cachekeys.TTLSet
	Journal     *journal.Writer

	Symbols *marketpersist.SymbolStore
	Candles *marketpersist.CandleStore
}

// NewServiceContext wires every dependency and exits the process on failure.
func NewServiceContext(c config.Config, mainConfigPath string) *ServiceContext {
	svc, err := New(context.Background(), c)
	if err != nil {
		log.Fatalf("failed to build service context from %s: %v", mainConfigPath, err)
	}
	return svc
}

// New builds the service context. The caller owns Close.
func New(ctx context.Context, c config.Config) (*ServiceContext, error) {
	svc := &ServiceContext{
		Config: c,
		TTL:    cachekeys.NewTTLSet(c.TTL),
	}

	gatewayCfg, err := c.GatewayConfig()
	if err != nil {
		return nil, err
	}
	// Test environments always authenticate against the practice server.
	if c.IsTestEnv() {
		for _, provider := range gatewayCfg.Providers {
			provider.Practice = true
		}
	}
	gateways, err := gatewayCfg.BuildProviders()
	if err != nil {
		return nil, fmt.Errorf("build gateways: %w", err)
	}
	svc.GatewayConfig = gatewayCfg
	svc.Gateways = gateways
	name := gatewayCfg.DefaultName()
	if svc.Gateway = gateways[name]; svc.Gateway == nil {
		return nil, fmt.Errorf("gateway config: default provider %q not defined", name)
	}

	svc.Engine, err = engine.Open(ctx, engine.Config{
		Driver:      c.Database.Driver,
		DSN:         c.DatabaseDSN(),
		MaxOpen:     c.Database.MaxOpen,
		MaxIdle:     c.Database.MaxIdle,
		BusyRetries: c.Database.BusyRetries,
		BusyDelay:   time.Duration(c.Database.BusyDelayMs) * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}
	if err := svc.Engine.Initialize(ctx); err != nil {
		_ = svc.Engine.Close()
		return nil, err
	}

	if strings.TrimSpace(c.Redis.Host) != "" {
		rds, err := redis.NewRedis(c.Redis)
		if err != nil {
			_ = svc.Engine.Close()
			return nil, fmt.Errorf("connect redis %s: %w", c.Redis.Host, err)
		}
		svc.Redis = rds
		svc.SymbolCache = cache.NewNode(rds, syncx.NewSingleFlight(), cache.NewStat(cachekeys.Namespace),
			sqlx.ErrNotFound, cache.WithExpiry(cachekeys.SymbolTTL(svc.TTL)))
	}

	svc.Journal = journal.NewWriter(c.DataFile(c.Export.JournalDir))

	svc.Symbols, err = marketpersist.NewSymbolStore(marketpersist.SymbolStoreConfig{
		Engine:    svc.Engine,
		Gateway:   svc.Gateway,
		Cache:     svc.SymbolCache,
		TTL:       svc.TTL,
		RateLimit: c.ImportDelay(),
	})
	if err != nil {
		_ = svc.Engine.Close()
		return nil, err
	}

	candleCfg := marketpersist.CandleStoreConfig{
		Engine:       svc.Engine,
		Gateway:      svc.Gateway,
		Symbols:      svc.Symbols,
		Redis:        svc.Redis,
		TTL:          svc.TTL,
		LookbackDays: c.Sync.LookbackDays,
		SymbolDelay:  c.SymbolDelay(),
		BackupDir:    c.DataFile(c.Export.BackupDir),
		Journal:      svc.Journal,
		Forecast: marketpersist.ForecastConfig{
			Interval:   c.ForecastInterval(),
			MinBars:    c.Forecast.MinBars,
			Timezone:   c.Forecast.Timezone,
			Indicators: c.Forecast.Indicators,
			Params: indicators.Params{
				EMAPeriod: c.Forecast.EMAPeriod,
				RSIPeriod: c.Forecast.RSIPeriod,
				ATRPeriod: c.Forecast.ATRPeriod,
			},
		},
	}
	svc.Candles, err = marketpersist.NewCandleStore(candleCfg)
	if err != nil {
		_ = svc.Engine.Close()
		return nil, err
	}
	return svc, nil
}

// ExportDir is where parquet snapshots and forecast datasets are written.
func (s *ServiceContext) ExportDir() string {
	return s.Config.DataFile(s.Config.Export.Dir)
}

// Close releases the database handle.
func (s *ServiceContext) Close() error {
	if s == nil || s.Engine == nil {
		return nil
	}
	return s.Engine.Close()
}
