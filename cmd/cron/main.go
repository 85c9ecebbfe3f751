package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"qtcache/internal/cli"
	"qtcache/internal/config"
	"qtcache/internal/svc"
)

const shutdownTimeout = 30 * time.Second // Grace period for an in-flight sweep

func main() {
	configPath := flag.String("f", "etc/qtcache.yaml", "the config file")
	runNow := flag.Bool("now", false, "run one sweep immediately on startup")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("[main] Starting sync scheduler...")

	appCfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[main] Failed to load config %s: %v", *configPath, err)
	}

	log.Printf("[main] Configuration loaded:")
	for _, line := range cli.ConfigSummaryLines(appCfg) {
		log.Printf("  - %s", line)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, *appCfg)
	if err != nil {
		log.Fatalf("[main] Failed to build service context: %v", err)
	}
	defer func() { _ = sc.Close() }()

	interval := appCfg.SyncInterval()
	backup := appCfg.Sync.Backup

	// sweeps never overlap; a tick that fires mid-sweep is skipped
	var running sync.Mutex
	var wg sync.WaitGroup
	sweep := func() {
		if !running.TryLock() {
			log.Println("[sync] [WARN] previous sweep still running, skipping tick")
			return
		}
		wg.Add(1)
		defer wg.Done()
		defer running.Unlock()

		start := time.Now()
		report, err := sc.Candles.SyncAll(ctx, interval, backup)
		elapsed := time.Since(start)
		if err != nil {
			log.Printf("[sync] [ERROR] %v, took %dms", err, elapsed.Milliseconds())
			return
		}
		log.Printf("[sync] [OK] sweep=%s interval=%s succeeded=%d failed=%d, took %dms",
			report.SweepID, report.Interval, report.Succeeded, report.Failed, elapsed.Milliseconds())
		if report.BackupPath != "" {
			log.Printf("  - Backup: %s", report.BackupPath)
		}
		if report.JournalPath != "" {
			log.Printf("  - Journal: %s", report.JournalPath)
		}
		for _, res := range report.Results {
			if res.Err != nil {
				log.Printf("  - %s: %v", res.Symbol, res.Err)
			}
		}
	}

	scheduler := cron.New(cron.WithParser(config.ScheduleParser))
	if _, err := scheduler.AddFunc(appCfg.Sync.Schedule, sweep); err != nil {
		log.Fatalf("[main] Invalid sync schedule %q: %v", appCfg.Sync.Schedule, err)
	}
	scheduler.Start()
	log.Printf("[main] Sync scheduled at %q (interval=%s, backup=%t). Press Ctrl+C to stop.",
		appCfg.Sync.Schedule, interval, backup)

	if *runNow {
		go sweep()
	}

	<-ctx.Done()
	log.Println("[main] Shutdown signal received, stopping scheduler...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		<-scheduler.Stop().Done()
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[main] All sweeps stopped cleanly")
	case <-shutdownCtx.Done():
		log.Println("[main] Shutdown timeout exceeded, forcing exit")
	}

	log.Println("[main] Sync scheduler stopped")
}
