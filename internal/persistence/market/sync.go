package marketpersist

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"

	"qtcache/pkg/journal"
	"qtcache/pkg/market"
)

// SyncReport summarises one SyncAll sweep.
type SyncReport struct {
	SweepID     string
	Interval    market.Interval
	StartedAt   time.Time
	FinishedAt  time.Time
	BackupPath  string
	Results     []SyncResult
	Succeeded   int
	Failed      int
	Cancelled   bool
	JournalPath string
}

// Record converts the report into its journal form.
func (r *SyncReport) Record() *journal.SweepRecord {
	rec := &journal.SweepRecord{
		Timestamp:  r.StartedAt,
		SweepID:    r.SweepID,
		Interval:   string(r.Interval),
		BackupPath: r.BackupPath,
		Succeeded:  r.Succeeded,
		Failed:     r.Failed,
		Cancelled:  r.Cancelled,
	}
	if !r.FinishedAt.IsZero() {
		rec.DurationMs = r.FinishedAt.Sub(r.StartedAt).Milliseconds()
	}
	for _, res := range r.Results {
		sym := journal.SymbolRecord{
			Symbol:   res.Symbol,
			Fetched:  res.Fetched,
			Inserted: res.Inserted,
			Updated:  res.Updated,
		}
		if !res.CursorBefore.IsZero() {
			sym.CursorBefore = res.CursorBefore.UnixMilli()
		}
		if !res.CursorAfter.IsZero() {
			sym.CursorAfter = res.CursorAfter.UnixMilli()
		}
		if res.Err != nil {
			sym.Error = res.Err.Error()
		}
		rec.Symbols = append(rec.Symbols, sym)
	}
	return rec
}

// SyncAll syncs every tracked symbol sequentially in sorted order. With
// makeBackup set, a backup runs first and its failure aborts the sweep
// before any symbol is touched. Per-symbol failures are recorded in the
// report and do not stop the sweep.
func (s *CandleStore) SyncAll(ctx context.Context, interval market.Interval, makeBackup bool) (*SyncReport, error) {
	if !interval.Valid() {
		return nil, fmt.Errorf("%w: unsupported interval %q", market.ErrValidation, interval)
	}
	report := &SyncReport{
		SweepID:   uuid.NewString(),
		Interval:  interval,
		StartedAt: s.now(),
	}
	ctx = logx.ContextWithFields(ctx, logx.Field("sweep", report.SweepID))
	logger := logx.WithContext(ctx)

	if makeBackup {
		path, err := s.engine.Backup(ctx, s.backupDir, report.StartedAt)
		if err != nil {
			report.FinishedAt = s.now()
			s.writeJournal(ctx, report, err)
			return report, fmt.Errorf("marketpersist: backup before sync: %w", err)
		}
		report.BackupPath = path
	}

	symbols, err := s.symbols.Symbols(ctx)
	if err != nil {
		if ctx.Err() == nil {
			return report, err
		}
		symbols = nil
		report.Cancelled = true
	}
	for i, symbol := range symbols {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		if i > 0 && s.symbolDelay > 0 {
			if err := sleepContext(ctx, s.symbolDelay); err != nil {
				report.Cancelled = true
				break
			}
		}
		res, err := s.SyncSymbol(ctx, symbol, interval)
		if err != nil {
			res.Err = err
			report.Failed++
			logger.Errorf("marketpersist: sync symbol=%s interval=%s err=%v", symbol, interval, err)
		} else {
			report.Succeeded++
		}
		report.Results = append(report.Results, res)
	}
	report.FinishedAt = s.now()
	logger.Infof("marketpersist: sweep finished interval=%s succeeded=%d failed=%d cancelled=%t",
		interval, report.Succeeded, report.Failed, report.Cancelled)
	s.writeJournal(ctx, report, nil)
	if report.Cancelled {
		return report, ctx.Err()
	}
	return report, nil
}

func (s *CandleStore) writeJournal(ctx context.Context, report *SyncReport, sweepErr error) {
	if s.journal == nil {
		return
	}
	rec := report.Record()
	if sweepErr != nil {
		rec.Error = sweepErr.Error()
	}
	path, err := s.journal.WriteSweep(rec)
	if err != nil {
		logx.WithContext(ctx).Errorf("marketpersist: write sync journal err=%v", err)
		return
	}
	report.JournalPath = path
}
