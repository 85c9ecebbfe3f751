package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "db", "candles.db")
	e, err := Open(context.Background(), Config{Driver: DriverSQLite, DSN: dsn, BusyDelay: time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	require.NoError(t, e.Initialize(context.Background()))
	return e
}

func seedRows(t *testing.T, e *Engine) {
	t.Helper()
	err := e.Transact(context.Background(), func(ctx context.Context, session sqlx.Session) error {
		if _, err := session.ExecCtx(ctx, e.Rebind("INSERT INTO symbols ("+SymbolColumns+") VALUES (?, ?, ?, ?)"), "AAPL", 8049, `{"symbol":"AAPL"}`, 1_700_000_000_000); err != nil {
			return err
		}
		stmt := e.Rebind("INSERT INTO candles (" + CandleColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		if _, err := session.ExecCtx(ctx, stmt, "AAPL", "OneDay", 1_700_000_000_000, 1_700_086_400_000, 1.0, 2.0, 0.5, 1.5, 100.0, 1.25); err != nil {
			return err
		}
		_, err := session.ExecCtx(ctx, stmt, "AAPL", "OneDay", 1_700_086_400_000, 1_700_172_800_000, 1.5, 2.5, 1.0, 2.0, 0.0, nil)
		return err
	})
	require.NoError(t, err)
}

func TestOpenInitializeIdempotent(t *testing.T) {
	e := openTestEngine(t)
	require.Equal(t, DriverSQLite, e.Driver())
	require.NoError(t, e.Initialize(context.Background()))
	seedRows(t, e)

	var count int64
	require.NoError(t, e.Conn().QueryRowCtx(context.Background(), &count, "SELECT COUNT(*) FROM candles"))
	require.Equal(t, int64(2), count)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle", DSN: "x"})
	require.Error(t, err)
	_, err = Open(context.Background(), Config{Driver: DriverSQLite})
	require.Error(t, err)
}

func TestSQLiteDSN(t *testing.T) {
	dir := t.TempDir()
	dsn, err := sqliteDSN(filepath.Join(dir, "a", "b.db"))
	require.NoError(t, err)
	require.Contains(t, dsn, "_pragma=busy_timeout(5000)")
	require.Contains(t, dsn, "journal_mode(WAL)")
	_, err = os.Stat(filepath.Join(dir, "a"))
	require.NoError(t, err)

	dsn, err = sqliteDSN("file:" + filepath.Join(dir, "c.db") + "?cache=shared")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(dsn, "&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"))

	dsn, err = sqliteDSN(":memory:")
	require.NoError(t, err)
	require.Equal(t, ":memory:", dsn)
}

func TestRebindAndGreatest(t *testing.T) {
	pg := &Engine{driver: DriverPgx}
	require.Equal(t, "a = $1 AND b = '?' AND c = $2", pg.Rebind("a = ? AND b = '?' AND c = ?"))
	require.Equal(t, "GREATEST(x, y)", pg.Greatest("x", "y"))

	lite := &Engine{driver: DriverSQLite}
	require.Equal(t, "a = ?", lite.Rebind("a = ?"))
	require.Equal(t, "MAX(x, y)", lite.Greatest("x", "y"))
}

func TestIsBusy(t *testing.T) {
	require.True(t, IsBusy(fmt.Errorf("wrapped: %w", &pq.Error{Code: "40001"})))
	require.True(t, IsBusy(&pgconn.PgError{Code: "40P01"}))
	require.True(t, IsBusy(&pgconn.PgError{Code: "55P03"}))
	require.False(t, IsBusy(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsBusy(errors.New("disk full")))
	require.False(t, IsBusy(nil))
}

func TestRetryBusy(t *testing.T) {
	e := &Engine{busyRetries: 3, busyDelay: time.Millisecond}
	calls := 0
	err := e.retryBusy(context.Background(), "test", func() error {
		calls++
		if calls < 3 {
			return &pq.Error{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)

	calls = 0
	err = e.retryBusy(context.Background(), "test", func() error {
		calls++
		return &pq.Error{Code: "40001"}
	})
	require.Error(t, err)
	require.Equal(t, 4, calls)

	calls = 0
	err = e.retryBusy(context.Background(), "test", func() error {
		calls++
		return errors.New("syntax error")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestBackupSQLite(t *testing.T) {
	e := openTestEngine(t)
	seedRows(t, e)
	dir := filepath.Join(t.TempDir(), "backups")
	now := time.Date(2024, 3, 4, 16, 5, 9, 0, time.UTC)

	first, err := e.Backup(context.Background(), dir, now)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "candles_backup_20240304_160509.db"), first)

	second, err := e.Backup(context.Background(), dir, now)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "candles_backup_20240304_160509_1.db"), second)

	copyEngine, err := Open(context.Background(), Config{Driver: DriverSQLite, DSN: first})
	require.NoError(t, err)
	defer copyEngine.Close()
	var count int64
	require.NoError(t, copyEngine.Conn().QueryRowCtx(context.Background(), &count, "SELECT COUNT(*) FROM candles"))
	require.Equal(t, int64(2), count)
}

func TestBackupUnwritableDir(t *testing.T) {
	e := openTestEngine(t)
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := e.Backup(context.Background(), filepath.Join(blocker, "backups"), time.Now())
	require.Error(t, err)
}

func TestArchiveRoundTrip(t *testing.T) {
	e := openTestEngine(t)
	seedRows(t, e)
	path := filepath.Join(t.TempDir(), "dump.msgpack")
	now := time.Date(2024, 3, 4, 16, 5, 9, 0, time.UTC)

	require.NoError(t, e.writeArchive(context.Background(), path, now))
	archive, err := ReadArchive(path)
	require.NoError(t, err)
	require.True(t, archive.CreatedAt.Equal(now))
	require.Equal(t, DriverSQLite, archive.Driver)
	require.Len(t, archive.Symbols, 1)
	require.Equal(t, int64(8049), archive.Symbols[0].SymbolID)
	require.Len(t, archive.Candles, 2)
	require.True(t, archive.Candles[0].VWAP.Valid)
	require.InDelta(t, 1.25, archive.Candles[0].VWAP.Float64, 1e-9)
	require.False(t, archive.Candles[1].VWAP.Valid)
}
