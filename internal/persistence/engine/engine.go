package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"
)

const (
	defaultBusyRetries = 5
	defaultBusyDelay   = time.Second
	sqliteBusyTimeout  = 5000
)

// Postgres SQLSTATEs treated as lock contention: serialization_failure,
// deadlock_detected, lock_not_available.
var busyPgCodes = map[string]bool{
	"40001": true,
	"40P01": true,
	"55P03": true,
}

// Config selects and tunes the backing database.
type Config struct {
	Driver      string
	DSN         string
	MaxOpen     int
	MaxIdle     int
	BusyRetries int
	BusyDelay   time.Duration
}

// Engine owns the database handle shared by the symbol and candle stores.
type Engine struct {
	driver      string
	db          *sql.DB
	conn        sqlx.SqlConn
	busyRetries int
	busyDelay   time.Duration

	closeOnce sync.Once
	closeErr  error
}

// Open connects to the configured database and waits out lock contention
// before giving up.
func Open(ctx context.Context, cfg Config) (*Engine, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverSQLite
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("engine: dsn is required")
	}
	switch driver {
	case DriverSQLite:
		var err error
		if dsn, err = sqliteDSN(dsn); err != nil {
			return nil, err
		}
	case DriverPgx, DriverPostgres:
	default:
		return nil, fmt.Errorf("engine: unsupported driver %q", cfg.Driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("engine: open %s: %w", driver, err)
	}
	if cfg.MaxOpen > 0 {
		db.SetMaxOpenConns(cfg.MaxOpen)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}

	e := &Engine{
		driver:      driver,
		db:          db,
		conn:        sqlx.NewSqlConnFromDB(db),
		busyRetries: cfg.BusyRetries,
		busyDelay:   cfg.BusyDelay,
	}
	if e.busyRetries <= 0 {
		e.busyRetries = defaultBusyRetries
	}
	if e.busyDelay <= 0 {
		e.busyDelay = defaultBusyDelay
	}

	if err := e.retryBusy(ctx, "ping", func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("engine: connect %s: %w", driver, err)
	}
	return e, nil
}

// sqliteDSN creates the parent directory of a file database and enables
// WAL plus a busy timeout unless the caller already set pragmas.
func sqliteDSN(dsn string) (string, error) {
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return dsn, nil
	}
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("engine: create database dir: %w", err)
		}
	}
	if strings.Contains(dsn, "_pragma=") {
		return dsn, nil
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(" + strconv.Itoa(sqliteBusyTimeout) + ")&_pragma=journal_mode(WAL)", nil
}

// Driver reports the driver name the engine was opened with.
func (e *Engine) Driver() string {
	return e.driver
}

// Conn exposes the go-zero connection for read queries.
func (e *Engine) Conn() sqlx.SqlConn {
	return e.conn
}

// Close releases the handle. Later calls return the first result.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	e.closeOnce.Do(func() {
		e.closeErr = e.db.Close()
	})
	return e.closeErr
}

// Transact runs fn inside one transaction, retrying the whole unit when the
// database reports lock contention.
func (e *Engine) Transact(ctx context.Context, fn func(ctx context.Context, session sqlx.Session) error) error {
	return e.retryBusy(ctx, "transaction", func() error {
		return e.conn.TransactCtx(ctx, fn)
	})
}

func (e *Engine) retryBusy(ctx context.Context, op string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !IsBusy(err) || attempt >= e.busyRetries {
			return err
		}
		logx.WithContext(ctx).Infof("engine: %s hit a locked database, retrying in %s (attempt %d/%d)", op, e.busyDelay, attempt+1, e.busyRetries)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.busyDelay):
		}
	}
}

// IsBusy reports whether err is transient lock contention in any of the
// supported drivers.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return busyPgCodes[pgErr.Code]
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return busyPgCodes[string(pqErr.Code)]
	}
	return false
}

// Rebind rewrites ? placeholders into $n for the Postgres drivers. Quoted
// literals are left alone.
func (e *Engine) Rebind(query string) string {
	if e.driver == DriverSQLite || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			inQuote = !inQuote
			b.WriteByte(ch)
		case ch == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// Greatest renders the two-argument maximum for the active dialect.
func (e *Engine) Greatest(a, b string) string {
	if e.driver == DriverSQLite {
		return "MAX(" + a + ", " + b + ")"
	}
	return "GREATEST(" + a + ", " + b + ")"
}
