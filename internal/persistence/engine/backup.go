package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeromicro/go-zero/core/logx"
)

const backupPrefix = "candles_backup_"

// Archive is the portable dump written by Backup for server databases.
type Archive struct {
	CreatedAt time.Time   `msgpack:"created_at"`
	Driver    string      `msgpack:"driver"`
	Symbols   []SymbolRow `msgpack:"symbols"`
	Candles   []CandleRow `msgpack:"candles"`
}

// Backup writes a point-in-time copy of both tables into dir and returns the
// file path. SQLite databases are copied with VACUUM INTO; other drivers get
// a msgpack archive. An existing file is never overwritten.
func (e *Engine) Backup(ctx context.Context, dir string, now time.Time) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", fmt.Errorf("engine: backup dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("engine: create backup dir: %w", err)
	}
	ext := ".msgpack"
	if e.driver == DriverSQLite {
		ext = ".db"
	}
	path, err := nextBackupPath(dir, now, ext)
	if err != nil {
		return "", err
	}

	if e.driver == DriverSQLite {
		stmt := "VACUUM INTO '" + strings.ReplaceAll(path, "'", "''") + "'"
		err = e.retryBusy(ctx, "backup", func() error {
			_, err := e.conn.ExecCtx(ctx, stmt)
			return err
		})
	} else {
		err = e.writeArchive(ctx, path, now)
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("engine: backup to %s: %w", path, err)
	}
	logx.WithContext(ctx).Infof("engine: backup written path=%s", path)
	return path, nil
}

func nextBackupPath(dir string, now time.Time, ext string) (string, error) {
	base := backupPrefix + now.Format("20060102_150405")
	path := filepath.Join(dir, base+ext)
	for n := 1; ; n++ {
		_, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("engine: stat backup path: %w", err)
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, n, ext))
	}
}

func (e *Engine) writeArchive(ctx context.Context, path string, now time.Time) error {
	archive := Archive{CreatedAt: now.UTC(), Driver: e.driver}
	if err := e.conn.QueryRowsCtx(ctx, &archive.Symbols, "SELECT "+SymbolColumns+" FROM symbols ORDER BY symbol"); err != nil {
		return fmt.Errorf("read symbols: %w", err)
	}
	if err := e.conn.QueryRowsCtx(ctx, &archive.Candles, "SELECT "+CandleColumns+" FROM candles ORDER BY symbol, bar_interval, start_ms"); err != nil {
		return fmt.Errorf("read candles: %w", err)
	}
	data, err := msgpack.Marshal(&archive)
	if err != nil {
		return fmt.Errorf("encode archive: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadArchive decodes a msgpack archive produced by Backup.
func ReadArchive(path string) (*Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("engine: read archive: %w", err)
	}
	var archive Archive
	if err := msgpack.Unmarshal(data, &archive); err != nil {
		return nil, fmt.Errorf("engine: decode archive %s: %w", path, err)
	}
	return &archive, nil
}
