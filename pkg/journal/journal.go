package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SweepRecord captures one sync sweep across the tracked symbols for audit.
type SweepRecord struct {
	Timestamp  time.Time      `json:"timestamp"`
	SweepID    string         `json:"sweep_id"`
	Sequence   int            `json:"sequence"`
	Interval   string         `json:"interval"`
	BackupPath string         `json:"backup_path,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	Symbols    []SymbolRecord `json:"symbols,omitempty"`
	Cancelled  bool           `json:"cancelled,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// SymbolRecord is the outcome for one symbol within a sweep.
type SymbolRecord struct {
	Symbol       string `json:"symbol"`
	Fetched      int    `json:"fetched"`
	Inserted     int    `json:"inserted"`
	Updated      int    `json:"updated"`
	CursorBefore int64  `json:"cursor_before_ms,omitempty"`
	CursorAfter  int64  `json:"cursor_after_ms,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Writer persists sweep records to a directory as JSON files (journal style).
type Writer struct {
	mu    sync.Mutex
	dir   string
	seq   int
	nowFn func() time.Time
}

// NewWriter constructs a journal writer.
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = "journal"
	}
	_ = os.MkdirAll(dir, 0o755)
	return &Writer{dir: dir, nowFn: time.Now}
}

// Dir returns the directory records are written to.
func (w *Writer) Dir() string {
	return w.dir
}

// WriteSweep writes a sweep record to a timestamped JSON file.
func (w *Writer) WriteSweep(rec *SweepRecord) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("journal: nil record")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = w.nowFn()
	}
	w.seq++
	rec.Sequence = w.seq
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("journal: create dir: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}
	path, f, err := createSweepFile(w.dir, rec.Timestamp, w.seq)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("journal: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("journal: close %s: %w", path, err)
	}
	return path, nil
}

// createSweepFile exclusively creates the record file. Another writer (or
// process) that already holds the name pushes this one to a _<n> suffix.
func createSweepFile(dir string, ts time.Time, seq int) (string, *os.File, error) {
	base := fmt.Sprintf("sync_%s_%05d", ts.UTC().Format("20060102_150405"), seq)
	path := filepath.Join(dir, base+".json")
	for n := 1; ; n++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return path, f, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", nil, fmt.Errorf("journal: create %s: %w", path, err)
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d.json", base, n))
	}
}

// ReadSweep loads a record written by WriteSweep.
func ReadSweep(path string) (*SweepRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec SweepRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("journal: decode %s: %w", path, err)
	}
	return &rec, nil
}
