package marketpersist

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/text/encoding/charmap"

	"qtcache/pkg/market"
)

const (
	symbolColumn  = "Symbol"
	maxTickerSize = 20
)

// ImportFromSource reads a delimited table with a Symbol column and loads
// every listed ticker with PreferCache. Bad rows and failed lookups are
// logged and skipped; the result counts successful rows.
func (s *SymbolStore) ImportFromSource(ctx context.Context, r io.Reader) (int, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("marketpersist: read import source: %w", err)
	}
	text, err := decodeText(raw)
	if err != nil {
		return 0, err
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = sniffDelimiter(text)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("%w: import source is empty", market.ErrValidation)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: import header: %v", market.ErrValidation, err)
	}
	col := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), symbolColumn) {
			col = i
			break
		}
	}
	if col < 0 {
		return 0, fmt.Errorf("%w: import source has no %s column", market.ErrValidation, symbolColumn)
	}

	logger := logx.WithContext(ctx)
	imported := 0
	attempted := 0
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return imported, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Errorf("marketpersist: import line=%d err=%v", line, fmt.Errorf("%w: %v", market.ErrValidation, err))
			continue
		}
		if col >= len(record) {
			logger.Errorf("marketpersist: import line=%d err=%v", line, fmt.Errorf("%w: missing symbol field", market.ErrValidation))
			continue
		}
		symbol := market.NormalizeSymbol(record[col])
		if !validTicker(symbol) {
			logger.Errorf("marketpersist: import line=%d symbol=%q err=%v", line, record[col], fmt.Errorf("%w: malformed symbol", market.ErrValidation))
			continue
		}
		if attempted > 0 && s.rateLimit > 0 {
			if err := sleepContext(ctx, s.rateLimit); err != nil {
				return imported, err
			}
		}
		attempted++
		if _, err := s.Get(ctx, symbol, PreferCache); err != nil {
			logger.Errorf("marketpersist: import symbol=%s err=%v", symbol, err)
			continue
		}
		imported++
	}
	logger.Infof("marketpersist: import finished imported=%d attempted=%d", imported, attempted)
	return imported, nil
}

// decodeText returns UTF-8 input as is and treats anything else as
// Windows-1252, which also covers Latin-1 exports.
func decodeText(raw []byte) (string, error) {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("%w: decode import source: %v", market.ErrValidation, err)
	}
	return string(decoded), nil
}

func sniffDelimiter(text string) rune {
	header := text
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		header = text[:i]
	}
	if strings.Contains(header, ";") {
		return ';'
	}
	return ','
}

func validTicker(symbol string) bool {
	if symbol == "" || len(symbol) > maxTickerSize {
		return false
	}
	for _, r := range symbol {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
		default:
			return false
		}
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
