package market

import (
	"fmt"
	"strings"
	"time"
)

// Interval is a candle granularity as named by the Questrade API.
type Interval string

const (
	OneMinute      Interval = "OneMinute"
	TwoMinutes     Interval = "TwoMinutes"
	ThreeMinutes   Interval = "ThreeMinutes"
	FourMinutes    Interval = "FourMinutes"
	FiveMinutes    Interval = "FiveMinutes"
	TenMinutes     Interval = "TenMinutes"
	FifteenMinutes Interval = "FifteenMinutes"
	TwentyMinutes  Interval = "TwentyMinutes"
	HalfHour       Interval = "HalfHour"
	OneHour        Interval = "OneHour"
	TwoHours       Interval = "TwoHours"
	FourHours      Interval = "FourHours"
	OneDay         Interval = "OneDay"
	OneWeek        Interval = "OneWeek"
	OneMonth       Interval = "OneMonth"
	OneYear        Interval = "OneYear"
)

// Month and year use nominal lengths; they only order intervals and size
// request windows.
var intervalDurations = map[Interval]time.Duration{
	OneMinute:      time.Minute,
	TwoMinutes:     2 * time.Minute,
	ThreeMinutes:   3 * time.Minute,
	FourMinutes:    4 * time.Minute,
	FiveMinutes:    5 * time.Minute,
	TenMinutes:     10 * time.Minute,
	FifteenMinutes: 15 * time.Minute,
	TwentyMinutes:  20 * time.Minute,
	HalfHour:       30 * time.Minute,
	OneHour:        time.Hour,
	TwoHours:       2 * time.Hour,
	FourHours:      4 * time.Hour,
	OneDay:         24 * time.Hour,
	OneWeek:        7 * 24 * time.Hour,
	OneMonth:       30 * 24 * time.Hour,
	OneYear:        365 * 24 * time.Hour,
}

// ParseInterval accepts interval names case-insensitively.
func ParseInterval(raw string) (Interval, error) {
	trimmed := strings.TrimSpace(raw)
	for iv := range intervalDurations {
		if strings.EqualFold(string(iv), trimmed) {
			return iv, nil
		}
	}
	return "", fmt.Errorf("%w: unsupported interval %q", ErrValidation, raw)
}

// Valid reports whether the interval is one of the known names.
func (i Interval) Valid() bool {
	_, ok := intervalDurations[i]
	return ok
}

// Duration returns the nominal bar length, or zero for unknown intervals.
func (i Interval) Duration() time.Duration {
	return intervalDurations[i]
}

// Finer reports whether i is a strictly finer granularity than other.
func (i Interval) Finer(other Interval) bool {
	if !i.Valid() {
		return false
	}
	if !other.Valid() {
		return true
	}
	return i.Duration() < other.Duration()
}

func (i Interval) String() string {
	return string(i)
}
