// Package calendar maps wall-clock time onto the canonical trading week used
// by policy issuance and gap settlement. A week has five close→open gaps,
// one per trading day; all offsets are fixed relative to the reference epoch.
package calendar

import (
	"errors"
	"fmt"
	"time"
)

// Epoch is the start of week 0: Monday 2024-01-01 00:00:00 UTC.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

const (
	// WeekDuration is the length of one canonical week.
	WeekDuration = 7 * 24 * time.Hour

	// TradingDays is the number of close→open gaps per week (day index 0..4).
	TradingDays = 5

	// closeOffset is the market close within a trading day: 21:00 UTC
	// (16:00 New York standard time).
	closeOffset = 21 * time.Hour

	// openOffset is the market open within a trading day: 14:30 UTC
	// (09:30 New York standard time).
	openOffset = 14*time.Hour + 30*time.Minute
)

var (
	ErrOutOfRange = errors.New("calendar: time precedes reference epoch")
	ErrInvalidDay = errors.New("calendar: day index out of range")
)

// WeekNumber returns the canonical week containing t.
// Fails for any t before the reference epoch.
func WeekNumber(t time.Time) (int64, error) {
	if t.Before(Epoch) {
		return 0, fmt.Errorf("%w: %s", ErrOutOfRange, t.UTC().Format(time.RFC3339))
	}
	return int64(t.Sub(Epoch) / WeekDuration), nil
}

// WeekStart returns the start of the given canonical week.
func WeekStart(week int64) time.Time {
	return Epoch.Add(time.Duration(week) * WeekDuration)
}

// MarketClose returns the close timestamp for (week, day), day in [0,4].
func MarketClose(week int64, day int) (time.Time, error) {
	if day < 0 || day >= TradingDays {
		return time.Time{}, fmt.Errorf("%w: %d", ErrInvalidDay, day)
	}
	return WeekStart(week).Add(time.Duration(day)*24*time.Hour + closeOffset), nil
}

// NextMarketOpen returns the first open following MarketClose(week, day).
// Day 4 closes on Friday; its next open is the following week's day-0 open,
// skipping the weekend.
func NextMarketOpen(week int64, day int) (time.Time, error) {
	if day < 0 || day >= TradingDays {
		return time.Time{}, fmt.Errorf("%w: %d", ErrInvalidDay, day)
	}
	if day == TradingDays-1 {
		return WeekStart(week + 1).Add(openOffset), nil
	}
	return WeekStart(week).Add(time.Duration(day+1)*24*time.Hour + openOffset), nil
}
