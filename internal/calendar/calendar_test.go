package calendar_test

import (
	"GapLedger/internal/calendar"
	"errors"
	"testing"
	"time"
)

func TestWeekNumber_AtEpoch(t *testing.T) {
	week, err := calendar.WeekNumber(calendar.Epoch)
	if err != nil {
		t.Fatalf("WeekNumber(Epoch): %v", err)
	}
	if week != 0 {
		t.Errorf("got week %d, want 0", week)
	}
}

func TestWeekNumber_BeforeEpochFails(t *testing.T) {
	_, err := calendar.WeekNumber(calendar.Epoch.Add(-time.Second))
	if !errors.Is(err, calendar.ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}

func TestWeekNumber_Boundaries(t *testing.T) {
	// Last instant of week 0
	week, err := calendar.WeekNumber(calendar.Epoch.Add(calendar.WeekDuration - time.Nanosecond))
	if err != nil {
		t.Fatal(err)
	}
	if week != 0 {
		t.Errorf("end of week 0: got %d, want 0", week)
	}

	// First instant of week 1
	week, err = calendar.WeekNumber(calendar.Epoch.Add(calendar.WeekDuration))
	if err != nil {
		t.Fatal(err)
	}
	if week != 1 {
		t.Errorf("start of week 1: got %d, want 1", week)
	}
}

func TestMarketClose_InvalidDay(t *testing.T) {
	for _, day := range []int{-1, 5, 6} {
		if _, err := calendar.MarketClose(0, day); !errors.Is(err, calendar.ErrInvalidDay) {
			t.Errorf("day %d: expected ErrInvalidDay, got %v", day, err)
		}
		if _, err := calendar.NextMarketOpen(0, day); !errors.Is(err, calendar.ErrInvalidDay) {
			t.Errorf("day %d: expected ErrInvalidDay, got %v", day, err)
		}
	}
}

func TestNextOpenAlwaysAfterClose(t *testing.T) {
	for week := int64(0); week < 3; week++ {
		for day := 0; day < calendar.TradingDays; day++ {
			closeAt, err := calendar.MarketClose(week, day)
			if err != nil {
				t.Fatal(err)
			}
			openAt, err := calendar.NextMarketOpen(week, day)
			if err != nil {
				t.Fatal(err)
			}
			if !openAt.After(closeAt) {
				t.Errorf("week %d day %d: open %s not after close %s", week, day, openAt, closeAt)
			}
		}
	}
}

func TestDay4_OpensNextWeek(t *testing.T) {
	openAt, err := calendar.NextMarketOpen(0, 4)
	if err != nil {
		t.Fatal(err)
	}

	// Friday close rolls over the weekend to Monday of week 1.
	want := calendar.WeekStart(1).Add(14*time.Hour + 30*time.Minute)
	if !openAt.Equal(want) {
		t.Errorf("day-4 next open: got %s, want %s", openAt, want)
	}
	if openAt.Weekday() != time.Monday {
		t.Errorf("day-4 next open weekday: got %s, want Monday", openAt.Weekday())
	}
}

func TestMarketClose_Day0(t *testing.T) {
	closeAt, err := calendar.MarketClose(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2024, time.January, 1, 21, 0, 0, 0, time.UTC)
	if !closeAt.Equal(want) {
		t.Errorf("got %s, want %s", closeAt, want)
	}
}
