package state

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestVolatilityTimelockLifecycle(t *testing.T) {
	g := NewGovernance(uuid.New(), uuid.New())
	now := time.Date(2025, 4, 7, 10, 0, 0, 0, time.UTC)

	if err := g.QueueVolatility(12_000, now, "earnings season"); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if err := g.QueueVolatility(11_000, now, "second"); !errors.Is(err, ErrChangeAlreadyQueued) {
		t.Fatalf("err = %v, want ErrChangeAlreadyQueued", err)
	}

	// Value is inert until executed.
	if g.VolatilityBp() != DefaultSplitRatioBp {
		t.Fatalf("volatility changed before execution: %d", g.VolatilityBp())
	}
	if _, err := g.ExecuteVolatility(now.Add(VolatilityTimelock - time.Second)); !errors.Is(err, ErrTimelockNotElapsed) {
		t.Fatalf("err = %v, want ErrTimelockNotElapsed", err)
	}

	v, err := g.ExecuteVolatility(now.Add(VolatilityTimelock))
	if err != nil {
		t.Fatalf("execute at exact boundary: %v", err)
	}
	if v != 12_000 || g.VolatilityBp() != 12_000 {
		t.Fatalf("volatility = %d, want 12000", g.VolatilityBp())
	}
	if _, err := g.ExecuteVolatility(now.Add(48 * time.Hour)); !errors.Is(err, ErrNoPendingChange) {
		t.Fatalf("second execute err = %v, want ErrNoPendingChange", err)
	}
}

func TestVolatilityBounds(t *testing.T) {
	g := NewGovernance(uuid.New(), uuid.New())
	now := time.Now().UTC()

	for _, bp := range []int64{999, 15_001, 0, -100} {
		if err := g.QueueVolatility(bp, now, ""); !errors.Is(err, ErrVolatilityBounds) {
			t.Fatalf("bp %d: err = %v, want ErrVolatilityBounds", bp, err)
		}
	}
	for _, bp := range []int64{MinVolatilityBp, MaxVolatilityBp} {
		if err := g.QueueVolatility(bp, now, ""); err != nil {
			t.Fatalf("boundary bp %d rejected: %v", bp, err)
		}
		if err := g.CancelVolatility(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCancelVolatility(t *testing.T) {
	g := NewGovernance(uuid.New(), uuid.New())
	now := time.Now().UTC()

	if err := g.CancelVolatility(); !errors.Is(err, ErrNoPendingChange) {
		t.Fatalf("err = %v, want ErrNoPendingChange", err)
	}
	if err := g.QueueVolatility(13_000, now, ""); err != nil {
		t.Fatal(err)
	}
	if err := g.CancelVolatility(); err != nil {
		t.Fatal(err)
	}
	if g.Pending() != nil {
		t.Fatal("pending change survived cancellation")
	}
	if _, err := g.ExecuteVolatility(now.Add(72 * time.Hour)); !errors.Is(err, ErrNoPendingChange) {
		t.Fatal("cancelled change was executable")
	}
}

func TestApproveWeekOnce(t *testing.T) {
	g := NewGovernance(uuid.New(), uuid.New())
	now := time.Now().UTC()

	if err := g.ApproveWeek(42, 20_000, now, "2:1 split"); err != nil {
		t.Fatal(err)
	}
	if err := g.ApproveWeek(42, 10_000, now, "redo"); !errors.Is(err, ErrWeekAlreadyApproved) {
		t.Fatalf("err = %v, want ErrWeekAlreadyApproved", err)
	}
	a, ok := g.WeekApproval(42)
	if !ok || a.SplitRatioBp != 20_000 {
		t.Fatalf("approval = %+v", a)
	}
	if err := g.ApproveWeek(43, 0, now, ""); !errors.Is(err, ErrInvalidSplitRatio) {
		t.Fatalf("err = %v, want ErrInvalidSplitRatio", err)
	}
	if err := g.ApproveWeek(43, MaxSplitRatioBp+1, now, ""); !errors.Is(err, ErrInvalidSplitRatio) {
		t.Fatalf("err = %v, want ErrInvalidSplitRatio", err)
	}
}

func TestEffectiveApprovalFailsafe(t *testing.T) {
	g := NewGovernance(uuid.New(), uuid.New())
	close := time.Date(2025, 5, 9, 21, 0, 0, 0, time.UTC)

	// Before approval and before the failsafe window: not settleable.
	if _, ok, _ := g.EffectiveApproval(7, close, close.Add(time.Hour)); ok {
		t.Fatal("settleable without approval inside failsafe window")
	}
	// One second short of 48h: still blocked.
	if _, ok, _ := g.EffectiveApproval(7, close, close.Add(FailsafeDelay-time.Second)); ok {
		t.Fatal("failsafe fired early")
	}
	// At 48h exactly: failsafe at the default 1.0x ratio.
	ratio, ok, failsafe := g.EffectiveApproval(7, close, close.Add(FailsafeDelay))
	if !ok || !failsafe || ratio != DefaultSplitRatioBp {
		t.Fatalf("failsafe path: ratio %d ok %v failsafe %v", ratio, ok, failsafe)
	}

	// Explicit approval wins and is never reported as failsafe, even late.
	if err := g.ApproveWeek(7, 30_000, close.Add(time.Hour), "3:1 split"); err != nil {
		t.Fatal(err)
	}
	ratio, ok, failsafe = g.EffectiveApproval(7, close, close.Add(100*time.Hour))
	if !ok || failsafe || ratio != 30_000 {
		t.Fatalf("explicit path: ratio %d ok %v failsafe %v", ratio, ok, failsafe)
	}
}

func TestApproverAndTreasury(t *testing.T) {
	approver := uuid.New()
	g := NewGovernance(approver, uuid.New())

	if err := g.CheckApprover(uuid.New()); !errors.Is(err, ErrNotApprover) {
		t.Fatalf("err = %v, want ErrNotApprover", err)
	}
	if err := g.CheckApprover(approver); err != nil {
		t.Fatalf("approver rejected: %v", err)
	}

	if err := g.SetTreasury(uuid.Nil); !errors.Is(err, ErrZeroTreasury) {
		t.Fatalf("err = %v, want ErrZeroTreasury", err)
	}
	next := uuid.New()
	if err := g.SetTreasury(next); err != nil {
		t.Fatal(err)
	}
	if g.Treasury() != next {
		t.Fatal("treasury not updated")
	}
}

func TestPauseToggle(t *testing.T) {
	g := NewGovernance(uuid.New(), uuid.New())
	if g.Paused() {
		t.Fatal("new governance starts paused")
	}
	g.Pause()
	if !g.Paused() {
		t.Fatal("pause did not take")
	}
	g.Unpause()
	if g.Paused() {
		t.Fatal("unpause did not take")
	}
}

func TestGovernanceSnapshotRoundTrip(t *testing.T) {
	approver, treasury := uuid.New(), uuid.New()
	g := NewGovernance(approver, treasury)
	now := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)

	if err := g.QueueVolatility(14_000, now, "vol spike"); err != nil {
		t.Fatal(err)
	}
	if err := g.ApproveWeek(80, 20_000, now, "2:1"); err != nil {
		t.Fatal(err)
	}
	g.Pause()

	r := RestoreGovernance(g.Snapshot())
	if r.Treasury() != treasury || !r.Paused() || r.VolatilityBp() != g.VolatilityBp() {
		t.Fatal("restored scalar state differs")
	}
	if err := r.CheckApprover(approver); err != nil {
		t.Fatal("restored approver differs")
	}
	if r.Pending() == nil || r.Pending().ValueBp != 14_000 {
		t.Fatal("restored pending change differs")
	}
	if a, ok := r.WeekApproval(80); !ok || a.SplitRatioBp != 20_000 {
		t.Fatal("restored approval differs")
	}
}
