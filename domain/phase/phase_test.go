package phase

import (
	"errors"
	"testing"
	"time"
)

func TestCycleOrder(t *testing.T) {
	start := time.Unix(1000, 0)
	g := NewGate(start, time.Minute, nil)

	want := []Phase{DepositWithdrawal, Offer, BidOpening, Matching, DepositWithdrawal}
	for i, p := range want {
		at := start.Add(time.Duration(i) * time.Minute)
		if got := g.At(at); got != p {
			t.Errorf("phase at +%dm = %v, want %v", i, got, p)
		}
	}
}

func TestWindowBoundaries(t *testing.T) {
	start := time.Unix(0, 0)
	g := NewGate(start, time.Minute, nil)

	if got := g.At(start.Add(59 * time.Second)); got != DepositWithdrawal {
		t.Errorf("just before boundary: %v", got)
	}
	if got := g.At(start.Add(60 * time.Second)); got != Offer {
		t.Errorf("at boundary: %v", got)
	}
}

func TestLazyRecomputation(t *testing.T) {
	start := time.Unix(0, 0)
	now := start
	g := NewGate(start, time.Minute, func() time.Time { return now })

	if g.Current() != DepositWithdrawal {
		t.Fatal("phase at start")
	}
	// Nothing happens while time passes; the transition is only
	// observed at the next call.
	now = start.Add(3 * time.Minute)
	if g.Current() != Matching {
		t.Errorf("phase after jump = %v, want Matching", g.Current())
	}
}

func TestRequire(t *testing.T) {
	start := time.Unix(0, 0)
	now := start.Add(time.Minute) // Offer
	g := NewGate(start, time.Minute, func() time.Time { return now })

	if err := g.Require(Offer); err != nil {
		t.Errorf("allowed phase rejected: %v", err)
	}
	if err := g.Require(Offer, Matching); err != nil {
		t.Errorf("allowed set rejected: %v", err)
	}
	err := g.Require(Matching)
	if !errors.Is(err, ErrWrongPhase) {
		t.Errorf("wrong phase: got %v", err)
	}
}

func TestBeforeCreationClampsToFirstPhase(t *testing.T) {
	start := time.Unix(1000, 0)
	g := NewGate(start, time.Minute, nil)
	if got := g.At(start.Add(-time.Hour)); got != DepositWithdrawal {
		t.Errorf("pre-creation phase = %v", got)
	}
}
