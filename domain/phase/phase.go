package phase

import (
	"errors"
	"fmt"
	"time"
)

var ErrWrongPhase = errors.New("phase: operation not permitted in current phase")

// Phase is one of four recurring time windows. Each window admits a
// different slice of the exchange's operations.
type Phase uint8

const (
	DepositWithdrawal Phase = iota
	Offer
	BidOpening
	Matching

	count = 4
)

func (p Phase) String() string {
	switch p {
	case DepositWithdrawal:
		return "DEPOSIT_WITHDRAWAL"
	case Offer:
		return "OFFER"
	case BidOpening:
		return "BID_OPENING"
	case Matching:
		return "MATCHING"
	default:
		return "UNKNOWN"
	}
}

// Gate derives the current phase from elapsed wall-clock time.
//
// There is no timer. Transitions are only observed when a call asks;
// a phase window in which nothing calls contributes no activity.
type Gate struct {
	created time.Time
	unit    time.Duration
	now     func() time.Time
}

// NewGate anchors the cycle at created, with each phase lasting one
// unit. now may be nil, defaulting to time.Now (injectable for tests).
func NewGate(created time.Time, unit time.Duration, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	if unit <= 0 {
		unit = time.Minute
	}
	return &Gate{created: created, unit: unit, now: now}
}

// At is the pure phase function: which phase is active at t.
func (g *Gate) At(t time.Time) Phase {
	elapsed := t.Sub(g.created)
	if elapsed < 0 {
		elapsed = 0
	}
	return Phase((elapsed / g.unit) % count)
}

// Current recomputes the phase lazily from the clock.
func (g *Gate) Current() Phase {
	return g.At(g.now())
}

// Require fails unless the current phase is one of the allowed set.
func (g *Gate) Require(allowed ...Phase) error {
	cur := g.Current()
	for _, p := range allowed {
		if cur == p {
			return nil
		}
	}
	return fmt.Errorf("%w: in %s", ErrWrongPhase, cur)
}
