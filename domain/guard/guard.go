package guard

import (
	"errors"
	"fmt"
)

var ErrHeld = errors.New("guard: structure is locked by an in-flight operation")

// Class names the structure (or structures) a multi-step mutation
// touches. Global covers account, sell and buy state at once, which
// is what the matching pass needs.
type Class uint8

const (
	Account Class = iota
	Sell
	Buy
	Global
)

func (c Class) String() string {
	switch c {
	case Account:
		return "ACCOUNT"
	case Sell:
		return "SELL"
	case Buy:
		return "BUY"
	case Global:
		return "GLOBAL"
	default:
		return "UNKNOWN"
	}
}

// Guard is a set of coarse structure locks. A set flag means a
// multi-step mutation is mid-flight on that structure; no other
// mutation of the same class may begin until it clears.
//
// Execution is single-threaded, so this is not about parallelism:
// it is the reentrancy trip-wire. If an external transfer calls back
// into the engine before a release, the nested call finds the flag
// still set and is rejected at the top of its entry point.
type Guard struct {
	account bool
	sell    bool
	buy     bool
}

func New() *Guard {
	return &Guard{}
}

// Held reports whether any flag covering class is set.
func (g *Guard) Held(c Class) bool {
	switch c {
	case Account:
		return g.account
	case Sell:
		return g.sell
	case Buy:
		return g.buy
	case Global:
		return g.account || g.sell || g.buy
	default:
		return true
	}
}

// Acquire sets the flags for class and returns the release closure.
// Callers must defer the release so every exit path, including
// failures, clears the flags.
func (g *Guard) Acquire(c Class) (func(), error) {
	if g.Held(c) {
		return nil, fmt.Errorf("%w: %s", ErrHeld, c)
	}
	switch c {
	case Account:
		g.account = true
		return func() { g.account = false }, nil
	case Sell:
		g.sell = true
		return func() { g.sell = false }, nil
	case Buy:
		g.buy = true
		return func() { g.buy = false }, nil
	case Global:
		g.account, g.sell, g.buy = true, true, true
		return func() { g.account, g.sell, g.buy = false, false, false }, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrHeld, c)
	}
}
