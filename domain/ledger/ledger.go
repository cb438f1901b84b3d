package ledger

import "errors"

var (
	ErrAccountExists        = errors.New("ledger: account already registered")
	ErrNoAccount            = errors.New("ledger: account does not exist")
	ErrInsufficientBalance  = errors.New("ledger: insufficient balance")
	ErrBalanceReserved      = errors.New("ledger: balance is reserved against open bids")
	ErrReserveExceedsFunds  = errors.New("ledger: reservation exceeds spendable balance")
	ErrReleaseExceedsDebt   = errors.New("ledger: release exceeds reserved debt")
	ErrInsufficientHoldings = errors.New("ledger: insufficient token holdings")
)

// Account holds one identity's funds.
//
// Invariant: ReservedDebt <= Balance and every holding >= 0,
// before and after every operation. Operations that would break
// either reject before mutating anything.
type Account struct {
	Balance      uint64
	ReservedDebt uint64
	Holdings     map[string]uint64
}

// Spendable is the portion of the balance not earmarked
// against open bids.
func (a *Account) Spendable() uint64 {
	return a.Balance - a.ReservedDebt
}

// Ledger is a pure in-memory balance book. Single-writer,
// deterministic, no locking of its own: callers serialize access.
type Ledger struct {
	accounts map[Identity]*Account
}

func New() *Ledger {
	return &Ledger{
		accounts: make(map[Identity]*Account),
	}
}

// Register creates an empty account. Accounts are never deleted.
func (l *Ledger) Register(id Identity) error {
	if _, ok := l.accounts[id]; ok {
		return ErrAccountExists
	}
	l.accounts[id] = &Account{
		Holdings: make(map[string]uint64),
	}
	return nil
}

func (l *Ledger) Exists(id Identity) bool {
	_, ok := l.accounts[id]
	return ok
}

// Account returns the live record. Callers must treat it as read-only.
func (l *Ledger) Account(id Identity) (*Account, bool) {
	a, ok := l.accounts[id]
	return a, ok
}

func (l *Ledger) Balance(id Identity) uint64 {
	if a, ok := l.accounts[id]; ok {
		return a.Balance
	}
	return 0
}

func (l *Ledger) Reserved(id Identity) uint64 {
	if a, ok := l.accounts[id]; ok {
		return a.ReservedDebt
	}
	return 0
}

func (l *Ledger) Holding(id Identity, token string) uint64 {
	if a, ok := l.accounts[id]; ok {
		return a.Holdings[token]
	}
	return 0
}

// Credit increases the balance unconditionally.
func (l *Ledger) Credit(id Identity, amount uint64) error {
	a, ok := l.accounts[id]
	if !ok {
		return ErrNoAccount
	}
	a.Balance += amount
	return nil
}

// Debit decreases the balance. It fails when the amount exceeds the
// balance, and also when it would leave the balance below the
// reserved debt (that currency is spoken for).
func (l *Ledger) Debit(id Identity, amount uint64) error {
	a, ok := l.accounts[id]
	if !ok {
		return ErrNoAccount
	}
	if amount > a.Balance {
		return ErrInsufficientBalance
	}
	if a.Balance-amount < a.ReservedDebt {
		return ErrBalanceReserved
	}
	a.Balance -= amount
	return nil
}

// Reserve earmarks currency against an open bid.
func (l *Ledger) Reserve(id Identity, amount uint64) error {
	a, ok := l.accounts[id]
	if !ok {
		return ErrNoAccount
	}
	if a.Spendable() < amount {
		return ErrReserveExceedsFunds
	}
	a.ReservedDebt += amount
	return nil
}

// Release returns earmarked currency to the spendable balance.
func (l *Ledger) Release(id Identity, amount uint64) error {
	a, ok := l.accounts[id]
	if !ok {
		return ErrNoAccount
	}
	if amount > a.ReservedDebt {
		return ErrReleaseExceedsDebt
	}
	a.ReservedDebt -= amount
	return nil
}

// AdjustHolding applies a signed delta to a token holding.
// A negative delta that would take the holding below zero rejects
// without mutating.
func (l *Ledger) AdjustHolding(id Identity, token string, delta int64) error {
	a, ok := l.accounts[id]
	if !ok {
		return ErrNoAccount
	}
	if delta >= 0 {
		a.Holdings[token] += uint64(delta)
		return nil
	}
	take := uint64(-delta)
	if take > a.Holdings[token] {
		return ErrInsufficientHoldings
	}
	a.Holdings[token] -= take
	return nil
}
