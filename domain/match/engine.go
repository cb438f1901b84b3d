package match

import (
	"errors"
	"fmt"

	"freyr/domain/book"
	"freyr/domain/ledger"
)

// ErrConsistency marks a settlement that found state the reservation
// discipline should have made impossible (buyer funds or seller
// inventory missing at execution time). The whole matching pass
// aborts rather than apply a partial settlement.
var ErrConsistency = errors.New("match: ledger state inconsistent with reservation")

// Trade is one settled fill.
type Trade struct {
	BuyID  uint64
	SellID uint64
	Buyer  ledger.Identity
	Seller ledger.Identity
	Token  string
	Price  uint64
	Amount uint64
}

// Engine walks the buy queue once and settles what it can.
//
// Ordering is load-bearing: bids settle strictly in FIFO submission
// order, and within a bid, offers settle strictly in ascending price
// order. Callers invoke Run under the Global guard.
type Engine struct {
	ledger *ledger.Ledger
	sells  *book.SellBook
	buys   *book.BuyQueue
}

func NewEngine(l *ledger.Ledger, sells *book.SellBook, buys *book.BuyQueue) *Engine {
	return &Engine{ledger: l, sells: sells, buys: buys}
}

// Run performs one matching pass and returns the settled trades.
// Sealed bids are skipped; an open bid with no offer at or below its
// price is left open for a later round.
func (e *Engine) Run() ([]Trade, error) {
	var trades []Trade

	b := e.buys.First()
	for b != nil {
		next := e.buys.After(b)
		if b.Status != book.Open {
			b = next
			continue
		}

		done, err := e.fill(b, &trades)
		if err != nil {
			return trades, err
		}
		if done {
			if err := e.buys.Discard(b.ID); err != nil {
				return trades, fmt.Errorf("%w: %v", ErrConsistency, err)
			}
		}
		b = next
	}
	return trades, nil
}

// fill consumes offers for one bid. It reports whether the bid was
// fully filled and should leave the queue.
func (e *Engine) fill(b *book.BuyOrder, trades *[]Trade) (bool, error) {
	s := e.sells.First(b.Token)
	for s != nil {
		// Ascending list: past this point no offer can match.
		if s.Price > b.Price {
			return false, nil
		}
		nextSell := e.sells.After(s)

		switch {
		case s.Amount == b.Amount:
			t, err := e.settle(b, s, b.Amount)
			if err != nil {
				return false, err
			}
			if err := e.sells.Discard(s.ID); err != nil {
				return false, fmt.Errorf("%w: %v", ErrConsistency, err)
			}
			*trades = append(*trades, t)
			return true, nil

		case s.Amount > b.Amount:
			t, err := e.settle(b, s, b.Amount)
			if err != nil {
				return false, err
			}
			if err := e.sells.Consume(s.ID, b.Amount); err != nil {
				return false, fmt.Errorf("%w: %v", ErrConsistency, err)
			}
			*trades = append(*trades, t)
			return true, nil

		default: // b.Amount > s.Amount
			t, err := e.settle(b, s, s.Amount)
			if err != nil {
				return false, err
			}
			qty := s.Amount
			if err := e.sells.Discard(s.ID); err != nil {
				return false, fmt.Errorf("%w: %v", ErrConsistency, err)
			}
			if err := e.buys.Consume(b.ID, qty); err != nil {
				return false, fmt.Errorf("%w: %v", ErrConsistency, err)
			}
			*trades = append(*trades, t)
			s = nextSell
		}
	}
	return false, nil
}

// settle moves qty units from seller to buyer at the offer's price.
// The bid reserved funds at its own (higher or equal) price, so the
// reservation is released at the bid's rate: a fully filled bid ends
// with no residual reserved debt.
//
// Everything is verified before the first mutation; a check failing
// here means a reservation invariant broke earlier and the pass
// must abort.
func (e *Engine) settle(b *book.BuyOrder, s *book.SellOrder, qty uint64) (Trade, error) {
	cost := s.Price * qty
	release := b.Price * qty

	buyer, ok := e.ledger.Account(b.Owner)
	if !ok {
		return Trade{}, fmt.Errorf("%w: buyer %s unregistered", ErrConsistency, b.Owner.Hex())
	}
	seller, ok := e.ledger.Account(s.Owner)
	if !ok {
		return Trade{}, fmt.Errorf("%w: seller %s unregistered", ErrConsistency, s.Owner.Hex())
	}
	if buyer.ReservedDebt < release || buyer.Balance < cost {
		return Trade{}, fmt.Errorf("%w: buyer %s cannot cover %d", ErrConsistency, b.Owner.Hex(), cost)
	}
	if seller.Holdings[s.Token] < qty {
		return Trade{}, fmt.Errorf("%w: seller %s holds too little %s", ErrConsistency, s.Owner.Hex(), s.Token)
	}

	if err := e.ledger.Release(b.Owner, release); err != nil {
		return Trade{}, fmt.Errorf("%w: %v", ErrConsistency, err)
	}
	if err := e.ledger.Debit(b.Owner, cost); err != nil {
		return Trade{}, fmt.Errorf("%w: %v", ErrConsistency, err)
	}
	if err := e.ledger.Credit(s.Owner, cost); err != nil {
		return Trade{}, fmt.Errorf("%w: %v", ErrConsistency, err)
	}
	if err := e.ledger.AdjustHolding(b.Owner, s.Token, int64(qty)); err != nil {
		return Trade{}, fmt.Errorf("%w: %v", ErrConsistency, err)
	}
	if err := e.ledger.AdjustHolding(s.Owner, s.Token, -int64(qty)); err != nil {
		return Trade{}, fmt.Errorf("%w: %v", ErrConsistency, err)
	}

	return Trade{
		BuyID:  b.ID,
		SellID: s.ID,
		Buyer:  b.Owner,
		Seller: s.Owner,
		Token:  s.Token,
		Price:  s.Price,
		Amount: qty,
	}, nil
}
