package book

import (
	"errors"

	"freyr/domain/ledger"
)

var (
	ErrBidNotSealed = errors.New("book: bid is not sealed")
	ErrBidNotOpen   = errors.New("book: bid is not open")
)

type BidStatus uint8

const (
	Sealed BidStatus = iota
	Open
)

func (s BidStatus) String() string {
	switch s {
	case Sealed:
		return "SEALED"
	case Open:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// BuyOrder is a blind bid. While Sealed only the commitment is
// known; Token, Price and Amount are meaningful only once Open.
type BuyOrder struct {
	ID         uint64
	Owner      ledger.Identity
	Commitment [32]byte
	Status     BidStatus
	Token      string
	Price      uint64
	Amount     uint64

	prev uint64
	next uint64
}

// Cost is the currency currently earmarked for an open bid.
func (o *BuyOrder) Cost() uint64 {
	return o.Price * o.Amount
}

// BuyQueue is a single FIFO list of bids across all tokens,
// ordered by submission.
//
// Invariant: walking head to tail yields ids in creation order.
type BuyQueue struct {
	orders map[uint64]*BuyOrder
	head   uint64
	tail   uint64
	cursor idCursor
	alloc  Alloc[BuyOrder]
}

func NewBuyQueue(alloc Alloc[BuyOrder]) *BuyQueue {
	return &BuyQueue{
		orders: make(map[uint64]*BuyOrder),
		alloc:  alloc,
	}
}

func (q *BuyQueue) Len() int {
	return len(q.orders)
}

func (q *BuyQueue) Get(id uint64) (*BuyOrder, bool) {
	o, ok := q.orders[id]
	return o, ok
}

func (q *BuyQueue) LastID() uint64 {
	return q.cursor.last
}

func (q *BuyQueue) ResetCursor(last uint64) {
	q.cursor.reset(last)
}

// SealedInsert appends a blind bid at the FIFO tail.
func (q *BuyQueue) SealedInsert(owner ledger.Identity, commitment [32]byte) (uint64, error) {
	id, err := q.cursor.next(func(id uint64) bool {
		_, taken := q.orders[id]
		return taken
	})
	if err != nil {
		return 0, err
	}

	o := get(q.alloc)
	*o = BuyOrder{
		ID:         id,
		Owner:      owner,
		Commitment: commitment,
		Status:     Sealed,
		prev:       q.tail,
	}
	q.orders[id] = o

	if q.tail == 0 {
		q.head = id
	} else {
		q.orders[q.tail].next = id
	}
	q.tail = id
	return id, nil
}

// OpenBid stores the revealed terms and flips the bid to Open.
// Commitment verification and fund reservation are the caller's
// business; this is pure list state.
func (q *BuyQueue) OpenBid(id uint64, token string, price, amount uint64) error {
	o, ok := q.orders[id]
	if !ok {
		return ErrUnknownOrder
	}
	if o.Status != Sealed {
		return ErrBidNotSealed
	}
	if price == 0 || amount == 0 {
		return ErrBadOrder
	}
	o.Token = token
	o.Price = price
	o.Amount = amount
	o.Status = Open
	return nil
}

// Remove withdraws a bid. Only the (possibly signature-resolved)
// owner may withdraw.
func (q *BuyQueue) Remove(id uint64, caller ledger.Identity) error {
	o, ok := q.orders[id]
	if !ok {
		return ErrUnknownOrder
	}
	if o.Owner != caller {
		return ErrNotOwner
	}
	q.drop(o)
	return nil
}

// Discard deletes a bid without an ownership check (matching engine).
func (q *BuyQueue) Discard(id uint64) error {
	o, ok := q.orders[id]
	if !ok {
		return ErrUnknownOrder
	}
	q.drop(o)
	return nil
}

// Consume reduces an open bid's remaining amount in place.
func (q *BuyQueue) Consume(id uint64, qty uint64) error {
	o, ok := q.orders[id]
	if !ok {
		return ErrUnknownOrder
	}
	if o.Status != Open {
		return ErrBidNotOpen
	}
	if qty == 0 || qty >= o.Amount {
		return ErrBadOrder
	}
	o.Amount -= qty
	return nil
}

// First returns the oldest bid, or nil.
func (q *BuyQueue) First() *BuyOrder {
	if q.head == 0 {
		return nil
	}
	return q.orders[q.head]
}

// After returns the next bid in FIFO order, or nil.
func (q *BuyQueue) After(o *BuyOrder) *BuyOrder {
	if o == nil || o.next == 0 {
		return nil
	}
	return q.orders[o.next]
}

// Walk visits bids in FIFO order until fn returns false.
func (q *BuyQueue) Walk(fn func(*BuyOrder) bool) {
	for o := q.First(); o != nil; o = q.After(o) {
		if !fn(o) {
			return
		}
	}
}

func (q *BuyQueue) drop(o *BuyOrder) {
	if o.prev == 0 {
		q.head = o.next
	} else {
		q.orders[o.prev].next = o.next
	}
	if o.next == 0 {
		q.tail = o.prev
	} else {
		q.orders[o.next].prev = o.prev
	}
	delete(q.orders, o.ID)
	*o = BuyOrder{}
	put(q.alloc, o)
}
