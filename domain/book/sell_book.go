package book

import (
	"errors"

	"freyr/domain/ledger"
)

var (
	ErrUnknownOrder  = errors.New("book: no such order")
	ErrNotOwner      = errors.New("book: caller does not own order")
	ErrBadOrder      = errors.New("book: price and amount must be positive")
	ErrPriceNotLower = errors.New("book: new price must be strictly lower")
)

// SellOrder is an open offer resting in a per-token list.
// prev/next are synthetic ids into the book's arena; 0 is the
// sentinel marking the list boundary.
type SellOrder struct {
	ID     uint64
	Owner  ledger.Identity
	Token  string
	Price  uint64
	Amount uint64

	prev uint64
	next uint64
}

// anchor is a per-token list boundary: the sentinel's two links.
type anchor struct {
	head uint64
	tail uint64
}

// SellBook keeps one price-ascending doubly-linked list per token,
// all nodes living in a single id-keyed arena.
//
// Invariant: walking a token's list head to tail yields
// non-decreasing prices.
type SellBook struct {
	orders map[uint64]*SellOrder
	lists  map[string]*anchor
	cursor idCursor
	alloc  Alloc[SellOrder]
}

func NewSellBook(alloc Alloc[SellOrder]) *SellBook {
	return &SellBook{
		orders: make(map[uint64]*SellOrder),
		lists:  make(map[string]*anchor),
		alloc:  alloc,
	}
}

func (b *SellBook) Len() int {
	return len(b.orders)
}

func (b *SellBook) Get(id uint64) (*SellOrder, bool) {
	o, ok := b.orders[id]
	return o, ok
}

// LastID reports the most recently assigned id, for journal replay.
func (b *SellBook) LastID() uint64 {
	return b.cursor.last
}

// ResetCursor rewinds id allocation after replay.
func (b *SellBook) ResetCursor(last uint64) {
	b.cursor.reset(last)
}

// Insert places a new offer into its token's list, keeping the list
// price-ascending. The scan walks backward from the token's own tail
// until it finds a node priced at or below the new offer and splices
// in right after it. Linear in the distance from the tail; fine at
// this engine's volumes.
func (b *SellBook) Insert(owner ledger.Identity, token string, price, amount uint64) (uint64, error) {
	if price == 0 || amount == 0 {
		return 0, ErrBadOrder
	}

	id, err := b.cursor.next(func(id uint64) bool {
		_, taken := b.orders[id]
		return taken
	})
	if err != nil {
		return 0, err
	}

	o := get(b.alloc)
	*o = SellOrder{
		ID:     id,
		Owner:  owner,
		Token:  token,
		Price:  price,
		Amount: amount,
	}
	b.orders[id] = o
	b.splice(o)
	return id, nil
}

// ReducePrice lowers an offer's price. The node is unlinked and
// re-spliced so the ascending invariant survives the change.
func (b *SellBook) ReducePrice(id uint64, caller ledger.Identity, newPrice uint64) error {
	o, ok := b.orders[id]
	if !ok {
		return ErrUnknownOrder
	}
	if o.Owner != caller {
		return ErrNotOwner
	}
	if newPrice == 0 {
		return ErrBadOrder
	}
	if newPrice >= o.Price {
		return ErrPriceNotLower
	}

	b.unlink(o)
	o.Price = newPrice
	b.splice(o)
	return nil
}

// Remove withdraws an offer. Only the owner may withdraw.
func (b *SellBook) Remove(id uint64, caller ledger.Identity) error {
	o, ok := b.orders[id]
	if !ok {
		return ErrUnknownOrder
	}
	if o.Owner != caller {
		return ErrNotOwner
	}
	b.drop(o)
	return nil
}

// Discard deletes an order without an ownership check. Reserved for
// the matching engine, which removes fully filled offers.
func (b *SellBook) Discard(id uint64) error {
	o, ok := b.orders[id]
	if !ok {
		return ErrUnknownOrder
	}
	b.drop(o)
	return nil
}

// Consume reduces an offer's remaining amount in place (partial fill).
func (b *SellBook) Consume(id uint64, qty uint64) error {
	o, ok := b.orders[id]
	if !ok {
		return ErrUnknownOrder
	}
	if qty == 0 || qty >= o.Amount {
		return ErrBadOrder
	}
	o.Amount -= qty
	return nil
}

// First returns the cheapest offer for a token, or nil.
func (b *SellBook) First(token string) *SellOrder {
	l, ok := b.lists[token]
	if !ok || l.head == 0 {
		return nil
	}
	return b.orders[l.head]
}

// After returns the next offer in ascending price order, or nil.
func (b *SellBook) After(o *SellOrder) *SellOrder {
	if o == nil || o.next == 0 {
		return nil
	}
	return b.orders[o.next]
}

// Walk visits a token's offers in ascending price order until fn
// returns false.
func (b *SellBook) Walk(token string, fn func(*SellOrder) bool) {
	for o := b.First(token); o != nil; o = b.After(o) {
		if !fn(o) {
			return
		}
	}
}

// Tokens lists every token with at least one open offer.
func (b *SellBook) Tokens() []string {
	out := make([]string, 0, len(b.lists))
	for tok, l := range b.lists {
		if l.head != 0 {
			out = append(out, tok)
		}
	}
	return out
}

// ---- linking ----

func (b *SellBook) list(token string) *anchor {
	l, ok := b.lists[token]
	if !ok {
		l = &anchor{}
		b.lists[token] = l
	}
	return l
}

// splice inserts o after the last node priced <= o.Price.
func (b *SellBook) splice(o *SellOrder) {
	l := b.list(o.Token)

	at := l.tail
	for at != 0 && b.orders[at].Price > o.Price {
		at = b.orders[at].prev
	}

	o.prev = at
	if at == 0 {
		o.next = l.head
		l.head = o.ID
	} else {
		o.next = b.orders[at].next
		b.orders[at].next = o.ID
	}
	if o.next == 0 {
		l.tail = o.ID
	} else {
		b.orders[o.next].prev = o.ID
	}
}

func (b *SellBook) unlink(o *SellOrder) {
	l := b.list(o.Token)
	if o.prev == 0 {
		l.head = o.next
	} else {
		b.orders[o.prev].next = o.next
	}
	if o.next == 0 {
		l.tail = o.prev
	} else {
		b.orders[o.next].prev = o.prev
	}
	o.prev, o.next = 0, 0
}

func (b *SellBook) drop(o *SellOrder) {
	b.unlink(o)
	delete(b.orders, o.ID)
	*o = SellOrder{}
	put(b.alloc, o)
}
