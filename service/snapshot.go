package service

import "freyr/domain/book"

// SellEntry is a read-only view of one resting offer.
type SellEntry struct {
	ID     uint64
	Owner  string
	Token  string
	Price  uint64
	Amount uint64
}

// BidEntry is a read-only view of one queued bid. Terms are zero
// while the bid is still sealed.
type BidEntry struct {
	ID     uint64
	Owner  string
	Status string
	Token  string
	Price  uint64
	Amount uint64
}

// Snapshot returns a consistent view of all open orders: offers per
// token in ascending price order, bids in FIFO order. Callers get
// copies; nothing here aliases live book state.
func (s *ExchangeService) Snapshot() (sells []SellEntry, bids []BidEntry) {
	for _, token := range s.sells.Tokens() {
		s.sells.Walk(token, func(o *book.SellOrder) bool {
			sells = append(sells, SellEntry{
				ID:     o.ID,
				Owner:  o.Owner.Hex(),
				Token:  o.Token,
				Price:  o.Price,
				Amount: o.Amount,
			})
			return true
		})
	}
	s.buys.Walk(func(o *book.BuyOrder) bool {
		e := BidEntry{
			ID:     o.ID,
			Owner:  o.Owner.Hex(),
			Status: o.Status.String(),
		}
		if o.Status == book.Open {
			e.Token = o.Token
			e.Price = o.Price
			e.Amount = o.Amount
		}
		bids = append(bids, e)
		return true
	})
	return sells, bids
}
