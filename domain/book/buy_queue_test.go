package book

import (
	"testing"

	"freyr/infra/memory"
)

func seal(b byte) [32]byte {
	var c [32]byte
	c[0] = b
	return c
}

func TestFIFOOrdering(t *testing.T) {
	q := NewBuyQueue(nil)
	var ids []uint64
	for i := 0; i < 5; i++ {
		id, err := q.SealedInsert(ident(1), seal(byte(i)))
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		ids = append(ids, id)
	}

	var walked []uint64
	q.Walk(func(o *BuyOrder) bool {
		walked = append(walked, o.ID)
		return true
	})
	if len(walked) != len(ids) {
		t.Fatalf("walked %d, want %d", len(walked), len(ids))
	}
	for i := range ids {
		if walked[i] != ids[i] {
			t.Fatalf("FIFO broken: walked %v, created %v", walked, ids)
		}
	}
}

func TestFIFOSurvivesMiddleRemoval(t *testing.T) {
	q := NewBuyQueue(nil)
	a, _ := q.SealedInsert(ident(1), seal(1))
	m, _ := q.SealedInsert(ident(1), seal(2))
	z, _ := q.SealedInsert(ident(1), seal(3))

	if err := q.Remove(m, ident(1)); err != nil {
		t.Fatalf("remove: %v", err)
	}
	var walked []uint64
	q.Walk(func(o *BuyOrder) bool {
		walked = append(walked, o.ID)
		return true
	})
	if len(walked) != 2 || walked[0] != a || walked[1] != z {
		t.Fatalf("after removal: %v", walked)
	}
}

func TestSealedCarriesNoTerms(t *testing.T) {
	q := NewBuyQueue(nil)
	id, _ := q.SealedInsert(ident(1), seal(7))

	o, ok := q.Get(id)
	if !ok || o.Status != Sealed {
		t.Fatal("bid should exist sealed")
	}
	if o.Token != "" || o.Price != 0 || o.Amount != 0 {
		t.Error("sealed bid leaked terms")
	}
}

func TestOpenBidTransition(t *testing.T) {
	q := NewBuyQueue(nil)
	id, _ := q.SealedInsert(ident(1), seal(7))

	if err := q.OpenBid(id, "T", 0, 5); err != ErrBadOrder {
		t.Errorf("zero price: got %v", err)
	}
	if err := q.OpenBid(id, "T", 3, 5); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := q.OpenBid(id, "T", 3, 5); err != ErrBidNotSealed {
		t.Errorf("double open: got %v", err)
	}
	o, _ := q.Get(id)
	if o.Status != Open || o.Cost() != 15 {
		t.Errorf("opened bid: status=%v cost=%d", o.Status, o.Cost())
	}
}

func TestRemoveTwiceFails(t *testing.T) {
	q := NewBuyQueue(nil)
	id, _ := q.SealedInsert(ident(1), seal(1))

	if err := q.Remove(id, ident(2)); err != ErrNotOwner {
		t.Errorf("foreign remove: got %v", err)
	}
	if err := q.Remove(id, ident(1)); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := q.Remove(id, ident(1)); err != ErrUnknownOrder {
		t.Errorf("second remove: got %v", err)
	}
}

func TestConsumeRequiresOpen(t *testing.T) {
	q := NewBuyQueue(nil)
	id, _ := q.SealedInsert(ident(1), seal(1))

	if err := q.Consume(id, 1); err != ErrBidNotOpen {
		t.Errorf("consume sealed: got %v", err)
	}
	_ = q.OpenBid(id, "T", 2, 10)
	if err := q.Consume(id, 4); err != nil {
		t.Fatalf("consume: %v", err)
	}
	o, _ := q.Get(id)
	if o.Amount != 6 {
		t.Errorf("remaining = %d, want 6", o.Amount)
	}
}

// Pooled nodes must come back zeroed, not carrying a ghost of the
// removed bid.
func TestPooledNodesAreClean(t *testing.T) {
	pool := memory.NewPool(func() *BuyOrder { return &BuyOrder{} })
	q := NewBuyQueue(pool)

	id, _ := q.SealedInsert(ident(1), seal(9))
	_ = q.OpenBid(id, "T", 5, 5)
	_ = q.Remove(id, ident(1))

	id2, _ := q.SealedInsert(ident(2), seal(8))
	o, _ := q.Get(id2)
	if o.Status != Sealed || o.Token != "" || o.Price != 0 {
		t.Errorf("recycled node kept stale state: %+v", o)
	}
}
