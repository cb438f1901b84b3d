package match

import (
	"errors"
	"testing"

	"freyr/domain/book"
	"freyr/domain/ledger"
)

func ident(b byte) ledger.Identity {
	var id ledger.Identity
	id[0] = b
	return id
}

type env struct {
	ledger *ledger.Ledger
	sells  *book.SellBook
	buys   *book.BuyQueue
	engine *Engine
}

func newEnv() *env {
	l := ledger.New()
	sells := book.NewSellBook(nil)
	buys := book.NewBuyQueue(nil)
	return &env{
		ledger: l,
		sells:  sells,
		buys:   buys,
		engine: NewEngine(l, sells, buys),
	}
}

func (e *env) seller(t *testing.T, who ledger.Identity, token string, qty uint64) {
	t.Helper()
	_ = e.ledger.Register(who)
	if err := e.ledger.AdjustHolding(who, token, int64(qty)); err != nil {
		t.Fatalf("fund seller: %v", err)
	}
}

func (e *env) buyer(t *testing.T, who ledger.Identity, funds uint64) {
	t.Helper()
	_ = e.ledger.Register(who)
	if err := e.ledger.Credit(who, funds); err != nil {
		t.Fatalf("fund buyer: %v", err)
	}
}

func (e *env) sell(t *testing.T, who ledger.Identity, token string, price, qty uint64) uint64 {
	t.Helper()
	id, err := e.sells.Insert(who, token, price, qty)
	if err != nil {
		t.Fatalf("place sell: %v", err)
	}
	return id
}

func (e *env) openBid(t *testing.T, who ledger.Identity, token string, price, qty uint64) uint64 {
	t.Helper()
	id, err := e.buys.SealedInsert(who, [32]byte{})
	if err != nil {
		t.Fatalf("queue bid: %v", err)
	}
	if err := e.ledger.Reserve(who, price*qty); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := e.buys.OpenBid(id, token, price, qty); err != nil {
		t.Fatalf("open bid: %v", err)
	}
	return id
}

// Full fill at equal amounts: both orders leave their structures,
// funds and tokens change hands at the sell price.
func TestExactFill(t *testing.T) {
	e := newEnv()
	seller, buyer := ident(1), ident(2)
	e.seller(t, seller, "T", 500000)
	e.buyer(t, buyer, 500000)

	e.sell(t, seller, "T", 1, 500000)
	e.openBid(t, buyer, "T", 1, 500000)

	trades, err := e.engine.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	if e.ledger.Balance(seller) != 500000 {
		t.Errorf("seller balance = %d", e.ledger.Balance(seller))
	}
	if e.ledger.Holding(buyer, "T") != 500000 {
		t.Errorf("buyer holdings = %d", e.ledger.Holding(buyer, "T"))
	}
	if e.ledger.Holding(seller, "T") != 0 {
		t.Errorf("seller holdings = %d", e.ledger.Holding(seller, "T"))
	}
	if e.ledger.Reserved(buyer) != 0 {
		t.Errorf("residual reservation = %d", e.ledger.Reserved(buyer))
	}
	if e.sells.Len() != 0 || e.buys.Len() != 0 {
		t.Error("orders should be removed")
	}
}

// Cheaper offers settle first: a bid spanning two price levels
// consumes the low-priced offer in full before touching the other.
func TestLowerPriceSettlesFirst(t *testing.T) {
	e := newEnv()
	seller, buyer := ident(1), ident(2)
	e.seller(t, seller, "T", 20)
	e.buyer(t, buyer, 100)

	expensive := e.sell(t, seller, "T", 3, 10)
	cheap := e.sell(t, seller, "T", 2, 10)
	e.openBid(t, buyer, "T", 3, 20)

	trades, err := e.engine.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("trades = %d, want 2", len(trades))
	}
	if trades[0].SellID != cheap || trades[0].Price != 2 {
		t.Errorf("first trade hit sell %d @%d, want %d @2", trades[0].SellID, trades[0].Price, cheap)
	}
	if trades[1].SellID != expensive || trades[1].Price != 3 {
		t.Errorf("second trade hit sell %d @%d, want %d @3", trades[1].SellID, trades[1].Price, expensive)
	}
	// 10@2 + 10@3 paid, reservation was 20@3.
	if e.ledger.Balance(buyer) != 50 || e.ledger.Reserved(buyer) != 0 {
		t.Errorf("buyer balance=%d reserved=%d", e.ledger.Balance(buyer), e.ledger.Reserved(buyer))
	}
	if e.ledger.Balance(seller) != 50 {
		t.Errorf("seller balance=%d", e.ledger.Balance(seller))
	}
}

// Sell bigger than buy: the offer stays with its remainder.
func TestPartialFillLeavesSellRemainder(t *testing.T) {
	e := newEnv()
	seller, buyer := ident(1), ident(2)
	e.seller(t, seller, "T", 100)
	e.buyer(t, buyer, 100)

	sid := e.sell(t, seller, "T", 1, 100)
	e.openBid(t, buyer, "T", 1, 30)

	if _, err := e.engine.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	o, ok := e.sells.Get(sid)
	if !ok || o.Amount != 70 {
		t.Fatalf("sell remainder: %+v", o)
	}
	if e.buys.Len() != 0 {
		t.Error("bid should be gone")
	}
}

// Buy bigger than all offers: the bid stays open with its remainder.
func TestPartialFillLeavesBidRemainder(t *testing.T) {
	e := newEnv()
	seller, buyer := ident(1), ident(2)
	e.seller(t, seller, "T", 30)
	e.buyer(t, buyer, 100)

	e.sell(t, seller, "T", 1, 30)
	bid := e.openBid(t, buyer, "T", 1, 80)

	if _, err := e.engine.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	o, ok := e.buys.Get(bid)
	if !ok || o.Amount != 50 {
		t.Fatalf("bid remainder: %+v", o)
	}
	if e.ledger.Reserved(buyer) != 50 {
		t.Errorf("reservation should track remainder: %d", e.ledger.Reserved(buyer))
	}
	if e.sells.Len() != 0 {
		t.Error("offer should be gone")
	}
}

func TestSealedBidsAreSkipped(t *testing.T) {
	e := newEnv()
	seller, buyer := ident(1), ident(2)
	e.seller(t, seller, "T", 10)
	e.buyer(t, buyer, 100)

	e.sell(t, seller, "T", 1, 10)
	if _, err := e.buys.SealedInsert(buyer, [32]byte{1}); err != nil {
		t.Fatal(err)
	}

	trades, err := e.engine.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(trades) != 0 || e.buys.Len() != 1 || e.sells.Len() != 1 {
		t.Error("sealed bid must not match")
	}
}

func TestBidAbovePricedOutStaysOpen(t *testing.T) {
	e := newEnv()
	seller, buyer := ident(1), ident(2)
	e.seller(t, seller, "T", 10)
	e.buyer(t, buyer, 100)

	e.sell(t, seller, "T", 5, 10)
	bid := e.openBid(t, buyer, "T", 4, 10)

	trades, err := e.engine.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(trades) != 0 {
		t.Error("nothing should match")
	}
	if _, ok := e.buys.Get(bid); !ok {
		t.Error("bid should remain open for a later round")
	}
}

// Bids settle in submission order: the older bid gets the scarce
// inventory even when both could match.
func TestFIFOPriority(t *testing.T) {
	e := newEnv()
	seller, first, second := ident(1), ident(2), ident(3)
	e.seller(t, seller, "T", 10)
	e.buyer(t, first, 100)
	e.buyer(t, second, 100)

	e.sell(t, seller, "T", 1, 10)
	e.openBid(t, first, "T", 1, 10)
	e.openBid(t, second, "T", 1, 10)

	trades, err := e.engine.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(trades) != 1 || trades[0].Buyer != first {
		t.Fatalf("FIFO violated: %+v", trades)
	}
	if e.ledger.Holding(second, "T") != 0 {
		t.Error("second buyer should get nothing")
	}
}

// A seller whose inventory vanished after placement breaks the
// reservation discipline; the pass must abort with a consistency
// error, not settle partially.
func TestConsistencyViolationAborts(t *testing.T) {
	e := newEnv()
	seller, buyer := ident(1), ident(2)
	e.seller(t, seller, "T", 10)
	e.buyer(t, buyer, 100)

	e.sell(t, seller, "T", 1, 10)
	e.openBid(t, buyer, "T", 1, 10)

	// Drain the seller behind the book's back.
	if err := e.ledger.AdjustHolding(seller, "T", -10); err != nil {
		t.Fatal(err)
	}

	_, err := e.engine.Run()
	if !errors.Is(err, ErrConsistency) {
		t.Fatalf("got %v, want ErrConsistency", err)
	}
	// The failing settlement applied nothing.
	if e.ledger.Balance(buyer) != 100 || e.ledger.Reserved(buyer) != 10 {
		t.Errorf("buyer mutated by aborted settlement: balance=%d reserved=%d",
			e.ledger.Balance(buyer), e.ledger.Reserved(buyer))
	}
}
