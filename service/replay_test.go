package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"freyr/crypto"
	"freyr/domain/book"
	"freyr/domain/guard"
	"freyr/domain/ledger"
	"freyr/domain/phase"
	"freyr/infra/custodian"
	"freyr/infra/journal"
	"freyr/infra/outbox"
)

// rebuild constructs a fresh service over the same journal directory
// and replays it, as a restart would.
func rebuild(t *testing.T, h *harness) *ExchangeService {
	t.Helper()

	jrnl, err := journal.Open(journal.Config{
		Dir:         h.journalDir,
		SegmentSize: 1 << 20,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = jrnl.Close() })

	ob, err := outbox.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ob.Close() })

	svc := NewExchangeService(
		ledger.New(),
		book.NewSellBook(nil),
		book.NewBuyQueue(nil),
		phase.NewGate(h.now, time.Minute, nil),
		guard.New(),
		jrnl,
		ob,
		custodian.NewVault(),
		crypto.Secp256k1Authority{},
		nil,
		zerolog.Nop(),
	)
	require.NoError(t, ReplayFromJournal(h.journalDir, svc))
	return svc
}

func TestReplayRebuildsLedgerAndBooks(t *testing.T) {
	h := newHarness(t)
	seller, buyer := ident(1), ident(2)
	h.fundAccount(t, seller, 0)
	h.fundAccount(t, buyer, 200)
	h.fundTokens(t, seller, "T", 50)

	h.setPhase(phase.Offer)
	sellID, err := h.svc.PlaceSell(seller, "T", 4, 50)
	require.NoError(t, err)
	require.NoError(t, h.svc.ReduceSellPrice(seller, sellID, 3))

	nonce := crypto.Nonce{5}
	bidID, err := h.svc.PlaceBid(buyer, crypto.Seal("T", 4, 10, nonce))
	require.NoError(t, err)

	h.setPhase(phase.BidOpening)
	require.NoError(t, h.svc.RevealBid(buyer, bidID, "T", 4, 10, nonce))

	restored := rebuild(t, h)

	require.Equal(t, h.svc.Balance(buyer), restored.Balance(buyer))
	require.Equal(t, h.svc.Reserved(buyer), restored.Reserved(buyer))
	require.Equal(t, h.svc.Holding(seller, "T"), restored.Holding(seller, "T"))

	wantSells, wantBids := h.svc.Snapshot()
	gotSells, gotBids := restored.Snapshot()
	require.Equal(t, wantSells, gotSells)
	require.Equal(t, wantBids, gotBids)
}

func TestReplayReproducesMatchOutcome(t *testing.T) {
	h := newHarness(t)
	seller, buyer := ident(1), ident(2)
	h.fundAccount(t, seller, 0)
	h.fundAccount(t, buyer, 100)
	h.fundTokens(t, seller, "T", 20)

	h.setPhase(phase.Offer)
	_, err := h.svc.PlaceSell(seller, "T", 2, 20)
	require.NoError(t, err)
	nonce := crypto.Nonce{8}
	bid, err := h.svc.PlaceBid(buyer, crypto.Seal("T", 2, 20, nonce))
	require.NoError(t, err)

	h.setPhase(phase.BidOpening)
	require.NoError(t, h.svc.RevealBid(buyer, bid, "T", 2, 20, nonce))

	h.setPhase(phase.Matching)
	_, err = h.svc.RunMatch(context.Background())
	require.NoError(t, err)

	restored := rebuild(t, h)

	require.Equal(t, uint64(40), restored.Balance(seller))
	require.Equal(t, uint64(20), restored.Holding(buyer, "T"))
	require.Equal(t, uint64(0), restored.Reserved(buyer))
	sells, bids := restored.Snapshot()
	require.Empty(t, sells)
	require.Empty(t, bids)
}

func TestReplayPreservesIDAllocation(t *testing.T) {
	h := newHarness(t)
	seller := ident(1)
	h.fundAccount(t, seller, 0)
	h.fundTokens(t, seller, "T", 30)

	h.setPhase(phase.Offer)
	a, err := h.svc.PlaceSell(seller, "T", 1, 10)
	require.NoError(t, err)
	b, err := h.svc.PlaceSell(seller, "T", 2, 10)
	require.NoError(t, err)
	require.NoError(t, h.svc.WithdrawSell(seller, a))

	restored := rebuild(t, h)

	sells, _ := restored.Snapshot()
	require.Len(t, sells, 1)
	require.Equal(t, b, sells[0].ID)
}
