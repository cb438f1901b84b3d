package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"math/bits"

	"github.com/rs/zerolog"

	"freyr/crypto"
	"freyr/domain/book"
	"freyr/domain/guard"
	"freyr/domain/ledger"
	"freyr/domain/match"
	"freyr/domain/phase"
	"freyr/infra/custodian"
	"freyr/infra/journal"
	"freyr/infra/kafka"
	"freyr/infra/outbox"
)

/*
ExchangeService is the ONLY write entry point into the exchange.

Every mutating call follows the same shape:
 1. refresh the phase gate and check the call is legal now
 2. check and acquire the structure guard (released on every exit)
 3. validate preconditions, rejecting before any mutation
 4. mutate ledger / books
 5. journal the accepted command, emit events

Execution is single-threaded; the guard exists to reject reentrant
calls from external transfer code, not to serialize goroutines.
*/
type ExchangeService struct {
	ledger *ledger.Ledger
	sells  *book.SellBook
	buys   *book.BuyQueue
	gate   *phase.Gate
	guards *guard.Guard
	engine *match.Engine

	journal   *journal.Journal
	outbox    *outbox.Outbox
	custodian custodian.Custodian
	authority crypto.Authority
	ticks     *kafka.TickProducer // optional, best effort

	log zerolog.Logger
}

// NewExchangeService wires all dependencies. ticks may be nil.
func NewExchangeService(
	l *ledger.Ledger,
	sells *book.SellBook,
	buys *book.BuyQueue,
	gate *phase.Gate,
	guards *guard.Guard,
	jrnl *journal.Journal,
	ob *outbox.Outbox,
	cust custodian.Custodian,
	auth crypto.Authority,
	ticks *kafka.TickProducer,
	log zerolog.Logger,
) *ExchangeService {
	return &ExchangeService{
		ledger:    l,
		sells:     sells,
		buys:      buys,
		gate:      gate,
		guards:    guards,
		engine:    match.NewEngine(l, sells, buys),
		journal:   jrnl,
		outbox:    ob,
		custodian: cust,
		authority: auth,
		ticks:     ticks,
		log:       log,
	}
}

//
// ──────────────────────────────────────────────────────────
// Accounts, deposits, withdrawals
// ──────────────────────────────────────────────────────────
//

func (s *ExchangeService) Register(caller ledger.Identity) error {
	if err := s.gate.Require(phase.DepositWithdrawal); err != nil {
		return err
	}
	release, err := s.guards.Acquire(guard.Account)
	if err != nil {
		return err
	}
	defer release()

	if err := s.ledger.Register(caller); err != nil {
		return err
	}
	s.record(journal.RecordRegister, ownerPayload{Owner: caller.Hex()})
	s.log.Info().Str("owner", caller.Hex()).Msg("account registered")
	return nil
}

// Deposit pulls base currency into custody, then credits the balance.
// The external leg runs first: a refused pull leaves state untouched.
func (s *ExchangeService) Deposit(caller ledger.Identity, amount uint64) error {
	if err := s.gate.Require(phase.DepositWithdrawal); err != nil {
		return err
	}
	release, err := s.guards.Acquire(guard.Account)
	if err != nil {
		return err
	}
	defer release()

	if !s.ledger.Exists(caller) {
		return ledger.ErrNoAccount
	}
	if err := s.custodian.PullIn(caller, custodian.BaseAsset, amount); err != nil {
		return err
	}
	if err := s.ledger.Credit(caller, amount); err != nil {
		return err
	}
	s.record(journal.RecordDeposit, fundsPayload{Owner: caller.Hex(), Amount: amount})
	return nil
}

// Withdraw debits first, then pushes the currency out. A refused
// push restores the balance before the error surfaces: no partial
// transfer is ever observable. The Account guard stays held across
// the external call, so a reentrant attempt is rejected at its own
// entry point.
func (s *ExchangeService) Withdraw(caller ledger.Identity, amount uint64) error {
	if err := s.gate.Require(phase.DepositWithdrawal); err != nil {
		return err
	}
	release, err := s.guards.Acquire(guard.Account)
	if err != nil {
		return err
	}
	defer release()

	if err := s.ledger.Debit(caller, amount); err != nil {
		return err
	}
	if err := s.custodian.PushOut(caller, custodian.BaseAsset, amount); err != nil {
		if cerr := s.ledger.Credit(caller, amount); cerr != nil {
			// Credit after a successful debit cannot fail; if it
			// does the ledger is broken, not just this call.
			s.log.Error().Err(cerr).Str("owner", caller.Hex()).Msg("rollback credit failed")
		}
		s.log.Warn().Err(err).Str("owner", caller.Hex()).Uint64("amount", amount).Msg("withdrawal rolled back")
		return ErrTransferRolledBack
	}
	s.record(journal.RecordWithdraw, fundsPayload{Owner: caller.Hex(), Amount: amount})
	return nil
}

func (s *ExchangeService) DepositToken(caller ledger.Identity, token string, amount uint64) error {
	if err := s.gate.Require(phase.DepositWithdrawal); err != nil {
		return err
	}
	release, err := s.guards.Acquire(guard.Account)
	if err != nil {
		return err
	}
	defer release()

	if !s.ledger.Exists(caller) {
		return ledger.ErrNoAccount
	}
	if err := s.custodian.PullIn(caller, token, amount); err != nil {
		return err
	}
	if err := s.ledger.AdjustHolding(caller, token, int64(amount)); err != nil {
		return err
	}
	s.record(journal.RecordTokenDeposit, tokenPayload{Owner: caller.Hex(), Token: token, Amount: amount})
	return nil
}

func (s *ExchangeService) WithdrawToken(caller ledger.Identity, token string, amount uint64) error {
	if err := s.gate.Require(phase.DepositWithdrawal); err != nil {
		return err
	}
	release, err := s.guards.Acquire(guard.Account)
	if err != nil {
		return err
	}
	defer release()

	if err := s.ledger.AdjustHolding(caller, token, -int64(amount)); err != nil {
		return err
	}
	if err := s.custodian.PushOut(caller, token, amount); err != nil {
		if rerr := s.ledger.AdjustHolding(caller, token, int64(amount)); rerr != nil {
			s.log.Error().Err(rerr).Str("owner", caller.Hex()).Msg("rollback holding failed")
		}
		return ErrTransferRolledBack
	}
	s.record(journal.RecordTokenWithdraw, tokenPayload{Owner: caller.Hex(), Token: token, Amount: amount})
	return nil
}

//
// ──────────────────────────────────────────────────────────
// Sell side
// ──────────────────────────────────────────────────────────
//

// PlaceSell rests a new offer in the token's book and returns its id.
func (s *ExchangeService) PlaceSell(caller ledger.Identity, token string, price, amount uint64) (uint64, error) {
	if err := s.gate.Require(phase.Offer); err != nil {
		return 0, err
	}
	release, err := s.guards.Acquire(guard.Sell)
	if err != nil {
		return 0, err
	}
	defer release()

	if !s.ledger.Exists(caller) {
		return 0, ledger.ErrNoAccount
	}
	if s.ledger.Holding(caller, token) < amount {
		return 0, ledger.ErrInsufficientHoldings
	}

	id, err := s.sells.Insert(caller, token, price, amount)
	if err != nil {
		return 0, err
	}
	s.record(journal.RecordSell, sellPayload{
		Owner: caller.Hex(), Token: token, Price: price, Amount: amount, ID: id,
	})
	s.emit(OrderCreatedEvent{V: 1, Type: "sell_created", ID: id, Owner: caller.Hex()})
	s.log.Info().Uint64("id", id).Str("token", token).Uint64("price", price).Uint64("amount", amount).Msg("sell placed")
	return id, nil
}

func (s *ExchangeService) ReduceSellPrice(caller ledger.Identity, id, newPrice uint64) error {
	if err := s.gate.Require(phase.Offer); err != nil {
		return err
	}
	release, err := s.guards.Acquire(guard.Sell)
	if err != nil {
		return err
	}
	defer release()

	if err := s.sells.ReducePrice(id, caller, newPrice); err != nil {
		return err
	}
	s.record(journal.RecordReducePrice, reducePayload{Owner: caller.Hex(), ID: id, Price: newPrice})
	return nil
}

func (s *ExchangeService) WithdrawSell(caller ledger.Identity, id uint64) error {
	if err := s.gate.Require(phase.Offer); err != nil {
		return err
	}
	release, err := s.guards.Acquire(guard.Sell)
	if err != nil {
		return err
	}
	defer release()

	if err := s.sells.Remove(id, caller); err != nil {
		return err
	}
	s.record(journal.RecordSellWithdraw, orderRefPayload{Owner: caller.Hex(), ID: id})
	return nil
}

//
// ──────────────────────────────────────────────────────────
// Buy side (blind bids)
// ──────────────────────────────────────────────────────────
//

// PlaceBid submits a sealed commitment to the FIFO queue.
func (s *ExchangeService) PlaceBid(caller ledger.Identity, commitment crypto.Commitment) (uint64, error) {
	return s.placeBid(caller, commitment)
}

// PlaceBidFor submits a sealed bid on behalf of whoever signed the
// commitment; the recovered signer becomes the bid's owner.
func (s *ExchangeService) PlaceBidFor(commitment crypto.Commitment, sig []byte) (uint64, error) {
	owner, err := s.authority.RecoverSigner(commitment[:], sig)
	if err != nil {
		return 0, ErrNotAuthorized
	}
	return s.placeBid(owner, commitment)
}

func (s *ExchangeService) placeBid(owner ledger.Identity, commitment crypto.Commitment) (uint64, error) {
	if err := s.gate.Require(phase.Offer); err != nil {
		return 0, err
	}
	release, err := s.guards.Acquire(guard.Buy)
	if err != nil {
		return 0, err
	}
	defer release()

	if !s.ledger.Exists(owner) {
		return 0, ledger.ErrNoAccount
	}

	id, err := s.buys.SealedInsert(owner, commitment)
	if err != nil {
		return 0, err
	}
	s.record(journal.RecordBid, bidPayload{
		Owner: owner.Hex(), Commitment: hex.EncodeToString(commitment[:]), ID: id,
	})
	s.emit(OrderCreatedEvent{V: 1, Type: "bid_created", ID: id, Owner: owner.Hex()})
	s.log.Info().Uint64("id", id).Str("owner", owner.Hex()).Msg("sealed bid queued")
	return id, nil
}

// RevealBid discloses a bid's terms. The terms must reproduce the
// sealed commitment, and price x amount is reserved against the
// owner's balance before the bid opens.
func (s *ExchangeService) RevealBid(caller ledger.Identity, id uint64, token string, price, amount uint64, nonce crypto.Nonce) error {
	return s.reveal(caller, id, token, price, amount, nonce)
}

// RevealBidFor opens a bid on the owner's behalf. The signature must
// be over the bid's commitment and recover to the bid's owner.
func (s *ExchangeService) RevealBidFor(sig []byte, id uint64, token string, price, amount uint64, nonce crypto.Nonce) error {
	o, ok := s.buys.Get(id)
	if !ok {
		return book.ErrUnknownOrder
	}
	owner, err := s.authority.RecoverSigner(o.Commitment[:], sig)
	if err != nil || owner != o.Owner {
		return ErrNotAuthorized
	}
	return s.reveal(owner, id, token, price, amount, nonce)
}

func (s *ExchangeService) reveal(caller ledger.Identity, id uint64, token string, price, amount uint64, nonce crypto.Nonce) error {
	if err := s.gate.Require(phase.BidOpening); err != nil {
		return err
	}
	releaseBuy, err := s.guards.Acquire(guard.Buy)
	if err != nil {
		return err
	}
	defer releaseBuy()
	releaseAcct, err := s.guards.Acquire(guard.Account)
	if err != nil {
		return err
	}
	defer releaseAcct()

	o, ok := s.buys.Get(id)
	if !ok {
		return book.ErrUnknownOrder
	}
	if o.Owner != caller {
		return book.ErrNotOwner
	}
	if o.Status != book.Sealed {
		return book.ErrBidNotSealed
	}
	if !crypto.Verify(o.Commitment, token, price, amount, nonce) {
		return ErrCommitmentMismatch
	}

	cost, ok := mul(price, amount)
	if !ok {
		return ErrCostOverflow
	}
	if err := s.ledger.Reserve(caller, cost); err != nil {
		return err
	}
	if err := s.buys.OpenBid(id, token, price, amount); err != nil {
		// Undo the reservation; OpenBid on a checked Sealed bid only
		// fails on zero terms, which Verify has already pinned.
		_ = s.ledger.Release(caller, cost)
		return err
	}
	s.record(journal.RecordReveal, revealPayload{
		Owner: caller.Hex(), ID: id, Token: token, Price: price, Amount: amount,
	})
	s.log.Info().Uint64("id", id).Str("token", token).Uint64("price", price).Uint64("amount", amount).Msg("bid opened")
	return nil
}

// WithdrawBid removes a bid. An open bid's reservation is released
// back to the spendable balance first.
func (s *ExchangeService) WithdrawBid(caller ledger.Identity, id uint64) error {
	return s.withdrawBid(caller, id)
}

func (s *ExchangeService) WithdrawBidFor(sig []byte, id uint64) error {
	o, ok := s.buys.Get(id)
	if !ok {
		return book.ErrUnknownOrder
	}
	owner, err := s.authority.RecoverSigner(o.Commitment[:], sig)
	if err != nil || owner != o.Owner {
		return ErrNotAuthorized
	}
	return s.withdrawBid(owner, id)
}

func (s *ExchangeService) withdrawBid(caller ledger.Identity, id uint64) error {
	if err := s.gate.Require(phase.BidOpening); err != nil {
		return err
	}
	releaseBuy, err := s.guards.Acquire(guard.Buy)
	if err != nil {
		return err
	}
	defer releaseBuy()
	releaseAcct, err := s.guards.Acquire(guard.Account)
	if err != nil {
		return err
	}
	defer releaseAcct()

	o, ok := s.buys.Get(id)
	if !ok {
		return book.ErrUnknownOrder
	}
	if o.Owner != caller {
		return book.ErrNotOwner
	}
	if o.Status == book.Open {
		if err := s.ledger.Release(caller, o.Cost()); err != nil {
			return err
		}
	}
	if err := s.buys.Remove(id, caller); err != nil {
		return err
	}
	s.record(journal.RecordBidWithdraw, orderRefPayload{Owner: caller.Hex(), ID: id})
	return nil
}

//
// ──────────────────────────────────────────────────────────
// Matching
// ──────────────────────────────────────────────────────────
//

// RunMatch executes one matching pass under the Global guard and
// returns the settled trades. A consistency error aborts the pass;
// trades settled before the abort stand and are reported.
func (s *ExchangeService) RunMatch(ctx context.Context) ([]match.Trade, error) {
	if err := s.gate.Require(phase.Matching); err != nil {
		return nil, err
	}
	release, err := s.guards.Acquire(guard.Global)
	if err != nil {
		return nil, err
	}
	defer release()

	s.record(journal.RecordMatch, matchPayload{})

	trades, err := s.engine.Run()
	for _, t := range trades {
		s.emit(TradeSettledEvent{
			V: 1, Type: "trade_settled",
			BuyID: t.BuyID, SellID: t.SellID,
			Buyer: t.Buyer.Hex(), Seller: t.Seller.Hex(),
			Token: t.Token, Price: t.Price, Amount: t.Amount,
		})
		if s.ticks != nil {
			tick := kafka.TradeTick{
				Token: t.Token, Price: t.Price, Amount: t.Amount,
				BuyID: t.BuyID, SellID: t.SellID,
			}
			if perr := s.ticks.Publish(ctx, tick); perr != nil {
				s.log.Warn().Err(perr).Msg("trade tick dropped")
			}
		}
	}
	if err != nil {
		s.log.Error().Err(err).Int("settled", len(trades)).Msg("matching pass aborted")
		return trades, err
	}
	s.log.Info().Int("trades", len(trades)).Msg("matching pass complete")
	return trades, nil
}

//
// ──────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────
//

func (s *ExchangeService) Balance(id ledger.Identity) uint64 {
	return s.ledger.Balance(id)
}

func (s *ExchangeService) Reserved(id ledger.Identity) uint64 {
	return s.ledger.Reserved(id)
}

func (s *ExchangeService) Holding(id ledger.Identity, token string) uint64 {
	return s.ledger.Holding(id, token)
}

// Phase reports the currently active phase (lazily recomputed).
func (s *ExchangeService) Phase() phase.Phase {
	return s.gate.Current()
}

//
// ──────────────────────────────────────────────────────────
// Internals
// ──────────────────────────────────────────────────────────
//

// record journals an accepted command. Journal trouble is logged,
// not surfaced: the in-memory state is authoritative for this run.
func (s *ExchangeService) record(t journal.RecordType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Msg("journal payload encode failed")
		return
	}
	if err := s.journal.Append(journal.NewRecord(t, data)); err != nil {
		s.log.Error().Err(err).Msg("journal append failed")
	}
}

func (s *ExchangeService) emit(ev any) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.log.Error().Err(err).Msg("event encode failed")
		return
	}
	if _, err := s.outbox.Append(data); err != nil {
		s.log.Error().Err(err).Msg("outbox append failed")
	}
}

func mul(a, b uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a, b)
	return lo, hi == 0
}
