package service

import (
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"

	"freyr/domain/book"
	"freyr/infra/journal"
)

/*
ReplayFromJournal rebuilds in-memory state from the command journal.

It MUST run before the service accepts traffic. The phase gate, the
guard, the custodian and the outbox are all bypassed: phase legality
was checked when each command was first accepted, external transfers
already happened, and events were already emitted. Replay re-applies
the pure state transitions and verifies that id allocation lands on
the same ids the live run handed out.
*/
func ReplayFromJournal(dir string, s *ExchangeService) error {
	lastSeq, err := journal.Replay(dir, func(rec *journal.Record) error {
		return s.apply(rec)
	})
	if err != nil {
		return err
	}
	s.journal.ResumeAt(lastSeq)
	s.log.Info().Uint64("last_seq", lastSeq).Msg("journal replay complete")
	return nil
}

func (s *ExchangeService) apply(rec *journal.Record) error {
	switch rec.Type {

	case journal.RecordRegister:
		var p ownerPayload
		if err := decode(rec, &p); err != nil {
			return err
		}
		owner, err := parseIdentity(p.Owner)
		if err != nil {
			return err
		}
		return s.ledger.Register(owner)

	case journal.RecordDeposit, journal.RecordWithdraw:
		var p fundsPayload
		if err := decode(rec, &p); err != nil {
			return err
		}
		owner, err := parseIdentity(p.Owner)
		if err != nil {
			return err
		}
		if rec.Type == journal.RecordDeposit {
			return s.ledger.Credit(owner, p.Amount)
		}
		return s.ledger.Debit(owner, p.Amount)

	case journal.RecordTokenDeposit, journal.RecordTokenWithdraw:
		var p tokenPayload
		if err := decode(rec, &p); err != nil {
			return err
		}
		owner, err := parseIdentity(p.Owner)
		if err != nil {
			return err
		}
		delta := int64(p.Amount)
		if rec.Type == journal.RecordTokenWithdraw {
			delta = -delta
		}
		return s.ledger.AdjustHolding(owner, p.Token, delta)

	case journal.RecordSell:
		var p sellPayload
		if err := decode(rec, &p); err != nil {
			return err
		}
		owner, err := parseIdentity(p.Owner)
		if err != nil {
			return err
		}
		id, err := s.sells.Insert(owner, p.Token, p.Price, p.Amount)
		if err != nil {
			return err
		}
		if id != p.ID {
			return errors.Errorf("replay: sell id drift, got %d want %d", id, p.ID)
		}
		return nil

	case journal.RecordReducePrice:
		var p reducePayload
		if err := decode(rec, &p); err != nil {
			return err
		}
		owner, err := parseIdentity(p.Owner)
		if err != nil {
			return err
		}
		return s.sells.ReducePrice(p.ID, owner, p.Price)

	case journal.RecordSellWithdraw:
		var p orderRefPayload
		if err := decode(rec, &p); err != nil {
			return err
		}
		owner, err := parseIdentity(p.Owner)
		if err != nil {
			return err
		}
		return s.sells.Remove(p.ID, owner)

	case journal.RecordBid:
		var p bidPayload
		if err := decode(rec, &p); err != nil {
			return err
		}
		owner, err := parseIdentity(p.Owner)
		if err != nil {
			return err
		}
		raw, err := hex.DecodeString(p.Commitment)
		if err != nil || len(raw) != 32 {
			return errors.Errorf("replay: bad commitment in seq %d", rec.Seq)
		}
		var c [32]byte
		copy(c[:], raw)
		id, err := s.buys.SealedInsert(owner, c)
		if err != nil {
			return err
		}
		if id != p.ID {
			return errors.Errorf("replay: bid id drift, got %d want %d", id, p.ID)
		}
		return nil

	case journal.RecordReveal:
		var p revealPayload
		if err := decode(rec, &p); err != nil {
			return err
		}
		owner, err := parseIdentity(p.Owner)
		if err != nil {
			return err
		}
		if err := s.ledger.Reserve(owner, p.Price*p.Amount); err != nil {
			return err
		}
		return s.buys.OpenBid(p.ID, p.Token, p.Price, p.Amount)

	case journal.RecordBidWithdraw:
		var p orderRefPayload
		if err := decode(rec, &p); err != nil {
			return err
		}
		owner, err := parseIdentity(p.Owner)
		if err != nil {
			return err
		}
		if o, ok := s.buys.Get(p.ID); ok && o.Status == book.Open {
			if err := s.ledger.Release(owner, o.Cost()); err != nil {
				return err
			}
		}
		return s.buys.Remove(p.ID, owner)

	case journal.RecordMatch:
		_, err := s.engine.Run()
		return err

	default:
		return errors.Errorf("replay: unknown record type %d at seq %d", rec.Type, rec.Seq)
	}
}

func decode(rec *journal.Record, v any) error {
	return errors.Wrapf(json.Unmarshal(rec.Data, v), "replay: seq %d", rec.Seq)
}
