package service

import (
	"encoding/hex"

	"freyr/domain/ledger"
)

// Journal payloads. Identities travel as hex so the log stays
// greppable.

type ownerPayload struct {
	Owner string `json:"owner"`
}

type fundsPayload struct {
	Owner  string `json:"owner"`
	Amount uint64 `json:"amount"`
}

type tokenPayload struct {
	Owner  string `json:"owner"`
	Token  string `json:"token"`
	Amount uint64 `json:"amount"`
}

type sellPayload struct {
	Owner  string `json:"owner"`
	Token  string `json:"token"`
	Price  uint64 `json:"price"`
	Amount uint64 `json:"amount"`
	ID     uint64 `json:"id"`
}

type reducePayload struct {
	Owner string `json:"owner"`
	ID    uint64 `json:"id"`
	Price uint64 `json:"price"`
}

type orderRefPayload struct {
	Owner string `json:"owner"`
	ID    uint64 `json:"id"`
}

type bidPayload struct {
	Owner      string `json:"owner"`
	Commitment string `json:"commitment"`
	ID         uint64 `json:"id"`
}

type revealPayload struct {
	Owner  string `json:"owner"`
	ID     uint64 `json:"id"`
	Token  string `json:"token"`
	Price  uint64 `json:"price"`
	Amount uint64 `json:"amount"`
}

type matchPayload struct{}

func parseIdentity(s string) (ledger.Identity, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ledger.Identity{}, err
	}
	return ledger.IdentityFromBytes(b), nil
}
