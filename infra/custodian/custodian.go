package custodian

import (
	"github.com/pkg/errors"

	"freyr/domain/ledger"
)

// BaseAsset names the base currency for custodian transfers; every
// other asset string is a token identifier.
const BaseAsset = "BASE"

var ErrTransfer = errors.New("custodian: transfer refused")

// Custodian moves assets between the outside world and the exchange.
// The engine treats it as a capability: a PullIn that succeeded means
// the asset is now in custody, a PushOut that failed means nothing
// left custody and the caller must roll back its own books.
type Custodian interface {
	PullIn(id ledger.Identity, asset string, amount uint64) error
	PushOut(id ledger.Identity, asset string, amount uint64) error
}

// Vault is the in-process custodian used by tests and single-node
// runs: a plain map of external holdings per identity.
type Vault struct {
	held map[ledger.Identity]map[string]uint64
}

func NewVault() *Vault {
	return &Vault{
		held: make(map[ledger.Identity]map[string]uint64),
	}
}

// Fund seeds external holdings, standing in for whatever acquired
// the assets outside the exchange.
func (v *Vault) Fund(id ledger.Identity, asset string, amount uint64) {
	m, ok := v.held[id]
	if !ok {
		m = make(map[string]uint64)
		v.held[id] = m
	}
	m[asset] += amount
}

// External reports holdings still outside the exchange.
func (v *Vault) External(id ledger.Identity, asset string) uint64 {
	return v.held[id][asset]
}

func (v *Vault) PullIn(id ledger.Identity, asset string, amount uint64) error {
	m := v.held[id]
	if m[asset] < amount {
		return errors.Wrapf(ErrTransfer, "pull %d %s for %s", amount, asset, id.Hex())
	}
	if amount > 0 {
		m[asset] -= amount
	}
	return nil
}

func (v *Vault) PushOut(id ledger.Identity, asset string, amount uint64) error {
	m, ok := v.held[id]
	if !ok {
		m = make(map[string]uint64)
		v.held[id] = m
	}
	m[asset] += amount
	return nil
}
