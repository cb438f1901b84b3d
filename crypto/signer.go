package crypto

import (
	"errors"

	"github.com/btcsuite/btcd/btcec"
	"golang.org/x/crypto/sha3"

	"freyr/domain/ledger"
)

var ErrBadSignature = errors.New("crypto: signature does not recover a signer")

// Authority recovers the identity that signed a message. The engine
// consumes this as a capability for third-party bid actions; it never
// verifies identities any other way.
type Authority interface {
	RecoverSigner(message, sig []byte) (ledger.Identity, error)
}

// Secp256k1Authority recovers identities from 65-byte compact
// secp256k1 signatures over the keccak256 digest of the message.
// The identity is the last 20 bytes of keccak256 of the uncompressed
// public key, address-style.
type Secp256k1Authority struct{}

func (Secp256k1Authority) RecoverSigner(message, sig []byte) (ledger.Identity, error) {
	if len(sig) != 65 {
		return ledger.Identity{}, ErrBadSignature
	}
	digest := Digest(message)
	pub, _, err := btcec.RecoverCompact(btcec.S256(), sig, digest)
	if err != nil {
		return ledger.Identity{}, ErrBadSignature
	}
	return IdentityOf(pub), nil
}

// Digest is the message digest the authority signs over.
func Digest(message []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(message)
	return h.Sum(nil)
}

// IdentityOf derives the on-exchange identity of a public key.
func IdentityOf(pub *btcec.PublicKey) ledger.Identity {
	h := sha3.NewLegacyKeccak256()
	h.Write(pub.SerializeUncompressed()[1:])
	sum := h.Sum(nil)
	return ledger.IdentityFromBytes(sum[12:])
}
