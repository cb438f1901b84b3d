package crypto

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// Commitment is the sealed form of a bid's terms. The terms and a
// one-time nonce go in; nothing about them can be read back out.
type Commitment [32]byte

// Nonce blinds a commitment. Reuse across bids leaks equality of
// terms, so callers should draw a fresh one per bid.
type Nonce [32]byte

// Seal binds (token, price, amount, nonce) into a commitment.
// Encoding: keccak256(len(token):8 || token || price:8 || amount:8 || nonce).
func Seal(token string, price, amount uint64, nonce Nonce) Commitment {
	h := sha3.NewLegacyKeccak256()

	var u [8]byte
	binary.BigEndian.PutUint64(u[:], uint64(len(token)))
	h.Write(u[:])
	h.Write([]byte(token))
	binary.BigEndian.PutUint64(u[:], price)
	h.Write(u[:])
	binary.BigEndian.PutUint64(u[:], amount)
	h.Write(u[:])
	h.Write(nonce[:])

	var c Commitment
	h.Sum(c[:0])
	return c
}

// Verify reports whether the supplied terms reproduce the commitment.
func Verify(c Commitment, token string, price, amount uint64, nonce Nonce) bool {
	return Seal(token, price, amount, nonce) == c
}
