package ledger

import "encoding/hex"

// Identity is a 20-byte account address. The engine never derives
// or authenticates identities itself; the hosting environment (or
// the signature authority, for third-party actions) supplies them.
type Identity [20]byte

func (id Identity) Hex() string {
	return hex.EncodeToString(id[:])
}

func (id Identity) Zero() bool {
	return id == Identity{}
}

// IdentityFromBytes copies up to 20 bytes into an Identity.
func IdentityFromBytes(b []byte) Identity {
	var id Identity
	copy(id[:], b)
	return id
}
