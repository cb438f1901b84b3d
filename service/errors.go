package service

import "errors"

var (
	// ErrCommitmentMismatch: the revealed terms do not reproduce the
	// sealed commitment. The bid stays Sealed and nothing is reserved.
	ErrCommitmentMismatch = errors.New("service: revealed terms do not match commitment")

	// ErrNotAuthorized: a third-party signature does not recover to
	// the bid's owner.
	ErrNotAuthorized = errors.New("service: signature does not authorize this action")

	// ErrCostOverflow: price x amount exceeds the currency range.
	ErrCostOverflow = errors.New("service: bid cost overflows")

	// ErrTransferRolledBack: the custodian refused the external leg;
	// internal state has been restored.
	ErrTransferRolledBack = errors.New("service: external transfer failed, state rolled back")
)
