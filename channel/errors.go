package channel

import "errors"

var (
	// ErrNonceMismatch is returned when a balance-updating message does
	// not carry the next expected nonce for its side of the channel.
	ErrNonceMismatch = errors.New("message nonce out of sequence")

	// ErrInsufficientBalance is returned when applying a transfer would
	// drive the sender's available balance negative.
	ErrInsufficientBalance = errors.New("insufficient distributable balance")

	// ErrInvalidLocksRoot is returned when the locksroot carried by a
	// message does not match the root recomputable from the receiver's
	// view of the sender's pending locks.
	ErrInvalidLocksRoot = errors.New("locksroot mismatch")

	// ErrUnknownLock is returned when a message references a hashlock
	// that has no pending lock on the relevant side of the channel.
	ErrUnknownLock = errors.New("no pending lock for hashlock")

	// ErrDuplicateLock is returned when a mediated transfer reuses a
	// hashlock that is already pending on the sender's side.
	ErrDuplicateLock = errors.New("hashlock already pending")

	// ErrExpiredLock is returned when a lock's expiration has already
	// passed at the current block.
	ErrExpiredLock = errors.New("lock already expired")

	// ErrLockExpirationTooSoon is returned when a lock does not leave the
	// receiver at least the channel's reveal timeout to act on a revealed
	// secret.
	ErrLockExpirationTooSoon = errors.New("lock expires within reveal timeout")

	// ErrChannelClosed is returned for any state-changing operation
	// attempted after the channel left the opened state.
	ErrChannelClosed = errors.New("channel is not open")

	// ErrInvalidAmount is returned for zero amounts and for transferred
	// totals that do not move forward consistently.
	ErrInvalidAmount = errors.New("invalid transfer amount")

	// ErrUnknownSender is returned when a message's sender is neither of
	// the channel's participants.
	ErrUnknownSender = errors.New("sender is not a channel participant")

	// ErrWrongAsset is returned when a message names a different asset
	// than the channel carries.
	ErrWrongAsset = errors.New("message asset does not match channel")

	// ErrUnknownMessageType is returned when RegisterTransfer is handed a
	// message kind that does not update channel balances.
	ErrUnknownMessageType = errors.New("message does not update channel state")
)
