package nnd

import "errors"

var (
	// ErrInvalidAddress is returned for malformed target addresses and
	// for assets or partners this node does not know.
	ErrInvalidAddress = errors.New("invalid or unknown address")

	// ErrInvalidAmount is returned for zero transfer amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrNoPath is returned when the channel graph offers no route to the
	// target, or when every candidate route has been exhausted.
	ErrNoPath = errors.New("no path to target")

	// ErrTransferTimeout is returned when no secret request arrived
	// within the payment's deadline and the pending lock was withdrawn.
	ErrTransferTimeout = errors.New("transfer timed out")

	// ErrDuplicateTransfer is returned when a second transfer task would
	// be created for a hashlock already in flight.
	ErrDuplicateTransfer = errors.New("transfer already in flight for hashlock")

	// ErrServiceShutdown is returned when an operation is interrupted by
	// the node stopping.
	ErrServiceShutdown = errors.New("service shutting down")
)
