package nwire

import (
	"bytes"
	"io"
)

// RejectReason encodes why a received message was refused by the remote
// node's channel state machine.
type RejectReason uint16

// The defined rejection reason codes. They mirror the channel state
// machine's validation failures.
const (
	RejectUnknown RejectReason = iota
	RejectNonceMismatch
	RejectInsufficientBalance
	RejectInvalidLocksroot
	RejectUnknownLock
	RejectExpiredLock
	RejectChannelClosed
	RejectNoRoute
)

// String returns a human readable description of the reason code.
func (r RejectReason) String() string {
	switch r {
	case RejectNonceMismatch:
		return "nonce mismatch"
	case RejectInsufficientBalance:
		return "insufficient balance"
	case RejectInvalidLocksroot:
		return "invalid locksroot"
	case RejectUnknownLock:
		return "unknown lock"
	case RejectExpiredLock:
		return "expired lock"
	case RejectChannelClosed:
		return "channel closed"
	case RejectNoRoute:
		return "no route"
	default:
		return "unknown"
	}
}

// RejectTransfer is the negative acknowledgement: it reports that the
// message identified by Echo was received but refused for the carried
// reason. Like an Ack it stops the sender's retransmission; unlike an Ack it
// surfaces an error to the sending subsystem.
type RejectTransfer struct {
	SignedMessage

	// Echo is the hash of the refused message.
	Echo Hash

	// Reason describes the refusal.
	Reason RejectReason
}

// NewRejectTransfer creates a new RejectTransfer message.
func NewRejectTransfer(sender Address, echo Hash,
	reason RejectReason) *RejectTransfer {

	return &RejectTransfer{
		SignedMessage: SignedMessage{Sender: sender},
		Echo:          echo,
		Reason:        reason,
	}
}

// A compile time check to ensure RejectTransfer implements the
// nwire.SignedMessager interface.
var _ SignedMessager = (*RejectTransfer)(nil)

// Decode deserializes a serialized RejectTransfer message stored in the
// passed io.Reader observing the specified protocol version.
//
// This is part of the nwire.Message interface.
func (t *RejectTransfer) Decode(r io.Reader, pver uint32) error {
	var reason uint16
	err := readElements(r,
		&t.Sender,
		&t.Echo,
		&reason,
		&t.Signature,
	)
	if err != nil {
		return err
	}

	t.Reason = RejectReason(reason)
	return nil
}

// Encode serializes the target RejectTransfer into the passed io.Writer
// observing the protocol version specified.
//
// This is part of the nwire.Message interface.
func (t *RejectTransfer) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		t.Sender,
		t.Echo,
		uint16(t.Reason),
		t.Signature,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the nwire.Message interface.
func (t *RejectTransfer) MsgType() MessageType {
	return MsgRejectTransfer
}

// MaxPayloadLength returns the maximum allowed payload size for a
// RejectTransfer message observing the specified protocol version.
//
// This is part of the nwire.Message interface.
func (t *RejectTransfer) MaxPayloadLength(uint32) uint32 {
	// 20 + 32 + 2 + 65
	return 119
}

// DataToSign returns the part of the message covered by the signature.
func (t *RejectTransfer) DataToSign() ([]byte, error) {
	var w bytes.Buffer
	err := writeElements(&w,
		t.Sender,
		t.Echo,
		uint16(t.Reason),
	)
	if err != nil {
		return nil, err
	}

	return w.Bytes(), nil
}
