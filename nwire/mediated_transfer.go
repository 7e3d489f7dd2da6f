package nwire

import (
	"bytes"
	"io"
)

// MediatedTransfer adds a hash-time lock to a channel as one hop of a
// multi-hop payment from Initiator to Target. The locked amount becomes
// spendable by the recipient only once the secret matching the lock's
// hashlock is revealed; until then the sender's balance carries the lock.
//
// Expirations must strictly decrease from hop to hop by at least the
// receiving channel's reveal timeout, so a revealed secret can always be
// propagated back before any upstream lock expires.
type MediatedTransfer struct {
	SignedMessage

	// Nonce is the strictly increasing per-sender message counter within
	// the channel.
	Nonce uint64

	// Asset identifies the token network the payment moves through.
	Asset AssetID

	// Recipient is the next hop receiving the lock.
	Recipient Address

	// TransferredAmount is the sender's cumulative transferred total. A
	// MediatedTransfer leaves it unchanged; value moves into the lock.
	TransferredAmount Amount

	// Locksroot is the sender's Merkle root over its pending locks with
	// the new lock appended.
	Locksroot Hash

	// Target is the final recipient of the payment.
	Target Address

	// Initiator is the node that originated the payment and knows the
	// secret.
	Initiator Address

	// Lock is the hash-time lock being added.
	Lock Lock

	// Fee is the aggregate mediation fee available to the remaining hops.
	// Mediation is currently unpaid, so local nodes always set it to zero,
	// but the field is carried for interoperability.
	Fee Amount
}

// NewMediatedTransfer creates a new MediatedTransfer message.
func NewMediatedTransfer(sender Address, nonce uint64, asset AssetID,
	recipient Address, transferred Amount, locksroot Hash,
	target, initiator Address, lock Lock, fee Amount) *MediatedTransfer {

	return &MediatedTransfer{
		SignedMessage:     SignedMessage{Sender: sender},
		Nonce:             nonce,
		Asset:             asset,
		Recipient:         recipient,
		TransferredAmount: transferred,
		Locksroot:         locksroot,
		Target:            target,
		Initiator:         initiator,
		Lock:              lock,
		Fee:               fee,
	}
}

// A compile time check to ensure MediatedTransfer implements the
// nwire.SignedMessager interface.
var _ SignedMessager = (*MediatedTransfer)(nil)

// Decode deserializes a serialized MediatedTransfer message stored in the
// passed io.Reader observing the specified protocol version.
//
// This is part of the nwire.Message interface.
func (t *MediatedTransfer) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&t.Sender,
		&t.Nonce,
		&t.Asset,
		&t.Recipient,
		&t.TransferredAmount,
		&t.Locksroot,
		&t.Target,
		&t.Initiator,
		&t.Lock,
		&t.Fee,
		&t.Signature,
	)
}

// Encode serializes the target MediatedTransfer into the passed io.Writer
// observing the protocol version specified.
//
// This is part of the nwire.Message interface.
func (t *MediatedTransfer) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		t.Sender,
		t.Nonce,
		t.Asset,
		t.Recipient,
		t.TransferredAmount,
		t.Locksroot,
		t.Target,
		t.Initiator,
		t.Lock,
		t.Fee,
		t.Signature,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the nwire.Message interface.
func (t *MediatedTransfer) MsgType() MessageType {
	return MsgMediatedTransfer
}

// MaxPayloadLength returns the maximum allowed payload size for a
// MediatedTransfer message observing the specified protocol version.
//
// This is part of the nwire.Message interface.
func (t *MediatedTransfer) MaxPayloadLength(uint32) uint32 {
	// 20 + 8 + 20 + 20 + 8 + 32 + 20 + 20 + 48 + 8 + 65
	return 269
}

// DataToSign returns the part of the message covered by the signature.
func (t *MediatedTransfer) DataToSign() ([]byte, error) {
	var w bytes.Buffer
	err := writeElements(&w,
		t.Sender,
		t.Nonce,
		t.Asset,
		t.Recipient,
		t.TransferredAmount,
		t.Locksroot,
		t.Target,
		t.Initiator,
		t.Lock,
		t.Fee,
	)
	if err != nil {
		return nil, err
	}

	return w.Bytes(), nil
}
