package nwire

import (
	"bytes"
	"io"
)

// DirectTransfer is an immediately final balance update between direct
// channel partners. TransferredAmount is the cumulative total sent by the
// sender over the channel's lifetime, so replaying or reordering a
// DirectTransfer cannot double-spend: the receiver credits only the delta
// above its last accepted total.
type DirectTransfer struct {
	SignedMessage

	// Nonce is the strictly increasing per-sender message counter within
	// the channel.
	Nonce uint64

	// Asset identifies the token network the channel belongs to.
	Asset AssetID

	// Recipient is the channel partner being credited.
	Recipient Address

	// TransferredAmount is the new cumulative total sent from the sender's
	// side of the channel.
	TransferredAmount Amount

	// Locksroot is the sender's Merkle root over its pending locks. A
	// DirectTransfer changes no locks, so the receiver checks it against
	// the root it already holds for the sender.
	Locksroot Hash
}

// NewDirectTransfer creates a new DirectTransfer message.
func NewDirectTransfer(sender Address, nonce uint64, asset AssetID,
	recipient Address, transferred Amount, locksroot Hash) *DirectTransfer {

	return &DirectTransfer{
		SignedMessage:     SignedMessage{Sender: sender},
		Nonce:             nonce,
		Asset:             asset,
		Recipient:         recipient,
		TransferredAmount: transferred,
		Locksroot:         locksroot,
	}
}

// A compile time check to ensure DirectTransfer implements the
// nwire.SignedMessager interface.
var _ SignedMessager = (*DirectTransfer)(nil)

// Decode deserializes a serialized DirectTransfer message stored in the
// passed io.Reader observing the specified protocol version.
//
// This is part of the nwire.Message interface.
func (t *DirectTransfer) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&t.Sender,
		&t.Nonce,
		&t.Asset,
		&t.Recipient,
		&t.TransferredAmount,
		&t.Locksroot,
		&t.Signature,
	)
}

// Encode serializes the target DirectTransfer into the passed io.Writer
// observing the protocol version specified.
//
// This is part of the nwire.Message interface.
func (t *DirectTransfer) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		t.Sender,
		t.Nonce,
		t.Asset,
		t.Recipient,
		t.TransferredAmount,
		t.Locksroot,
		t.Signature,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the nwire.Message interface.
func (t *DirectTransfer) MsgType() MessageType {
	return MsgDirectTransfer
}

// MaxPayloadLength returns the maximum allowed payload size for a
// DirectTransfer message observing the specified protocol version.
//
// This is part of the nwire.Message interface.
func (t *DirectTransfer) MaxPayloadLength(uint32) uint32 {
	// 20 + 8 + 20 + 20 + 8 + 32 + 65
	return 173
}

// DataToSign returns the part of the message covered by the signature.
func (t *DirectTransfer) DataToSign() ([]byte, error) {
	var w bytes.Buffer
	err := writeElements(&w,
		t.Sender,
		t.Nonce,
		t.Asset,
		t.Recipient,
		t.TransferredAmount,
		t.Locksroot,
	)
	if err != nil {
		return nil, err
	}

	return w.Bytes(), nil
}
