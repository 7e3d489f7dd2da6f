package nwire

import (
	"bytes"
	"io"
)

// CancelTransfer is sent upstream by a hop that cannot forward a mediated
// transfer, after it has dropped its copy of the pending lock. The lock's
// owner removes its copy and is free to retry the payment over another
// route.
type CancelTransfer struct {
	SignedMessage

	// Hashlock identifies the payment being refused.
	Hashlock Hash
}

// NewCancelTransfer creates a new CancelTransfer message.
func NewCancelTransfer(sender Address, hashlock Hash) *CancelTransfer {
	return &CancelTransfer{
		SignedMessage: SignedMessage{Sender: sender},
		Hashlock:      hashlock,
	}
}

// A compile time check to ensure CancelTransfer implements the
// nwire.SignedMessager interface.
var _ SignedMessager = (*CancelTransfer)(nil)

// Decode deserializes a serialized CancelTransfer message stored in the
// passed io.Reader observing the specified protocol version.
//
// This is part of the nwire.Message interface.
func (c *CancelTransfer) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&c.Sender,
		&c.Hashlock,
		&c.Signature,
	)
}

// Encode serializes the target CancelTransfer into the passed io.Writer
// observing the protocol version specified.
//
// This is part of the nwire.Message interface.
func (c *CancelTransfer) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		c.Sender,
		c.Hashlock,
		c.Signature,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the nwire.Message interface.
func (c *CancelTransfer) MsgType() MessageType {
	return MsgCancelTransfer
}

// MaxPayloadLength returns the maximum allowed payload size for a
// CancelTransfer message observing the specified protocol version.
//
// This is part of the nwire.Message interface.
func (c *CancelTransfer) MaxPayloadLength(uint32) uint32 {
	// 20 + 32 + 65
	return 117
}

// DataToSign returns the part of the message covered by the signature.
func (c *CancelTransfer) DataToSign() ([]byte, error) {
	var w bytes.Buffer
	err := writeElements(&w,
		c.Sender,
		c.Hashlock,
	)
	if err != nil {
		return nil, err
	}

	return w.Bytes(), nil
}
