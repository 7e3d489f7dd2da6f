package nwire

import (
	"bytes"
	"io"
)

// TransferTimeout is sent by the owner of a pending lock to withdraw it
// after giving up on the payment. The receiver removes its copy of the lock;
// if either party disappears instead, the lock simply expires on chain.
type TransferTimeout struct {
	SignedMessage

	// Hashlock identifies the lock being withdrawn.
	Hashlock Hash

	// Echo is the hash of the MediatedTransfer that created the lock.
	Echo Hash
}

// NewTransferTimeout creates a new TransferTimeout message.
func NewTransferTimeout(sender Address, hashlock, echo Hash) *TransferTimeout {
	return &TransferTimeout{
		SignedMessage: SignedMessage{Sender: sender},
		Hashlock:      hashlock,
		Echo:          echo,
	}
}

// A compile time check to ensure TransferTimeout implements the
// nwire.SignedMessager interface.
var _ SignedMessager = (*TransferTimeout)(nil)

// Decode deserializes a serialized TransferTimeout message stored in the
// passed io.Reader observing the specified protocol version.
//
// This is part of the nwire.Message interface.
func (t *TransferTimeout) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&t.Sender,
		&t.Hashlock,
		&t.Echo,
		&t.Signature,
	)
}

// Encode serializes the target TransferTimeout into the passed io.Writer
// observing the protocol version specified.
//
// This is part of the nwire.Message interface.
func (t *TransferTimeout) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		t.Sender,
		t.Hashlock,
		t.Echo,
		t.Signature,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the nwire.Message interface.
func (t *TransferTimeout) MsgType() MessageType {
	return MsgTransferTimeout
}

// MaxPayloadLength returns the maximum allowed payload size for a
// TransferTimeout message observing the specified protocol version.
//
// This is part of the nwire.Message interface.
func (t *TransferTimeout) MaxPayloadLength(uint32) uint32 {
	// 20 + 32 + 32 + 65
	return 149
}

// DataToSign returns the part of the message covered by the signature.
func (t *TransferTimeout) DataToSign() ([]byte, error) {
	var w bytes.Buffer
	err := writeElements(&w,
		t.Sender,
		t.Hashlock,
		t.Echo,
	)
	if err != nil {
		return nil, err
	}

	return w.Bytes(), nil
}
