package nwire

import (
	"bytes"
	"io"
)

// Secret reveals the preimage that unlocks every pending lock keyed by its
// hashlock. It propagates from the initiator along the payment path toward
// the target; each node that sees it settles the matching locks on its
// channels.
type Secret struct {
	SignedMessage

	// Secret is the 32-byte preimage.
	Secret Hash
}

// NewSecret creates a new Secret message.
func NewSecret(sender Address, secret Hash) *Secret {
	return &Secret{
		SignedMessage: SignedMessage{Sender: sender},
		Secret:        secret,
	}
}

// A compile time check to ensure Secret implements the nwire.SignedMessager
// interface.
var _ SignedMessager = (*Secret)(nil)

// Hashlock returns the hashlock guarded by this secret.
func (s *Secret) Hashlock() Hash {
	return HashSecret(s.Secret)
}

// Decode deserializes a serialized Secret message stored in the passed
// io.Reader observing the specified protocol version.
//
// This is part of the nwire.Message interface.
func (s *Secret) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&s.Sender,
		&s.Secret,
		&s.Signature,
	)
}

// Encode serializes the target Secret into the passed io.Writer observing
// the protocol version specified.
//
// This is part of the nwire.Message interface.
func (s *Secret) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		s.Sender,
		s.Secret,
		s.Signature,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the nwire.Message interface.
func (s *Secret) MsgType() MessageType {
	return MsgSecret
}

// MaxPayloadLength returns the maximum allowed payload size for a Secret
// message observing the specified protocol version.
//
// This is part of the nwire.Message interface.
func (s *Secret) MaxPayloadLength(uint32) uint32 {
	// 20 + 32 + 65
	return 117
}

// DataToSign returns the part of the message covered by the signature.
func (s *Secret) DataToSign() ([]byte, error) {
	var w bytes.Buffer
	err := writeElements(&w,
		s.Sender,
		s.Secret,
	)
	if err != nil {
		return nil, err
	}

	return w.Bytes(), nil
}
