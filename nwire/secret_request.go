package nwire

import (
	"bytes"
	"io"
)

// SecretRequest is sent by a payment's target back to its initiator once the
// final lock has been registered, asking the initiator to reveal the secret.
// The request is authenticated by the hashlock: only the real target can
// know it before the secret circulates.
type SecretRequest struct {
	SignedMessage

	// Hashlock identifies the payment whose secret is requested.
	Hashlock Hash
}

// NewSecretRequest creates a new SecretRequest message.
func NewSecretRequest(sender Address, hashlock Hash) *SecretRequest {
	return &SecretRequest{
		SignedMessage: SignedMessage{Sender: sender},
		Hashlock:      hashlock,
	}
}

// A compile time check to ensure SecretRequest implements the
// nwire.SignedMessager interface.
var _ SignedMessager = (*SecretRequest)(nil)

// Decode deserializes a serialized SecretRequest message stored in the
// passed io.Reader observing the specified protocol version.
//
// This is part of the nwire.Message interface.
func (s *SecretRequest) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&s.Sender,
		&s.Hashlock,
		&s.Signature,
	)
}

// Encode serializes the target SecretRequest into the passed io.Writer
// observing the protocol version specified.
//
// This is part of the nwire.Message interface.
func (s *SecretRequest) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		s.Sender,
		s.Hashlock,
		s.Signature,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the nwire.Message interface.
func (s *SecretRequest) MsgType() MessageType {
	return MsgSecretRequest
}

// MaxPayloadLength returns the maximum allowed payload size for a
// SecretRequest message observing the specified protocol version.
//
// This is part of the nwire.Message interface.
func (s *SecretRequest) MaxPayloadLength(uint32) uint32 {
	// 20 + 32 + 65
	return 117
}

// DataToSign returns the part of the message covered by the signature.
func (s *SecretRequest) DataToSign() ([]byte, error) {
	var w bytes.Buffer
	err := writeElements(&w,
		s.Sender,
		s.Hashlock,
	)
	if err != nil {
		return nil, err
	}

	return w.Bytes(), nil
}
