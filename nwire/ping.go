package nwire

import (
	"bytes"
	"io"
)

// Ping is sent to probe the liveness of a peer. The receiver acknowledges it
// like any other signed message; no other state is affected.
type Ping struct {
	SignedMessage

	// Nonce distinguishes concurrent pings so each elicits a distinct
	// acknowledgement.
	Nonce uint64
}

// NewPing creates a new Ping message.
func NewPing(sender Address, nonce uint64) *Ping {
	return &Ping{
		SignedMessage: SignedMessage{Sender: sender},
		Nonce:         nonce,
	}
}

// A compile time check to ensure Ping implements the nwire.SignedMessager
// interface.
var _ SignedMessager = (*Ping)(nil)

// Decode deserializes a serialized Ping message stored in the passed
// io.Reader observing the specified protocol version.
//
// This is part of the nwire.Message interface.
func (p *Ping) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&p.Sender,
		&p.Nonce,
		&p.Signature,
	)
}

// Encode serializes the target Ping into the passed io.Writer observing the
// protocol version specified.
//
// This is part of the nwire.Message interface.
func (p *Ping) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		p.Sender,
		p.Nonce,
		p.Signature,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the nwire.Message interface.
func (p *Ping) MsgType() MessageType {
	return MsgPing
}

// MaxPayloadLength returns the maximum allowed payload size for a Ping
// message observing the specified protocol version.
//
// This is part of the nwire.Message interface.
func (p *Ping) MaxPayloadLength(uint32) uint32 {
	// 20 + 8 + 65
	return 93
}

// DataToSign returns the part of the message covered by the signature.
func (p *Ping) DataToSign() ([]byte, error) {
	var w bytes.Buffer
	err := writeElements(&w,
		p.Sender,
		p.Nonce,
	)
	if err != nil {
		return nil, err
	}

	return w.Bytes(), nil
}
