package nwire

import "io"

// Ack acknowledges receipt and successful processing of a previously sent
// message, identified by the echo hash of its full serialization. Acks are
// the only unsigned messages: they are cheap to forge but forging one only
// stops a retransmission the attacker could as well have dropped.
type Ack struct {
	// Sender is the address of the acknowledging node.
	Sender Address

	// Echo is the hash of the message being acknowledged.
	Echo Hash
}

// NewAck creates a new Ack message.
func NewAck(sender Address, echo Hash) *Ack {
	return &Ack{
		Sender: sender,
		Echo:   echo,
	}
}

// A compile time check to ensure Ack implements the nwire.Message interface.
var _ Message = (*Ack)(nil)

// Decode deserializes a serialized Ack message stored in the passed
// io.Reader observing the specified protocol version.
//
// This is part of the nwire.Message interface.
func (a *Ack) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&a.Sender,
		&a.Echo,
	)
}

// Encode serializes the target Ack into the passed io.Writer observing the
// protocol version specified.
//
// This is part of the nwire.Message interface.
func (a *Ack) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		a.Sender,
		a.Echo,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the nwire.Message interface.
func (a *Ack) MsgType() MessageType {
	return MsgAck
}

// MaxPayloadLength returns the maximum allowed payload size for an Ack
// message observing the specified protocol version.
//
// This is part of the nwire.Message interface.
func (a *Ack) MaxPayloadLength(uint32) uint32 {
	// 20 + 32
	return 52
}
