package nwire

// code derived from https://github.com/btcsuite/btcd/blob/master/wire/message.go

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxMessagePayload is the maximum bytes a message can be regardless of other
// individual limits imposed by messages themselves. It matches the maximum
// frame the datagram transport will carry.
const MaxMessagePayload = 65535 // 64KB

// MessageType is the unique 2 byte big-endian integer that indicates the type
// of message on the wire. All messages have a very simple header consisting
// simply of the 2-byte message type; authenticity is provided per message by
// a recoverable signature rather than by the framing layer.
type MessageType uint16

// The currently defined message types within this version of the netting
// channel protocol.
const (
	MsgPing             MessageType = 1
	MsgAck                          = 2
	MsgDirectTransfer               = 5
	MsgMediatedTransfer             = 7
	MsgSecretRequest                = 9
	MsgSecret                       = 10
	MsgTransferTimeout              = 11
	MsgCancelTransfer               = 12
	MsgRejectTransfer               = 13
)

// UnknownMessage is an implementation of the error interface that allows the
// creation of an error in response to an unknown message.
type UnknownMessage struct {
	messageType MessageType
}

// Error returns a human readable string describing the error.
//
// This is part of the error interface.
func (u *UnknownMessage) Error() string {
	return fmt.Sprintf("unable to parse message of unknown type: %v",
		u.messageType)
}

// Message is an interface that defines a netting channel wire protocol
// message. The interface is general in order to allow implementing types
// full control over the representation of their data.
type Message interface {
	Decode(io.Reader, uint32) error
	Encode(io.Writer, uint32) error
	MsgType() MessageType
	MaxPayloadLength(uint32) uint32
}

// makeEmptyMessage creates a new empty message of the proper concrete type
// based on the passed message type.
func makeEmptyMessage(msgType MessageType) (Message, error) {
	var msg Message

	switch msgType {
	case MsgPing:
		msg = &Ping{}
	case MsgAck:
		msg = &Ack{}
	case MsgDirectTransfer:
		msg = &DirectTransfer{}
	case MsgMediatedTransfer:
		msg = &MediatedTransfer{}
	case MsgSecretRequest:
		msg = &SecretRequest{}
	case MsgSecret:
		msg = &Secret{}
	case MsgTransferTimeout:
		msg = &TransferTimeout{}
	case MsgCancelTransfer:
		msg = &CancelTransfer{}
	case MsgRejectTransfer:
		msg = &RejectTransfer{}
	default:
		return nil, &UnknownMessage{msgType}
	}

	return msg, nil
}

// WriteMessage writes a Message to w including the necessary header
// information and returns the number of bytes written.
func WriteMessage(w io.Writer, msg Message, pver uint32) (int, error) {
	totalBytes := 0

	// Encode the message payload itself into a temporary buffer.
	var bw bytes.Buffer
	if err := msg.Encode(&bw, pver); err != nil {
		return totalBytes, err
	}
	payload := bw.Bytes()
	lenp := len(payload)

	// Enforce maximum overall message payload.
	if lenp > MaxMessagePayload {
		return totalBytes, fmt.Errorf("message payload is too large - "+
			"encoded %d bytes, but maximum message payload is %d bytes",
			lenp, MaxMessagePayload)
	}

	// Enforce maximum message payload on the message type.
	mpl := msg.MaxPayloadLength(pver)
	if uint32(lenp) > mpl {
		return totalBytes, fmt.Errorf("message payload is too large - "+
			"encoded %d bytes, but maximum message payload of "+
			"type %x is %d bytes", lenp, msg.MsgType(), mpl)
	}

	// With the initial sanity checks complete, we'll now write out the
	// message type itself.
	var mType [2]byte
	binary.BigEndian.PutUint16(mType[:], uint16(msg.MsgType()))
	n, err := w.Write(mType[:])
	totalBytes += n
	if err != nil {
		return totalBytes, err
	}

	// With the message type written, we'll now write out the raw payload
	// itself.
	n, err = w.Write(payload)
	totalBytes += n

	return totalBytes, err
}

// ReadMessage reads, validates, and parses the next message from r for the
// provided protocol version.
func ReadMessage(r io.Reader, pver uint32) (Message, error) {
	// First, we'll read out the first two bytes of the message so we can
	// create the proper empty message.
	var mType [2]byte
	if _, err := io.ReadFull(r, mType[:]); err != nil {
		return nil, err
	}

	msgType := MessageType(binary.BigEndian.Uint16(mType[:]))

	// Now that we know the target message type, we can create the proper
	// empty message type and decode the message into it.
	msg, err := makeEmptyMessage(msgType)
	if err != nil {
		return nil, err
	}
	if err := msg.Decode(r, pver); err != nil {
		return nil, err
	}

	return msg, nil
}

// SerializeMessage returns the full wire serialization of the message,
// header included.
func SerializeMessage(msg Message) ([]byte, error) {
	var b bytes.Buffer
	if _, err := WriteMessage(&b, msg, 0); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// DecodeMessage parses a single message out of the passed raw frame.
func DecodeMessage(frame []byte) (Message, error) {
	return ReadMessage(bytes.NewReader(frame), 0)
}
