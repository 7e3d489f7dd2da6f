package nwire

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/go-errors/errors"

	"github.com/nettingnetwork/nnd/crypto"
)

// ErrInvalidSignature is returned when a message signature does not recover
// to the message's declared sender.
var ErrInvalidSignature = errors.New("signature does not match sender")

// SignedMessage carries the fields shared by every authenticated wire
// message: the declared sender and the recoverable signature over the
// message's remaining fields. Concrete messages embed it.
type SignedMessage struct {
	// Sender is the address of the node that produced the message. The
	// signature must recover to exactly this address.
	Sender Address

	// Signature is a compact recoverable signature over the Keccak-256
	// digest of the message's canonical serialization with this field
	// omitted.
	Signature Signature
}

// GetSender returns the message's declared sender.
func (m *SignedMessage) GetSender() Address {
	return m.Sender
}

// GetSignature returns the message's signature.
func (m *SignedMessage) GetSignature() Signature {
	return m.Signature
}

// SetSignature attaches the passed signature to the message.
func (m *SignedMessage) SetSignature(sig Signature) {
	m.Signature = sig
}

// SignedMessager is implemented by every wire message that is authenticated
// by a sender signature. DataToSign returns the canonical serialization of
// the message without the signature field.
type SignedMessager interface {
	Message

	DataToSign() ([]byte, error)
	GetSender() Address
	GetSignature() Signature
	SetSignature(Signature)
}

// SignMessage signs the message with the passed identity key and attaches
// the resulting signature.
func SignMessage(priv *btcec.PrivateKey, msg SignedMessager) error {
	data, err := msg.DataToSign()
	if err != nil {
		return err
	}

	sig, err := crypto.SignCompact(priv, crypto.Keccak256(data))
	if err != nil {
		return err
	}

	msg.SetSignature(Signature(sig))
	return nil
}

// VerifyMessage recovers the signer of the message and checks it against the
// declared sender, returning the authenticated sender address.
func VerifyMessage(msg SignedMessager) (Address, error) {
	data, err := msg.DataToSign()
	if err != nil {
		return Address{}, err
	}

	signer, err := crypto.RecoverAddress(
		[crypto.SignatureSize]byte(msg.GetSignature()),
		crypto.Keccak256(data),
	)
	if err != nil {
		return Address{}, err
	}

	if Address(signer) != msg.GetSender() {
		return Address{}, ErrInvalidSignature
	}

	return msg.GetSender(), nil
}

// EchoHash computes the identifier a receiver acknowledges: the Keccak-256
// digest of the message's full serialization, signature included.
func EchoHash(msg Message) (Hash, error) {
	raw, err := SerializeMessage(msg)
	if err != nil {
		return Hash{}, err
	}

	return Hash(crypto.Keccak256(raw)), nil
}

// HashSecret computes the hashlock guarding the passed secret.
func HashSecret(secret Hash) Hash {
	return Hash(crypto.Keccak256(secret[:]))
}
