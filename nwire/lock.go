package nwire

import (
	"bytes"
	"io"
)

// LockSize is the length in bytes of a serialized Lock.
const LockSize = 8 + 8 + 32

// Lock is a conditional payment pending within a channel: Amount token units
// claimable by whoever learns the preimage of Hashlock before the absolute
// block height Expiration.
type Lock struct {
	// Amount is the number of token units locked.
	Amount Amount

	// Expiration is the absolute block number after which the lock can no
	// longer be claimed.
	Expiration uint64

	// Hashlock is the Keccak-256 digest of the secret that unlocks the
	// payment.
	Hashlock Hash
}

// NewLock creates a new Lock.
func NewLock(amount Amount, expiration uint64, hashlock Hash) *Lock {
	return &Lock{
		Amount:     amount,
		Expiration: expiration,
		Hashlock:   hashlock,
	}
}

// Encode serializes the lock in its canonical form. The same bytes are used
// on the wire and as the Merkle leaf preimage.
func (l *Lock) Encode(w io.Writer) error {
	return writeElements(w,
		l.Amount,
		l.Expiration,
		l.Hashlock,
	)
}

// Decode deserializes a lock from the passed reader.
func (l *Lock) Decode(r io.Reader) error {
	return readElements(r,
		&l.Amount,
		&l.Expiration,
		&l.Hashlock,
	)
}

// Bytes returns the canonical serialization of the lock.
func (l *Lock) Bytes() []byte {
	var b bytes.Buffer
	// Writes to a bytes.Buffer cannot fail.
	_ = l.Encode(&b)
	return b.Bytes()
}
