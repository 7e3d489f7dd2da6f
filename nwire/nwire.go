package nwire

// code derived from https://github.com/btcsuite/btcd/blob/master/wire/common.go

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/nettingnetwork/nnd/crypto"
)

// AddressSize is the length in bytes of a node or netting contract address.
const AddressSize = crypto.AddressSize

// Address is the 20-byte identifier of a node or netting contract.
type Address [AddressSize]byte

// String returns the hex encoding of the address.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero reports whether the address is all zeroes.
func (a Address) IsZero() bool {
	return a == Address{}
}

// AddressFromHex parses a 40-character hex string into an Address. This is
// the only place addresses are converted from their external encoding; all
// in-memory state uses Address directly.
func AddressFromHex(s string) (Address, error) {
	var a Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, err
	}
	if len(b) != AddressSize {
		return a, fmt.Errorf("address must be %d bytes, got %d",
			AddressSize, len(b))
	}

	copy(a[:], b)
	return a, nil
}

// AssetID identifies a token tracked by the node. It shares the address
// representation of the token's on-chain contract.
type AssetID Address

// String returns the hex encoding of the asset id.
func (a AssetID) String() string {
	return Address(a).String()
}

// Hash is a 32-byte digest. It is used for hashlocks, secrets, Merkle roots
// and message echo hashes.
type Hash [32]byte

// String returns the hex encoding of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether the hash is all zeroes.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Amount is a quantity of an asset's token units.
type Amount uint64

// Signature is a compact recoverable ECDSA signature.
type Signature [crypto.SignatureSize]byte

// IsZero reports whether the signature is unset.
func (s Signature) IsZero() bool {
	return s == Signature{}
}

// writeElement is the main element serialization function, governing the
// canonical encoding of every primitive that appears in a wire message. All
// integers are big-endian.
func writeElement(w io.Writer, element interface{}) error {
	switch e := element.(type) {
	case uint16:
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], e)
		if _, err := w.Write(b[:]); err != nil {
			return err
		}

	case uint64:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], e)
		if _, err := w.Write(b[:]); err != nil {
			return err
		}

	case Amount:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(e))
		if _, err := w.Write(b[:]); err != nil {
			return err
		}

	case Address:
		if _, err := w.Write(e[:]); err != nil {
			return err
		}

	case AssetID:
		if _, err := w.Write(e[:]); err != nil {
			return err
		}

	case Hash:
		if _, err := w.Write(e[:]); err != nil {
			return err
		}

	case Signature:
		if _, err := w.Write(e[:]); err != nil {
			return err
		}

	case Lock:
		if err := e.Encode(w); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown type in writeElement: %T", e)
	}

	return nil
}

// writeElements writes each element in the elements slice to the passed
// io.Writer using writeElement.
func writeElements(w io.Writer, elements ...interface{}) error {
	for _, element := range elements {
		if err := writeElement(w, element); err != nil {
			return err
		}
	}
	return nil
}

// readElement deserializes a single element from the passed io.Reader into
// the passed pointer.
func readElement(r io.Reader, element interface{}) error {
	switch e := element.(type) {
	case *uint16:
		var b [2]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = binary.BigEndian.Uint16(b[:])

	case *uint64:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = binary.BigEndian.Uint64(b[:])

	case *Amount:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = Amount(binary.BigEndian.Uint64(b[:]))

	case *Address:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return err
		}

	case *AssetID:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return err
		}

	case *Hash:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return err
		}

	case *Signature:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return err
		}

	case *Lock:
		if err := e.Decode(r); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown type in readElement: %T", e)
	}

	return nil
}

// readElements deserializes a variable number of elements into the passed
// pointers.
func readElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		if err := readElement(r, element); err != nil {
			return err
		}
	}
	return nil
}
