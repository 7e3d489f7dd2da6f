package crypto

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"golang.org/x/crypto/sha3"
)

// AddressSize is the length in bytes of a node or contract address.
const AddressSize = 20

// SignatureSize is the length in bytes of a compact recoverable ECDSA
// signature as it appears on the wire.
const SignatureSize = 65

// Keccak256 computes the legacy Keccak-256 digest over the concatenation of
// the passed byte slices.
func Keccak256(data ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, b := range data {
		h.Write(b)
	}

	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest
}

// PubKeyToAddress derives the 20-byte address for a public key: the last 20
// bytes of the Keccak-256 digest of the uncompressed public key with the
// format prefix stripped.
func PubKeyToAddress(pub *btcec.PublicKey) [AddressSize]byte {
	digest := Keccak256(pub.SerializeUncompressed()[1:])

	var addr [AddressSize]byte
	copy(addr[:], digest[32-AddressSize:])
	return addr
}

// SignCompact signs the passed 32-byte digest with the private key, producing
// a compact signature from which the public key can be recovered.
func SignCompact(priv *btcec.PrivateKey,
	digest [32]byte) ([SignatureSize]byte, error) {

	var sig [SignatureSize]byte
	rawSig, err := ecdsa.SignCompact(priv, digest[:], false)
	if err != nil {
		return sig, err
	}
	if len(rawSig) != SignatureSize {
		return sig, fmt.Errorf("unexpected signature length %d",
			len(rawSig))
	}

	copy(sig[:], rawSig)
	return sig, nil
}

// RecoverAddress recovers the address of the key that produced the passed
// compact signature over the given digest.
func RecoverAddress(sig [SignatureSize]byte,
	digest [32]byte) ([AddressSize]byte, error) {

	pub, _, err := ecdsa.RecoverCompact(sig[:], digest[:])
	if err != nil {
		return [AddressSize]byte{}, err
	}

	return PubKeyToAddress(pub), nil
}

// GeneratePrivKey returns a fresh identity key.
func GeneratePrivKey() (*btcec.PrivateKey, error) {
	return btcec.NewPrivateKey()
}
