package channel

import (
	"bytes"

	"github.com/nettingnetwork/nnd/crypto"
	"github.com/nettingnetwork/nnd/nwire"
)

// emptyLocksroot is the Merkle root of an empty pending-lock set.
var emptyLocksroot = nwire.Hash{}

// merkleRoot computes the Merkle commitment over the passed locks in their
// given (insertion) order. The leaf for a lock is the Keccak-256 digest of
// its canonical serialization. Interior nodes hash the concatenation of
// their children with the lexicographically smaller hash first, and a node
// without a sibling is promoted unchanged to the next level. Both channel
// participants maintain the same ordered lock set, so both recompute the
// identical root.
func merkleRoot(locks []*nwire.Lock) nwire.Hash {
	if len(locks) == 0 {
		return emptyLocksroot
	}

	level := make([]nwire.Hash, 0, len(locks))
	for _, lock := range locks {
		level = append(level, nwire.Hash(crypto.Keccak256(lock.Bytes())))
	}

	for len(level) > 1 {
		next := make([]nwire.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				break
			}
			next = append(next, hashPair(level[i], level[i+1]))
		}
		level = next
	}

	return level[0]
}

// hashPair combines two tree nodes, ordering the pair canonically so that
// the commitment is independent of sibling orientation.
func hashPair(a, b nwire.Hash) nwire.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return nwire.Hash(crypto.Keccak256(a[:], b[:]))
}
