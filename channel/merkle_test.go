package channel

import (
	"testing"

	"github.com/nettingnetwork/nnd/nwire"
)

func lockWithSeed(seed byte) *nwire.Lock {
	var hashlock nwire.Hash
	hashlock[0] = seed
	return nwire.NewLock(nwire.Amount(seed)+1, 100, hashlock)
}

// TestMerkleRootEmpty asserts that the empty lock set commits to the zero
// hash.
func TestMerkleRootEmpty(t *testing.T) {
	t.Parallel()

	if root := merkleRoot(nil); !root.IsZero() {
		t.Fatalf("empty root should be zero, got %v", root)
	}
}

// TestMerkleRootOrderDependent asserts that the commitment depends on lock
// insertion order, since both channel ends must maintain the identical
// sequence.
func TestMerkleRootOrderDependent(t *testing.T) {
	t.Parallel()

	a, b, c := lockWithSeed(1), lockWithSeed(2), lockWithSeed(3)

	first := merkleRoot([]*nwire.Lock{a, b, c})
	second := merkleRoot([]*nwire.Lock{c, b, a})
	if first == second {
		t.Fatalf("root should depend on insertion order")
	}
}

// TestMerkleRootAddRemove asserts that adding a lock changes the root and
// that removing locks restores the earlier roots, down to the zero root.
func TestMerkleRootAddRemove(t *testing.T) {
	t.Parallel()

	state := NewEndState(nwire.Address{1}, 100)

	a, b := lockWithSeed(1), lockWithSeed(2)
	if err := state.registerLock(a); err != nil {
		t.Fatalf("unable to register lock: %v", err)
	}
	rootA := state.Locksroot()

	if err := state.registerLock(b); err != nil {
		t.Fatalf("unable to register lock: %v", err)
	}
	if state.Locksroot() == rootA {
		t.Fatalf("root did not change on second lock")
	}

	// Removing b must restore the single-lock root, removing a must
	// restore the empty root.
	if !state.removeLock(b.Hashlock) {
		t.Fatalf("unable to remove lock")
	}
	if state.Locksroot() != rootA {
		t.Fatalf("root not restored after removal")
	}
	if !state.removeLock(a.Hashlock) {
		t.Fatalf("unable to remove lock")
	}
	if !state.Locksroot().IsZero() {
		t.Fatalf("root not empty after removing all locks")
	}
}

// TestMerkleRootDuplicate asserts a hashlock cannot be registered twice.
func TestMerkleRootDuplicate(t *testing.T) {
	t.Parallel()

	state := NewEndState(nwire.Address{1}, 100)

	a := lockWithSeed(7)
	if err := state.registerLock(a); err != nil {
		t.Fatalf("unable to register lock: %v", err)
	}
	if err := state.registerLock(a); err != ErrDuplicateLock {
		t.Fatalf("expected ErrDuplicateLock, got %v", err)
	}
}
