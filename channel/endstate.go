package channel

import (
	"github.com/nettingnetwork/nnd/nwire"
)

// EndState tracks one participant's side of a channel: the immutable on
// chain collateral, the cumulative amount transferred to the partner, the
// ordered set of pending hash-time locks with its Merkle root, and the
// participant's message counter.
type EndState struct {
	// Address is the participant this state belongs to.
	Address nwire.Address

	// ContractBalance is the collateral the participant deposited into
	// the netting contract. It never changes off chain.
	ContractBalance nwire.Amount

	// TransferredAmount is the cumulative total this participant has sent
	// to the partner. It only ever grows.
	TransferredAmount nwire.Amount

	// nonce is the last message counter value used by this participant
	// within the channel.
	nonce uint64

	// lockOrder preserves the insertion sequence of pending locks, which
	// the Merkle commitment depends on.
	lockOrder []nwire.Hash

	// locks indexes the pending locks by hashlock.
	locks map[nwire.Hash]*nwire.Lock

	// locksroot is the Merkle root over the pending locks in insertion
	// order.
	locksroot nwire.Hash
}

// NewEndState creates the state for one channel participant with the given
// on-chain collateral.
func NewEndState(addr nwire.Address, contractBalance nwire.Amount) *EndState {
	return &EndState{
		Address:         addr,
		ContractBalance: contractBalance,
		locks:           make(map[nwire.Hash]*nwire.Lock),
		locksroot:       emptyLocksroot,
	}
}

// NextNonce returns the nonce the participant's next message must carry.
func (s *EndState) NextNonce() uint64 {
	return s.nonce + 1
}

// Locksroot returns the current Merkle root over the pending locks.
func (s *EndState) Locksroot() nwire.Hash {
	return s.locksroot
}

// LockedAmount returns the total amount held in pending locks.
func (s *EndState) LockedAmount() nwire.Amount {
	var total nwire.Amount
	for _, lock := range s.locks {
		total += lock.Amount
	}
	return total
}

// PendingLocks returns the pending locks in insertion order.
func (s *EndState) PendingLocks() []*nwire.Lock {
	locks := make([]*nwire.Lock, 0, len(s.lockOrder))
	for _, hashlock := range s.lockOrder {
		locks = append(locks, s.locks[hashlock])
	}
	return locks
}

// GetLock returns the pending lock for the passed hashlock, if any.
func (s *EndState) GetLock(hashlock nwire.Hash) (*nwire.Lock, bool) {
	lock, ok := s.locks[hashlock]
	return lock, ok
}

// Balance returns the participant's net balance given the partner's state:
// collateral plus everything received, minus everything sent.
func (s *EndState) Balance(partner *EndState) nwire.Amount {
	return s.ContractBalance + partner.TransferredAmount -
		s.TransferredAmount
}

// Distributable returns how much the participant can still spend: its net
// balance minus the amount frozen in its own pending locks.
func (s *EndState) Distributable(partner *EndState) nwire.Amount {
	return s.Balance(partner) - s.LockedAmount()
}

// computeRootWith returns the Merkle root the lock set would have with the
// passed lock appended, without mutating the state.
func (s *EndState) computeRootWith(lock *nwire.Lock) nwire.Hash {
	return merkleRoot(append(s.PendingLocks(), lock))
}

// registerLock appends a pending lock and updates the Merkle root.
func (s *EndState) registerLock(lock *nwire.Lock) error {
	if _, ok := s.locks[lock.Hashlock]; ok {
		return ErrDuplicateLock
	}

	s.lockOrder = append(s.lockOrder, lock.Hashlock)
	s.locks[lock.Hashlock] = lock
	s.locksroot = merkleRoot(s.PendingLocks())
	return nil
}

// removeLock deletes the pending lock for the passed hashlock and updates
// the Merkle root. It reports whether a lock was removed.
func (s *EndState) removeLock(hashlock nwire.Hash) bool {
	if _, ok := s.locks[hashlock]; !ok {
		return false
	}

	delete(s.locks, hashlock)
	for i, h := range s.lockOrder {
		if h == hashlock {
			s.lockOrder = append(s.lockOrder[:i], s.lockOrder[i+1:]...)
			break
		}
	}
	s.locksroot = merkleRoot(s.PendingLocks())
	return true
}

// advanceNonce records that the participant's message with the passed nonce
// was accepted.
func (s *EndState) advanceNonce(nonce uint64) {
	s.nonce = nonce
}
