package channel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nettingnetwork/nnd/nwire"
)

var (
	addrA = nwire.Address{0xaa}
	addrB = nwire.Address{0xbb}
	addrC = nwire.Address{0xcc}

	testAsset    = nwire.AssetID{0x01}
	testContract = nwire.Address{0x02}
)

const (
	testRevealTimeout = uint64(5)
	testSettleTimeout = uint64(30)
)

type fakeBlocks struct {
	height uint64
}

func (f *fakeBlocks) CurrentBlock() uint64 {
	return f.height
}

// testChannelPair creates both participants' views of the same channel, the
// way two nodes would hold them after the chain reported the netting
// contract.
func testChannelPair(t *testing.T, balanceA,
	balanceB nwire.Amount) (*Channel, *Channel, *fakeBlocks) {

	t.Helper()

	blocks := &fakeBlocks{height: 1}

	chanA, err := New(
		testAsset, testContract,
		NewEndState(addrA, balanceA), NewEndState(addrB, balanceB),
		testRevealTimeout, testSettleTimeout, blocks,
	)
	require.NoError(t, err)

	chanB, err := New(
		testAsset, testContract,
		NewEndState(addrB, balanceB), NewEndState(addrA, balanceA),
		testRevealTimeout, testSettleTimeout, blocks,
	)
	require.NoError(t, err)

	return chanA, chanB, blocks
}

// applyBoth registers the same message on both participants' channel views.
func applyBoth(t *testing.T, msg nwire.SignedMessager, chans ...*Channel) {
	t.Helper()
	for _, c := range chans {
		require.NoError(t, c.RegisterTransfer(msg))
	}
}

func TestNewChannelTimeoutValidation(t *testing.T) {
	t.Parallel()

	blocks := &fakeBlocks{}
	our, partner := NewEndState(addrA, 100), NewEndState(addrB, 100)

	_, err := New(testAsset, testContract, our, partner, 0, 30, blocks)
	require.Error(t, err)

	_, err = New(testAsset, testContract, our, partner, 5, 5, blocks)
	require.Error(t, err)
}

func TestDirectTransfer(t *testing.T) {
	t.Parallel()

	chanA, chanB, _ := testChannelPair(t, 100, 100)

	transfer, err := chanA.CreateDirectTransfer(10)
	require.NoError(t, err)
	applyBoth(t, transfer, chanA, chanB)

	require.Equal(t, nwire.Amount(90), chanA.Balance())
	require.Equal(t, nwire.Amount(110), chanA.PartnerBalance())
	require.Equal(t, nwire.Amount(110), chanB.Balance())
	require.Equal(t, nwire.Amount(90), chanB.PartnerBalance())

	// A second transfer must carry the consecutive nonce and stack on the
	// cumulative total.
	second, err := chanA.CreateDirectTransfer(10)
	require.NoError(t, err)
	require.Equal(t, transfer.Nonce+1, second.Nonce)
	require.Equal(t, nwire.Amount(20), second.TransferredAmount)
	applyBoth(t, second, chanA, chanB)

	require.Equal(t, nwire.Amount(80), chanA.Balance())
	require.Equal(t, nwire.Amount(120), chanB.Balance())
}

func TestDirectTransferBoundaries(t *testing.T) {
	t.Parallel()

	chanA, chanB, _ := testChannelPair(t, 100, 100)

	// Zero amounts are rejected outright.
	_, err := chanA.CreateDirectTransfer(0)
	require.ErrorIs(t, err, ErrInvalidAmount)

	// Overdrawing is rejected, spending the full balance is not.
	_, err = chanA.CreateDirectTransfer(101)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	transfer, err := chanA.CreateDirectTransfer(100)
	require.NoError(t, err)
	applyBoth(t, transfer, chanA, chanB)
	require.Equal(t, nwire.Amount(0), chanA.Balance())
}

func TestDirectTransferNonceGap(t *testing.T) {
	t.Parallel()

	chanA, chanB, _ := testChannelPair(t, 100, 100)

	transfer, err := chanA.CreateDirectTransfer(10)
	require.NoError(t, err)

	// Skipping a nonce must be refused by the receiver.
	gapped := *transfer
	gapped.Nonce++
	require.ErrorIs(t, chanB.RegisterTransfer(&gapped), ErrNonceMismatch)

	// Replaying the applied nonce must be refused as well.
	applyBoth(t, transfer, chanA, chanB)
	require.ErrorIs(t, chanB.RegisterTransfer(transfer), ErrNonceMismatch)
}

func TestDirectTransferLocksrootMismatch(t *testing.T) {
	t.Parallel()

	chanA, chanB, _ := testChannelPair(t, 100, 100)

	transfer, err := chanA.CreateDirectTransfer(10)
	require.NoError(t, err)

	bogus := *transfer
	bogus.Locksroot[0] ^= 0xff
	require.ErrorIs(t, chanB.RegisterTransfer(&bogus), ErrInvalidLocksRoot)
}

func TestMediatedTransferLifecycle(t *testing.T) {
	t.Parallel()

	chanA, chanB, blocks := testChannelPair(t, 100, 100)

	var secret nwire.Hash
	secret[0] = 0x42
	hashlock := nwire.HashSecret(secret)
	expiration := blocks.height + testSettleTimeout

	transfer, err := chanA.CreateMediatedTransfer(
		10, hashlock, expiration, addrC, addrA, 0,
	)
	require.NoError(t, err)
	applyBoth(t, transfer, chanA, chanB)

	// The amount is frozen, not yet transferred.
	require.Equal(t, nwire.Amount(100), chanA.Balance())
	require.Equal(t, nwire.Amount(90), chanA.Distributable())
	require.Equal(t, chanA.OurState.Locksroot(),
		chanB.PartnerState.Locksroot())

	// Revealing the secret settles the lock on both views.
	require.NoError(t, chanA.RegisterSecret(secret))
	require.NoError(t, chanB.RegisterSecret(secret))

	require.Equal(t, nwire.Amount(90), chanA.Balance())
	require.Equal(t, nwire.Amount(110), chanB.Balance())
	require.Empty(t, chanA.OurState.PendingLocks())
	require.Empty(t, chanB.PartnerState.PendingLocks())
	require.True(t, chanA.OurState.Locksroot().IsZero())

	// Applying the same secret again must change nothing.
	require.NoError(t, chanA.RegisterSecret(secret))
	require.Equal(t, nwire.Amount(90), chanA.Balance())
}

func TestLockExpirationBoundary(t *testing.T) {
	t.Parallel()

	_, chanB, blocks := testChannelPair(t, 100, 100)
	blocks.height = 50

	makeTransfer := func(expiration uint64) *nwire.MediatedTransfer {
		sender := chanB.PartnerState
		var hashlock nwire.Hash
		hashlock[0] = byte(expiration)
		lock := nwire.NewLock(10, expiration, hashlock)
		return nwire.NewMediatedTransfer(
			sender.Address, sender.NextNonce(), testAsset,
			addrB, sender.TransferredAmount,
			sender.computeRootWith(lock), addrC, addrA, *lock, 0,
		)
	}

	// A lock leaving exactly the reveal timeout is accepted.
	ok := makeTransfer(blocks.height + testRevealTimeout)
	require.NoError(t, chanB.RegisterTransfer(ok))

	// One block less is rejected.
	short := makeTransfer(blocks.height + testRevealTimeout - 1)
	require.ErrorIs(t, chanB.RegisterTransfer(short),
		ErrLockExpirationTooSoon)

	// An already expired lock is rejected with its own failure.
	expired := makeTransfer(blocks.height)
	require.ErrorIs(t, chanB.RegisterTransfer(expired), ErrExpiredLock)
}

func TestWithdrawLock(t *testing.T) {
	t.Parallel()

	chanA, chanB, blocks := testChannelPair(t, 100, 100)

	var hashlock nwire.Hash
	hashlock[0] = 0x07
	transfer, err := chanA.CreateMediatedTransfer(
		10, hashlock, blocks.height+testSettleTimeout, addrC, addrA, 0,
	)
	require.NoError(t, err)
	applyBoth(t, transfer, chanA, chanB)

	require.NoError(t, chanA.WithdrawLock(addrA, hashlock))
	require.NoError(t, chanB.WithdrawLock(addrA, hashlock))

	require.Equal(t, nwire.Amount(100), chanA.Distributable())
	require.Equal(t, nwire.Amount(100), chanA.Balance())
	require.ErrorIs(t, chanA.WithdrawLock(addrA, hashlock), ErrUnknownLock)
}

func TestExpireLocks(t *testing.T) {
	t.Parallel()

	chanA, chanB, blocks := testChannelPair(t, 100, 100)

	var hashlock nwire.Hash
	hashlock[0] = 0x09
	expiration := blocks.height + testSettleTimeout
	transfer, err := chanA.CreateMediatedTransfer(
		10, hashlock, expiration, addrC, addrA, 0,
	)
	require.NoError(t, err)
	applyBoth(t, transfer, chanA, chanB)

	// Before expiration nothing is removed.
	require.Zero(t, chanA.ExpireLocks(expiration-1))
	require.Equal(t, nwire.Amount(90), chanA.Distributable())

	// At expiration the amount returns to the sender on both views.
	require.Equal(t, 1, chanA.ExpireLocks(expiration))
	require.Equal(t, 1, chanB.ExpireLocks(expiration))
	require.Equal(t, nwire.Amount(100), chanA.Distributable())
	require.Equal(t, nwire.Amount(100), chanB.PartnerBalance())
}

func TestClosedChannelRejectsUpdates(t *testing.T) {
	t.Parallel()

	chanA, _, _ := testChannelPair(t, 100, 100)

	transfer, err := chanA.CreateDirectTransfer(10)
	require.NoError(t, err)

	chanA.HandleClosed(10)
	require.Equal(t, StateClosed, chanA.State())

	require.ErrorIs(t, chanA.RegisterTransfer(transfer), ErrChannelClosed)
	_, err = chanA.CreateDirectTransfer(10)
	require.ErrorIs(t, err, ErrChannelClosed)

	chanA.HandleSettled(40)
	require.Equal(t, StateSettled, chanA.State())
}
