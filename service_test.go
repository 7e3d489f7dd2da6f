package nnd

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nettingnetwork/nnd/channel"
	"github.com/nettingnetwork/nnd/nwire"
)

// TestDirectTransferTwoNodes covers the minimal payment: two nodes, one
// channel, one DirectTransfer and its Ack on the wire.
func TestDirectTransferTwoNodes(t *testing.T) {
	tn := createNetwork(t, 2, 100)

	require.NoError(t, tn.apis[0].Transfer(testAsset, 10, tn.addr(1)))

	require.Equal(t, nwire.Amount(90), tn.balanceOf(0, 1))
	eventually(t, func() bool {
		return tn.balanceOf(1, 0) == 110
	}, "receiver balance not credited")

	require.Zero(t, tn.numPendingLocks())
	require.Zero(t, tn.numTasks())

	counts := tn.frameCounts()
	require.Equal(t, 1, counts[nwire.MsgDirectTransfer])
	require.Equal(t, 1, counts[nwire.MsgAck])
	require.Len(t, tn.net.SentFrames(), 2)
}

// TestMediatedTransferThreeHops routes a payment across A-B-C-D and checks
// every intermediate channel moved the amount, no locks linger, and all
// tasks drained.
func TestMediatedTransferThreeHops(t *testing.T) {
	tn := createNetwork(t, 4, 100)

	require.NoError(t, tn.apis[0].Transfer(testAsset, 10, tn.addr(3)))

	// The initiator returns as soon as its own hop settled; the tail of
	// the path settles as the secret propagates.
	eventually(t, func() bool {
		return tn.balanceOf(3, 2) == 110
	}, "target never credited")

	for i := 0; i < 3; i++ {
		eventually(t, func() bool {
			return tn.balanceOf(i, i+1) == 90 &&
				tn.balanceOf(i+1, i) == 110
		}, "hop channel not settled")
	}

	eventually(t, func() bool { return tn.numTasks() == 0 },
		"tasks not drained")
	eventually(t, func() bool { return tn.numPendingLocks() == 0 },
		"locks not settled")

	counts := tn.frameCounts()
	require.Equal(t, 3, counts[nwire.MsgMediatedTransfer])
	require.Equal(t, 3, counts[nwire.MsgSecret])
	require.Equal(t, 1, counts[nwire.MsgSecretRequest])
}

// TestSecretNeverArrives starves the initiator of the target's
// SecretRequest. The payment must unwind completely: every lock withdrawn,
// every balance restored.
func TestSecretNeverArrives(t *testing.T) {
	tn := createNetwork(t, 4, 100)

	tn.net.SetDropFunc(func(src, dst nwire.Address, frame []byte) bool {
		msg, err := nwire.DecodeMessage(frame)
		if err != nil {
			return false
		}
		return msg.MsgType() == nwire.MsgSecretRequest
	})

	require.Error(t, tn.apis[0].Transfer(testAsset, 10, tn.addr(3)))

	eventually(t, func() bool { return tn.numTasks() == 0 },
		"tasks not drained")
	eventually(t, func() bool { return tn.numPendingLocks() == 0 },
		"locks not withdrawn")

	for i := 0; i < 3; i++ {
		eventually(t, func() bool {
			return tn.balanceOf(i, i+1) == 100 &&
				tn.distributableOf(i, i+1) == 100 &&
				tn.balanceOf(i+1, i) == 100
		}, "balances not restored")
	}
}

// TestTransferNoPath asserts the synchronous failure mode: an unreachable
// target produces no wire traffic at all.
func TestTransferNoPath(t *testing.T) {
	tn := createNetwork(t, 2, 100)

	var stranger nwire.Address
	stranger[0] = 0x99

	require.ErrorIs(t, tn.apis[0].Transfer(testAsset, 10, stranger),
		ErrNoPath)
	require.Empty(t, tn.net.SentFrames())
}

// TestTransferValidation covers the request-time API checks.
func TestTransferValidation(t *testing.T) {
	tn := createNetwork(t, 2, 100)

	require.ErrorIs(t, tn.apis[0].Transfer(testAsset, 0, tn.addr(1)),
		ErrInvalidAmount)

	require.ErrorIs(t, tn.apis[0].Transfer(testAsset, 10, tn.addr(0)),
		ErrInvalidAddress)

	var bogusAsset nwire.AssetID
	bogusAsset[0] = 0x77
	require.ErrorIs(t, tn.apis[0].Transfer(bogusAsset, 10, tn.addr(1)),
		ErrInvalidAddress)

	require.Empty(t, tn.net.SentFrames())
}

// TestTransferInsufficientBalance asserts that a reachable target behind
// channels without capacity fails with the capacity error, not the path
// error.
func TestTransferInsufficientBalance(t *testing.T) {
	tn := createNetwork(t, 2, 100)

	require.ErrorIs(t, tn.apis[0].Transfer(testAsset, 150, tn.addr(1)),
		channel.ErrInsufficientBalance)

	require.Zero(t, tn.numPendingLocks())
	require.Zero(t, tn.numTasks())
}

// TestConsecutiveTransfers sends two payments back to back and checks the
// nonces landed consecutively and both amounts applied.
func TestConsecutiveTransfers(t *testing.T) {
	tn := createNetwork(t, 2, 100)

	require.NoError(t, tn.apis[0].Transfer(testAsset, 10, tn.addr(1)))
	require.NoError(t, tn.apis[0].Transfer(testAsset, 10, tn.addr(1)))

	require.Equal(t, nwire.Amount(80), tn.balanceOf(0, 1))
	eventually(t, func() bool {
		return tn.balanceOf(1, 0) == 120
	}, "receiver balance not credited")

	// Two accepted messages from node 0: its next nonce is 3 on both
	// views of the channel.
	tn.withChannel(0, 1, func(ch *channel.Channel) {
		require.Equal(t, uint64(3), ch.OurState.NextNonce())
	})
	require.Equal(t, uint64(3), tn.nextNonceOf(1, 0))
}

// TestListAssetsAndPartners covers the introspection surface.
func TestListAssetsAndPartners(t *testing.T) {
	tn := createNetwork(t, 3, 100)

	assets := tn.apis[1].Assets()
	require.Equal(t, []nwire.AssetID{testAsset}, assets)

	partners, err := tn.apis[1].Partners(&testAsset)
	require.NoError(t, err)
	require.ElementsMatch(t,
		[]nwire.Address{tn.addr(0), tn.addr(2)}, partners)

	all, err := tn.apis[1].Partners(nil)
	require.NoError(t, err)
	require.ElementsMatch(t,
		[]nwire.Address{tn.addr(0), tn.addr(2)}, all)

	require.True(t, tn.apis[0].HasPath(testAsset, tn.addr(2)))

	ok, err := tn.apis[0].HasPathHex(testAsset.String(),
		tn.addr(2).String())
	require.NoError(t, err)
	require.True(t, ok)
}

// TestRequestTransfer schedules a pull payment and fulfills it with a
// transfer from the other side.
func TestRequestTransfer(t *testing.T) {
	tn := createNetwork(t, 2, 100)

	require.NoError(t,
		tn.apis[0].RequestTransfer(testAsset, 10, tn.addr(1)))

	svc := tn.services[0]
	svc.mtx.Lock()
	tm := svc.managers[testAsset].tm
	svc.mtx.Unlock()
	require.Len(t, tm.PendingRequests(), 1)

	require.NoError(t, tn.apis[1].Transfer(testAsset, 10, tn.addr(0)))

	eventually(t, func() bool {
		return len(tm.PendingRequests()) == 0
	}, "pull request not settled")
	require.Equal(t, nwire.Amount(110), tn.balanceOf(0, 1))
}

// TestChannelCloseEvent asserts that an on-chain close freezes the channel
// and removes its edge from the graph.
func TestChannelCloseEvent(t *testing.T) {
	tn := createNetwork(t, 2, 100)

	require.NoError(t, tn.chain.CloseChannel(tn.contracts[0]))

	eventually(t, func() bool {
		return !tn.apis[0].HasPath(testAsset, tn.addr(1))
	}, "closed channel still routable")

	require.ErrorIs(t, tn.apis[0].Transfer(testAsset, 10, tn.addr(1)),
		ErrNoPath)

	tn.withChannel(0, 1, func(ch *channel.Channel) {
		require.Equal(t, channel.StateClosed, ch.State())
	})
}
