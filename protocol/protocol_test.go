package protocol

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nettingnetwork/nnd/channel"
	"github.com/nettingnetwork/nnd/crypto"
	"github.com/nettingnetwork/nnd/nwire"
)

// countingHandler records every delivered message and fails deliveries on
// demand.
type countingHandler struct {
	mtx       sync.Mutex
	delivered []nwire.SignedMessager
	fail      error
}

func (h *countingHandler) HandleMessage(sender nwire.Address,
	msg nwire.SignedMessager) error {

	h.mtx.Lock()
	defer h.mtx.Unlock()

	if h.fail != nil {
		return h.fail
	}
	h.delivered = append(h.delivered, msg)
	return nil
}

func (h *countingHandler) numDelivered() int {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	return len(h.delivered)
}

func testConfig() Config {
	return Config{
		RetryBaseTimeout: 20 * time.Millisecond,
		RetryMaxTimeout:  100 * time.Millisecond,
		MaxRetries:       4,
	}
}

// newTestPeer spins up a protocol engine attached to the mock network.
func newTestPeer(t *testing.T, net *MockNetwork) (*Protocol,
	*countingHandler) {

	t.Helper()

	priv, err := crypto.GeneratePrivKey()
	require.NoError(t, err)

	handler := &countingHandler{}
	transport := net.Endpoint(nwire.Address(
		crypto.PubKeyToAddress(priv.PubKey()),
	))

	p := New(testConfig(), priv, transport, handler)
	transport.OnReceive(p.OnRaw)
	require.NoError(t, p.Start())

	t.Cleanup(func() { _ = p.Stop() })

	return p, handler
}

// countFrames tallies the network's frames by message type.
func countFrames(t *testing.T, net *MockNetwork) map[nwire.MessageType]int {
	t.Helper()

	counts := make(map[nwire.MessageType]int)
	for _, f := range net.SentFrames() {
		msg, err := nwire.DecodeMessage(f.Frame)
		require.NoError(t, err)
		counts[msg.MsgType()]++
	}
	return counts
}

// TestSendAndAck asserts the basic happy path: one transmission, one
// delivery, one acknowledgement.
func TestSendAndAck(t *testing.T) {
	t.Parallel()

	net := NewMockNetwork()
	defer net.Stop()

	sender, _ := newTestPeer(t, net)
	receiver, receiverHandler := newTestPeer(t, net)

	require.NoError(t, sender.SendPing(receiver.Address()))
	require.Equal(t, 1, receiverHandler.numDelivered())

	counts := countFrames(t, net)
	require.Equal(t, 1, counts[nwire.MsgPing])
	require.Equal(t, 1, counts[nwire.MsgAck])
}

// TestRetransmitOnLoss drops the first copy of a message and asserts that
// the backoff timer retransmits it and the send still succeeds.
func TestRetransmitOnLoss(t *testing.T) {
	t.Parallel()

	net := NewMockNetwork()
	defer net.Stop()

	sender, _ := newTestPeer(t, net)
	receiver, receiverHandler := newTestPeer(t, net)

	var dropMtx sync.Mutex
	dropped := false
	net.SetDropFunc(func(src, dst nwire.Address, frame []byte) bool {
		dropMtx.Lock()
		defer dropMtx.Unlock()

		if src == sender.Address() && !dropped {
			dropped = true
			return true
		}
		return false
	})

	require.NoError(t, sender.SendPing(receiver.Address()))
	require.Equal(t, 1, receiverHandler.numDelivered())

	counts := countFrames(t, net)
	require.Equal(t, 2, counts[nwire.MsgPing])
	require.Equal(t, 1, counts[nwire.MsgAck])
}

// TestDedupOnAckLoss drops the first acknowledgement so the sender
// retransmits. The duplicate must not be dispatched again, but it must
// elicit a second, identical acknowledgement.
func TestDedupOnAckLoss(t *testing.T) {
	t.Parallel()

	net := NewMockNetwork()
	defer net.Stop()

	sender, _ := newTestPeer(t, net)
	receiver, receiverHandler := newTestPeer(t, net)

	var dropMtx sync.Mutex
	droppedAck := false
	net.SetDropFunc(func(src, dst nwire.Address, frame []byte) bool {
		dropMtx.Lock()
		defer dropMtx.Unlock()

		msg, err := nwire.DecodeMessage(frame)
		if err != nil {
			return false
		}
		if _, isAck := msg.(*nwire.Ack); isAck && !droppedAck {
			droppedAck = true
			return true
		}
		return false
	})

	require.NoError(t, sender.SendPing(receiver.Address()))

	// Exactly one delivery despite two transmissions, and two acks on the
	// wire (the dropped one still counts as sent).
	require.Equal(t, 1, receiverHandler.numDelivered())

	counts := countFrames(t, net)
	require.Equal(t, 2, counts[nwire.MsgPing])
	require.Equal(t, 2, counts[nwire.MsgAck])
}

// TestNegativeAck asserts that a handler failure surfaces to the sender as
// a RejectedError carrying the domain reason.
func TestNegativeAck(t *testing.T) {
	t.Parallel()

	net := NewMockNetwork()
	defer net.Stop()

	sender, _ := newTestPeer(t, net)
	receiver, receiverHandler := newTestPeer(t, net)
	receiverHandler.fail = channel.ErrInsufficientBalance

	err := sender.SendPing(receiver.Address())
	require.Error(t, err)

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, nwire.RejectInsufficientBalance, rejected.Reason)
}

// TestPeerUnreachable asserts that a peer that never answers exhausts the
// retry budget.
func TestPeerUnreachable(t *testing.T) {
	t.Parallel()

	net := NewMockNetwork()
	defer net.Stop()

	sender, _ := newTestPeer(t, net)

	// The destination has no endpoint at all.
	var ghost nwire.Address
	ghost[0] = 0xee

	start := time.Now()
	err := sender.SendPing(ghost)
	require.ErrorIs(t, err, ErrPeerUnreachable)

	// The backoff schedule must actually have been waited out.
	require.GreaterOrEqual(t, time.Since(start),
		100*time.Millisecond)

	counts := countFrames(t, net)
	require.Equal(t, testConfig().MaxRetries+1, counts[nwire.MsgPing])
}

// TestBadSignatureDropped asserts that frames failing signature
// verification are dropped without acknowledgement or dispatch.
func TestBadSignatureDropped(t *testing.T) {
	t.Parallel()

	net := NewMockNetwork()
	defer net.Stop()

	receiver, receiverHandler := newTestPeer(t, net)

	var impostor nwire.Address
	impostor[0] = 0x66

	ping := nwire.NewPing(impostor, 1)
	ping.Signature[0] = 1 // garbage signature
	frame, err := nwire.SerializeMessage(ping)
	require.NoError(t, err)

	receiver.OnRaw(impostor, frame)

	time.Sleep(50 * time.Millisecond)
	require.Zero(t, receiverHandler.numDelivered())
	require.Empty(t, countFrames(t, net))
}
