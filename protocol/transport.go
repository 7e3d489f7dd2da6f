package protocol

import (
	"sync"

	"github.com/go-errors/errors"

	"github.com/nettingnetwork/nnd/nwire"
)

// Transport is the unreliable datagram channel the protocol engine sends
// frames through. Frames may be dropped or reordered; the engine's
// retransmission and deduplication layers compensate. Inbound frames are
// delivered by the transport owner calling Protocol.OnRaw.
type Transport interface {
	// SendRaw transmits a single frame to the node at the destination
	// address. A nil error only means the frame was handed to the
	// network, not that it arrived.
	SendRaw(dest nwire.Address, frame []byte) error
}

// SentFrame records one frame the mock network carried.
type SentFrame struct {
	Src   nwire.Address
	Dst   nwire.Address
	Frame []byte
}

// DropFunc decides whether the mock network silently drops a frame.
type DropFunc func(src, dst nwire.Address, frame []byte) bool

type delivery struct {
	src   nwire.Address
	frame []byte
}

// MockNetwork connects the MockTransport endpoints of a simulated cluster.
// Frames are delivered asynchronously but in order per destination, like a
// well-behaved datagram network. A drop hook lets tests inject loss.
type MockNetwork struct {
	mtx       sync.Mutex
	endpoints map[nwire.Address]*MockTransport
	frames    []SentFrame
	dropFn    DropFunc
}

// NewMockNetwork creates an empty network.
func NewMockNetwork() *MockNetwork {
	return &MockNetwork{
		endpoints: make(map[nwire.Address]*MockTransport),
	}
}

// Endpoint creates (or returns) the transport endpoint for the passed owner
// address. The receive callback is invoked from a dedicated pump goroutine,
// preserving per-destination arrival order.
func (n *MockNetwork) Endpoint(owner nwire.Address) *MockTransport {
	n.mtx.Lock()
	defer n.mtx.Unlock()

	if t, ok := n.endpoints[owner]; ok {
		return t
	}

	t := &MockTransport{
		net:   n,
		owner: owner,
		inbox: make(chan delivery, 512),
		quit:  make(chan struct{}),
	}
	t.wg.Add(1)
	go t.pump()

	n.endpoints[owner] = t
	return t
}

// SetDropFunc installs a loss-injection hook.
func (n *MockNetwork) SetDropFunc(fn DropFunc) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.dropFn = fn
}

// SentFrames returns a snapshot of every frame handed to the network,
// dropped ones included.
func (n *MockNetwork) SentFrames() []SentFrame {
	n.mtx.Lock()
	defer n.mtx.Unlock()

	frames := make([]SentFrame, len(n.frames))
	copy(frames, n.frames)
	return frames
}

// Stop shuts down all endpoint pumps.
func (n *MockNetwork) Stop() {
	n.mtx.Lock()
	endpoints := make([]*MockTransport, 0, len(n.endpoints))
	for _, t := range n.endpoints {
		endpoints = append(endpoints, t)
	}
	n.mtx.Unlock()

	for _, t := range endpoints {
		t.stop()
	}
}

func (n *MockNetwork) route(src, dst nwire.Address, frame []byte) error {
	n.mtx.Lock()
	n.frames = append(n.frames, SentFrame{Src: src, Dst: dst, Frame: frame})
	dropFn := n.dropFn
	target, ok := n.endpoints[dst]
	n.mtx.Unlock()

	if dropFn != nil && dropFn(src, dst, frame) {
		return nil
	}
	if !ok {
		// Datagram semantics: sending into the void is not an error.
		return nil
	}

	select {
	case target.inbox <- delivery{src: src, frame: frame}:
	case <-target.quit:
	}
	return nil
}

// MockTransport is one node's endpoint on a MockNetwork.
type MockTransport struct {
	net   *MockNetwork
	owner nwire.Address

	mtx  sync.Mutex
	recv func(src nwire.Address, frame []byte)

	inbox chan delivery
	quit  chan struct{}
	wg    sync.WaitGroup
}

// A compile time check to ensure MockTransport implements the
// protocol.Transport interface.
var _ Transport = (*MockTransport)(nil)

// SendRaw transmits a frame through the mock network.
//
// This is part of the protocol.Transport interface.
func (t *MockTransport) SendRaw(dest nwire.Address, frame []byte) error {
	if dest == t.owner {
		return errors.New("refusing to send frame to self")
	}

	// Copy so later mutation by the sender cannot corrupt the delivery.
	dup := make([]byte, len(frame))
	copy(dup, frame)

	return t.net.route(t.owner, dest, dup)
}

// OnReceive installs the inbound frame callback, normally
// Protocol.OnRaw.
func (t *MockTransport) OnReceive(fn func(src nwire.Address, frame []byte)) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.recv = fn
}

// pump delivers queued frames to the receive callback in arrival order.
//
// NOTE: This method MUST be run as a goroutine.
func (t *MockTransport) pump() {
	defer t.wg.Done()

	for {
		select {
		case d := <-t.inbox:
			t.mtx.Lock()
			recv := t.recv
			t.mtx.Unlock()

			if recv != nil {
				recv(d.src, d.frame)
			}

		case <-t.quit:
			return
		}
	}
}

func (t *MockTransport) stop() {
	close(t.quit)
	t.wg.Wait()
}
