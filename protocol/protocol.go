package protocol

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/go-errors/errors"
	"github.com/lightninglabs/neutrino/cache/lru"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/queue"

	"github.com/nettingnetwork/nnd/channel"
	"github.com/nettingnetwork/nnd/crypto"
	"github.com/nettingnetwork/nnd/nwire"
)

var (
	// ErrPeerUnreachable is returned when every retransmission of a
	// message went unacknowledged.
	ErrPeerUnreachable = errors.New("peer unreachable, retries exhausted")

	// ErrProtocolShutdown is returned when a send is interrupted by the
	// engine stopping.
	ErrProtocolShutdown = errors.New("protocol engine shutting down")
)

// RejectedError is returned from Send when the remote node refused the
// message with a negative acknowledgement.
type RejectedError struct {
	// Reason is the refusal code carried by the RejectTransfer.
	Reason nwire.RejectReason
}

// Error returns a human readable string describing the error.
//
// This is part of the error interface.
func (e *RejectedError) Error() string {
	return fmt.Sprintf("message rejected by peer: %v", e.Reason)
}

// Handler consumes verified, deduplicated inbound messages. The protocol
// engine acknowledges a message once the handler returns nil, and converts a
// returned error into a negative acknowledgement.
type Handler interface {
	HandleMessage(sender nwire.Address, msg nwire.SignedMessager) error
}

// Config bundles the protocol engine's tunables. The zero value of any
// field falls back to its default.
type Config struct {
	// RetryBaseTimeout is the delay before the first retransmission.
	// Subsequent delays double up to RetryMaxTimeout.
	RetryBaseTimeout time.Duration

	// RetryMaxTimeout caps the exponential backoff.
	RetryMaxTimeout time.Duration

	// MaxRetries is how many retransmissions are attempted after the
	// initial send before the peer is declared unreachable.
	MaxRetries int

	// AckCacheSize bounds the LRU of recently answered (sender, echo)
	// pairs used for receive-side deduplication.
	AckCacheSize uint64

	// MaxInflightPerPeer bounds the unacknowledged sends to one peer.
	// Further senders block until a slot frees.
	MaxInflightPerPeer int

	// Clock provides the engine's time source.
	Clock clock.Clock
}

// DefaultConfig returns the standard protocol tunables.
func DefaultConfig() Config {
	return Config{
		RetryBaseTimeout:   500 * time.Millisecond,
		RetryMaxTimeout:    10 * time.Second,
		MaxRetries:         5,
		AckCacheSize:       1024,
		MaxInflightPerPeer: 10,
		Clock:              clock.NewDefaultClock(),
	}
}

func (c *Config) withDefaults() Config {
	cfg := *c
	def := DefaultConfig()
	if cfg.RetryBaseTimeout == 0 {
		cfg.RetryBaseTimeout = def.RetryBaseTimeout
	}
	if cfg.RetryMaxTimeout == 0 {
		cfg.RetryMaxTimeout = def.RetryMaxTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.AckCacheSize == 0 {
		cfg.AckCacheSize = def.AckCacheSize
	}
	if cfg.MaxInflightPerPeer == 0 {
		cfg.MaxInflightPerPeer = def.MaxInflightPerPeer
	}
	if cfg.Clock == nil {
		cfg.Clock = def.Clock
	}
	return cfg
}

// dedupKey identifies one delivered transmission for deduplication.
type dedupKey struct {
	sender nwire.Address
	echo   nwire.Hash
}

// cachedReply holds the acknowledgement frame previously produced for a
// delivered message, so duplicates elicit the identical reply without a
// second dispatch. The frame is nil while the first dispatch is still in
// flight.
type cachedReply struct {
	mtx   sync.Mutex
	frame []byte
}

// Size returns the entry weight for the LRU, which bounds entries by count.
//
// This is part of the cache.Value interface.
func (c *cachedReply) Size() (uint64, error) {
	return 1, nil
}

// inboundMsg rides a sender's dispatch queue.
type inboundMsg struct {
	msg   nwire.SignedMessager
	echo  nwire.Hash
	entry *cachedReply
}

// senderQueue serializes dispatch of one sender's messages in arrival
// order.
type senderQueue struct {
	sender nwire.Address
	queue  *queue.ConcurrentQueue
}

// Protocol is the message protocol engine: it signs and frames outgoing
// messages, retransmits them until acknowledged, verifies and deduplicates
// inbound frames, and hands them to the coordinator in per-sender arrival
// order.
type Protocol struct {
	started  int32
	shutdown int32

	cfg       Config
	priv      *btcec.PrivateKey
	address   nwire.Address
	transport Transport
	handler   Handler

	mtx         sync.Mutex
	pendingAcks map[nwire.Hash]chan error
	peerSlots   map[nwire.Address]chan struct{}
	queues      map[nwire.Address]*senderQueue
	seen        *lru.Cache[dedupKey, *cachedReply]

	pingNonce uint64 // atomic

	wg   sync.WaitGroup
	quit chan struct{}
}

// New creates a protocol engine for the node owning the passed identity
// key. Inbound frames must be fed to OnRaw by the transport owner.
func New(cfg Config, priv *btcec.PrivateKey, transport Transport,
	handler Handler) *Protocol {

	cfg = cfg.withDefaults()

	return &Protocol{
		cfg:         cfg,
		priv:        priv,
		address:     nwire.Address(crypto.PubKeyToAddress(priv.PubKey())),
		transport:   transport,
		handler:     handler,
		pendingAcks: make(map[nwire.Hash]chan error),
		peerSlots:   make(map[nwire.Address]chan struct{}),
		queues:      make(map[nwire.Address]*senderQueue),
		seen:        lru.NewCache[dedupKey, *cachedReply](cfg.AckCacheSize),
		quit:        make(chan struct{}),
	}
}

// Address returns the engine's own node address.
func (p *Protocol) Address() nwire.Address {
	return p.address
}

// Start readies the engine for traffic.
func (p *Protocol) Start() error {
	if !atomic.CompareAndSwapInt32(&p.started, 0, 1) {
		return errors.New("protocol engine already started")
	}

	log.Infof("Protocol engine starting, address=%v", p.address)
	return nil
}

// Stop interrupts all pending sends and dispatchers, then waits for them to
// exit.
func (p *Protocol) Stop() error {
	if !atomic.CompareAndSwapInt32(&p.shutdown, 0, 1) {
		return errors.New("protocol engine already stopped")
	}

	log.Infof("Protocol engine shutting down")

	close(p.quit)

	p.mtx.Lock()
	for _, sq := range p.queues {
		sq.queue.Stop()
	}
	p.mtx.Unlock()

	p.wg.Wait()
	return nil
}

// Send signs the message if needed, transmits it, and blocks until the
// recipient acknowledges it, the retry budget is exhausted, or the engine
// stops. A negative acknowledgement from the recipient is returned as a
// *RejectedError.
func (p *Protocol) Send(recipient nwire.Address,
	msg nwire.SignedMessager) error {

	if atomic.LoadInt32(&p.shutdown) != 0 {
		return ErrProtocolShutdown
	}

	if msg.GetSignature().IsZero() {
		if err := nwire.SignMessage(p.priv, msg); err != nil {
			return err
		}
	}

	frame, err := nwire.SerializeMessage(msg)
	if err != nil {
		return err
	}
	echo := nwire.Hash(crypto.Keccak256(frame))

	// Respect the per-peer in-flight bound before anything is
	// transmitted.
	slots := p.slotsForPeer(recipient)
	select {
	case slots <- struct{}{}:
	case <-p.quit:
		return ErrProtocolShutdown
	}
	defer func() { <-slots }()

	ackChan := make(chan error, 1)
	p.mtx.Lock()
	p.pendingAcks[echo] = ackChan
	p.mtx.Unlock()
	defer func() {
		p.mtx.Lock()
		delete(p.pendingAcks, echo)
		p.mtx.Unlock()
	}()

	log.Debugf("Sending %T to %v, echo=%v", msg, recipient, echo)

	backoff := p.cfg.RetryBaseTimeout
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Debugf("Retransmitting %T to %v, attempt=%d",
				msg, recipient, attempt)
		}
		if err := p.transport.SendRaw(recipient, frame); err != nil {
			return err
		}

		select {
		case err := <-ackChan:
			return err

		case <-p.cfg.Clock.TickAfter(backoff):
			backoff *= 2
			if backoff > p.cfg.RetryMaxTimeout {
				backoff = p.cfg.RetryMaxTimeout
			}

		case <-p.quit:
			return ErrProtocolShutdown
		}
	}

	log.Warnf("Peer %v unreachable, dropping %T after %d attempts",
		recipient, msg, p.cfg.MaxRetries+1)

	return ErrPeerUnreachable
}

// SendPing probes the liveness of a peer, blocking until it acknowledges.
func (p *Protocol) SendPing(recipient nwire.Address) error {
	nonce := atomic.AddUint64(&p.pingNonce, 1)
	return p.Send(recipient, nwire.NewPing(p.address, nonce))
}

// slotsForPeer returns the peer's in-flight semaphore, creating it on first
// use.
func (p *Protocol) slotsForPeer(peer nwire.Address) chan struct{} {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	slots, ok := p.peerSlots[peer]
	if !ok {
		slots = make(chan struct{}, p.cfg.MaxInflightPerPeer)
		p.peerSlots[peer] = slots
	}
	return slots
}

// OnRaw ingests one raw frame from the transport. Undecodable frames and
// bad signatures are dropped silently; acknowledgements resolve pending
// sends; everything else is deduplicated and queued for ordered dispatch.
func (p *Protocol) OnRaw(src nwire.Address, frame []byte) {
	if atomic.LoadInt32(&p.shutdown) != 0 {
		return
	}

	msg, err := nwire.DecodeMessage(frame)
	if err != nil {
		log.Debugf("Dropping undecodable frame from %v: %v", src, err)
		return
	}

	switch m := msg.(type) {
	case *nwire.Ack:
		p.resolveAck(m.Echo, nil)
		return

	case *nwire.RejectTransfer:
		if _, err := nwire.VerifyMessage(m); err != nil {
			log.Debugf("Dropping reject with bad signature "+
				"from %v", src)
			return
		}
		p.resolveAck(m.Echo, &RejectedError{Reason: m.Reason})
		return
	}

	signed, ok := msg.(nwire.SignedMessager)
	if !ok {
		log.Debugf("Dropping unauthenticated %T from %v", msg, src)
		return
	}

	sender, err := nwire.VerifyMessage(signed)
	if err != nil {
		log.Debugf("Dropping %T with bad signature from %v", msg, src)
		return
	}

	echo := nwire.Hash(crypto.Keccak256(frame))
	key := dedupKey{sender: sender, echo: echo}

	p.mtx.Lock()
	if entry, err := p.seen.Get(key); err == nil {
		p.mtx.Unlock()

		// Duplicate delivery: re-emit the reply the first delivery
		// produced. If that dispatch hasn't completed yet the
		// duplicate is simply dropped and a later retransmission
		// will pick up the reply.
		entry.mtx.Lock()
		reply := entry.frame
		entry.mtx.Unlock()

		log.Debugf("Duplicate %T from %v, echo=%v", msg, sender, echo)
		if reply != nil {
			if err := p.transport.SendRaw(sender, reply); err != nil {
				log.Debugf("Unable to re-ack %v: %v", sender,
					err)
			}
		}
		return
	}

	entry := &cachedReply{}
	if _, err := p.seen.Put(key, entry); err != nil {
		p.mtx.Unlock()
		log.Errorf("Unable to track delivery %v: %v", echo, err)
		return
	}
	sq := p.queueForSender(sender)
	p.mtx.Unlock()

	select {
	case sq.queue.ChanIn() <- &inboundMsg{msg: signed, echo: echo, entry: entry}:
	case <-p.quit:
	}
}

// resolveAck completes the pending send waiting on the passed echo hash.
func (p *Protocol) resolveAck(echo nwire.Hash, result error) {
	p.mtx.Lock()
	ackChan, ok := p.pendingAcks[echo]
	if ok {
		delete(p.pendingAcks, echo)
	}
	p.mtx.Unlock()

	if !ok {
		log.Debugf("Ignoring ack for unknown echo=%v", echo)
		return
	}

	ackChan <- result
}

// queueForSender returns the sender's ordered dispatch queue, spawning its
// dispatcher on first use. The caller must hold p.mtx.
func (p *Protocol) queueForSender(sender nwire.Address) *senderQueue {
	if sq, ok := p.queues[sender]; ok {
		return sq
	}

	sq := &senderQueue{
		sender: sender,
		queue:  queue.NewConcurrentQueue(16),
	}
	sq.queue.Start()
	p.queues[sender] = sq

	p.wg.Add(1)
	go p.dispatcher(sq)

	return sq
}

// dispatcher drains one sender's queue, handing each message to the
// coordinator and emitting the acknowledgement its result calls for.
//
// NOTE: This method MUST be run as a goroutine.
func (p *Protocol) dispatcher(sq *senderQueue) {
	defer p.wg.Done()

	for {
		select {
		case item, ok := <-sq.queue.ChanOut():
			if !ok {
				return
			}
			p.dispatch(sq.sender, item.(*inboundMsg))

		case <-p.quit:
			return
		}
	}
}

// dispatch delivers one message and answers it: an Ack when the handler
// succeeds, a signed RejectTransfer carrying the domain failure otherwise.
func (p *Protocol) dispatch(sender nwire.Address, in *inboundMsg) {
	handleErr := p.handler.HandleMessage(sender, in.msg)

	var reply nwire.Message
	if handleErr == nil {
		reply = nwire.NewAck(p.address, in.echo)
	} else {
		log.Debugf("Handler refused %T from %v: %v", in.msg, sender,
			handleErr)

		rej := nwire.NewRejectTransfer(
			p.address, in.echo, reasonFromError(handleErr),
		)
		if err := nwire.SignMessage(p.priv, rej); err != nil {
			log.Errorf("Unable to sign reject: %v", err)
			return
		}
		reply = rej
	}

	frame, err := nwire.SerializeMessage(reply)
	if err != nil {
		log.Errorf("Unable to serialize reply: %v", err)
		return
	}

	in.entry.mtx.Lock()
	in.entry.frame = frame
	in.entry.mtx.Unlock()

	if err := p.transport.SendRaw(sender, frame); err != nil {
		log.Debugf("Unable to answer %v: %v", sender, err)
	}
}

// reasonFromError maps a channel state machine failure onto its wire reason
// code.
func reasonFromError(err error) nwire.RejectReason {
	switch err {
	case channel.ErrNonceMismatch:
		return nwire.RejectNonceMismatch
	case channel.ErrInsufficientBalance:
		return nwire.RejectInsufficientBalance
	case channel.ErrInvalidLocksRoot:
		return nwire.RejectInvalidLocksroot
	case channel.ErrUnknownLock, channel.ErrDuplicateLock:
		return nwire.RejectUnknownLock
	case channel.ErrExpiredLock, channel.ErrLockExpirationTooSoon:
		return nwire.RejectExpiredLock
	case channel.ErrChannelClosed:
		return nwire.RejectChannelClosed
	default:
		return nwire.RejectUnknown
	}
}
