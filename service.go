package nnd

import (
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/go-errors/errors"
	"github.com/lightningnetwork/lnd/ticker"

	"github.com/nettingnetwork/nnd/chain"
	"github.com/nettingnetwork/nnd/channel"
	"github.com/nettingnetwork/nnd/discovery"
	"github.com/nettingnetwork/nnd/nwire"
	"github.com/nettingnetwork/nnd/protocol"
	"github.com/nettingnetwork/nnd/routing"
)

// Service is the node coordinator. It owns the per-asset managers, is the
// endpoint the protocol engine delivers verified messages to, and dispatches
// each message by kind to the channel carrying it, to the transfer task
// keyed by its hashlock, or both.
//
// All channel, graph and task state is guarded by mtx; handlers and tasks
// take it for each touch and never hold it across a send, which is the
// mutual-exclusion shape the original cooperative scheduler provided for
// free.
type Service struct {
	started  int32
	shutdown int32

	cfg  *Config
	priv *btcec.PrivateKey

	// address is this node's identity, derived from the signing key.
	address nwire.Address

	chain     chain.Service
	discovery discovery.Discoverer
	proto     *protocol.Protocol
	alarm     *chain.Alarm

	mtx      sync.Mutex
	managers map[nwire.AssetID]*AssetManager

	wg   sync.WaitGroup
	quit chan struct{}
}

// NewService assembles a node around its identity key and external
// collaborators. The transport owner must route inbound frames to the
// returned service's protocol engine via Protocol().OnRaw.
func NewService(cfg *Config, priv *btcec.PrivateKey, chainSvc chain.Service,
	disc discovery.Discoverer, transport protocol.Transport) *Service {

	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Service{
		cfg:       cfg,
		priv:      priv,
		chain:     chainSvc,
		discovery: disc,
		managers:  make(map[nwire.AssetID]*AssetManager),
		quit:      make(chan struct{}),
	}
	s.proto = protocol.New(cfg.Protocol, priv, transport, s)
	s.address = s.proto.Address()
	s.alarm = chain.NewAlarm(chainSvc, ticker.New(cfg.BlockPollInterval))
	s.alarm.RegisterCallback(s.onNewBlock)

	return s
}

// Address returns the node's identity address.
func (s *Service) Address() nwire.Address {
	return s.address
}

// Protocol returns the node's message engine, for the transport owner to
// attach inbound delivery to.
func (s *Service) Protocol() *protocol.Protocol {
	return s.proto
}

// API returns the node's external interface.
func (s *Service) API() *API {
	return &API{svc: s}
}

// Start brings up the protocol engine, the chain poller and the event loop.
func (s *Service) Start() error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return errors.New("service already started")
	}

	log.Infof("Node starting, address=%v", s.address)

	if err := s.proto.Start(); err != nil {
		return err
	}
	if err := s.alarm.Start(); err != nil {
		return err
	}

	// Subscribe before returning so that no event emitted after Start is
	// missed.
	events := s.chain.Events()

	s.wg.Add(1)
	go s.chainEventLoop(events)

	return nil
}

// Stop signals every task and handler, then waits for them to unwind. Tasks
// observe the quit signal at their next suspension point and withdraw their
// pending locks before exiting.
func (s *Service) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.shutdown, 0, 1) {
		return errors.New("service already stopped")
	}

	log.Infof("Node %v shutting down", s.address)

	if err := s.alarm.Stop(); err != nil {
		log.Errorf("unable to stop alarm: %v", err)
	}

	close(s.quit)
	s.wg.Wait()

	return s.proto.Stop()
}

// AdvertiseEndpoint publishes the node's transport location through the
// discovery service so peers can resolve its address.
func (s *Service) AdvertiseEndpoint(host string, port int) error {
	return s.discovery.Register(s.address, host, port)
}

// RegisterRegistry scans every asset the registry tracks for netting
// contracts involving this node and builds the managers, channels and
// graphs for them.
func (s *Service) RegisterRegistry(reg chain.Registry) error {
	assets, err := reg.Assets()
	if err != nil {
		return err
	}

	for _, asset := range assets {
		if err := s.setupAsset(asset); err != nil {
			return err
		}
	}
	return nil
}

// setupAsset initializes the manager for an asset and a channel for each of
// this node's netting contracts in it.
func (s *Service) setupAsset(asset nwire.AssetID) error {
	contracts, err := s.chain.NettingAddressesByAssetParticipant(
		asset, s.address,
	)
	if err != nil {
		return err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	am, err := s.getOrCreateAssetManager(asset)
	if err != nil {
		return err
	}

	for _, contract := range contracts {
		if am.ChannelByContract(contract) != nil {
			continue
		}
		if err := s.setupChannel(am, contract); err != nil {
			return err
		}
	}
	return nil
}

// getOrCreateAssetManager returns the asset's manager, building it and its
// network graph on first use. The caller must hold s.mtx.
func (s *Service) getOrCreateAssetManager(
	asset nwire.AssetID) (*AssetManager, error) {

	if am, ok := s.managers[asset]; ok {
		return am, nil
	}

	edges, err := s.chain.AddressesByAsset(asset)
	if err != nil {
		return nil, err
	}

	am := newAssetManager(s, asset,
		routing.NewChannelGraphFromEdges(edges))
	s.managers[asset] = am

	log.Infof("tracking asset %v, %d channels known network-wide",
		asset, len(edges))

	return am, nil
}

// setupChannel builds this node's view of one netting contract. The caller
// must hold s.mtx.
func (s *Service) setupChannel(am *AssetManager,
	contract nwire.Address) error {

	detail, err := s.chain.NettingContractDetail(
		am.asset, contract, s.address,
	)
	if err != nil {
		return err
	}

	ch, err := channel.New(
		am.asset, contract,
		channel.NewEndState(s.address, detail.OurBalance),
		channel.NewEndState(detail.PartnerAddress, detail.PartnerBalance),
		s.cfg.RevealTimeout, detail.SettleTimeout, s.chain,
	)
	if err != nil {
		return err
	}

	am.addChannel(ch)

	log.Infof("channel with %v: our_balance=%d partner_balance=%d",
		detail.PartnerAddress, detail.OurBalance,
		detail.PartnerBalance)

	return nil
}

// chainEventLoop consumes channel lifecycle events from the chain adapter,
// keeping channels and graphs in sync with on-chain reality.
//
// NOTE: This method MUST be run as a goroutine.
func (s *Service) chainEventLoop(events <-chan *chain.Event) {
	defer s.wg.Done()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			s.handleChainEvent(event)

		case <-s.quit:
			return
		}
	}
}

func (s *Service) handleChainEvent(event *chain.Event) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	am, ok := s.managers[event.Asset]
	if !ok {
		return
	}

	switch event.Type {
	case chain.EventChannelOpened:
		am.graph.AddChannel(event.Participants[0],
			event.Participants[1])

		involved := event.Participants[0] == s.address ||
			event.Participants[1] == s.address
		if involved && am.ChannelByContract(event.Contract) == nil {
			if err := s.setupChannel(am, event.Contract); err != nil {
				log.Errorf("unable to set up channel %v: %v",
					event.Contract, err)
			}
		}

	case chain.EventChannelClosed:
		am.graph.RemoveChannel(event.Participants[0],
			event.Participants[1])
		if ch := am.ChannelByContract(event.Contract); ch != nil {
			ch.HandleClosed(event.Block)
		}

	case chain.EventChannelSettled:
		if ch := am.ChannelByContract(event.Contract); ch != nil {
			ch.HandleSettled(event.Block)
		}
	}
}

// onNewBlock sweeps expired locks whenever the chain advances.
func (s *Service) onNewBlock(block uint64) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for _, am := range s.managers {
		am.ExpireLocks(block)
	}
	return nil
}

// HandleMessage dispatches one verified, deduplicated inbound message. A
// nil return makes the protocol engine acknowledge it; an error turns into
// a negative acknowledgement carrying the domain failure.
//
// This is part of the protocol.Handler interface.
func (s *Service) HandleMessage(sender nwire.Address,
	msg nwire.SignedMessager) error {

	if atomic.LoadInt32(&s.shutdown) != 0 {
		return ErrServiceShutdown
	}

	switch m := msg.(type) {
	case *nwire.Ping:
		// Liveness only; the ack is the answer.
		return nil

	case *nwire.DirectTransfer:
		return s.onDirectTransfer(sender, m)

	case *nwire.MediatedTransfer:
		return s.onMediatedTransfer(sender, m)

	case *nwire.SecretRequest:
		s.dispatchToTask(m.Hashlock, m)
		return nil

	case *nwire.Secret:
		s.onSecret(m)
		return nil

	case *nwire.TransferTimeout:
		return s.onTransferTimeout(sender, m)

	case *nwire.CancelTransfer:
		s.dispatchToTask(m.Hashlock, m)
		return nil

	default:
		log.Warnf("no handler for %T from %v", msg, sender)
		return nil
	}
}

func (s *Service) onDirectTransfer(sender nwire.Address,
	msg *nwire.DirectTransfer) error {

	s.mtx.Lock()
	defer s.mtx.Unlock()

	am, ok := s.managers[msg.Asset]
	if !ok {
		return ErrInvalidAddress
	}
	ch := am.Channel(sender)
	if ch == nil {
		return ErrInvalidAddress
	}

	// TransferredAmount is cumulative; this transfer's amount is the
	// increase over the partner's previous total.
	prevTransferred := ch.PartnerState.TransferredAmount
	if err := ch.RegisterTransfer(msg); err != nil {
		return err
	}

	am.tm.settleRequest(sender, msg.TransferredAmount-prevTransferred)
	return nil
}

func (s *Service) onMediatedTransfer(sender nwire.Address,
	msg *nwire.MediatedTransfer) error {

	s.mtx.Lock()
	defer s.mtx.Unlock()

	am, ok := s.managers[msg.Asset]
	if !ok {
		return ErrInvalidAddress
	}
	ch := am.Channel(sender)
	if ch == nil {
		return ErrInvalidAddress
	}

	// Refuse before touching the channel if the hashlock is already
	// driven by a local task.
	if msg.Target != s.address && am.tm.task(msg.Lock.Hashlock) != nil {
		return ErrDuplicateTransfer
	}

	if err := ch.RegisterTransfer(msg); err != nil {
		return err
	}

	if msg.Target == s.address {
		// We are the payment's target: ask the initiator to reveal.
		// The request is sent from its own goroutine, so neither this
		// handler nor the transfer's acknowledgement waits for it.
		s.wg.Add(1)
		go s.requestSecret(msg)
		return nil
	}

	return am.tm.startMediator(sender, msg)
}

// requestSecret sends the target-side SecretRequest for a received payment.
//
// NOTE: This method MUST be run as a goroutine.
func (s *Service) requestSecret(msg *nwire.MediatedTransfer) {
	defer s.wg.Done()

	request := nwire.NewSecretRequest(s.address, msg.Lock.Hashlock)
	if err := s.proto.Send(msg.Initiator, request); err != nil {
		log.Errorf("unable to request secret from %v: %v",
			msg.Initiator, err)
	}
}

func (s *Service) onSecret(msg *nwire.Secret) {
	// The secret both settles channel locks and completes tasks: apply
	// it to every channel of every asset, then wake the task keyed by
	// its hashlock so it can propagate or finish.
	s.mtx.Lock()
	for _, am := range s.managers {
		am.RegisterSecret(msg.Secret)
	}
	s.mtx.Unlock()

	s.dispatchToTask(msg.Hashlock(), msg)
}

func (s *Service) onTransferTimeout(sender nwire.Address,
	msg *nwire.TransferTimeout) error {

	// The sender is withdrawing its own pending lock; drop it from our
	// view of the shared channel.
	s.mtx.Lock()
	for _, am := range s.managers {
		ch := am.Channel(sender)
		if ch == nil {
			continue
		}
		if _, ok := ch.PartnerState.GetLock(msg.Hashlock); !ok {
			continue
		}
		if err := ch.WithdrawLock(sender, msg.Hashlock); err != nil {
			log.Debugf("unable to drop lock %v: %v", msg.Hashlock,
				err)
		}
	}
	s.mtx.Unlock()

	s.dispatchToTask(msg.Hashlock, msg)
	return nil
}

// dispatchToTask routes a message to the in-flight transfer task keyed by
// the hashlock, if any. Events for unknown hashlocks are dropped: the task
// may have terminated while the message was in flight.
func (s *Service) dispatchToTask(hashlock nwire.Hash,
	msg nwire.SignedMessager) {

	s.mtx.Lock()
	var task *transferTask
	for _, am := range s.managers {
		if t := am.tm.task(hashlock); t != nil {
			task = t
			break
		}
	}
	s.mtx.Unlock()

	if task == nil {
		log.Debugf("no task for hashlock=%v, dropping %T", hashlock,
			msg)
		return
	}

	task.deliver(msg)
}
