package chain

import (
	"sync"

	"github.com/go-errors/errors"

	"github.com/nettingnetwork/nnd/crypto"
	"github.com/nettingnetwork/nnd/nwire"
)

// mockContract is one simulated netting contract.
type mockContract struct {
	asset         nwire.AssetID
	address       nwire.Address
	participants  [2]nwire.Address
	balances      map[nwire.Address]nwire.Amount
	openedBlock   uint64
	settleTimeout uint64
	closed        bool
	settled       bool
}

// MockChain is an in-memory chain oracle. It lets tests register assets,
// open and close simulated netting contracts, and advance the block height
// deterministically. It implements both Service and Registry.
type MockChain struct {
	mtx sync.Mutex

	height      uint64
	assets      []nwire.AssetID
	contracts   map[nwire.Address]*mockContract
	subscribers []chan *Event
}

// A compile time check to ensure MockChain implements the chain.Service and
// chain.Registry interfaces.
var _ Service = (*MockChain)(nil)
var _ Registry = (*MockChain)(nil)

// NewMockChain creates a mock chain at the passed starting height.
func NewMockChain(height uint64) *MockChain {
	return &MockChain{
		height:    height,
		contracts: make(map[nwire.Address]*mockContract),
	}
}

// emit fans an event out to every subscriber. The caller must hold m.mtx.
func (m *MockChain) emit(event *Event) {
	for _, sub := range m.subscribers {
		select {
		case sub <- event:
		default:
			// A subscriber that stopped draining loses events,
			// like a disconnected chain client would.
		}
	}
}

// RegisterAsset adds an asset to the registry.
func (m *MockChain) RegisterAsset(asset nwire.AssetID) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	for _, a := range m.assets {
		if a == asset {
			return
		}
	}
	m.assets = append(m.assets, asset)
}

// Assets returns the registered assets.
//
// This is part of the chain.Registry interface.
func (m *MockChain) Assets() ([]nwire.AssetID, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	assets := make([]nwire.AssetID, len(m.assets))
	copy(assets, m.assets)
	return assets, nil
}

// OpenChannel simulates the deployment of a funded netting contract between
// a and b and emits the corresponding event. The contract address is derived
// deterministically from the asset and the participants.
func (m *MockChain) OpenChannel(asset nwire.AssetID, a, b nwire.Address,
	balanceA, balanceB nwire.Amount, settleTimeout uint64) nwire.Address {

	m.mtx.Lock()
	defer m.mtx.Unlock()

	var contract nwire.Address
	digest := crypto.Keccak256(asset[:], a[:], b[:])
	copy(contract[:], digest[:nwire.AddressSize])

	m.contracts[contract] = &mockContract{
		asset:        asset,
		address:      contract,
		participants: [2]nwire.Address{a, b},
		balances: map[nwire.Address]nwire.Amount{
			a: balanceA,
			b: balanceB,
		},
		openedBlock:   m.height,
		settleTimeout: settleTimeout,
	}

	m.emit(&Event{
		Type:         EventChannelOpened,
		Asset:        asset,
		Contract:     contract,
		Participants: [2]nwire.Address{a, b},
		Block:        m.height,
	})

	return contract
}

// CloseChannel simulates an on-chain close of the contract.
func (m *MockChain) CloseChannel(contract nwire.Address) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	c, ok := m.contracts[contract]
	if !ok {
		return errors.New("unknown contract")
	}
	if c.closed {
		return errors.New("contract already closed")
	}
	c.closed = true

	m.emit(&Event{
		Type:         EventChannelClosed,
		Asset:        c.asset,
		Contract:     contract,
		Participants: c.participants,
		Block:        m.height,
	})

	return nil
}

// SettleChannel simulates the contract's settlement payout.
func (m *MockChain) SettleChannel(contract nwire.Address) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	c, ok := m.contracts[contract]
	if !ok {
		return errors.New("unknown contract")
	}
	if !c.closed {
		return errors.New("contract not closed")
	}
	c.settled = true

	m.emit(&Event{
		Type:         EventChannelSettled,
		Asset:        c.asset,
		Contract:     contract,
		Participants: c.participants,
		Block:        m.height,
	})

	return nil
}

// AdvanceBlock moves the chain tip forward by n blocks.
func (m *MockChain) AdvanceBlock(n uint64) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.height += n
}

// NettingAddressesByAssetParticipant returns all contracts for the asset
// that involve the participant.
//
// This is part of the chain.Service interface.
func (m *MockChain) NettingAddressesByAssetParticipant(asset nwire.AssetID,
	participant nwire.Address) ([]nwire.Address, error) {

	m.mtx.Lock()
	defer m.mtx.Unlock()

	var contracts []nwire.Address
	for _, c := range m.contracts {
		if c.asset != asset || c.settled {
			continue
		}
		if c.participants[0] == participant ||
			c.participants[1] == participant {

			contracts = append(contracts, c.address)
		}
	}
	return contracts, nil
}

// NettingContractDetail returns the contract's funding as seen by the
// participant.
//
// This is part of the chain.Service interface.
func (m *MockChain) NettingContractDetail(asset nwire.AssetID,
	contract nwire.Address,
	participant nwire.Address) (*ContractDetail, error) {

	m.mtx.Lock()
	defer m.mtx.Unlock()

	c, ok := m.contracts[contract]
	if !ok || c.asset != asset {
		return nil, errors.New("unknown contract")
	}

	partner := c.participants[0]
	if partner == participant {
		partner = c.participants[1]
	}
	if _, ok := c.balances[participant]; !ok {
		return nil, errors.New("not a contract participant")
	}

	return &ContractDetail{
		OurBalance:     c.balances[participant],
		PartnerAddress: partner,
		PartnerBalance: c.balances[partner],
		OpenedBlock:    c.openedBlock,
		SettleTimeout:  c.settleTimeout,
	}, nil
}

// AddressesByAsset returns the endpoint pairs of every channel for the
// asset.
//
// This is part of the chain.Service interface.
func (m *MockChain) AddressesByAsset(
	asset nwire.AssetID) ([][2]nwire.Address, error) {

	m.mtx.Lock()
	defer m.mtx.Unlock()

	var edges [][2]nwire.Address
	for _, c := range m.contracts {
		if c.asset != asset || c.closed || c.settled {
			continue
		}
		edges = append(edges, c.participants)
	}
	return edges, nil
}

// CurrentBlock returns the simulated chain height.
//
// This is part of the chain.Service interface.
func (m *MockChain) CurrentBlock() uint64 {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.height
}

// Events returns a fresh subscription to the lifecycle event stream. Each
// caller gets its own feed of events emitted after the call.
//
// This is part of the chain.Service interface.
func (m *MockChain) Events() <-chan *Event {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	sub := make(chan *Event, 100)
	m.subscribers = append(m.subscribers, sub)
	return sub
}
