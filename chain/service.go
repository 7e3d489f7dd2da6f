package chain

import (
	"github.com/nettingnetwork/nnd/nwire"
)

// ContractDetail describes one netting contract from the point of view of a
// given participant.
type ContractDetail struct {
	// OurBalance is the collateral the queried participant deposited.
	OurBalance nwire.Amount

	// PartnerAddress is the other participant.
	PartnerAddress nwire.Address

	// PartnerBalance is the collateral the partner deposited.
	PartnerBalance nwire.Amount

	// OpenedBlock is the block at which the contract became usable.
	OpenedBlock uint64

	// SettleTimeout is the number of blocks between close and settlement.
	SettleTimeout uint64
}

// EventType enumerates the channel lifecycle events the chain reports.
type EventType uint8

const (
	// EventChannelOpened fires when a new netting contract is usable.
	EventChannelOpened EventType = iota

	// EventChannelClosed fires when either participant closed the
	// contract on chain.
	EventChannelClosed

	// EventChannelSettled fires when the contract's collateral has been
	// paid out.
	EventChannelSettled
)

// Event is one channel lifecycle notification.
type Event struct {
	// Type is the kind of lifecycle transition.
	Type EventType

	// Asset is the token network the contract belongs to.
	Asset nwire.AssetID

	// Contract is the netting contract's address.
	Contract nwire.Address

	// Participants are the two channel endpoints.
	Participants [2]nwire.Address

	// Block is the height the event was mined at.
	Block uint64
}

// Service is the node's oracle onto the blockchain. Implementations wrap a
// real chain client; tests use the in-memory MockChain. All methods may be
// called concurrently.
type Service interface {
	// NettingAddressesByAssetParticipant returns the addresses of every
	// netting contract for the asset that the participant is part of.
	NettingAddressesByAssetParticipant(asset nwire.AssetID,
		participant nwire.Address) ([]nwire.Address, error)

	// NettingContractDetail returns the contract's balances and timeouts
	// as seen by the passed participant.
	NettingContractDetail(asset nwire.AssetID, contract nwire.Address,
		participant nwire.Address) (*ContractDetail, error)

	// AddressesByAsset returns the endpoint pairs of every channel known
	// for the asset, for graph construction.
	AddressesByAsset(asset nwire.AssetID) ([][2]nwire.Address, error)

	// CurrentBlock returns the best known block height.
	CurrentBlock() uint64

	// Events returns the stream of channel lifecycle events. The channel
	// is closed when the service shuts down.
	Events() <-chan *Event
}

// Registry enumerates the assets a chain registry contract tracks. The node
// scans each registered asset for channels involving itself.
type Registry interface {
	Assets() ([]nwire.AssetID, error)
}
