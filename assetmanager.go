package nnd

import (
	"github.com/nettingnetwork/nnd/channel"
	"github.com/nettingnetwork/nnd/nwire"
	"github.com/nettingnetwork/nnd/routing"
)

// AssetManager owns everything this node knows about one token network: the
// channels it participates in keyed by partner, the network-wide channel
// graph, and the transfer manager driving payments in the asset. Its state
// is guarded by the service's coordinator mutex.
type AssetManager struct {
	asset nwire.AssetID

	// channels maps partner address to the channel shared with it. At
	// most one channel exists per partner per asset.
	channels map[nwire.Address]*channel.Channel

	// byContract indexes the same channels by netting contract address,
	// for chain event handling.
	byContract map[nwire.Address]*channel.Channel

	// graph is the directed channel graph of the whole asset network.
	graph *routing.ChannelGraph

	// tm drives transfers in this asset.
	tm *TransferManager
}

func newAssetManager(svc *Service, asset nwire.AssetID,
	graph *routing.ChannelGraph) *AssetManager {

	am := &AssetManager{
		asset:      asset,
		channels:   make(map[nwire.Address]*channel.Channel),
		byContract: make(map[nwire.Address]*channel.Channel),
		graph:      graph,
	}
	am.tm = newTransferManager(svc, am)
	return am
}

// Asset returns the token network this manager serves.
func (am *AssetManager) Asset() nwire.AssetID {
	return am.asset
}

// Graph returns the asset's channel graph.
func (am *AssetManager) Graph() *routing.ChannelGraph {
	return am.graph
}

// Channel returns the channel shared with the passed partner, or nil.
func (am *AssetManager) Channel(partner nwire.Address) *channel.Channel {
	return am.channels[partner]
}

// ChannelByContract returns the channel anchored at the passed netting
// contract, or nil.
func (am *AssetManager) ChannelByContract(
	contract nwire.Address) *channel.Channel {

	return am.byContract[contract]
}

// addChannel registers a channel under its partner and contract.
func (am *AssetManager) addChannel(ch *channel.Channel) {
	am.channels[ch.PartnerAddress()] = ch
	am.byContract[ch.ContractAddress] = ch
}

// Partners returns the addresses of all direct channel partners.
func (am *AssetManager) Partners() []nwire.Address {
	partners := make([]nwire.Address, 0, len(am.channels))
	for partner := range am.channels {
		partners = append(partners, partner)
	}
	return partners
}

// RegisterSecret applies a revealed secret to every channel of the asset,
// settling any pending lock it opens.
func (am *AssetManager) RegisterSecret(secret nwire.Hash) {
	for _, ch := range am.channels {
		// Settlement is a no-op on channels without a matching lock.
		if err := ch.RegisterSecret(secret); err != nil {
			log.Errorf("unable to register secret on channel "+
				"%v: %v", ch.ContractAddress, err)
		}
	}
}

// ExpireLocks drops every pending lock that has passed its expiration at
// the given block, on every channel of the asset.
func (am *AssetManager) ExpireLocks(block uint64) {
	for _, ch := range am.channels {
		ch.ExpireLocks(block)
	}
}
