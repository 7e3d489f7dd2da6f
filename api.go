package nnd

import (
	"github.com/nettingnetwork/nnd/chain"
	"github.com/nettingnetwork/nnd/nwire"
)

// API is the node's external interface, the surface an RPC front-end or CLI
// exposes. All addresses cross this boundary in their canonical in-memory
// form; the hex helpers at the bottom are the only conversion point for
// callers holding encoded addresses.
type API struct {
	svc *Service
}

// Assets returns the assets this node currently tracks.
func (a *API) Assets() []nwire.AssetID {
	a.svc.mtx.Lock()
	defer a.svc.mtx.Unlock()

	assets := make([]nwire.AssetID, 0, len(a.svc.managers))
	for asset := range a.svc.managers {
		assets = append(assets, asset)
	}
	return assets
}

// Partners returns the deduplicated addresses of all direct channel
// partners, optionally restricted to one asset.
func (a *API) Partners(asset *nwire.AssetID) ([]nwire.Address, error) {
	a.svc.mtx.Lock()
	defer a.svc.mtx.Unlock()

	if asset != nil {
		am, ok := a.svc.managers[*asset]
		if !ok {
			return nil, ErrInvalidAddress
		}
		return am.Partners(), nil
	}

	seen := make(map[nwire.Address]struct{})
	var partners []nwire.Address
	for _, am := range a.svc.managers {
		for _, partner := range am.Partners() {
			if _, ok := seen[partner]; ok {
				continue
			}
			seen[partner] = struct{}{}
			partners = append(partners, partner)
		}
	}
	return partners, nil
}

// Transfer moves amount of asset to target, blocking until the payment
// settled or definitively failed. The path check runs synchronously: an
// unreachable target fails before any wire traffic.
func (a *API) Transfer(asset nwire.AssetID, amount nwire.Amount,
	target nwire.Address) error {

	if amount == 0 {
		return ErrInvalidAmount
	}
	if target.IsZero() || target == a.svc.address {
		return ErrInvalidAddress
	}

	a.svc.mtx.Lock()
	am, ok := a.svc.managers[asset]
	if !ok {
		a.svc.mtx.Unlock()
		return ErrInvalidAddress
	}
	reachable := am.graph.HasPath(a.svc.address, target)
	a.svc.mtx.Unlock()

	if !reachable {
		return ErrNoPath
	}

	return am.tm.Transfer(amount, target)
}

// RequestTransfer schedules a pull payment of amount of asset from target.
func (a *API) RequestTransfer(asset nwire.AssetID, amount nwire.Amount,
	target nwire.Address) error {

	if amount == 0 {
		return ErrInvalidAmount
	}
	if target.IsZero() {
		return ErrInvalidAddress
	}

	a.svc.mtx.Lock()
	am, ok := a.svc.managers[asset]
	a.svc.mtx.Unlock()
	if !ok {
		return ErrInvalidAddress
	}

	am.tm.RequestTransfer(amount, target)
	return nil
}

// HasPath reports whether the asset's channel graph connects this node to
// the target.
func (a *API) HasPath(asset nwire.AssetID, target nwire.Address) bool {
	a.svc.mtx.Lock()
	am, ok := a.svc.managers[asset]
	a.svc.mtx.Unlock()

	if !ok {
		return false
	}
	return am.graph.HasPath(a.svc.address, target)
}

// RegisterRegistry scans the chain registry for channels involving this
// node and starts tracking them.
func (a *API) RegisterRegistry(reg chain.Registry) error {
	return a.svc.RegisterRegistry(reg)
}

// TransferHex is Transfer for callers holding hex-encoded addresses, e.g.
// an RPC front-end.
func (a *API) TransferHex(assetHex string, amount nwire.Amount,
	targetHex string) error {

	asset, err := nwire.AddressFromHex(assetHex)
	if err != nil {
		return ErrInvalidAddress
	}
	target, err := nwire.AddressFromHex(targetHex)
	if err != nil {
		return ErrInvalidAddress
	}

	return a.Transfer(nwire.AssetID(asset), amount, target)
}

// HasPathHex is HasPath for callers holding hex-encoded addresses.
func (a *API) HasPathHex(assetHex, targetHex string) (bool, error) {
	asset, err := nwire.AddressFromHex(assetHex)
	if err != nil {
		return false, ErrInvalidAddress
	}
	target, err := nwire.AddressFromHex(targetHex)
	if err != nil {
		return false, ErrInvalidAddress
	}

	return a.HasPath(nwire.AssetID(asset), target), nil
}
