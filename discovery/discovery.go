package discovery

import (
	"fmt"
	"sync"

	"github.com/nettingnetwork/nnd/nwire"
)

// Endpoint is the transport location of a node.
type Endpoint struct {
	Host string
	Port int
}

// Discoverer maps node addresses to transport endpoints. A production
// implementation is backed by an on-chain or DHT registry; the in-memory
// implementation below serves single-process clusters and tests.
type Discoverer interface {
	// Register advertises the endpoint for the passed address.
	Register(addr nwire.Address, host string, port int) error

	// Lookup resolves the endpoint for the passed address.
	Lookup(addr nwire.Address) (Endpoint, error)
}

// InMemoryDiscovery is a process-local Discoverer.
type InMemoryDiscovery struct {
	mtx       sync.RWMutex
	endpoints map[nwire.Address]Endpoint
}

// A compile time check to ensure InMemoryDiscovery implements the
// discovery.Discoverer interface.
var _ Discoverer = (*InMemoryDiscovery)(nil)

// NewInMemoryDiscovery creates an empty registry.
func NewInMemoryDiscovery() *InMemoryDiscovery {
	return &InMemoryDiscovery{
		endpoints: make(map[nwire.Address]Endpoint),
	}
}

// Register advertises the endpoint for the passed address.
//
// This is part of the discovery.Discoverer interface.
func (d *InMemoryDiscovery) Register(addr nwire.Address, host string,
	port int) error {

	d.mtx.Lock()
	defer d.mtx.Unlock()
	d.endpoints[addr] = Endpoint{Host: host, Port: port}
	return nil
}

// Lookup resolves the endpoint for the passed address.
//
// This is part of the discovery.Discoverer interface.
func (d *InMemoryDiscovery) Lookup(addr nwire.Address) (Endpoint, error) {
	d.mtx.RLock()
	defer d.mtx.RUnlock()

	ep, ok := d.endpoints[addr]
	if !ok {
		return Endpoint{}, fmt.Errorf("no endpoint registered for %v",
			addr)
	}
	return ep, nil
}
