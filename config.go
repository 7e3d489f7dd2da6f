package nnd

import (
	"time"

	"github.com/nettingnetwork/nnd/protocol"
	"github.com/nettingnetwork/nnd/routing"
)

const (
	// DefaultRevealTimeout is the safety margin, in blocks, a node
	// demands between learning a secret and the expiration of the lock it
	// opens.
	DefaultRevealTimeout = 3

	// DefaultTimeoutPerHop is how long a transfer task waits per
	// remaining hop before cancelling the payment.
	DefaultTimeoutPerHop = 10 * time.Second

	// DefaultBlockPollInterval is the cadence at which the chain is
	// polled for new blocks.
	DefaultBlockPollInterval = time.Second
)

// Config bundles the node's tunables.
type Config struct {
	// RevealTimeout is applied to every channel this node opens its view
	// of.
	RevealTimeout uint64

	// TimeoutPerHop scales a payment's deadline by its remaining hops.
	TimeoutPerHop time.Duration

	// MaxPaths bounds how many candidate routes a transfer tries.
	MaxPaths int

	// BlockPollInterval is the chain poller's cadence.
	BlockPollInterval time.Duration

	// Protocol carries the message engine's tunables.
	Protocol protocol.Config
}

// DefaultConfig returns the standard node tunables.
func DefaultConfig() *Config {
	return &Config{
		RevealTimeout:     DefaultRevealTimeout,
		TimeoutPerHop:     DefaultTimeoutPerHop,
		MaxPaths:          routing.DefaultMaxPaths,
		BlockPollInterval: DefaultBlockPollInterval,
		Protocol:          protocol.DefaultConfig(),
	}
}
