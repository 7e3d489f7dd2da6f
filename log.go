package nnd

import (
	"github.com/btcsuite/btclog"

	"github.com/nettingnetwork/nnd/chain"
	"github.com/nettingnetwork/nnd/channel"
	"github.com/nettingnetwork/nnd/protocol"
)

// log is a logger that is initialized with no output filters. This means the
// package will not perform any logging by default until the caller requests
// it.
var log btclog.Logger

// The default amount of logging is none.
func init() {
	DisableLog()
}

// DisableLog disables all library log output. Logging output is disabled by
// default until UseLogger is called.
func DisableLog() {
	log = btclog.Disabled
}

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// SetupLoggers wires one subsystem logger per package from the passed
// backend, mirroring how the daemon front-end configures logging.
func SetupLoggers(backend *btclog.Backend) {
	UseLogger(backend.Logger("NODE"))
	channel.UseLogger(backend.Logger("CHAN"))
	protocol.UseLogger(backend.Logger("PROT"))
	chain.UseLogger(backend.Logger("CHNS"))
}
