package nnd

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/nettingnetwork/nnd/chain"
	"github.com/nettingnetwork/nnd/channel"
	"github.com/nettingnetwork/nnd/crypto"
	"github.com/nettingnetwork/nnd/discovery"
	"github.com/nettingnetwork/nnd/nwire"
	"github.com/nettingnetwork/nnd/protocol"
)

var testAsset = nwire.AssetID{0x01}

const testChanSettleTimeout = uint64(50)

// testNodeConfig shrinks the timers so scenario tests settle in
// milliseconds.
func testNodeConfig() *Config {
	cfg := DefaultConfig()
	cfg.TimeoutPerHop = 300 * time.Millisecond
	cfg.BlockPollInterval = time.Hour
	cfg.Protocol = protocol.Config{
		RetryBaseTimeout: 25 * time.Millisecond,
		RetryMaxTimeout:  100 * time.Millisecond,
		MaxRetries:       4,
	}
	return cfg
}

// testNetwork is an in-process cluster of nodes joined by a line of funded
// channels: node 0 - node 1 - ... - node n-1, all on one asset.
type testNetwork struct {
	t *testing.T

	chain *chain.MockChain
	net   *protocol.MockNetwork

	services  []*Service
	apis      []*API
	contracts []nwire.Address
}

// createNetwork mirrors the cluster bootstrap the simulation front-end
// performs: fund a line of netting contracts on the mock chain, then boot
// one node per key and point each at the registry.
func createNetwork(t *testing.T, numNodes int,
	balance nwire.Amount) *testNetwork {

	t.Helper()

	tn := &testNetwork{
		t:     t,
		chain: chain.NewMockChain(1),
		net:   protocol.NewMockNetwork(),
	}
	tn.chain.RegisterAsset(testAsset)

	privs := make([]*btcec.PrivateKey, 0, numNodes)
	addrs := make([]nwire.Address, 0, numNodes)
	for i := 0; i < numNodes; i++ {
		priv, err := crypto.GeneratePrivKey()
		require.NoError(t, err)
		privs = append(privs, priv)
		addrs = append(addrs, nwire.Address(
			crypto.PubKeyToAddress(priv.PubKey()),
		))
	}

	// Fund the contracts before any node boots so the registry scan sees
	// the full topology.
	for i := 0; i < numNodes-1; i++ {
		contract := tn.chain.OpenChannel(
			testAsset, addrs[i], addrs[i+1], balance, balance,
			testChanSettleTimeout,
		)
		tn.contracts = append(tn.contracts, contract)
	}

	for i := 0; i < numNodes; i++ {
		transport := tn.net.Endpoint(addrs[i])
		svc := NewService(
			testNodeConfig(), privs[i], tn.chain,
			discovery.NewInMemoryDiscovery(), transport,
		)
		transport.OnReceive(svc.Protocol().OnRaw)

		require.NoError(t, svc.Start())
		require.NoError(t, svc.AdvertiseEndpoint("127.0.0.1", 40000+i))
		require.NoError(t, svc.RegisterRegistry(tn.chain))

		tn.services = append(tn.services, svc)
		tn.apis = append(tn.apis, svc.API())
	}

	t.Cleanup(func() {
		for _, svc := range tn.services {
			_ = svc.Stop()
		}
		tn.net.Stop()
	})

	return tn
}

func (tn *testNetwork) addr(i int) nwire.Address {
	return tn.services[i].Address()
}

// withChannel runs fn on node i's view of its channel with node j while
// holding node i's coordinator mutex, so reads cannot race with handlers.
func (tn *testNetwork) withChannel(i, j int, fn func(ch *channel.Channel)) {
	svc := tn.services[i]
	svc.mtx.Lock()
	defer svc.mtx.Unlock()

	am := svc.managers[testAsset]
	require.NotNil(tn.t, am)
	ch := am.Channel(tn.addr(j))
	require.NotNil(tn.t, ch)
	fn(ch)
}

// balanceOf returns node i's net balance on its channel with node j.
func (tn *testNetwork) balanceOf(i, j int) nwire.Amount {
	var balance nwire.Amount
	tn.withChannel(i, j, func(ch *channel.Channel) {
		balance = ch.Balance()
	})
	return balance
}

// distributableOf returns node i's spendable balance toward node j.
func (tn *testNetwork) distributableOf(i, j int) nwire.Amount {
	var distributable nwire.Amount
	tn.withChannel(i, j, func(ch *channel.Channel) {
		distributable = ch.Distributable()
	})
	return distributable
}

// nextNonceOf returns the nonce node i expects node j to use next on their
// shared channel.
func (tn *testNetwork) nextNonceOf(i, j int) uint64 {
	var nonce uint64
	tn.withChannel(i, j, func(ch *channel.Channel) {
		nonce = ch.PartnerState.NextNonce()
	})
	return nonce
}

// numTasks counts the in-flight transfer tasks across the whole cluster.
func (tn *testNetwork) numTasks() int {
	total := 0
	for _, svc := range tn.services {
		svc.mtx.Lock()
		for _, am := range svc.managers {
			total += len(am.tm.tasks)
		}
		svc.mtx.Unlock()
	}
	return total
}

// numPendingLocks counts the pending locks across every node's channel
// views.
func (tn *testNetwork) numPendingLocks() int {
	total := 0
	for _, svc := range tn.services {
		svc.mtx.Lock()
		for _, am := range svc.managers {
			for _, partner := range am.Partners() {
				ch := am.Channel(partner)
				total += len(ch.OurState.PendingLocks())
				total += len(ch.PartnerState.PendingLocks())
			}
		}
		svc.mtx.Unlock()
	}
	return total
}

// frameCounts tallies every frame the mock network carried, by message
// type.
func (tn *testNetwork) frameCounts() map[nwire.MessageType]int {
	counts := make(map[nwire.MessageType]int)
	for _, f := range tn.net.SentFrames() {
		msg, err := nwire.DecodeMessage(f.Frame)
		require.NoError(tn.t, err)
		counts[msg.MsgType()]++
	}
	return counts
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 10*time.Millisecond, msg)
}
