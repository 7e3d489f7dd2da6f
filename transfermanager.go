package nnd

import (
	"crypto/rand"

	"github.com/nettingnetwork/nnd/channel"
	"github.com/nettingnetwork/nnd/nwire"
)

// pullRequest records a scheduled pull payment: this node expects the
// target to route amount back to it. The solicitation itself travels over a
// side channel (an invoice, an RPC between operators); the node's part is
// matching the incoming transfer against the outstanding request.
type pullRequest struct {
	target nwire.Address
	amount nwire.Amount
}

// TransferManager drives payments for one asset: direct transfers to
// channel partners, initiator tasks for routed payments, and mediator tasks
// for payments passing through this node. The task registry enforces that at
// most one transfer is in flight per hashlock.
type TransferManager struct {
	svc *Service
	am  *AssetManager

	// tasks maps hashlock to the in-flight transfer task. Guarded by the
	// service mutex; entries are removed when their task terminates.
	tasks map[nwire.Hash]*transferTask

	// requests holds the outstanding pull payments. Guarded by the
	// service mutex.
	requests []pullRequest
}

func newTransferManager(svc *Service, am *AssetManager) *TransferManager {
	return &TransferManager{
		svc:   svc,
		am:    am,
		tasks: make(map[nwire.Hash]*transferTask),
	}
}

// Transfer moves amount to target, blocking until the payment settled or
// failed. A funded direct channel short-circuits into a DirectTransfer;
// anything else starts an initiator task that routes a mediated transfer.
func (tm *TransferManager) Transfer(amount nwire.Amount,
	target nwire.Address) error {

	tm.svc.mtx.Lock()
	ch := tm.am.Channel(target)
	direct := ch != nil && ch.State() == channel.StateOpened &&
		ch.Distributable() >= amount
	tm.svc.mtx.Unlock()

	if direct {
		return tm.transferDirect(amount, target)
	}
	return tm.runInitiator(amount, target)
}

// transferDirect performs the single-channel payment path: prepare, sign,
// apply locally, then deliver to the partner.
func (tm *TransferManager) transferDirect(amount nwire.Amount,
	target nwire.Address) error {

	tm.svc.mtx.Lock()
	ch := tm.am.Channel(target)
	if ch == nil {
		tm.svc.mtx.Unlock()
		return ErrNoPath
	}

	transfer, err := ch.CreateDirectTransfer(amount)
	if err != nil {
		tm.svc.mtx.Unlock()
		return err
	}
	if err := nwire.SignMessage(tm.svc.priv, transfer); err != nil {
		tm.svc.mtx.Unlock()
		return err
	}
	if err := ch.RegisterTransfer(transfer); err != nil {
		tm.svc.mtx.Unlock()
		return err
	}
	tm.svc.mtx.Unlock()

	log.Infof("direct transfer of %d %v to %v", amount, tm.am.asset,
		target)

	return tm.svc.proto.Send(target, transfer)
}

// RequestTransfer schedules a pull payment of amount from target.
func (tm *TransferManager) RequestTransfer(amount nwire.Amount,
	target nwire.Address) {

	tm.svc.mtx.Lock()
	tm.requests = append(tm.requests, pullRequest{
		target: target,
		amount: amount,
	})
	tm.svc.mtx.Unlock()

	log.Infof("scheduled pull payment of %d %v from %v", amount,
		tm.am.asset, target)
}

// PendingRequests returns the outstanding pull payments.
func (tm *TransferManager) PendingRequests() []pullRequest {
	tm.svc.mtx.Lock()
	defer tm.svc.mtx.Unlock()

	reqs := make([]pullRequest, len(tm.requests))
	copy(reqs, tm.requests)
	return reqs
}

// settleRequest drops the first pull request matched by an incoming
// transfer. The caller must hold the service mutex.
func (tm *TransferManager) settleRequest(from nwire.Address,
	amount nwire.Amount) {

	for i, req := range tm.requests {
		if req.target == from && req.amount == amount {
			tm.requests = append(tm.requests[:i],
				tm.requests[i+1:]...)
			return
		}
	}
}

// registerTask claims the hashlock for a new task. The caller must hold the
// service mutex.
func (tm *TransferManager) registerTask(task *transferTask) error {
	if _, ok := tm.tasks[task.hashlock]; ok {
		return ErrDuplicateTransfer
	}
	tm.tasks[task.hashlock] = task
	return nil
}

// removeTask drains the hashlock's registry entry. Leaving an entry behind
// would block any future transfer reusing the hashlock, so tasks always
// remove themselves on the way out.
func (tm *TransferManager) removeTask(hashlock nwire.Hash) {
	tm.svc.mtx.Lock()
	delete(tm.tasks, hashlock)
	tm.svc.mtx.Unlock()
}

// task returns the in-flight task for a hashlock. The caller must hold the
// service mutex.
func (tm *TransferManager) task(hashlock nwire.Hash) *transferTask {
	return tm.tasks[hashlock]
}

// withdrawOwnLock consensually removes this node's pending lock toward the
// passed partner, returning the amount to the spendable balance.
func (tm *TransferManager) withdrawOwnLock(partner nwire.Address,
	hashlock nwire.Hash) {

	tm.svc.mtx.Lock()
	defer tm.svc.mtx.Unlock()

	ch := tm.am.Channel(partner)
	if ch == nil {
		return
	}
	if err := ch.WithdrawLock(tm.svc.address, hashlock); err != nil {
		log.Debugf("unable to withdraw own lock %v on channel with "+
			"%v: %v", hashlock, partner, err)
	}
}

// newSecret draws a fresh payment secret.
func newSecret() (nwire.Hash, error) {
	var secret nwire.Hash
	if _, err := rand.Read(secret[:]); err != nil {
		return secret, err
	}
	return secret, nil
}
