package nnd

import (
	"sync/atomic"
	"time"

	"github.com/nettingnetwork/nnd/channel"
	"github.com/nettingnetwork/nnd/nwire"
)

// taskRole distinguishes the two ends a transfer task can drive.
type taskRole uint8

const (
	roleInitiator taskRole = iota
	roleMediator
)

// taskState tracks a transfer task through its lifecycle. Terminal states
// are settled, noPath, timedOut and cancelled.
type taskState uint32

const (
	taskInit taskState = iota
	taskPathChosen
	taskLockSent
	taskSecretRevealed
	taskSettled
	taskNoPath
	taskTimedOut
	taskCancelled
)

// String returns a human readable task state.
func (s taskState) String() string {
	switch s {
	case taskInit:
		return "init"
	case taskPathChosen:
		return "path_chosen"
	case taskLockSent:
		return "lock_sent"
	case taskSecretRevealed:
		return "secret_revealed"
	case taskSettled:
		return "settled"
	case taskNoPath:
		return "no_path"
	case taskTimedOut:
		return "timed_out"
	case taskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// transferTask is one node's involvement in one payment, keyed by hashlock.
// The coordinator feeds it the wire events that reference its hashlock; the
// task's run loop owns all protocol decisions.
type transferTask struct {
	tm       *TransferManager
	role     taskRole
	hashlock nwire.Hash

	// state is accessed atomically so that State can be called from
	// outside the goroutine running the task.
	state uint32

	// events carries the task's wire messages from the coordinator. The
	// buffer absorbs bursts; a full buffer drops the message. The
	// coordinator acknowledges the message either way, so the sender does
	// not retransmit a dropped one.
	events chan nwire.SignedMessager
}

func newTransferTask(tm *TransferManager, role taskRole,
	hashlock nwire.Hash) *transferTask {

	return &transferTask{
		tm:       tm,
		role:     role,
		hashlock: hashlock,
		events:   make(chan nwire.SignedMessager, 16),
	}
}

func (t *transferTask) setState(s taskState) {
	atomic.StoreUint32(&t.state, uint32(s))
}

// State returns the task's current lifecycle state.
func (t *transferTask) State() taskState {
	return taskState(atomic.LoadUint32(&t.state))
}

// deliver hands a wire event to the task without blocking the coordinator.
func (t *transferTask) deliver(msg nwire.SignedMessager) {
	select {
	case t.events <- msg:
	default:
		log.Warnf("task %v dropping %T, event buffer full",
			t.hashlock, msg)
	}
}

// runInitiator drives an outgoing routed payment to completion, blocking
// its caller until the payment settled or failed. Candidate routes are
// tried in shortest-path order; a refused or unreachable first hop moves on
// to the next candidate.
func (tm *TransferManager) runInitiator(amount nwire.Amount,
	target nwire.Address) error {

	svc := tm.svc

	secret, err := newSecret()
	if err != nil {
		return err
	}
	hashlock := nwire.HashSecret(secret)

	task := newTransferTask(tm, roleInitiator, hashlock)

	svc.mtx.Lock()
	if err := tm.registerTask(task); err != nil {
		svc.mtx.Unlock()
		return err
	}
	paths := tm.am.graph.ShortestPaths(svc.address, target,
		svc.cfg.MaxPaths)
	svc.mtx.Unlock()
	defer tm.removeTask(hashlock)

	if len(paths) == 0 {
		task.setState(taskNoPath)
		return ErrNoPath
	}
	task.setState(taskPathChosen)

	// Distinguishes "no route at all" from "routes exist but none has
	// capacity" for the caller.
	capacityShort := false

	for _, path := range paths {
		hop := path[1]

		svc.mtx.Lock()
		ch := tm.am.Channel(hop)
		if ch == nil || ch.State() != channel.StateOpened {
			svc.mtx.Unlock()
			continue
		}
		if ch.Distributable() < amount {
			capacityShort = true
			svc.mtx.Unlock()
			continue
		}

		expiration := svc.chain.CurrentBlock() + ch.SettleTimeout
		transfer, err := ch.CreateMediatedTransfer(
			amount, hashlock, expiration, target, svc.address, 0,
		)
		if err == nil {
			err = nwire.SignMessage(svc.priv, transfer)
		}
		if err == nil {
			err = ch.RegisterTransfer(transfer)
		}
		svc.mtx.Unlock()
		if err != nil {
			log.Debugf("skipping route via %v: %v", hop, err)
			continue
		}

		task.setState(taskLockSent)
		log.Infof("mediated transfer of %d %v to %v via %v, "+
			"hashlock=%v", amount, tm.am.asset, target, hop,
			hashlock)

		if err := svc.proto.Send(hop, transfer); err != nil {
			log.Warnf("first hop %v refused transfer: %v", hop, err)
			tm.withdrawOwnLock(hop, hashlock)
			continue
		}

		hopsRemaining := len(path) - 1
		settled, retry := tm.awaitSecretRequest(
			task, transfer, secret, hop, hopsRemaining,
		)
		if settled != nil {
			return settled()
		}
		if !retry {
			return ErrTransferTimeout
		}
	}

	task.setState(taskNoPath)
	if capacityShort {
		return channel.ErrInsufficientBalance
	}
	return ErrNoPath
}

// awaitSecretRequest waits for the target's SecretRequest after the lock
// went out on a route. It returns a non-nil settled closure when the
// secret is to be revealed or the service is shutting down, retry=true when
// the route was cancelled and the next candidate should be tried, and a nil
// closure with retry=false when the deadline passed and the route's lock
// was withdrawn.
func (tm *TransferManager) awaitSecretRequest(task *transferTask,
	transfer *nwire.MediatedTransfer, secret nwire.Hash,
	hop nwire.Address, hopsRemaining int) (func() error, bool) {

	svc := tm.svc
	hashlock := task.hashlock

	deadline := time.NewTimer(
		time.Duration(hopsRemaining) * svc.cfg.TimeoutPerHop,
	)
	defer deadline.Stop()

	for {
		select {
		case msg := <-task.events:
			switch m := msg.(type) {
			case *nwire.SecretRequest:
				if m.Hashlock != hashlock {
					continue
				}

				task.setState(taskSecretRevealed)
				return func() error {
					return tm.revealSecret(task, secret, hop)
				}, false

			case *nwire.CancelTransfer:
				log.Infof("route via %v cancelled for "+
					"hashlock=%v", hop, hashlock)
				tm.withdrawOwnLock(hop, hashlock)
				return nil, true
			}

		case <-deadline.C:
			log.Warnf("transfer hashlock=%v timed out waiting "+
				"for secret request", hashlock)
			tm.cancelRoute(task, transfer, hop, taskTimedOut)
			return nil, false

		case <-svc.quit:
			tm.cancelRoute(task, transfer, hop, taskCancelled)
			return func() error { return ErrServiceShutdown }, false
		}
	}
}

// revealSecret completes a payment: the secret is registered locally, then
// propagated to the first hop so it can travel the path toward the target.
func (tm *TransferManager) revealSecret(task *transferTask,
	secret nwire.Hash, hop nwire.Address) error {

	svc := tm.svc

	svc.mtx.Lock()
	tm.am.RegisterSecret(secret)
	svc.mtx.Unlock()

	secretMsg := nwire.NewSecret(svc.address, secret)
	if err := svc.proto.Send(hop, secretMsg); err != nil {
		// The lock on our channel is already settled; the secret is
		// not sent to the hop again.
		log.Errorf("unable to propagate secret to %v: %v", hop, err)
		return err
	}

	task.setState(taskSettled)
	return nil
}

// cancelRoute withdraws the pending lock on the current route and tells the
// first hop the transfer is off.
func (tm *TransferManager) cancelRoute(task *transferTask,
	transfer *nwire.MediatedTransfer, hop nwire.Address,
	terminal taskState) {

	svc := tm.svc

	echo, err := nwire.EchoHash(transfer)
	if err != nil {
		log.Errorf("unable to hash transfer: %v", err)
	}

	tm.withdrawOwnLock(hop, task.hashlock)
	task.setState(terminal)

	timeout := nwire.NewTransferTimeout(svc.address, task.hashlock, echo)
	if err := svc.proto.Send(hop, timeout); err != nil {
		log.Debugf("unable to notify %v of timeout: %v", hop, err)
	}
}

// startMediator spawns the task relaying a mediated transfer that arrived
// from the upstream hop. The caller must hold the service mutex and have
// already applied the transfer to the upstream channel.
func (tm *TransferManager) startMediator(from nwire.Address,
	transfer *nwire.MediatedTransfer) error {

	task := newTransferTask(tm, roleMediator, transfer.Lock.Hashlock)
	if err := tm.registerTask(task); err != nil {
		return err
	}

	tm.svc.wg.Add(1)
	go tm.runMediator(task, from, transfer)

	return nil
}

// runMediator forwards a mediated transfer one hop closer to its target and
// shepherds the secret back once it appears.
//
// NOTE: This method MUST be run as a goroutine.
func (tm *TransferManager) runMediator(task *transferTask,
	from nwire.Address, inbound *nwire.MediatedTransfer) {

	svc := tm.svc
	defer svc.wg.Done()
	defer tm.removeTask(task.hashlock)

	amount := inbound.Lock.Amount
	hashlock := inbound.Lock.Hashlock

	svc.mtx.Lock()
	paths := tm.am.graph.ShortestPaths(svc.address, inbound.Target,
		svc.cfg.MaxPaths)
	svc.mtx.Unlock()
	task.setState(taskPathChosen)

	for _, path := range paths {
		hop := path[1]
		if hop == from {
			continue
		}

		svc.mtx.Lock()
		ch := tm.am.Channel(hop)
		if ch == nil || ch.State() != channel.StateOpened ||
			ch.Distributable() < amount {

			svc.mtx.Unlock()
			continue
		}

		// Each hop must shorten the expiration enough that the secret
		// can still travel back before the upstream lock expires.
		if inbound.Lock.Expiration < ch.RevealTimeout {
			svc.mtx.Unlock()
			continue
		}
		expiration := inbound.Lock.Expiration - ch.RevealTimeout
		if expiration < svc.chain.CurrentBlock()+ch.RevealTimeout {
			svc.mtx.Unlock()
			continue
		}

		outbound, err := ch.CreateMediatedTransfer(
			amount, hashlock, expiration, inbound.Target,
			inbound.Initiator, inbound.Fee,
		)
		if err == nil {
			err = nwire.SignMessage(svc.priv, outbound)
		}
		if err == nil {
			err = ch.RegisterTransfer(outbound)
		}
		svc.mtx.Unlock()
		if err != nil {
			log.Debugf("skipping forward via %v: %v", hop, err)
			continue
		}

		task.setState(taskLockSent)
		log.Infof("forwarding transfer hashlock=%v via %v, "+
			"expiration=%d", hashlock, hop, expiration)

		if err := svc.proto.Send(hop, outbound); err != nil {
			log.Warnf("next hop %v refused forward: %v", hop, err)
			tm.withdrawOwnLock(hop, hashlock)
			continue
		}

		if tm.mediateRoute(task, from, hop, outbound, len(path)-1) {
			return
		}
	}

	// No viable next hop: drop the upstream lock and refuse the payment.
	log.Warnf("no route to forward hashlock=%v toward %v", hashlock,
		inbound.Target)
	tm.refuseUpstream(task, from, hashlock, taskNoPath)
}

// mediateRoute waits on one forwarded route. It returns true when the task
// is finished, false when the route failed and the next candidate should be
// tried.
func (tm *TransferManager) mediateRoute(task *transferTask,
	from, hop nwire.Address, outbound *nwire.MediatedTransfer,
	hopsRemaining int) bool {

	svc := tm.svc
	hashlock := task.hashlock

	deadline := time.NewTimer(
		time.Duration(hopsRemaining) * svc.cfg.TimeoutPerHop,
	)
	defer deadline.Stop()

	for {
		select {
		case msg := <-task.events:
			switch m := msg.(type) {
			case *nwire.Secret:
				if m.Hashlock() != hashlock {
					continue
				}

				// The coordinator already settled our
				// channels; pass the secret along so the
				// remaining hops and the target learn it too.
				task.setState(taskSecretRevealed)
				forward := nwire.NewSecret(svc.address,
					m.Secret)
				if err := svc.proto.Send(hop, forward); err != nil {
					log.Errorf("unable to forward secret "+
						"to %v: %v", hop, err)
				}
				task.setState(taskSettled)
				return true

			case *nwire.TransferTimeout:
				// Upstream gave up; unwind our own lock
				// downstream and bow out.
				tm.cancelDownstream(hop, hashlock, outbound)
				task.setState(taskCancelled)
				return true

			case *nwire.CancelTransfer:
				// Downstream refused; retry remaining routes.
				tm.withdrawOwnLock(hop, hashlock)
				return false
			}

		case <-deadline.C:
			log.Warnf("mediation of hashlock=%v timed out",
				hashlock)
			tm.cancelDownstream(hop, hashlock, outbound)
			tm.refuseUpstream(task, from, hashlock, taskTimedOut)
			return true

		case <-svc.quit:
			tm.cancelDownstream(hop, hashlock, outbound)
			task.setState(taskCancelled)
			return true
		}
	}
}

// cancelDownstream withdraws this node's forwarded lock and tells the next
// hop the transfer is off.
func (tm *TransferManager) cancelDownstream(hop nwire.Address,
	hashlock nwire.Hash, outbound *nwire.MediatedTransfer) {

	svc := tm.svc

	echo, err := nwire.EchoHash(outbound)
	if err != nil {
		log.Errorf("unable to hash transfer: %v", err)
	}

	tm.withdrawOwnLock(hop, hashlock)

	timeout := nwire.NewTransferTimeout(svc.address, hashlock, echo)
	if err := svc.proto.Send(hop, timeout); err != nil {
		log.Debugf("unable to notify %v of timeout: %v", hop, err)
	}
}

// refuseUpstream drops the upstream hop's lock from our view and sends the
// CancelTransfer that lets it unwind or reroute.
func (tm *TransferManager) refuseUpstream(task *transferTask,
	from nwire.Address, hashlock nwire.Hash, terminal taskState) {

	svc := tm.svc

	svc.mtx.Lock()
	if ch := tm.am.Channel(from); ch != nil {
		if err := ch.WithdrawLock(from, hashlock); err != nil {
			log.Debugf("unable to drop upstream lock %v: %v",
				hashlock, err)
		}
	}
	svc.mtx.Unlock()

	task.setState(terminal)

	cancel := nwire.NewCancelTransfer(svc.address, hashlock)
	if err := svc.proto.Send(from, cancel); err != nil {
		log.Debugf("unable to refuse transfer to %v: %v", from, err)
	}
}
