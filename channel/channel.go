package channel

import (
	"fmt"

	"github.com/nettingnetwork/nnd/nwire"
)

// State describes the lifecycle of a channel. Transitions are driven only by
// on-chain events: a channel opens when its netting contract is reported,
// closes when either party commits a balance proof on chain, and settles
// after the settle timeout elapses.
type State uint8

const (
	// StateOpened is the normal operating state.
	StateOpened State = iota

	// StateClosed means the netting contract has been closed on chain and
	// no further off-chain updates are valid.
	StateClosed

	// StateSettled means the collateral has been paid out.
	StateSettled
)

// String returns a human readable channel state.
func (s State) String() string {
	switch s {
	case StateOpened:
		return "opened"
	case StateClosed:
		return "closed"
	case StateSettled:
		return "settled"
	default:
		return fmt.Sprintf("unknown<%d>", s)
	}
}

// BlockSource reports the current chain height. The chain adapter implements
// it; channels use it to judge lock expirations.
type BlockSource interface {
	CurrentBlock() uint64
}

// Channel is the off-chain accounting state machine for one netting
// contract. It validates and applies balance-updating messages from either
// participant and keeps both end states consistent with the partner's view.
//
// A channel performs no I/O and holds no locks of its own: it is owned by
// one asset manager and is only touched while the coordinator serializes
// access, mirroring the protocol's cooperative execution model.
type Channel struct {
	// Asset is the token network this channel belongs to.
	Asset nwire.AssetID

	// ContractAddress is the on-chain netting contract holding the joint
	// collateral.
	ContractAddress nwire.Address

	// OurState is the local participant's side.
	OurState *EndState

	// PartnerState is the remote participant's side.
	PartnerState *EndState

	// RevealTimeout is the minimum number of blocks the local node needs
	// between learning a secret and the expiration of the lock it opens.
	RevealTimeout uint64

	// SettleTimeout is the number of blocks between channel close and
	// settlement on chain.
	SettleTimeout uint64

	blocks BlockSource
	state  State
}

// New creates a channel in the opened state. The timeouts must satisfy
// revealTimeout >= 1 and settleTimeout > revealTimeout or no lock could ever
// be safely accepted.
func New(asset nwire.AssetID, contract nwire.Address,
	ourState, partnerState *EndState,
	revealTimeout, settleTimeout uint64, blocks BlockSource) (*Channel, error) {

	if revealTimeout < 1 {
		return nil, fmt.Errorf("reveal timeout must be at least one "+
			"block, got %d", revealTimeout)
	}
	if settleTimeout <= revealTimeout {
		return nil, fmt.Errorf("settle timeout %d must exceed reveal "+
			"timeout %d", settleTimeout, revealTimeout)
	}

	return &Channel{
		Asset:           asset,
		ContractAddress: contract,
		OurState:        ourState,
		PartnerState:    partnerState,
		RevealTimeout:   revealTimeout,
		SettleTimeout:   settleTimeout,
		blocks:          blocks,
		state:           StateOpened,
	}, nil
}

// State returns the channel's lifecycle state.
func (c *Channel) State() State {
	return c.state
}

// PartnerAddress returns the remote participant's address.
func (c *Channel) PartnerAddress() nwire.Address {
	return c.PartnerState.Address
}

// Balance returns the local participant's current net balance.
func (c *Channel) Balance() nwire.Amount {
	return c.OurState.Balance(c.PartnerState)
}

// PartnerBalance returns the remote participant's current net balance.
func (c *Channel) PartnerBalance() nwire.Amount {
	return c.PartnerState.Balance(c.OurState)
}

// Distributable returns how much the local participant can spend right now.
func (c *Channel) Distributable() nwire.Amount {
	return c.OurState.Distributable(c.PartnerState)
}

// ends resolves a message sender to the (sending, receiving) end states.
func (c *Channel) ends(sender nwire.Address) (*EndState, *EndState, error) {
	switch sender {
	case c.OurState.Address:
		return c.OurState, c.PartnerState, nil
	case c.PartnerState.Address:
		return c.PartnerState, c.OurState, nil
	default:
		return nil, nil, ErrUnknownSender
	}
}

// CreateDirectTransfer prepares an unsigned DirectTransfer moving amount to
// the partner. The channel state is not modified: the caller signs the
// message and applies it through RegisterTransfer, the same path inbound
// messages take.
func (c *Channel) CreateDirectTransfer(
	amount nwire.Amount) (*nwire.DirectTransfer, error) {

	if c.state != StateOpened {
		return nil, ErrChannelClosed
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if amount > c.Distributable() {
		return nil, ErrInsufficientBalance
	}

	return nwire.NewDirectTransfer(
		c.OurState.Address,
		c.OurState.NextNonce(),
		c.Asset,
		c.PartnerState.Address,
		c.OurState.TransferredAmount+amount,
		c.OurState.Locksroot(),
	), nil
}

// CreateMediatedTransfer prepares an unsigned MediatedTransfer adding a
// pending lock for amount, expiring at the absolute block expiration, as one
// hop of a payment from initiator to target. As with CreateDirectTransfer
// the state is only modified once the signed message passes
// RegisterTransfer.
func (c *Channel) CreateMediatedTransfer(amount nwire.Amount,
	hashlock nwire.Hash, expiration uint64, target, initiator nwire.Address,
	fee nwire.Amount) (*nwire.MediatedTransfer, error) {

	if c.state != StateOpened {
		return nil, ErrChannelClosed
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if amount > c.Distributable() {
		return nil, ErrInsufficientBalance
	}
	if _, ok := c.OurState.GetLock(hashlock); ok {
		return nil, ErrDuplicateLock
	}

	lock := nwire.NewLock(amount, expiration, hashlock)
	return nwire.NewMediatedTransfer(
		c.OurState.Address,
		c.OurState.NextNonce(),
		c.Asset,
		c.PartnerState.Address,
		c.OurState.TransferredAmount,
		c.OurState.computeRootWith(lock),
		target,
		initiator,
		*lock,
		fee,
	), nil
}

// RegisterTransfer validates and applies a balance-updating message from
// either participant: DirectTransfer, MediatedTransfer, or Secret. Outbound
// messages pass through here after local signing so that both sides run the
// identical state transition.
func (c *Channel) RegisterTransfer(msg nwire.SignedMessager) error {
	switch m := msg.(type) {
	case *nwire.DirectTransfer:
		return c.registerDirectTransfer(m)
	case *nwire.MediatedTransfer:
		return c.registerMediatedTransfer(m)
	case *nwire.Secret:
		return c.RegisterSecret(m.Secret)
	default:
		return ErrUnknownMessageType
	}
}

func (c *Channel) registerDirectTransfer(msg *nwire.DirectTransfer) error {
	if c.state != StateOpened {
		return ErrChannelClosed
	}
	if msg.Asset != c.Asset {
		return ErrWrongAsset
	}

	from, to, err := c.ends(msg.Sender)
	if err != nil {
		return err
	}

	if msg.Nonce != from.NextNonce() {
		return ErrNonceMismatch
	}

	// The transferred total is cumulative and may only move forward.
	if msg.TransferredAmount <= from.TransferredAmount {
		return ErrInvalidAmount
	}
	delta := msg.TransferredAmount - from.TransferredAmount
	if delta > from.Distributable(to) {
		return ErrInsufficientBalance
	}

	// A direct transfer leaves the sender's lock set untouched.
	if msg.Locksroot != from.Locksroot() {
		return ErrInvalidLocksRoot
	}

	from.TransferredAmount = msg.TransferredAmount
	from.advanceNonce(msg.Nonce)

	log.Debugf("channel %v applied direct transfer from %v: "+
		"transferred=%d", c.ContractAddress, msg.Sender,
		msg.TransferredAmount)

	return nil
}

func (c *Channel) registerMediatedTransfer(msg *nwire.MediatedTransfer) error {
	if c.state != StateOpened {
		return ErrChannelClosed
	}
	if msg.Asset != c.Asset {
		return ErrWrongAsset
	}

	from, to, err := c.ends(msg.Sender)
	if err != nil {
		return err
	}

	if msg.Nonce != from.NextNonce() {
		return ErrNonceMismatch
	}

	lock := msg.Lock
	if lock.Amount == 0 {
		return ErrInvalidAmount
	}

	// Value moves into the lock; the cumulative total must not change
	// until the secret is revealed.
	if msg.TransferredAmount != from.TransferredAmount {
		return ErrInvalidAmount
	}

	currentBlock := c.blocks.CurrentBlock()
	if lock.Expiration <= currentBlock {
		return ErrExpiredLock
	}
	if lock.Expiration < currentBlock+c.RevealTimeout {
		return ErrLockExpirationTooSoon
	}

	if _, ok := from.GetLock(lock.Hashlock); ok {
		return ErrDuplicateLock
	}

	if lock.Amount > from.Distributable(to) {
		return ErrInsufficientBalance
	}

	// The carried root must commit to exactly the prior lock set plus the
	// new lock.
	if msg.Locksroot != from.computeRootWith(&lock) {
		return ErrInvalidLocksRoot
	}

	if err := from.registerLock(&lock); err != nil {
		return err
	}
	from.advanceNonce(msg.Nonce)

	log.Debugf("channel %v registered lock from %v: amount=%d "+
		"expiration=%d hashlock=%v", c.ContractAddress, msg.Sender,
		lock.Amount, lock.Expiration, lock.Hashlock)

	return nil
}

// RegisterSecret settles every pending lock guarded by the secret's
// hashlock: the lock is removed and its amount moves into the lock owner's
// transferred total, crediting the opposite participant. Applying the same
// secret twice is a no-op, as is a secret matching no pending lock.
func (c *Channel) RegisterSecret(secret nwire.Hash) error {
	hashlock := nwire.HashSecret(secret)

	for _, side := range []*EndState{c.OurState, c.PartnerState} {
		lock, ok := side.GetLock(hashlock)
		if !ok {
			continue
		}

		side.removeLock(hashlock)
		side.TransferredAmount += lock.Amount

		log.Debugf("channel %v settled lock of %v: amount=%d "+
			"hashlock=%v", c.ContractAddress, side.Address,
			lock.Amount, hashlock)
	}

	return nil
}

// WithdrawLock consensually removes the pending lock owned by the passed
// participant without settling it, returning the locked amount to the
// owner's spendable balance. It backs TransferTimeout and CancelTransfer
// handling on both sides of a channel.
func (c *Channel) WithdrawLock(owner nwire.Address, hashlock nwire.Hash) error {
	from, _, err := c.ends(owner)
	if err != nil {
		return err
	}

	if !from.removeLock(hashlock) {
		return ErrUnknownLock
	}

	log.Debugf("channel %v withdrew lock of %v: hashlock=%v",
		c.ContractAddress, owner, hashlock)

	return nil
}

// ExpireLocks removes every pending lock on either side whose expiration has
// passed at the given block. Expired locks settle nothing: the amounts
// simply return to their owners' spendable balances. It returns the number
// of locks removed.
func (c *Channel) ExpireLocks(block uint64) int {
	removed := 0
	for _, side := range []*EndState{c.OurState, c.PartnerState} {
		for _, lock := range side.PendingLocks() {
			if lock.Expiration > block {
				continue
			}
			side.removeLock(lock.Hashlock)
			removed++

			log.Debugf("channel %v expired lock of %v: amount=%d "+
				"expiration=%d block=%d", c.ContractAddress,
				side.Address, lock.Amount, lock.Expiration,
				block)
		}
	}
	return removed
}

// HandleClosed transitions the channel out of the opened state in response
// to an on-chain close event.
func (c *Channel) HandleClosed(block uint64) {
	if c.state != StateOpened {
		return
	}
	c.state = StateClosed

	log.Infof("channel %v closed at block %d", c.ContractAddress, block)
}

// HandleSettled marks the channel settled in response to the on-chain
// settlement event.
func (c *Channel) HandleSettled(block uint64) {
	if c.state == StateSettled {
		return
	}
	c.state = StateSettled

	log.Infof("channel %v settled at block %d", c.ContractAddress, block)
}
