package chain

import (
	"sync"
	"sync/atomic"

	"github.com/go-errors/errors"
	"github.com/lightningnetwork/lnd/ticker"
)

// AlarmCallback is invoked with the new height whenever the chain advances.
// Callbacks run on the alarm's goroutine and should not block; returning a
// non-nil error removes the callback.
type AlarmCallback func(blockNumber uint64) error

// Alarm polls the chain service and notifies registered callbacks when a
// new block is observed. Tests drive it deterministically through a forced
// ticker.
type Alarm struct {
	started  int32
	shutdown int32

	chain Service
	t     ticker.Ticker

	mtx             sync.Mutex
	callbacks       []AlarmCallback
	lastBlockNumber uint64

	wg   sync.WaitGroup
	quit chan struct{}
}

// NewAlarm creates an alarm polling the passed service on the passed
// ticker's cadence.
func NewAlarm(chain Service, t ticker.Ticker) *Alarm {
	return &Alarm{
		chain: chain,
		t:     t,
		quit:  make(chan struct{}),
	}
}

// RegisterCallback adds a callback to notify on each new block.
func (a *Alarm) RegisterCallback(cb AlarmCallback) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	a.callbacks = append(a.callbacks, cb)
}

// Start begins polling for new blocks.
func (a *Alarm) Start() error {
	if !atomic.CompareAndSwapInt32(&a.started, 0, 1) {
		return errors.New("alarm already started")
	}

	a.lastBlockNumber = a.chain.CurrentBlock()
	a.t.Resume()

	a.wg.Add(1)
	go a.pollLoop()

	return nil
}

// Stop halts polling and waits for the poll goroutine to exit.
func (a *Alarm) Stop() error {
	if !atomic.CompareAndSwapInt32(&a.shutdown, 0, 1) {
		return errors.New("alarm already stopped")
	}

	a.t.Stop()
	close(a.quit)
	a.wg.Wait()

	return nil
}

// pollLoop watches the ticker and fires callbacks when the height moves.
//
// NOTE: This method MUST be run as a goroutine.
func (a *Alarm) pollLoop() {
	defer a.wg.Done()

	for {
		select {
		case <-a.t.Ticks():
			a.checkBlock()

		case <-a.quit:
			return
		}
	}
}

func (a *Alarm) checkBlock() {
	current := a.chain.CurrentBlock()

	a.mtx.Lock()
	last := a.lastBlockNumber
	if current <= last {
		a.mtx.Unlock()
		return
	}
	a.lastBlockNumber = current
	callbacks := make([]AlarmCallback, len(a.callbacks))
	copy(callbacks, a.callbacks)
	a.mtx.Unlock()

	if current > last+1 {
		log.Warnf("alarm missed %d blocks", current-last-1)
	}
	log.Tracef("new block: %d", current)

	var failed []int
	for i, cb := range callbacks {
		if err := cb(current); err != nil {
			log.Errorf("alarm callback failed, removing: %v", err)
			failed = append(failed, i)
		}
	}

	if len(failed) > 0 {
		a.mtx.Lock()
		for offset, i := range failed {
			i -= offset
			a.callbacks = append(a.callbacks[:i], a.callbacks[i+1:]...)
		}
		a.mtx.Unlock()
	}
}
