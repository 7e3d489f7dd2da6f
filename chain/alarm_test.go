package chain

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/require"
)

// TestAlarmNotifiesNewBlocks drives the poller with a forced ticker and
// checks callbacks fire only when the height actually moves.
func TestAlarmNotifiesNewBlocks(t *testing.T) {
	t.Parallel()

	mock := NewMockChain(10)
	force := ticker.NewForce(time.Hour)

	alarm := NewAlarm(mock, force)

	var mtx sync.Mutex
	var heights []uint64
	alarm.RegisterCallback(func(block uint64) error {
		mtx.Lock()
		defer mtx.Unlock()
		heights = append(heights, block)
		return nil
	})

	require.NoError(t, alarm.Start())
	defer func() { require.NoError(t, alarm.Stop()) }()

	// The second send is only received once the poll loop has finished
	// checking the first tick, so the height seen by that check is the
	// one set before tick was called.
	tick := func() {
		force.Force <- time.Now()
		force.Force <- time.Now()
	}

	// No new block: no callback.
	tick()

	mock.AdvanceBlock(1)
	tick()

	// A gap of several blocks still produces a single notification at
	// the new tip.
	mock.AdvanceBlock(3)
	tick()

	require.Eventually(t, func() bool {
		mtx.Lock()
		defer mtx.Unlock()
		return len(heights) == 2
	}, time.Second, 10*time.Millisecond)

	mtx.Lock()
	require.Equal(t, []uint64{11, 14}, heights)
	mtx.Unlock()
}

// TestAlarmRemovesFailingCallback asserts a callback returning an error is
// dropped from the rotation.
func TestAlarmRemovesFailingCallback(t *testing.T) {
	t.Parallel()

	mock := NewMockChain(1)
	force := ticker.NewForce(time.Hour)

	alarm := NewAlarm(mock, force)

	var mtx sync.Mutex
	calls := 0
	alarm.RegisterCallback(func(block uint64) error {
		mtx.Lock()
		defer mtx.Unlock()
		calls++
		return errors.New("callback failure")
	})

	require.NoError(t, alarm.Start())
	defer func() { require.NoError(t, alarm.Stop()) }()

	mock.AdvanceBlock(1)
	force.Force <- time.Now()
	mock.AdvanceBlock(1)
	force.Force <- time.Now()

	require.Eventually(t, func() bool {
		mtx.Lock()
		defer mtx.Unlock()
		return calls == 1
	}, time.Second, 10*time.Millisecond)
}
