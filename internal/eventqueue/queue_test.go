package eventqueue

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func TestPassAndDispatch_DeliversAmount(t *testing.T) {
	q := New(clock.NewMock())
	defer q.Stop()

	got := make(chan uint16, 1)
	require.NoError(t, q.FunctionSet(1, func(amount uint16) (uint16, error) {
		got <- amount
		return amount, nil
	}))

	go func() { _ = q.Dispatch(0, nil) }()

	require.NoError(t, q.Pass(1, 5, nil))

	select {
	case amount := <-got:
		require.Equal(t, uint16(5), amount)
	case <-time.After(time.Second):
		t.Fatal("callback never ran")
	}
}

func TestDispatch_RetryYieldsWithoutLoss(t *testing.T) {
	q := New(clock.NewMock())
	defer q.Stop()

	var calls int32
	var mu sync.Mutex
	done := make(chan struct{})

	require.NoError(t, q.FunctionSet(1, func(amount uint16) (uint16, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			return 0, nil // retry
		}
		close(done)
		return amount, nil
	}))

	go func() { _ = q.Dispatch(0, nil) }()
	require.NoError(t, q.Pass(1, 3, nil))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback never completed after retry")
	}
}

// While paused, no signal-event callback
// runs; unpausing within 50µs of the flag transition schedules at least
// one signal-event callback if a pending eventfd count exists.
func TestDispatch_PauseBlocksCallbackUntilUnpause(t *testing.T) {
	mockClock := clock.NewMock()
	q := New(mockClock)
	defer q.Stop()

	callCh := make(chan uint16, 1)
	require.NoError(t, q.FunctionSet(1, func(amount uint16) (uint16, error) {
		callCh <- amount
		return amount, nil
	}))

	q.SetPaused(true)
	go func() { _ = q.Dispatch(0, nil) }()

	require.NoError(t, q.Pass(1, 7, nil))

	select {
	case <-callCh:
		t.Fatal("callback ran while paused")
	case <-time.After(50 * time.Millisecond):
	}

	q.SetPaused(false)
	// Advance the mock clock past the 50µs unpause delay.
	for i := 0; i < 50; i++ {
		mockClock.Add(2 * time.Microsecond)
		select {
		case amount := <-callCh:
			require.Equal(t, uint16(7), amount)
			return
		default:
		}
	}
	t.Fatal("unpause did not deliver the pending notification")
}
