package slot

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rrrd/rrr/internal/holder"
	"github.com/rrrd/rrr/internal/rrrarray"
	"github.com/stretchr/testify/require"
)

func testHolder(topic string) *holder.Holder {
	msg := rrrarray.New(rrrarray.ClassMSG, 1, topic, rrrarray.NewArray())
	return holder.New(nil, holder.ProtocolNone, msg)
}

// Slot configured for 2 readers (A,B). Writer stores
// X. Reader A reads -> gets X, slot still holds value. Reader B reads ->
// gets X, slot cleared. Writer's next write proceeds without waiting.
func TestSlot_S2Broadcast(t *testing.T) {
	s := New(2)
	readerA, readerB := "A", "B"

	require.NoError(t, s.Write(testHolder("x"), nil))
	require.Equal(t, 1, s.Count())

	gotA := s.Read(readerA, 0, func(h *holder.Holder) bool { return false })
	require.True(t, gotA)
	require.Equal(t, 1, s.Count(), "slot must still hold the value after only one of two readers has read")

	gotB := s.Read(readerB, 0, func(h *holder.Holder) bool { return false })
	require.True(t, gotB)
	require.Equal(t, 0, s.Count(), "slot must clear once every registered reader has read")

	done := make(chan struct{})
	go func() {
		require.NoError(t, s.Write(testHolder("y"), nil))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writer blocked even though the slot was empty")
	}
}

// For N registered readers on a slot, after the
// writer publishes once, exactly N distinct reads observe the value and
// the (N+1)-th read of any reader blocks (here: returns false instead of
// observing a second time, since the slot is cleared after N reads).
func TestSlot_ExactlyNReadsObserveOneWrite(t *testing.T) {
	const n = 4
	s := New(n)
	require.NoError(t, s.Write(testHolder("x"), nil))

	var observed int64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(reader int) {
			defer wg.Done()
			if s.Read(reader, 0, func(h *holder.Holder) bool { return false }) {
				atomic.AddInt64(&observed, 1)
			}
		}(i)
	}
	wg.Wait()
	require.EqualValues(t, n, observed)

	// An (n+1)-th distinct reader finds the slot already cleared.
	require.False(t, s.Read(n, 0, func(h *holder.Holder) bool { return false }))
}

func TestSlot_ReaderCannotObserveTwice(t *testing.T) {
	s := New(2)
	require.NoError(t, s.Write(testHolder("x"), nil))

	require.True(t, s.Read("A", 0, func(h *holder.Holder) bool { return false }))
	// The same reader reading again before B has read finds nothing new.
	require.False(t, s.Read("A", 0, func(h *holder.Holder) bool { return false }))
}

func TestSlot_ReadWaitsForWrite(t *testing.T) {
	s := New(1)
	go func() {
		time.Sleep(20 * time.Millisecond)
		require.NoError(t, s.Write(testHolder("late"), nil))
	}()

	var gotTopic string
	ok := s.Read("A", 200, func(h *holder.Holder) bool {
		gotTopic = h.Message().Topic
		return false
	})
	require.True(t, ok)
	require.Equal(t, "late", gotTopic)
}

func TestSlot_ReadTimesOutWhenEmpty(t *testing.T) {
	s := New(1)
	start := time.Now()
	ok := s.Read("A", 30, func(h *holder.Holder) bool { return false })
	require.False(t, ok)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}
