package broker

import (
	"testing"

	"github.com/rrrd/rrr/internal/holder"
	"github.com/rrrd/rrr/internal/rrrarray"
	"github.com/stretchr/testify/require"
)

func testHolder(topic string) *holder.Holder {
	msg := rrrarray.New(rrrarray.ClassMSG, 1, topic, rrrarray.NewArray())
	return holder.New(nil, holder.ProtocolNone, msg)
}

func TestBroker_FIFOWriteReadOrdering(t *testing.T) {
	b := New(Thresholds{})
	b.RegisterCustomer("c1", KindFIFO, 0, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Write("c1", testHolder(string(rune('a'+i))), nil))
	}

	var order []string
	n, err := b.Read("c1", "reader", 0, func(h *holder.Holder) {
		order = append(order, h.Message().Topic)
	})
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, order)
}

func TestBroker_SlotBroadcastToTwoReaders(t *testing.T) {
	b := New(Thresholds{})
	b.RegisterCustomer("c1", KindSlot, 2, nil)

	require.NoError(t, b.Write("c1", testHolder("x"), nil))

	n1, err := b.Poll("c1", "A", func(h *holder.Holder) {})
	require.NoError(t, err)
	require.Equal(t, 1, n1)

	n2, err := b.Poll("c1", "B", func(h *holder.Holder) {})
	require.NoError(t, err)
	require.Equal(t, 1, n2)

	n3, err := b.Poll("c1", "A", func(h *holder.Holder) {})
	require.NoError(t, err)
	require.Equal(t, 0, n3)
}

func TestBroker_RatelimitPauseReleaseCycle(t *testing.T) {
	b := New(Thresholds{RatelimitThreshold: 2, RatelimitRelease: 1})

	var pauseEvents []bool
	b.RegisterCustomer("c1", KindFIFO, 0, func(pause bool) {
		pauseEvents = append(pauseEvents, pause)
	})
	require.NoError(t, b.SetRatelimit("c1", true))

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Write("c1", testHolder("t"), nil))
	}
	require.Contains(t, pauseEvents, true)

	_, err := b.Read("c1", "reader", 0, func(h *holder.Holder) {})
	require.NoError(t, err)

	require.Contains(t, pauseEvents, false)
}

func TestBroker_UnknownCustomerIsError(t *testing.T) {
	b := New(Thresholds{})
	err := b.Write("nope", testHolder("t"), nil)
	require.Error(t, err)
}
