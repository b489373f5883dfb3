package asd

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rrrd/rrr/internal/holder"
	"github.com/rrrd/rrr/internal/rrrarray"
)

type sentFrame struct {
	handle  uint32
	appData uint64
	data    []byte
}

type fakeStream struct {
	controls []sentFrame
	datas    []sentFrame
	windows  []int
	connects []string
}

func (f *fakeStream) SendControl(handle uint32, appData uint64) error {
	f.controls = append(f.controls, sentFrame{handle: handle, appData: appData})
	return nil
}

func (f *fakeStream) SendData(handle uint32, appData uint64, data []byte) error {
	f.datas = append(f.datas, sentFrame{handle: handle, appData: appData, data: data})
	return nil
}

func (f *fakeStream) Connect(remote string, handle uint32) error {
	f.connects = append(f.connects, remote)
	return nil
}

func (f *fakeStream) WindowSizeAdjust(handle uint32, delta int) error {
	f.windows = append(f.windows, delta)
	return nil
}

func testMessage(t *testing.T) *rrrarray.Message {
	t.Helper()
	return rrrarray.New(rrrarray.ClassMSG, 1234, "topic", rrrarray.NewArray())
}

func testHolder(t *testing.T) *holder.Holder {
	t.Helper()
	return holder.New(nil, holder.ProtocolUDP, testMessage(t))
}

func newTestSession(t *testing.T, stream *fakeStream, mock *clock.Mock) *Session {
	t.Helper()
	alloc := func(msg *rrrarray.Message) (*holder.Holder, error) {
		return holder.New(nil, holder.ProtocolUDP, msg), nil
	}
	return New(Config{
		ResendInterval:       time.Second,
		DeliveryGraceCounter: 2,
		ReleaseQueueWindowSizeReductionThreshold: 3,
		WindowSizeReductionAmount:                5,
	}, stream, mock, 0x1111, "", alloc, nil)
}

func TestSenderResendUntilDACKThenRACKThenCACK(t *testing.T) {
	stream := &fakeStream{}
	mock := clock.NewMock()
	s := newTestSession(t, stream, mock)

	id, err := s.QueueMessage(testHolder(t))
	require.NoError(t, err)
	require.Equal(t, uint32(1), id)

	// First tick transmits; two more intervals with no DACK retransmit.
	require.NoError(t, s.Tick())
	mock.Add(time.Second + time.Millisecond)
	require.NoError(t, s.Tick())
	mock.Add(time.Second + time.Millisecond)
	require.NoError(t, s.Tick())

	require.Len(t, stream.datas, 3)
	sendCount, flags, ok := s.Entry(id)
	require.True(t, ok)
	assert.Equal(t, 3, sendCount)
	assert.Equal(t, FlagMSG, flags&FlagMSG)

	// DACK flips the entry to RACK resends and answers RACK immediately.
	require.NoError(t, s.ReceiveControl(0x2222, JoinApplicationData(FlagDACK, id)))
	require.Len(t, stream.controls, 1)
	gotFlags, gotID := SplitApplicationData(stream.controls[0].appData)
	assert.Equal(t, FlagRACK, gotFlags)
	assert.Equal(t, id, gotID)

	mock.Add(time.Second + time.Millisecond)
	require.NoError(t, s.Tick())
	assert.Len(t, stream.datas, 3) // no further data resend
	require.Len(t, stream.controls, 2)
	gotFlags, _ = SplitApplicationData(stream.controls[1].appData)
	assert.Equal(t, FlagRACK, gotFlags)

	// CACK retires the entry.
	require.NoError(t, s.ReceiveControl(0x2222, JoinApplicationData(FlagCACK, id)))
	require.NoError(t, s.Tick())
	assert.Equal(t, 0, s.SendQueueLen())
	_, _, ok = s.Entry(id)
	assert.False(t, ok)
}

func encodedTestMessage(t *testing.T) []byte {
	t.Helper()
	buf, err := rrrarray.EncodeMessage(testMessage(t))
	require.NoError(t, err)
	return buf
}

func TestReceiverHandshakeAndGrace(t *testing.T) {
	stream := &fakeStream{}
	mock := clock.NewMock()

	var delivered []uint32
	alloc := func(msg *rrrarray.Message) (*holder.Holder, error) {
		return holder.New(nil, holder.ProtocolUDP, msg), nil
	}
	s := New(Config{
		ResendInterval:       time.Second,
		DeliveryGraceCounter: 2,
	}, stream, mock, 0x1111, "", alloc,
		func(handle uint32, id uint32, h *holder.Holder) error {
			delivered = append(delivered, id)
			h.Decref()
			return nil
		})

	wire := encodedTestMessage(t)
	const peer = uint32(0x2222)

	// Data frame acks with DACK and enters the release queue.
	require.NoError(t, s.ReceiveData(peer, JoinApplicationData(FlagMSG, 7), wire))
	require.Len(t, stream.controls, 1)
	gotFlags, gotID := SplitApplicationData(stream.controls[0].appData)
	assert.Equal(t, FlagDACK, gotFlags)
	assert.Equal(t, uint32(7), gotID)

	// No RACK yet: the tick re-emits DACK each interval.
	mock.Add(time.Second + time.Millisecond)
	require.NoError(t, s.Tick())
	require.Len(t, stream.controls, 2)
	gotFlags, _ = SplitApplicationData(stream.controls[1].appData)
	assert.Equal(t, FlagDACK, gotFlags)
	assert.Empty(t, delivered)

	// RACK releases the entry for delivery and is answered with CACK.
	require.NoError(t, s.ReceiveControl(peer, JoinApplicationData(FlagRACK, 7)))
	gotFlags, _ = SplitApplicationData(stream.controls[len(stream.controls)-1].appData)
	assert.Equal(t, FlagCACK, gotFlags)

	require.NoError(t, s.Tick())
	assert.Equal(t, []uint32{7}, delivered)

	// A retransmission of a delivered id inside its grace window is
	// re-acked, not delivered again.
	require.NoError(t, s.ReceiveData(peer, JoinApplicationData(FlagMSG, 7), wire))
	gotFlags, gotID = SplitApplicationData(stream.controls[len(stream.controls)-1].appData)
	assert.Equal(t, FlagDACK, gotFlags)
	assert.Equal(t, uint32(7), gotID)
	require.NoError(t, s.Tick())
	assert.Equal(t, []uint32{7}, delivered)
}

func TestGraceCounterCountsDownByDeliveries(t *testing.T) {
	stream := &fakeStream{}
	mock := clock.NewMock()
	s := newTestSession(t, stream, mock)
	s.delivery = func(handle uint32, id uint32, h *holder.Holder) error {
		h.Decref()
		return nil
	}

	wire := encodedTestMessage(t)
	const peer = uint32(0x2222)

	require.NoError(t, s.ReceiveData(peer, JoinApplicationData(FlagMSG, 1), wire))
	require.NoError(t, s.ReceiveControl(peer, JoinApplicationData(FlagRACK, 1)))
	require.NoError(t, s.Tick()) // delivers id 1, grace counter = 2

	q := s.releaseQueues[peer]
	require.NotNil(t, q)
	require.Len(t, q.entries, 1)

	// Two subsequent delivery ticks exhaust the grace counter.
	for i := uint32(2); i <= 3; i++ {
		require.NoError(t, s.ReceiveData(peer, JoinApplicationData(FlagMSG, i), wire))
		require.NoError(t, s.ReceiveControl(peer, JoinApplicationData(FlagRACK, i)))
		require.NoError(t, s.Tick())
	}
	assert.Nil(t, q.find(1))
}

func TestRSTClearsReleaseQueue(t *testing.T) {
	stream := &fakeStream{}
	mock := clock.NewMock()
	s := newTestSession(t, stream, mock)

	wire := encodedTestMessage(t)
	const peer = uint32(0x2222)
	require.NoError(t, s.ReceiveData(peer, JoinApplicationData(FlagMSG, 1), wire))
	require.NoError(t, s.ReceiveData(peer, JoinApplicationData(FlagMSG, 2), wire))
	require.Len(t, s.releaseQueues[peer].entries, 2)

	require.NoError(t, s.ReceiveControl(peer, JoinApplicationData(FlagRST, 0)))
	assert.Nil(t, s.releaseQueues[peer])
}

func TestWindowRegulation(t *testing.T) {
	stream := &fakeStream{}
	mock := clock.NewMock()
	s := newTestSession(t, stream, mock) // threshold 3, reduction 5

	wire := encodedTestMessage(t)
	const peer = uint32(0x2222)
	for i := uint32(1); i <= 4; i++ {
		require.NoError(t, s.ReceiveData(peer, JoinApplicationData(FlagMSG, i), wire))
	}
	require.NoError(t, s.Tick())
	require.NotEmpty(t, stream.windows)
	assert.Equal(t, -5, stream.windows[0])
}

func TestConnectRetryAfterTimeout(t *testing.T) {
	stream := &fakeStream{}
	mock := clock.NewMock()
	alloc := func(msg *rrrarray.Message) (*holder.Holder, error) {
		return holder.New(nil, holder.ProtocolUDP, msg), nil
	}
	s := New(Config{ConnectTimeout: 2 * time.Second}, stream, mock, 0x1111, "10.0.0.1:5555", alloc, nil)

	require.NoError(t, s.Tick())
	require.Len(t, stream.connects, 1)

	// Within the timeout no second attempt is made.
	mock.Add(time.Second)
	require.NoError(t, s.Tick())
	require.Len(t, stream.connects, 1)

	// After the timeout the attempt is cleared and retried.
	mock.Add(2 * time.Second)
	require.NoError(t, s.Tick())
	require.NoError(t, s.Tick())
	require.Len(t, stream.connects, 2)

	// A successful connect emits RST to flush stale peer state.
	require.NoError(t, s.ConnectDone())
	require.NotEmpty(t, stream.controls)
	flags, _ := SplitApplicationData(stream.controls[len(stream.controls)-1].appData)
	assert.Equal(t, FlagRST, flags)
}

func TestMessageIDSkipsZero(t *testing.T) {
	stream := &fakeStream{}
	mock := clock.NewMock()
	s := newTestSession(t, stream, mock)
	s.nextMessageID = 0xffffffff

	id, err := s.QueueMessage(testHolder(t))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id)
}
