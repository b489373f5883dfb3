package mqtt

import (
	"bytes"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn is an in-memory net.Conn whose reads drain a scripted inbox
// and whose writes append to an outbox, never blocking.
type fakeConn struct {
	mu     sync.Mutex
	inbox  bytes.Buffer
	outbox bytes.Buffer
	closed bool
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func (f *fakeConn) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inbox.Len() == 0 {
		return 0, timeoutErr{}
	}
	return f.inbox.Read(p)
}

func (f *fakeConn) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outbox.Write(p)
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) feed(t *testing.T, pkt Packet, v Version) {
	t.Helper()
	buf, err := AppendPacket(nil, pkt, v)
	require.NoError(t, err)
	f.mu.Lock()
	f.inbox.Write(buf)
	f.mu.Unlock()
}

func (f *fakeConn) drainPackets(t *testing.T, v Version) []Packet {
	t.Helper()
	f.mu.Lock()
	raw := f.outbox.Bytes()
	f.outbox.Reset()
	f.mu.Unlock()

	var out []Packet
	for len(raw) > 0 {
		h, total, err := DecodeFixedHeader(raw)
		require.NoError(t, err)
		pkt, err := ParsePacket(h, raw[total-h.RemainingLength:total], v)
		require.NoError(t, err)
		out = append(out, pkt)
		raw = raw[total:]
	}
	return out
}

func (f *fakeConn) LocalAddr() net.Addr                { return nil }
func (f *fakeConn) RemoteAddr() net.Addr               { return nil }
func (f *fakeConn) SetDeadline(time.Time) error        { return nil }
func (f *fakeConn) SetReadDeadline(time.Time) error    { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error   { return nil }

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		filter, topic string
		want          bool
	}{
		{"#", "anything/at/all", true},
		{"#", "a", true},
		{"a/+/c", "a/b/c", true},
		{"a/+/c", "a/b/c/d", false},
		{"a/b/c", "a/b/c", true},
		{"a/b/c", "a/b", false},
		{"a/#", "a/b/c", true},
		{"a/#", "a", true},
		{"+/b", "a/b", true},
		{"+", "a/b", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MatchTopic(tc.filter, tc.topic),
			"filter=%q topic=%q", tc.filter, tc.topic)
	}
}

func TestValidateFilterWildcardPlacement(t *testing.T) {
	require.NoError(t, ValidateFilter("a/+/c"))
	require.NoError(t, ValidateFilter("a/b/#"))
	require.Error(t, ValidateFilter("a/#/c"))
	require.Error(t, ValidateFilter("a/b#"))
	require.Error(t, ValidateFilter("a/b+/c"))
	require.Error(t, ValidateFilter(""))
}

func TestParsePropertiesDuplicates(t *testing.T) {
	_, code, err := ParseProperties([]Property{
		{ID: PropReceiveMaximum, Value: 10},
		{ID: PropReceiveMaximum, Value: 20},
	})
	require.Error(t, err)
	assert.Equal(t, ReasonProtocolError, code)

	// USER_PROPERTY and SUBSCRIPTION_IDENTIFIER may repeat.
	props, code, err := ParseProperties([]Property{
		{ID: PropUserProperty, UserKey: "a", UserValue: "1"},
		{ID: PropUserProperty, UserKey: "b", UserValue: "2"},
		{ID: PropSubscriptionIdentifier, Value: 1},
		{ID: PropSubscriptionIdentifier, Value: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, ReasonSuccess, code)
	assert.Len(t, props.All(PropUserProperty), 2)
}

func TestParsePropertiesRanges(t *testing.T) {
	_, code, err := ParseProperties([]Property{{ID: PropReceiveMaximum, Value: 0}})
	require.Error(t, err)
	assert.Equal(t, ReasonProtocolError, code)

	_, code, err = ParseProperties([]Property{{ID: PropMaximumQoS, Value: 3}})
	require.Error(t, err)
	assert.Equal(t, ReasonMalformedPacket, code)

	_, code, err = ParseProperties([]Property{{ID: PropRequestResponseInformation, Value: 2}})
	require.Error(t, err)
	assert.Equal(t, ReasonMalformedPacket, code)
}

func roundTrip(t *testing.T, pkt Packet, v Version) Packet {
	t.Helper()
	buf, err := AppendPacket(nil, pkt, v)
	require.NoError(t, err)
	h, total, err := DecodeFixedHeader(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), total)
	out, err := ParsePacket(h, buf[total-h.RemainingLength:], v)
	require.NoError(t, err)
	return out
}

func TestPacketRoundTrip(t *testing.T) {
	c := roundTrip(t, &Connect{
		Version: Version311, ClientID: "cli-1", CleanStart: true, KeepAlive: 30,
	}, Version311).(*Connect)
	assert.Equal(t, "cli-1", c.ClientID)
	assert.True(t, c.CleanStart)
	assert.Equal(t, uint16(30), c.KeepAlive)

	p := roundTrip(t, &Publish{
		Topic: "t/x", Payload: []byte("p"), QoS: 1, PacketID: 42,
	}, Version311).(*Publish)
	assert.Equal(t, "t/x", p.Topic)
	assert.Equal(t, uint16(42), p.PacketID)
	assert.Equal(t, []byte("p"), p.Payload)

	s := roundTrip(t, &Subscribe{
		PacketID: 7,
		Filters:  []SubscribeFilter{{Filter: "a/+/c", QoS: 1}},
	}, Version311).(*Subscribe)
	assert.Equal(t, uint16(7), s.PacketID)
	require.Len(t, s.Filters, 1)
	assert.Equal(t, "a/+/c", s.Filters[0].Filter)

	a := roundTrip(t, &Ack{Type: TypePUBREC, PacketID: 9}, Version311).(*Ack)
	assert.Equal(t, TypePUBREC, a.Type)
	assert.Equal(t, uint16(9), a.PacketID)
}

func connectedConn(t *testing.T, cc *Collection) (*fakeConn, *Conn) {
	t.Helper()
	transport := &fakeConn{}
	now := time.Now()
	conn := NewConn(transport, now)
	cc.Add(conn)

	transport.feed(t, &Connect{Version: Version311, ClientID: "cli", CleanStart: true, KeepAlive: 300}, Version311)
	require.NoError(t, cc.Tick(now))

	pkts := transport.drainPackets(t, Version311)
	require.Len(t, pkts, 1)
	connack, ok := pkts[0].(*Connack)
	require.True(t, ok)
	assert.Equal(t, ReasonSuccess, connack.Reason)
	return transport, conn
}

func TestQoS1PublishHandshake(t *testing.T) {
	engine := NewMemEngine()
	var delivered []*Publish
	cc := NewCollection(engine, Config{}, func(_ *Conn, p *Publish) {
		delivered = append(delivered, p)
	})
	transport, _ := connectedConn(t, cc)

	transport.feed(t, &Publish{Topic: "t", Payload: []byte("p"), QoS: 1, PacketID: 42}, Version311)
	require.NoError(t, cc.Tick(time.Now()))

	require.Len(t, delivered, 1)
	assert.Equal(t, "t", delivered[0].Topic)

	pkts := transport.drainPackets(t, Version311)
	require.Len(t, pkts, 1)
	ack, ok := pkts[0].(*Ack)
	require.True(t, ok)
	assert.Equal(t, TypePUBACK, ack.Type)
	assert.Equal(t, uint16(42), ack.PacketID)
	assert.Equal(t, ReasonSuccess, ack.Reason)
}

func TestQoS2PublishHandshake(t *testing.T) {
	engine := NewMemEngine()
	cc := NewCollection(engine, Config{}, nil)
	transport, _ := connectedConn(t, cc)

	transport.feed(t, &Publish{Topic: "t", Payload: []byte("p"), QoS: 2, PacketID: 9}, Version311)
	require.NoError(t, cc.Tick(time.Now()))
	pkts := transport.drainPackets(t, Version311)
	require.Len(t, pkts, 1)
	assert.Equal(t, TypePUBREC, pkts[0].(*Ack).Type)

	transport.feed(t, &Ack{Type: TypePUBREL, PacketID: 9}, Version311)
	require.NoError(t, cc.Tick(time.Now()))
	pkts = transport.drainPackets(t, Version311)
	require.Len(t, pkts, 1)
	assert.Equal(t, TypePUBCOMP, pkts[0].(*Ack).Type)
	assert.Equal(t, uint16(9), pkts[0].(*Ack).PacketID)
}

func TestMalformedQoS0ClosesWithoutReply(t *testing.T) {
	engine := NewMemEngine()
	cc := NewCollection(engine, Config{}, nil)
	transport, conn := connectedConn(t, cc)

	// A PUBLISH whose topic length claims more bytes than the body has.
	transport.mu.Lock()
	transport.inbox.Write([]byte{0x30, 0x03, 0x00, 0x10, 'a'})
	transport.mu.Unlock()

	require.NoError(t, cc.Tick(time.Now()))
	assert.Empty(t, transport.drainPackets(t, Version311))
	assert.NotZero(t, conn.State()&StateClosed)
	assert.True(t, transport.closed)
	assert.Equal(t, 0, cc.Len())
}

func TestStaleAckTolerated(t *testing.T) {
	engine := NewMemEngine()
	cc := NewCollection(engine, Config{}, nil)
	transport, conn := connectedConn(t, cc)

	transport.feed(t, &Ack{Type: TypePUBACK, PacketID: 999}, Version311)
	require.NoError(t, cc.Tick(time.Now()))
	assert.Zero(t, conn.State()&StateClosed)
}

func TestDisconnectEntersCloseWait(t *testing.T) {
	engine := NewMemEngine()
	cc := NewCollection(engine, Config{CloseWait: time.Second}, nil)
	transport, conn := connectedConn(t, cc)

	now := time.Now()
	transport.feed(t, &Disconnect{}, Version311)
	require.NoError(t, cc.Tick(now))
	assert.NotZero(t, conn.State()&StateDisconnectWait)
	assert.Equal(t, 1, cc.Len())

	require.NoError(t, cc.Tick(now.Add(2*time.Second)))
	assert.Equal(t, 0, cc.Len())
}

func TestSecondConnectIsProtocolError(t *testing.T) {
	engine := NewMemEngine()
	cc := NewCollection(engine, Config{}, nil)
	transport, conn := connectedConn(t, cc)

	transport.feed(t, &Connect{Version: Version311, ClientID: "cli", CleanStart: true}, Version311)
	require.NoError(t, cc.Tick(time.Now()))
	assert.NotZero(t, conn.State()&StateClosed)
}

func TestSubscribeThenRoutedPublish(t *testing.T) {
	engine := NewMemEngine()
	cc := NewCollection(engine, Config{}, nil)
	transport, _ := connectedConn(t, cc)

	transport.feed(t, &Subscribe{PacketID: 3, Filters: []SubscribeFilter{{Filter: "a/+/c", QoS: 1}}}, Version311)
	require.NoError(t, cc.Tick(time.Now()))
	pkts := transport.drainPackets(t, Version311)
	require.Len(t, pkts, 1)
	suback := pkts[0].(*Suback)
	assert.Equal(t, uint16(3), suback.PacketID)
	require.Len(t, suback.Reasons, 1)

	var id uint16
	require.NoError(t, cc.Publish("a/b/c", []byte("v"), 1, func() uint16 { id++; return id }))
	require.NoError(t, cc.Tick(time.Now()))
	pkts = transport.drainPackets(t, Version311)
	require.Len(t, pkts, 1)
	pub := pkts[0].(*Publish)
	assert.Equal(t, "a/b/c", pub.Topic)
	assert.Equal(t, []byte("v"), pub.Payload)
	assert.Equal(t, uint8(1), pub.QoS)

	// A topic outside the filter set is not delivered.
	require.NoError(t, cc.Publish("x/y", []byte("v"), 0, nil))
	require.NoError(t, cc.Tick(time.Now()))
	assert.Empty(t, transport.drainPackets(t, Version311))
}

func TestSessionSurvivesReconnect(t *testing.T) {
	engine := NewMemEngine()
	cc := NewCollection(engine, Config{}, nil)

	// First connection queues an undelivered packet, then drops.
	_, err := engine.GetSession("cli", false)
	require.NoError(t, err)
	_, err = engine.ReceivePacket("cli", PendingPacket{PacketID: 5, Type: TypePUBLISH, Topic: "t", Payload: []byte("p"), QoS: 1})
	require.NoError(t, err)

	transport := &fakeConn{}
	now := time.Now()
	conn := NewConn(transport, now)
	cc.Add(conn)
	transport.feed(t, &Connect{Version: Version311, ClientID: "cli", CleanStart: false, KeepAlive: 300}, Version311)
	require.NoError(t, cc.Tick(now))

	pkts := transport.drainPackets(t, Version311)
	require.Len(t, pkts, 2)
	connack := pkts[0].(*Connack)
	assert.True(t, connack.SessionPresent)
	pub := pkts[1].(*Publish)
	assert.Equal(t, "t", pub.Topic)
	assert.True(t, pub.Dup)
}
