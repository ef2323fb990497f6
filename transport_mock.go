package mqttier

import (
	"context"
	"errors"
	"io"
	"net"
	"slices"
	"sync"
	"time"
)

// MockConn is an in-memory broker connection for tests. It records every
// packet the client writes and lets the test inject broker packets, which
// the client processes before Inject returns. It performs no real I/O.
//
// Inject, InjectBytes and Drop must not be called from message handlers.
type MockConn struct {
	mu      sync.Mutex
	cond    *sync.Cond
	decoder *Decoder
	sent    []Packet
	inbound []byte
	closed  bool
	dropped bool

	writeErr error
	autoAck  bool
	echo     bool
	connack  *ConnackPacket

	// filters maps the client's subscribed filters to their identifiers.
	filters map[string]uint32

	run func(fn func()) error
}

// NewMockConn returns a connection that answers CONNECT with a successful
// CONNACK and acknowledges everything else when autoAck is set.
func NewMockConn(autoAck bool) *MockConn {
	m := &MockConn{
		decoder: NewDecoder(MaxPacketSizeProtocol),
		autoAck: autoAck,
		connack: &ConnackPacket{},
		filters: make(map[string]uint32),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// AutoAck switches the responder for PUBLISH, PUBREL, SUBSCRIBE,
// UNSUBSCRIBE and PINGREQ on or off.
func (m *MockConn) AutoAck(on bool) {
	m.mu.Lock()
	m.autoAck = on
	m.mu.Unlock()
}

// Echo makes the connection route the client's own PUBLISH packets back
// to it, at QoS 0, when they match one of its subscriptions. This lets a
// single client act as requester and responder.
func (m *MockConn) Echo(on bool) {
	m.mu.Lock()
	m.echo = on
	m.mu.Unlock()
}

// SetConnack replaces the CONNACK sent in answer to CONNECT. Nil disables
// the automatic CONNACK.
func (m *MockConn) SetConnack(pkt *ConnackPacket) {
	m.mu.Lock()
	m.connack = pkt
	m.mu.Unlock()
}

// FailWrites makes every later Write fail with err, like a broken pipe.
func (m *MockConn) FailWrites(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// Write decodes and records the client's packets.
func (m *MockConn) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, net.ErrClosed
	}
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	_, _ = m.decoder.Write(b)
	for {
		pkt, err := m.decoder.Next()
		if errors.Is(err, ErrIncompletePacket) {
			break
		}
		if err != nil {
			return 0, err
		}
		m.sent = append(m.sent, pkt)
		m.respond(pkt)
	}
	return len(b), nil
}

// respond queues the broker's answer to pkt. Callers hold m.mu.
func (m *MockConn) respond(pkt Packet) {
	var reply Packet
	switch p := pkt.(type) {
	case *ConnectPacket:
		if m.connack != nil {
			reply = m.connack
		}
	case *PublishPacket:
		m.routeBack(p)
		if !m.autoAck {
			return
		}
		switch p.QoS {
		case 1:
			reply = &PubackPacket{PacketID: p.PacketID}
		case 2:
			reply = &PubrecPacket{PacketID: p.PacketID}
		}
	case *PubrelPacket:
		if m.autoAck {
			reply = &PubcompPacket{PacketID: p.PacketID}
		}
	case *SubscribePacket:
		id := p.Props.GetUint32(PropSubscriptionIdentifier)
		for _, s := range p.Subscriptions {
			m.filters[s.Filter] = id
		}
		if m.autoAck {
			codes := make([]ReasonCode, len(p.Subscriptions))
			for i, s := range p.Subscriptions {
				codes[i] = ReasonCode(s.QoS)
			}
			reply = &SubackPacket{PacketID: p.PacketID, ReasonCodes: codes}
		}
	case *UnsubscribePacket:
		for _, f := range p.TopicFilters {
			delete(m.filters, f)
		}
		if m.autoAck {
			reply = &UnsubackPacket{PacketID: p.PacketID, ReasonCodes: make([]ReasonCode, len(p.TopicFilters))}
		}
	case *PingreqPacket:
		if m.autoAck {
			reply = &PingrespPacket{}
		}
	}
	if reply != nil {
		m.queue(reply)
	}
}

// routeBack echoes pub to the matching subscriptions. Callers hold m.mu.
func (m *MockConn) routeBack(pub *PublishPacket) {
	if !m.echo {
		return
	}
	var ids []uint32
	for filter, id := range m.filters {
		if TopicMatch(filter, pub.Topic) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return
	}
	slices.Sort(ids)
	echo := &PublishPacket{Topic: pub.Topic, Payload: pub.Payload, Retain: pub.Retain, Props: pub.Message().Properties()}
	for _, id := range ids {
		echo.Props.Add(PropSubscriptionIdentifier, id)
	}
	m.queue(echo)
}

func (m *MockConn) queue(pkt Packet) {
	if data, err := EncodePacket(pkt); err == nil {
		m.inbound = append(m.inbound, data...)
		m.cond.Broadcast()
	}
}

// Read returns injected bytes, blocking until some arrive or the
// connection closes. The client does not use it.
func (m *MockConn) Read(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.inbound) == 0 && !m.closed {
		m.cond.Wait()
	}
	if len(m.inbound) == 0 {
		return 0, io.EOF
	}
	n := copy(b, m.inbound)
	m.inbound = m.inbound[n:]
	return n, nil
}

// Close is idempotent.
func (m *MockConn) Close() error {
	m.mu.Lock()
	m.closed = true
	m.cond.Broadcast()
	m.mu.Unlock()
	return nil
}

// Closed reports whether the connection was closed by either side.
func (m *MockConn) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockConn) LocalAddr() net.Addr                { return mockAddr{} }
func (m *MockConn) RemoteAddr() net.Addr               { return mockAddr{} }
func (m *MockConn) SetDeadline(time.Time) error        { return nil }
func (m *MockConn) SetReadDeadline(time.Time) error    { return nil }
func (m *MockConn) SetWriteDeadline(time.Time) error   { return nil }
func (m *MockConn) bindLoop(run func(fn func()) error) { m.setRun(run) }

func (m *MockConn) setRun(run func(fn func()) error) {
	m.mu.Lock()
	m.run = run
	m.mu.Unlock()
}

// takeInbound hands buffered broker bytes to the event loop. io.EOF
// reports a connection dropped by the broker side.
func (m *MockConn) takeInbound() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data := m.inbound
	m.inbound = nil
	if m.dropped {
		return data, io.EOF
	}
	return data, nil
}

// Inject delivers pkt as if the broker sent it.
func (m *MockConn) Inject(pkt Packet) error {
	data, err := EncodePacket(pkt)
	if err != nil {
		return err
	}
	return m.InjectBytes(data)
}

// InjectBytes delivers raw bytes, which may hold partial or several packets.
func (m *MockConn) InjectBytes(b []byte) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return net.ErrClosed
	}
	m.inbound = append(m.inbound, b...)
	m.cond.Broadcast()
	m.mu.Unlock()
	return m.flush()
}

// Drop simulates the broker closing the connection.
func (m *MockConn) Drop() error {
	m.mu.Lock()
	m.dropped = true
	m.closed = true
	m.cond.Broadcast()
	m.mu.Unlock()
	return m.flush()
}

// flush lets the bound client process pending input.
func (m *MockConn) flush() error {
	m.mu.Lock()
	run := m.run
	m.mu.Unlock()
	if run == nil {
		return nil
	}
	return run(func() {})
}

// Sent returns the packets written by the client, in order.
func (m *MockConn) Sent() []Packet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Packet(nil), m.sent...)
}

// SentOfType returns the written packets of type t.
func (m *MockConn) SentOfType(t PacketType) []Packet {
	var out []Packet
	for _, p := range m.Sent() {
		if p.Type() == t {
			out = append(out, p)
		}
	}
	return out
}

// Published returns every PUBLISH written by the client, resends included.
func (m *MockConn) Published() []*PublishPacket {
	var out []*PublishPacket
	for _, p := range m.Sent() {
		if pub, ok := p.(*PublishPacket); ok {
			out = append(out, pub)
		}
	}
	return out
}

// FindPublished returns the published messages whose topic matches filter.
func (m *MockConn) FindPublished(filter string) []*Message {
	var out []*Message
	for _, p := range m.Published() {
		if TopicMatch(filter, p.Topic) {
			out = append(out, p.Message())
		}
	}
	return out
}

// ClearSent empties the packet log.
func (m *MockConn) ClearSent() {
	m.mu.Lock()
	m.sent = nil
	m.mu.Unlock()
}

type mockAddr struct{}

func (mockAddr) Network() string { return "mock" }
func (mockAddr) String() string  { return "mock" }

// MockDialer hands out MockConns and records each dial.
type MockDialer struct {
	mu      sync.Mutex
	conns   []*MockConn
	dials   []string
	err     error
	autoAck bool
	echo    bool
	connack *ConnackPacket
}

// NewMockDialer returns a dialer whose connections acknowledge everything.
func NewMockDialer() *MockDialer {
	return &MockDialer{autoAck: true, connack: &ConnackPacket{}}
}

// Dial returns a fresh MockConn, or the error set with SetError.
func (d *MockDialer) Dial(ctx context.Context, address string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials = append(d.dials, address)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.err != nil {
		return nil, d.err
	}
	conn := NewMockConn(d.autoAck)
	conn.connack = d.connack
	conn.echo = d.echo
	d.conns = append(d.conns, conn)
	return conn, nil
}

// Conn returns the most recent connection, or nil before the first dial.
func (d *MockDialer) Conn() *MockConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// Conns returns every connection handed out.
func (d *MockDialer) Conns() []*MockConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*MockConn(nil), d.conns...)
}

// SetError makes later dials fail with err; nil restores them.
func (d *MockDialer) SetError(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

// SetConnack sets the CONNACK later connections answer CONNECT with.
func (d *MockDialer) SetConnack(pkt *ConnackPacket) {
	d.mu.Lock()
	d.connack = pkt
	d.mu.Unlock()
}

// AutoAck configures the responder of later connections and the current one.
func (d *MockDialer) AutoAck(on bool) {
	d.mu.Lock()
	d.autoAck = on
	var last *MockConn
	if len(d.conns) > 0 {
		last = d.conns[len(d.conns)-1]
	}
	d.mu.Unlock()
	if last != nil {
		last.AutoAck(on)
	}
}

// Echo enables MockConn.Echo on later connections and the current one.
func (d *MockDialer) Echo(on bool) {
	d.mu.Lock()
	d.echo = on
	var last *MockConn
	if len(d.conns) > 0 {
		last = d.conns[len(d.conns)-1]
	}
	d.mu.Unlock()
	if last != nil {
		last.Echo(on)
	}
}

// Dials returns the number of dial attempts.
func (d *MockDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}
