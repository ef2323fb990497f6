package mqttier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// State is the connection state of a Client.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// Client is an MQTT 5.0 client session.
//
// One event-loop goroutine owns all protocol state. Public methods hand
// their work to the loop in submission order. Handlers and the OnEvent
// callback run on the loop: they must not block, and must not call the
// blocking methods (Publish, Subscribe, Unsubscribe, Request, Disconnect);
// use PublishAsync from inside a handler.
type Client struct {
	options *clientOptions
	logger  Logger
	metrics *clientMetrics

	state       atomic.Int32
	clientID    atomic.Value
	serverIndex atomic.Uint32

	outboxMu sync.Mutex
	outbox   []func()
	closed   bool
	wake     chan struct{}

	inbound  chan inboundEvent
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc

	// Owned by the event loop.
	conn           net.Conn
	mock           loopConn
	decoder        *Decoder
	aliases        *topicAliases
	gen            uint64
	writeErr       error
	attempt        *connectAttempt
	reconnect      reconnectState
	terminal       error
	outboundMax    uint32
	ids            *packetIDs
	flights        *inflight
	inboundQoS2    map[uint16]struct{}
	flow           *flowControl
	queue          []*queuedOp
	subs           *subscriptionTable
	pendingSubs    map[uint16]*Subscription
	pendingUnsubs  map[uint16]*unsubscribeOp
	correlator     *correlator
	ka             keepAlive
	auth           *authState
	defaultHandler Handler
}

type inboundEvent struct {
	gen uint64
	pkt Packet
	err error
}

// loopConn is implemented by connections that feed inbound bytes to the
// event loop directly instead of through a reader goroutine.
type loopConn interface {
	bindLoop(run func(fn func()) error)
	takeInbound() ([]byte, error)
}

// Dial connects to a broker and returns a connected client.
func Dial(opts ...Option) (*Client, error) {
	return DialContext(context.Background(), opts...)
}

// DialContext connects to a broker. ctx bounds the initial connection
// only; the client lives until Disconnect or Close.
func DialContext(ctx context.Context, opts ...Option) (*Client, error) {
	options := applyOptions(opts...)
	if options.dialer == nil && len(options.servers) == 0 && options.serverResolver == nil {
		return nil, ErrNoServers
	}

	c := newClient(options)
	if err := c.loadSession(ctx); err != nil {
		c.shutdownNow()
		return nil, err
	}

	result := make(chan error, 1)
	if err := c.enqueue(func() { c.startConnect(result) }); err != nil {
		return nil, err
	}
	select {
	case err := <-result:
		if err != nil {
			c.shutdownNow()
			return nil, err
		}
		return c, nil
	case <-ctx.Done():
		c.shutdownNow()
		return nil, NewConnectCauseError(ctx.Err())
	}
}

func newClient(options *clientOptions) *Client {
	c := &Client{
		options:        options,
		wake:           make(chan struct{}, 1),
		inbound:        make(chan inboundEvent, 16),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
		ids:            newPacketIDs(),
		flights:        newInflight(),
		inboundQoS2:    make(map[uint16]struct{}),
		flow:           newFlowControl(0),
		subs:           newSubscriptionTable(),
		pendingSubs:    make(map[uint16]*Subscription),
		pendingUnsubs:  make(map[uint16]*unsubscribeOp),
		defaultHandler: options.defaultHandler,
		outboundMax:    MaxPacketSizeProtocol,
		metrics:        newClientMetrics(options.metrics),
	}
	c.correlator = newCorrelator(options.now, c.metrics.requestLatency)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.setClientID(options.clientID)
	if options.enhancedAuth != nil {
		c.auth = &authState{auth: options.enhancedAuth}
	}
	c.wg.Add(1)
	go c.loop()
	return c
}

// loadSession prepares the store: cleared on clean start, otherwise its
// records become in-flight entries replayed after CONNACK.
func (c *Client) loadSession(ctx context.Context) error {
	id := c.ClientID()
	if c.options.cleanStart {
		if err := c.options.store.Clear(ctx, id); err != nil {
			return fmt.Errorf("clearing session store: %w", err)
		}
		return nil
	}
	recs, err := c.options.store.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("loading session store: %w", err)
	}
	if len(recs) == 0 {
		return nil
	}
	return c.call(func() error {
		for _, rec := range recs {
			o := &outbound{packetID: rec.PacketID, msg: rec.Message, state: awaitingPuback, token: newToken()}
			if rec.Message.QoS == 2 {
				o.state = awaitingPubrec
			}
			if rec.Released {
				o.state = awaitingPubcomp
			}
			// restored entries count as already sent once
			o.attempts = 1
			c.ids.reserve(rec.PacketID)
			c.flights.add(o)
		}
		c.logger.Info("restored in-flight messages", LogFields{"count": len(recs)})
		return nil
	})
}

// ClientID returns the client identifier, which the broker may have assigned.
func (c *Client) ClientID() string {
	return c.clientID.Load().(string)
}

func (c *Client) setClientID(id string) {
	c.clientID.Store(id)
	c.logger = c.options.logger.WithFields(LogFields{LogFieldClientID: id})
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// IsConnected reports whether the session is established.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

func (c *Client) setState(s State) {
	if old := State(c.state.Swap(int32(s))); old != s {
		c.logger.Debug("state changed", LogFields{LogFieldState: s.String(), "from": old.String()})
	}
}

// SetDefaultHandler sets the handler for inbound messages that match no
// subscription. A nil handler drops them.
func (c *Client) SetDefaultHandler(h Handler) {
	_ = c.enqueue(func() { c.defaultHandler = h })
}

// enqueue schedules fn on the event loop without waiting.
func (c *Client) enqueue(fn func()) error {
	c.outboxMu.Lock()
	if c.closed {
		c.outboxMu.Unlock()
		return ErrClientClosed
	}
	c.outbox = append(c.outbox, fn)
	c.outboxMu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

// call runs fn on the event loop and waits for its result.
func (c *Client) call(fn func() error) error {
	result := make(chan error, 1)
	if err := c.enqueue(func() { result <- fn() }); err != nil {
		return err
	}
	return <-result
}

// runSync runs fn on the loop, then lets the loop consume whatever inbound
// data fn produced, and returns once both are done.
func (c *Client) runSync(fn func()) error {
	return c.call(func() error {
		fn()
		c.drainLoopConn()
		return nil
	})
}

func (c *Client) loop() {
	defer c.wg.Done()
	defer close(c.done)

	ticker := time.NewTicker(c.options.tick)
	defer ticker.Stop()

	for {
		select {
		case <-c.wake:
			c.runOutbox()
		case ev := <-c.inbound:
			if ev.gen == c.gen {
				c.receive(ev.pkt, ev.err)
			}
		case <-ticker.C:
			c.onTick(c.options.now())
		case <-c.stop:
			c.finishOutbox()
			return
		}
		c.afterIteration()
	}
}

func (c *Client) runOutbox() {
	for {
		c.outboxMu.Lock()
		batch := c.outbox
		c.outbox = nil
		c.outboxMu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			fn()
			c.afterIteration()
		}
	}
}

// finishOutbox runs work submitted before the client closed; every
// operation observes the terminal error and fails its caller.
func (c *Client) finishOutbox() {
	c.outboxMu.Lock()
	c.closed = true
	batch := c.outbox
	c.outbox = nil
	c.outboxMu.Unlock()
	for _, fn := range batch {
		fn()
	}
}

func (c *Client) afterIteration() {
	c.drainLoopConn()
	if err := c.writeErr; err != nil {
		c.writeErr = nil
		c.connectionLost(err, ReasonUnspecifiedError)
	}
	c.metrics.inflight.Set(float64(c.flights.len()))
	c.metrics.queued.Set(float64(len(c.queue)))
}

func (c *Client) drainLoopConn() {
	for c.mock != nil {
		mock, gen := c.mock, c.gen
		data, err := mock.takeInbound()
		if len(data) > 0 {
			_, _ = c.decoder.Write(data)
			for c.gen == gen {
				pkt, derr := c.decoder.Next()
				if errors.Is(derr, ErrIncompletePacket) {
					break
				}
				c.receive(pkt, derr)
			}
		}
		if c.gen != gen {
			continue
		}
		if err != nil {
			c.connectionLost(err, ReasonUnspecifiedError)
			return
		}
		if len(data) == 0 {
			return
		}
	}
}

func (c *Client) emit(event error) {
	if c.options.onEvent != nil {
		c.options.onEvent(c, event)
	}
}

// encode serializes pkt within the broker's Maximum Packet Size.
func (c *Client) encode(pkt Packet) ([]byte, error) {
	data, err := EncodePacket(pkt)
	if err != nil {
		return nil, err
	}
	if uint32(len(data)) > c.outboundMax {
		return nil, &EncodingError{Field: pkt.Type().String(), Length: len(data), err: ErrPacketTooLarge}
	}
	return data, nil
}

// send writes an encoded packet. A transport failure is recorded and
// handled as connection loss once the current loop step finishes.
func (c *Client) send(t PacketType, data []byte) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	if c.options.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.options.writeTimeout))
	}
	if _, err := c.conn.Write(data); err != nil {
		if c.writeErr == nil {
			c.writeErr = err
		}
		return err
	}
	c.ka.sent(c.options.now())
	c.logger.Debug("packet sent", LogFields{LogFieldPacketType: t.String()})
	return nil
}

func (c *Client) write(pkt Packet) error {
	data, err := c.encode(pkt)
	if err != nil {
		return err
	}
	return c.send(pkt.Type(), data)
}

func (c *Client) attach(conn net.Conn) {
	c.conn = conn
	c.decoder = NewDecoder(c.options.maxPacketSize)
	c.aliases = newTopicAliases(c.options.topicAliasMaximum)
	if lc, ok := conn.(loopConn); ok {
		c.mock = lc
		lc.bindLoop(c.runSync)
		return
	}
	gen := c.gen
	c.wg.Add(1)
	go c.readLoop(gen, conn)
}

func (c *Client) readLoop(gen uint64, conn net.Conn) {
	defer c.wg.Done()
	for {
		pkt, _, err := ReadPacket(conn, c.options.maxPacketSize)
		select {
		case c.inbound <- inboundEvent{gen: gen, pkt: pkt, err: err}:
		case <-c.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// detach closes the current connection and invalidates events from it.
func (c *Client) detach() {
	c.gen++
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.mock = nil
	c.decoder = nil
	c.ka.stop()
}

// Publish sends msg and waits for its outcome: written for QoS 0,
// acknowledged for QoS 1 and 2. If ctx ends first the publish is canceled.
func (c *Client) Publish(ctx context.Context, msg *Message) error {
	if c.options.limiter != nil {
		if err := c.options.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	tok := c.publish(msg)
	if err := tok.Wait(ctx); err != nil {
		if errors.Is(err, ctx.Err()) {
			tok.Cancel()
		}
		return err
	}
	return nil
}

// PublishAsync queues msg and returns immediately; it is safe to call
// from handlers.
func (c *Client) PublishAsync(msg *Message) *Token {
	if l := c.options.limiter; l != nil {
		if d := l.Reserve().Delay(); d > 0 {
			tok := newToken()
			time.AfterFunc(d, func() { c.publishInto(msg, tok) })
			return tok
		}
	}
	return c.publish(msg)
}

func (c *Client) publish(msg *Message) *Token {
	tok := newToken()
	c.publishInto(msg, tok)
	return tok
}

func (c *Client) publishInto(msg *Message, tok *Token) {
	if err := validateMessage(msg); err != nil {
		tok.complete(nil, err)
		return
	}
	msg = c.interceptOutbound(msg.Clone())
	if msg == nil {
		tok.complete(nil, nil)
		return
	}
	if err := c.enqueue(func() { c.submitPublish(msg, tok) }); err != nil {
		tok.complete(nil, err)
	}
}

func validateMessage(msg *Message) error {
	if msg == nil {
		return fmt.Errorf("%w: nil message", ErrPublishFailed)
	}
	if msg.QoS > 2 {
		return ErrInvalidQoS
	}
	return ValidateTopicName(msg.Topic)
}

// Subscribe registers handler for filter and waits for the SUBACK.
// Invalid filters fail before anything is sent.
func (c *Client) Subscribe(ctx context.Context, filter string, qos byte, handler Handler) (*Subscription, error) {
	subs, err := c.SubscribeMultiple(ctx, []SubscribeRequest{{Filter: filter, QoS: qos, Handler: handler}})
	if err != nil {
		return nil, err
	}
	return subs[0], nil
}

// SubscribeMultiple subscribes every request and waits for all SUBACKs.
// Each filter gets its own subscription identifier. On failure the
// subscriptions the broker refused are removed and the first error is
// returned alongside the handles.
func (c *Client) SubscribeMultiple(ctx context.Context, reqs []SubscribeRequest) ([]*Subscription, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: no filters", ErrSubscribeFailed)
	}
	for _, r := range reqs {
		if err := ValidateTopicFilter(r.Filter); err != nil {
			return nil, err
		}
		if r.QoS > 2 {
			return nil, ErrInvalidQoS
		}
	}

	batch := newSubscribeBatch(len(reqs))
	subs := make([]*Subscription, len(reqs))
	for i, r := range reqs {
		subs[i] = &Subscription{
			Filter:          r.Filter,
			QoS:             r.QoS,
			NoLocal:         r.NoLocal,
			RetainAsPublish: r.RetainAsPublish,
			RetainHandling:  r.RetainHandling,
			handler:         r.Handler,
			client:          c,
			batch:           batch,
		}
	}
	if err := c.enqueue(func() { c.submitSubscribe(subs) }); err != nil {
		return nil, err
	}
	select {
	case <-batch.done:
		return subs, batch.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Unsubscribe removes every subscription registered for each filter and
// waits for the UNSUBACK.
func (c *Client) Unsubscribe(ctx context.Context, filters ...string) error {
	if len(filters) == 0 {
		return fmt.Errorf("%w: no filters", ErrUnsubscribeFailed)
	}
	for _, f := range filters {
		if err := ValidateTopicFilter(f); err != nil {
			return err
		}
	}
	op := newUnsubscribeOp(filters)
	if err := c.enqueue(func() { c.submitUnsubscribe(op) }); err != nil {
		return err
	}
	return op.wait(ctx)
}

// UnsubscribeID removes one subscription. UNSUBSCRIBE is sent only when no
// other subscription shares its filter.
func (c *Client) UnsubscribeID(ctx context.Context, id uint32) error {
	var op *unsubscribeOp
	err := c.call(func() error {
		s, ok := c.subs.removeID(id)
		if !ok {
			return fmt.Errorf("%w: id %d", ErrSubscriptionNotFound, id)
		}
		c.forget(s)
		if c.subs.hasFilter(s.Filter) {
			return nil
		}
		op = newUnsubscribeOp([]string{s.Filter})
		c.submitUnsubscribe(op)
		return nil
	})
	if err != nil || op == nil {
		return err
	}
	return op.wait(ctx)
}

// Disconnect ends the session gracefully and stops the client. Pending
// operations fail with ErrClientClosed.
func (c *Client) Disconnect(ctx context.Context) error {
	if err := c.enqueue(func() { c.disconnect(ReasonSuccess) }); err != nil {
		if errors.Is(err, ErrClientClosed) {
			return nil
		}
		return err
	}
	select {
	case <-c.done:
		c.cancel()
		c.wg.Wait()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects and releases all resources. It is idempotent.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.options.connectTimeout)
	defer cancel()
	if err := c.Disconnect(ctx); err != nil {
		c.shutdownNow()
		return err
	}
	return nil
}

// shutdownNow stops the loop without a DISCONNECT handshake.
func (c *Client) shutdownNow() {
	_ = c.enqueue(func() { c.terminate(ErrClientClosed) })
	<-c.done
	c.cancel()
	c.wg.Wait()
}

func (c *Client) disconnect(reason ReasonCode) {
	if c.terminal != nil {
		return
	}
	if c.State() == StateConnected {
		if c.options.presence {
			c.sendPresence(false)
		}
		c.setState(StateDisconnecting)
		_ = c.write(&DisconnectPacket{ReasonCode: reason})
	}
	c.detach()
	c.setState(StateDisconnected)
	c.emit(NewDisconnectError(reason, nil, false))
	c.terminate(ErrClientClosed)
}

// terminate fails everything pending with err and stops the event loop.
func (c *Client) terminate(err error) {
	if c.terminal != nil {
		return
	}
	c.terminal = err
	c.detach()
	c.setState(StateDisconnected)
	if c.attempt != nil {
		c.attempt.finish(err)
		c.attempt = nil
	}
	for _, o := range c.flights.ordered() {
		c.flights.remove(o.packetID)
		o.token.complete(nil, err)
	}
	for _, q := range c.queue {
		q.fail(err)
	}
	c.queue = nil
	for id, s := range c.pendingSubs {
		delete(c.pendingSubs, id)
		s.batch.fail(s, err)
	}
	for _, s := range c.subs.all() {
		s.batch.fail(s, err)
	}
	for id, op := range c.pendingUnsubs {
		delete(c.pendingUnsubs, id)
		op.finish(err)
	}
	c.correlator.failAll(err)
	c.stopOnce.Do(func() { close(c.stop) })
	c.logger.Info("client stopped", LogFields{LogFieldError: err.Error()})
}
