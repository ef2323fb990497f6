package mqttier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"time"
)

// connectAttempt is one dial plus CONNECT/CONNACK exchange.
type connectAttempt struct {
	gen      uint64
	server   string
	deadline time.Time
	cancel   context.CancelFunc

	// result is the DialContext caller; nil for reconnects.
	result chan<- error
}

func (a *connectAttempt) finish(err error) {
	a.cancel()
	if a.result != nil {
		a.result <- err
		a.result = nil
	}
}

// queuedOp is work held back until the session is connected and has quota.
type queuedOp struct {
	pub   *outbound
	unsub *unsubscribeOp
}

func (q *queuedOp) fail(err error) {
	switch {
	case q.pub != nil:
		q.pub.token.complete(nil, err)
	case q.unsub != nil:
		q.unsub.finish(err)
	}
}

// startConnect begins a connection attempt. The dial runs off the loop and
// reports back through dialed.
func (c *Client) startConnect(result chan<- error) {
	if c.terminal != nil {
		if result != nil {
			result <- c.terminal
		}
		return
	}

	c.gen++
	gen := c.gen
	ctx, cancel := context.WithTimeout(c.ctx, c.options.connectTimeout)
	c.attempt = &connectAttempt{
		gen:      gen,
		deadline: c.options.now().Add(c.options.connectTimeout),
		cancel:   cancel,
		result:   result,
	}
	c.setState(StateConnecting)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		server, err := c.nextServer(ctx)
		var conn net.Conn
		if err == nil {
			conn, err = c.dial(ctx, server)
		}
		if qerr := c.enqueue(func() { c.dialed(gen, server, conn, err) }); qerr != nil && conn != nil {
			_ = conn.Close()
		}
	}()
}

// nextServer picks the next broker address round-robin, consulting the
// resolver first when one is configured.
func (c *Client) nextServer(ctx context.Context) (string, error) {
	servers := c.options.servers
	if c.options.serverResolver != nil {
		resolved, err := c.options.serverResolver(ctx)
		switch {
		case err != nil:
			c.options.logger.Warn("server resolver failed", LogFields{LogFieldError: err.Error()})
		case len(resolved) > 0:
			servers = resolved
		}
	}
	if len(servers) == 0 {
		if c.options.dialer != nil {
			return "", nil
		}
		return "", ErrNoServers
	}
	i := c.serverIndex.Add(1) - 1
	return servers[int(i)%len(servers)], nil
}

func (c *Client) dial(ctx context.Context, server string) (net.Conn, error) {
	if c.options.dialer != nil {
		return c.options.dialer.Dial(ctx, server)
	}
	dialer, addr, err := DialerForURL(server, c.options.tlsConfig, c.options.proxyURL)
	if err != nil {
		return nil, err
	}
	return dialer.Dial(ctx, addr)
}

func (c *Client) dialed(gen uint64, server string, conn net.Conn, err error) {
	a := c.attempt
	if a == nil || a.gen != gen || c.terminal != nil {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		c.connectFailed(NewConnectCauseError(err))
		return
	}

	a.server = server
	c.logger.Debug("transport connected", LogFields{LogFieldServer: server})
	c.attach(conn)

	pkt, err := c.connectPacket()
	if err != nil {
		c.connectFailed(NewConnectCauseError(err))
		return
	}
	if err := c.write(pkt); err != nil {
		c.connectFailed(NewConnectCauseError(err))
	}
}

func (c *Client) connectPacket() (*ConnectPacket, error) {
	o := c.options
	p := &ConnectPacket{
		ClientID:   c.ClientID(),
		CleanStart: o.cleanStart,
		KeepAlive:  o.keepAlive,
		Username:   o.username,
		Password:   o.password,
	}
	if o.sessionExpiryInterval > 0 {
		p.Props.Set(PropSessionExpiryInterval, o.sessionExpiryInterval)
	}
	if o.receiveMaximum > 0 && o.receiveMaximum != defaultReceiveMaximum {
		p.Props.Set(PropReceiveMaximum, o.receiveMaximum)
	}
	if o.maxPacketSize > 0 && o.maxPacketSize < MaxPacketSizeProtocol {
		p.Props.Set(PropMaximumPacketSize, o.maxPacketSize)
	}
	if o.topicAliasMaximum > 0 {
		p.Props.Set(PropTopicAliasMaximum, o.topicAliasMaximum)
	}
	for _, up := range o.userProperties {
		p.Props.Add(PropUserProperty, up)
	}
	c.setWill(p)
	if c.auth != nil {
		if err := c.auth.start(c.ctx, &p.Props); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAuthFailed, err)
		}
	}
	return p, nil
}

// connectFailed ends the current attempt. The initial attempt reports to
// DialContext; later ones continue the reconnect policy.
func (c *Client) connectFailed(err error) {
	a := c.attempt
	c.attempt = nil
	c.detach()
	c.setState(StateDisconnected)
	c.logger.Warn("connect failed", LogFields{LogFieldError: err.Error()})
	if a == nil {
		return
	}
	if a.result != nil {
		a.finish(err)
		return
	}
	a.cancel()
	c.scheduleReconnect(err)
}

func (c *Client) handleConnack(p *ConnackPacket) {
	a := c.attempt
	if a == nil {
		c.protocolError("unexpected CONNACK")
		return
	}
	if p.ReasonCode.IsError() {
		c.connectFailed(NewConnectError(p.ReasonCode, &p.Props))
		return
	}
	if c.auth != nil && p.Props.Has(PropAuthenticationMethod) {
		if _, err := c.auth.step(c.ctx, p.ReasonCode, &p.Props); err != nil {
			c.connectFailed(NewConnectCauseError(fmt.Errorf("%w: %w", ErrAuthFailed, err)))
			return
		}
	}
	keepAlive, err := c.applyConnack(&p.Props)
	if err != nil {
		_ = c.write(&DisconnectPacket{ReasonCode: ReasonProtocolError})
		c.connectFailed(NewConnectCauseError(err))
		return
	}

	c.attempt = nil
	c.reconnect = reconnectState{}
	c.setState(StateConnected)
	c.ka.start(time.Duration(keepAlive)*time.Second, c.options.now())
	c.logger.Info("connected", LogFields{
		LogFieldServer:    a.server,
		"session_present": p.SessionPresent,
	})

	if !p.SessionPresent {
		clear(c.inboundQoS2)
	}
	c.replayInflight(p.SessionPresent)
	c.restoreSubscriptions(p.SessionPresent)
	if c.options.presence {
		c.sendPresence(true)
	}
	c.flushQueue()
	c.emit(NewConnectedEvent(p.SessionPresent, &p.Props))
	a.finish(nil)
}

// applyConnack adopts the limits the broker announced and returns the
// keep-alive to use.
func (c *Client) applyConnack(props *Properties) (uint16, error) {
	if id := props.GetString(PropAssignedClientIdentifier); id != "" {
		c.setClientID(id)
	}
	keepAlive := c.options.keepAlive
	if props.Has(PropServerKeepAlive) {
		keepAlive = props.GetUint16(PropServerKeepAlive)
	}
	if props.Has(PropReceiveMaximum) {
		rm := props.GetUint16(PropReceiveMaximum)
		if rm == 0 {
			return 0, fmt.Errorf("%w: receive maximum of zero", ErrProtocolError)
		}
		c.flow.setMaximum(rm)
	} else {
		c.flow.setMaximum(defaultReceiveMaximum)
	}
	c.outboundMax = MaxPacketSizeProtocol
	if props.Has(PropMaximumPacketSize) {
		size := props.GetUint32(PropMaximumPacketSize)
		if size == 0 {
			return 0, fmt.Errorf("%w: maximum packet size of zero", ErrProtocolError)
		}
		c.outboundMax = size
	}
	return keepAlive, nil
}

// replayInflight resends every unfinished exchange in original order.
// Without a session the broker has no state for QoS 2 publishes past
// PUBREC; it already owned those messages, so they complete instead.
func (c *Client) replayInflight(sessionPresent bool) {
	entries := c.flights.ordered()
	c.flow.reset(len(entries))
	if len(entries) > 0 {
		c.logger.Info("replaying in-flight messages", LogFields{"count": len(entries), "session_present": sessionPresent})
	}
	var released []*outbound
	for _, o := range entries {
		if !sessionPresent && o.state == awaitingPubcomp {
			released = append(released, o)
			continue
		}
		c.resend(o)
	}
	for _, o := range released {
		c.completeOutbound(o, nil)
	}
}

// restoreSubscriptions sends SUBSCRIBE for entries the broker does not
// hold: all of them without a session, otherwise only unacknowledged ones.
func (c *Client) restoreSubscriptions(sessionPresent bool) {
	for _, s := range c.subs.all() {
		if !sessionPresent {
			s.acked = false
		}
		if !s.acked {
			c.sendSubscribe(s)
		}
	}
}

// connectionLost tears down a broken connection and hands over to the
// reconnect policy.
func (c *Client) connectionLost(cause error, reason ReasonCode) {
	c.lose(cause, NewDisconnectError(reason, nil, false))
}

func (c *Client) lose(cause error, event error) {
	if c.terminal != nil {
		return
	}
	if c.attempt != nil {
		c.connectFailed(NewConnectCauseError(cause))
		return
	}
	if c.conn == nil {
		return
	}

	c.logger.Warn("connection lost", LogFields{LogFieldError: cause.Error()})
	c.detach()
	c.setState(StateDisconnected)
	c.abandonPending()
	c.emit(event)

	if !c.options.autoReconnect {
		lost := NewConnectionLostError(0, cause)
		c.emit(lost)
		c.terminate(lost)
		return
	}
	c.scheduleReconnect(cause)
}

// abandonPending releases identifiers of subscribe and unsubscribe
// exchanges cut off by the connection loss. Subscriptions are resent by
// restoreSubscriptions; unsubscribes go back to the front of the queue.
func (c *Client) abandonPending() {
	for id := range c.pendingSubs {
		delete(c.pendingSubs, id)
		c.ids.release(id)
	}
	ids := make([]uint16, 0, len(c.pendingUnsubs))
	for id := range c.pendingUnsubs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	requeue := make([]*queuedOp, 0, len(ids))
	for _, id := range ids {
		requeue = append(requeue, &queuedOp{unsub: c.pendingUnsubs[id]})
		delete(c.pendingUnsubs, id)
		c.ids.release(id)
	}
	c.queue = append(requeue, c.queue...)
}

func (c *Client) protocolError(reason string) {
	c.abort(ReasonProtocolError, fmt.Errorf("%w: %s", ErrProtocolError, reason))
}

// abort sends DISCONNECT with code and drops the connection.
func (c *Client) abort(code ReasonCode, err error) {
	c.logger.Warn("protocol error", LogFields{LogFieldError: err.Error(), LogFieldReasonCode: code.String()})
	_ = c.write(&DisconnectPacket{ReasonCode: code})
	c.connectionLost(err, code)
}

// submitPublish accepts a publish on the loop. It is written at once when
// connected, nothing is queued ahead of it and quota allows, otherwise it
// waits in the queue.
func (c *Client) submitPublish(msg *Message, tok *Token) {
	if c.terminal != nil {
		tok.complete(nil, c.terminal)
		return
	}
	if tok.completed() {
		return
	}
	o := &outbound{msg: msg, token: tok}
	tok.setCancel(func() { _ = c.enqueue(func() { c.cancelPublish(o) }) })

	if c.State() != StateConnected || len(c.queue) > 0 {
		c.queue = append(c.queue, &queuedOp{pub: o})
		return
	}
	if !c.sendPublish(o) {
		c.queue = append(c.queue, &queuedOp{pub: o})
	}
}

// sendPublish writes o. It returns false when flow control has no quota
// left and o must wait.
func (c *Client) sendPublish(o *outbound) bool {
	if o.msg.QoS == 0 {
		data, err := c.encode(o.msg.toPublish(0))
		if err != nil {
			o.token.complete(nil, err)
			return true
		}
		if err := c.send(PacketPUBLISH, data); err != nil {
			c.metrics.failures.Inc()
			o.token.complete(nil, err)
			return true
		}
		c.metrics.sent.Inc()
		o.token.complete(nil, nil)
		return true
	}

	if !c.flow.tryAcquire() {
		return false
	}
	id, err := c.ids.allocate()
	if err != nil {
		c.flow.release()
		o.token.complete(nil, err)
		return true
	}
	o.packetID = id
	o.state = awaitingPuback
	if o.msg.QoS == 2 {
		o.state = awaitingPubrec
	}
	if _, err := c.encode(o.packet()); err != nil {
		c.ids.release(id)
		c.flow.release()
		o.token.complete(nil, err)
		return true
	}
	c.flights.add(o)
	c.saveRecord(o)
	c.resend(o)
	return true
}

// resend writes the current leg of o and arms its retry.
func (c *Client) resend(o *outbound) {
	data, err := c.encode(o.packet())
	if err != nil {
		c.completeOutbound(o, err)
		return
	}
	o.attempts++
	o.sentAt = c.options.now()
	if o.firstSent.IsZero() {
		o.firstSent = o.sentAt
		c.metrics.sent.Inc()
	}
	if err := c.send(o.packet().Type(), data); err != nil {
		c.logger.Debug("resend deferred until reconnect", LogFields{LogFieldPacketID: o.packetID})
	}
}

// completeOutbound finishes o, frees its identifier and quota, and lets
// queued work proceed.
func (c *Client) completeOutbound(o *outbound, err error) {
	if cur, ok := c.flights.get(o.packetID); !ok || cur != o {
		o.token.complete(nil, err)
		return
	}
	c.flights.remove(o.packetID)
	c.ids.release(o.packetID)
	c.flow.release()
	c.deleteRecord(o)
	if err != nil {
		c.metrics.failures.Inc()
	} else if !o.firstSent.IsZero() {
		c.metrics.ackLatency.ObserveDuration(c.options.now().Sub(o.firstSent))
	}
	o.token.complete(nil, err)
	c.flushQueue()
}

func (c *Client) cancelPublish(o *outbound) {
	if cur, ok := c.flights.get(o.packetID); ok && cur == o {
		c.logger.Debug("publish canceled", LogFields{LogFieldPacketID: o.packetID, LogFieldTopic: o.msg.Topic})
		c.flights.remove(o.packetID)
		c.ids.release(o.packetID)
		c.flow.release()
		c.deleteRecord(o)
		c.flushQueue()
		return
	}
	c.queue = slices.DeleteFunc(c.queue, func(q *queuedOp) bool { return q.pub == o })
}

// flushQueue sends queued work in submission order until quota runs out
// or the connection breaks.
func (c *Client) flushQueue() {
	if c.State() != StateConnected {
		return
	}
	for len(c.queue) > 0 && c.writeErr == nil && c.conn != nil {
		q := c.queue[0]
		switch {
		case q.pub != nil:
			if q.pub.token.completed() {
				break
			}
			if !c.sendPublish(q.pub) {
				return
			}
		case q.unsub != nil:
			c.sendUnsubscribe(q.unsub)
		}
		c.queue = c.queue[1:]
	}
}

func (c *Client) saveRecord(o *outbound) {
	if err := c.options.store.Save(c.ctx, c.ClientID(), o.record()); err != nil {
		c.logger.Warn("session store save failed", LogFields{LogFieldPacketID: o.packetID, LogFieldError: err.Error()})
	}
}

func (c *Client) deleteRecord(o *outbound) {
	if err := c.options.store.Delete(c.ctx, c.ClientID(), o.packetID); err != nil {
		c.logger.Warn("session store delete failed", LogFields{LogFieldPacketID: o.packetID, LogFieldError: err.Error()})
	}
}

// submitSubscribe registers subs and sends them when connected. While
// disconnected they wait in the table for restoreSubscriptions.
func (c *Client) submitSubscribe(subs []*Subscription) {
	if c.terminal != nil {
		for _, s := range subs {
			s.batch.fail(s, c.terminal)
		}
		return
	}
	for _, s := range subs {
		s.ID = c.subs.allocateID()
		c.subs.add(s)
	}
	if c.State() != StateConnected {
		return
	}
	for _, s := range subs {
		c.sendSubscribe(s)
	}
}

func (c *Client) sendSubscribe(s *Subscription) {
	id, err := c.ids.allocate()
	if err != nil {
		c.subs.removeID(s.ID)
		s.batch.fail(s, err)
		return
	}
	pkt := &SubscribePacket{
		PacketID:      id,
		Subscriptions: []TopicSubscription{s.topicSubscription()},
	}
	pkt.Props.Set(PropSubscriptionIdentifier, s.ID)
	data, err := c.encode(pkt)
	if err != nil {
		c.ids.release(id)
		c.subs.removeID(s.ID)
		s.batch.fail(s, err)
		return
	}
	c.pendingSubs[id] = s
	_ = c.send(PacketSUBSCRIBE, data)
	c.logger.Debug("subscribe sent", LogFields{LogFieldFilter: s.Filter, LogFieldPacketID: id})
}

// submitUnsubscribe drops the filters from the table at once; the
// UNSUBSCRIBE follows when connected.
func (c *Client) submitUnsubscribe(op *unsubscribeOp) {
	if c.terminal != nil {
		op.finish(c.terminal)
		return
	}
	for _, f := range op.filters {
		c.forget(c.subs.removeFilter(f)...)
	}
	if c.State() != StateConnected || len(c.queue) > 0 {
		c.queue = append(c.queue, &queuedOp{unsub: op})
		return
	}
	c.sendUnsubscribe(op)
}

func (c *Client) sendUnsubscribe(op *unsubscribeOp) {
	id, err := c.ids.allocate()
	if err != nil {
		op.finish(err)
		return
	}
	data, err := c.encode(&UnsubscribePacket{PacketID: id, TopicFilters: op.filters})
	if err != nil {
		c.ids.release(id)
		op.finish(err)
		return
	}
	c.pendingUnsubs[id] = op
	_ = c.send(PacketUNSUBSCRIBE, data)
}

// forget settles subscriptions removed from the table: callers still
// waiting for their SUBACK are released, and request subscriptions are
// dropped from the correlator.
func (c *Client) forget(removed ...*Subscription) {
	for _, s := range removed {
		s.batch.fail(s, ErrCanceled)
		c.correlator.forget(s)
	}
}

// receive handles one decoded packet or a read failure.
func (c *Client) receive(pkt Packet, err error) {
	if err != nil {
		reason := readFailureReason(err)
		if reason != 0 {
			_ = c.write(&DisconnectPacket{ReasonCode: reason})
		} else {
			reason = ReasonUnspecifiedError
		}
		c.connectionLost(err, reason)
		return
	}
	c.logger.Debug("packet received", LogFields{LogFieldPacketType: pkt.Type().String()})
	c.handlePacket(pkt)
}

// readFailureReason maps a decode failure to the DISCONNECT reason sent
// before closing. Zero means a transport failure with nothing to send.
func readFailureReason(err error) ReasonCode {
	switch {
	case errors.Is(err, ErrInvalidPacketType):
		return ReasonProtocolError
	case errors.Is(err, ErrPacketTooLarge):
		return ReasonPacketTooLarge
	case errors.Is(err, ErrMalformedPacket):
		return ReasonMalformedPacket
	default:
		return 0
	}
}

func (c *Client) handlePacket(pkt Packet) {
	switch p := pkt.(type) {
	case *ConnackPacket:
		c.handleConnack(p)
		return
	case *AuthPacket:
		c.handleAuth(p)
		return
	case *DisconnectPacket:
		c.handleDisconnect(p)
		return
	}

	if c.State() != StateConnected {
		c.protocolError(pkt.Type().String() + " before CONNACK")
		return
	}

	switch p := pkt.(type) {
	case *PublishPacket:
		c.handlePublish(p)
	case *PubackPacket:
		c.handleAck(p.PacketID, p.ReasonCode, awaitingPuback)
	case *PubrecPacket:
		c.handlePubrec(p)
	case *PubrelPacket:
		c.handlePubrel(p)
	case *PubcompPacket:
		c.handleAck(p.PacketID, p.ReasonCode, awaitingPubcomp)
	case *SubackPacket:
		c.handleSuback(p)
	case *UnsubackPacket:
		c.handleUnsuback(p)
	case *PingrespPacket:
		c.ka.pongReceived()
	default:
		c.protocolError("unexpected " + pkt.Type().String())
	}
}

func (c *Client) handlePublish(p *PublishPacket) {
	if err := c.aliases.resolve(p); err != nil {
		c.abort(ReasonTopicAliasInvalid, err)
		return
	}
	msg := p.Message()
	switch p.QoS {
	case 0:
		c.deliver(msg)
	case 1:
		c.deliver(msg)
		_ = c.write(&PubackPacket{PacketID: p.PacketID})
	case 2:
		if _, seen := c.inboundQoS2[p.PacketID]; !seen {
			c.inboundQoS2[p.PacketID] = struct{}{}
			c.deliver(msg)
		}
		_ = c.write(&PubrecPacket{PacketID: p.PacketID})
	}
}

// deliver runs every matching subscription handler in registration order,
// or the default handler when none matched.
func (c *Client) deliver(msg *Message) {
	c.metrics.received.Inc()
	if msg = c.interceptInbound(msg); msg == nil {
		return
	}
	delivered := false
	for _, s := range c.subs.match(msg.Topic) {
		if s.handler != nil {
			s.handler.Handle(msg)
			delivered = true
		}
	}
	if delivered {
		return
	}
	if c.defaultHandler != nil {
		c.defaultHandler.Handle(msg)
		return
	}
	c.logger.Debug("no handler for message", LogFields{LogFieldTopic: msg.Topic})
}

// handleAck finishes an exchange on PUBACK or PUBCOMP.
func (c *Client) handleAck(id uint16, reason ReasonCode, want outboundState) {
	o, ok := c.flights.get(id)
	if !ok || o.state != want {
		c.logger.Debug("ack for unknown packet id", LogFields{LogFieldPacketID: id})
		return
	}
	var err error
	if reason.IsError() {
		err = NewPublishError(o.msg.Topic, id, reason)
		c.logger.Warn("publish rejected", LogFields{LogFieldTopic: o.msg.Topic, LogFieldReasonCode: reason.String()})
	}
	c.completeOutbound(o, err)
}

func (c *Client) handlePubrec(p *PubrecPacket) {
	o, ok := c.flights.get(p.PacketID)
	if !ok {
		_ = c.write(&PubrelPacket{PacketID: p.PacketID, ReasonCode: ReasonPacketIDNotFound})
		return
	}
	if o.state == awaitingPuback {
		c.logger.Debug("PUBREC for QoS 1 publish", LogFields{LogFieldPacketID: p.PacketID})
		return
	}
	if p.ReasonCode.IsError() {
		c.completeOutbound(o, NewPublishError(o.msg.Topic, p.PacketID, p.ReasonCode))
		return
	}
	if o.state == awaitingPubrec {
		o.state = awaitingPubcomp
		o.attempts = 0
		c.saveRecord(o)
	}
	c.resend(o)
}

func (c *Client) handlePubrel(p *PubrelPacket) {
	reason := ReasonSuccess
	if _, ok := c.inboundQoS2[p.PacketID]; ok {
		delete(c.inboundQoS2, p.PacketID)
	} else {
		reason = ReasonPacketIDNotFound
	}
	_ = c.write(&PubcompPacket{PacketID: p.PacketID, ReasonCode: reason})
}

func (c *Client) handleSuback(p *SubackPacket) {
	s, ok := c.pendingSubs[p.PacketID]
	if !ok {
		c.logger.Debug("SUBACK for unknown packet id", LogFields{LogFieldPacketID: p.PacketID})
		return
	}
	delete(c.pendingSubs, p.PacketID)
	c.ids.release(p.PacketID)

	reason := ReasonUnspecifiedError
	if len(p.ReasonCodes) > 0 {
		reason = p.ReasonCodes[0]
	}
	if reason.IsError() {
		c.logger.Warn("subscribe refused", LogFields{LogFieldFilter: s.Filter, LogFieldReasonCode: reason.String()})
		if _, ok := c.subs.removeID(s.ID); ok {
			c.correlator.forget(s)
		}
		s.batch.fail(s, NewSubscribeError(s.Filter, reason))
		return
	}
	s.GrantedQoS = byte(reason)
	s.acked = true
	s.batch.ack(s)
}

func (c *Client) handleUnsuback(p *UnsubackPacket) {
	op, ok := c.pendingUnsubs[p.PacketID]
	if !ok {
		c.logger.Debug("UNSUBACK for unknown packet id", LogFields{LogFieldPacketID: p.PacketID})
		return
	}
	delete(c.pendingUnsubs, p.PacketID)
	c.ids.release(p.PacketID)

	var err error
	for i, reason := range p.ReasonCodes {
		if reason.IsError() && i < len(op.filters) {
			err = fmt.Errorf("%w: %q: %s", ErrUnsubscribeFailed, op.filters[i], reason)
			break
		}
	}
	op.finish(err)
}

func (c *Client) handleDisconnect(p *DisconnectPacket) {
	c.logger.Warn("server sent DISCONNECT", LogFields{
		LogFieldReasonCode: p.ReasonCode.String(),
		"reason_string":    p.Props.GetString(PropReasonString),
	})
	c.lose(fmt.Errorf("%w: %s", ErrServerDisconnect, p.ReasonCode), NewDisconnectError(p.ReasonCode, &p.Props, true))
}

func (c *Client) handleAuth(p *AuthPacket) {
	if c.auth == nil {
		c.protocolError("AUTH without enhanced authentication")
		return
	}
	fail := func(err error) {
		err = fmt.Errorf("%w: %w", ErrAuthFailed, err)
		_ = c.write(&DisconnectPacket{ReasonCode: ReasonNotAuthorized})
		if c.attempt != nil {
			c.connectFailed(NewConnectCauseError(err))
			return
		}
		c.connectionLost(err, ReasonNotAuthorized)
	}

	switch p.ReasonCode {
	case ReasonContinueAuth, ReasonReAuth:
		reply, err := c.auth.step(c.ctx, p.ReasonCode, &p.Props)
		if err != nil {
			fail(err)
			return
		}
		if reply != nil {
			_ = c.write(reply)
		}
	case ReasonSuccess:
		if _, err := c.auth.step(c.ctx, p.ReasonCode, &p.Props); err != nil {
			fail(err)
		}
	default:
		c.protocolError("AUTH with reason " + p.ReasonCode.String())
	}
}

// onTick drives connect deadlines, keep-alive, retries and request expiry.
func (c *Client) onTick(now time.Time) {
	if a := c.attempt; a != nil && !now.Before(a.deadline) {
		c.connectFailed(NewConnectCauseError(context.DeadlineExceeded))
	}

	if c.State() == StateConnected {
		switch c.ka.check(now) {
		case keepAlivePing:
			if c.write(&PingreqPacket{}) == nil {
				c.ka.pingSent(now)
			}
		case keepAliveExpired:
			c.connectionLost(ErrKeepAliveTimeout, ReasonKeepAliveTimeout)
		}
	}
	if c.State() == StateConnected {
		c.retryDue(now)
	}

	c.correlator.expire(now)
}

// retryDue resends exchanges whose retry interval elapsed and fails those
// that ran out of retries.
func (c *Client) retryDue(now time.Time) {
	if c.options.retryInterval <= 0 {
		return
	}
	for _, o := range c.flights.due(now, c.options.retryInterval) {
		if o.attempts > c.options.maxRetries {
			c.logger.Warn("publish not acknowledged", LogFields{
				LogFieldTopic:    o.msg.Topic,
				LogFieldPacketID: o.packetID,
				LogFieldAttempt:  o.attempts,
			})
			c.completeOutbound(o, NewPublishTimeoutError(o.msg.Topic, o.packetID, o.attempts))
			continue
		}
		c.logger.Debug("retrying publish", LogFields{LogFieldPacketID: o.packetID, LogFieldAttempt: o.attempts})
		c.metrics.retries.Inc()
		c.resend(o)
	}
}
