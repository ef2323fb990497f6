package mqttier

import (
	"context"
	"slices"
)

// firstSubscriptionID is the first identifier handed out; lower values are
// left free for brokers that reserve them.
const firstSubscriptionID = 10

// Subscription is a live subscription handle returned by Subscribe.
type Subscription struct {
	// ID is the MQTT 5 Subscription Identifier sent with the SUBSCRIBE.
	ID         uint32
	Filter     string
	QoS        byte
	GrantedQoS byte

	NoLocal         bool
	RetainAsPublish bool
	RetainHandling  byte

	handler Handler
	client  *Client

	// batch is the caller still waiting for this entry's SUBACK.
	batch *subscribeBatch

	// acked is set once a SUBACK granted the entry in the current session.
	acked bool
}

// Unsubscribe removes this subscription only.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	return s.client.UnsubscribeID(ctx, s.ID)
}

func (s *Subscription) topicSubscription() TopicSubscription {
	return TopicSubscription{
		Filter:          s.Filter,
		QoS:             s.QoS,
		NoLocal:         s.NoLocal,
		RetainAsPublish: s.RetainAsPublish,
		RetainHandling:  s.RetainHandling,
	}
}

// SubscribeRequest describes one filter of a SubscribeMultiple call.
type SubscribeRequest struct {
	Filter          string
	QoS             byte
	Handler         Handler
	NoLocal         bool
	RetainAsPublish bool
	RetainHandling  byte
}

// subscribeBatch collects the SUBACK outcomes of one SubscribeMultiple call.
// Only the event loop mutates it; done publishes err to the caller.
type subscribeBatch struct {
	remaining int
	err       error
	done      chan struct{}
}

func newSubscribeBatch(n int) *subscribeBatch {
	return &subscribeBatch{remaining: n, done: make(chan struct{})}
}

func (b *subscribeBatch) ack(s *Subscription) {
	if b == nil {
		return
	}
	s.batch = nil
	b.remaining--
	if b.remaining == 0 {
		close(b.done)
	}
}

func (b *subscribeBatch) fail(s *Subscription, err error) {
	if b == nil {
		return
	}
	if b.err == nil {
		b.err = err
	}
	b.ack(s)
}

// unsubscribeOp is one UNSUBSCRIBE awaiting its UNSUBACK.
type unsubscribeOp struct {
	filters  []string
	done     chan struct{}
	err      error
	finished bool
}

func newUnsubscribeOp(filters []string) *unsubscribeOp {
	return &unsubscribeOp{filters: filters, done: make(chan struct{})}
}

func (op *unsubscribeOp) finish(err error) {
	if op.finished {
		return
	}
	op.finished = true
	op.err = err
	close(op.done)
}

func (op *unsubscribeOp) wait(ctx context.Context) error {
	select {
	case <-op.done:
		return op.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// subscriptionTable is owned by the event loop. Entries keep registration
// order, which is also dispatch order.
type subscriptionTable struct {
	entries []*Subscription
	nextID  uint32
}

func newSubscriptionTable() *subscriptionTable {
	return &subscriptionTable{nextID: firstSubscriptionID}
}

func (t *subscriptionTable) allocateID() uint32 {
	id := t.nextID
	t.nextID++
	if t.nextID > maxSubscriptionID {
		t.nextID = firstSubscriptionID
	}
	return id
}

func (t *subscriptionTable) add(s *Subscription) {
	t.entries = append(t.entries, s)
}

// match returns the subscriptions whose filter matches topic, in
// registration order.
func (t *subscriptionTable) match(topic string) []*Subscription {
	var out []*Subscription
	for _, s := range t.entries {
		if TopicMatch(s.Filter, topic) {
			out = append(out, s)
		}
	}
	return out
}

func (t *subscriptionTable) hasFilter(filter string) bool {
	return slices.ContainsFunc(t.entries, func(s *Subscription) bool { return s.Filter == filter })
}

func (t *subscriptionTable) byID(id uint32) (*Subscription, bool) {
	i := slices.IndexFunc(t.entries, func(s *Subscription) bool { return s.ID == id })
	if i < 0 {
		return nil, false
	}
	return t.entries[i], true
}

// removeFilter drops every entry registered for filter and returns them.
func (t *subscriptionTable) removeFilter(filter string) []*Subscription {
	var removed []*Subscription
	t.entries = slices.DeleteFunc(t.entries, func(s *Subscription) bool {
		if s.Filter == filter {
			removed = append(removed, s)
			return true
		}
		return false
	})
	return removed
}

func (t *subscriptionTable) removeID(id uint32) (*Subscription, bool) {
	s, ok := t.byID(id)
	if !ok {
		return nil, false
	}
	t.entries = slices.DeleteFunc(t.entries, func(e *Subscription) bool { return e.ID == id })
	return s, true
}

// all returns a snapshot of the table.
func (t *subscriptionTable) all() []*Subscription {
	return slices.Clone(t.entries)
}

func (t *subscriptionTable) len() int {
	return len(t.entries)
}
