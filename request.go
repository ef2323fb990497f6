package mqttier

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const responseTopicFormat = "client/%s/responses"

// DefaultResponseTopic is where Request expects replies when the caller
// names no response topic.
func DefaultResponseTopic(clientID string) string {
	return fmt.Sprintf(responseTopicFormat, clientID)
}

type pendingRequest struct {
	token         *Token
	responseTopic string
	correlation   []byte
	started       time.Time
	deadline      time.Time
}

// correlator matches responses to outstanding requests by correlation
// data. It is owned by the event loop.
type correlator struct {
	pending map[string]*pendingRequest
	topics  map[string]*Subscription
	now     func() time.Time
	latency Histogram
}

func newCorrelator(now func() time.Time, latency Histogram) *correlator {
	return &correlator{
		pending: make(map[string]*pendingRequest),
		topics:  make(map[string]*Subscription),
		now:     now,
		latency: latency,
	}
}

// resolve completes the request a response belongs to. Responses with
// unknown correlation data are ignored.
func (r *correlator) resolve(msg *Message) {
	key := string(msg.CorrelationData)
	p, ok := r.pending[key]
	if !ok || p.responseTopic != msg.Topic {
		return
	}
	delete(r.pending, key)
	r.latency.ObserveDuration(r.now().Sub(p.started))
	p.token.complete(msg, nil)
}

func (r *correlator) remove(key string, tok *Token) bool {
	p, ok := r.pending[key]
	if !ok || p.token != tok {
		return false
	}
	delete(r.pending, key)
	return true
}

func (r *correlator) expire(now time.Time) {
	for key, p := range r.pending {
		if !p.deadline.IsZero() && !now.Before(p.deadline) {
			delete(r.pending, key)
			p.token.complete(nil, NewRequestTimeoutError(p.responseTopic, p.correlation))
		}
	}
}

// forget drops a response subscription so the next request resubscribes.
func (r *correlator) forget(s *Subscription) {
	if cur, ok := r.topics[s.Filter]; ok && cur == s {
		delete(r.topics, s.Filter)
	}
}

func (r *correlator) failAll(err error) {
	for key, p := range r.pending {
		delete(r.pending, key)
		p.token.complete(nil, err)
	}
}

// Request publishes msg with response-topic and correlation-data set and
// returns a token that completes with the reply. An empty responseTopic
// defaults to DefaultResponseTopic; nil correlationData gets a random UUID.
// The request expires after WithRequestTimeout or at ctx's deadline,
// whichever is earlier.
func (c *Client) Request(ctx context.Context, msg *Message, responseTopic string, correlationData []byte) (*Token, error) {
	if err := validateMessage(msg); err != nil {
		return nil, err
	}
	if responseTopic == "" {
		responseTopic = DefaultResponseTopic(c.ClientID())
	}
	if err := ValidateTopicName(responseTopic); err != nil {
		return nil, err
	}
	if correlationData == nil {
		correlationData = []byte(uuid.NewString())
	}

	req := msg.Clone()
	req.ResponseTopic = responseTopic
	req.CorrelationData = cloneBytes(correlationData)

	timeout := c.options.requestTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); timeout <= 0 || remaining < timeout {
			timeout = remaining
		}
	}

	tok := newToken()
	if err := c.call(func() error { return c.submitRequest(req, tok, timeout) }); err != nil {
		return nil, err
	}
	return tok, nil
}

func (c *Client) submitRequest(req *Message, tok *Token, timeout time.Duration) error {
	if c.terminal != nil {
		return c.terminal
	}
	key := string(req.CorrelationData)
	if _, dup := c.correlator.pending[key]; dup {
		return NewDuplicateCorrelationError(req.CorrelationData)
	}

	if _, ok := c.correlator.topics[req.ResponseTopic]; !ok {
		s := &Subscription{
			ID:      c.subs.allocateID(),
			Filter:  req.ResponseTopic,
			QoS:     1,
			handler: HandlerFunc(c.correlator.resolve),
			client:  c,
		}
		c.subs.add(s)
		c.correlator.topics[req.ResponseTopic] = s
		if c.State() == StateConnected {
			c.sendSubscribe(s)
		}
	}

	now := c.options.now()
	p := &pendingRequest{token: tok, responseTopic: req.ResponseTopic, correlation: req.CorrelationData, started: now}
	if timeout > 0 {
		p.deadline = now.Add(timeout)
	}
	c.correlator.pending[key] = p

	pub := newToken()
	tok.setCancel(func() {
		pub.Cancel()
		_ = c.enqueue(func() { c.correlator.remove(key, tok) })
	})
	c.submitPublish(req, pub)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		<-pub.Done()
		if err := pub.Error(); err != nil && !tok.completed() {
			_ = c.enqueue(func() {
				if c.correlator.remove(key, tok) {
					tok.complete(nil, err)
				}
			})
		}
	}()
	return nil
}
