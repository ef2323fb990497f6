// Package router dispatches inbound messages to handlers by topic filter
// and message metadata. A Router is an mqttier.Handler, so it can be
// passed to Subscribe or installed with WithDefaultHandler.
package router

import (
	"context"
	"regexp"
	"slices"
	"sync"

	"github.com/vitalvas/mqttier"
)

// HandlerFunc processes one message.
type HandlerFunc func(msg *mqttier.Message)

type userPropertyMatcher struct {
	key   *regexp.Regexp
	value *regexp.Regexp
}

// Condition restricts the messages a route receives. The zero Condition
// matches everything.
type Condition struct {
	topicFilter    *string
	qos            *byte
	subscriptionID *uint32
	contentType    *regexp.Regexp
	responseTopic  *regexp.Regexp
	userProperties []userPropertyMatcher
}

// ConditionOption configures a Condition.
type ConditionOption func(*Condition)

// WithTopic matches topics against an MQTT filter (+ and # wildcards).
func WithTopic(filter string) ConditionOption {
	return func(c *Condition) {
		c.topicFilter = &filter
	}
}

// WithQoS matches the delivery QoS.
func WithQoS(qos byte) ConditionOption {
	return func(c *Condition) {
		c.qos = &qos
	}
}

// WithSubscriptionID matches messages the broker delivered for the
// subscription with this identifier.
func WithSubscriptionID(id uint32) ConditionOption {
	return func(c *Condition) {
		c.subscriptionID = &id
	}
}

// WithContentType matches the content type property.
func WithContentType(pattern *regexp.Regexp) ConditionOption {
	return func(c *Condition) {
		c.contentType = pattern
	}
}

// WithResponseTopic matches the response topic of requests.
func WithResponseTopic(pattern *regexp.Regexp) ConditionOption {
	return func(c *Condition) {
		c.responseTopic = pattern
	}
}

// WithUserProperty requires a user property whose key and value both
// match. Repeat it to require several properties.
func WithUserProperty(key, value *regexp.Regexp) ConditionOption {
	return func(c *Condition) {
		c.userProperties = append(c.userProperties, userPropertyMatcher{key: key, value: value})
	}
}

func (c *Condition) matches(msg *mqttier.Message) bool {
	if c.topicFilter != nil && !mqttier.TopicMatch(*c.topicFilter, msg.Topic) {
		return false
	}
	if c.qos != nil && *c.qos != msg.QoS {
		return false
	}
	if c.subscriptionID != nil && !slices.Contains(msg.SubscriptionIdentifiers, *c.subscriptionID) {
		return false
	}
	if c.contentType != nil && !c.contentType.MatchString(msg.ContentType) {
		return false
	}
	if c.responseTopic != nil && !c.responseTopic.MatchString(msg.ResponseTopic) {
		return false
	}
	for _, m := range c.userProperties {
		if !slices.ContainsFunc(msg.UserProperties, func(p mqttier.StringPair) bool {
			return m.key.MatchString(p.Key) && m.value.MatchString(p.Value)
		}) {
			return false
		}
	}
	return true
}

type route struct {
	handler   HandlerFunc
	condition Condition
}

// Router holds routes in registration order.
type Router struct {
	mu       sync.RWMutex
	routes   []route
	fallback HandlerFunc
}

// New creates an empty Router.
func New() *Router {
	return &Router{}
}

// On registers handler for messages matching every option.
//
//	r.On(handler, router.WithTopic("sensors/#"))
//	r.On(handler, router.WithTopic("sensors/#"), router.WithQoS(1))
//	r.On(handler, router.WithContentType(regexp.MustCompile(`^application/json`)))
func (r *Router) On(handler HandlerFunc, opts ...ConditionOption) {
	var cond Condition
	for _, opt := range opts {
		opt(&cond)
	}

	r.mu.Lock()
	r.routes = append(r.routes, route{handler: handler, condition: cond})
	r.mu.Unlock()
}

// NotFound sets the handler for messages no route matched.
func (r *Router) NotFound(handler HandlerFunc) {
	r.mu.Lock()
	r.fallback = handler
	r.mu.Unlock()
}

// Handle dispatches msg to every matching route, in registration order.
func (r *Router) Handle(msg *mqttier.Message) {
	if msg == nil {
		return
	}

	r.mu.RLock()
	var matched []HandlerFunc
	for _, rt := range r.routes {
		if rt.condition.matches(msg) {
			matched = append(matched, rt.handler)
		}
	}
	fallback := r.fallback
	r.mu.RUnlock()

	if len(matched) == 0 && fallback != nil {
		fallback(msg)
		return
	}
	for _, h := range matched {
		h(msg)
	}
}

// Filters returns the distinct topic filters of the routes, sorted.
func (r *Router) Filters() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var filters []string
	for _, rt := range r.routes {
		if f := rt.condition.topicFilter; f != nil && !slices.Contains(filters, *f) {
			filters = append(filters, *f)
		}
	}
	slices.Sort(filters)
	return filters
}

// Len returns the number of routes.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}

// Subscriber is the part of *mqttier.Client used by Subscribe.
type Subscriber interface {
	SubscribeMultiple(ctx context.Context, reqs []mqttier.SubscribeRequest) ([]*mqttier.Subscription, error)
}

// Subscribe subscribes client to every route filter at qos. Each
// subscription only runs the routes registered with its filter, so a
// message matching overlapping filters reaches each route once.
func (r *Router) Subscribe(ctx context.Context, client Subscriber, qos byte) ([]*mqttier.Subscription, error) {
	filters := r.Filters()
	if len(filters) == 0 {
		return nil, nil
	}
	reqs := make([]mqttier.SubscribeRequest, len(filters))
	for i, f := range filters {
		reqs[i] = mqttier.SubscribeRequest{Filter: f, QoS: qos, Handler: r.forFilter(f)}
	}
	return client.SubscribeMultiple(ctx, reqs)
}

func (r *Router) forFilter(filter string) mqttier.HandlerFunc {
	return func(msg *mqttier.Message) {
		r.mu.RLock()
		var matched []HandlerFunc
		for _, rt := range r.routes {
			if f := rt.condition.topicFilter; f != nil && *f == filter && rt.condition.matches(msg) {
				matched = append(matched, rt.handler)
			}
		}
		r.mu.RUnlock()

		for _, h := range matched {
			h(msg)
		}
	}
}
