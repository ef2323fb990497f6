// Package rpc serves and issues request/response exchanges over an
// mqttier client. Requests carry a response topic and correlation data;
// the responder publishes its reply to that topic with the same
// correlation data. Failures travel as error responses whose ReturnCode
// and DebugInfo user properties describe the problem.
// MQTT v5.0 spec: Section 4.10 (Request / Response)
package rpc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/vitalvas/mqttier"
)

// Return codes carried in the ReturnCode user property.
const (
	CodeOK            = 0
	CodeBadRequest    = 400
	CodeInternalError = 500
)

var (
	// ErrNoHandler is returned by Serve when no handler is given.
	ErrNoHandler = errors.New("rpc: handler is required")

	// ErrClientRequired is returned when no client is given.
	ErrClientRequired = errors.New("rpc: client is required")
)

// Error is a failed call. Handlers return it to choose the return code;
// Call returns it when the responder sent an error response.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rpc: remote error %d", e.Code)
	}
	return fmt.Sprintf("rpc: remote error %d: %s", e.Code, e.Message)
}

// Headers are transmitted as MQTT v5.0 User Properties.
type Headers map[string]string

// Request is one inbound request, or the body of an outbound Call.
type Request struct {
	Topic       string
	Payload     []byte
	Headers     Headers
	ContentType string

	// Set on inbound requests.
	ResponseTopic   string
	CorrelationData []byte
}

// Response is the reply to a request.
type Response struct {
	Payload         []byte
	Headers         Headers
	ContentType     string
	CorrelationData []byte
}

// Client is the part of *mqttier.Client used here.
type Client interface {
	ClientID() string
	Subscribe(ctx context.Context, filter string, qos byte, handler mqttier.Handler) (*mqttier.Subscription, error)
	PublishAsync(msg *mqttier.Message) *mqttier.Token
	Request(ctx context.Context, msg *mqttier.Message, responseTopic string, correlationData []byte) (*mqttier.Token, error)
}

// HandlerFunc answers one request. A nil response with a nil error sends
// an empty reply.
type HandlerFunc func(ctx context.Context, req *Request) (*Response, error)

// ServerOptions configures Serve.
type ServerOptions struct {
	// QoS of the request subscription and of replies. Defaults to 1.
	QoS *byte

	// Concurrency bounds handlers running at once. Defaults to 16.
	Concurrency int

	Logger mqttier.Logger
}

const defaultConcurrency = 16

// Server answers requests arriving on a topic filter.
type Server struct {
	client  Client
	handler HandlerFunc
	qos     byte
	sub     *mqttier.Subscription
	sem     *semaphore.Weighted
	logger  mqttier.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Serve subscribes to filter and answers every request with handler.
// Handlers run on their own goroutines, so they may block and may use
// the client.
func Serve(ctx context.Context, client Client, filter string, handler HandlerFunc, opts *ServerOptions) (*Server, error) {
	if client == nil {
		return nil, ErrClientRequired
	}
	if handler == nil {
		return nil, ErrNoHandler
	}
	if opts == nil {
		opts = &ServerOptions{}
	}

	s := &Server{
		client:  client,
		handler: handler,
		qos:     1,
		logger:  opts.Logger,
	}
	if opts.QoS != nil {
		s.qos = *opts.QoS
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	s.sem = semaphore.NewWeighted(int64(concurrency))
	if s.logger == nil {
		s.logger = mqttier.NewNoOpLogger()
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	sub, err := client.Subscribe(ctx, filter, s.qos, mqttier.HandlerFunc(s.dispatch))
	if err != nil {
		s.cancel()
		return nil, fmt.Errorf("rpc: failed to subscribe to %s: %w", filter, err)
	}
	s.sub = sub
	return s, nil
}

// Close unsubscribes and waits for running handlers, whose context is
// canceled.
func (s *Server) Close(ctx context.Context) error {
	err := s.sub.Unsubscribe(ctx)
	s.cancel()
	s.wg.Wait()
	return err
}

// dispatch runs on the client's event loop and must not block.
func (s *Server) dispatch(msg *mqttier.Message) {
	if msg.ResponseTopic == "" {
		s.logger.Debug("request without response topic dropped", mqttier.LogFields{mqttier.LogFieldTopic: msg.Topic})
		return
	}
	req := &Request{
		Topic:           msg.Topic,
		Payload:         msg.Payload,
		Headers:         headersOf(msg.UserProperties),
		ContentType:     msg.ContentType,
		ResponseTopic:   msg.ResponseTopic,
		CorrelationData: msg.CorrelationData,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.sem.Acquire(s.ctx, 1); err != nil {
			return
		}
		defer s.sem.Release(1)
		s.serve(req)
	}()
}

func (s *Server) serve(req *Request) {
	resp, err := s.call(req)
	var reply *mqttier.Message
	if err != nil {
		code, info := CodeInternalError, err.Error()
		var rpcErr *Error
		if errors.As(err, &rpcErr) {
			code, info = rpcErr.Code, rpcErr.Message
		}
		s.logger.Warn("request failed", mqttier.LogFields{
			mqttier.LogFieldTopic: req.Topic,
			mqttier.LogFieldError: info,
		})
		reply = mqttier.NewErrorResponse(req.ResponseTopic, code, req.CorrelationData, info)
		reply.QoS = s.qos
	} else {
		if resp == nil {
			resp = &Response{}
		}
		reply = &mqttier.Message{
			Topic:           req.ResponseTopic,
			Payload:         resp.Payload,
			QoS:             s.qos,
			ContentType:     resp.ContentType,
			CorrelationData: req.CorrelationData,
			UserProperties:  resp.Headers.userProperties(),
		}
	}
	s.client.PublishAsync(reply)
}

// call runs the handler, turning a panic into an internal error.
func (s *Server) call(req *Request) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Code: CodeInternalError, Message: fmt.Sprint(r)}
		}
	}()
	return s.handler(s.ctx, req)
}

// Call publishes req to topic and waits for the reply on the client's
// default response topic. An error response is returned as *Error.
func Call(ctx context.Context, client Client, topic string, req *Request) (*Response, error) {
	if client == nil {
		return nil, ErrClientRequired
	}
	if req == nil {
		req = &Request{}
	}
	msg := &mqttier.Message{
		Topic:          topic,
		Payload:        req.Payload,
		QoS:            1,
		ContentType:    req.ContentType,
		UserProperties: req.Headers.userProperties(),
	}

	tok, err := client.Request(ctx, msg, req.ResponseTopic, req.CorrelationData)
	if err != nil {
		return nil, err
	}
	if err := tok.Wait(ctx); err != nil {
		tok.Cancel()
		return nil, err
	}

	reply := tok.Message()
	resp := &Response{
		Payload:         reply.Payload,
		Headers:         headersOf(reply.UserProperties),
		ContentType:     reply.ContentType,
		CorrelationData: reply.CorrelationData,
	}
	if v, ok := resp.Headers[mqttier.UserPropReturnCode]; ok {
		code, err := strconv.Atoi(v)
		if err != nil {
			return nil, &Error{Code: CodeInternalError, Message: "invalid return code " + strconv.Quote(v)}
		}
		if code != CodeOK {
			return resp, &Error{Code: code, Message: resp.Headers[mqttier.UserPropDebugInfo]}
		}
	}
	return resp, nil
}

func headersOf(props []mqttier.StringPair) Headers {
	if len(props) == 0 {
		return nil
	}
	h := make(Headers, len(props))
	for _, p := range props {
		h[p.Key] = p.Value
	}
	return h
}

func (h Headers) userProperties() []mqttier.StringPair {
	if len(h) == 0 {
		return nil
	}
	out := make([]mqttier.StringPair, 0, len(h))
	for k, v := range h {
		out = append(out, mqttier.StringPair{Key: k, Value: v})
	}
	return out
}
