package mqttier

import "fmt"

// ProducerInterceptor sees every outbound message before it is queued.
// It may return a modified message, or nil to drop it; a dropped publish
// completes successfully without being sent.
type ProducerInterceptor interface {
	OnSend(msg *Message) *Message
}

// ConsumerInterceptor sees every inbound message before handlers run.
// Returning nil drops the message; QoS acknowledgements are still sent.
type ConsumerInterceptor interface {
	OnConsume(msg *Message) *Message
}

// ProducerInterceptorFunc adapts a function to ProducerInterceptor.
type ProducerInterceptorFunc func(msg *Message) *Message

func (f ProducerInterceptorFunc) OnSend(msg *Message) *Message { return f(msg) }

// ConsumerInterceptorFunc adapts a function to ConsumerInterceptor.
type ConsumerInterceptorFunc func(msg *Message) *Message

func (f ConsumerInterceptorFunc) OnConsume(msg *Message) *Message { return f(msg) }

// intercept runs fn over msg through each interceptor in order. A panicking
// interceptor is logged and skipped.
func intercept[I any](logger Logger, chain []I, msg *Message, fn func(I, *Message) *Message) *Message {
	for _, in := range chain {
		if msg == nil {
			return nil
		}
		msg = safeIntercept(logger, in, msg, fn)
	}
	return msg
}

func safeIntercept[I any](logger Logger, in I, msg *Message, fn func(I, *Message) *Message) (out *Message) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("interceptor panic", LogFields{LogFieldTopic: msg.Topic, LogFieldError: fmt.Sprint(r)})
			out = msg
		}
	}()
	return fn(in, msg)
}

func (c *Client) interceptOutbound(msg *Message) *Message {
	return intercept(c.options.logger, c.options.producerInterceptors, msg, ProducerInterceptor.OnSend)
}

func (c *Client) interceptInbound(msg *Message) *Message {
	return intercept(c.logger, c.options.consumerInterceptors, msg, ConsumerInterceptor.OnConsume)
}
