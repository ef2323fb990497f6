package mqttier

import "sync/atomic"

// Handler consumes inbound messages. Handlers run on the client's event
// loop: a handler that blocks stalls all protocol processing, including
// acknowledgements and keep-alive.
type Handler interface {
	Handle(msg *Message)
}

// HandlerFunc is a Handler invoked synchronously for each message.
type HandlerFunc func(msg *Message)

func (f HandlerFunc) Handle(msg *Message) { f(msg) }

// ChanHandler delivers messages into a buffered channel for consumption on
// another goroutine.
type ChanHandler struct {
	ch      chan *Message
	block   bool
	dropped atomic.Uint64
}

// NewChanHandler returns a handler that never blocks the event loop;
// messages arriving while the buffer is full are dropped and counted.
func NewChanHandler(size int) *ChanHandler {
	return &ChanHandler{ch: make(chan *Message, size)}
}

// NewBlockingChanHandler returns a handler that waits for buffer space,
// applying backpressure to the connection instead of dropping.
func NewBlockingChanHandler(size int) *ChanHandler {
	return &ChanHandler{ch: make(chan *Message, size), block: true}
}

func (h *ChanHandler) Handle(msg *Message) {
	if h.block {
		h.ch <- msg
		return
	}
	select {
	case h.ch <- msg:
	default:
		h.dropped.Add(1)
	}
}

// Messages returns the receive side of the queue.
func (h *ChanHandler) Messages() <-chan *Message { return h.ch }

// Dropped returns how many messages were discarded on a full buffer.
func (h *ChanHandler) Dropped() uint64 { return h.dropped.Load() }
