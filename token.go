package mqttier

import (
	"context"
	"sync"
)

// Token tracks an asynchronous operation: a QoS>0 publish or a request
// awaiting its response.
//
// Block with Wait, or select on Done and read Error afterwards:
//
//	tok := client.PublishAsync(&mqttier.Message{Topic: "t", QoS: 1})
//	select {
//	case <-tok.Done():
//		err := tok.Error()
//	case <-time.After(5 * time.Second):
//		tok.Cancel()
//	}
type Token struct {
	done chan struct{}
	once sync.Once

	mu  sync.Mutex
	err error
	msg *Message

	cancelFn func()
}

func newToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Wait blocks until the operation completes or ctx is done. The context
// only bounds the wait; the operation itself keeps running.
func (t *Token) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the operation has completed.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Error returns the outcome; nil while pending or on success.
func (t *Token) Error() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Message returns the response of a request token.
func (t *Token) Message() *Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.msg
}

// Cancel abandons the operation: retries stop and the tracking entry is
// discarded. Bytes already written stay sent. The token completes with
// ErrCanceled unless it already finished.
func (t *Token) Cancel() {
	t.mu.Lock()
	fn := t.cancelFn
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
	t.complete(nil, ErrCanceled)
}

func (t *Token) setCancel(fn func()) {
	t.mu.Lock()
	t.cancelFn = fn
	t.mu.Unlock()
}

// complete resolves the token once; later calls are ignored.
func (t *Token) complete(msg *Message, err error) {
	t.once.Do(func() {
		t.mu.Lock()
		t.msg = msg
		t.err = err
		t.cancelFn = nil
		t.mu.Unlock()
		close(t.done)
	})
}

func (t *Token) completed() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
