package mqttier

import (
	"time"
)

// reconnectState counts consecutive failed attempts since the last CONNACK.
type reconnectState struct {
	attempt  int
	delay    time.Duration
	canceled bool
	cause    error
}

// scheduleReconnect arms the next attempt, or ends the client once the
// policy is exhausted or was canceled.
func (c *Client) scheduleReconnect(cause error) {
	r := &c.reconnect
	r.cause = cause
	limit := c.options.maxReconnects
	if r.canceled || (limit > 0 && r.attempt >= limit) {
		c.giveUp()
		return
	}

	r.attempt++
	c.metrics.reconnects.Inc()
	r.delay = c.backoff(r.attempt, r.delay, cause)
	attempt, delay, gen := r.attempt, r.delay, c.gen

	c.logger.Info("reconnecting", LogFields{
		LogFieldAttempt:  attempt,
		LogFieldDuration: delay.String(),
		LogFieldError:    cause.Error(),
	})
	c.emit(NewReconnectEvent(attempt, limit, delay, func() {
		_ = c.enqueue(c.cancelReconnect)
	}))
	if c.terminal != nil || r.canceled {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			_ = c.enqueue(func() {
				if c.gen == gen && c.attempt == nil && c.terminal == nil && !c.reconnect.canceled {
					c.startConnect(nil)
				}
			})
		case <-c.stop:
		}
	}()
}

func (c *Client) cancelReconnect() {
	if c.terminal != nil {
		return
	}
	c.reconnect.canceled = true
	if c.attempt == nil && c.State() == StateDisconnected {
		c.giveUp()
	}
}

func (c *Client) giveUp() {
	r := c.reconnect
	lost := NewConnectionLostError(r.attempt, r.cause)
	c.logger.Error("giving up reconnecting", LogFields{LogFieldAttempt: r.attempt})
	c.emit(lost)
	c.terminate(lost)
}

// backoff returns the delay before attempt: the base delay first, then
// doubling, capped at the maximum.
func (c *Client) backoff(attempt int, prev time.Duration, cause error) time.Duration {
	var d time.Duration
	switch {
	case c.options.backoffStrategy != nil:
		d = c.options.backoffStrategy(attempt, prev, cause)
	case attempt <= 1 || prev <= 0:
		d = c.options.reconnectBackoff
	default:
		d = prev * 2
	}
	if limit := c.options.maxBackoff; limit > 0 && d > limit {
		d = limit
	}
	return max(d, 0)
}
