package mqttier

import "time"

// keepAlive tracks outbound idleness. When nothing was sent for one interval
// a PINGREQ is due; when a PINGREQ stays unanswered for another interval the
// connection is considered dead.
type keepAlive struct {
	interval   time.Duration
	lastSent   time.Time
	pingSentAt time.Time
}

type keepAliveAction int

const (
	keepAliveIdle keepAliveAction = iota
	keepAlivePing
	keepAliveExpired
)

func (k *keepAlive) start(interval time.Duration, now time.Time) {
	k.interval = interval
	k.lastSent = now
	k.pingSentAt = time.Time{}
}

func (k *keepAlive) stop() {
	k.interval = 0
	k.pingSentAt = time.Time{}
}

func (k *keepAlive) sent(now time.Time) {
	k.lastSent = now
}

func (k *keepAlive) pingSent(now time.Time) {
	k.pingSentAt = now
	k.lastSent = now
}

func (k *keepAlive) pongReceived() {
	k.pingSentAt = time.Time{}
}

func (k *keepAlive) awaitingPong() bool {
	return !k.pingSentAt.IsZero()
}

// check reports what the keep-alive needs at now.
func (k *keepAlive) check(now time.Time) keepAliveAction {
	if k.interval <= 0 {
		return keepAliveIdle
	}
	if k.awaitingPong() {
		if now.Sub(k.pingSentAt) >= k.interval {
			return keepAliveExpired
		}
		return keepAliveIdle
	}
	if now.Sub(k.lastSent) >= k.interval {
		return keepAlivePing
	}
	return keepAliveIdle
}
