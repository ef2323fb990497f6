package mqttier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeepAliveTracker(t *testing.T) {
	start := time.Unix(1000, 0)
	var k keepAlive
	k.start(10*time.Second, start)

	tests := []struct {
		name string
		step func()
		at   time.Duration
		want keepAliveAction
	}{
		{"idle before interval", nil, 9 * time.Second, keepAliveIdle},
		{"ping due", nil, 10 * time.Second, keepAlivePing},
		{"traffic postpones ping", func() { k.sent(start.Add(10 * time.Second)) }, 15 * time.Second, keepAliveIdle},
		{"waiting for pong", func() { k.pingSent(start.Add(20 * time.Second)) }, 25 * time.Second, keepAliveIdle},
		{"pong missing", nil, 30 * time.Second, keepAliveExpired},
		{"pong clears", func() { k.pongReceived() }, 30 * time.Second, keepAlivePing},
		{"stopped", func() { k.stop() }, time.Hour, keepAliveIdle},
	}

	for _, tt := range tests {
		if tt.step != nil {
			tt.step()
		}
		assert.Equal(t, tt.want, k.check(start.Add(tt.at)), tt.name)
	}
}

func TestKeepAliveDisabled(t *testing.T) {
	var k keepAlive
	k.start(0, time.Unix(0, 0))
	assert.Equal(t, keepAliveIdle, k.check(time.Unix(1e6, 0)))
	assert.False(t, k.awaitingPong())
}
