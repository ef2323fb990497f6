package mqttier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketIDs(t *testing.T) {
	t.Run("allocate sequential", func(t *testing.T) {
		p := newPacketIDs()
		for want := uint16(1); want <= 3; want++ {
			id, err := p.allocate()
			require.NoError(t, err)
			assert.Equal(t, want, id)
		}
		assert.Equal(t, 3, p.inUse())
	})

	t.Run("release does not rewind", func(t *testing.T) {
		p := newPacketIDs()
		id1, _ := p.allocate()
		_, _ = p.allocate()
		p.release(id1)

		id3, err := p.allocate()
		require.NoError(t, err)
		assert.Equal(t, uint16(3), id3)
		assert.Equal(t, 2, p.inUse())
	})

	t.Run("skips reserved", func(t *testing.T) {
		p := newPacketIDs()
		p.reserve(1)
		p.reserve(2)

		id, err := p.allocate()
		require.NoError(t, err)
		assert.Equal(t, uint16(3), id)
	})

	t.Run("wraps past 65535 without zero", func(t *testing.T) {
		p := newPacketIDs()
		p.next = maxUint16
		id, err := p.allocate()
		require.NoError(t, err)
		assert.Equal(t, uint16(maxUint16), id)

		id, err = p.allocate()
		require.NoError(t, err)
		assert.Equal(t, uint16(1), id)
	})

	t.Run("exhausted", func(t *testing.T) {
		p := newPacketIDs()
		for range maxUint16 {
			_, err := p.allocate()
			require.NoError(t, err)
		}
		_, err := p.allocate()
		assert.ErrorIs(t, err, ErrPacketIDExhausted)

		p.release(500)
		id, err := p.allocate()
		require.NoError(t, err)
		assert.Equal(t, uint16(500), id)
	})
}

func TestOutboundPacket(t *testing.T) {
	msg := &Message{Topic: "a/b", Payload: []byte("x"), QoS: 2}
	o := &outbound{packetID: 9, msg: msg, state: awaitingPubrec}

	first := o.packet().(*PublishPacket)
	assert.Equal(t, uint16(9), first.PacketID)
	assert.False(t, first.DUP)

	o.attempts = 1
	assert.True(t, o.packet().(*PublishPacket).DUP)

	o.state = awaitingPubcomp
	rel, ok := o.packet().(*PubrelPacket)
	require.True(t, ok)
	assert.Equal(t, uint16(9), rel.PacketID)

	rec := o.record()
	assert.Equal(t, InflightRecord{PacketID: 9, Message: msg, Released: true}, rec)
}

func TestInflight(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f := newInflight()

	// Insertion order, not packet id order, decides replay order.
	for i, id := range []uint16{30, 10, 20} {
		f.add(&outbound{packetID: id, sentAt: base.Add(time.Duration(i) * time.Second)})
	}
	f.add(&outbound{packetID: 40})
	assert.Equal(t, 4, f.len())

	var order []uint16
	for _, o := range f.ordered() {
		order = append(order, o.packetID)
	}
	assert.Equal(t, []uint16{30, 10, 20, 40}, order)

	tests := []struct {
		name string
		now  time.Time
		want []uint16
	}{
		{"none due", base.Add(4 * time.Second), nil},
		{"oldest due", base.Add(5 * time.Second), []uint16{30}},
		{"all sent due", base.Add(time.Minute), []uint16{30, 10, 20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []uint16
			for _, o := range f.due(tt.now, 5*time.Second) {
				got = append(got, o.packetID)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	o, ok := f.remove(10)
	require.True(t, ok)
	assert.Equal(t, uint16(10), o.packetID)
	_, ok = f.get(10)
	assert.False(t, ok)
	_, ok = f.remove(10)
	assert.False(t, ok)
	assert.Equal(t, 3, f.len())
}
