package mqttier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	msg := &Message{Topic: "a/b", Payload: []byte("x"), QoS: 2}
	require.NoError(t, s.Save(ctx, "c1", InflightRecord{PacketID: 7, Message: msg}))
	require.NoError(t, s.Save(ctx, "c1", InflightRecord{PacketID: 3, Message: &Message{Topic: "a/c", QoS: 1}}))
	require.NoError(t, s.Save(ctx, "c2", InflightRecord{PacketID: 1, Message: &Message{Topic: "other", QoS: 1}}))

	msg.Payload[0] = 'y'

	recs, err := s.Load(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, uint16(3), recs[0].PacketID)
	assert.Equal(t, uint16(7), recs[1].PacketID)
	assert.Equal(t, []byte("x"), recs[1].Message.Payload, "the store keeps its own copy")

	require.NoError(t, s.Save(ctx, "c1", InflightRecord{PacketID: 7, Message: msg, Released: true}))
	recs, err = s.Load(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, recs[1].Released)
	assert.Equal(t, 2, s.Len("c1"))

	require.NoError(t, s.Delete(ctx, "c1", 3))
	assert.Equal(t, 1, s.Len("c1"))
	require.NoError(t, s.Delete(ctx, "missing", 3))

	require.NoError(t, s.Clear(ctx, "c1"))
	recs, err = s.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Equal(t, 1, s.Len("c2"))
}
