package mqttier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishPacketRoundTrip(t *testing.T) {
	var props Properties
	props.Add(PropContentType, "application/json")
	props.Add(PropSubscriptionIdentifier, uint32(12))

	tests := []struct {
		name   string
		packet *PublishPacket
	}{
		{"qos0", &PublishPacket{Topic: "a/b", Payload: []byte("hi")}},
		{"qos1 retained", &PublishPacket{Topic: "a/b", Payload: []byte("hi"), QoS: 1, Retain: true, PacketID: 5}},
		{"qos2 duplicate", &PublishPacket{Topic: "x", QoS: 2, DUP: true, PacketID: 65535, Props: props}},
		{"empty payload", &PublishPacket{Topic: "status", QoS: 1, PacketID: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodePacket(tt.packet)
			require.NoError(t, err)

			got, n, err := DecodePacket(data)
			require.NoError(t, err)
			assert.Equal(t, len(data), n)
			assert.Equal(t, tt.packet, got)
		})
	}
}

func TestPublishPacketFlags(t *testing.T) {
	data, err := EncodePacket(&PublishPacket{Topic: "t", QoS: 2, Retain: true, DUP: true, PacketID: 1})
	require.NoError(t, err)
	assert.Equal(t, byte(0x3D), data[0])
}

func TestPublishPacketErrors(t *testing.T) {
	_, err := EncodePacket(&PublishPacket{Topic: "t", QoS: 1})
	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.ErrorIs(t, err, ErrInvalidPacketID)

	_, err = EncodePacket(&PublishPacket{Topic: "t", QoS: 3, PacketID: 1})
	assert.ErrorIs(t, err, ErrInvalidQoS)

	// QoS 1, topic "t", packet id 0.
	_, _, err = DecodePacket([]byte{0x32, 0x06, 0x00, 0x01, 't', 0x00, 0x00, 0x00})
	var malErr *MalformedPacketError
	require.ErrorAs(t, err, &malErr)
	assert.ErrorIs(t, err, ErrInvalidPacketID)
	assert.ErrorIs(t, err, ErrMalformedPacket)

	// Both QoS bits set.
	_, _, err = DecodePacket([]byte{0x36, 0x03, 0x00, 0x01, 't'})
	assert.Error(t, err)
}

func TestPublishPacketMessage(t *testing.T) {
	msg := &Message{
		Topic:           "req/x",
		Payload:         []byte("{}"),
		QoS:             1,
		PayloadFormat:   1,
		MessageExpiry:   30,
		ContentType:     "application/json",
		ResponseTopic:   "client/me/responses",
		CorrelationData: []byte("c-1"),
		UserProperties:  []StringPair{{Key: "k", Value: "v"}},
	}

	data, err := EncodePacket(msg.toPublish(3))
	require.NoError(t, err)
	pkt, _, err := DecodePacket(data)
	require.NoError(t, err)

	pub := pkt.(*PublishPacket)
	pub.DUP = true
	pub.Props.Add(PropSubscriptionIdentifier, uint32(4))
	got := pub.Message()

	want := msg.Clone()
	want.Duplicate = true
	want.SubscriptionIdentifiers = []uint32{4}
	assert.Equal(t, want, got)
}
