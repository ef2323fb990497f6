package mqttier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribePacketRoundTrip(t *testing.T) {
	var props Properties
	props.Add(PropSubscriptionIdentifier, uint32(10))

	pkt := &SubscribePacket{
		PacketID: 4,
		Props:    props,
		Subscriptions: []TopicSubscription{
			{Filter: "sensors/+/temp", QoS: 1},
			{Filter: "alerts/#", QoS: 2, NoLocal: true, RetainAsPublish: true, RetainHandling: 2},
		},
	}

	data, err := EncodePacket(pkt)
	require.NoError(t, err)
	assert.Equal(t, byte(0x82), data[0])
	assert.Equal(t, byte(0x2E), data[len(data)-1], "options byte of the second filter")

	got, _, err := DecodePacket(data)
	require.NoError(t, err)
	assert.Equal(t, pkt, got)
}

func TestSubscribePacketErrors(t *testing.T) {
	_, err := EncodePacket(&SubscribePacket{PacketID: 1})
	assert.ErrorIs(t, err, ErrEncoding)

	tests := []struct {
		name string
		data []byte
	}{
		{"no filters", []byte{0x82, 0x03, 0x00, 0x01, 0x00}},
		{"reserved option bits", []byte{0x82, 0x07, 0x00, 0x01, 0x00, 0x00, 0x01, 'a', 0x40}},
		{"qos 3", []byte{0x82, 0x07, 0x00, 0x01, 0x00, 0x00, 0x01, 'a', 0x03}},
		{"retain handling 3", []byte{0x82, 0x07, 0x00, 0x01, 0x00, 0x00, 0x01, 'a', 0x30}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodePacket(tt.data)
			assert.ErrorIs(t, err, ErrMalformedPacket)
		})
	}
}

func TestSubackAndUnsuback(t *testing.T) {
	suback := &SubackPacket{
		PacketID:    4,
		ReasonCodes: []ReasonCode{ReasonGrantedQoS1, ReasonNotAuthorized},
	}
	data, err := EncodePacket(suback)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x90, 0x05, 0x00, 0x04, 0x00, 0x01, 0x87}, data)

	got, _, err := DecodePacket(data)
	require.NoError(t, err)
	assert.Equal(t, suback, got)

	unsuback := &UnsubackPacket{PacketID: 5, ReasonCodes: []ReasonCode{ReasonNoSubscriptionExisted}}
	data, err = EncodePacket(unsuback)
	require.NoError(t, err)
	got, _, err = DecodePacket(data)
	require.NoError(t, err)
	assert.Equal(t, unsuback, got)

	_, _, err = DecodePacket([]byte{0x90, 0x03, 0x00, 0x04, 0x00})
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestUnsubscribePacket(t *testing.T) {
	pkt := &UnsubscribePacket{PacketID: 9, TopicFilters: []string{"a/#", "b/+"}}
	data, err := EncodePacket(pkt)
	require.NoError(t, err)
	assert.Equal(t, byte(0xA2), data[0])

	got, _, err := DecodePacket(data)
	require.NoError(t, err)
	assert.Equal(t, pkt, got)

	_, err = EncodePacket(&UnsubscribePacket{PacketID: 1})
	assert.ErrorIs(t, err, ErrEncoding)

	_, _, err = DecodePacket([]byte{0xA2, 0x03, 0x00, 0x01, 0x00})
	assert.ErrorIs(t, err, ErrMalformedPacket)
}
