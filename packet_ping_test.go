package mqttier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPingPackets(t *testing.T) {
	data, err := EncodePacket(&PingreqPacket{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xC0, 0x00}, data)

	data, err = EncodePacket(&PingrespPacket{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xD0, 0x00}, data)

	pkt, n, err := DecodePacket(data)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.IsType(t, &PingrespPacket{}, pkt)
}

func TestPingWithPayloadIsMalformed(t *testing.T) {
	for _, data := range [][]byte{
		{0xC0, 0x01, 0x00},
		{0xD0, 0x01, 0x00},
	} {
		_, _, err := DecodePacket(data)
		assert.ErrorIs(t, err, ErrMalformedPacket)
	}
}
