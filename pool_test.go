package mqttier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWireWriterPoolResets(t *testing.T) {
	w := getWireWriter()
	w.string("topic", "a/b")
	w.fail(ErrInvalidQoS)
	putWireWriter(w)

	w = getWireWriter()
	assert.Empty(t, w.buf)
	assert.NoError(t, w.err)
	putWireWriter(w)
}

func TestWireWriterPoolDropsLargeBuffers(t *testing.T) {
	w := getWireWriter()
	w.buf = make([]byte, 0, maxPooledBuffer+1)
	putWireWriter(w)
	putWireWriter(nil)

	for range 10 {
		got := getWireWriter()
		assert.LessOrEqual(t, cap(got.buf), maxPooledBuffer)
	}
}

func TestEncodePacketDoesNotAliasPooledBuffer(t *testing.T) {
	first, err := EncodePacket(&PublishPacket{Topic: "a", Payload: []byte("one")})
	assert.NoError(t, err)
	_, err = EncodePacket(&PublishPacket{Topic: "b", Payload: []byte("two")})
	assert.NoError(t, err)

	assert.Equal(t, []byte{0x30, 0x07, 0x00, 0x01, 'a', 0x00, 'o', 'n', 'e'}, first)
}
