package mqttier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropertiesAccessors(t *testing.T) {
	var p Properties
	p.Add(PropUserProperty, StringPair{Key: "a", Value: "1"})
	p.Add(PropUserProperty, StringPair{Key: "a", Value: "2"})
	p.Set(PropContentType, "text/plain")
	p.Set(PropContentType, "application/json")
	p.Set(PropReceiveMaximum, uint16(10))
	p.Set(PropSessionExpiryInterval, uint32(60))
	p.Set(PropPayloadFormatIndicator, byte(1))
	p.Set(PropCorrelationData, []byte("id"))

	assert.Equal(t, 7, p.Len())
	assert.True(t, p.Has(PropContentType))
	assert.False(t, p.Has(PropResponseTopic))
	assert.Equal(t, "application/json", p.GetString(PropContentType))
	assert.Equal(t, uint16(10), p.GetUint16(PropReceiveMaximum))
	assert.Equal(t, uint32(60), p.GetUint32(PropSessionExpiryInterval))
	assert.Equal(t, byte(1), p.GetByte(PropPayloadFormatIndicator))
	assert.Equal(t, []byte("id"), p.GetBinary(PropCorrelationData))
	assert.Equal(t, []StringPair{{"a", "1"}, {"a", "2"}}, p.GetStringPairs(PropUserProperty))

	p.Delete(PropUserProperty)
	assert.Empty(t, p.GetStringPairs(PropUserProperty))
	assert.Zero(t, p.GetUint16(PropTopicAlias))

	var nilProps *Properties
	assert.Zero(t, nilProps.Len())
	assert.Nil(t, nilProps.Get(PropContentType))
}

func TestPropertiesEncodeDecode(t *testing.T) {
	var p Properties
	p.Add(PropPayloadFormatIndicator, byte(1))
	p.Add(PropTopicAlias, uint16(3))
	p.Add(PropMessageExpiryInterval, uint32(3600))
	p.Add(PropSubscriptionIdentifier, uint32(268435455))
	p.Add(PropResponseTopic, "reply/here")
	p.Add(PropCorrelationData, []byte{0, 1, 2})
	p.Add(PropUserProperty, StringPair{Key: "k", Value: "v"})

	var w wireWriter
	p.encode(&w)
	require.NoError(t, w.err)

	got, err := decodeProperties(newWireReader(w.buf))
	require.NoError(t, err)
	assert.Equal(t, p.List, got.List)
	assert.Nil(t, got.Unknown)
}

func TestPropertiesEncodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		prop    Property
		wantErr error
	}{
		{"wrong byte type", Property{ID: PropPayloadFormatIndicator, Value: 1}, ErrInvalidPropertyType},
		{"wrong uint16 type", Property{ID: PropReceiveMaximum, Value: uint32(1)}, ErrInvalidPropertyType},
		{"wrong string type", Property{ID: PropContentType, Value: []byte("x")}, ErrInvalidPropertyType},
		{"unknown id", Property{ID: 0x7F, Value: byte(0)}, ErrUnknownPropertyID},
		{"varint too large", Property{ID: PropSubscriptionIdentifier, Value: uint32(maxVarint + 1)}, ErrVarintTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Properties{List: []Property{tt.prop}}
			var w wireWriter
			p.encode(&w)
			assert.ErrorIs(t, w.err, tt.wantErr)
		})
	}
}

func TestDecodePropertiesUnknownIDKeepsRest(t *testing.T) {
	// content type "a", then unknown id 0x7F with two opaque bytes
	block := []byte{0x03, 0x00, 0x01, 'a', 0x7F, 0xDE, 0xAD}
	data := append([]byte{byte(len(block))}, block...)
	data = append(data, 0x99)

	r := newWireReader(data)
	got, err := decodeProperties(r)
	require.NoError(t, err)
	assert.Equal(t, "a", got.GetString(PropContentType))
	assert.Equal(t, []byte{0x7F, 0xDE, 0xAD}, got.Unknown)
	assert.Equal(t, 1, r.remaining())

	// unknown bytes are written back unchanged
	var w wireWriter
	got.encode(&w)
	require.NoError(t, w.err)
	assert.Equal(t, data[:len(data)-1], w.buf)
}

func TestDecodePropertiesMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"length beyond body", []byte{0x05, 0x01}},
		{"truncated value", []byte{0x02, 0x02, 0x00}},
		{"bad utf-8 string", []byte{0x04, 0x03, 0x00, 0x01, 0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeProperties(newWireReader(tt.data))
			assert.ErrorIs(t, err, ErrMalformedPacket)
		})
	}
}
