package mqttier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisconnectPacket(t *testing.T) {
	var props Properties
	props.Add(PropReasonString, "shutting down")
	props.Add(PropServerReference, "tcp://other:1883")

	tests := []struct {
		name   string
		packet *DisconnectPacket
		wire   []byte
	}{
		{"normal disconnect has empty body", &DisconnectPacket{}, []byte{0xE0, 0x00}},
		{"reason only", &DisconnectPacket{ReasonCode: ReasonKeepAliveTimeout}, []byte{0xE0, 0x01, 0x8D}},
		{"reason and properties", &DisconnectPacket{ReasonCode: ReasonServerMoved, Props: props}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodePacket(tt.packet)
			require.NoError(t, err)
			if tt.wire != nil {
				assert.Equal(t, tt.wire, data)
			}
			got, _, err := DecodePacket(data)
			require.NoError(t, err)
			assert.Equal(t, tt.packet, got)
		})
	}
}

func TestAuthPacket(t *testing.T) {
	var props Properties
	props.Add(PropAuthenticationMethod, "SCRAM-SHA-256")
	props.Add(PropAuthenticationData, []byte("n,,n=user,r=abc"))

	pkt := &AuthPacket{ReasonCode: ReasonContinueAuth, Props: props}
	data, err := EncodePacket(pkt)
	require.NoError(t, err)
	assert.Equal(t, byte(0xF0), data[0])

	got, _, err := DecodePacket(data)
	require.NoError(t, err)
	auth := got.(*AuthPacket)
	assert.Equal(t, ReasonContinueAuth, auth.ReasonCode)
	assert.Equal(t, "SCRAM-SHA-256", auth.AuthMethod())
	assert.Equal(t, []byte("n,,n=user,r=abc"), auth.AuthData())

	_, _, err = DecodePacket([]byte{0xF1, 0x00})
	assert.ErrorIs(t, err, ErrInvalidPacketFlags)
}
