package mqttier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketTypeString(t *testing.T) {
	tests := []struct {
		pt   PacketType
		want string
	}{
		{PacketCONNECT, "CONNECT"},
		{PacketPUBLISH, "PUBLISH"},
		{PacketPUBREL, "PUBREL"},
		{PacketAUTH, "AUTH"},
		{0, "UNKNOWN"},
		{16, "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pt.String())
			assert.Equal(t, tt.want != "UNKNOWN", tt.pt.Valid())
		})
	}
}

func TestFixedHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		header FixedHeader
		size   int
	}{
		{"pingreq", FixedHeader{PacketType: PacketPINGREQ}, 2},
		{"publish qos1 retain", FixedHeader{PacketType: PacketPUBLISH, Flags: 0x03, RemainingLength: 200}, 3},
		{"pubrel", FixedHeader{PacketType: PacketPUBREL, Flags: 0x02, RemainingLength: 2}, 2},
		{"max length", FixedHeader{PacketType: PacketPUBLISH, RemainingLength: maxVarint}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := tt.header.appendTo(nil)
			assert.Len(t, buf, tt.size)
			assert.Equal(t, tt.size, tt.header.Size())

			got, n, err := parseFixedHeader(buf)
			require.NoError(t, err)
			assert.Equal(t, tt.size, n)
			assert.Equal(t, tt.header, got)
		})
	}
}

func TestParseFixedHeaderErrors(t *testing.T) {
	tests := []struct {
		name           string
		data           []byte
		wantErr        error
		wantIncomplete bool
	}{
		{"empty", nil, ErrIncompletePacket, true},
		{"length missing", []byte{0xC0}, ErrIncompletePacket, true},
		{"length continues", []byte{0x30, 0x80}, ErrIncompletePacket, true},
		{"reserved type 0", []byte{0x00, 0x00}, ErrInvalidPacketType, false},
		{"publish qos 3", []byte{0x36, 0x00}, ErrInvalidQoS, false},
		{"pubrel wrong flags", []byte{0x60, 0x02}, ErrInvalidPacketFlags, false},
		{"subscribe wrong flags", []byte{0x80, 0x02}, ErrInvalidPacketFlags, false},
		{"connect with flags", []byte{0x11, 0x00}, ErrInvalidPacketFlags, false},
		{"length too long", []byte{0x30, 0xFF, 0xFF, 0xFF, 0xFF, 0x01}, ErrVarintMalformed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseFixedHeader(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var mpe *MalformedPacketError
			require.ErrorAs(t, err, &mpe)
			assert.Equal(t, tt.wantIncomplete, mpe.Incomplete())
			if !tt.wantIncomplete {
				assert.ErrorIs(t, err, ErrMalformedPacket)
			}
		})
	}
}
