package mqttier

// PacketType is the MQTT control packet type carried in the high nibble
// of the first header byte.
type PacketType byte

const (
	PacketCONNECT     PacketType = 1
	PacketCONNACK     PacketType = 2
	PacketPUBLISH     PacketType = 3
	PacketPUBACK      PacketType = 4
	PacketPUBREC      PacketType = 5
	PacketPUBREL      PacketType = 6
	PacketPUBCOMP     PacketType = 7
	PacketSUBSCRIBE   PacketType = 8
	PacketSUBACK      PacketType = 9
	PacketUNSUBSCRIBE PacketType = 10
	PacketUNSUBACK    PacketType = 11
	PacketPINGREQ     PacketType = 12
	PacketPINGRESP    PacketType = 13
	PacketDISCONNECT  PacketType = 14
	PacketAUTH        PacketType = 15
)

var packetTypeNames = [...]string{
	PacketCONNECT:     "CONNECT",
	PacketCONNACK:     "CONNACK",
	PacketPUBLISH:     "PUBLISH",
	PacketPUBACK:      "PUBACK",
	PacketPUBREC:      "PUBREC",
	PacketPUBREL:      "PUBREL",
	PacketPUBCOMP:     "PUBCOMP",
	PacketSUBSCRIBE:   "SUBSCRIBE",
	PacketSUBACK:      "SUBACK",
	PacketUNSUBSCRIBE: "UNSUBSCRIBE",
	PacketUNSUBACK:    "UNSUBACK",
	PacketPINGREQ:     "PINGREQ",
	PacketPINGRESP:    "PINGRESP",
	PacketDISCONNECT:  "DISCONNECT",
	PacketAUTH:        "AUTH",
}

func (p PacketType) String() string {
	if p.Valid() {
		return packetTypeNames[p]
	}
	return "UNKNOWN"
}

// Valid reports whether p is a defined MQTT 5.0 packet type.
func (p PacketType) Valid() bool {
	return p >= PacketCONNECT && p <= PacketAUTH
}

// Flag bits of the PUBLISH fixed header.
const (
	publishFlagRetain = 0x01
	publishFlagQoS    = 0x06
	publishFlagDUP    = 0x08
)

// FixedHeader is the first part of every MQTT control packet.
type FixedHeader struct {
	PacketType      PacketType
	Flags           byte
	RemainingLength uint32
}

// Size returns the encoded size of the header in bytes.
func (h FixedHeader) Size() int {
	return 1 + varintSize(h.RemainingLength)
}

func (h FixedHeader) appendTo(buf []byte) []byte {
	buf = append(buf, byte(h.PacketType)<<4|h.Flags&0x0F)
	return appendVarint(buf, h.RemainingLength)
}

// parseFixedHeader reads a fixed header from the front of buf. It returns
// ErrIncompletePacket while the header itself is still partial.
func parseFixedHeader(buf []byte) (FixedHeader, int, error) {
	if len(buf) == 0 {
		return FixedHeader{}, 0, incomplete(0, 2)
	}
	h := FixedHeader{
		PacketType: PacketType(buf[0] >> 4),
		Flags:      buf[0] & 0x0F,
	}
	if !h.PacketType.Valid() {
		return h, 0, &MalformedPacketError{Reason: "packet type", err: ErrInvalidPacketType}
	}
	length, n, err := parseVarint(buf[1:])
	if err != nil {
		if err == errVarintShort {
			return h, 0, incomplete(len(buf), len(buf)+1)
		}
		return h, 0, &MalformedPacketError{Reason: "remaining length", err: err}
	}
	h.RemainingLength = length
	if err := h.validateFlags(); err != nil {
		return h, 0, err
	}
	return h, 1 + n, nil
}

func (h FixedHeader) validateFlags() error {
	switch h.PacketType {
	case PacketPUBLISH:
		if (h.Flags&publishFlagQoS)>>1 > 2 {
			return &MalformedPacketError{Reason: "PUBLISH flags", err: ErrInvalidQoS}
		}
		return nil
	case PacketPUBREL, PacketSUBSCRIBE, PacketUNSUBSCRIBE:
		if h.Flags != 0x02 {
			return &MalformedPacketError{Reason: h.PacketType.String() + " flags", err: ErrInvalidPacketFlags}
		}
		return nil
	default:
		if h.Flags != 0 {
			return &MalformedPacketError{Reason: h.PacketType.String() + " flags", err: ErrInvalidPacketFlags}
		}
		return nil
	}
}
