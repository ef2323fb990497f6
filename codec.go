package mqttier

import (
	"errors"
	"io"
)

// Packet size limits, counted over the whole packet including its header.
const (
	MaxPacketSizeProtocol = maxVarint + 5
	MaxPacketSizeDefault  = 4 * 1024 * 1024
	MaxPacketSizeMinimal  = 16 * 1024
)

func newPacket(t PacketType) Packet {
	switch t {
	case PacketCONNECT:
		return &ConnectPacket{}
	case PacketCONNACK:
		return &ConnackPacket{}
	case PacketPUBLISH:
		return &PublishPacket{}
	case PacketPUBACK:
		return &PubackPacket{}
	case PacketPUBREC:
		return &PubrecPacket{}
	case PacketPUBREL:
		return &PubrelPacket{}
	case PacketPUBCOMP:
		return &PubcompPacket{}
	case PacketSUBSCRIBE:
		return &SubscribePacket{}
	case PacketSUBACK:
		return &SubackPacket{}
	case PacketUNSUBSCRIBE:
		return &UnsubscribePacket{}
	case PacketUNSUBACK:
		return &UnsubackPacket{}
	case PacketPINGREQ:
		return &PingreqPacket{}
	case PacketPINGRESP:
		return &PingrespPacket{}
	case PacketDISCONNECT:
		return &DisconnectPacket{}
	case PacketAUTH:
		return &AuthPacket{}
	default:
		return nil
	}
}

// EncodePacket serializes pkt including its fixed header. Caller data the
// wire format cannot carry is reported as an *EncodingError.
func EncodePacket(pkt Packet) ([]byte, error) {
	body := getWireWriter()
	defer putWireWriter(body)

	pkt.encodeBody(body)
	if body.err != nil {
		return nil, body.err
	}
	if len(body.buf) > maxVarint {
		return nil, &EncodingError{Field: pkt.Type().String(), Length: len(body.buf), err: ErrPacketTooLarge}
	}
	h := FixedHeader{PacketType: pkt.Type(), Flags: pkt.flags(), RemainingLength: uint32(len(body.buf))}
	out := make([]byte, 0, h.Size()+len(body.buf))
	out = h.appendTo(out)
	return append(out, body.buf...), nil
}

// DecodePacket decodes one packet from the front of buf and returns it with
// the number of bytes consumed.
//
// When buf holds only part of a packet the error is a *MalformedPacketError
// matching ErrIncompletePacket; nothing is consumed and the caller should
// retry once more bytes have arrived. Any other error means the stream can
// no longer be framed.
func DecodePacket(buf []byte) (Packet, int, error) {
	h, hn, err := parseFixedHeader(buf)
	if err != nil {
		return nil, 0, err
	}
	total := hn + int(h.RemainingLength)
	if len(buf) < total {
		return nil, 0, incomplete(len(buf), total)
	}
	pkt, err := decodeFrame(h, buf[hn:total])
	if err != nil {
		return nil, 0, err
	}
	return pkt, total, nil
}

func decodeFrame(h FixedHeader, body []byte) (Packet, error) {
	pkt := newPacket(h.PacketType)
	if pkt == nil {
		return nil, &MalformedPacketError{err: ErrInvalidPacketType, Reason: "packet type"}
	}
	r := newWireReader(body)
	if err := pkt.decodeBody(r, h.Flags); err != nil {
		return nil, err
	}
	if r.remaining() != 0 {
		return nil, malformed(h.PacketType.String() + " has trailing bytes")
	}
	return pkt, nil
}

// Decoder reassembles packets from arbitrarily split input.
type Decoder struct {
	buf     []byte
	maxSize uint32
}

// NewDecoder returns a Decoder rejecting packets larger than maxSize bytes.
// Zero disables the limit.
func NewDecoder(maxSize uint32) *Decoder {
	return &Decoder{maxSize: maxSize}
}

// Write buffers p. It never fails.
func (d *Decoder) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)
	return len(p), nil
}

// Buffered returns the number of bytes waiting to be decoded.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Next returns the next complete packet. An error matching
// ErrIncompletePacket means more input is needed.
func (d *Decoder) Next() (Packet, error) {
	if d.maxSize > 0 {
		if h, hn, err := parseFixedHeader(d.buf); err == nil && uint64(hn)+uint64(h.RemainingLength) > uint64(d.maxSize) {
			d.buf = nil
			return nil, ErrPacketTooLarge
		}
	}
	pkt, n, err := DecodePacket(d.buf)
	if err != nil {
		if !errors.Is(err, ErrIncompletePacket) {
			d.buf = nil
		}
		return nil, err
	}
	d.buf = d.buf[n:]
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return pkt, nil
}

// ReadPacket reads exactly one packet from a stream. Packets larger than
// maxSize bytes fail with ErrPacketTooLarge; zero disables the limit.
func ReadPacket(r io.Reader, maxSize uint32) (Packet, int, error) {
	var head [5]byte
	n, err := io.ReadFull(r, head[:1])
	if err != nil {
		return nil, n, err
	}
	var h FixedHeader
	var hn int
	for {
		h, hn, err = parseFixedHeader(head[:n])
		if err == nil {
			break
		}
		if !errors.Is(err, ErrIncompletePacket) || n == len(head) {
			return nil, n, err
		}
		m, rerr := io.ReadFull(r, head[n:n+1])
		n += m
		if rerr != nil {
			return nil, n, rerr
		}
	}
	if maxSize > 0 && uint64(hn)+uint64(h.RemainingLength) > uint64(maxSize) {
		return nil, n, ErrPacketTooLarge
	}
	body := make([]byte, h.RemainingLength)
	m, err := io.ReadFull(r, body)
	n += m
	if err != nil {
		return nil, n, err
	}
	pkt, err := decodeFrame(h, body)
	return pkt, n, err
}

// WritePacket encodes pkt and writes it to w in a single call.
func WritePacket(w io.Writer, pkt Packet, maxSize uint32) (int, error) {
	data, err := EncodePacket(pkt)
	if err != nil {
		return 0, err
	}
	if maxSize > 0 && uint64(len(data)) > uint64(maxSize) {
		return 0, ErrPacketTooLarge
	}
	return w.Write(data)
}
