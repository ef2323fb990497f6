package mqttier

// PingreqPacket is the client keep-alive probe.
type PingreqPacket struct{}

// PingrespPacket answers PINGREQ.
type PingrespPacket struct{}

func (p *PingreqPacket) Type() PacketType  { return PacketPINGREQ }
func (p *PingrespPacket) Type() PacketType { return PacketPINGRESP }

func (p *PingreqPacket) flags() byte  { return 0 }
func (p *PingrespPacket) flags() byte { return 0 }

func (p *PingreqPacket) encodeBody(*wireWriter)  {}
func (p *PingrespPacket) encodeBody(*wireWriter) {}

func (p *PingreqPacket) decodeBody(r *wireReader, _ byte) error {
	if r.remaining() != 0 {
		return malformed("PINGREQ with payload")
	}
	return nil
}

func (p *PingrespPacket) decodeBody(r *wireReader, _ byte) error {
	if r.remaining() != 0 {
		return malformed("PINGRESP with payload")
	}
	return nil
}
