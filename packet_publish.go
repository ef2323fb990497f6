package mqttier

// PublishPacket transports an application message.
type PublishPacket struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retain   bool
	DUP      bool
	PacketID uint16
	Props    Properties
}

func (p *PublishPacket) Type() PacketType { return PacketPUBLISH }

func (p *PublishPacket) flags() byte {
	var f byte
	if p.DUP {
		f |= publishFlagDUP
	}
	f |= (p.QoS << 1) & publishFlagQoS
	if p.Retain {
		f |= publishFlagRetain
	}
	return f
}

func (p *PublishPacket) encodeBody(w *wireWriter) {
	if p.QoS > 2 {
		w.fail(&EncodingError{Field: "qos", err: ErrInvalidQoS})
		return
	}
	if p.QoS > 0 && p.PacketID == 0 {
		w.fail(&EncodingError{Field: "packet id", err: ErrInvalidPacketID})
		return
	}
	w.string("topic", p.Topic)
	if p.QoS > 0 {
		w.uint16(p.PacketID)
	}
	p.Props.encode(w)
	w.raw(p.Payload)
}

func (p *PublishPacket) decodeBody(r *wireReader, flags byte) error {
	p.DUP = flags&publishFlagDUP != 0
	p.QoS = (flags & publishFlagQoS) >> 1
	p.Retain = flags&publishFlagRetain != 0

	var err error
	if p.Topic, err = r.string("topic"); err != nil {
		return err
	}
	if p.QoS > 0 {
		if p.PacketID, err = r.uint16("packet id"); err != nil {
			return err
		}
		if p.PacketID == 0 {
			return &MalformedPacketError{err: ErrInvalidPacketID, Reason: "PUBLISH packet id"}
		}
	}
	if p.Props, err = decodeProperties(r); err != nil {
		return err
	}
	p.Payload = r.rest()
	return nil
}
