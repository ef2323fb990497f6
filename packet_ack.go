package mqttier

// PubackPacket acknowledges a QoS 1 PUBLISH.
type PubackPacket struct {
	PacketID   uint16
	ReasonCode ReasonCode
	Props      Properties
}

// PubrecPacket is the first acknowledgement of a QoS 2 PUBLISH.
type PubrecPacket struct {
	PacketID   uint16
	ReasonCode ReasonCode
	Props      Properties
}

// PubrelPacket releases a QoS 2 message after PUBREC.
type PubrelPacket struct {
	PacketID   uint16
	ReasonCode ReasonCode
	Props      Properties
}

// PubcompPacket completes a QoS 2 exchange.
type PubcompPacket struct {
	PacketID   uint16
	ReasonCode ReasonCode
	Props      Properties
}

func (p *PubackPacket) Type() PacketType  { return PacketPUBACK }
func (p *PubrecPacket) Type() PacketType  { return PacketPUBREC }
func (p *PubrelPacket) Type() PacketType  { return PacketPUBREL }
func (p *PubcompPacket) Type() PacketType { return PacketPUBCOMP }

func (p *PubackPacket) flags() byte  { return 0 }
func (p *PubrecPacket) flags() byte  { return 0 }
func (p *PubrelPacket) flags() byte  { return 0x02 }
func (p *PubcompPacket) flags() byte { return 0 }

func (p *PubackPacket) encodeBody(w *wireWriter) { encodeAck(w, p.PacketID, p.ReasonCode, &p.Props) }
func (p *PubrecPacket) encodeBody(w *wireWriter) { encodeAck(w, p.PacketID, p.ReasonCode, &p.Props) }
func (p *PubrelPacket) encodeBody(w *wireWriter) { encodeAck(w, p.PacketID, p.ReasonCode, &p.Props) }
func (p *PubcompPacket) encodeBody(w *wireWriter) {
	encodeAck(w, p.PacketID, p.ReasonCode, &p.Props)
}

func (p *PubackPacket) decodeBody(r *wireReader, _ byte) error {
	return decodeAck(r, &p.PacketID, &p.ReasonCode, &p.Props)
}

func (p *PubrecPacket) decodeBody(r *wireReader, _ byte) error {
	return decodeAck(r, &p.PacketID, &p.ReasonCode, &p.Props)
}

func (p *PubrelPacket) decodeBody(r *wireReader, _ byte) error {
	return decodeAck(r, &p.PacketID, &p.ReasonCode, &p.Props)
}

func (p *PubcompPacket) decodeBody(r *wireReader, _ byte) error {
	return decodeAck(r, &p.PacketID, &p.ReasonCode, &p.Props)
}

func encodeAck(w *wireWriter, id uint16, reason ReasonCode, props *Properties) {
	w.uint16(id)
	encodeReasonProps(w, reason, props)
}

func decodeAck(r *wireReader, id *uint16, reason *ReasonCode, props *Properties) error {
	var err error
	if *id, err = r.uint16("packet id"); err != nil {
		return err
	}
	return decodeReasonProps(r, reason, props)
}
