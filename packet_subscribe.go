package mqttier

const maxSubscriptionID = maxVarint

// TopicSubscription is one filter entry of a SUBSCRIBE packet.
type TopicSubscription struct {
	Filter          string
	QoS             byte
	NoLocal         bool
	RetainAsPublish bool
	RetainHandling  byte
}

func (s TopicSubscription) options() byte {
	opts := s.QoS & 0x03
	if s.NoLocal {
		opts |= 0x04
	}
	if s.RetainAsPublish {
		opts |= 0x08
	}
	return opts | (s.RetainHandling&0x03)<<4
}

// SubscribePacket requests one or more subscriptions.
type SubscribePacket struct {
	PacketID      uint16
	Props         Properties
	Subscriptions []TopicSubscription
}

func (p *SubscribePacket) Type() PacketType { return PacketSUBSCRIBE }
func (p *SubscribePacket) flags() byte      { return 0x02 }

func (p *SubscribePacket) encodeBody(w *wireWriter) {
	if len(p.Subscriptions) == 0 {
		w.fail(&EncodingError{Field: "subscriptions", err: ErrProtocolError})
		return
	}
	w.uint16(p.PacketID)
	p.Props.encode(w)
	for _, s := range p.Subscriptions {
		w.string("topic filter", s.Filter)
		w.byte(s.options())
	}
}

func (p *SubscribePacket) decodeBody(r *wireReader, _ byte) error {
	var err error
	if p.PacketID, err = r.uint16("packet id"); err != nil {
		return err
	}
	if p.Props, err = decodeProperties(r); err != nil {
		return err
	}
	for r.remaining() > 0 {
		var s TopicSubscription
		if s.Filter, err = r.string("topic filter"); err != nil {
			return err
		}
		opts, err := r.byte("subscription options")
		if err != nil {
			return err
		}
		if opts&0xC0 != 0 {
			return malformed("reserved subscription option bits set")
		}
		s.QoS = opts & 0x03
		s.NoLocal = opts&0x04 != 0
		s.RetainAsPublish = opts&0x08 != 0
		s.RetainHandling = (opts >> 4) & 0x03
		if s.QoS > 2 || s.RetainHandling > 2 {
			return malformed("invalid subscription options")
		}
		p.Subscriptions = append(p.Subscriptions, s)
	}
	if len(p.Subscriptions) == 0 {
		return malformed("SUBSCRIBE without filters")
	}
	return nil
}

// SubackPacket carries one reason code per requested filter.
type SubackPacket struct {
	PacketID    uint16
	Props       Properties
	ReasonCodes []ReasonCode
}

func (p *SubackPacket) Type() PacketType         { return PacketSUBACK }
func (p *SubackPacket) flags() byte              { return 0 }
func (p *SubackPacket) encodeBody(w *wireWriter) { encodeReasonList(w, p.PacketID, &p.Props, p.ReasonCodes) }

func (p *SubackPacket) decodeBody(r *wireReader, _ byte) error {
	var err error
	p.PacketID, p.Props, p.ReasonCodes, err = decodeReasonList(r)
	return err
}

// UnsubscribePacket removes subscriptions.
type UnsubscribePacket struct {
	PacketID     uint16
	Props        Properties
	TopicFilters []string
}

func (p *UnsubscribePacket) Type() PacketType { return PacketUNSUBSCRIBE }
func (p *UnsubscribePacket) flags() byte      { return 0x02 }

func (p *UnsubscribePacket) encodeBody(w *wireWriter) {
	if len(p.TopicFilters) == 0 {
		w.fail(&EncodingError{Field: "topic filters", err: ErrProtocolError})
		return
	}
	w.uint16(p.PacketID)
	p.Props.encode(w)
	for _, f := range p.TopicFilters {
		w.string("topic filter", f)
	}
}

func (p *UnsubscribePacket) decodeBody(r *wireReader, _ byte) error {
	var err error
	if p.PacketID, err = r.uint16("packet id"); err != nil {
		return err
	}
	if p.Props, err = decodeProperties(r); err != nil {
		return err
	}
	for r.remaining() > 0 {
		f, err := r.string("topic filter")
		if err != nil {
			return err
		}
		p.TopicFilters = append(p.TopicFilters, f)
	}
	if len(p.TopicFilters) == 0 {
		return malformed("UNSUBSCRIBE without filters")
	}
	return nil
}

// UnsubackPacket carries one reason code per filter.
type UnsubackPacket struct {
	PacketID    uint16
	Props       Properties
	ReasonCodes []ReasonCode
}

func (p *UnsubackPacket) Type() PacketType         { return PacketUNSUBACK }
func (p *UnsubackPacket) flags() byte              { return 0 }
func (p *UnsubackPacket) encodeBody(w *wireWriter) { encodeReasonList(w, p.PacketID, &p.Props, p.ReasonCodes) }

func (p *UnsubackPacket) decodeBody(r *wireReader, _ byte) error {
	var err error
	p.PacketID, p.Props, p.ReasonCodes, err = decodeReasonList(r)
	return err
}

func encodeReasonList(w *wireWriter, id uint16, props *Properties, codes []ReasonCode) {
	w.uint16(id)
	props.encode(w)
	for _, rc := range codes {
		w.byte(byte(rc))
	}
}

func decodeReasonList(r *wireReader) (uint16, Properties, []ReasonCode, error) {
	id, err := r.uint16("packet id")
	if err != nil {
		return 0, Properties{}, nil, err
	}
	props, err := decodeProperties(r)
	if err != nil {
		return id, props, nil, err
	}
	if r.remaining() == 0 {
		return id, props, nil, malformed("acknowledgement without reason codes")
	}
	codes := make([]ReasonCode, 0, r.remaining())
	for r.remaining() > 0 {
		b, _ := r.byte("reason code")
		codes = append(codes, ReasonCode(b))
	}
	return id, props, codes, nil
}
