package mqttier

// DisconnectPacket ends a session from either side.
type DisconnectPacket struct {
	ReasonCode ReasonCode
	Props      Properties
}

func (p *DisconnectPacket) Type() PacketType { return PacketDISCONNECT }
func (p *DisconnectPacket) flags() byte      { return 0 }

func (p *DisconnectPacket) encodeBody(w *wireWriter) {
	encodeReasonProps(w, p.ReasonCode, &p.Props)
}

func (p *DisconnectPacket) decodeBody(r *wireReader, _ byte) error {
	return decodeReasonProps(r, &p.ReasonCode, &p.Props)
}

// AuthPacket carries an enhanced authentication exchange step.
type AuthPacket struct {
	ReasonCode ReasonCode
	Props      Properties
}

func (p *AuthPacket) Type() PacketType { return PacketAUTH }
func (p *AuthPacket) flags() byte      { return 0 }

func (p *AuthPacket) encodeBody(w *wireWriter) {
	encodeReasonProps(w, p.ReasonCode, &p.Props)
}

func (p *AuthPacket) decodeBody(r *wireReader, _ byte) error {
	return decodeReasonProps(r, &p.ReasonCode, &p.Props)
}

// AuthMethod returns the authentication method property.
func (p *AuthPacket) AuthMethod() string { return p.Props.GetString(PropAuthenticationMethod) }

// AuthData returns the authentication data property.
func (p *AuthPacket) AuthData() []byte { return p.Props.GetBinary(PropAuthenticationData) }

// encodeReasonProps writes an optional reason code and property block; an
// empty body means success without properties.
func encodeReasonProps(w *wireWriter, reason ReasonCode, props *Properties) {
	hasProps := props.Len() > 0 || len(props.Unknown) > 0
	if reason == ReasonSuccess && !hasProps {
		return
	}
	w.byte(byte(reason))
	if hasProps {
		props.encode(w)
	}
}

func decodeReasonProps(r *wireReader, reason *ReasonCode, props *Properties) error {
	if r.remaining() == 0 {
		*reason = ReasonSuccess
		return nil
	}
	b, err := r.byte("reason code")
	if err != nil {
		return err
	}
	*reason = ReasonCode(b)
	if r.remaining() == 0 {
		return nil
	}
	*props, err = decodeProperties(r)
	return err
}
