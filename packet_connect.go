package mqttier

const (
	protocolName    = "MQTT"
	protocolVersion = 5
)

const (
	connectFlagCleanStart = 0x02
	connectFlagWill       = 0x04
	connectFlagWillQoS    = 0x18
	connectFlagWillRetain = 0x20
	connectFlagPassword   = 0x40
	connectFlagUsername   = 0x80
)

// ConnectPacket opens a session with the broker.
type ConnectPacket struct {
	ClientID   string
	CleanStart bool
	KeepAlive  uint16
	Props      Properties

	Username string
	Password []byte

	WillFlag    bool
	WillRetain  bool
	WillQoS     byte
	WillTopic   string
	WillPayload []byte
	WillProps   Properties
}

func (p *ConnectPacket) Type() PacketType { return PacketCONNECT }
func (p *ConnectPacket) flags() byte      { return 0 }

func (p *ConnectPacket) connectFlags() byte {
	var f byte
	if p.CleanStart {
		f |= connectFlagCleanStart
	}
	if p.WillFlag {
		f |= connectFlagWill | (p.WillQoS<<3)&connectFlagWillQoS
		if p.WillRetain {
			f |= connectFlagWillRetain
		}
	}
	if len(p.Password) > 0 {
		f |= connectFlagPassword
	}
	if p.Username != "" {
		f |= connectFlagUsername
	}
	return f
}

func (p *ConnectPacket) encodeBody(w *wireWriter) {
	if p.WillQoS > 2 {
		w.fail(&EncodingError{Field: "will qos", err: ErrInvalidQoS})
		return
	}
	w.string("protocol name", protocolName)
	w.byte(protocolVersion)
	w.byte(p.connectFlags())
	w.uint16(p.KeepAlive)
	p.Props.encode(w)
	w.string("client id", p.ClientID)
	if p.WillFlag {
		p.WillProps.encode(w)
		w.string("will topic", p.WillTopic)
		w.binary("will payload", p.WillPayload)
	}
	if p.Username != "" {
		w.string("username", p.Username)
	}
	if len(p.Password) > 0 {
		w.binary("password", p.Password)
	}
}

func (p *ConnectPacket) decodeBody(r *wireReader, _ byte) error {
	name, err := r.string("protocol name")
	if err != nil {
		return err
	}
	if name != protocolName {
		return &MalformedPacketError{err: ErrInvalidProtocolName, Reason: name}
	}
	version, err := r.byte("protocol version")
	if err != nil {
		return err
	}
	if version != protocolVersion {
		return &MalformedPacketError{err: ErrInvalidProtocolVersion, Reason: "CONNECT"}
	}
	f, err := r.byte("connect flags")
	if err != nil {
		return err
	}
	if f&0x01 != 0 {
		return malformed("reserved connect flag set")
	}
	p.CleanStart = f&connectFlagCleanStart != 0
	p.WillFlag = f&connectFlagWill != 0
	p.WillQoS = (f & connectFlagWillQoS) >> 3
	p.WillRetain = f&connectFlagWillRetain != 0
	if p.WillQoS > 2 || (!p.WillFlag && (p.WillQoS != 0 || p.WillRetain)) {
		return malformed("invalid will flags")
	}

	if p.KeepAlive, err = r.uint16("keep alive"); err != nil {
		return err
	}
	if p.Props, err = decodeProperties(r); err != nil {
		return err
	}
	if p.ClientID, err = r.string("client id"); err != nil {
		return err
	}
	if p.WillFlag {
		if p.WillProps, err = decodeProperties(r); err != nil {
			return err
		}
		if p.WillTopic, err = r.string("will topic"); err != nil {
			return err
		}
		if p.WillPayload, err = r.binary("will payload"); err != nil {
			return err
		}
	}
	if f&connectFlagUsername != 0 {
		if p.Username, err = r.string("username"); err != nil {
			return err
		}
	}
	if f&connectFlagPassword != 0 {
		if p.Password, err = r.binary("password"); err != nil {
			return err
		}
	}
	return nil
}

// ConnackPacket is the broker's answer to CONNECT.
type ConnackPacket struct {
	SessionPresent bool
	ReasonCode     ReasonCode
	Props          Properties
}

func (p *ConnackPacket) Type() PacketType { return PacketCONNACK }
func (p *ConnackPacket) flags() byte      { return 0 }

func (p *ConnackPacket) encodeBody(w *wireWriter) {
	var ack byte
	if p.SessionPresent {
		ack = 0x01
	}
	w.byte(ack)
	w.byte(byte(p.ReasonCode))
	p.Props.encode(w)
}

func (p *ConnackPacket) decodeBody(r *wireReader, _ byte) error {
	ack, err := r.byte("acknowledge flags")
	if err != nil {
		return err
	}
	if ack&0xFE != 0 {
		return malformed("reserved CONNACK flags set")
	}
	p.SessionPresent = ack&0x01 != 0
	rc, err := r.byte("reason code")
	if err != nil {
		return err
	}
	p.ReasonCode = ReasonCode(rc)
	if r.remaining() == 0 {
		return nil
	}
	p.Props, err = decodeProperties(r)
	return err
}
