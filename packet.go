package mqttier

import "strconv"

// Packet is an MQTT 5.0 control packet. Use EncodePacket and DecodePacket
// to move packets on and off the wire.
type Packet interface {
	Type() PacketType

	// flags returns the low nibble of the fixed header.
	flags() byte

	// encodeBody appends the variable header and payload.
	encodeBody(w *wireWriter)

	// decodeBody parses a complete variable header and payload.
	decodeBody(r *wireReader, flags byte) error
}

// Message is an application message, inbound or outbound.
type Message struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool

	// Duplicate is set on inbound messages the broker marked as redelivered.
	Duplicate bool

	// PayloadFormat is 1 when Payload is UTF-8 text.
	PayloadFormat byte

	// MessageExpiry is the lifetime in seconds; zero means no expiry.
	MessageExpiry uint32

	ContentType     string
	ResponseTopic   string
	CorrelationData []byte
	UserProperties  []StringPair

	// SubscriptionIdentifiers lists the matching subscriptions on inbound messages.
	SubscriptionIdentifiers []uint32
}

// Clone returns a deep copy of m.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	c.Payload = cloneBytes(m.Payload)
	c.CorrelationData = cloneBytes(m.CorrelationData)
	if m.UserProperties != nil {
		c.UserProperties = append([]StringPair(nil), m.UserProperties...)
	}
	if m.SubscriptionIdentifiers != nil {
		c.SubscriptionIdentifiers = append([]uint32(nil), m.SubscriptionIdentifiers...)
	}
	return &c
}

// UserProperty returns the first user property value for key.
func (m *Message) UserProperty(key string) (string, bool) {
	for _, up := range m.UserProperties {
		if up.Key == key {
			return up.Value, true
		}
	}
	return "", false
}

// Properties converts the message metadata to PUBLISH properties.
func (m *Message) Properties() Properties {
	var p Properties
	if m.PayloadFormat != 0 {
		p.Add(PropPayloadFormatIndicator, m.PayloadFormat)
	}
	if m.MessageExpiry != 0 {
		p.Add(PropMessageExpiryInterval, m.MessageExpiry)
	}
	if m.ContentType != "" {
		p.Add(PropContentType, m.ContentType)
	}
	if m.ResponseTopic != "" {
		p.Add(PropResponseTopic, m.ResponseTopic)
	}
	if len(m.CorrelationData) > 0 {
		p.Add(PropCorrelationData, m.CorrelationData)
	}
	for _, up := range m.UserProperties {
		p.Add(PropUserProperty, up)
	}
	return p
}

// setProperties fills the metadata fields from decoded PUBLISH properties.
func (m *Message) setProperties(p *Properties) {
	m.PayloadFormat = p.GetByte(PropPayloadFormatIndicator)
	m.MessageExpiry = p.GetUint32(PropMessageExpiryInterval)
	m.ContentType = p.GetString(PropContentType)
	m.ResponseTopic = p.GetString(PropResponseTopic)
	if cd := p.GetBinary(PropCorrelationData); len(cd) > 0 {
		m.CorrelationData = cd
	}
	m.UserProperties = p.GetStringPairs(PropUserProperty)
	for _, v := range p.GetAll(PropSubscriptionIdentifier) {
		if id, ok := v.(uint32); ok {
			m.SubscriptionIdentifiers = append(m.SubscriptionIdentifiers, id)
		}
	}
}

func (m *Message) toPublish(packetID uint16) *PublishPacket {
	return &PublishPacket{
		Topic:    m.Topic,
		Payload:  m.Payload,
		QoS:      m.QoS,
		Retain:   m.Retain,
		PacketID: packetID,
		Props:    m.Properties(),
	}
}

// Message converts an inbound PUBLISH into an application message.
func (p *PublishPacket) Message() *Message {
	msg := &Message{
		Topic:     p.Topic,
		Payload:   p.Payload,
		QoS:       p.QoS,
		Retain:    p.Retain,
		Duplicate: p.DUP,
	}
	msg.setProperties(&p.Props)
	return msg
}

// User property keys carried by error responses.
const (
	UserPropReturnCode = "ReturnCode"
	UserPropDebugInfo  = "DebugInfo"
)

// NewErrorResponse builds the reply sent to a requester when handling its
// request failed. The payload is an empty JSON object and the failure is
// described in the ReturnCode and DebugInfo user properties.
func NewErrorResponse(topic string, returnCode int, correlationData []byte, debugInfo string) *Message {
	msg := &Message{
		Topic:           topic,
		Payload:         []byte("{}"),
		QoS:             1,
		ContentType:     "application/json",
		CorrelationData: cloneBytes(correlationData),
		UserProperties: []StringPair{
			{Key: UserPropReturnCode, Value: strconv.Itoa(returnCode)},
		},
	}
	if debugInfo != "" {
		msg.UserProperties = append(msg.UserProperties, StringPair{Key: UserPropDebugInfo, Value: debugInfo})
	}
	return msg
}

// NewUnpublishRetained builds the empty retained message that clears the
// broker's retained value for topic.
func NewUnpublishRetained(topic string) *Message {
	return &Message{Topic: topic, QoS: 1, Retain: true}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
