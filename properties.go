package mqttier

import "fmt"

// PropertyID is an MQTT 5.0 property identifier.
type PropertyID byte

const (
	PropPayloadFormatIndicator   PropertyID = 0x01
	PropMessageExpiryInterval    PropertyID = 0x02
	PropContentType              PropertyID = 0x03
	PropResponseTopic            PropertyID = 0x08
	PropCorrelationData          PropertyID = 0x09
	PropSubscriptionIdentifier   PropertyID = 0x0B
	PropSessionExpiryInterval    PropertyID = 0x11
	PropAssignedClientIdentifier PropertyID = 0x12
	PropServerKeepAlive          PropertyID = 0x13
	PropAuthenticationMethod     PropertyID = 0x15
	PropAuthenticationData       PropertyID = 0x16
	PropRequestProblemInfo       PropertyID = 0x17
	PropWillDelayInterval        PropertyID = 0x18
	PropRequestResponseInfo      PropertyID = 0x19
	PropResponseInformation      PropertyID = 0x1A
	PropServerReference          PropertyID = 0x1C
	PropReasonString             PropertyID = 0x1F
	PropReceiveMaximum           PropertyID = 0x21
	PropTopicAliasMaximum        PropertyID = 0x22
	PropTopicAlias               PropertyID = 0x23
	PropMaximumQoS               PropertyID = 0x24
	PropRetainAvailable          PropertyID = 0x25
	PropUserProperty             PropertyID = 0x26
	PropMaximumPacketSize        PropertyID = 0x27
	PropWildcardSubAvailable     PropertyID = 0x28
	PropSubscriptionIDAvailable  PropertyID = 0x29
	PropSharedSubAvailable       PropertyID = 0x2A
)

// PropertyType is the wire data type of a property value.
type PropertyType byte

const (
	PropTypeByte PropertyType = iota
	PropTypeTwoByteInt
	PropTypeFourByteInt
	PropTypeVarInt
	PropTypeString
	PropTypeBinary
	PropTypeStringPair
)

var propertyTypes = map[PropertyID]PropertyType{
	PropPayloadFormatIndicator:   PropTypeByte,
	PropMessageExpiryInterval:    PropTypeFourByteInt,
	PropContentType:              PropTypeString,
	PropResponseTopic:            PropTypeString,
	PropCorrelationData:          PropTypeBinary,
	PropSubscriptionIdentifier:   PropTypeVarInt,
	PropSessionExpiryInterval:    PropTypeFourByteInt,
	PropAssignedClientIdentifier: PropTypeString,
	PropServerKeepAlive:          PropTypeTwoByteInt,
	PropAuthenticationMethod:     PropTypeString,
	PropAuthenticationData:       PropTypeBinary,
	PropRequestProblemInfo:       PropTypeByte,
	PropWillDelayInterval:        PropTypeFourByteInt,
	PropRequestResponseInfo:      PropTypeByte,
	PropResponseInformation:      PropTypeString,
	PropServerReference:          PropTypeString,
	PropReasonString:             PropTypeString,
	PropReceiveMaximum:           PropTypeTwoByteInt,
	PropTopicAliasMaximum:        PropTypeTwoByteInt,
	PropTopicAlias:               PropTypeTwoByteInt,
	PropMaximumQoS:               PropTypeByte,
	PropRetainAvailable:          PropTypeByte,
	PropUserProperty:             PropTypeStringPair,
	PropMaximumPacketSize:        PropTypeFourByteInt,
	PropWildcardSubAvailable:     PropTypeByte,
	PropSubscriptionIDAvailable:  PropTypeByte,
	PropSharedSubAvailable:       PropTypeByte,
}

// Known reports whether id is defined by MQTT 5.0.
func (id PropertyID) Known() bool {
	_, ok := propertyTypes[id]
	return ok
}

// Property is a single identifier/value pair. Value holds a byte, uint16,
// uint32, string, []byte or StringPair depending on the identifier.
type Property struct {
	ID    PropertyID
	Value any
}

// Properties is an ordered property list.
//
// Identifiers this package does not recognise cannot be skipped safely, since
// their length is unknown. Decoding therefore stops at the first one and keeps
// every remaining property byte in Unknown, which Encode writes back verbatim
// after the known properties.
type Properties struct {
	List    []Property
	Unknown []byte
}

// Len returns the number of decoded properties.
func (p *Properties) Len() int {
	if p == nil {
		return 0
	}
	return len(p.List)
}

// Has reports whether a property with the given id is present.
func (p *Properties) Has(id PropertyID) bool {
	return p.Get(id) != nil
}

// Get returns the first value for id, or nil.
func (p *Properties) Get(id PropertyID) any {
	if p == nil {
		return nil
	}
	for i := range p.List {
		if p.List[i].ID == id {
			return p.List[i].Value
		}
	}
	return nil
}

// GetAll returns every value for id in wire order.
func (p *Properties) GetAll(id PropertyID) []any {
	if p == nil {
		return nil
	}
	var out []any
	for i := range p.List {
		if p.List[i].ID == id {
			out = append(out, p.List[i].Value)
		}
	}
	return out
}

// Set replaces any existing values for id with v.
func (p *Properties) Set(id PropertyID, v any) {
	p.Delete(id)
	p.Add(id, v)
}

// Add appends a value for id, keeping existing ones.
func (p *Properties) Add(id PropertyID, v any) {
	p.List = append(p.List, Property{ID: id, Value: v})
}

// Delete removes every value for id.
func (p *Properties) Delete(id PropertyID) {
	if p == nil || len(p.List) == 0 {
		return
	}
	kept := p.List[:0]
	for _, prop := range p.List {
		if prop.ID != id {
			kept = append(kept, prop)
		}
	}
	if len(kept) == 0 {
		p.List = nil
		return
	}
	p.List = kept
}

func (p *Properties) GetByte(id PropertyID) byte {
	v, _ := p.Get(id).(byte)
	return v
}

func (p *Properties) GetUint16(id PropertyID) uint16 {
	v, _ := p.Get(id).(uint16)
	return v
}

func (p *Properties) GetUint32(id PropertyID) uint32 {
	v, _ := p.Get(id).(uint32)
	return v
}

func (p *Properties) GetString(id PropertyID) string {
	v, _ := p.Get(id).(string)
	return v
}

func (p *Properties) GetBinary(id PropertyID) []byte {
	v, _ := p.Get(id).([]byte)
	return v
}

// GetStringPairs returns every user property in wire order.
func (p *Properties) GetStringPairs(id PropertyID) []StringPair {
	var out []StringPair
	for _, v := range p.GetAll(id) {
		if sp, ok := v.(StringPair); ok {
			out = append(out, sp)
		}
	}
	return out
}

func (p *Properties) encode(w *wireWriter) {
	if w.err != nil {
		return
	}
	var body wireWriter
	if p != nil {
		for _, prop := range p.List {
			encodeProperty(&body, prop)
		}
		body.raw(p.Unknown)
	}
	if body.err != nil {
		w.fail(body.err)
		return
	}
	w.varint(uint32(len(body.buf)))
	w.raw(body.buf)
}

func encodeProperty(w *wireWriter, prop Property) {
	typ, ok := propertyTypes[prop.ID]
	if !ok {
		w.fail(fmt.Errorf("%w: 0x%02X", ErrUnknownPropertyID, byte(prop.ID)))
		return
	}
	w.varint(uint32(prop.ID))
	name := fmt.Sprintf("property 0x%02X", byte(prop.ID))
	switch typ {
	case PropTypeByte:
		v, ok := prop.Value.(byte)
		if !ok {
			w.fail(&EncodingError{Field: name, err: ErrInvalidPropertyType})
			return
		}
		w.byte(v)
	case PropTypeTwoByteInt:
		v, ok := prop.Value.(uint16)
		if !ok {
			w.fail(&EncodingError{Field: name, err: ErrInvalidPropertyType})
			return
		}
		w.uint16(v)
	case PropTypeFourByteInt:
		v, ok := prop.Value.(uint32)
		if !ok {
			w.fail(&EncodingError{Field: name, err: ErrInvalidPropertyType})
			return
		}
		w.uint32(v)
	case PropTypeVarInt:
		v, ok := prop.Value.(uint32)
		if !ok {
			w.fail(&EncodingError{Field: name, err: ErrInvalidPropertyType})
			return
		}
		w.varint(v)
	case PropTypeString:
		v, ok := prop.Value.(string)
		if !ok {
			w.fail(&EncodingError{Field: name, err: ErrInvalidPropertyType})
			return
		}
		w.string(name, v)
	case PropTypeBinary:
		v, ok := prop.Value.([]byte)
		if !ok {
			w.fail(&EncodingError{Field: name, err: ErrInvalidPropertyType})
			return
		}
		w.binary(name, v)
	case PropTypeStringPair:
		v, ok := prop.Value.(StringPair)
		if !ok {
			w.fail(&EncodingError{Field: name, err: ErrInvalidPropertyType})
			return
		}
		w.string(name+" key", v.Key)
		w.string(name+" value", v.Value)
	}
}

func decodeProperties(r *wireReader) (Properties, error) {
	var props Properties
	length, err := r.varint("property length")
	if err != nil {
		return props, err
	}
	block, err := r.take(int(length), "properties")
	if err != nil {
		return props, err
	}
	pr := newWireReader(block)
	for pr.remaining() > 0 {
		id, n, err := parseVarint(pr.data[pr.pos:])
		if err != nil {
			return props, &MalformedPacketError{Reason: "property identifier", err: err}
		}
		var typ PropertyType
		known := false
		if id <= 0xFF {
			typ, known = propertyTypes[PropertyID(id)]
		}
		if !known {
			props.Unknown = pr.rest()
			break
		}
		pr.pos += n
		value, err := decodePropertyValue(pr, typ)
		if err != nil {
			return props, err
		}
		props.List = append(props.List, Property{ID: PropertyID(id), Value: value})
	}
	return props, nil
}

func decodePropertyValue(r *wireReader, typ PropertyType) (any, error) {
	switch typ {
	case PropTypeByte:
		return r.byte("property value")
	case PropTypeTwoByteInt:
		return r.uint16("property value")
	case PropTypeFourByteInt:
		return r.uint32("property value")
	case PropTypeVarInt:
		return r.varint("property value")
	case PropTypeString:
		return r.string("property value")
	case PropTypeBinary:
		b, err := r.binary("property value")
		if b == nil && err == nil {
			b = []byte{}
		}
		return b, err
	default:
		key, err := r.string("user property key")
		if err != nil {
			return nil, err
		}
		value, err := r.string("user property value")
		if err != nil {
			return nil, err
		}
		return StringPair{Key: key, Value: value}, nil
	}
}
