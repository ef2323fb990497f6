package mqttier

import (
	"encoding/binary"
	"errors"
	"unicode/utf8"
)

// Encoding errors.
var (
	ErrStringTooLong      = errors.New("string exceeds maximum length of 65535 bytes")
	ErrBinaryTooLong      = errors.New("binary data exceeds maximum length of 65535 bytes")
	ErrInvalidUTF8        = errors.New("invalid UTF-8 string")
	ErrStringContainsNull = errors.New("string contains null character")
	ErrVarintTooLarge     = errors.New("variable byte integer exceeds maximum value")
	ErrVarintMalformed    = errors.New("malformed variable byte integer")
	ErrVarintOverlong     = errors.New("variable byte integer uses more bytes than necessary")

	errVarintShort = errors.New("variable byte integer truncated")
)

const (
	maxUint16         = 65535
	maxVarint         = 268435455
	varintContinueBit = 0x80
	varintValueMask   = 0x7F
)

// StringPair is a UTF-8 key/value pair, used for user properties.
type StringPair struct {
	Key   string
	Value string
}

// wireWriter appends MQTT primitive types to a byte slice.
// The first failure is sticky; later writes become no-ops.
type wireWriter struct {
	buf []byte
	err error
}

func (w *wireWriter) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *wireWriter) byte(b byte) {
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, b)
}

func (w *wireWriter) uint16(v uint16) {
	if w.err != nil {
		return
	}
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *wireWriter) uint32(v uint32) {
	if w.err != nil {
		return
	}
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *wireWriter) varint(v uint32) {
	if w.err != nil {
		return
	}
	if v > maxVarint {
		w.fail(ErrVarintTooLarge)
		return
	}
	w.buf = appendVarint(w.buf, v)
}

// string writes a length-prefixed UTF-8 string. field names the value in
// the EncodingError returned when the string cannot be represented.
func (w *wireWriter) string(field, s string) {
	if w.err != nil {
		return
	}
	if len(s) > maxUint16 {
		w.fail(&EncodingError{Field: field, Length: len(s), err: ErrStringTooLong})
		return
	}
	if !utf8.ValidString(s) {
		w.fail(&EncodingError{Field: field, Length: len(s), err: ErrInvalidUTF8})
		return
	}
	for i := range len(s) {
		if s[i] == 0 {
			w.fail(&EncodingError{Field: field, Length: len(s), err: ErrStringContainsNull})
			return
		}
	}
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *wireWriter) binary(field string, data []byte) {
	if w.err != nil {
		return
	}
	if len(data) > maxUint16 {
		w.fail(&EncodingError{Field: field, Length: len(data), err: ErrBinaryTooLong})
		return
	}
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(len(data)))
	w.buf = append(w.buf, data...)
}

func (w *wireWriter) raw(data []byte) {
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, data...)
}

// wireReader consumes MQTT primitive types from a complete packet body.
// Running out of bytes inside a body is a malformed packet, not an
// incomplete one: the fixed header already promised those bytes.
type wireReader struct {
	data []byte
	pos  int
}

func newWireReader(data []byte) *wireReader {
	return &wireReader{data: data}
}

func (r *wireReader) remaining() int {
	return len(r.data) - r.pos
}

func (r *wireReader) take(n int, what string) ([]byte, error) {
	if n > r.remaining() {
		return nil, malformed(what + " truncated")
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *wireReader) byte(what string) (byte, error) {
	b, err := r.take(1, what)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *wireReader) uint16(what string) (uint16, error) {
	b, err := r.take(2, what)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *wireReader) uint32(what string) (uint32, error) {
	b, err := r.take(4, what)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *wireReader) varint(what string) (uint32, error) {
	v, n, err := parseVarint(r.data[r.pos:])
	if err != nil {
		if err == errVarintShort {
			return 0, malformed(what + " truncated")
		}
		return 0, &MalformedPacketError{Reason: what, err: err}
	}
	r.pos += n
	return v, nil
}

func (r *wireReader) string(what string) (string, error) {
	n, err := r.uint16(what)
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n), what)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", &MalformedPacketError{Reason: what, err: ErrInvalidUTF8}
	}
	for _, c := range b {
		if c == 0 {
			return "", &MalformedPacketError{Reason: what, err: ErrStringContainsNull}
		}
	}
	return string(b), nil
}

func (r *wireReader) binary(what string) ([]byte, error) {
	n, err := r.uint16(what)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	b, err := r.take(int(n), what)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// rest returns a copy of all unread bytes, or nil if none remain.
func (r *wireReader) rest() []byte {
	if r.remaining() == 0 {
		return nil
	}
	out := make([]byte, r.remaining())
	copy(out, r.data[r.pos:])
	r.pos = len(r.data)
	return out
}

func appendVarint(buf []byte, v uint32) []byte {
	for {
		b := byte(v & varintValueMask)
		v >>= 7
		if v > 0 {
			b |= varintContinueBit
		}
		buf = append(buf, b)
		if v == 0 {
			return buf
		}
	}
}

// parseVarint decodes a variable byte integer from the front of buf.
// It returns errVarintShort when buf ends before the final byte.
func parseVarint(buf []byte) (uint32, int, error) {
	var value uint32
	var multiplier uint32 = 1
	for i := range 4 {
		if i >= len(buf) {
			return 0, 0, errVarintShort
		}
		b := buf[i]
		value += uint32(b&varintValueMask) * multiplier
		if b&varintContinueBit == 0 {
			if i > 0 && b == 0 {
				return 0, 0, ErrVarintOverlong
			}
			return value, i + 1, nil
		}
		multiplier *= 128
	}
	return 0, 0, ErrVarintMalformed
}

func varintSize(v uint32) int {
	switch {
	case v < 128:
		return 1
	case v < 16384:
		return 2
	case v < 2097152:
		return 3
	default:
		return 4
	}
}
