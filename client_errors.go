package mqttier

import (
	"errors"
	"fmt"
	"time"
)

// EventHandler receives lifecycle events. Events are errors so they can be
// matched with errors.Is and unpacked with errors.As.
type EventHandler func(client *Client, event error)

// Lifecycle events.
var (
	ErrConnected        = errors.New("connected")
	ErrDisconnected     = errors.New("disconnected")
	ErrConnectionLost   = errors.New("connection lost")
	ErrReconnecting     = errors.New("reconnecting")
	ErrServerDisconnect = errors.New("server disconnect")
	ErrKeepAliveTimeout = errors.New("keep-alive timeout")
)

// Operation errors.
var (
	ErrConnectFailed          = errors.New("connect failed")
	ErrAuthFailed             = errors.New("authentication failed")
	ErrProtocolError          = errors.New("protocol error")
	ErrPublishFailed          = errors.New("publish failed")
	ErrPublishTimeout         = errors.New("publish timed out")
	ErrSubscribeFailed        = errors.New("subscribe failed")
	ErrUnsubscribeFailed      = errors.New("unsubscribe failed")
	ErrRequestTimeout         = errors.New("request timed out")
	ErrInvalidFilter          = errors.New("invalid topic filter")
	ErrInvalidTopic           = errors.New("invalid topic name")
	ErrDuplicateCorrelation   = errors.New("correlation data already pending")
	ErrClientClosed           = errors.New("client closed")
	ErrNotConnected           = errors.New("not connected")
	ErrCanceled               = errors.New("operation canceled")
	ErrNoServers              = errors.New("no servers configured")
	ErrUnsupportedScheme      = errors.New("unsupported transport scheme")
	ErrSubscriptionNotFound   = errors.New("subscription not found")
	ErrPacketIDExhausted      = errors.New("no packet identifiers available")
	ErrMalformedPacket        = errors.New("malformed packet")
	ErrIncompletePacket       = errors.New("incomplete packet")
	ErrEncoding               = errors.New("encoding error")
	ErrInvalidPacketType      = errors.New("invalid packet type")
	ErrInvalidPacketFlags     = errors.New("invalid packet flags")
	ErrInvalidQoS             = errors.New("invalid QoS level")
	ErrInvalidPacketID        = errors.New("invalid packet identifier")
	ErrPacketTooLarge         = errors.New("packet exceeds maximum size")
	ErrUnknownPropertyID      = errors.New("unknown property identifier")
	ErrInvalidPropertyType    = errors.New("invalid property type for identifier")
	ErrInvalidProtocolName    = errors.New("invalid protocol name")
	ErrInvalidProtocolVersion = errors.New("unsupported protocol version")
)

// ConnectedEvent is emitted after every successful CONNACK.
type ConnectedEvent struct {
	err            error
	SessionPresent bool
	ServerProps    *Properties
}

func (e *ConnectedEvent) Error() string { return e.err.Error() }
func (e *ConnectedEvent) Unwrap() error { return e.err }

func NewConnectedEvent(sessionPresent bool, props *Properties) *ConnectedEvent {
	return &ConnectedEvent{err: ErrConnected, SessionPresent: sessionPresent, ServerProps: props}
}

// DisconnectError describes a disconnection, local or broker initiated.
type DisconnectError struct {
	err        error
	ReasonCode ReasonCode
	Properties *Properties
	Remote     bool
}

func (e *DisconnectError) Error() string {
	if e.Remote {
		return "server disconnect: " + e.ReasonCode.String()
	}
	return "disconnected: " + e.ReasonCode.String()
}

func (e *DisconnectError) Unwrap() error { return e.err }

func NewDisconnectError(reason ReasonCode, props *Properties, remote bool) *DisconnectError {
	base := ErrDisconnected
	if remote {
		base = ErrServerDisconnect
	}
	return &DisconnectError{err: base, ReasonCode: reason, Properties: props, Remote: remote}
}

// ReconnectEvent is emitted before each reconnect attempt.
type ReconnectEvent struct {
	err         error
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
	cancelFn    func()
}

func (e *ReconnectEvent) Error() string { return e.err.Error() }
func (e *ReconnectEvent) Unwrap() error { return e.err }

// Cancel stops further reconnection attempts.
func (e *ReconnectEvent) Cancel() {
	if e.cancelFn != nil {
		e.cancelFn()
	}
}

func NewReconnectEvent(attempt, maxAttempts int, delay time.Duration, cancelFn func()) *ReconnectEvent {
	return &ReconnectEvent{
		err:         ErrReconnecting,
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		Delay:       delay,
		cancelFn:    cancelFn,
	}
}

// ConnectError reports a rejected CONNACK or a transport failure while
// connecting. ReasonCode is zero for transport failures.
type ConnectError struct {
	err        error
	ReasonCode ReasonCode
	Properties *Properties
	Cause      error
}

func (e *ConnectError) Error() string {
	if e.Cause != nil {
		return "connect failed: " + e.Cause.Error()
	}
	return "connect failed: " + e.ReasonCode.String()
}

func (e *ConnectError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.err, e.Cause}
	}
	return []error{e.err}
}

// NewConnectError creates a ConnectError from a CONNACK reason code.
func NewConnectError(reason ReasonCode, props *Properties) *ConnectError {
	base := ErrConnectFailed
	if reason == ReasonBadUserNameOrPassword || reason == ReasonNotAuthorized {
		base = ErrAuthFailed
	}
	return &ConnectError{err: base, ReasonCode: reason, Properties: props}
}

// NewConnectCauseError wraps a transport or timeout failure during connect.
func NewConnectCauseError(cause error) *ConnectError {
	return &ConnectError{err: ErrConnectFailed, Cause: cause}
}

// ConnectionLostError is surfaced once the reconnect policy is exhausted.
type ConnectionLostError struct {
	err      error
	Attempts int
	Cause    error
}

func (e *ConnectionLostError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connection lost after %d reconnect attempts: %v", e.Attempts, e.Cause)
	}
	return fmt.Sprintf("connection lost after %d reconnect attempts", e.Attempts)
}

func (e *ConnectionLostError) Unwrap() error { return e.err }

func NewConnectionLostError(attempts int, cause error) *ConnectionLostError {
	return &ConnectionLostError{err: ErrConnectionLost, Attempts: attempts, Cause: cause}
}

// MalformedPacketError reports inbound bytes that cannot be decoded. When
// it wraps ErrIncompletePacket the input is merely short: buffer more bytes
// and decode again.
type MalformedPacketError struct {
	err    error
	Reason string
	Have   int
	Need   int
}

func (e *MalformedPacketError) Error() string {
	if e.Incomplete() {
		return fmt.Sprintf("incomplete packet: have %d bytes, need at least %d", e.Have, e.Need)
	}
	return "malformed packet: " + e.Reason + ": " + e.err.Error()
}

func (e *MalformedPacketError) Unwrap() []error {
	if e.err == ErrMalformedPacket || e.Incomplete() {
		return []error{e.err}
	}
	return []error{ErrMalformedPacket, e.err}
}

// Incomplete reports whether more input would let decoding succeed.
func (e *MalformedPacketError) Incomplete() bool {
	return errors.Is(e.err, ErrIncompletePacket)
}

func malformed(reason string) error {
	return &MalformedPacketError{err: ErrMalformedPacket, Reason: reason}
}

func incomplete(have, need int) error {
	return &MalformedPacketError{err: ErrIncompletePacket, Reason: "need more data", Have: have, Need: need}
}

// EncodingError reports caller data that the wire format cannot carry,
// such as a topic longer than 65535 bytes.
type EncodingError struct {
	err    error
	Field  string
	Length int
}

func (e *EncodingError) Error() string {
	return "cannot encode " + e.Field + ": " + e.err.Error()
}

func (e *EncodingError) Unwrap() []error { return []error{ErrEncoding, e.err} }

// PublishError reports a broker acknowledgement carrying an error reason.
type PublishError struct {
	err        error
	Topic      string
	PacketID   uint16
	ReasonCode ReasonCode
}

func (e *PublishError) Error() string {
	return "publish failed: " + e.ReasonCode.String()
}

func (e *PublishError) Unwrap() error { return e.err }

func NewPublishError(topic string, packetID uint16, reason ReasonCode) *PublishError {
	return &PublishError{err: ErrPublishFailed, Topic: topic, PacketID: packetID, ReasonCode: reason}
}

// PublishTimeoutError reports a QoS 1 or 2 publish that exhausted its retries.
type PublishTimeoutError struct {
	err      error
	Topic    string
	PacketID uint16
	Attempts int
}

func (e *PublishTimeoutError) Error() string {
	return fmt.Sprintf("publish %d on %q not acknowledged after %d attempts", e.PacketID, e.Topic, e.Attempts)
}

func (e *PublishTimeoutError) Unwrap() error { return e.err }

func NewPublishTimeoutError(topic string, packetID uint16, attempts int) *PublishTimeoutError {
	return &PublishTimeoutError{err: ErrPublishTimeout, Topic: topic, PacketID: packetID, Attempts: attempts}
}

// SubscribeError reports a filter the broker refused.
type SubscribeError struct {
	err        error
	Filter     string
	ReasonCode ReasonCode
}

func (e *SubscribeError) Error() string {
	return fmt.Sprintf("subscribe %q failed: %s", e.Filter, e.ReasonCode)
}

func (e *SubscribeError) Unwrap() error { return e.err }

func NewSubscribeError(filter string, reason ReasonCode) *SubscribeError {
	return &SubscribeError{err: ErrSubscribeFailed, Filter: filter, ReasonCode: reason}
}

// RequestTimeoutError reports a request whose response never arrived.
type RequestTimeoutError struct {
	err             error
	ResponseTopic   string
	CorrelationData []byte
}

func (e *RequestTimeoutError) Error() string {
	return fmt.Sprintf("no response on %q for correlation %x", e.ResponseTopic, e.CorrelationData)
}

func (e *RequestTimeoutError) Unwrap() error { return e.err }

func NewRequestTimeoutError(responseTopic string, correlation []byte) *RequestTimeoutError {
	return &RequestTimeoutError{err: ErrRequestTimeout, ResponseTopic: responseTopic, CorrelationData: correlation}
}

// InvalidFilterError reports a topic filter rejected before any wire traffic.
type InvalidFilterError struct {
	err    error
	Filter string
	Reason string
}

func (e *InvalidFilterError) Error() string {
	return fmt.Sprintf("invalid topic filter %q: %s", e.Filter, e.Reason)
}

func (e *InvalidFilterError) Unwrap() error { return e.err }

func NewInvalidFilterError(filter, reason string) *InvalidFilterError {
	return &InvalidFilterError{err: ErrInvalidFilter, Filter: filter, Reason: reason}
}

// DuplicateCorrelationError reports a request reusing pending correlation data.
type DuplicateCorrelationError struct {
	err             error
	CorrelationData []byte
}

func (e *DuplicateCorrelationError) Error() string {
	return fmt.Sprintf("correlation %x already pending", e.CorrelationData)
}

func (e *DuplicateCorrelationError) Unwrap() error { return e.err }

func NewDuplicateCorrelationError(correlation []byte) *DuplicateCorrelationError {
	return &DuplicateCorrelationError{err: ErrDuplicateCorrelation, CorrelationData: correlation}
}
