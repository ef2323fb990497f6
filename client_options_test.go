package mqttier

import (
	"crypto/tls"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultOptions(t *testing.T) {
	o := applyOptions()

	assert.True(t, strings.HasPrefix(o.clientID, "mqttier-"))
	assert.Len(t, o.clientID, len("mqttier-")+8)
	assert.Equal(t, uint16(60), o.keepAlive)
	assert.True(t, o.cleanStart)
	assert.True(t, o.autoReconnect)
	assert.Equal(t, 10, o.maxReconnects)
	assert.Equal(t, time.Second, o.reconnectBackoff)
	assert.Equal(t, 60*time.Second, o.maxBackoff)
	assert.Equal(t, 5*time.Second, o.retryInterval)
	assert.Equal(t, 3, o.maxRetries)
	assert.Equal(t, 30*time.Second, o.requestTimeout)
	assert.Equal(t, uint32(MaxPacketSizeDefault), o.maxPacketSize)
	assert.Zero(t, o.topicAliasMaximum)
	assert.IsType(t, &MemoryStore{}, o.store)
	assert.IsType(t, &NoOpLogger{}, o.logger)
}

func TestOptionsApply(t *testing.T) {
	tlsConfig := &tls.Config{ServerName: "broker"}
	dialer := NewMockDialer()
	strategy := func(int, time.Duration, error) time.Duration { return time.Millisecond }

	o := applyOptions(
		WithClientID("device-1"),
		WithCredentials("user", "pass"),
		WithKeepAlive(15),
		WithCleanStart(false),
		WithTLS(tlsConfig),
		WithDialer(dialer),
		WithProxy("socks5://proxy:1080"),
		WithConnectTimeout(time.Second),
		WithWriteTimeout(2*time.Second),
		WithWill("will/topic", []byte("bye"), true, 1),
		WithPresence(),
		WithAutoReconnect(false),
		WithMaxReconnects(0),
		WithReconnectBackoff(10*time.Millisecond),
		WithMaxBackoff(time.Second),
		WithBackoffStrategy(strategy),
		WithRetryInterval(time.Second),
		WithMaxRetries(5),
		WithRequestTimeout(time.Minute),
		WithMaxPacketSize(1<<30),
		WithSessionExpiryInterval(600),
		WithReceiveMaximum(32),
		WithTopicAliasMaximum(8),
		WithUserProperties(StringPair{Key: "a", Value: "1"}),
		WithUserProperties(StringPair{Key: "b", Value: "2"}),
		WithServers("tcp://a:1883"),
		WithServers("tcp://b:1883"),
		WithPublishRateLimit(10, 0),
	)

	assert.Equal(t, "device-1", o.clientID)
	assert.Equal(t, "user", o.username)
	assert.Equal(t, []byte("pass"), o.password)
	assert.Equal(t, uint16(15), o.keepAlive)
	assert.False(t, o.cleanStart)
	assert.Same(t, tlsConfig, o.tlsConfig)
	assert.Equal(t, Dialer(dialer), o.dialer)
	assert.Equal(t, "socks5://proxy:1080", o.proxyURL)
	assert.Equal(t, time.Second, o.connectTimeout)
	assert.Equal(t, 2*time.Second, o.writeTimeout)
	assert.Equal(t, "will/topic", o.willTopic)
	assert.Equal(t, []byte("bye"), o.willPayload)
	assert.True(t, o.willRetain)
	assert.Equal(t, byte(1), o.willQoS)
	assert.True(t, o.presence)
	assert.False(t, o.autoReconnect)
	assert.Zero(t, o.maxReconnects)
	assert.Equal(t, 10*time.Millisecond, o.reconnectBackoff)
	assert.Equal(t, time.Second, o.maxBackoff)
	assert.NotNil(t, o.backoffStrategy)
	assert.Equal(t, time.Second, o.retryInterval)
	assert.Equal(t, 5, o.maxRetries)
	assert.Equal(t, time.Minute, o.requestTimeout)
	assert.Equal(t, uint32(MaxPacketSizeProtocol), o.maxPacketSize)
	assert.Equal(t, uint32(600), o.sessionExpiryInterval)
	assert.Equal(t, uint16(32), o.receiveMaximum)
	assert.Equal(t, uint16(8), o.topicAliasMaximum)
	assert.Equal(t, []StringPair{{"a", "1"}, {"b", "2"}}, o.userProperties)
	assert.Equal(t, []string{"tcp://a:1883", "tcp://b:1883"}, o.servers)
	assert.Equal(t, 1, o.limiter.Burst())
}

func TestWithLoggerIgnoresNil(t *testing.T) {
	o := applyOptions(WithLogger(nil))
	assert.IsType(t, &NoOpLogger{}, o.logger)
}

func TestGeneratedClientIDsDiffer(t *testing.T) {
	assert.NotEqual(t, applyOptions().clientID, applyOptions().clientID)
}
