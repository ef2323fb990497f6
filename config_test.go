package mqttier

import (
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MQTTIER_SERVERS", "MQTTIER_CLIENT_ID", "MQTTIER_USERNAME", "MQTTIER_PASSWORD",
		"MQTTIER_PROXY", "MQTTIER_LOG_LEVEL", "MQTTIER_SESSION_PATH",
	} {
		t.Setenv(key, "")
	}
}

func TestParseConfigDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := ParseConfig([]byte("client_id: sensor-1\n"))
	require.NoError(t, err)

	assert.Equal(t, "sensor-1", cfg.ClientID)
	assert.Equal(t, []string{"tcp://localhost:1883"}, cfg.Servers)
	assert.Equal(t, 60*time.Second, cfg.GetKeepAlive())
	assert.Equal(t, 30*time.Second, cfg.GetRequestTimeout())
	assert.Equal(t, 1000, cfg.Reconnect.InitialDelay)
	assert.Equal(t, 60000, cfg.Reconnect.MaxDelay)
	assert.Equal(t, 10, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 5, cfg.Publish.RetryInterval)
	assert.Equal(t, 3, cfg.Publish.MaxRetries)
	assert.Equal(t, SessionStoreMemory, cfg.Session.Store)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Color)
	assert.Nil(t, cfg.CleanStart)
	assert.Nil(t, cfg.Will)
}

func TestLoadConfig(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "mqttier.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
servers:
  - tls://broker-a:8883
  - tls://broker-b:8883
client_id: gateway
username: alice
password: secret
keep_alive: 30
clean_start: false
session_expiry: 3600
proxy: env
presence: true
reconnect:
  enabled: true
  initial_delay: 500
  max_delay: 5000
  max_attempts: 0
publish:
  retry_interval: 2
  max_retries: 1
  rate_limit: 50
  rate_burst: 10
will:
  topic: gateway/status
  payload: gone
  qos: 1
  retain: true
session:
  store: sqlite
  path: /var/lib/mqttier/session.db
logging:
  level: debug
  color: false
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"tls://broker-a:8883", "tls://broker-b:8883"}, cfg.Servers)
	assert.Equal(t, "gateway", cfg.ClientID)
	assert.Equal(t, 30, cfg.KeepAlive)
	require.NotNil(t, cfg.CleanStart)
	assert.False(t, *cfg.CleanStart)
	assert.Equal(t, ProxyEnvironment, cfg.Proxy)
	assert.Equal(t, 0, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 50.0, cfg.Publish.RateLimit)
	require.NotNil(t, cfg.Will)
	assert.Equal(t, "gateway/status", cfg.Will.Topic)
	assert.Equal(t, byte(1), cfg.Will.QoS)
	assert.Equal(t, SessionStoreSQLite, cfg.Session.Store)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Color)
}

func TestLoadConfigErrors(t *testing.T) {
	clearConfigEnv(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")

	_, err = ParseConfig([]byte("servers: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestConfigEnvOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("MQTTIER_SERVERS", "tcp://a:1883,tcp://b:1883")
	t.Setenv("MQTTIER_CLIENT_ID", "from-env")
	t.Setenv("MQTTIER_USERNAME", "bob")
	t.Setenv("MQTTIER_PASSWORD", "hunter2")
	t.Setenv("MQTTIER_PROXY", "socks5://proxy:1080")
	t.Setenv("MQTTIER_LOG_LEVEL", "warn")
	t.Setenv("MQTTIER_SESSION_PATH", "/tmp/session.db")

	cfg, err := ParseConfig([]byte("client_id: from-file\nservers: [tcp://file:1883]\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"tcp://a:1883", "tcp://b:1883"}, cfg.Servers)
	assert.Equal(t, "from-env", cfg.ClientID)
	assert.Equal(t, "bob", cfg.Username)
	assert.Equal(t, "hunter2", cfg.Password)
	assert.Equal(t, "socks5://proxy:1080", cfg.Proxy)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "/tmp/session.db", cfg.Session.Path)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"no servers", func(c *Config) { c.Servers = nil }, "servers is required"},
		{"server without scheme", func(c *Config) { c.Servers = []string{"broker:1883"} }, `server "broker:1883" must be a URL`},
		{"keep alive range", func(c *Config) { c.KeepAlive = 70000 }, "keep_alive must be between 0 and 65535"},
		{"negative expiry", func(c *Config) { c.SessionExpiry = -1 }, "session_expiry must not be negative"},
		{"negative delay", func(c *Config) { c.Reconnect.MaxDelay = -1 }, "reconnect delays must not be negative"},
		{"negative attempts", func(c *Config) { c.Reconnect.MaxAttempts = -1 }, "reconnect.max_attempts must not be negative"},
		{"negative retries", func(c *Config) { c.Publish.MaxRetries = -1 }, "publish.max_retries must not be negative"},
		{"will wildcard", func(c *Config) { c.Will = &WillConfig{Topic: "a/#"} }, "will.topic"},
		{"will qos", func(c *Config) { c.Will = &WillConfig{Topic: "a", QoS: 3} }, "will.qos must be 0, 1 or 2"},
		{"cert without key", func(c *Config) { c.TLS.CertFile = "client.pem" }, "tls.cert_file and tls.key_file must be set together"},
		{"sqlite without path", func(c *Config) { c.Session.Store = SessionStoreSQLite }, "session.path is required"},
		{"unknown store", func(c *Config) { c.Session.Store = "redis" }, `session.store "redis" must be memory or sqlite`},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "configuration errors: ")
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("all errors reported", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Servers = nil
		cfg.KeepAlive = -1
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "servers is required; keep_alive must be between 0 and 65535")
	})

	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, DefaultConfig().Validate())
	})
}

func TestConfigOptions(t *testing.T) {
	clean := false
	enabled := false
	cfg := DefaultConfig()
	cfg.Servers = []string{"tcp://a:1883"}
	cfg.ClientID = "cfg-client"
	cfg.Username = "alice"
	cfg.Password = "secret"
	cfg.KeepAlive = 15
	cfg.CleanStart = &clean
	cfg.SessionExpiry = 120
	cfg.Proxy = "http://proxy:8080"
	cfg.Presence = true
	cfg.Reconnect = ReconnectConfig{Enabled: &enabled, InitialDelay: 250, MaxDelay: 2000, MaxAttempts: 4}
	cfg.Publish = PublishConfig{RetryInterval: 7, MaxRetries: 2, RateLimit: 10, RateBurst: 5}
	cfg.Will = &WillConfig{Topic: "a/status", Payload: "bye", QoS: 1, Retain: true}

	opts, err := cfg.Options()
	require.NoError(t, err)
	o := applyOptions(opts...)

	assert.Equal(t, []string{"tcp://a:1883"}, o.servers)
	assert.Equal(t, "cfg-client", o.clientID)
	assert.Equal(t, "alice", o.username)
	assert.Equal(t, []byte("secret"), o.password)
	assert.Equal(t, uint16(15), o.keepAlive)
	assert.False(t, o.cleanStart)
	assert.Equal(t, uint32(120), o.sessionExpiryInterval)
	assert.Equal(t, "http://proxy:8080", o.proxyURL)
	assert.True(t, o.presence)
	assert.False(t, o.autoReconnect)
	assert.Equal(t, 250*time.Millisecond, o.reconnectBackoff)
	assert.Equal(t, 2*time.Second, o.maxBackoff)
	assert.Equal(t, 4, o.maxReconnects)
	assert.Equal(t, 7*time.Second, o.retryInterval)
	assert.Equal(t, 2, o.maxRetries)
	assert.Equal(t, 10*time.Second, o.connectTimeout)
	assert.Equal(t, 30*time.Second, o.requestTimeout)
	require.NotNil(t, o.limiter)
	assert.Equal(t, 5, o.limiter.Burst())
	assert.Equal(t, "a/status", o.willTopic)
	assert.Equal(t, []byte("bye"), o.willPayload)
	assert.True(t, o.willRetain)
	assert.Equal(t, byte(1), o.willQoS)
	assert.Nil(t, o.tlsConfig)
}

func TestConfigTLS(t *testing.T) {
	cert, _ := generateTestCertificate(t)
	dir := t.TempDir()
	caFile := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(caFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate[0]}), 0o600))

	t.Run("CA and server name", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.TLS = TLSConfig{CAFile: caFile, ServerName: "broker.local"}

		opts, err := cfg.Options()
		require.NoError(t, err)
		o := applyOptions(opts...)
		require.NotNil(t, o.tlsConfig)
		assert.NotNil(t, o.tlsConfig.RootCAs)
		assert.Equal(t, "broker.local", o.tlsConfig.ServerName)
	})

	t.Run("missing CA file", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.TLS = TLSConfig{CAFile: filepath.Join(dir, "missing.pem")}
		_, err := cfg.Options()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reading CA file")
	})

	t.Run("CA file without certificates", func(t *testing.T) {
		junk := filepath.Join(dir, "junk.pem")
		require.NoError(t, os.WriteFile(junk, []byte("not a certificate"), 0o600))

		cfg := DefaultConfig()
		cfg.TLS = TLSConfig{CAFile: junk}
		_, err := cfg.Options()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no certificates found")
	})

	t.Run("bad client key pair", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.TLS = TLSConfig{CertFile: caFile, KeyFile: filepath.Join(dir, "missing.key")}
		_, err := cfg.Options()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "loading client certificate")
	})
}
