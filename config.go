package mqttier

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the YAML form of the client options, used by the mqttier CLI
// and by applications that keep broker settings in a file.
type Config struct {
	Servers        []string `yaml:"servers"`
	ClientID       string   `yaml:"client_id"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	KeepAlive      int      `yaml:"keep_alive"`      // seconds
	CleanStart     *bool    `yaml:"clean_start"`     // default true
	SessionExpiry  int      `yaml:"session_expiry"`  // seconds
	ConnectTimeout int      `yaml:"connect_timeout"` // seconds
	RequestTimeout int      `yaml:"request_timeout"` // seconds
	Proxy          string   `yaml:"proxy"`
	Presence       bool     `yaml:"presence"`

	TLS       TLSConfig       `yaml:"tls"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Publish   PublishConfig   `yaml:"publish"`
	Will      *WillConfig     `yaml:"will"`
	Session   SessionConfig   `yaml:"session"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// TLSConfig holds certificate paths for tls://, wss:// and quic:// brokers.
type TLSConfig struct {
	CAFile             string `yaml:"ca_file"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	ServerName         string `yaml:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// ReconnectConfig holds the reconnect policy. Delays are in milliseconds.
type ReconnectConfig struct {
	Enabled      *bool `yaml:"enabled"`
	InitialDelay int   `yaml:"initial_delay"`
	MaxDelay     int   `yaml:"max_delay"`
	MaxAttempts  int   `yaml:"max_attempts"`
}

// PublishConfig holds QoS retry and rate limit settings.
type PublishConfig struct {
	RetryInterval int     `yaml:"retry_interval"` // seconds
	MaxRetries    int     `yaml:"max_retries"`
	RateLimit     float64 `yaml:"rate_limit"` // messages per second, 0 = unlimited
	RateBurst     int     `yaml:"rate_burst"`
}

// WillConfig is the last will message.
type WillConfig struct {
	Topic   string `yaml:"topic"`
	Payload string `yaml:"payload"`
	QoS     byte   `yaml:"qos"`
	Retain  bool   `yaml:"retain"`
}

// SessionConfig selects the in-flight store: "memory" or "sqlite".
type SessionConfig struct {
	Store string `yaml:"store"`
	Path  string `yaml:"path"`
}

// LoggingConfig controls the logger installed by the CLI.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Color bool   `yaml:"color"`
}

// Session store kinds.
const (
	SessionStoreMemory = "memory"
	SessionStoreSQLite = "sqlite"
)

// LoadConfig reads the YAML file at path, applies MQTTIER_* environment
// overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig is LoadConfig for an in-memory document.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns the configuration used for keys a file omits.
func DefaultConfig() *Config {
	return &Config{
		Servers:        []string{"tcp://localhost:1883"},
		KeepAlive:      60,
		ConnectTimeout: 10,
		RequestTimeout: 30,
		Reconnect: ReconnectConfig{
			InitialDelay: 1000,
			MaxDelay:     60000,
			MaxAttempts:  10,
		},
		Publish: PublishConfig{
			RetryInterval: 5,
			MaxRetries:    3,
		},
		Session: SessionConfig{Store: SessionStoreMemory},
		Logging: LoggingConfig{Level: "info", Color: true},
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MQTTIER_SERVERS"); v != "" {
		c.Servers = strings.Split(v, ",")
	}
	if v := os.Getenv("MQTTIER_CLIENT_ID"); v != "" {
		c.ClientID = v
	}
	if v := os.Getenv("MQTTIER_USERNAME"); v != "" {
		c.Username = v
	}
	if v := os.Getenv("MQTTIER_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("MQTTIER_PROXY"); v != "" {
		c.Proxy = v
	}
	if v := os.Getenv("MQTTIER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MQTTIER_SESSION_PATH"); v != "" {
		c.Session.Path = v
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if len(c.Servers) == 0 {
		errs = append(errs, "servers is required")
	}
	for _, s := range c.Servers {
		if !strings.Contains(s, "://") {
			errs = append(errs, fmt.Sprintf("server %q must be a URL such as tcp://host:1883", s))
		}
	}
	if c.KeepAlive < 0 || c.KeepAlive > 65535 {
		errs = append(errs, "keep_alive must be between 0 and 65535")
	}
	if c.SessionExpiry < 0 {
		errs = append(errs, "session_expiry must not be negative")
	}
	if c.Reconnect.InitialDelay < 0 || c.Reconnect.MaxDelay < 0 {
		errs = append(errs, "reconnect delays must not be negative")
	}
	if c.Reconnect.MaxAttempts < 0 {
		errs = append(errs, "reconnect.max_attempts must not be negative")
	}
	if c.Publish.MaxRetries < 0 {
		errs = append(errs, "publish.max_retries must not be negative")
	}
	if c.Will != nil {
		if err := ValidateTopicName(c.Will.Topic); err != nil {
			errs = append(errs, fmt.Sprintf("will.topic: %v", err))
		}
		if c.Will.QoS > 2 {
			errs = append(errs, "will.qos must be 0, 1 or 2")
		}
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		errs = append(errs, "tls.cert_file and tls.key_file must be set together")
	}
	switch c.Session.Store {
	case "", SessionStoreMemory:
	case SessionStoreSQLite:
		if c.Session.Path == "" {
			errs = append(errs, "session.path is required for the sqlite store")
		}
	default:
		errs = append(errs, fmt.Sprintf("session.store %q must be memory or sqlite", c.Session.Store))
	}
	if _, err := ParseLogLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Sprintf("logging.level: %v", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// GetKeepAlive returns the keep-alive as a duration.
func (c *Config) GetKeepAlive() time.Duration {
	return time.Duration(c.KeepAlive) * time.Second
}

// GetRequestTimeout returns the request timeout as a duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// Options converts the configuration into client options. The session
// store is left to the caller, which decides how to open it.
func (c *Config) Options() ([]Option, error) {
	opts := []Option{
		WithServers(c.Servers...),
		WithKeepAlive(uint16(c.KeepAlive)),
		WithConnectTimeout(time.Duration(c.ConnectTimeout) * time.Second),
		WithRequestTimeout(c.GetRequestTimeout()),
		WithRetryInterval(time.Duration(c.Publish.RetryInterval) * time.Second),
		WithMaxRetries(c.Publish.MaxRetries),
		WithReconnectBackoff(time.Duration(c.Reconnect.InitialDelay) * time.Millisecond),
		WithMaxBackoff(time.Duration(c.Reconnect.MaxDelay) * time.Millisecond),
		WithMaxReconnects(c.Reconnect.MaxAttempts),
	}

	if c.ClientID != "" {
		opts = append(opts, WithClientID(c.ClientID))
	}
	if c.Username != "" {
		opts = append(opts, WithCredentials(c.Username, c.Password))
	}
	if c.CleanStart != nil {
		opts = append(opts, WithCleanStart(*c.CleanStart))
	}
	if c.SessionExpiry > 0 {
		opts = append(opts, WithSessionExpiryInterval(uint32(c.SessionExpiry)))
	}
	if c.Reconnect.Enabled != nil {
		opts = append(opts, WithAutoReconnect(*c.Reconnect.Enabled))
	}
	if c.Proxy != "" {
		opts = append(opts, WithProxy(c.Proxy))
	}
	if c.Publish.RateLimit > 0 {
		opts = append(opts, WithPublishRateLimit(c.Publish.RateLimit, c.Publish.RateBurst))
	}
	if c.Will != nil {
		opts = append(opts, WithWill(c.Will.Topic, []byte(c.Will.Payload), c.Will.Retain, c.Will.QoS))
	}
	if c.Presence {
		opts = append(opts, WithPresence())
	}

	tlsConfig, err := c.TLS.build()
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		opts = append(opts, WithTLS(tlsConfig))
	}
	return opts, nil
}

// build returns nil when no TLS setting is present.
func (t TLSConfig) build() (*tls.Config, error) {
	if t == (TLSConfig{}) {
		return nil, nil
	}
	config := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         t.ServerName,
		InsecureSkipVerify: t.InsecureSkipVerify, //nolint:gosec
	}
	if t.CAFile != "" {
		pem, err := os.ReadFile(t.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", t.CAFile)
		}
		config.RootCAs = pool
	}
	if t.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		config.Certificates = []tls.Certificate{cert}
	}
	return config, nil
}
