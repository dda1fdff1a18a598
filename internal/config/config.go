package config

import (
	"time"

	"github.com/rickgao/phx-stream/internal/endpoint"
	"github.com/rickgao/phx-stream/internal/phx"
	"github.com/rickgao/phx-stream/internal/transport"
)

// Config is the root configuration for a phxtail instance.
type Config struct {
	Socket   SocketConfig   `yaml:"socket"`
	Topics   []TopicConfig  `yaml:"topics"`
	Log      LogConfig      `yaml:"log"`
	Recorder RecorderConfig `yaml:"recorder"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// SocketConfig holds the endpoint and connection timing.
type SocketConfig struct {
	URL               string            `yaml:"url"` // Full URL; overrides host/port/path/transport/protocol
	Host              string            `yaml:"host"`
	Port              int               `yaml:"port"`
	Path              string            `yaml:"path"`
	Transport         string            `yaml:"transport"` // Path segment, e.g. "websocket"
	Protocol          string            `yaml:"protocol"`  // http, https, ws, wss
	Params            map[string]string `yaml:"params"`
	HeartbeatInterval time.Duration     `yaml:"heartbeat_interval"`
	ReconnectInterval time.Duration     `yaml:"reconnect_interval"`
	FlushInterval     time.Duration     `yaml:"flush_interval"`
	HandshakeTimeout  time.Duration     `yaml:"handshake_timeout"`
	WriteTimeout      time.Duration     `yaml:"write_timeout"`
	PingInterval      time.Duration     `yaml:"ping_interval"`
	PingTimeout       time.Duration     `yaml:"ping_timeout"`
}

// TopicConfig is a topic joined at startup.
type TopicConfig struct {
	Topic  string         `yaml:"topic"`
	Params map[string]any `yaml:"params"` // Sent as the phx_join payload
	Events []string       `yaml:"events"` // Application events to bind and record
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// RecorderConfig holds the event recorder settings.
type RecorderConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	Database      DBConfig      `yaml:"database"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// MetricsConfig holds Prometheus metrics and health server settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// Endpoint returns the socket endpoint described by the config.
func (c *SocketConfig) Endpoint() (endpoint.Endpoint, error) {
	if c.URL != "" {
		return endpoint.Parse(c.URL)
	}
	return endpoint.Endpoint{
		Host:      c.Host,
		Port:      c.Port,
		Path:      c.Path,
		Transport: c.Transport,
		Protocol:  endpoint.Scheme(c.Protocol),
		Params:    c.Params,
	}, nil
}

// PhxConfig returns the socket timing for the channel client.
func (c *SocketConfig) PhxConfig(url string) phx.Config {
	return phx.Config{
		URL:               url,
		HeartbeatInterval: c.HeartbeatInterval,
		ReconnectInterval: c.ReconnectInterval,
		FlushInterval:     c.FlushInterval,
	}
}

// WebSocketConfig returns the transport settings.
func (c *SocketConfig) WebSocketConfig() transport.WebSocketConfig {
	return transport.WebSocketConfig{
		HandshakeTimeout: c.HandshakeTimeout,
		WriteTimeout:     c.WriteTimeout,
		PingInterval:     c.PingInterval,
		PingTimeout:      c.PingTimeout,
	}
}
