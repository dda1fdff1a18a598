package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := c.Socket.validate(); err != nil {
		return err
	}

	for i, t := range c.Topics {
		if t.Topic == "" {
			return fmt.Errorf("topics[%d].topic is required", i)
		}
		for j, e := range t.Events {
			if e == "" {
				return fmt.Errorf("topics[%d].events[%d] is empty", i, j)
			}
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	if c.Recorder.Enabled {
		if c.Recorder.BatchSize < 1 {
			return errors.New("recorder.batch_size must be >= 1")
		}
		if c.Recorder.BufferSize < 1 {
			return errors.New("recorder.buffer_size must be >= 1")
		}
		if err := c.Recorder.Database.validate("recorder.database"); err != nil {
			return err
		}
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (s *SocketConfig) validate() error {
	if s.URL == "" && s.Host == "" {
		return errors.New("socket.url or socket.host is required")
	}
	if s.URL != "" {
		if _, err := s.Endpoint(); err != nil {
			return fmt.Errorf("socket.url: %w", err)
		}
	}
	switch s.Protocol {
	case "", "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("socket.protocol must be http, https, ws or wss, got %q", s.Protocol)
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("socket.port must be between 0 and 65535, got %d", s.Port)
	}
	if s.HeartbeatInterval <= 0 {
		return errors.New("socket.heartbeat_interval must be > 0")
	}
	if s.ReconnectInterval <= 0 {
		return errors.New("socket.reconnect_interval must be > 0")
	}
	if s.FlushInterval <= 0 {
		return errors.New("socket.flush_interval must be > 0")
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
