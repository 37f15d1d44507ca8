package postgres

import "time"

// ClientOption configures Client.
type ClientOption func(*ClientConfig)

// ClientConfig holds Postgres pool configuration.
type ClientConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// WithDSN sets the connection string (URL or key=value form).
func WithDSN(dsn string) ClientOption {
	return func(c *ClientConfig) {
		c.DSN = dsn
	}
}

// WithMaxConnections sets max open and idle connections.
func WithMaxConnections(maxOpen, maxIdle int) ClientOption {
	return func(c *ClientConfig) {
		c.MaxOpenConns = maxOpen
		c.MaxIdleConns = maxIdle
	}
}

// WithConnMaxLifetime recycles connections after d.
func WithConnMaxLifetime(d time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.ConnMaxLifetime = d
	}
}
