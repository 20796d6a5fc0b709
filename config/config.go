// Package config holds the library-wide options enumerated in spec.md §6.
package config

import (
	"fmt"
	"time"

	"github.com/ByteAshen/cdpgo/errdefs"
)

// Config is the complete, flat option set for the core. There is no other
// configuration surface; spec.md §6 calls this list "complete for the core".
type Config struct {
	ConnectionTimeout time.Duration
	CommandTimeout    time.Duration

	// UseBackgroundThread mirrors spec.md §6: when false, the receive loop
	// only runs when the caller invokes Poll. cdpgo's session package always
	// runs a dedicated goroutine (Go has no cheaper alternative to a
	// goroutine-backed loop); UseBackgroundThread=false is accepted for
	// interface parity but is currently a no-op, documented in DESIGN.md.
	UseBackgroundThread bool

	EnableHeartbeat   bool
	HeartbeatInterval time.Duration

	AutoReconnect              bool
	ReconnectDelay             time.Duration
	ReconnectMaxDelay          time.Duration
	ReconnectMaxAttempts       int
	ReconnectBackoffMultiplier float64

	AutoEnableDomains bool
}

// Option mutates a Config under construction.
type Option func(*Config)

// New builds a Config from spec.md §6's defaults, applying opts in order.
func New(opts ...Option) (Config, error) {
	c := Config{
		ConnectionTimeout:          30 * time.Second,
		CommandTimeout:             30 * time.Second,
		UseBackgroundThread:        true,
		EnableHeartbeat:            true,
		HeartbeatInterval:          15 * time.Second,
		AutoReconnect:              true,
		ReconnectDelay:             time.Second,
		ReconnectMaxDelay:          30 * time.Second,
		ReconnectMaxAttempts:       0,
		ReconnectBackoffMultiplier: 2.0,
		AutoEnableDomains:          false,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c, c.validate()
}

func (c Config) validate() error {
	if c.HeartbeatInterval < time.Second {
		return fmt.Errorf("heartbeatIntervalMs must be >= 1000: %w", errdefs.ErrInvalidConfig)
	}
	if c.ReconnectDelay < 100*time.Millisecond {
		return fmt.Errorf("reconnectDelayMs must be >= 100: %w", errdefs.ErrInvalidConfig)
	}
	if c.ReconnectMaxAttempts < 0 {
		return fmt.Errorf("reconnectMaxAttempts must be >= 0: %w", errdefs.ErrInvalidConfig)
	}
	if c.ReconnectBackoffMultiplier <= 0 {
		return fmt.Errorf("reconnectBackoffMultiplier must be > 0: %w", errdefs.ErrInvalidConfig)
	}
	return nil
}

func WithConnectionTimeout(d time.Duration) Option { return func(c *Config) { c.ConnectionTimeout = d } }
func WithCommandTimeout(d time.Duration) Option    { return func(c *Config) { c.CommandTimeout = d } }
func WithBackgroundThread(enabled bool) Option {
	return func(c *Config) { c.UseBackgroundThread = enabled }
}
func WithHeartbeat(enabled bool, interval time.Duration) Option {
	return func(c *Config) { c.EnableHeartbeat = enabled; c.HeartbeatInterval = interval }
}
func WithAutoReconnect(enabled bool) Option { return func(c *Config) { c.AutoReconnect = enabled } }
func WithReconnectPolicy(delay, maxDelay time.Duration, maxAttempts int, multiplier float64) Option {
	return func(c *Config) {
		c.ReconnectDelay = delay
		c.ReconnectMaxDelay = maxDelay
		c.ReconnectMaxAttempts = maxAttempts
		c.ReconnectBackoffMultiplier = multiplier
	}
}
func WithAutoEnableDomains(enabled bool) Option {
	return func(c *Config) { c.AutoEnableDomains = enabled }
}
