package channel

import (
	"time"

	"github.com/cenkalti/backoff"
)

// Defaults applied when a Config field is zero or negative.
const (
	DefaultMaxRetries        = 6
	DefaultBaseRetryDelay    = 800 * time.Millisecond
	DefaultMaxDelay          = 8000 * time.Millisecond
	DefaultHeartbeatInterval = 20000 * time.Millisecond
	DefaultSendRate          = 20.0
	DefaultSendBurst         = 40
	DefaultSendQueue         = 64

	// retryMultiplier is the growth factor between consecutive reconnect delays.
	retryMultiplier = 1.5
)

// Config tunes reconnection, heartbeat and outbound throttling.
type Config struct {
	// MaxRetries is the number of consecutive failed attempts tolerated
	// before the manager gives up and reports Disconnected. Zero or negative
	// selects DefaultMaxRetries, so at least one reconnect is always tried.
	MaxRetries int

	// BaseRetryDelay is the delay before the first reconnect attempt.
	BaseRetryDelay time.Duration

	// MaxDelay caps every reconnect delay.
	MaxDelay time.Duration

	// HeartbeatInterval is the period between liveness probes while connected.
	HeartbeatInterval time.Duration

	// SendRate is the sustained number of outbound frames allowed per second.
	SendRate float64

	// SendBurst is the number of frames Send accepts in a burst.
	SendBurst int

	// SendQueue is the capacity of the per-connection outbound queue.
	SendQueue int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        DefaultMaxRetries,
		BaseRetryDelay:    DefaultBaseRetryDelay,
		MaxDelay:          DefaultMaxDelay,
		HeartbeatInterval: DefaultHeartbeatInterval,
		SendRate:          DefaultSendRate,
		SendBurst:         DefaultSendBurst,
		SendQueue:         DefaultSendQueue,
	}
}

// withDefaults replaces non-positive fields with their defaults.
func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BaseRetryDelay <= 0 {
		c.BaseRetryDelay = DefaultBaseRetryDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.BaseRetryDelay > c.MaxDelay {
		c.BaseRetryDelay = c.MaxDelay
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.SendRate <= 0 {
		c.SendRate = DefaultSendRate
	}
	if c.SendBurst <= 0 {
		c.SendBurst = DefaultSendBurst
	}
	if c.SendQueue <= 0 {
		c.SendQueue = DefaultSendQueue
	}
	return c
}

// newBackoff builds the reconnect schedule: the k-th delay (k from 0) is
// min(MaxDelay, BaseRetryDelay * 1.5^k), without jitter.
func newBackoff(c Config) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.BaseRetryDelay
	b.Multiplier = retryMultiplier
	b.RandomizationFactor = 0
	b.MaxInterval = c.MaxDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
