package channel

import (
	"time"

	"github.com/pseudocoder/inkwell/internal/protocol"
)

// Status is the connection state reported to consumers.
type Status string

const (
	Connecting   Status = "connecting"
	Connected    Status = "connected"
	Reconnecting Status = "reconnecting"
	Disconnected Status = "disconnected"
)

// StatusEvent describes one state transition.
type StatusEvent struct {
	Status   Status
	Endpoint string

	// AttemptID identifies the connection attempt the event belongs to.
	AttemptID string

	// Attempt is the consecutive failure count after the transition.
	Attempt int

	// Delay is set on Reconnecting: the wait before the next attempt.
	Delay time.Duration

	// Err is set on the terminal Disconnected event and carries a
	// channel.retries_exhausted error.
	Err error

	At time.Time
}

// Terminal reports whether no further reconnects will be attempted.
func (e StatusEvent) Terminal() bool {
	return e.Status == Disconnected
}

// Handlers receive channel callbacks. All handlers run on the manager's
// event loop goroutine, one at a time, in the order events occurred.
// Any of them may be nil.
type Handlers struct {
	OnMessage func(protocol.Message)
	OnStatus  func(StatusEvent)

	// OnError receives protocol errors (undecodable or unknown frames).
	// When nil, protocol errors are logged.
	OnError func(error)
}

// Observer receives lifecycle signals for metrics. Methods are called from
// the event loop goroutine and must not block.
type Observer interface {
	StatusChanged(ev StatusEvent)
	ReconnectScheduled(endpoint string, attempt int, delay time.Duration)
	ProtocolError(endpoint string, err error)
}

type nopObserver struct{}

func (nopObserver) StatusChanged(StatusEvent)                     {}
func (nopObserver) ReconnectScheduled(string, int, time.Duration) {}
func (nopObserver) ProtocolError(string, error)                   {}
