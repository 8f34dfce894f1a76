// Package channel maintains a resilient message channel to the backend.
//
// A Manager owns one logical connection. It dials, delivers inbound frames
// to handlers in arrival order, sends periodic heartbeats and reconnects
// with exponential backoff until its retry budget runs out. All state
// transitions happen on a single event loop goroutine; the read and write
// pumps of each connection only post events to it.
package channel

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"pkt.systems/pslog"

	"github.com/pseudocoder/inkwell/internal/clock"
	apperrors "github.com/pseudocoder/inkwell/internal/errors"
	"github.com/pseudocoder/inkwell/internal/protocol"
)

// Option customizes a Manager.
type Option func(*Manager)

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithClock replaces the wall clock used for backoff and heartbeat timers.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l pslog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

type eventKind int

const (
	evDialed eventKind = iota
	evInbound
	evLost
	evReconnect
	evHeartbeat
)

type event struct {
	kind eventKind
	gen  uint64
	id   string
	conn Conn
	data []byte
	err  error
}

// link is the live side of one connection attempt.
type link struct {
	gen  uint64
	id   string
	conn Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (l *link) enqueue(data []byte) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.send <- data:
		return true
	default:
		return false
	}
}

// shutdown stops both pumps exactly once.
func (l *link) shutdown() {
	l.once.Do(func() {
		close(l.done)
		l.conn.Close()
	})
}

// Manager is a handle to one managed channel.
type Manager struct {
	endpoint string
	cfg      Config
	handlers Handlers
	dialer   Dialer
	clock    clock.Clock
	log      pslog.Logger
	observer Observer
	limiter  *rate.Limiter

	events    chan event
	closing   chan struct{}
	closeOnce sync.Once
	stopped   chan struct{}

	dialCtx    context.Context
	cancelDial context.CancelFunc

	statusMu sync.RWMutex
	status   Status

	outMu sync.Mutex
	out   *link

	// Owned by the event loop.
	retryCount int
	backoff    *backoff.ExponentialBackOff
	gen        uint64
	current    *link
	reconnect  clock.Timer
	heartbeat  clock.Timer
}

// Open starts managing a channel to endpoint and returns immediately. The
// first status event (Connecting) is delivered from the event loop.
func Open(endpoint string, handlers Handlers, cfg Config, opts ...Option) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		endpoint: endpoint,
		cfg:      cfg,
		handlers: handlers,
		dialer:   &WebSocketDialer{},
		clock:    clock.Real{},
		observer: nopObserver{},
		limiter:  rate.NewLimiter(rate.Limit(cfg.SendRate), cfg.SendBurst),
		events:   make(chan event, 64),
		closing:  make(chan struct{}),
		stopped:  make(chan struct{}),
		status:   Connecting,
		backoff:  newBackoff(cfg),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = pslog.Ctx(context.Background())
	}
	m.log = m.log.With("endpoint", endpoint)
	m.dialCtx, m.cancelDial = context.WithCancel(context.Background())

	go m.run()
	return m
}

// OpenSession opens the session channel for sessionID on host.
func OpenSession(host, sessionID string, secure bool, handlers Handlers, cfg Config, opts ...Option) *Manager {
	return Open(protocol.SessionEndpoint(host, sessionID, secure), handlers, cfg, opts...)
}

// OpenTrace opens the cross-session trace channel on host.
func OpenTrace(host string, secure bool, handlers Handlers, cfg Config, opts ...Option) *Manager {
	return Open(protocol.TraceEndpoint(host, secure), handlers, cfg, opts...)
}

// Endpoint returns the URL the manager connects to.
func (m *Manager) Endpoint() string { return m.endpoint }

// Status returns the current connection state.
func (m *Manager) Status() Status {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.statusMu.Lock()
	m.status = s
	m.statusMu.Unlock()
}

// Done is closed once the event loop has stopped, either after Close or
// after retries were exhausted.
func (m *Manager) Done() <-chan struct{} { return m.stopped }

// Send encodes v as JSON and queues it on the open connection. Sending is
// fire-and-forget: nil means the frame was queued, not delivered.
func (m *Manager) Send(v any) error {
	if m.isClosing() {
		return apperrors.ChannelClosed()
	}

	m.outMu.Lock()
	l := m.out
	m.outMu.Unlock()
	if l == nil {
		return apperrors.NotConnected(string(m.Status()))
	}
	if !m.limiter.Allow() {
		return apperrors.RateLimited()
	}

	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeChannelSendFailed, "encode outbound frame", err)
	}
	if !l.enqueue(data) {
		return apperrors.New(apperrors.CodeChannelSendFailed, "outbound queue full or connection closing")
	}
	return nil
}

// Close stops the channel: the open connection is closed, pending reconnect
// and heartbeat timers are cancelled, and no further callbacks are made once
// the running handler, if any, returns. Close is idempotent and never blocks,
// so handlers may call it. Wait on Done, or use Shutdown, to know the event
// loop has stopped.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		close(m.closing)
		m.cancelDial()
		m.log.Debug("channel close requested")
	})
	return nil
}

// Shutdown closes the channel and waits until the event loop has stopped or
// ctx is done. It must not be called from a handler: the loop cannot stop
// before the handler returns.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.Close()
	select {
	case <-m.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) isClosing() bool {
	select {
	case <-m.closing:
		return true
	default:
		return false
	}
}

// post delivers an event to the loop. It reports false once the loop has
// stopped.
func (m *Manager) post(ev event) bool {
	select {
	case <-m.stopped:
		return false
	default:
	}
	select {
	case m.events <- ev:
	case <-m.stopped:
		return false
	}
	// The loop may have stopped and drained between the checks above.
	select {
	case <-m.stopped:
		m.drain()
	default:
	}
	return true
}

func (m *Manager) run() {
	defer m.drain()
	defer close(m.stopped)
	defer m.teardown()

	m.connect()
	for {
		if m.isClosing() || m.Status() == Disconnected {
			return
		}
		select {
		case <-m.closing:
			return
		case ev := <-m.events:
			if m.isClosing() {
				if ev.conn != nil {
					ev.conn.Close()
				}
				return
			}
			m.handle(ev)
		}
	}
}

func (m *Manager) teardown() {
	m.stopReconnect()
	m.stopHeartbeat()
	m.dropLink()
	m.cancelDial()
	if m.isClosing() {
		m.setStatus(Disconnected)
		m.log.Info("channel closed")
	}
}

// drain closes transports from dial results that were queued when the loop
// stopped.
func (m *Manager) drain() {
	for {
		select {
		case ev := <-m.events:
			if ev.conn != nil {
				ev.conn.Close()
			}
		default:
			return
		}
	}
}

func (m *Manager) handle(ev event) {
	switch ev.kind {
	case evDialed:
		m.handleDialed(ev)
	case evInbound:
		if ev.gen == m.gen && m.current != nil {
			m.deliver(ev.data)
		}
	case evLost:
		if ev.gen == m.gen && m.current != nil {
			m.log.Warn("channel connection lost", "attempt_id", ev.id, "err", ev.err)
			m.fail(apperrors.ConnectionLost(m.endpoint, ev.err))
		}
	case evReconnect:
		if ev.gen == m.gen && m.Status() == Reconnecting {
			m.reconnect = nil
			m.connect()
		}
	case evHeartbeat:
		if ev.gen == m.gen && m.current != nil && m.Status() == Connected {
			m.heartbeat = nil
			m.current.enqueue(protocol.HeartbeatProbe(m.clock.Now()))
			m.armHeartbeat()
		}
	}
}

// connect starts a dial for a new generation.
func (m *Manager) connect() {
	m.gen++
	gen := m.gen
	id := uuid.NewString()

	m.log.Debug("channel dialing", "attempt_id", id, "attempt", m.retryCount)
	m.transition(StatusEvent{Status: Connecting, AttemptID: id, Attempt: m.retryCount})
	if m.isClosing() {
		return
	}

	go func() {
		conn, err := m.dialer.Dial(m.dialCtx, m.endpoint)
		if !m.post(event{kind: evDialed, gen: gen, id: id, conn: conn, err: err}) && conn != nil {
			conn.Close()
		}
	}()
}

func (m *Manager) handleDialed(ev event) {
	if ev.gen != m.gen || m.Status() != Connecting {
		if ev.conn != nil {
			ev.conn.Close()
		}
		return
	}
	if ev.err != nil {
		m.log.Warn("channel dial failed", "attempt_id", ev.id, "attempt", m.retryCount, "err", ev.err)
		m.fail(apperrors.DialFailed(m.endpoint, ev.err))
		return
	}

	l := &link{
		gen:  ev.gen,
		id:   ev.id,
		conn: ev.conn,
		send: make(chan []byte, m.cfg.SendQueue),
		done: make(chan struct{}),
	}
	m.current = l
	m.outMu.Lock()
	m.out = l
	m.outMu.Unlock()
	go m.readPump(l)
	go m.writePump(l)

	m.retryCount = 0
	m.backoff.Reset()
	m.armHeartbeat()

	m.log.Info("channel connected", "attempt_id", ev.id)
	m.transition(StatusEvent{Status: Connected, AttemptID: ev.id})
}

// fail tears down the current connection and schedules a reconnect, or
// reports the terminal Disconnected state once the budget is spent.
func (m *Manager) fail(cause error) {
	m.stopHeartbeat()
	m.dropLink()

	if m.retryCount >= m.cfg.MaxRetries {
		exhausted := apperrors.RetriesExhausted(m.endpoint, m.retryCount)
		m.log.Error("channel retries exhausted", "attempts", m.retryCount, "err", cause)
		m.transition(StatusEvent{Status: Disconnected, Attempt: m.retryCount, Err: exhausted})
		return
	}
	if m.isClosing() {
		return
	}

	delay := m.backoff.NextBackOff()
	m.retryCount++
	gen := m.gen
	m.reconnect = m.clock.AfterFunc(delay, func() {
		m.post(event{kind: evReconnect, gen: gen})
	})

	m.log.Info("channel reconnect scheduled", "attempt", m.retryCount, "delay", delay.String())
	m.observer.ReconnectScheduled(m.endpoint, m.retryCount, delay)
	m.transition(StatusEvent{Status: Reconnecting, Attempt: m.retryCount, Delay: delay})
}

func (m *Manager) deliver(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		m.protocolError(err)
		return
	}
	m.log.Trace("channel message", "type", string(msg.Type()))
	if m.handlers.OnMessage != nil {
		m.handlers.OnMessage(msg)
	}
}

func (m *Manager) protocolError(err error) {
	m.observer.ProtocolError(m.endpoint, err)
	if m.handlers.OnError == nil {
		m.log.Error("channel protocol error", "err", err)
		return
	}
	m.log.Warn("channel protocol error", "err", err)
	m.handlers.OnError(err)
}

// transition records and announces a state change. Nothing is announced
// once Close has been requested.
func (m *Manager) transition(ev StatusEvent) {
	m.setStatus(ev.Status)
	if m.isClosing() {
		return
	}
	ev.Endpoint = m.endpoint
	ev.At = m.clock.Now()
	m.observer.StatusChanged(ev)
	if m.handlers.OnStatus != nil {
		m.handlers.OnStatus(ev)
	}
}

func (m *Manager) armHeartbeat() {
	m.stopHeartbeat()
	if m.isClosing() {
		return
	}
	gen := m.gen
	m.heartbeat = m.clock.AfterFunc(m.cfg.HeartbeatInterval, func() {
		m.post(event{kind: evHeartbeat, gen: gen})
	})
}

func (m *Manager) stopHeartbeat() {
	if m.heartbeat != nil {
		m.heartbeat.Stop()
		m.heartbeat = nil
	}
}

func (m *Manager) stopReconnect() {
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
}

func (m *Manager) dropLink() {
	if m.current == nil {
		return
	}
	m.outMu.Lock()
	m.out = nil
	m.outMu.Unlock()
	m.current.shutdown()
	m.current = nil
}

// readPump forwards inbound frames to the loop until the transport fails.
func (m *Manager) readPump(l *link) {
	for {
		data, err := l.conn.ReadMessage()
		if err != nil {
			select {
			case <-l.done:
			default:
				m.post(event{kind: evLost, gen: l.gen, id: l.id, err: err})
			}
			return
		}
		if !m.post(event{kind: evInbound, gen: l.gen, id: l.id, data: data}) {
			return
		}
	}
}

// writePump drains the outbound queue. A write error is reported as a lost
// connection.
func (m *Manager) writePump(l *link) {
	for {
		select {
		case <-l.done:
			return
		case data := <-l.send:
			if err := l.conn.WriteMessage(data); err != nil {
				select {
				case <-l.done:
				default:
					m.post(event{kind: evLost, gen: l.gen, id: l.id, err: err})
				}
				return
			}
		}
	}
}
