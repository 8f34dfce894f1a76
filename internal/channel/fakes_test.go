package channel

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pseudocoder/inkwell/internal/protocol"
)

var errRefused = errors.New("connection refused")

// fakeConn is an in-memory transport. Frames pushed with deliver are
// returned by ReadMessage; frames written by the manager appear on writes.
type fakeConn struct {
	inbound   chan []byte
	writes    chan []byte
	readErr   chan error
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		writes:  make(chan []byte, 16),
		readErr: make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	case err := <-c.readErr:
		return nil, err
	case <-c.closed:
		return nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return errors.New("use of closed connection")
	default:
	}
	c.writes <- data
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) deliver(frame string) { c.inbound <- []byte(frame) }

func (c *fakeConn) drop(err error) { c.readErr <- err }

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// fakeDialer hands out scripted connections. A nil entry, or an exhausted
// script, fails the dial.
type fakeDialer struct {
	mu     sync.Mutex
	script []*fakeConn
	dials  int
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.script) == 0 {
		return nil, errRefused
	}
	next := d.script[0]
	d.script = d.script[1:]
	if next == nil {
		return nil, errRefused
	}
	return next, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// recorder collects handler callbacks on channels.
type recorder struct {
	statuses chan StatusEvent
	messages chan protocol.Message
	errs     chan error
}

func newRecorder() *recorder {
	return &recorder{
		statuses: make(chan StatusEvent, 64),
		messages: make(chan protocol.Message, 64),
		errs:     make(chan error, 64),
	}
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnMessage: func(m protocol.Message) { r.messages <- m },
		OnStatus:  func(ev StatusEvent) { r.statuses <- ev },
		OnError:   func(err error) { r.errs <- err },
	}
}

func (r *recorder) nextStatus(t *testing.T) StatusEvent {
	t.Helper()
	select {
	case ev := <-r.statuses:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for status event")
		return StatusEvent{}
	}
}

func (r *recorder) nextMessage(t *testing.T) protocol.Message {
	t.Helper()
	select {
	case m := <-r.messages:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func (r *recorder) nextError(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.errs:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for protocol error")
		return nil
	}
}

func (r *recorder) expectNoStatus(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-r.statuses:
		t.Fatalf("unexpected status event %+v", ev)
	case <-time.After(wait):
	}
}

func nextWrite(t *testing.T, c *fakeConn) []byte {
	t.Helper()
	select {
	case data := <-c.writes:
		return data
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for outbound frame")
		return nil
	}
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
