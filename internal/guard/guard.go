// Package guard wraps user-triggered operations with debounce and dedup.
//
// A Binding coalesces a burst of Invoke calls into one execution using the
// arguments of the last call, and with Dedup enabled it refuses to start a
// second execution while one is still running.
package guard

import (
	"context"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/pseudocoder/inkwell/internal/clock"
	apperrors "github.com/pseudocoder/inkwell/internal/errors"
)

// Invocation outcomes reported to an Observer.
const (
	ResultExecuted   = "executed"
	ResultFailed     = "failed"
	ResultSuppressed = "suppressed"
	ResultSuperseded = "superseded"
	ResultCancelled  = "cancelled"
)

// Observer receives one call per settled invocation.
type Observer interface {
	Invocation(operation, result string)
}

// Options configure a Binding.
type Options struct {
	// Name labels logs, errors and metrics.
	Name string

	// Delay is the debounce quiet period. Zero runs every invocation
	// immediately.
	Delay time.Duration

	// Dedup suppresses invocations made while the operation is running.
	Dedup bool

	// Context is passed to the operation. Defaults to context.Background().
	Context context.Context

	Clock    clock.Clock
	Logger   pslog.Logger
	Observer Observer
}

// Result is the settled value of an invocation.
type Result[R any] struct {
	Value R

	// Suppressed is set when dedup refused the invocation; Value is zero.
	Suppressed bool
}

// Future is the eventual outcome of one Invoke call.
type Future[R any] struct {
	done chan struct{}
	once sync.Once
	res  Result[R]
	err  error
}

func newFuture[R any]() *Future[R] {
	return &Future[R]{done: make(chan struct{})}
}

func (f *Future[R]) resolve(res Result[R], err error) bool {
	settled := false
	f.once.Do(func() {
		f.res, f.err = res, err
		close(f.done)
		settled = true
	})
	return settled
}

// Done is closed once the future has settled.
func (f *Future[R]) Done() <-chan struct{} { return f.done }

// Wait blocks until the future settles or ctx is done.
func (f *Future[R]) Wait(ctx context.Context) (Result[R], error) {
	select {
	case <-f.done:
		return f.res, f.err
	case <-ctx.Done():
		return Result[R]{}, ctx.Err()
	}
}

type pendingCall[A, R any] struct {
	args   A
	future *Future[R]
}

// Binding guards one operation. It is safe for concurrent use.
type Binding[A, R any] struct {
	op   func(context.Context, A) (R, error)
	opts Options
	log  pslog.Logger

	mu      sync.Mutex
	running int
	pending *pendingCall[A, R]
	timer   clock.Timer
}

type nopObserver struct{}

func (nopObserver) Invocation(string, string) {}

// Bind wraps op.
func Bind[A, R any](op func(context.Context, A) (R, error), opts Options) *Binding[A, R] {
	if opts.Name == "" {
		opts.Name = "operation"
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	log := opts.Logger
	if log == nil {
		log = pslog.Ctx(opts.Context)
	}
	return &Binding[A, R]{
		op:   op,
		opts: opts,
		log:  log.With("operation", opts.Name),
	}
}

// Invoke requests an execution with args. With a delay configured, the
// call replaces any invocation still waiting out its quiet period; the
// replaced future is rejected with guard.superseded.
func (b *Binding[A, R]) Invoke(args A) *Future[R] {
	f := newFuture[R]()

	b.mu.Lock()
	if b.opts.Dedup && b.running > 0 {
		b.mu.Unlock()
		f.resolve(Result[R]{Suppressed: true}, nil)
		b.opts.Observer.Invocation(b.opts.Name, ResultSuppressed)
		return f
	}

	if b.opts.Delay == 0 {
		b.running++
		b.mu.Unlock()
		go b.execute(args, f)
		return f
	}

	prev := b.takePendingLocked()
	call := &pendingCall[A, R]{args: args, future: f}
	b.pending = call
	b.timer = b.opts.Clock.AfterFunc(b.opts.Delay, func() { b.fire(call) })
	b.mu.Unlock()

	if prev != nil && prev.future.resolve(Result[R]{}, apperrors.Superseded(b.opts.Name)) {
		b.opts.Observer.Invocation(b.opts.Name, ResultSuperseded)
	}
	return f
}

// Cancel clears the armed debounce timer. The waiting invocation is
// rejected with guard.cancelled. A running operation is not interrupted.
func (b *Binding[A, R]) Cancel() {
	b.mu.Lock()
	prev := b.takePendingLocked()
	b.mu.Unlock()

	if prev != nil && prev.future.resolve(Result[R]{}, apperrors.Cancelled(b.opts.Name)) {
		b.opts.Observer.Invocation(b.opts.Name, ResultCancelled)
	}
}

// Loading reports whether the operation is executing right now. It is
// false during the debounce quiet period.
func (b *Binding[A, R]) Loading() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running > 0
}

func (b *Binding[A, R]) takePendingLocked() *pendingCall[A, R] {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	prev := b.pending
	b.pending = nil
	return prev
}

func (b *Binding[A, R]) fire(call *pendingCall[A, R]) {
	b.mu.Lock()
	if b.pending != call {
		// Replaced or cancelled after the timer had already fired.
		b.mu.Unlock()
		return
	}
	b.pending = nil
	b.timer = nil
	b.running++
	b.mu.Unlock()

	go b.execute(call.args, call.future)
}

func (b *Binding[A, R]) execute(args A, f *Future[R]) {
	v, err := b.op(b.opts.Context, args)

	b.mu.Lock()
	b.running--
	b.mu.Unlock()

	if err != nil {
		b.log.Debug("guarded operation failed", "err", err)
		f.resolve(Result[R]{}, apperrors.OperationFailed(b.opts.Name, err))
		b.opts.Observer.Invocation(b.opts.Name, ResultFailed)
		return
	}
	f.resolve(Result[R]{Value: v}, nil)
	b.opts.Observer.Invocation(b.opts.Name, ResultExecuted)
}
