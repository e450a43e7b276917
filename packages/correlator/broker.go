package correlator

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	// ErrTimeout is returned when no callback arrived in time.
	ErrTimeout = errors.New("callback timeout")
	// ErrCancelled is the default cancellation cause.
	ErrCancelled = errors.New("wait cancelled")
)

// Endpoint identifies an expected callback.
type Endpoint struct {
	Method string
	URL    string
}

func (e Endpoint) empty() bool {
	return e.Method == "" && e.URL == ""
}

// Message is a delivered callback.
type Message struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    any
}

// CallbackError is returned by Wait when the failure endpoint was hit.
type CallbackError struct {
	Callback *Message
}

func (e *CallbackError) Error() string {
	return "error callback received on " + e.Callback.Method + " " + e.Callback.URL
}

type key struct {
	counterpart string
	method      string
	url         string
}

func newKey(counterpart string, ep Endpoint) key {
	return key{
		counterpart: counterpart,
		method:      strings.ToUpper(ep.Method),
		url:         normalizeURL(ep.URL),
	}
}

func normalizeURL(u string) string {
	if len(u) > 1 {
		u = strings.TrimSuffix(u, "/")
	}
	return u
}

type listener struct {
	wait    *Wait
	failure bool
}

// Option configures a Broker.
type Option func(*Broker)

func WithLogger(logger zerolog.Logger) Option {
	return func(b *Broker) {
		b.logger = logger
	}
}

// Broker owns the listener table.
type Broker struct {
	mu        sync.Mutex
	listeners map[key][]*listener
	logger    zerolog.Logger
}

func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		listeners: make(map[key][]*listener),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

const (
	waitPending int32 = iota
	waitSettled
)

// Wait is a pending callback expectation.
type Wait struct {
	broker *Broker
	keys   []key
	state  atomic.Int32
	timer  atomic.Pointer[time.Timer]
	done   chan struct{}

	msg *Message
	err error
}

// Register installs listeners for success and, when not empty, failure.
// The wait fails with ErrTimeout after timeout; a zero timeout never
// expires.
func (b *Broker) Register(counterpart string, success, failure Endpoint, timeout time.Duration) *Wait {
	w := &Wait{
		broker: b,
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	k := newKey(counterpart, success)
	w.keys = append(w.keys, k)
	b.listeners[k] = append(b.listeners[k], &listener{wait: w})
	if !failure.empty() {
		fk := newKey(counterpart, failure)
		w.keys = append(w.keys, fk)
		b.listeners[fk] = append(b.listeners[fk], &listener{wait: w, failure: true})
	}
	b.mu.Unlock()

	b.logger.Debug().
		Str("counterpart", counterpart).
		Str("method", k.method).
		Str("url", k.url).
		Dur("timeout", timeout).
		Msg("waiting for callback")

	if timeout > 0 {
		w.timer.Store(time.AfterFunc(timeout, func() {
			w.settle(nil, ErrTimeout)
		}))
	}
	return w
}

// Await registers a success-only wait and blocks on it.
func (b *Broker) Await(ctx context.Context, counterpart, method, url string, timeout time.Duration) (*Message, error) {
	return b.Register(counterpart, Endpoint{Method: method, URL: url}, Endpoint{}, timeout).Wait(ctx)
}

// Signal delivers a callback. It reports whether any wait was listening;
// unexpected callbacks are dropped.
func (b *Broker) Signal(counterpart, method, url string, headers map[string]string, body any) bool {
	k := newKey(counterpart, Endpoint{Method: method, URL: url})

	b.mu.Lock()
	matched := append([]*listener(nil), b.listeners[k]...)
	b.mu.Unlock()

	if len(matched) == 0 {
		b.logger.Debug().
			Str("counterpart", counterpart).
			Str("method", k.method).
			Str("url", k.url).
			Msg("dropping unexpected callback")
		return false
	}

	msg := &Message{Method: k.method, URL: url, Headers: headers, Body: body}
	for _, l := range matched {
		if l.failure {
			l.wait.settle(msg, &CallbackError{Callback: msg})
		} else {
			l.wait.settle(msg, nil)
		}
	}
	return true
}

// Pending returns the number of installed listeners.
func (b *Broker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, ls := range b.listeners {
		n += len(ls)
	}
	return n
}

func (b *Broker) remove(w *Wait) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range w.keys {
		ls := b.listeners[k]
		kept := ls[:0]
		for _, l := range ls {
			if l.wait != w {
				kept = append(kept, l)
			}
		}
		if len(kept) == 0 {
			delete(b.listeners, k)
		} else {
			b.listeners[k] = kept
		}
	}
}

// settle resolves the wait once. Later calls are ignored.
func (w *Wait) settle(msg *Message, err error) bool {
	if !w.state.CompareAndSwap(waitPending, waitSettled) {
		return false
	}
	if t := w.timer.Load(); t != nil {
		t.Stop()
	}
	w.broker.remove(w)
	w.msg = msg
	w.err = err
	close(w.done)
	return true
}

// Wait blocks until the wait is settled or ctx is done. A done ctx
// cancels the wait.
func (w *Wait) Wait(ctx context.Context) (*Message, error) {
	select {
	case <-w.done:
		return w.msg, w.err
	case <-ctx.Done():
		w.Cancel(ctx.Err())
		<-w.done
		return w.msg, w.err
	}
}

// Cancel settles the wait with err (ErrCancelled when nil). It reports
// whether this call settled it.
func (w *Wait) Cancel(err error) bool {
	if err == nil {
		err = ErrCancelled
	}
	return w.settle(nil, err)
}

// Done is closed once the wait is settled.
func (w *Wait) Done() <-chan struct{} {
	return w.done
}
