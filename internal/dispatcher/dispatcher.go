package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Queued is the result of a command accepted by a buffered handler.
const Queued = "queued"

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrQueueFull      = errors.New("command queue full")
	ErrClosed         = errors.New("dispatcher closed")
)

// Event is a command from a client. Payload holds the command's JSON
// arguments, if any.
type Event struct {
	Ctx       context.Context
	Command   string
	Payload   json.RawMessage
	Timestamp time.Time
}

// Context returns the event's context, or context.Background if unset.
func (e Event) Context() context.Context {
	if e.Ctx == nil {
		return context.Background()
	}
	return e.Ctx
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Command, err)
	}
	return nil
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Outcome describes what happened to one command.
type Outcome struct {
	Command      string
	PayloadBytes int
	Duration     time.Duration
	// Queued is set when a buffered handler accepted the command; the
	// handler has not run yet.
	Queued bool
	// Async is set when the handler ran on a buffered worker.
	Async bool
	Err   error
}

// Status names the outcome: ok, queued, dropped or failed.
func (o Outcome) Status() string {
	switch {
	case errors.Is(o.Err, ErrQueueFull):
		return "dropped"
	case o.Err != nil:
		return "failed"
	case o.Queued:
		return "queued"
	default:
		return "ok"
	}
}

// Recorder receives outcomes for logged commands, and for every buffered
// run or drop since no caller sees those.
type Recorder interface {
	Record(Outcome)
}

// Option configures handler registration.
type Option func(*route)

// Buffered runs the handler on its own worker behind a queue of size.
// Dispatch returns Queued once the command is accepted.
func Buffered(size int) Option {
	return func(r *route) { r.size = size }
}

// Blocking makes a buffered handler wait for queue space instead of
// dropping the command.
func Blocking() Option {
	return func(r *route) { r.blocking = true }
}

// Logged passes every outcome of the handler to the Recorder.
func Logged() Option {
	return func(r *route) { r.logged = true }
}

type route struct {
	handler  HandlerFunc
	size     int
	blocking bool
	logged   bool
	queue    chan Event
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	mu      sync.RWMutex
	routes  map[string]*route
	closed  bool
	workers sync.WaitGroup

	recorder Recorder
	metrics  *instruments
}

// New creates a Dispatcher. rec may be nil. Metrics go to the global OTel
// meter provider, a no-op unless one is installed.
func New(rec Recorder) (*Dispatcher, error) {
	d := &Dispatcher{
		routes:   make(map[string]*route),
		recorder: rec,
	}
	m, err := newInstruments(d)
	if err != nil {
		return nil, err
	}
	d.metrics = m
	return d, nil
}

// Register adds a handler for command, replacing any earlier one.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	r := &route{handler: h}
	for _, opt := range opts {
		opt(r)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if r.size > 0 && !d.closed {
		r.queue = make(chan Event, r.size)
		d.workers.Add(1)
		go d.work(r)
	}
	d.routes[command] = r
}

// HasHandler returns true if a handler is registered for the command.
func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.routes[command]
	return ok
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	d.mu.RLock()
	r, ok := d.routes[e.Command]
	if !ok {
		d.mu.RUnlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}
	if r.queue == nil {
		d.mu.RUnlock()
		return d.run(r, e, false)
	}

	// the read lock keeps Close from closing the queue under a sender
	defer d.mu.RUnlock()
	if d.closed {
		return nil, fmt.Errorf("%w: %s", ErrClosed, e.Command)
	}
	return d.enqueue(r, e)
}

// Close stops accepting buffered commands and waits for queued ones to
// finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, r := range d.routes {
		if r.queue != nil {
			close(r.queue)
		}
	}
	d.mu.Unlock()

	d.workers.Wait()
}

func (d *Dispatcher) run(r *route, e Event, async bool) (any, error) {
	start := time.Now()
	res, err := r.handler(e)
	d.finish(r, Outcome{
		Command:      e.Command,
		PayloadBytes: len(e.Payload),
		Duration:     time.Since(start),
		Async:        async,
		Err:          err,
	})
	return res, err
}

func (d *Dispatcher) enqueue(r *route, e Event) (any, error) {
	o := Outcome{Command: e.Command, PayloadBytes: len(e.Payload), Queued: true}
	if r.blocking {
		r.queue <- e
	} else {
		select {
		case r.queue <- e:
		default:
			o.Queued = false
			o.Err = fmt.Errorf("%w: %s", ErrQueueFull, e.Command)
		}
	}
	d.finish(r, o)
	if o.Err != nil {
		return nil, o.Err
	}
	return Queued, nil
}

func (d *Dispatcher) work(r *route) {
	defer d.workers.Done()
	for e := range r.queue {
		_, _ = d.run(r, e, true)
	}
}

func (d *Dispatcher) finish(r *route, o Outcome) {
	d.metrics.record(o)
	if d.recorder == nil {
		return
	}
	if r.logged || o.Async || o.Status() == "dropped" {
		d.recorder.Record(o)
	}
}
