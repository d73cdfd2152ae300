// Package sequencer runs device events one after another on a single worker.
//
// Devices and remote callers hand it batches through Sequence; the worker
// executes each batch in order, sleeping where an event asks it to. A failed
// event is logged and the rest of its batch still runs.
package sequencer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotRunning is returned by Sequence before Start or after Stop.
var ErrNotRunning = errors.New("sequencer: not running")

// ErrQueueFull is returned when the pending batch queue is full.
var ErrQueueFull = errors.New("sequencer: queue full")

// ErrInvalidEvent is wrapped by Validate failures.
var ErrInvalidEvent = errors.New("sequencer: invalid event")

const defaultQueueSize = 64

// Event is one step of a sequence.
//
// An event with a DeviceID invokes Method on that device. An event with only
// SleepMS pauses the sequence.
type Event struct {
	DeviceID string          `json:"deviceID,omitempty"`
	Method   string          `json:"method,omitempty"`
	Args     json.RawMessage `json:"args,omitempty"`
	SleepMS  int             `json:"sleep_ms,omitempty"`
}

// Validate checks that the event either invokes something or sleeps.
func (e Event) Validate() error {
	switch {
	case e.DeviceID != "" && e.Method == "":
		return fmt.Errorf("%w: event for %s has no method", ErrInvalidEvent, e.DeviceID)
	case e.DeviceID == "" && e.SleepMS <= 0:
		return fmt.Errorf("%w: neither a device nor a sleep", ErrInvalidEvent)
	case e.SleepMS < 0:
		return fmt.Errorf("%w: negative sleep", ErrInvalidEvent)
	}
	return nil
}

// Executor carries out device events.
type Executor interface {
	Execute(ctx context.Context, e Event) error
}

// Logger defines the logging interface used by the Sequencer.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Sequencer is a single-worker event queue.
type Sequencer struct {
	exec   Executor
	logger Logger
	queue  chan []Event

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a sequencer that runs events through exec.
func New(exec Executor) *Sequencer {
	return &Sequencer{
		exec:   exec,
		logger: noopLogger{},
		queue:  make(chan []Event, defaultQueueSize),
	}
}

// SetLogger sets the logger for the sequencer.
func (s *Sequencer) SetLogger(logger Logger) {
	s.logger = logger
}

// Start launches the worker. Calling Start on a running sequencer is a no-op.
func (s *Sequencer) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.run(ctx, s.done)
}

// Stop halts the worker and waits for the current event to finish.
// Batches still queued are dropped.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
}

// Sequence queues events to run in order after any batches already queued.
// It returns once the batch is queued, not when it has run.
func (s *Sequencer) Sequence(_ context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	for i, e := range events {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("sequencer: event %d: %w", i, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrNotRunning
	}

	batch := append([]Event(nil), events...)
	select {
	case s.queue <- batch:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Sequencer) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-s.queue:
			s.runBatch(ctx, batch)
		}
	}
}

func (s *Sequencer) runBatch(ctx context.Context, batch []Event) {
	for _, e := range batch {
		if e.SleepMS > 0 {
			timer := time.NewTimer(time.Duration(e.SleepMS) * time.Millisecond)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		if e.DeviceID == "" {
			continue
		}

		s.logger.Debug("sequencing event", "device_id", e.DeviceID, "method", e.Method)
		if err := s.exec.Execute(ctx, e); err != nil {
			s.logger.Warn("sequenced event failed",
				"device_id", e.DeviceID,
				"method", e.Method,
				"error", err,
			)
		}
	}
}
