// Package lifecycle collects shutdown work registered while the controller
// starts up and runs it once when the process exits.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Logger defines the logging interface used by Hooks.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type hook struct {
	name string
	fn   func(context.Context) error
}

// Hooks is an ordered set of shutdown functions.
//
// Run executes them last-registered first, like a chain of defers, and only
// the first call to Run does anything.
type Hooks struct {
	mu     sync.Mutex
	hooks  []hook
	ran    bool
	logger Logger
}

// New creates an empty hook set.
func New() *Hooks {
	return &Hooks{logger: noopLogger{}}
}

// SetLogger sets the logger for hook execution.
func (h *Hooks) SetLogger(logger Logger) {
	h.logger = logger
}

// OnShutdown registers fn under name. Hooks registered after Run are ignored.
func (h *Hooks) OnShutdown(name string, fn func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ran {
		return
	}
	h.hooks = append(h.hooks, hook{name: name, fn: fn})
}

// Len returns the number of registered hooks.
func (h *Hooks) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hooks)
}

// Run executes every hook in reverse registration order.
// Failures are logged and joined; a failing hook does not stop the rest.
func (h *Hooks) Run(ctx context.Context) error {
	h.mu.Lock()
	if h.ran {
		h.mu.Unlock()
		return nil
	}
	h.ran = true
	hooks := h.hooks
	h.hooks = nil
	h.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		hk := hooks[i]
		if err := hk.fn(ctx); err != nil {
			h.logger.Error("shutdown hook failed", "hook", hk.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", hk.name, err))
			continue
		}
		h.logger.Info("shutdown hook completed", "hook", hk.name)
	}
	return errors.Join(errs...)
}
