// Package pipeline - Callback registration and launch descriptions for the
// multi-camera compositing pipeline.
package pipeline

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-mcdetect/frame"
)

// ErrDuplicateCallback is returned when a callback name is registered twice.
var ErrDuplicateCallback = errors.New("callback already registered")

// Callback is invoked once per frame after inference. It reports whether the
// frame was handled.
type Callback func(f frame.Frame) bool

type entry struct {
	name string
	cb   Callback
}

// Registry holds the post-inference callbacks in registration order.
//
// Callbacks are registered once at startup; Dispatch may then be called from
// any number of goroutines.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
	logger  *zap.Logger
}

// NewRegistry creates an empty registry. A nil logger discards panic reports.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{logger: logger}
}

// Register adds a named callback.
//
// Arguments:
//   - name: A unique name for the callback.
//   - cb: The callback.
//
// Returns:
//   - error: ErrDuplicateCallback when name is taken, or an error for a nil callback.
func (r *Registry) Register(name string, cb Callback) error {
	if cb == nil {
		return errors.Errorf("callback %q is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.name == name {
			return errors.Wrap(ErrDuplicateCallback, name)
		}
	}
	r.entries = append(r.entries, entry{name: name, cb: cb})
	return nil
}

// Names returns the registered callback names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.name
	}
	return names
}

// Dispatch runs every callback on f in registration order.
//
// A panicking callback is recovered, logged and counts as a failure; the
// remaining callbacks still run.
//
// Returns:
//   - bool: false if any callback failed.
func (r *Registry) Dispatch(f frame.Frame) bool {
	r.mu.RLock()
	entries := r.entries
	r.mu.RUnlock()

	ok := true
	for _, e := range entries {
		if !r.invoke(e, f) {
			ok = false
		}
	}
	return ok
}

func (r *Registry) invoke(e entry, f frame.Frame) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("callback panicked",
				zap.String("callback", e.name),
				zap.String("panic", fmt.Sprint(rec)),
			)
			ok = false
		}
	}()
	return e.cb(f)
}
