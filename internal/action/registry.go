package action

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownAction is returned by Dispatch when no handler is registered
// under the requested name.
var ErrUnknownAction = errors.New("unknown action")

// Params is the decoded params object of a request envelope.
type Params map[string]any

// Handler executes one action. It returns NoResponse for fire-and-forget
// actions and Respond(data) otherwise.
type Handler func(ctx context.Context, params Params) (Result, error)

// Result is the tagged outcome of a successful handler.
type Result struct {
	data     any
	responds bool
}

// Respond marks a result that must be sent back to the client, even when
// data is nil.
func Respond(data any) Result {
	return Result{data: data, responds: true}
}

// NoResponse marks a result for which no response envelope is sent.
func NoResponse() Result {
	return Result{}
}

// Responds reports whether a response envelope is expected.
func (r Result) Responds() bool { return r.responds }

// Data returns the payload carried by Respond.
func (r Result) Data() any { return r.data }

// Registry maps action names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register stores h under name. A later registration for the same name
// replaces the earlier one.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// Names returns the registered action names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Dispatch runs the handler registered under name. A panicking handler is
// reported as an error instead of unwinding into the caller.
func (r *Registry) Dispatch(ctx context.Context, name string, params Params) (res Result, err error) {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if name == "" || !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}

	defer func() {
		if p := recover(); p != nil {
			res = Result{}
			err = fmt.Errorf("handler %s panicked: %v", name, p)
		}
	}()
	return h(ctx, params)
}
