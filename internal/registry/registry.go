// Package registry implements the handler registry: a method-name →
// handler table with O(1) lookup and a one-time reflection-based check for
// whether a handler declares a cancellation-signal parameter.
package registry

import (
	"context"
	"log/slog"
	"os"
	"reflect"
	"sync"

	"github.com/procbridge/coworker/internal/cancel"
)

// HandlerFunc is the shape a plain handler takes: request body in, result
// (or error) out.
type HandlerFunc func(ctx context.Context, body any) (any, error)

// CancellableHandlerFunc additionally receives the request's cancellation
// signal.
type CancellableHandlerFunc func(ctx context.Context, body any, sig *cancel.Signal) (any, error)

var signalType = reflect.TypeOf((*cancel.Signal)(nil))

// Handler is the first-class registered value: a name, the arity
// discriminator, and the callable entry, captured once at Register time.
type Handler struct {
	Name          string
	AcceptsCancel bool
	fn            reflect.Value
}

// Invoke calls the underlying handler, passing sig only if AcceptsCancel.
func (h Handler) Invoke(ctx context.Context, body any, sig *cancel.Signal) (any, error) {
	var args []reflect.Value
	if h.AcceptsCancel {
		args = []reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(body), reflect.ValueOf(sig)}
	} else {
		args = []reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(body)}
	}
	out := h.fn.Call(args)
	result := out[0].Interface()
	errVal := out[1].Interface()
	if errVal == nil {
		return result, nil
	}
	return result, errVal.(error)
}

// Registry is an explicit, constructor-built method table — no package
// global, no decorator-populated map. A default instance plus
// RegisterDefault exist as sugar for callers that want decorator-like
// ergonomics, but coworker's own CLI always builds and passes its own
// instance.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	log      *slog.Logger
}

// New returns a Registry with the built-in "health" handler already
// registered.
func New(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{handlers: make(map[string]Handler), log: log}
	r.Register("health", HandlerFunc(healthHandler))
	return r
}

// Register adds fn under name, detecting via reflection exactly once
// whether its third parameter (after ctx and body) is *cancel.Signal.
// fn must be a
// HandlerFunc or CancellableHandlerFunc (or any function value with a
// matching signature). Re-registering a name logs a warning and replaces
// the existing entry.
func (r *Registry) Register(name string, fn any) {
	v := reflect.ValueOf(fn)
	t := v.Type()
	acceptsCancel := t.NumIn() == 3 && t.In(2) == signalType

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		r.log.Warn("handler re-registered, replacing previous entry", "method", name)
	}
	r.handlers[name] = Handler{Name: name, AcceptsCancel: acceptsCancel, fn: v}
}

// Lookup returns the handler for name, or ok=false if unregistered.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

func healthHandler(_ context.Context, _ any) (any, error) {
	return map[string]any{"status": "healthy", "pid": os.Getpid()}, nil
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the package-level default Registry, constructing it on
// first use.
func Default() *Registry {
	defaultOnce.Do(func() { defaultReg = New(nil) })
	return defaultReg
}

// RegisterDefault registers fn under name on the package-level default
// Registry. Sugar for host programs that prefer decorator-like call-site
// registration over threading an explicit *Registry through; coworker's
// CLI never relies on this path itself.
func RegisterDefault(name string, fn any) {
	Default().Register(name, fn)
}
