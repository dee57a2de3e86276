// Package hook dispatches typed before and after events around session
// operations. Handlers run in registration order and any of them may abort
// the chain with a reason.
package hook

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/syssam/relgraph"
)

// Phase tells whether an event fires before or after the data operation.
type Phase uint8

// Event phases.
const (
	Before Phase = iota + 1
	After
)

func (p Phase) String() string {
	switch p {
	case Before:
		return "Before"
	case After:
		return "After"
	}
	return "Phase(" + fmt.Sprint(uint8(p)) + ")"
}

// Event is one phase of one operation verb, e.g. BeforeCreate or AfterSetMany.
type Event struct {
	Phase Phase
	Op    relgraph.Op
}

// BeforeOp returns the before event of op.
func BeforeOp(op relgraph.Op) Event { return Event{Phase: Before, Op: op} }

// AfterOp returns the after event of op.
func AfterOp(op relgraph.Op) Event { return Event{Phase: After, Op: op} }

// String returns the event name, e.g. "BeforeCreate".
func (e Event) String() string {
	name := e.Op.String()
	if name != "" {
		name = string(name[0]-'a'+'A') + name[1:]
	}
	return e.Phase.String() + name
}

// Context is what handlers are offered about an operation.
type Context struct {
	Session string // id of the calling session, if any
	Event   Event
	Name    string // generated operation name, e.g. "setUserRole"
	Entity  string // entity the operation belongs to
	Target  string // related entity of relationship operations
	Alias   string // role of the relationship
	// Entries are the operation arguments in call order. Before handlers may
	// replace them.
	Entries []any
	Options map[string]bool
	// Result is set for after events.
	Result any
}

// Data returns the data object among the entries of create and update
// operations, or nil.
func (c *Context) Data() map[string]any {
	for _, e := range c.Entries {
		if m, ok := e.(map[string]any); ok {
			return m
		}
	}
	return nil
}

// Result is the outcome of a handler.
type Result struct {
	abort  bool
	reason error
}

// Ok lets the chain continue.
func Ok() Result { return Result{} }

// Abort stops the chain and fails the operation with reason.
func Abort(reason error) Result { return Result{abort: true, reason: reason} }

// Abortf stops the chain with a formatted reason.
func Abortf(format string, args ...any) Result {
	return Abort(fmt.Errorf(format, args...))
}

// Aborted reports whether the handler aborted.
func (r Result) Aborted() bool { return r.abort }

// Reason returns the abort reason.
func (r Result) Reason() error { return r.reason }

// Handler handles events.
type Handler interface {
	Handle(context.Context, *Context) Result
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(context.Context, *Context) Result

// Handle calls f(ctx, hc).
func (f HandlerFunc) Handle(ctx context.Context, hc *Context) Result { return f(ctx, hc) }

// Dispatcher offers an operation context to the registered handlers.
type Dispatcher interface {
	Dispatch(context.Context, *Context) error
}

// Interceptor observes every operation request and response. A returned
// error aborts the operation.
type Interceptor interface {
	Request(context.Context, *Context) error
	Response(context.Context, *Context) error
}

// Registry is an ordered set of handlers keyed by event.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Event][]Handler
	generic  []Handler
	logger   *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger aborts are reported to at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		handlers: make(map[Event][]Handler),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// On registers h for every event of the given phase whose op matches any bit of ops.
func (r *Registry) On(phase Phase, ops relgraph.Op, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for bit := relgraph.Op(1); bit != 0 && bit <= ops; bit <<= 1 {
		if ops.Is(bit) {
			ev := Event{Phase: phase, Op: bit}
			r.handlers[ev] = append(r.handlers[ev], h)
		}
	}
}

// OnAny registers h for every event. Generic handlers run after the
// handlers registered for the event itself.
func (r *Registry) OnAny(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generic = append(r.generic, h)
}

// Use registers an interceptor as a generic handler.
func (r *Registry) Use(i Interceptor) {
	r.OnAny(HandlerFunc(func(ctx context.Context, hc *Context) Result {
		call := i.Request
		if hc.Event.Phase == After {
			call = i.Response
		}
		if err := call(ctx, hc); err != nil {
			return Abort(err)
		}
		return Ok()
	}))
}

// Len returns the number of handlers that receive the event.
func (r *Registry) Len(ev Event) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[ev]) + len(r.generic)
}

// Dispatch runs the handlers of hc.Event in order. The first abort stops the
// chain and is returned as a *relgraph.HookAbortError.
func (r *Registry) Dispatch(ctx context.Context, hc *Context) error {
	r.mu.RLock()
	chain := make([]Handler, 0, len(r.handlers[hc.Event])+len(r.generic))
	chain = append(chain, r.handlers[hc.Event]...)
	chain = append(chain, r.generic...)
	r.mu.RUnlock()
	for _, h := range chain {
		res := h.Handle(ctx, hc)
		if !res.Aborted() {
			continue
		}
		r.logger.DebugContext(ctx, "operation aborted by hook", "event", hc.Event.String(), "operation", hc.Name, "reason", res.Reason())
		return &relgraph.HookAbortError{Event: hc.Event.String(), Entity: hc.Entity, Reason: res.Reason()}
	}
	return nil
}

// Nop is a Dispatcher without handlers.
var Nop Dispatcher = nopDispatcher{}

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, *Context) error { return nil }

var _ Dispatcher = (*Registry)(nil)
