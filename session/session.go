package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"reflect"
	"slices"
	"sync"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/hook"
	"github.com/syssam/relgraph/store"
)

// ErrClosed is returned by operations of a closed session.
var ErrClosed = errors.New("relgraph/session: session closed")

// Session invokes the operations of a table against a store. Operations of
// one session run one at a time, so the hooks of two operations never
// interleave; handlers must not call back into the session that dispatched
// them.
type Session struct {
	id      string
	owner   any
	table   *Table
	store   store.Store
	hooks   hook.Dispatcher
	logger  *slog.Logger
	factory *Factory

	call   sync.Mutex
	mu     sync.Mutex
	state  map[string]any
	closed bool
}

// Option configures a Session.
type Option func(*Session)

// WithHooks sets the dispatcher offered every operation before and after
// it runs.
func WithHooks(d hook.Dispatcher) Option {
	return func(s *Session) { s.hooks = d }
}

// WithLogger sets the logger of the session.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithID sets the session id reported to hooks.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithOwner sets the owner id of the session.
func WithOwner(owner any) Option {
	return func(s *Session) { s.owner = owner }
}

// New returns a session over the table and the store.
func New(t *Table, s store.Store, opts ...Option) *Session {
	sess := &Session{
		table:  t,
		store:  s,
		hooks:  hook.Nop,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		state:  make(map[string]any),
	}
	for _, opt := range opts {
		opt(sess)
	}
	return sess
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Owner returns the owner id of the session.
func (s *Session) Owner() any { return s.owner }

// Table returns the operation table of the session.
func (s *Session) Table() *Table { return s.table }

// Store returns the store of the session.
func (s *Session) Store() store.Store { return s.store }

// Call invokes the named operation. The arguments follow the operation
// parameters; see Operation.Params. The before event is dispatched with the
// bound arguments as entries and may replace them; a before abort prevents
// the operation. The after event is offered the result; an after abort fails
// the call but does not undo the operation.
//
//	sess.Call(ctx, "createUser", map[string]any{"username": "ada"})
//	sess.Call(ctx, "addRolePermissions", roleID, p1, p2)
//	sess.Call(ctx, "retrieveUser", id, session.Options{"role": true})
func (s *Session) Call(ctx context.Context, name string, args ...any) (any, error) {
	op, ok := s.table.Lookup(name)
	if !ok {
		return nil, relgraph.NewNotFoundError("operation " + name)
	}
	if s.isClosed() {
		return nil, ErrClosed
	}
	entries, opts, err := op.bind(args)
	if err != nil {
		return nil, err
	}
	s.call.Lock()
	defer s.call.Unlock()
	hc := &hook.Context{
		Session: s.id,
		Event:   hook.BeforeOp(op.Verb),
		Name:    op.Name,
		Entity:  op.Entity,
		Target:  op.Target,
		Alias:   op.Alias,
		Entries: slices.Clone(entries),
		Options: maps.Clone(opts),
	}
	if err := s.hooks.Dispatch(ctx, hc); err != nil {
		return nil, err
	}
	result, err := s.run(ctx, op, hc.Entries, hc.Options)
	if err != nil {
		s.logger.DebugContext(ctx, "operation failed", "operation", op.Name, "error", err)
		return nil, err
	}
	hc.Event, hc.Result = hook.AfterOp(op.Verb), result
	if err := s.hooks.Dispatch(ctx, hc); err != nil {
		return nil, err
	}
	return hc.Result, nil
}

// As converts the result of Call to T. A nil result converts to the zero
// value.
//
//	row, err := session.As[store.Row](sess.Call(ctx, "getUserRole", id))
func As[T any](v any, err error) (T, error) {
	var zero T
	if err != nil || v == nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("relgraph/session: result is %T, not %T", v, zero)
	}
	return t, nil
}

func (s *Session) run(ctx context.Context, op *Operation, entries []any, opts map[string]bool) (any, error) {
	if n := op.entries(); len(entries) < n {
		return nil, fmt.Errorf("relgraph/session: %s needs %d entries after before hooks, got %d", op.Name, n, len(entries))
	}
	if op.res != nil {
		var ids []any
		if len(entries) > 1 {
			ids = flatten(entries[1:])
		}
		return op.res.Run(ctx, s.store, entries[0], ids...)
	}
	switch op.Verb {
	case relgraph.OpCreate:
		return s.store.Insert(ctx, op.Entity, rowOf(entries[0]))
	case relgraph.OpRetrieve:
		rows, err := s.store.Query(ctx, op.Entity, store.Filter{op.idField: entries[0]})
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, relgraph.NewNotFoundErrorWithID(op.Entity, entries[0])
		}
		if err := s.eager(ctx, op, rows[:1], opts); err != nil {
			return nil, err
		}
		return rows[0], nil
	case relgraph.OpUpdate:
		return s.store.Update(ctx, op.Entity, entries[0], rowOf(entries[1]))
	case relgraph.OpDelete:
		return s.store.Delete(ctx, op.Entity, entries[0])
	case relgraph.OpList:
		rows, err := s.store.Query(ctx, op.Entity, store.Filter(rowOf(entries[0])))
		if err != nil {
			return nil, err
		}
		if err := s.eager(ctx, op, rows, opts); err != nil {
			return nil, err
		}
		return rows, nil
	}
	return nil, &relgraph.UnsupportedOperationError{Verb: op.Verb.String(), Source: op.Entity}
}

// bind checks the call arguments against the operation parameters and
// returns the hook entries and options. Data objects are entries of type
// map[string]any; positional attribute values are folded into one.
func (o *Operation) bind(args []any) ([]any, map[string]bool, error) {
	switch {
	case o.res != nil:
		return o.bindRelationship(args)
	case o.ByArgs:
		return o.bindArgs(args)
	}
	switch o.Verb {
	case relgraph.OpCreate:
		if len(args) != 1 {
			return nil, nil, o.arity(args, "a data object")
		}
		data, err := o.data(args[0])
		return []any{data}, nil, err
	case relgraph.OpUpdate:
		if len(args) != 2 {
			return nil, nil, o.arity(args, "an id and a data object")
		}
		data, err := o.data(args[1])
		return []any{args[0], data}, nil, err
	case relgraph.OpDelete:
		if len(args) != 1 {
			return nil, nil, o.arity(args, "an id")
		}
		return args, nil, nil
	case relgraph.OpRetrieve:
		if len(args) < 1 || len(args) > 2 {
			return nil, nil, o.arity(args, "an id and optional options")
		}
		opts, err := o.options(args[1:])
		return args[:1], opts, err
	case relgraph.OpList:
		if len(args) > 2 {
			return nil, nil, o.arity(args, "an optional filter and options")
		}
		filter := map[string]any{}
		if len(args) > 0 && args[0] != nil {
			data, err := o.data(args[0])
			if err != nil {
				return nil, nil, err
			}
			filter = data
		}
		var rest []any
		if len(args) > 1 {
			rest = args[1:]
		}
		opts, err := o.options(rest)
		return []any{filter}, opts, err
	}
	return nil, nil, fmt.Errorf("relgraph/session: %s: cannot bind %s", o.Name, o.Verb)
}

// bindArgs folds positional attribute values into a data object. A single
// data object is accepted in their place.
func (o *Operation) bindArgs(args []any) ([]any, map[string]bool, error) {
	var id []any
	if o.Verb == relgraph.OpUpdate {
		if len(args) == 0 {
			return nil, nil, o.arity(args, "an id")
		}
		id, args = []any{args[0]}, args[1:]
	}
	if len(args) == 1 {
		if data, err := o.data(args[0]); err == nil {
			return append(id, data), nil, nil
		}
	}
	if len(args) > len(o.fields) {
		return nil, nil, o.arity(args, fmt.Sprintf("at most %d attribute values", len(o.fields)))
	}
	data := make(map[string]any, len(args))
	for i, v := range args {
		data[o.fields[i]] = v
	}
	return append(id, data), nil, nil
}

func (o *Operation) bindRelationship(args []any) ([]any, map[string]bool, error) {
	if len(args) == 0 {
		return nil, nil, o.arity(args, "an id")
	}
	switch o.res.Verb {
	case relgraph.OpSet, relgraph.OpIs:
		if len(args) != 2 {
			return nil, nil, o.arity(args, "an id and a related id")
		}
		return args, nil, nil
	case relgraph.OpAdd, relgraph.OpRemove, relgraph.OpSetMany, relgraph.OpHas:
		return []any{args[0], flatten(args[1:])}, nil, nil
	}
	if len(args) != 1 {
		return nil, nil, o.arity(args, "an id")
	}
	return args, nil, nil
}

// entries returns the number of hook entries run reads.
func (o *Operation) entries() int {
	if o.res == nil && o.Verb == relgraph.OpUpdate {
		return 2
	}
	return 1
}

// data returns a copy of the data object v, so hooks editing it leave the
// caller's value alone.
func (o *Operation) data(v any) (map[string]any, error) {
	switch d := v.(type) {
	case map[string]any:
		return maps.Clone(d), nil
	case store.Row:
		return maps.Clone(map[string]any(d)), nil
	case store.Filter:
		return maps.Clone(map[string]any(d)), nil
	}
	return nil, fmt.Errorf("relgraph/session: %s: expected a data object, got %T", o.Name, v)
}

func (o *Operation) options(args []any) (map[string]bool, error) {
	if len(args) == 0 || args[0] == nil {
		return nil, nil
	}
	var opts map[string]bool
	switch v := args[0].(type) {
	case Options:
		opts = v
	case map[string]bool:
		opts = v
	default:
		return nil, fmt.Errorf("relgraph/session: %s: expected options, got %T", o.Name, args[0])
	}
	for flag := range opts {
		if _, ok := o.paths[flag]; !ok {
			return nil, fmt.Errorf("relgraph/session: %s: unknown option %q", o.Name, flag)
		}
	}
	return opts, nil
}

func (o *Operation) arity(args []any, want string) error {
	return fmt.Errorf("relgraph/session: %s takes %s, got %d arguments", o.Name, want, len(args))
}

func rowOf(v any) store.Row {
	switch m := v.(type) {
	case map[string]any:
		return store.Row(m).Clone()
	case store.Row:
		return m.Clone()
	}
	return store.Row{}
}

// flatten expands slice arguments one level, so related ids may be passed
// variadically or as one slice.
func flatten(args []any) []any {
	out := make([]any, 0, len(args))
	for _, a := range args {
		switch v := a.(type) {
		case []any:
			out = append(out, v...)
			continue
		case []byte, nil:
			out = append(out, a)
			continue
		}
		rv := reflect.ValueOf(a)
		if rv.Kind() != reflect.Slice {
			out = append(out, a)
			continue
		}
		for i := 0; i < rv.Len(); i++ {
			out = append(out, rv.Index(i).Interface())
		}
	}
	return out
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
