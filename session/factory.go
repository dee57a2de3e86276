package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"

	"github.com/google/uuid"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/graph"
	"github.com/syssam/relgraph/hook"
	"github.com/syssam/relgraph/store"
)

// Attributes of a persisted session entity.
const (
	StateField  = "state"
	ActiveField = "active"
)

// Factory opens sessions sharing one table, store and dispatcher. With a
// session entity configured, sessions are persisted as rows of it: the
// state as JSON, an active flag and the owner foreign key.
type Factory struct {
	table  *Table
	store  store.Store
	hooks  hook.Dispatcher
	logger *slog.Logger
	newID  func() string

	entity   string
	idField  string
	ownerCol string
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithPersistence persists sessions as rows of entity. The entity needs the
// state and active attributes; its meta owner names the entity session
// owners belong to.
func WithPersistence(entity string) FactoryOption {
	return func(f *Factory) { f.entity = entity }
}

// WithFactoryHooks sets the dispatcher of opened sessions.
func WithFactoryHooks(d hook.Dispatcher) FactoryOption {
	return func(f *Factory) { f.hooks = d }
}

// WithFactoryLogger sets the logger of the factory and its sessions.
func WithFactoryLogger(l *slog.Logger) FactoryOption {
	return func(f *Factory) { f.logger = l }
}

// WithSessionIDs sets the session id generator. Ids are random UUIDs by
// default.
func WithSessionIDs(fn func() string) FactoryOption {
	return func(f *Factory) { f.newID = fn }
}

// NewFactory returns a session factory.
func NewFactory(t *Table, s store.Store, opts ...FactoryOption) (*Factory, error) {
	f := &Factory{
		table:  t,
		store:  s,
		hooks:  hook.Nop,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.entity == "" {
		return f, nil
	}
	ent, err := t.Graph().Entity(f.entity)
	if err != nil {
		return nil, err
	}
	for _, name := range []string{StateField, ActiveField} {
		if _, ok := ent.Attributes.Lookup(name); !ok {
			return nil, relgraph.NewConfigurationError(f.entity, "session entity has no %q attribute", name)
		}
	}
	f.idField = ent.IDField
	if ent.Owner != "" {
		e, err := t.Graph().Edge(f.entity, ent.Owner, "")
		if err != nil {
			return nil, &relgraph.ConfigurationError{Subject: f.entity, Message: "no relationship to owner " + ent.Owner, Cause: err}
		}
		if e.Kind != graph.ToOneReferenced {
			return nil, relgraph.NewConfigurationError(f.entity, "owner relationship %s is not belongsTo", e)
		}
		f.ownerCol = e.Column()
	}
	return f, nil
}

// Open starts a session for owner. A nil owner opens an anonymous session.
func (f *Factory) Open(ctx context.Context, owner any) (*Session, error) {
	s := f.session(f.newID(), owner, nil)
	if f.entity != "" {
		row := store.Row{f.idField: s.id, StateField: "{}", ActiveField: true}
		if f.ownerCol != "" && owner != nil {
			row[f.ownerCol] = owner
		}
		if _, err := f.store.Insert(ctx, f.entity, row); err != nil {
			return nil, fmt.Errorf("relgraph/session: open: %w", err)
		}
	}
	f.logger.DebugContext(ctx, "session opened", "session", s.id, "owner", owner)
	return s, nil
}

// Resume reopens a persisted session with its saved state.
func (f *Factory) Resume(ctx context.Context, id string) (*Session, error) {
	if f.entity == "" {
		return nil, relgraph.NewConfigurationError("session", "no session entity configured")
	}
	rows, err := f.store.Query(ctx, f.entity, store.Filter{f.idField: id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, relgraph.NewNotFoundErrorWithID(f.entity, id)
	}
	row := rows[0]
	if active, _ := row[ActiveField].(bool); !active {
		return nil, ErrClosed
	}
	state := make(map[string]any)
	switch v := row[StateField].(type) {
	case string:
		if v != "" {
			if err := json.Unmarshal([]byte(v), &state); err != nil {
				return nil, fmt.Errorf("relgraph/session: decode state of %s: %w", id, err)
			}
		}
	case nil:
	default:
		return nil, fmt.Errorf("relgraph/session: unexpected state type %T", v)
	}
	var owner any
	if f.ownerCol != "" {
		owner = row[f.ownerCol]
	}
	return f.session(id, owner, state), nil
}

func (f *Factory) session(id string, owner any, state map[string]any) *Session {
	s := New(f.table, f.store, WithHooks(f.hooks), WithLogger(f.logger), WithID(id), WithOwner(owner))
	s.factory = f
	if state != nil {
		s.state = state
	}
	return s
}

// Set stores a state value.
func (s *Session) Set(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[key] = v
}

// Value returns a state value.
func (s *Session) Value(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.state[key]
	return v, ok
}

// State returns a copy of the session state.
func (s *Session) State() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.state)
}

// Save persists the state of a session opened by a persisting factory. It is
// a no-op otherwise.
func (s *Session) Save(ctx context.Context) error {
	if s.factory == nil || s.factory.entity == "" {
		return nil
	}
	if s.isClosed() {
		return ErrClosed
	}
	b, err := json.Marshal(s.State())
	if err != nil {
		return fmt.Errorf("relgraph/session: encode state: %w", err)
	}
	return s.persist(ctx, store.Row{StateField: string(b)})
}

// Close ends the session. Persisted sessions are marked inactive.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	if s.factory == nil || s.factory.entity == "" {
		return nil
	}
	return s.persist(ctx, store.Row{ActiveField: false})
}

func (s *Session) persist(ctx context.Context, data store.Row) error {
	f := s.factory
	n, err := f.store.Update(ctx, f.entity, s.id, data)
	if err != nil {
		return err
	}
	if n == 0 {
		return relgraph.NewNotFoundErrorWithID(f.entity, s.id)
	}
	return nil
}
