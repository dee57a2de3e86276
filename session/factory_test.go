package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/hook"
	"github.com/syssam/relgraph/store"
)

func TestFactory(t *testing.T) {
	f := newFixture(t)
	reg := hook.NewRegistry()
	var seen []string
	reg.OnAny(hook.HandlerFunc(func(_ context.Context, hc *hook.Context) hook.Result {
		seen = append(seen, hc.Session)
		return hook.Ok()
	}))
	factory, err := NewFactory(f.table, f.store, WithPersistence("session"), WithFactoryHooks(reg))
	require.NoError(t, err)

	owner := f.create(t, New(f.table, f.store), "User", map[string]any{"username": "ada"})
	sess, err := factory.Open(f.ctx, owner)
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID())
	assert.Equal(t, owner, sess.Owner())

	rows, err := f.store.Query(f.ctx, "session", store.Filter{"id": sess.ID()})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, owner, rows[0]["user_id"])
	assert.Equal(t, true, rows[0]["active"])

	t.Run("State", func(t *testing.T) {
		sess.Set("cart", []any{"book"})
		sess.Set("step", float64(2))
		require.NoError(t, sess.Save(f.ctx))

		resumed, err := factory.Resume(f.ctx, sess.ID())
		require.NoError(t, err)
		assert.Equal(t, owner, resumed.Owner())
		v, ok := resumed.Value("cart")
		require.True(t, ok)
		assert.Equal(t, []any{"book"}, v)
		assert.Equal(t, map[string]any{"cart": []any{"book"}, "step": float64(2)}, resumed.State())
	})

	t.Run("Hooks", func(t *testing.T) {
		_, err := sess.Call(f.ctx, "countUserSessions", owner)
		require.NoError(t, err)
		assert.Equal(t, []string{sess.ID(), sess.ID()}, seen)
	})

	t.Run("Close", func(t *testing.T) {
		require.NoError(t, sess.Close(f.ctx))
		require.NoError(t, sess.Close(f.ctx), "closing twice is a no-op")
		_, err := sess.Call(f.ctx, "listUsers")
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, sess.Save(f.ctx), ErrClosed)
		_, err = factory.Resume(f.ctx, sess.ID())
		assert.ErrorIs(t, err, ErrClosed)
	})

	t.Run("Unknown", func(t *testing.T) {
		_, err := factory.Resume(f.ctx, "00000000-0000-0000-0000-000000000000")
		assert.True(t, relgraph.IsNotFound(err))
	})

	t.Run("Anonymous", func(t *testing.T) {
		anon, err := factory.Open(f.ctx, nil)
		require.NoError(t, err)
		assert.Nil(t, anon.Owner())
	})
}

func TestFactoryMemory(t *testing.T) {
	f := newFixture(t)
	ids := []string{"a", "b"}
	factory, err := NewFactory(f.table, f.store, WithSessionIDs(func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}))
	require.NoError(t, err)
	s1, err := factory.Open(f.ctx, 1)
	require.NoError(t, err)
	s2, err := factory.Open(f.ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "a", s1.ID())
	assert.Equal(t, "b", s2.ID())
	s1.Set("k", "v")
	_, ok := s2.Value("k")
	assert.False(t, ok, "state is per session")
	assert.NoError(t, s1.Save(f.ctx))
	_, err = factory.Resume(f.ctx, "a")
	assert.True(t, relgraph.IsConfigurationError(err))
}

func TestNewFactoryErrors(t *testing.T) {
	f := newFixture(t)
	_, err := NewFactory(f.table, f.store, WithPersistence("nope"))
	assert.True(t, relgraph.IsNotFound(err))
	_, err = NewFactory(f.table, f.store, WithPersistence("user"))
	assert.True(t, relgraph.IsConfigurationError(err), "user has no state attribute")
}
