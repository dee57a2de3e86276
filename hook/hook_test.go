package hook_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/hook"
)

type mockHandler struct{ mock.Mock }

func (m *mockHandler) Handle(ctx context.Context, hc *hook.Context) hook.Result {
	return m.Called(ctx, hc).Get(0).(hook.Result)
}

type mockInterceptor struct{ mock.Mock }

func (m *mockInterceptor) Request(ctx context.Context, hc *hook.Context) error {
	return m.Called(ctx, hc).Error(0)
}

func (m *mockInterceptor) Response(ctx context.Context, hc *hook.Context) error {
	return m.Called(ctx, hc).Error(0)
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "BeforeCreate", hook.BeforeOp(relgraph.OpCreate).String())
	assert.Equal(t, "AfterSetMany", hook.AfterOp(relgraph.OpSetMany).String())
	assert.Equal(t, "BeforeIsSet", hook.BeforeOp(relgraph.OpIsSet).String())
}

func TestDispatchOrder(t *testing.T) {
	ctx := context.Background()
	r := hook.NewRegistry()
	var calls []string
	record := func(name string) hook.Handler {
		return hook.HandlerFunc(func(context.Context, *hook.Context) hook.Result {
			calls = append(calls, name)
			return hook.Ok()
		})
	}
	r.OnAny(record("any"))
	r.On(hook.Before, relgraph.OpCreate|relgraph.OpUpdate, record("write"))
	r.On(hook.Before, relgraph.OpCreate, record("create"))
	r.On(hook.After, relgraph.OpCreate, record("after"))

	require.NoError(t, r.Dispatch(ctx, &hook.Context{Event: hook.BeforeOp(relgraph.OpCreate), Entity: "user"}))
	assert.Equal(t, []string{"write", "create", "any"}, calls)
	assert.Equal(t, 3, r.Len(hook.BeforeOp(relgraph.OpCreate)))
	assert.Equal(t, 2, r.Len(hook.BeforeOp(relgraph.OpUpdate)))
	assert.Equal(t, 1, r.Len(hook.BeforeOp(relgraph.OpDelete)))
}

func TestDispatchAbort(t *testing.T) {
	ctx := context.Background()
	r := hook.NewRegistry()
	first, second := &mockHandler{}, &mockHandler{}
	hc := &hook.Context{Event: hook.BeforeOp(relgraph.OpDelete), Entity: "user", Name: "deleteUser"}
	first.On("Handle", ctx, hc).Return(hook.Abortf("user %s is protected", "admin")).Once()
	r.On(hook.Before, relgraph.OpDelete, first)
	r.On(hook.Before, relgraph.OpDelete, second)

	err := r.Dispatch(ctx, hc)
	require.Error(t, err)
	assert.True(t, relgraph.IsHookAbort(err))
	var abort *relgraph.HookAbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, "BeforeDelete", abort.Event)
	assert.Equal(t, "user", abort.Entity)
	assert.EqualError(t, abort.Reason, "user admin is protected")
	first.AssertExpectations(t)
	second.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
}

func TestUseInterceptor(t *testing.T) {
	ctx := context.Background()
	r := hook.NewRegistry()
	i := &mockInterceptor{}
	before := &hook.Context{Event: hook.BeforeOp(relgraph.OpGet), Entity: "user"}
	after := &hook.Context{Event: hook.AfterOp(relgraph.OpGet), Entity: "user", Result: "r1"}
	i.On("Request", ctx, before).Return(nil).Once()
	i.On("Response", ctx, after).Return(errors.New("filtered")).Once()
	r.Use(i)

	require.NoError(t, r.Dispatch(ctx, before))
	err := r.Dispatch(ctx, after)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AfterGet on user aborted by hook: filtered")
	i.AssertExpectations(t)
}

func TestNop(t *testing.T) {
	assert.NoError(t, hook.Nop.Dispatch(context.Background(), &hook.Context{}))
}
