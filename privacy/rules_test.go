package privacy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/privacy"
)

func TestViewerRules(t *testing.T) {
	ctx := context.Background()
	hc := before(relgraph.OpCreate, "resource")
	viewer := &privacy.SimpleViewer{UserID: "u1", Roles: []string{"editor"}, TenantID: "t1"}
	withViewer := privacy.WithViewer(ctx, viewer)

	assert.Nil(t, privacy.ViewerFromContext(ctx))
	assert.Same(t, viewer, privacy.ViewerFromContext(withViewer))

	assert.ErrorIs(t, privacy.DenyIfNoViewer().Eval(ctx, hc), privacy.Deny)
	assert.ErrorIs(t, privacy.DenyIfNoViewer().Eval(withViewer, hc), privacy.Skip)

	assert.ErrorIs(t, privacy.HasRole("editor").Eval(withViewer, hc), privacy.Allow)
	assert.ErrorIs(t, privacy.HasRole("admin").Eval(withViewer, hc), privacy.Skip)
	assert.ErrorIs(t, privacy.HasAnyRole("admin", "editor").Eval(withViewer, hc), privacy.Allow)
	assert.ErrorIs(t, privacy.HasAnyRole("admin").Eval(ctx, hc), privacy.Skip)
}

func TestIsOwner(t *testing.T) {
	ctx := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "7"})
	rule := privacy.IsOwner("owner_id")

	assert.ErrorIs(t, rule.Eval(ctx, before(relgraph.OpCreate, "resource", map[string]any{"owner_id": int64(7)})), privacy.Allow)
	assert.ErrorIs(t, rule.Eval(ctx, before(relgraph.OpUpdate, "resource", "r1", map[string]any{"owner_id": "8"})), privacy.Skip)
	assert.ErrorIs(t, rule.Eval(ctx, before(relgraph.OpDelete, "resource", "r1")), privacy.Skip)
	assert.ErrorIs(t, rule.Eval(context.Background(), before(relgraph.OpCreate, "resource")), privacy.Skip)
}

func TestTenantRules(t *testing.T) {
	ctx := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "u1", TenantID: "t1"})
	rule := privacy.TenantRule("tenant_id")

	assert.ErrorIs(t, rule.Eval(ctx, before(relgraph.OpCreate, "resource", map[string]any{"tenant_id": "t1"})), privacy.Allow)
	assert.ErrorIs(t, rule.Eval(ctx, before(relgraph.OpCreate, "resource", map[string]any{"tenant_id": "t2"})), privacy.Deny)
	assert.ErrorIs(t, rule.Eval(ctx, before(relgraph.OpCreate, "resource", map[string]any{})), privacy.Skip)

	assert.ErrorIs(t, privacy.DenyIfNoTenant().Eval(ctx, before(relgraph.OpList, "resource")), privacy.Skip)
	noTenant := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "u1"})
	assert.ErrorIs(t, privacy.DenyIfNoTenant().Eval(noTenant, before(relgraph.OpList, "resource")), privacy.Deny)
	assert.ErrorIs(t, privacy.DenyIfNoTenant().Eval(context.Background(), before(relgraph.OpList, "resource")), privacy.Deny)
}

func TestActionOf(t *testing.T) {
	tests := map[relgraph.Op]privacy.Action{
		relgraph.OpCreate:   privacy.ActionCreate,
		relgraph.OpRetrieve: privacy.ActionRead,
		relgraph.OpList:     privacy.ActionRead,
		relgraph.OpUpdate:   privacy.ActionUpdate,
		relgraph.OpSet:      privacy.ActionUpdate,
		relgraph.OpAdd:      privacy.ActionUpdate,
		relgraph.OpHas:      privacy.ActionRead,
		relgraph.OpCount:    privacy.ActionRead,
		relgraph.OpDelete:   privacy.ActionDelete,
	}
	for op, want := range tests {
		assert.Equal(t, want, privacy.ActionOf(op), op.String())
	}
	assert.True(t, privacy.ActionUpdate.In("CRU"))
	assert.False(t, privacy.ActionDelete.In("CRU"))
	assert.Equal(t, "D", privacy.ActionDelete.String())
}

func TestHasPermission(t *testing.T) {
	viewer := &privacy.SimpleViewer{UserID: "7", Grants: map[string]string{"user": "R", "*": "CRUD"}}
	ctx := privacy.WithViewer(context.Background(), viewer)
	rule := privacy.HasPermission(nil)

	assert.ErrorIs(t, rule.Eval(ctx, before(relgraph.OpRetrieve, "user", "7")), privacy.Allow)
	err := rule.Eval(ctx, before(relgraph.OpUpdate, "user", "7", map[string]any{}))
	assert.ErrorIs(t, err, privacy.Deny)
	assert.ErrorContains(t, err, "U on user not permitted")
	assert.ErrorIs(t, rule.Eval(ctx, before(relgraph.OpDelete, "role", "1")), privacy.Allow)

	noGrants := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "7"})
	assert.ErrorIs(t, rule.Eval(noGrants, before(relgraph.OpList, "role")), privacy.Deny)
	assert.ErrorIs(t, rule.Eval(context.Background(), before(relgraph.OpList, "role")), privacy.Skip)
}

func TestOwnerFuncs(t *testing.T) {
	ctx := context.Background()
	viewer := &privacy.SimpleViewer{UserID: "7"}
	owns := privacy.AnyOwner(privacy.OwnsRow("user"), privacy.OwnsField("user_id"))

	assert.True(t, owns(ctx, viewer, before(relgraph.OpRetrieve, "user", int64(7))))
	assert.True(t, owns(ctx, viewer, before(relgraph.OpSet, "user", "7", "r1")))
	assert.False(t, owns(ctx, viewer, before(relgraph.OpRetrieve, "user", "8")))
	assert.False(t, owns(ctx, viewer, before(relgraph.OpCreate, "user", map[string]any{"id": "7"})))
	assert.False(t, owns(ctx, viewer, before(relgraph.OpRetrieve, "session", "7")))
	assert.True(t, owns(ctx, viewer, before(relgraph.OpUpdate, "session", "s1", map[string]any{"user_id": 7})))
	assert.False(t, owns(ctx, viewer, before(relgraph.OpUpdate, "session", "s1", map[string]any{"user_id": nil})))
}
