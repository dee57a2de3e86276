package privacy

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/hook"
)

// Viewer is the identity an operation runs for.
type Viewer interface {
	GetID() string
	GetRoles() []string
}

// TenantViewer is a viewer bound to a tenant.
type TenantViewer interface {
	Viewer
	GetTenantID() string
}

// Action is the permission letter an operation needs.
type Action byte

// Permission letters.
const (
	ActionCreate Action = 'C'
	ActionRead   Action = 'R'
	ActionUpdate Action = 'U'
	ActionDelete Action = 'D'
)

// ActionOf returns the action op needs. Relationship mutations update their
// source entity; every other non-mutating operation reads.
func ActionOf(op relgraph.Op) Action {
	switch {
	case op.Is(relgraph.OpCreate):
		return ActionCreate
	case op.Is(relgraph.OpDelete):
		return ActionDelete
	case op.Is(relgraph.MutationOps):
		return ActionUpdate
	default:
		return ActionRead
	}
}

func (a Action) String() string { return string(a) }

// In reports whether a is listed in actions, e.g. "CRU".
func (a Action) In(actions string) bool {
	return strings.IndexByte(actions, byte(a)) >= 0
}

// PermissionViewer is a viewer holding permissions on entities.
type PermissionViewer interface {
	Viewer
	// Can reports whether the viewer may perform action on entity. own is
	// true when the affected row belongs to the viewer.
	Can(action Action, entity string, own bool) bool
}

type viewerCtxKey struct{}

// WithViewer returns a copy of ctx carrying the viewer.
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey{}, viewer)
}

// ViewerFromContext returns the viewer of ctx, or nil.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerCtxKey{}).(Viewer)
	return v
}

// SimpleViewer is a static viewer, mostly for tests and tools.
type SimpleViewer struct {
	UserID   string
	Roles    []string
	TenantID string
	// Grants maps entity names to the actions allowed on them, e.g.
	// {"user": "R", "*": "CRUD"}.
	Grants map[string]string
}

// GetID returns the user id.
func (v *SimpleViewer) GetID() string { return v.UserID }

// GetRoles returns the roles.
func (v *SimpleViewer) GetRoles() []string { return v.Roles }

// GetTenantID returns the tenant id.
func (v *SimpleViewer) GetTenantID() string { return v.TenantID }

// Can looks the entity up in Grants, then the "*" entry. Ownership is ignored.
func (v *SimpleViewer) Can(action Action, entity string, _ bool) bool {
	if actions, ok := v.Grants[entity]; ok {
		return action.In(actions)
	}
	return action.In(v.Grants["*"])
}

// DenyIfNoViewer denies operations run without a viewer. It usually opens a
// policy:
//
//	privacy.Policy{
//	    privacy.DenyIfNoViewer(),
//	    privacy.HasRole("admin"),
//	    privacy.AlwaysDenyRule(),
//	}
func DenyIfNoViewer() Rule {
	return ContextRule(func(ctx context.Context) error {
		if ViewerFromContext(ctx) == nil {
			return Denyf("privacy: viewer required")
		}
		return Skip
	})
}

// HasRole allows viewers with the role.
func HasRole(role string) Rule {
	return HasAnyRole(role)
}

// HasAnyRole allows viewers with one of the roles.
func HasAnyRole(roles ...string) Rule {
	return ContextRule(func(ctx context.Context) error {
		if v := ViewerFromContext(ctx); v != nil && slices.ContainsFunc(roles, func(r string) bool {
			return slices.Contains(v.GetRoles(), r)
		}) {
			return Allow
		}
		return Skip
	})
}

// OwnerFunc reports whether the row an operation affects belongs to v.
type OwnerFunc func(ctx context.Context, v Viewer, hc *hook.Context) bool

// OwnsField is an OwnerFunc matching the data object's field against the
// viewer id. Only create and update operations carry a data object.
func OwnsField(field string) OwnerFunc {
	return func(_ context.Context, v Viewer, hc *hook.Context) bool {
		value, ok := hc.Data()[field]
		return ok && value != nil && fmt.Sprint(value) == v.GetID()
	}
}

// OwnsRow is an OwnerFunc matching the id argument of operations on the
// given entity against the viewer id, for entities whose rows are viewers.
func OwnsRow(entity string) OwnerFunc {
	return func(_ context.Context, v Viewer, hc *hook.Context) bool {
		if hc.Entity != entity || hc.Event.Op.Is(relgraph.OpCreate|relgraph.OpList) {
			return false
		}
		for _, e := range hc.Entries {
			if _, ok := e.(map[string]any); !ok && e != nil {
				return fmt.Sprint(e) == v.GetID()
			}
		}
		return false
	}
}

// AnyOwner combines owner checks.
func AnyOwner(fns ...OwnerFunc) OwnerFunc {
	return func(ctx context.Context, v Viewer, hc *hook.Context) bool {
		return slices.ContainsFunc(fns, func(fn OwnerFunc) bool { return fn(ctx, v, hc) })
	}
}

// IsOwner allows operations whose data sets field to the viewer id.
//
//	privacy.Policy{
//	    privacy.DenyIfNoViewer(),
//	    privacy.IsOwner("owner_id"),
//	    privacy.AlwaysDenyRule(),
//	}
func IsOwner(field string) Rule {
	owns := OwnsField(field)
	return RuleFunc(func(ctx context.Context, hc *hook.Context) error {
		if v := ViewerFromContext(ctx); v != nil && owns(ctx, v, hc) {
			return Allow
		}
		return Skip
	})
}

// HasPermission asks a PermissionViewer for the action the operation needs.
// It allows or denies; other viewers are skipped. owns may be nil.
func HasPermission(owns OwnerFunc) Rule {
	return RuleFunc(func(ctx context.Context, hc *hook.Context) error {
		v, ok := ViewerFromContext(ctx).(PermissionViewer)
		if !ok {
			return Skip
		}
		action := ActionOf(hc.Event.Op)
		own := owns != nil && owns(ctx, v, hc)
		if v.Can(action, hc.Entity, own) {
			return Allow
		}
		return Denyf("privacy: %s on %s not permitted", action, hc.Entity)
	})
}

// TenantRule denies operations whose data sets field to a tenant other than
// the viewer's, and allows those that set the viewer's.
func TenantRule(field string) Rule {
	return RuleFunc(func(ctx context.Context, hc *hook.Context) error {
		v, ok := ViewerFromContext(ctx).(TenantViewer)
		if !ok || v.GetTenantID() == "" {
			return Skip
		}
		value, ok := hc.Data()[field]
		switch {
		case !ok:
			return Skip
		case fmt.Sprint(value) == v.GetTenantID():
			return Allow
		default:
			return Denyf("privacy: tenant mismatch")
		}
	})
}

// DenyIfNoTenant denies operations whose viewer has no tenant.
func DenyIfNoTenant() Rule {
	return ContextRule(func(ctx context.Context) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Denyf("privacy: viewer required")
		}
		if v, ok := viewer.(TenantViewer); !ok || v.GetTenantID() == "" {
			return Denyf("privacy: tenant required")
		}
		return Skip
	})
}
