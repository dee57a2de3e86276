package access

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/graph"
	"github.com/syssam/relgraph/hook"
	"github.com/syssam/relgraph/privacy"
	"github.com/syssam/relgraph/resolve"
	"github.com/syssam/relgraph/store"
)

// Authentication errors.
var (
	ErrInvalidCredentials = errors.New("access: invalid username or password")
	ErrInactive           = errors.New("access: user is locked or inactive")
)

// Grant is a row of the permission entity.
type Grant struct {
	ResourceType string
	ResourceName string // table name or "*"
	Ownership    string // "own", "all" or "*"
	Action       string // letters of C, R, U and D
	Fields       string // "*" or "NONE"
	Exclude      string // comma-separated attribute names
}

func grantFromRow(r store.Row) Grant {
	s := func(k string) string {
		if v, ok := r[k]; ok && v != nil {
			return fmt.Sprint(v)
		}
		return ""
	}
	return Grant{
		ResourceType: s("resourceType"),
		ResourceName: s("resourceName"),
		Ownership:    s("ownership"),
		Action:       s("action"),
		Fields:       s("fields"),
		Exclude:      s("exclude"),
	}
}

func (g Grant) applies(action privacy.Action, table string) bool {
	return g.ResourceType == "db_entry" && action.In(g.Action) &&
		(g.ResourceName == "*" || g.ResourceName == table)
}

// Allows reports whether g grants action on table. Permissions with fields
// NONE only restrict.
func (g Grant) Allows(action privacy.Action, table string, own bool) bool {
	if !g.applies(action, table) || g.Fields == "NONE" {
		return false
	}
	switch g.Ownership {
	case "*", "all":
		return true
	case "own":
		return own
	default:
		return false
	}
}

// Excluded returns the attributes g withholds for action on table.
func (g Grant) Excluded(action privacy.Action, table string) []string {
	if !g.applies(action, table) || g.Exclude == "" {
		return nil
	}
	var out []string
	for _, f := range strings.Split(g.Exclude, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Viewer is an authenticated user with the grants of its role.
type Viewer struct {
	ID       any
	Username string
	Role     string
	Grants   []Grant
	tables   map[string]string
}

var _ privacy.PermissionViewer = (*Viewer)(nil)

// GetID returns the user id.
func (v *Viewer) GetID() string { return fmt.Sprint(v.ID) }

// GetRoles returns the role name, if the user has one.
func (v *Viewer) GetRoles() []string {
	if v.Role == "" {
		return nil
	}
	return []string{v.Role}
}

func (v *Viewer) table(entity string) string {
	if t, ok := v.tables[entity]; ok {
		return t
	}
	return entity
}

// Can reports whether one of the grants allows action on the entity.
func (v *Viewer) Can(action privacy.Action, entity string, own bool) bool {
	table := v.table(entity)
	return slices.ContainsFunc(v.Grants, func(g Grant) bool {
		return g.Allows(action, table, own)
	})
}

// Excluded returns the attributes of entity the viewer may not touch with action.
func (v *Viewer) Excluded(action privacy.Action, entity string) []string {
	table := v.table(entity)
	var out []string
	for _, g := range v.Grants {
		for _, f := range g.Excluded(action, table) {
			if !slices.Contains(out, f) {
				out = append(out, f)
			}
		}
	}
	return out
}

// Authenticate checks a username and password against the active passwords
// of the user and returns the user as a viewer.
func Authenticate(ctx context.Context, s store.Store, g *graph.Graph, staticSalt, username, password string) (*Viewer, error) {
	users, err := s.Query(ctx, User, store.Filter{"username": username})
	if err != nil {
		return nil, err
	}
	if len(users) != 1 {
		return nil, ErrInvalidCredentials
	}
	u := users[0]
	if truthy(u["locked"]) || !truthy(u["active"]) {
		return nil, ErrInactive
	}
	pws, err := s.Query(ctx, Password, store.Filter{"user_id": u["id"]})
	if err != nil {
		return nil, err
	}
	matched := false
	for _, pw := range pws {
		hash, _ := pw["password"].(string)
		if !truthy(pw["active"]) || hash == "" {
			continue
		}
		if ok, err := CheckPassword1(staticSalt, username, password, hash); err != nil {
			return nil, err
		} else if ok {
			matched = true
			break
		}
	}
	if !matched {
		return nil, ErrInvalidCredentials
	}
	return LoadViewer(ctx, s, g, u)
}

// LoadViewer builds the viewer of a user row from its role and the role's
// permissions.
func LoadViewer(ctx context.Context, s store.Store, g *graph.Graph, user store.Row) (*Viewer, error) {
	v := &Viewer{ID: user["id"], tables: make(map[string]string)}
	v.Username, _ = user["username"].(string)
	for _, e := range g.Entities() {
		v.tables[e.Name] = e.Table
	}
	r := resolve.New(g)
	getRole, err := r.ResolveRole(User, Role, relgraph.OpGet)
	if err != nil {
		return nil, err
	}
	res, err := getRole.Run(ctx, s, v.ID)
	if err != nil {
		return nil, err
	}
	role, _ := res.(store.Row)
	if role == nil {
		return v, nil
	}
	v.Role, _ = role["name"].(string)
	getPerms, err := r.ResolveRole(Role, Permission, relgraph.OpGetMany)
	if err != nil {
		return nil, err
	}
	if res, err = getPerms.Run(ctx, s, role["id"]); err != nil {
		return nil, err
	}
	rows, _ := res.([]store.Row)
	for _, row := range rows {
		v.Grants = append(v.Grants, grantFromRow(row))
	}
	return v, nil
}

// Policy enforces the permissions of the viewer in the context. Operations
// without a viewer are denied, and create and update operations may not set
// excluded attributes.
//
//	privacy.Install(reg, access.Policy())
func Policy() privacy.Policy {
	owns := privacy.AnyOwner(
		privacy.OwnsRow(User),
		privacy.OwnsField("user_id"),
		privacy.OwnsField("owner_id"),
	)
	return privacy.Policy{
		privacy.DenyIfNoViewer(),
		privacy.OnOperation(privacy.RuleFunc(denyExcluded), relgraph.OpCreate|relgraph.OpUpdate),
		privacy.HasPermission(owns),
	}
}

func denyExcluded(ctx context.Context, hc *hook.Context) error {
	v, ok := privacy.ViewerFromContext(ctx).(*Viewer)
	if !ok {
		return privacy.Skip
	}
	data := hc.Data()
	for _, f := range v.Excluded(privacy.ActionOf(hc.Event.Op), hc.Entity) {
		if _, set := data[f]; set {
			return privacy.Denyf("access: %s may not set %s.%s", v.Username, hc.Entity, f)
		}
	}
	return privacy.Skip
}

func truthy(v any) bool {
	switch v := v.(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	case []byte:
		return string(v) == "1" || strings.EqualFold(string(v), "true")
	case string:
		return v == "1" || strings.EqualFold(v, "true")
	default:
		return false
	}
}
