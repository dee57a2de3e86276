package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/graph"
	"github.com/syssam/relgraph/schema"
)

const model = `
name: user
attributes:
  id: { type: INTEGER, primaryKey: true }
  username: { type: STRING, unique: true }
  email: { type: STRING }
associations:
  - { type: belongsTo, target: role }
---
name: role
attributes:
  id: { type: INTEGER, primaryKey: true }
  name: { type: STRING }
associations:
  - { type: belongsToMany, target: permission, through: role_permissions }
---
name: permission
attributes:
  id: { type: INTEGER, primaryKey: true }
  name: { type: STRING }
---
name: session
attributes:
  id: { type: UUID, primaryKey: true }
  state: { type: JSON }
  active: { type: BOOLEAN, default: true }
associations:
  - { type: belongsTo, target: user }
meta: { owner: user }
`

func loadGraph(t *testing.T, src string) *graph.Graph {
	t.Helper()
	descs, err := schema.Decode(strings.NewReader(src))
	require.NoError(t, err)
	g, err := graph.Load(descs...)
	require.NoError(t, err)
	return g
}

func synthesize(t *testing.T, src string, opts ...SynthOption) *Table {
	t.Helper()
	tbl, err := NewSynthesizer(loadGraph(t, src), opts...).Synthesize()
	require.NoError(t, err)
	return tbl
}

func TestSynthesize(t *testing.T) {
	t.Parallel()
	tbl := synthesize(t, model)
	for _, name := range []string{
		"createUser", "createUserByArgs", "retrieveUser", "updateUser", "updateUserByArgs", "deleteUser", "listUsers",
		"setUserRole", "getUserRole", "unsetUserRole", "isSetUserRole", "isUserRole",
		"addRoleUsers", "removeRoleUsers", "setRoleUsers", "getRoleUsers", "hasRoleUsers", "countRoleUsers",
		"addRolePermissions", "removeRolePermissions", "setRolePermissions", "getRolePermissions", "hasRolePermissions", "countRolePermissions",
		"addPermissionRoles", "countPermissionRoles",
		"listSessions", "setSessionUser", "getUserSessions",
	} {
		_, ok := tbl.Lookup(name)
		assert.True(t, ok, name)
	}
	_, ok := tbl.Lookup("countUserRole")
	assert.False(t, ok)
	assert.Len(t, tbl.Names(), tbl.Len())
	assert.Len(t, tbl.Operations(), tbl.Len())

	t.Run("Signatures", func(t *testing.T) {
		for name, want := range map[string]string{
			"createUser":         "createUser(data) row",
			"createUserByArgs":   "createUserByArgs(username, email) row",
			"retrieveUser":       "retrieveUser(id, options) row",
			"updateUserByArgs":   "updateUserByArgs(id, username, email) count",
			"deleteUser":         "deleteUser(id) bool",
			"listUsers":          "listUsers(filter, options) rows",
			"setUserRole":        "setUserRole(id, roleId) none",
			"isUserRole":         "isUserRole(id, roleId) bool",
			"isSetUserRole":      "isSetUserRole(id) bool",
			"getUserRole":        "getUserRole(id) row",
			"addRolePermissions": "addRolePermissions(id, permissionIds...) none",
			"getRolePermissions": "getRolePermissions(id) rows",
			"hasRolePermissions": "hasRolePermissions(id, permissionIds...) bool",
			"countRoleUsers":     "countRoleUsers(id) count",
		} {
			op, ok := tbl.Lookup(name)
			require.True(t, ok, name)
			assert.Equal(t, want, op.Signature())
		}
	})

	t.Run("Relationship", func(t *testing.T) {
		op, _ := tbl.Lookup("addRoleUsers")
		assert.True(t, op.Relationship())
		assert.True(t, op.Reversed())
		assert.Equal(t, "role", op.Entity)
		assert.Equal(t, "user", op.Target)
		assert.Equal(t, "user", op.Alias)
		assert.Equal(t, relgraph.OpAdd, op.Resolution().Verb)

		op, _ = tbl.Lookup("setRolePermissions")
		assert.Equal(t, relgraph.OpSetMany, op.Verb)
		assert.False(t, op.Reversed())

		op, _ = tbl.Lookup("createUser")
		assert.False(t, op.Relationship())
		assert.Nil(t, op.Resolution())
	})

	t.Run("Flags", func(t *testing.T) {
		op, _ := tbl.Lookup("retrieveUser")
		assert.Contains(t, op.Flags, "role")
		assert.Contains(t, op.Flags, "rolePermissions")
		assert.Contains(t, op.Flags, "sessions")
		p, ok := op.Path("rolePermissions")
		require.True(t, ok)
		assert.Equal(t, "role.permission", p.Key())
		list, _ := tbl.Lookup("listUsers")
		assert.Equal(t, op.Flags, list.Flags)
		create, _ := tbl.Lookup("createUser")
		assert.Empty(t, create.Flags)

		shallow := synthesize(t, model, WithDepth(1))
		op, _ = shallow.Lookup("retrieveUser")
		assert.NotContains(t, op.Flags, "rolePermissions")
		none := synthesize(t, model, WithDepth(0))
		op, _ = none.Lookup("retrieveUser")
		assert.Empty(t, op.Flags)
	})

	t.Run("Deterministic", func(t *testing.T) {
		again := synthesize(t, model)
		assert.Equal(t, tbl.Names(), again.Names())
		for i, op := range tbl.Operations() {
			assert.Equal(t, op.Signature(), again.Operations()[i].Signature())
		}
	})
}

func TestSynthesizeBidirectional(t *testing.T) {
	t.Parallel()
	tbl := synthesize(t, `
name: user
attributes:
  id: { type: INTEGER, primaryKey: true }
associations:
  - { type: hasMany, target: post }
---
name: post
attributes:
  id: { type: INTEGER, primaryKey: true }
associations:
  - { type: belongsTo, target: user }
`)
	for _, name := range []string{"addUserPosts", "getUserPosts", "setPostUser", "getPostUser"} {
		_, ok := tbl.Lookup(name)
		assert.True(t, ok, name)
	}
	assert.Len(t, tbl.Entity("user"), 7+6)
	assert.Len(t, tbl.Entity("post"), 7+5)
}

func TestSynthesizeCollision(t *testing.T) {
	t.Parallel()
	g := loadGraph(t, `
name: a
attributes:
  id: { type: INTEGER, primaryKey: true }
associations:
  - { type: belongsTo, target: b_c }
---
name: b_c
attributes:
  id: { type: INTEGER, primaryKey: true }
---
name: a_b
attributes:
  id: { type: INTEGER, primaryKey: true }
associations:
  - { type: belongsTo, target: c }
---
name: c
attributes:
  id: { type: INTEGER, primaryKey: true }
`)
	_, err := NewSynthesizer(g).Synthesize()
	require.Error(t, err)
	assert.True(t, relgraph.IsNameCollision(err))
	assert.True(t, relgraph.IsConfigurationError(err))
	assert.Contains(t, err.Error(), `"getABC"`, "verbs are synthesized in bit order")
}

func TestSplitOps(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []relgraph.Op{relgraph.OpGet, relgraph.OpSet, relgraph.OpUnset, relgraph.OpIsSet, relgraph.OpIs},
		splitOps(relgraph.OpSet|relgraph.OpGet|relgraph.OpUnset|relgraph.OpIsSet|relgraph.OpIs))
	assert.Empty(t, splitOps(0))
}
