package resolve

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/dialect/sql/sqlgraph"
	"github.com/syssam/relgraph/graph"
	"github.com/syssam/relgraph/schema"
)

const model = `
name: user
attributes:
  id: { type: INTEGER, primaryKey: true }
  username: { type: STRING, unique: true }
associations:
  - { type: belongsTo, target: role }
  - { type: hasMany, target: post }
  - { type: hasOne, target: profile }
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
name: post
attributes:
  id: { type: INTEGER, primaryKey: true }
  title: { type: STRING }
---
name: profile
attributes:
  id: { type: INTEGER, primaryKey: true }
  bio: { type: TEXT }
`

func testGraph(t *testing.T) *graph.Graph {
	t.Helper()
	descs, err := schema.Decode(strings.NewReader(model))
	require.NoError(t, err)
	g, err := graph.Load(descs...)
	require.NoError(t, err)
	return g
}

func TestAccessor(t *testing.T) {
	r := New(testGraph(t))
	tests := []struct {
		verb           relgraph.Op
		source, target string
		plural         bool
		want           string
		unsupported    bool
	}{
		{relgraph.OpGet, "user", "role", false, "getRole", false},
		{relgraph.OpSet, "user", "role", false, "setRole", false},
		{relgraph.OpIsSet, "user", "role", false, "isSetRole", false},
		{relgraph.OpAdd, "user", "role", false, "setRole", false},
		{relgraph.OpRemove, "user", "role", false, "unsetRole", false},
		{relgraph.OpCount, "user", "role", false, "", true},
		{relgraph.OpGet, "user", "role", true, "", true},
		{relgraph.OpAdd, "role", "permission", true, "addPermissions", false},
		{relgraph.OpAdd, "role", "permission", false, "addPermission", false},
		{relgraph.OpHas, "role", "permission", false, "hasPermission", false},
		{relgraph.OpCount, "role", "permission", true, "countPermissions", false},
		{relgraph.OpGet, "role", "permission", true, "getPermissions", false},
		{relgraph.OpGet, "role", "permission", false, "", true},
		{relgraph.OpIs, "user", "post", true, "", true},
		{relgraph.OpCreate, "user", "profile", false, "createProfile", false},
	}
	for _, tt := range tests {
		t.Run(tt.want+tt.verb.String(), func(t *testing.T) {
			got, err := r.Accessor(tt.verb, tt.source, tt.target, "", tt.plural)
			if tt.unsupported {
				require.Error(t, err)
				assert.True(t, relgraph.IsUnsupportedOperation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			again, err := r.Accessor(tt.verb, tt.source, tt.target, tt.target, tt.plural)
			require.NoError(t, err)
			assert.Equal(t, got, again, "explicit default alias resolves the same")
		})
	}

	_, err := r.Accessor(relgraph.OpGet, "user", "group", "", false)
	assert.True(t, relgraph.IsNotFound(err))
}

func TestResolve(t *testing.T) {
	r := New(testGraph(t))
	tests := []struct {
		entity, role string
		verb         relgraph.Op
		wantVerb     relgraph.Op
		name         string
		native       bool
		rel          sqlgraph.Relation
	}{
		{
			"user", "role", relgraph.OpSet, relgraph.OpSet, "setUserRole", true,
			sqlgraph.Relation{Shape: sqlgraph.LocalKey, OwnerTable: "users", OwnerID: "id", OtherTable: "roles", OtherID: "id", Column: "role_id"},
		},
		{
			"role", "user", relgraph.OpAdd, relgraph.OpAdd, "addRoleUsers", false,
			sqlgraph.Relation{Shape: sqlgraph.RemoteKey, OwnerTable: "roles", OwnerID: "id", OtherTable: "users", OtherID: "id", Column: "role_id"},
		},
		{
			"role", "permission", relgraph.OpGet, relgraph.OpGetMany, "getRolePermissions", false,
			sqlgraph.Relation{Shape: sqlgraph.Join, OwnerTable: "roles", OwnerID: "id", OtherTable: "permissions", OtherID: "id",
				JoinTable: "role_permissions", OwnerCol: "role_id", OtherCol: "permission_id"},
		},
		{
			"permission", "role", relgraph.OpSet, relgraph.OpSetMany, "setPermissionRoles", false,
			sqlgraph.Relation{Shape: sqlgraph.Join, OwnerTable: "permissions", OwnerID: "id", OtherTable: "roles", OtherID: "id",
				JoinTable: "role_permissions", OwnerCol: "permission_id", OtherCol: "role_id"},
		},
		{
			"user", "post", relgraph.OpCount, relgraph.OpCount, "countUserPosts", false,
			sqlgraph.Relation{Shape: sqlgraph.RemoteKey, OwnerTable: "users", OwnerID: "id", OtherTable: "posts", OtherID: "id", Column: "user_id"},
		},
		{
			"post", "user", relgraph.OpAdd, relgraph.OpSet, "setPostUser", false,
			sqlgraph.Relation{Shape: sqlgraph.LocalKey, OwnerTable: "posts", OwnerID: "id", OtherTable: "users", OtherID: "id", Column: "user_id"},
		},
		{
			"user", "profile", relgraph.OpIs, relgraph.OpIs, "isUserProfile", false,
			sqlgraph.Relation{Shape: sqlgraph.RemoteKey, OwnerTable: "users", OwnerID: "id", OtherTable: "profiles", OtherID: "id", Column: "user_id"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.ResolveRole(tt.entity, tt.role, tt.verb)
			require.NoError(t, err)
			assert.Equal(t, tt.wantVerb, res.Verb)
			assert.Equal(t, tt.name, res.Name)
			assert.Equal(t, tt.native, res.Native)
			assert.Equal(t, tt.rel, res.Relation)
		})
	}

	t.Run("Unsupported", func(t *testing.T) {
		_, err := r.ResolveRole("user", "role", relgraph.OpCount)
		require.Error(t, err)
		assert.True(t, relgraph.IsUnsupportedOperation(err))
		_, err = r.ResolveRole("role", "permission", relgraph.OpIsSet)
		assert.True(t, relgraph.IsUnsupportedOperation(err))
	})

	t.Run("UnknownRole", func(t *testing.T) {
		_, err := r.ResolveRole("user", "group", relgraph.OpGet)
		assert.True(t, relgraph.IsNotFound(err))
	})
}

func TestOperationName(t *testing.T) {
	g := testGraph(t)
	e, err := g.Edge("role", "permission", "")
	require.NoError(t, err)
	h := graph.Hop{Edge: e}
	assert.Equal(t, "setRolePermissions", OperationName(relgraph.OpSetMany, h))
	assert.Equal(t, "getRolePermissions", OperationName(relgraph.OpGetMany, h))
	assert.Equal(t, "hasRolePermissions", OperationName(relgraph.OpHas, h))
	assert.Equal(t, "countPermissionRoles", OperationName(relgraph.OpCount, graph.Hop{Edge: e, Reversed: true}))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, New(testGraph(t)).Validate())
}
