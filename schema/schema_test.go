package schema_test

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/syssam/relgraph/schema"
	"github.com/syssam/relgraph/schema/field"
)

const userModel = `
name: user
attributes:
  id: { type: UUID, primaryKey: true }
  username: { type: STRING, unique: true, allowNull: false }
  email: { type: STRING }
  created_at: { type: DATE }
associations:
  - { type: belongsTo, target: role }
  - { type: belongsToMany, target: access_group, through: user_access_groups }
meta:
  idField: id
`

func TestDecode(t *testing.T) {
	es, err := schema.Decode(strings.NewReader(userModel))
	require.NoError(t, err)
	require.Len(t, es, 1)

	u := es[0]
	assert.Equal(t, "user", u.Name)
	assert.Equal(t, "id", u.IDField())

	names := make([]string, 0, len(u.Attributes))
	for _, a := range u.Attributes {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"id", "username", "email", "created_at"}, names, "declaration order is kept")

	username, ok := u.Attributes.Lookup("username")
	require.True(t, ok)
	assert.Equal(t, field.TypeString, username.Type)
	assert.True(t, username.Unique)
	assert.False(t, username.Nullable())

	email, _ := u.Attributes.Lookup("email")
	assert.True(t, email.Nullable())
	id, _ := u.Attributes.Lookup("id")
	assert.False(t, id.Nullable())
	created, _ := u.Attributes.Lookup("created_at")
	assert.Equal(t, field.TypeTime, created.Type)

	require.Len(t, u.Associations, 2)
	assert.Equal(t, schema.Association{Type: "belongsToMany", Target: "access_group", Through: "user_access_groups"}, u.Associations[1])
}

func TestDecodeMultiDocument(t *testing.T) {
	src := userModel + `
---
name: role
attributes:
  id: { type: INTEGER, primaryKey: true }
  name: { type: STRING }
---
- name: permission
  attributes:
    id: { type: INTEGER, primaryKey: true }
- name: resource
  attributes:
    id: { type: UUID }
`
	es, err := schema.Decode(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, es, 4)
	assert.Equal(t, "role", es[1].Name)
	assert.Equal(t, "resource", es[3].Name)
	assert.Equal(t, "id", es[3].IDField())
}

func TestEntityValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		src  string
		err  string
	}{
		{
			name: "bad name",
			src:  "name: 'bad name'\nattributes: { id: { type: int } }",
			err:  "invalid entity name",
		},
		{
			name: "no attributes",
			src:  "name: x",
			err:  "has no attributes",
		},
		{
			name: "unknown type",
			src:  "name: x\nattributes: { id: { type: money } }",
			err:  "unknown attribute type",
		},
		{
			name: "missing identity",
			src:  "name: x\nattributes: { name: { type: string } }",
			err:  `identity attribute "id" is not declared`,
		},
		{
			name: "two primary keys",
			src:  "name: x\nattributes: { a: { type: int, primaryKey: true }, b: { type: int, primaryKey: true } }",
			err:  "more than one identity attribute",
		},
		{
			name: "idField disagrees",
			src:  "name: x\nattributes: { a: { type: int, primaryKey: true }, id: { type: int } }\nmeta: { idField: id }",
			err:  "differs from primary key",
		},
		{
			name: "association without target",
			src:  "name: x\nattributes: { id: { type: int } }\nassociations: [ { type: hasMany } ]",
			err:  "needs a type and a target",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := schema.Decode(strings.NewReader(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}
}

func TestAttributesMarshalYAML(t *testing.T) {
	es, err := schema.Decode(strings.NewReader(userModel))
	require.NoError(t, err)
	out, err := yaml.Marshal(es[0])
	require.NoError(t, err)

	again, err := schema.Decode(strings.NewReader(string(out)))
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, es[0].Attributes[1].Name, again[0].Attributes[1].Name)
	assert.Less(t, strings.Index(string(out), "username"), strings.Index(string(out), "created_at"))
}

func TestLoadFS(t *testing.T) {
	fsys := fstest.MapFS{
		"models/access/user.yaml": {Data: []byte(userModel)},
		"models/access/role.yml":  {Data: []byte("name: role\nattributes: { id: { type: int } }")},
		"models/readme.md":        {Data: []byte("# not a model")},
	}
	es, err := schema.LoadFS(fsys, "models/**/*.yaml", "models/**/*.yml", "models/**/*.yaml")
	require.NoError(t, err)
	require.Len(t, es, 2)
	assert.Equal(t, "user", es[0].Name)
	assert.Equal(t, "role", es[1].Name)

	_, err = schema.LoadFS(fsys, "models/[")
	assert.Error(t, err)

	fsys["models/broken.yaml"] = &fstest.MapFile{Data: []byte("name: x")}
	_, err = schema.LoadFS(fsys, "models/*.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "models/broken.yaml")
}

func TestReferentialAction(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]string{
		"":          "",
		"cascade":   schema.Cascade,
		"CASCADE":   schema.Cascade,
		"setNull":   schema.SetNull,
		"set_null":  schema.SetNull,
		"SET NULL":  schema.SetNull,
		"restrict":  schema.Restrict,
		"noAction":  schema.NoAction,
		"no action": schema.NoAction,
	} {
		got, err := schema.ReferentialAction(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := schema.ReferentialAction("explode")
	assert.ErrorContains(t, err, `unknown referential action "explode"`)

	e := &schema.Entity{
		Name:         "post",
		Attributes:   schema.Attributes{{Name: "id", Type: field.TypeInt, PrimaryKey: true}},
		Associations: []schema.Association{{Type: "belongsTo", Target: "user", OnDelete: "explode"}},
	}
	assert.ErrorContains(t, e.Validate(), "association #0")
}
