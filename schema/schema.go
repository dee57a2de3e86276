package schema

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/syssam/relgraph/schema/field"
)

var nameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Entity describes one entity of a model.
type Entity struct {
	Name         string        `yaml:"name" json:"name"`
	Attributes   Attributes    `yaml:"attributes" json:"attributes"`
	Associations []Association `yaml:"associations,omitempty" json:"associations,omitempty"`
	// Mixins name reusable attribute sets (see package mixin).
	Mixins []string `yaml:"mixins,omitempty" json:"mixins,omitempty"`
	Meta   Meta     `yaml:"meta,omitempty" json:"meta,omitempty"`
}

// Meta holds entity-level settings.
type Meta struct {
	IDField string `yaml:"idField,omitempty" json:"idField,omitempty"`
	// Owner names the entity that owns rows of this one, if any.
	Owner string `yaml:"owner,omitempty" json:"owner,omitempty"`
}

// Association is a declared relationship to another entity.
type Association struct {
	Type    string `yaml:"type" json:"type"` // hasOne, belongsTo, hasMany, belongsToMany
	Target  string `yaml:"target" json:"target"`
	Through string `yaml:"through,omitempty" json:"through,omitempty"`
	As      string `yaml:"as,omitempty" json:"as,omitempty"`
	// OnDelete is the referential action of the foreign key: cascade,
	// setNull (default), restrict or noAction.
	OnDelete string `yaml:"onDelete,omitempty" json:"onDelete,omitempty"`
}

// Referential actions of foreign keys, as SQL keywords.
const (
	Cascade  = "CASCADE"
	SetNull  = "SET NULL"
	Restrict = "RESTRICT"
	NoAction = "NO ACTION"
)

// ReferentialAction returns the SQL keyword of an onDelete value. Case,
// spaces, underscores and camel case are ignored, so "setNull", "set_null"
// and "SET NULL" are the same action. An empty value returns "".
func ReferentialAction(v string) (string, error) {
	norm := strings.ToLower(strings.NewReplacer(" ", "", "_", "").Replace(v))
	switch norm {
	case "":
		return "", nil
	case "cascade":
		return Cascade, nil
	case "setnull":
		return SetNull, nil
	case "restrict":
		return Restrict, nil
	case "noaction":
		return NoAction, nil
	}
	return "", fmt.Errorf("schema: unknown referential action %q", v)
}

// Attribute is a single entity attribute.
type Attribute struct {
	Name       string     `yaml:"-" json:"name"`
	Type       field.Type `yaml:"type" json:"type"`
	PrimaryKey bool       `yaml:"primaryKey,omitempty" json:"primaryKey,omitempty"`
	Unique     bool       `yaml:"unique,omitempty" json:"unique,omitempty"`
	AllowNull  *bool      `yaml:"allowNull,omitempty" json:"allowNull,omitempty"`
	Default    any        `yaml:"default,omitempty" json:"default,omitempty"`
}

// Nullable reports whether the attribute accepts NULL. Attributes are
// nullable unless declared otherwise; identity attributes never are.
func (a *Attribute) Nullable() bool {
	if a.PrimaryKey {
		return false
	}
	return a.AllowNull == nil || *a.AllowNull
}

// Attributes is an ordered attribute list that decodes from a YAML mapping.
type Attributes []*Attribute

// UnmarshalYAML implements yaml.Unmarshaler, keeping mapping order.
func (as *Attributes) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("schema: line %d: attributes must be a mapping", node.Line)
	}
	out := make(Attributes, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		a := &Attribute{}
		if err := node.Content[i+1].Decode(a); err != nil {
			return fmt.Errorf("schema: attribute %q: %w", node.Content[i].Value, err)
		}
		a.Name = node.Content[i].Value
		out = append(out, a)
	}
	*as = out
	return nil
}

// MarshalYAML implements yaml.Marshaler, keeping attribute order.
func (as Attributes) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, a := range as {
		var v yaml.Node
		if err := v.Encode(a); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: a.Name}, &v)
	}
	return node, nil
}

// Lookup returns the attribute with the given name.
func (as Attributes) Lookup(name string) (*Attribute, bool) {
	for _, a := range as {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// IDField returns the name of the identity attribute: the declared meta idField,
// else the primary-key attribute, else "id".
func (e *Entity) IDField() string {
	if e.Meta.IDField != "" {
		return e.Meta.IDField
	}
	for _, a := range e.Attributes {
		if a.PrimaryKey {
			return a.Name
		}
	}
	return "id"
}

// Validate checks the descriptor in isolation. Cross-entity references are
// checked when the entity is registered in a graph.
func (e *Entity) Validate() error {
	if !nameRe.MatchString(e.Name) {
		return fmt.Errorf("schema: invalid entity name %q", e.Name)
	}
	if len(e.Attributes) == 0 {
		return fmt.Errorf("schema: entity %q has no attributes", e.Name)
	}
	seen := make(map[string]bool, len(e.Attributes))
	var pks []string
	for _, a := range e.Attributes {
		if !nameRe.MatchString(a.Name) {
			return fmt.Errorf("schema: entity %q: invalid attribute name %q", e.Name, a.Name)
		}
		if seen[a.Name] {
			return fmt.Errorf("schema: entity %q: duplicate attribute %q", e.Name, a.Name)
		}
		seen[a.Name] = true
		if !a.Type.Valid() {
			return fmt.Errorf("schema: entity %q: attribute %q has no valid type", e.Name, a.Name)
		}
		if a.PrimaryKey {
			pks = append(pks, a.Name)
		}
	}
	id := e.IDField()
	if !seen[id] {
		return fmt.Errorf("schema: entity %q: identity attribute %q is not declared", e.Name, id)
	}
	switch {
	case len(pks) > 1:
		return fmt.Errorf("schema: entity %q: more than one identity attribute: %v", e.Name, pks)
	case len(pks) == 1 && pks[0] != id:
		return fmt.Errorf("schema: entity %q: idField %q differs from primary key %q", e.Name, id, pks[0])
	}
	for i, as := range e.Associations {
		if as.Type == "" || as.Target == "" {
			return fmt.Errorf("schema: entity %q: association #%d needs a type and a target", e.Name, i)
		}
		if as.As != "" && !nameRe.MatchString(as.As) {
			return fmt.Errorf("schema: entity %q: invalid association alias %q", e.Name, as.As)
		}
		if _, err := ReferentialAction(as.OnDelete); err != nil {
			return fmt.Errorf("schema: entity %q: association #%d: %w", e.Name, i, err)
		}
	}
	return nil
}
