package mixin

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/hook"
	"github.com/syssam/relgraph/schema"
	"github.com/syssam/relgraph/schema/field"
)

// Attribute names of the built-in mixins.
const (
	CreatedAt = "created_at"
	UpdatedAt = "updated_at"
	DeletedAt = "deleted_at"
	TenantID  = "tenant_id"
)

// Mixin is a named, reusable set of attributes.
type Mixin struct {
	Name string
	// Attributes returns fresh attribute descriptors on every call.
	Attributes func() schema.Attributes
}

var (
	mu       sync.RWMutex
	registry = map[string]Mixin{}
)

func notNull() *bool {
	f := false
	return &f
}

func init() {
	createTime := func() schema.Attributes {
		return schema.Attributes{{Name: CreatedAt, Type: field.TypeTime}}
	}
	updateTime := func() schema.Attributes {
		return schema.Attributes{{Name: UpdatedAt, Type: field.TypeTime}}
	}
	softDelete := func() schema.Attributes {
		return schema.Attributes{{Name: DeletedAt, Type: field.TypeTime}}
	}
	Register(Mixin{Name: "create_time", Attributes: createTime})
	Register(Mixin{Name: "update_time", Attributes: updateTime})
	Register(Mixin{Name: "time", Attributes: func() schema.Attributes {
		return append(createTime(), updateTime()...)
	}})
	Register(Mixin{Name: "soft_delete", Attributes: softDelete})
	Register(Mixin{Name: "time_soft_delete", Attributes: func() schema.Attributes {
		return append(append(createTime(), updateTime()...), softDelete()...)
	}})
	Register(Mixin{Name: "tenant_id", Attributes: func() schema.Attributes {
		return schema.Attributes{{Name: TenantID, Type: field.TypeString, AllowNull: notNull()}}
	}})
}

// Register adds or replaces a mixin.
func Register(m Mixin) {
	mu.Lock()
	defer mu.Unlock()
	registry[m.Name] = m
}

// Names returns the registered mixin names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply appends the attributes of the mixins the entity declares, in
// declaration order. Attributes the entity already has are kept as declared,
// so applying twice changes nothing.
func Apply(e *schema.Entity) error {
	mu.RLock()
	defer mu.RUnlock()
	for _, name := range e.Mixins {
		m, ok := registry[name]
		if !ok {
			return fmt.Errorf("schema: entity %q: unknown mixin %q", e.Name, name)
		}
		for _, a := range m.Attributes() {
			if _, ok := e.Attributes.Lookup(a.Name); !ok {
				e.Attributes = append(e.Attributes, a)
			}
		}
	}
	return nil
}

// Timestamps returns a before-hook handler that stamps created_at and
// updated_at on create, and updated_at on update, for the entities that have
// those attributes. Values given by the caller are kept.
//
//	reg.On(hook.Before, relgraph.OpCreate|relgraph.OpUpdate, mixin.Timestamps(time.Now, descs...))
func Timestamps(now func() time.Time, descs ...*schema.Entity) hook.Handler {
	stamped := make(map[string]map[string]bool, len(descs))
	for _, d := range descs {
		for _, name := range []string{CreatedAt, UpdatedAt} {
			if a, ok := d.Attributes.Lookup(name); ok && a.Type == field.TypeTime {
				if stamped[d.Name] == nil {
					stamped[d.Name] = map[string]bool{}
				}
				stamped[d.Name][name] = true
			}
		}
	}
	return hook.HandlerFunc(func(_ context.Context, hc *hook.Context) hook.Result {
		attrs := stamped[hc.Entity]
		if attrs == nil || hc.Event.Phase != hook.Before {
			return hook.Ok()
		}
		var set []string
		switch {
		case hc.Event.Op.Is(relgraph.OpCreate):
			set = []string{CreatedAt, UpdatedAt}
		case hc.Event.Op.Is(relgraph.OpUpdate):
			set = []string{UpdatedAt}
		default:
			return hook.Ok()
		}
		for i, e := range hc.Entries {
			data, ok := e.(map[string]any)
			if !ok {
				continue
			}
			// the caller's map is left untouched.
			out := make(map[string]any, len(data)+len(set))
			for k, v := range data {
				out[k] = v
			}
			ts := now().UTC()
			for _, name := range set {
				if _, given := out[name]; attrs[name] && !given {
					out[name] = ts
				}
			}
			hc.Entries[i] = out
			break
		}
		return hook.Ok()
	})
}
