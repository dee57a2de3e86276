package seed

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Func computes a seed value from its arguments.
type Func func(args ...any) (any, error)

// Functions holds the functions and constants seed values may call. A value
// of the form
//
//	password:
//	  functionName: password
//	  args: [ "#staticSalt", "$associations.user.username", "admin1234" ]
//
// is replaced by the result of the call before the batch is ordered. An
// argument starting with "#" names a constant, one starting with "$" is a
// dotted path into the record ("entity", "data" or "associations").
type Functions struct {
	mu     sync.RWMutex
	funcs  map[string]Func
	consts map[string]any
}

// NewFunctions returns a registry holding the built-in functions: "now" (the
// current UTC time) and "uuid" (a random UUID string).
func NewFunctions() *Functions {
	f := &Functions{funcs: make(map[string]Func), consts: make(map[string]any)}
	f.Register("now", func(...any) (any, error) { return time.Now().UTC(), nil })
	f.Register("uuid", func(...any) (any, error) { return uuid.NewString(), nil })
	return f
}

// Register adds or replaces a function.
func (f *Functions) Register(name string, fn Func) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.funcs[name] = fn
}

// Constant adds or replaces a constant.
func (f *Functions) Constant(name string, v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consts[name] = v
}

// Call calls a registered function with the arguments resolved against r.
func (f *Functions) Call(name string, args []any, r *Record) (any, error) {
	f.mu.RLock()
	fn, ok := f.funcs[name]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("seed: unknown function %q", name)
	}
	resolved := make([]any, len(args))
	for i, a := range args {
		v, err := f.arg(a, r)
		if err != nil {
			return nil, fmt.Errorf("seed: %s argument %d: %w", name, i, err)
		}
		resolved[i] = v
	}
	return fn(resolved...)
}

// apply replaces every function-call value of the record data.
func (f *Functions) apply(r *Record) error {
	for k, v := range r.Data {
		name, args, ok := call(v)
		if !ok {
			continue
		}
		out, err := f.Call(name, args, r)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", r.Entity, k, err)
		}
		r.Data[k] = out
	}
	return nil
}

func (f *Functions) arg(a any, r *Record) (any, error) {
	s, ok := a.(string)
	if !ok {
		return a, nil
	}
	switch {
	case strings.HasPrefix(s, "#"):
		f.mu.RLock()
		v, ok := f.consts[s[1:]]
		f.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("unknown constant %q", s[1:])
		}
		return v, nil
	case strings.HasPrefix(s, "$"):
		return lookup(r.view(), s[1:])
	}
	return s, nil
}

// call reports whether v is a function-call value.
func call(v any) (string, []any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", nil, false
	}
	name, ok := m["functionName"].(string)
	if !ok || name == "" {
		return "", nil, false
	}
	switch args := m["args"].(type) {
	case []any:
		return name, args, true
	case nil:
		return name, nil, true
	default:
		return name, []any{args}, true
	}
}

func lookup(v any, path string) (any, error) {
	for _, part := range strings.Split(path, ".") {
		switch m := v.(type) {
		case map[string]any:
			next, ok := m[part]
			if !ok {
				return nil, fmt.Errorf("path %q: no %q", path, part)
			}
			v = next
		default:
			return nil, fmt.Errorf("path %q: %q is not an object", path, part)
		}
	}
	return v, nil
}
