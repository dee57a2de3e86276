package field

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Type is the semantic type of an attribute.
type Type uint8

// Attribute types.
const (
	TypeInvalid Type = iota
	TypeString
	TypeText
	TypeUUID
	TypeBool
	TypeInt
	TypeFloat
	TypeTime
	TypeJSON
)

var typeNames = [...]string{
	TypeInvalid: "invalid",
	TypeString:  "string",
	TypeText:    "text",
	TypeUUID:    "uuid",
	TypeBool:    "bool",
	TypeInt:     "int",
	TypeFloat:   "float",
	TypeTime:    "time",
	TypeJSON:    "json",
}

// aliases accepted in model files, lower-cased.
var typeAliases = map[string]Type{
	"string":   TypeString,
	"varchar":  TypeString,
	"text":     TypeText,
	"uuid":     TypeUUID,
	"bool":     TypeBool,
	"boolean":  TypeBool,
	"int":      TypeInt,
	"integer":  TypeInt,
	"bigint":   TypeInt,
	"float":    TypeFloat,
	"double":   TypeFloat,
	"decimal":  TypeFloat,
	"time":     TypeTime,
	"date":     TypeTime,
	"datetime": TypeTime,
	"json":     TypeJSON,
	"jsonb":    TypeJSON,
}

// String returns the canonical type name.
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Type(" + strconv.Itoa(int(t)) + ")"
}

// Valid reports if the type is a known attribute type.
func (t Type) Valid() bool { return t > TypeInvalid && int(t) < len(typeNames) }

// Numeric reports if values of this type are numbers.
func (t Type) Numeric() bool { return t == TypeInt || t == TypeFloat }

// ParseType parses a type name as written in model files.
func ParseType(s string) (Type, error) {
	if t, ok := typeAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t, nil
	}
	return TypeInvalid, fmt.Errorf("field: unknown attribute type %q", s)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Type) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := ParseType(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (t Type) MarshalYAML() (any, error) {
	return t.String(), nil
}

// Normalize converts a value scanned from a driver into the Go
// representation of the type. Unknown shapes are returned as they are.
func (t Type) Normalize(v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch t {
	case TypeBool:
		switch x := v.(type) {
		case int64:
			return x != 0
		case string:
			if b, err := strconv.ParseBool(x); err == nil {
				return b
			}
		}
	case TypeInt:
		switch x := v.(type) {
		case string:
			if n, err := strconv.ParseInt(x, 10, 64); err == nil {
				return n
			}
		case float64:
			return int64(x)
		}
	case TypeFloat:
		switch x := v.(type) {
		case string:
			if f, err := strconv.ParseFloat(x, 64); err == nil {
				return f
			}
		case int64:
			return float64(x)
		}
	case TypeTime:
		if s, ok := v.(string); ok {
			for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
				if ts, err := time.Parse(layout, s); err == nil {
					return ts
				}
			}
		}
	}
	return v
}

// Value converts a Go value into a value accepted by the database drivers.
// JSON values that are not already encoded are marshaled to text.
func (t Type) Value(v any) (any, error) {
	if v == nil || t != TypeJSON {
		return v, nil
	}
	switch v.(type) {
	case string, []byte, json.RawMessage:
		return v, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("field: encode json: %w", err)
	}
	return string(b), nil
}
