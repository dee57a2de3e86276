package sql

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/syssam/relgraph/dialect"
)

// validIdentifierRe validates SQL identifiers.
var validIdentifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// isValidIdentifier checks if the string is a valid SQL identifier.
func isValidIdentifier(s string) bool {
	return s != "" && len(s) <= 128 && validIdentifierRe.MatchString(s)
}

// escapeStringValue escapes a string value for use in a SQL literal.
// It doubles single quotes, and backslashes for MySQL compatibility.
func escapeStringValue(s string) string {
	if !strings.ContainsAny(s, `'\`) {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", "''")
}

// Quote quotes an identifier for the dialect.
func Quote(d, ident string) string {
	if d == dialect.MySQL {
		return "`" + ident + "`"
	}
	return `"` + ident + `"`
}

// Literal renders a value as an inline SQL literal. It is used for logging
// statements, never for executing them.
func Literal(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + escapeStringValue(v) + "'"
	case []byte:
		return "'" + escapeStringValue(string(v)) + "'"
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(v)
	case time.Time:
		return "'" + v.UTC().Format(time.RFC3339Nano) + "'"
	case fmt.Stringer:
		return "'" + escapeStringValue(v.String()) + "'"
	default:
		return "'" + escapeStringValue(fmt.Sprint(v)) + "'"
	}
}

// Statement is a parameterized SQL statement.
type Statement struct {
	Query string
	Args  []any
	// Returns reports if the statement produces rows.
	Returns bool

	inline string
}

// String returns the statement with its arguments rendered inline.
func (s Statement) String() string {
	if s.inline != "" {
		return s.inline
	}
	if len(s.Args) == 0 {
		return s.Query
	}
	return fmt.Sprintf("%s %v", s.Query, s.Args)
}

// Builder builds a single statement for a dialect. The first invalid
// identifier is recorded and reported by Statement.
type Builder struct {
	dialect string
	sb      strings.Builder
	inline  strings.Builder
	args    []any
	err     error
}

// NewBuilder returns a Builder for the dialect.
func NewBuilder(dialect string) *Builder {
	return &Builder{dialect: dialect}
}

// Dialect returns the dialect of the builder.
func (b *Builder) Dialect() string { return b.dialect }

// WriteString writes raw SQL.
func (b *Builder) WriteString(s string) *Builder {
	b.sb.WriteString(s)
	b.inline.WriteString(s)
	return b
}

// Ident writes a quoted identifier. A dotted name is quoted per part.
func (b *Builder) Ident(name string) *Builder {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if i > 0 {
			b.WriteString(".")
		}
		if p == "*" && i == len(parts)-1 && i > 0 {
			b.WriteString(p)
			continue
		}
		if !isValidIdentifier(p) && b.err == nil {
			b.err = fmt.Errorf("dialect/sql: invalid identifier %q", name)
		}
		b.WriteString(Quote(b.dialect, p))
	}
	return b
}

// Idents writes a comma-separated list of quoted identifiers.
func (b *Builder) Idents(names ...string) *Builder {
	for i, n := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(n)
	}
	return b
}

// Arg writes a placeholder for the value.
func (b *Builder) Arg(v any) *Builder {
	b.args = append(b.args, v)
	if b.dialect == dialect.Postgres {
		b.sb.WriteString("$" + strconv.Itoa(len(b.args)))
	} else {
		b.sb.WriteByte('?')
	}
	b.inline.WriteString(Literal(v))
	return b
}

// Args writes comma-separated placeholders for the values.
func (b *Builder) Args(vs ...any) *Builder {
	for i, v := range vs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Arg(v)
	}
	return b
}

// In writes an `col IN (...)` predicate, or `col = ?` for a single value.
func (b *Builder) In(col string, vs ...any) *Builder {
	b.Ident(col)
	if len(vs) == 1 {
		return b.WriteString(" = ").Arg(vs[0])
	}
	return b.WriteString(" IN (").Args(vs...).WriteString(")")
}

// Eq writes a `col = ?` predicate, or `col IS NULL` for nil.
func (b *Builder) Eq(col string, v any) *Builder {
	b.Ident(col)
	if v == nil {
		return b.WriteString(" IS NULL")
	}
	return b.WriteString(" = ").Arg(v)
}

// Err returns the first error recorded while building.
func (b *Builder) Err() error { return b.err }

// Statement returns the built statement.
func (b *Builder) Statement(returns bool) (Statement, error) {
	if b.err != nil {
		return Statement{}, b.err
	}
	return Statement{
		Query:   b.sb.String(),
		Args:    b.args,
		Returns: returns,
		inline:  b.inline.String(),
	}, nil
}
