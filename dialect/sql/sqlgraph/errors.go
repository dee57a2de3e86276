package sqlgraph

import (
	"errors"
	"strings"
)

// ConstraintKind classifies a constraint violation.
type ConstraintKind uint8

// Constraint kinds.
const (
	Unique ConstraintKind = iota + 1
	ForeignKey
	Check
)

func (k ConstraintKind) String() string {
	switch k {
	case Unique:
		return "unique"
	case ForeignKey:
		return "foreign-key"
	case Check:
		return "check"
	}
	return "unknown"
}

// ConstraintError wraps a driver error caused by a constraint violation.
type ConstraintError struct {
	Kind ConstraintKind
	Err  error
}

// Error returns the error string.
func (e *ConstraintError) Error() string {
	return "sqlgraph: " + e.Kind.String() + " constraint failed: " + e.Err.Error()
}

// Unwrap returns the driver error.
func (e *ConstraintError) Unwrap() error { return e.Err }

// errorCoder is implemented by pq.Error and modernc.org/sqlite errors.
type errorCoder interface {
	Code() string
}

// errorNumberer is implemented by MySQL errors exposing their number.
type errorNumberer interface {
	Number() uint16
}

// sqlStateError is implemented by errors exposing a SQLSTATE code.
type sqlStateError interface {
	SQLState() string
}

// signature lists how each driver reports a kind of violation.
type signature struct {
	sqlstate string   // PostgreSQL class 23 code
	mysql    []uint16 // MySQL error numbers
	text     []string // message fallbacks for drivers without codes
}

var signatures = map[ConstraintKind]signature{
	Unique: {
		sqlstate: "23505",
		mysql:    []uint16{1062},
		text:     []string{"Error 1062", "violates unique constraint", "UNIQUE constraint failed"},
	},
	ForeignKey: {
		sqlstate: "23503",
		mysql:    []uint16{1451, 1452},
		text:     []string{"Error 1451", "Error 1452", "violates foreign key constraint", "FOREIGN KEY constraint failed"},
	},
	Check: {
		sqlstate: "23514",
		mysql:    []uint16{3819},
		text:     []string{"Error 3819", "violates check constraint", "CHECK constraint failed"},
	},
}

func (s signature) match(err error) bool {
	if e, ok := asError[sqlStateError](err); ok && e.SQLState() == s.sqlstate {
		return true
	}
	if e, ok := asError[errorCoder](err); ok && e.Code() == s.sqlstate {
		return true
	}
	if e, ok := asError[errorNumberer](err); ok {
		for _, n := range s.mysql {
			if e.Number() == n {
				return true
			}
		}
	}
	msg := err.Error()
	for _, sub := range s.text {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}

// Classify wraps err in a ConstraintError when it reports a constraint
// violation, and returns it unchanged otherwise.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return err
	}
	for _, k := range []ConstraintKind{Unique, ForeignKey, Check} {
		if signatures[k].match(err) {
			return &ConstraintError{Kind: k, Err: err}
		}
	}
	return err
}

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	return IsUniqueConstraintError(err) || IsForeignKeyConstraintError(err) || IsCheckConstraintError(err)
}

// IsUniqueConstraintError reports if the error resulted from a uniqueness violation.
func IsUniqueConstraintError(err error) bool { return is(err, Unique) }

// IsForeignKeyConstraintError reports if the error resulted from a foreign-key violation.
func IsForeignKeyConstraintError(err error) bool { return is(err, ForeignKey) }

// IsCheckConstraintError reports if the error resulted from a check constraint violation.
func IsCheckConstraintError(err error) bool { return is(err, Check) }

func is(err error, k ConstraintKind) bool {
	if err == nil {
		return false
	}
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce.Kind == k
	}
	return signatures[k].match(err)
}

// asError extracts an error implementing T from the error chain.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}
