package schema

import (
	"fmt"
	"strings"

	"ariga.io/atlas/sql/schema"
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Table   string
	Column  string
	Message string
	// Breaking indicates if the problem prevents the store from working.
	Breaking bool
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s.%s: %s", e.Table, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Table, e.Message)
}

// ValidationResult holds the results of schema validation.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []*ValidationError
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool { return len(r.Errors) > 0 }

// HasWarnings returns true if there are any validation warnings.
func (r *ValidationResult) HasWarnings() bool { return len(r.Warnings) > 0 }

func (r *ValidationResult) merge(o *ValidationResult) {
	r.Errors = append(r.Errors, o.Errors...)
	r.Warnings = append(r.Warnings, o.Warnings...)
}

// String returns a human-readable summary of the validation result.
func (r *ValidationResult) String() string {
	var sb strings.Builder
	write := func(title string, errs []*ValidationError) {
		if len(errs) == 0 {
			return
		}
		sb.WriteString(title)
		sb.WriteString(":\n")
		for _, e := range errs {
			sb.WriteString("  - ")
			sb.WriteString(e.Error())
			if e.Breaking {
				sb.WriteString(" [BREAKING]")
			}
			sb.WriteString("\n")
		}
	}
	write("Errors", r.Errors)
	write("Warnings", r.Warnings)
	if !r.HasErrors() && !r.HasWarnings() {
		sb.WriteString("No issues found")
	}
	return sb.String()
}

// ValidateTable validates a single table definition.
func ValidateTable(t *schema.Table) *ValidationResult {
	result := &ValidationResult{}
	if t.PrimaryKey == nil || len(t.PrimaryKey.Parts) == 0 {
		result.Warnings = append(result.Warnings, &ValidationError{Table: t.Name, Message: "table has no primary key"})
	}
	cols := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if cols[c.Name] {
			result.Errors = append(result.Errors, &ValidationError{Table: t.Name, Column: c.Name, Message: "duplicate column name"})
		}
		cols[c.Name] = true
	}
	idx := make(map[string]bool, len(t.Indexes))
	for _, i := range t.Indexes {
		if idx[i.Name] {
			result.Errors = append(result.Errors, &ValidationError{Table: t.Name, Message: fmt.Sprintf("duplicate index name: %s", i.Name)})
		}
		idx[i.Name] = true
		for _, p := range i.Parts {
			if p.C != nil && !cols[p.C.Name] {
				result.Errors = append(result.Errors, &ValidationError{
					Table:   t.Name,
					Message: fmt.Sprintf("index %q references non-existent column %q", i.Name, p.C.Name),
				})
			}
		}
	}
	for _, fk := range t.ForeignKeys {
		for _, c := range fk.Columns {
			if !cols[c.Name] {
				result.Errors = append(result.Errors, &ValidationError{
					Table:   t.Name,
					Message: fmt.Sprintf("foreign key %q references non-existent column %q", fk.Symbol, c.Name),
				})
			}
		}
	}
	return result
}

// ValidateSchema validates all tables and their foreign-key references.
func ValidateSchema(tables []*schema.Table) *ValidationResult {
	result := &ValidationResult{}
	names := make(map[string]bool, len(tables))
	for _, t := range tables {
		if names[t.Name] {
			result.Errors = append(result.Errors, &ValidationError{Table: t.Name, Message: "duplicate table name"})
		}
		names[t.Name] = true
		result.merge(ValidateTable(t))
	}
	for _, t := range tables {
		for _, fk := range t.ForeignKeys {
			if fk.RefTable == nil || !names[fk.RefTable.Name] {
				ref := "<nil>"
				if fk.RefTable != nil {
					ref = fk.RefTable.Name
				}
				result.Errors = append(result.Errors, &ValidationError{
					Table:   t.Name,
					Message: fmt.Sprintf("foreign key references non-existent table %q", ref),
				})
			}
		}
	}
	return result
}

// ValidateDrift compares the tables found in the database with the desired ones.
// Tables that do not exist yet and tables the model does not know are ignored.
// A missing column is breaking since existing tables are never altered.
func ValidateDrift(current, desired []*schema.Table) *ValidationResult {
	result := &ValidationResult{}
	existing := make(map[string]*schema.Table, len(current))
	for _, t := range current {
		existing[t.Name] = t
	}
	for _, want := range desired {
		have, ok := existing[want.Name]
		if !ok {
			continue
		}
		for _, wc := range want.Columns {
			hc, ok := have.Column(wc.Name)
			if !ok {
				result.Errors = append(result.Errors, &ValidationError{
					Table: want.Name, Column: wc.Name, Message: "column is missing in the database", Breaking: true,
				})
				continue
			}
			if hc.Type == nil || wc.Type == nil || isPrimary(want, wc) {
				continue
			}
			if hc.Type.Null && !wc.Type.Null {
				result.Warnings = append(result.Warnings, &ValidationError{
					Table: want.Name, Column: wc.Name, Message: "column is nullable in the database",
				})
			}
			if fmt.Sprintf("%T", hc.Type.Type) != fmt.Sprintf("%T", wc.Type.Type) {
				result.Warnings = append(result.Warnings, &ValidationError{
					Table: want.Name, Column: wc.Name,
					Message: fmt.Sprintf("column type is %s in the database", typeName(hc.Type)),
				})
			}
		}
		for _, hc := range have.Columns {
			if _, ok := want.Column(hc.Name); !ok && (hc.Type == nil || !hc.Type.Null) {
				result.Warnings = append(result.Warnings, &ValidationError{
					Table: want.Name, Column: hc.Name, Message: "unknown NOT NULL column may reject inserts",
				})
			}
		}
	}
	return result
}

func isPrimary(t *schema.Table, c *schema.Column) bool {
	if t.PrimaryKey == nil {
		return false
	}
	for _, p := range t.PrimaryKey.Parts {
		if p.C != nil && p.C.Name == c.Name {
			return true
		}
	}
	return false
}

func typeName(ct *schema.ColumnType) string {
	if ct.Raw != "" {
		return ct.Raw
	}
	return fmt.Sprintf("%T", ct.Type)
}
