package graph

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-openapi/inflect"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var rules = ruleset()

func ruleset() *inflect.Ruleset {
	rs := inflect.NewDefaultRuleset()
	for _, w := range []string{"data", "info", "metadata"} {
		rs.AddUncountable(w)
	}
	return rs
}

// Plural returns the plural form of a name. Only the last word is inflected.
func Plural(name string) string {
	if name == "" {
		return ""
	}
	i := strings.LastIndexByte(name, '_')
	return name[:i+1] + rules.Pluralize(name[i+1:])
}

// Singular returns the singular form of a name.
func Singular(name string) string {
	if name == "" {
		return ""
	}
	i := strings.LastIndexByte(name, '_')
	return name[:i+1] + rules.Singularize(name[i+1:])
}

// Snake returns the snake_case form of a name ("accessGroup" -> "access_group").
func Snake(name string) string {
	if strings.IndexFunc(name, unicode.IsUpper) < 0 {
		return name
	}
	return rules.Underscore(name)
}

// TableName returns the table name of an entity.
func TableName(entity string) string {
	return Snake(Plural(entity))
}

// Pascal joins the parts in PascalCase, splitting each on underscores.
//
//	Pascal("user", "access_groups") // "UserAccessGroups"
func Pascal(parts ...string) string {
	caser := cases.Title(language.Und, cases.NoLower)
	var b strings.Builder
	for _, p := range parts {
		for _, w := range strings.Split(p, "_") {
			if w != "" {
				b.WriteString(caser.String(w))
			}
		}
	}
	return b.String()
}

// LowerCamel is like Pascal with a lowercase first letter.
func LowerCamel(parts ...string) string {
	s := Pascal(parts...)
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToLower(r)) + s[n:]
}

// MethodName builds an operation name from a verb and name parts.
//
//	MethodName("add", "role", "permissions") // "addRolePermissions"
func MethodName(verb string, parts ...string) string {
	return verb + Pascal(parts...)
}
