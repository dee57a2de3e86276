package gen

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/session"
)

var descriptions = map[relgraph.Op]string{
	relgraph.OpCreate:   "creates a %[1]s",
	relgraph.OpRetrieve: "returns the %[1]s with the given id",
	relgraph.OpUpdate:   "updates the %[1]s with the given id and returns the number of updated rows",
	relgraph.OpDelete:   "deletes the %[1]s with the given id and reports whether it existed",
	relgraph.OpList:     "returns the %[1]s rows matching the filter",
	relgraph.OpSet:      "sets the %[2]s of a %[1]s",
	relgraph.OpGet:      "returns the %[2]s of a %[1]s, or nil when unset",
	relgraph.OpUnset:    "clears the %[2]s of a %[1]s",
	relgraph.OpIsSet:    "reports whether a %[1]s has a %[2]s",
	relgraph.OpIs:       "reports whether the %[2]s of a %[1]s is the given one",
	relgraph.OpAdd:      "links %[2]s to a %[1]s",
	relgraph.OpRemove:   "unlinks %[2]s from a %[1]s",
	relgraph.OpSetMany:  "replaces the %[2]s of a %[1]s",
	relgraph.OpGetMany:  "returns the %[2]s of a %[1]s",
	relgraph.OpHas:      "reports whether all given %[2]s are linked to a %[1]s",
	relgraph.OpCount:    "counts the %[2]s of a %[1]s",
}

// Describe returns a short lowercase description of what an operation does.
func Describe(op *session.Operation) string {
	text := fmt.Sprintf(descriptions[op.Verb], op.Entity, strings.ReplaceAll(op.Alias, "_", " "))
	if op.ByArgs {
		text += " from positional attribute values"
	} else if op.Verb.Is(relgraph.OpCreate) {
		text += " from a data object"
	}
	return text
}

// docsFile renders the markdown reference of the operations, grouped by
// entity.
func (g *Generator) docsFile() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# Operations\n\nFingerprint: `%s`\n", g.Fingerprint())
	entity := ""
	for _, op := range g.table.Operations() {
		if op.Entity != entity {
			entity = op.Entity
			fmt.Fprintf(&b, "\n## %s\n\n| Operation | Returns | Description |\n|---|---|---|\n", entity)
		}
		fmt.Fprintf(&b, "| `%s` | %s | %s |\n", strings.TrimSuffix(op.Signature(), " "+op.Returns().String()), op.Returns(), Describe(op))
		if len(op.Flags) > 0 && op.Verb == relgraph.OpRetrieve {
			fmt.Fprintf(&b, "| | | eager-load options: %s |\n", "`"+strings.Join(op.Flags, "`, `")+"`")
		}
	}
	return b.Bytes()
}
