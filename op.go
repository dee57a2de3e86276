package relgraph

import (
	"fmt"
	"strings"
)

// Op is an operation verb. Ops are bit flags so rules can match several at once,
// e.g. OnOperation(rule, OpCreate|OpUpdate).
type Op uint32

// Entity-level and relationship-level operations.
const (
	OpCreate Op = 1 << iota
	OpRetrieve
	OpUpdate
	OpDelete
	OpList
	OpGet
	OpSet
	OpUnset
	OpIsSet
	OpIs
	OpAdd
	OpRemove
	OpHas
	OpCount
	OpSetMany
	OpGetMany
)

// EntityOps are the operations generated once per entity.
const EntityOps = OpCreate | OpRetrieve | OpUpdate | OpDelete | OpList

// MutationOps are the operations that change stored data.
const MutationOps = OpCreate | OpUpdate | OpDelete | OpSet | OpUnset | OpAdd | OpRemove | OpSetMany

var opNames = []struct {
	op   Op
	name string
}{
	{OpCreate, "create"},
	{OpRetrieve, "retrieve"},
	{OpUpdate, "update"},
	{OpDelete, "delete"},
	{OpList, "list"},
	{OpGet, "get"},
	{OpSet, "set"},
	{OpUnset, "unset"},
	{OpIsSet, "isSet"},
	{OpIs, "is"},
	{OpAdd, "add"},
	{OpRemove, "remove"},
	{OpHas, "has"},
	{OpCount, "count"},
	{OpSetMany, "setMany"},
	{OpGetMany, "getMany"},
}

// Is reports whether o matches any bit of op.
func (o Op) Is(op Op) bool { return o&op != 0 }

// IsMutation reports whether the operation changes stored data.
func (o Op) IsMutation() bool { return o.Is(MutationOps) }

// String returns the verb name, or names joined by "|" for combined ops.
func (o Op) String() string {
	var names []string
	for _, n := range opNames {
		if o&n.op != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("Op(%d)", uint32(o))
	}
	return strings.Join(names, "|")
}

// ParseOp returns the Op for a verb name.
func ParseOp(s string) (Op, error) {
	for _, n := range opNames {
		if n.name == s {
			return n.op, nil
		}
	}
	return 0, fmt.Errorf("relgraph: unknown operation %q", s)
}
