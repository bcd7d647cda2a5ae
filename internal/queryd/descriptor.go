// Package queryd implements the language-neutral query descriptor IR from
// spec.md §4.4: the serialisable tree both the RPC and HTTP surfaces
// compile into, and the engine executes with push-down of filter / sort /
// project / page.
package queryd

// Op enumerates the filter comparison operators from spec.md §4.4.
type Op string

const (
	OpEq         Op = "="
	OpNeq        Op = "!="
	OpLt         Op = "<"
	OpLte        Op = "<="
	OpGt         Op = ">"
	OpGte        Op = ">="
	OpStartsWith Op = "startsWith"
	OpContains   Op = "contains"
	OpIn         Op = "in"
)

// ScalarKind tags the tagged-scalar value kinds used in filter leaves.
type ScalarKind byte

const (
	ScalarNull ScalarKind = iota
	ScalarBool
	ScalarInt32
	ScalarInt64
	ScalarFloat64
	ScalarDecimal
	ScalarString
	ScalarTimestamp
	ScalarUUID
	ScalarObjectID
)

// Scalar is a tagged filter value.
type Scalar struct {
	Kind    ScalarKind
	Bool    bool
	Int64   int64
	Float64 float64
	Str     string  // also carries Decimal's textual form
	Bytes   []byte  // UUID(16) / ObjectID(12)
}

// NodeKind discriminates the filter tree's variants.
type NodeKind byte

const (
	NodeBinary NodeKind = iota
	NodeLogical
	NodeUnary
)

// LogicalOp enumerates the n-ary logical connectives.
type LogicalOp string

const (
	LogicalAnd LogicalOp = "and"
	LogicalOr  LogicalOp = "or"
)

// FilterNode is one node of the filter tree (spec.md §4.4).
type FilterNode struct {
	Kind NodeKind

	// NodeBinary
	Field  string // dot-separated, lowercase
	BinOp  Op
	Value  Scalar   // used when BinOp != OpIn
	Values []Scalar // used when BinOp == OpIn

	// NodeLogical
	LogicalOp LogicalOp
	Children  []*FilterNode

	// NodeUnary (negation)
	Negated *FilterNode
}

// OrderKey is one ordered sort key.
type OrderKey struct {
	Field      string
	Descending bool
}

// Descriptor is the full query IR: target collection, optional filter
// tree, optional projection, ordered sort keys, skip, take.
type Descriptor struct {
	Collection string
	Where      *FilterNode
	Select     []string // ordered projection field names; nil = all fields
	OrderBy    []OrderKey
	Skip       int
	Take       int // 0 = unlimited
}

// Clamp normalizes negative Skip/Take to zero per spec.md §4.4 guarantee 3.
func (d *Descriptor) Clamp() {
	if d.Skip < 0 {
		d.Skip = 0
	}
	if d.Take < 0 {
		d.Take = 0
	}
}
