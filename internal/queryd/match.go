package queryd

import (
	"strings"

	"github.com/blite-io/blite-server/internal/dictionary"
)

// FieldValue resolves a dot-separated field path against a document,
// descending into nested KindDocument values. ok is false if any segment
// is missing.
func FieldValue(doc dictionary.Document, path string) (dictionary.Value, bool) {
	segments := strings.Split(path, ".")
	cur := doc
	for i, seg := range segments {
		v, ok := cur[seg]
		if !ok {
			return dictionary.Value{}, false
		}
		if i == len(segments)-1 {
			return v, true
		}
		if v.Kind != dictionary.KindDocument {
			return dictionary.Value{}, false
		}
		cur = v.Doc
	}
	return dictionary.Value{}, false
}

// Match evaluates a filter tree against a document (the client-side
// reference semantics every push-down must agree with, spec.md §8).
func Match(n *FilterNode, doc dictionary.Document) bool {
	if n == nil {
		return true
	}
	switch n.Kind {
	case NodeBinary:
		fv, ok := FieldValue(doc, n.Field)
		if n.BinOp == OpIn {
			if !ok {
				return false
			}
			for _, want := range n.Values {
				if compareScalar(fv, want) == 0 {
					return true
				}
			}
			return false
		}
		if !ok {
			return n.BinOp == OpNeq && n.Value.Kind == ScalarNull
		}
		return matchBinary(fv, n.BinOp, n.Value)
	case NodeLogical:
		switch n.LogicalOp {
		case LogicalAnd:
			for _, c := range n.Children {
				if !Match(c, doc) {
					return false
				}
			}
			return true
		case LogicalOr:
			for _, c := range n.Children {
				if Match(c, doc) {
					return true
				}
			}
			return false
		}
		return false
	case NodeUnary:
		return !Match(n.Negated, doc)
	default:
		return false
	}
}

func matchBinary(fv dictionary.Value, op Op, want Scalar) bool {
	switch op {
	case OpEq:
		return compareScalar(fv, want) == 0
	case OpNeq:
		return compareScalar(fv, want) != 0
	case OpLt:
		return compareScalar(fv, want) < 0
	case OpLte:
		return compareScalar(fv, want) <= 0
	case OpGt:
		return compareScalar(fv, want) > 0
	case OpGte:
		return compareScalar(fv, want) >= 0
	case OpStartsWith:
		return fv.Kind == dictionary.KindString && strings.HasPrefix(fv.Str, want.Str)
	case OpContains:
		return fv.Kind == dictionary.KindString && strings.Contains(fv.Str, want.Str)
	default:
		return false
	}
}

// compareScalar returns -1/0/1 comparing a document field value against a
// filter scalar. Mismatched kinds compare as not-equal (any nonzero,
// arbitrarily -1), except numeric kinds which compare across widths.
func compareScalar(fv dictionary.Value, want Scalar) int {
	switch want.Kind {
	case ScalarNull:
		if fv.Kind == dictionary.KindNull {
			return 0
		}
		return -1
	case ScalarBool:
		if fv.Kind != dictionary.KindBool {
			return -1
		}
		if fv.Bool == want.Bool {
			return 0
		}
		return -1
	case ScalarInt32, ScalarInt64, ScalarTimestamp:
		if !isNumeric(fv) {
			return -1
		}
		return compareFloat(numericValue(fv), float64(want.Int64))
	case ScalarFloat64:
		if !isNumeric(fv) {
			return -1
		}
		return compareFloat(numericValue(fv), want.Float64)
	case ScalarDecimal, ScalarString:
		if fv.Kind != dictionary.KindString {
			return -1
		}
		return strings.Compare(fv.Str, want.Str)
	case ScalarUUID, ScalarObjectID:
		var fvBytes []byte
		if fv.Kind == dictionary.KindUUID || fv.Kind == dictionary.KindObjectID || fv.Kind == dictionary.KindBytes {
			fvBytes = fv.Bytes
		} else {
			return -1
		}
		return compareBytes(fvBytes, want.Bytes)
	default:
		return -1
	}
}

func isNumeric(v dictionary.Value) bool {
	switch v.Kind {
	case dictionary.KindInt32, dictionary.KindInt64, dictionary.KindFloat64, dictionary.KindTimestamp:
		return true
	default:
		return false
	}
}

func numericValue(v dictionary.Value) float64 {
	if v.Kind == dictionary.KindFloat64 {
		return v.Float64
	}
	return float64(v.Int64)
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBytes(a, b []byte) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Less reports whether doc a sorts before doc b under the given ordered
// keys, breaking ties by subsequent keys (spec.md §4.4 guarantee 2).
func Less(a, b dictionary.Document, keys []OrderKey) bool {
	for _, k := range keys {
		av, _ := FieldValue(a, k.Field)
		bv, _ := FieldValue(b, k.Field)
		c := compareValues(av, bv)
		if c == 0 {
			continue
		}
		if k.Descending {
			return c > 0
		}
		return c < 0
	}
	return false
}

func compareValues(a, b dictionary.Value) int {
	if isNumeric(a) && isNumeric(b) {
		return compareFloat(numericValue(a), numericValue(b))
	}
	if a.Kind == dictionary.KindString && b.Kind == dictionary.KindString {
		return strings.Compare(a.Str, b.Str)
	}
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}
	switch a.Kind {
	case dictionary.KindBool:
		if a.Bool == b.Bool {
			return 0
		}
		if !a.Bool {
			return -1
		}
		return 1
	case dictionary.KindUUID, dictionary.KindObjectID, dictionary.KindBytes:
		return compareBytes(a.Bytes, b.Bytes)
	default:
		return 0
	}
}

// Project narrows doc to only the named dot-path fields, preserving
// nesting (spec.md §4.4 guarantee 4).
func Project(doc dictionary.Document, fields []string) dictionary.Document {
	if fields == nil {
		return doc
	}
	out := make(dictionary.Document)
	for _, path := range fields {
		v, ok := FieldValue(doc, path)
		if !ok {
			continue
		}
		setPath(out, strings.Split(path, "."), v)
	}
	return out
}

func setPath(doc dictionary.Document, segments []string, v dictionary.Value) {
	if len(segments) == 1 {
		doc[segments[0]] = v
		return
	}
	head := segments[0]
	child, ok := doc[head]
	var childDoc dictionary.Document
	if ok && child.Kind == dictionary.KindDocument {
		childDoc = child.Doc
	} else {
		childDoc = make(dictionary.Document)
	}
	setPath(childDoc, segments[1:], v)
	doc[head] = dictionary.VDocument(childDoc)
}
