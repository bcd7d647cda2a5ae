// Package httpquery compiles the HTTP surface's JSON and query-string
// filter dialects (spec.md §4.10) into a queryd.Descriptor, the same IR
// the RPC surface's binary wire format decodes into. Both dialects share
// one scalar/operator vocabulary; only the transport shape differs.
package httpquery

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/blite-io/blite-server/internal/queryd"
)

// operatorsByKey maps the MongoDB-style "$op" keys onto queryd.Op.
var operatorsByKey = map[string]queryd.Op{
	"$eq":         queryd.OpEq,
	"$ne":         queryd.OpNeq,
	"$lt":         queryd.OpLt,
	"$lte":        queryd.OpLte,
	"$gt":         queryd.OpGt,
	"$gte":        queryd.OpGte,
	"$startsWith": queryd.OpStartsWith,
	"$contains":   queryd.OpContains,
	"$in":         queryd.OpIn,
}

// CompileJSON parses a minimal MongoDB-style JSON filter body and
// compiles it into a Descriptor for collection. Recognised top-level
// keys: "filter" (object), "select" ([]string), "sort" (object of
// field -> 1|-1), "skip", "take" (integers).
func CompileJSON(collection string, body []byte) (*queryd.Descriptor, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("httpquery: invalid JSON body")
	}
	root := gjson.ParseBytes(body)

	d := &queryd.Descriptor{Collection: collection}

	if f := root.Get("filter"); f.Exists() {
		node, err := compileFilterValue(f)
		if err != nil {
			return nil, err
		}
		d.Where = node
	}

	if sel := root.Get("select"); sel.Exists() {
		if !sel.IsArray() {
			return nil, fmt.Errorf("httpquery: \"select\" must be an array of field names")
		}
		for _, f := range sel.Array() {
			d.Select = append(d.Select, f.String())
		}
	}

	if srt := root.Get("sort"); srt.Exists() {
		if !srt.IsObject() {
			return nil, fmt.Errorf("httpquery: \"sort\" must be an object of field -> 1|-1")
		}
		srt.ForEach(func(key, value gjson.Result) bool {
			d.OrderBy = append(d.OrderBy, queryd.OrderKey{Field: key.String(), Descending: value.Int() < 0})
			return true
		})
	}

	if s := root.Get("skip"); s.Exists() {
		d.Skip = int(s.Int())
	}
	if t := root.Get("take"); t.Exists() {
		d.Take = int(t.Int())
	}

	d.Clamp()
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// compileFilterValue compiles one JSON value in filter position: either
// an object (implicit AND of its keys, or a logical/operator object) or
// a bare scalar is never valid at the top level.
func compileFilterValue(v gjson.Result) (*queryd.FilterNode, error) {
	if !v.IsObject() {
		return nil, fmt.Errorf("httpquery: filter must be a JSON object")
	}
	var clauses []*queryd.FilterNode
	var compileErr error

	v.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		switch k {
		case "$and", "$or":
			if !value.IsArray() {
				compileErr = fmt.Errorf("httpquery: %q must be an array of filter objects", k)
				return false
			}
			var children []*queryd.FilterNode
			for _, item := range value.Array() {
				child, err := compileFilterValue(item)
				if err != nil {
					compileErr = err
					return false
				}
				children = append(children, child)
			}
			op := queryd.LogicalAnd
			if k == "$or" {
				op = queryd.LogicalOr
			}
			clauses = append(clauses, &queryd.FilterNode{Kind: queryd.NodeLogical, LogicalOp: op, Children: children})
		case "$not":
			child, err := compileFilterValue(value)
			if err != nil {
				compileErr = err
				return false
			}
			clauses = append(clauses, &queryd.FilterNode{Kind: queryd.NodeUnary, Negated: child})
		default:
			fieldClauses, err := compileFieldValue(k, value)
			if err != nil {
				compileErr = err
				return false
			}
			clauses = append(clauses, fieldClauses...)
		}
		return true
	})
	if compileErr != nil {
		return nil, compileErr
	}

	switch len(clauses) {
	case 0:
		return nil, nil
	case 1:
		return clauses[0], nil
	default:
		return &queryd.FilterNode{Kind: queryd.NodeLogical, LogicalOp: queryd.LogicalAnd, Children: clauses}, nil
	}
}

// compileFieldValue compiles the value under one field key: either a
// bare scalar (implicit $eq) or an operator object like {"$gt": 10,
// "$lte": 20} (implicit AND across the operators present).
func compileFieldValue(field string, value gjson.Result) ([]*queryd.FilterNode, error) {
	field = strings.ToLower(field)
	if value.IsObject() && looksLikeOperatorObject(value) {
		var nodes []*queryd.FilterNode
		var err error
		value.ForEach(func(opKey, opValue gjson.Result) bool {
			op, ok := operatorsByKey[opKey.String()]
			if !ok {
				err = fmt.Errorf("httpquery: unknown filter operator %q on field %q", opKey.String(), field)
				return false
			}
			node := &queryd.FilterNode{Kind: queryd.NodeBinary, Field: field, BinOp: op}
			if op == queryd.OpIn {
				if !opValue.IsArray() {
					err = fmt.Errorf("httpquery: \"$in\" on field %q must be an array", field)
					return false
				}
				for _, item := range opValue.Array() {
					node.Values = append(node.Values, scalarFromJSON(item))
				}
			} else {
				node.Value = scalarFromJSON(opValue)
			}
			nodes = append(nodes, node)
			return true
		})
		return nodes, err
	}
	return []*queryd.FilterNode{{Kind: queryd.NodeBinary, Field: field, BinOp: queryd.OpEq, Value: scalarFromJSON(value)}}, nil
}

func looksLikeOperatorObject(v gjson.Result) bool {
	ok := false
	v.ForEach(func(key, _ gjson.Result) bool {
		if _, known := operatorsByKey[key.String()]; known {
			ok = true
		}
		return true
	})
	return ok
}

func scalarFromJSON(v gjson.Result) queryd.Scalar {
	switch v.Type {
	case gjson.True, gjson.False:
		return queryd.Scalar{Kind: queryd.ScalarBool, Bool: v.Bool()}
	case gjson.Number:
		if v.Num == float64(int64(v.Num)) {
			return queryd.Scalar{Kind: queryd.ScalarInt64, Int64: int64(v.Num)}
		}
		return queryd.Scalar{Kind: queryd.ScalarFloat64, Float64: v.Num}
	case gjson.String:
		return queryd.Scalar{Kind: queryd.ScalarString, Str: v.Str}
	default:
		return queryd.Scalar{Kind: queryd.ScalarNull}
	}
}

// CompileQueryString compiles the simpler query-string dialect used by
// plain GET requests: every parameter not in the reserved set is an
// equality filter on that field; "sort" is a comma-separated list of
// field names, a leading "-" meaning descending; "select" is a comma-
// separated field list; "skip"/"take" are integers.
func CompileQueryString(collection string, values url.Values) (*queryd.Descriptor, error) {
	d := &queryd.Descriptor{Collection: collection}

	var fields []*queryd.FilterNode
	reserved := map[string]bool{"sort": true, "select": true, "skip": true, "take": true}
	// sort keys for deterministic hashing/ordering of the resulting AND.
	var keys []string
	for k := range values {
		if !reserved[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, raw := range values[k] {
			fields = append(fields, &queryd.FilterNode{
				Kind: queryd.NodeBinary, Field: strings.ToLower(k), BinOp: queryd.OpEq, Value: scalarFromString(raw),
			})
		}
	}
	switch len(fields) {
	case 0:
	case 1:
		d.Where = fields[0]
	default:
		d.Where = &queryd.FilterNode{Kind: queryd.NodeLogical, LogicalOp: queryd.LogicalAnd, Children: fields}
	}

	if sortParam := values.Get("sort"); sortParam != "" {
		for _, f := range strings.Split(sortParam, ",") {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			desc := strings.HasPrefix(f, "-")
			d.OrderBy = append(d.OrderBy, queryd.OrderKey{Field: strings.TrimPrefix(f, "-"), Descending: desc})
		}
	}
	if selectParam := values.Get("select"); selectParam != "" {
		for _, f := range strings.Split(selectParam, ",") {
			if f = strings.TrimSpace(f); f != "" {
				d.Select = append(d.Select, f)
			}
		}
	}
	if skip := values.Get("skip"); skip != "" {
		if n, err := strconv.Atoi(skip); err == nil {
			d.Skip = n
		}
	}
	if take := values.Get("take"); take != "" {
		if n, err := strconv.Atoi(take); err == nil {
			d.Take = n
		}
	}

	d.Clamp()
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// scalarFromString infers a scalar kind from a raw query-string value:
// "true"/"false" are booleans, a parseable integer is Int64, otherwise
// it is kept as a string.
func scalarFromString(raw string) queryd.Scalar {
	if raw == "true" || raw == "false" {
		return queryd.Scalar{Kind: queryd.ScalarBool, Bool: raw == "true"}
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return queryd.Scalar{Kind: queryd.ScalarInt64, Int64: n}
	}
	return queryd.Scalar{Kind: queryd.ScalarString, Str: raw}
}
