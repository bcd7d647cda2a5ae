package queryd

import "fmt"

// Validate surfaces a malformed descriptor before streaming begins
// (spec.md §4.4 guarantee 6): unknown op, empty field path, or a value
// shape that does not match its operator.
func (d *Descriptor) Validate() error {
	if d.Collection == "" {
		return fmt.Errorf("queryd: collection is required")
	}
	if d.Where != nil {
		if err := d.Where.validate(); err != nil {
			return err
		}
	}
	for _, k := range d.OrderBy {
		if k.Field == "" {
			return fmt.Errorf("queryd: orderBy field path is empty")
		}
	}
	for _, f := range d.Select {
		if f == "" {
			return fmt.Errorf("queryd: select field path is empty")
		}
	}
	return nil
}

func (n *FilterNode) validate() error {
	switch n.Kind {
	case NodeBinary:
		if n.Field == "" {
			return fmt.Errorf("queryd: binary filter has empty field path")
		}
		switch n.BinOp {
		case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte, OpStartsWith, OpContains:
		case OpIn:
			if len(n.Values) == 0 {
				return fmt.Errorf("queryd: 'in' filter on %q has no values", n.Field)
			}
		default:
			return fmt.Errorf("queryd: unknown filter operator %q", n.BinOp)
		}
		if (n.BinOp == OpStartsWith || n.BinOp == OpContains) && n.Value.Kind != ScalarString {
			return fmt.Errorf("queryd: operator %q on %q requires a string value", n.BinOp, n.Field)
		}
		return nil
	case NodeLogical:
		if n.LogicalOp != LogicalAnd && n.LogicalOp != LogicalOr {
			return fmt.Errorf("queryd: unknown logical operator %q", n.LogicalOp)
		}
		if len(n.Children) == 0 {
			return fmt.Errorf("queryd: logical node has no children")
		}
		for _, c := range n.Children {
			if err := c.validate(); err != nil {
				return err
			}
		}
		return nil
	case NodeUnary:
		if n.Negated == nil {
			return fmt.Errorf("queryd: unary filter has no negated child")
		}
		return n.Negated.validate()
	default:
		return fmt.Errorf("queryd: unknown filter node kind %d", n.Kind)
	}
}
