package queryd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDescriptorWireRoundTrip(t *testing.T) {
	d := &Descriptor{
		Collection: "orders",
		Where: &FilterNode{
			Kind:      NodeLogical,
			LogicalOp: LogicalAnd,
			Children: []*FilterNode{
				{Kind: NodeBinary, Field: "score", BinOp: OpGt, Value: Scalar{Kind: ScalarInt64, Int64: 30}},
				{Kind: NodeUnary, Negated: &FilterNode{Kind: NodeBinary, Field: "tag", BinOp: OpEq, Value: Scalar{Kind: ScalarString, Str: "x"}}},
			},
		},
		Select:  []string{"name", "score"},
		OrderBy: []OrderKey{{Field: "score", Descending: true}},
		Skip:    1,
		Take:    2,
	}

	encoded := EncodeDescriptor(d)
	decoded, err := DecodeDescriptor(encoded)
	require.NoError(t, err)
	require.Equal(t, d.Collection, decoded.Collection)
	require.Equal(t, d.Select, decoded.Select)
	require.Equal(t, d.OrderBy, decoded.OrderBy)
	require.Equal(t, d.Skip, decoded.Skip)
	require.Equal(t, d.Take, decoded.Take)
	require.Equal(t, d.Where.LogicalOp, decoded.Where.LogicalOp)
	require.Len(t, decoded.Where.Children, 2)
	require.Equal(t, int64(30), decoded.Where.Children[0].Value.Int64)
}

func TestValidateRejectsUnknownOperator(t *testing.T) {
	d := &Descriptor{Collection: "c", Where: &FilterNode{Kind: NodeBinary, Field: "a", BinOp: "bogus"}}
	require.Error(t, d.Validate())
}

func TestValidateRejectsEmptyFieldPath(t *testing.T) {
	d := &Descriptor{Collection: "c", Where: &FilterNode{Kind: NodeBinary, Field: "", BinOp: OpEq}}
	require.Error(t, d.Validate())
}

func TestValidateRejectsMissingCollection(t *testing.T) {
	d := &Descriptor{}
	require.Error(t, d.Validate())
}
