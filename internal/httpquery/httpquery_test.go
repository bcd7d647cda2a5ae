package httpquery

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blite-io/blite-server/internal/queryd"
)

func TestCompileJSONImplicitEqAndOperatorObject(t *testing.T) {
	body := []byte(`{"filter": {"name": "bolt", "qty": {"$gt": 5, "$lte": 100}}, "sort": {"qty": -1}, "take": 10}`)
	d, err := CompileJSON("widgets", body)
	require.NoError(t, err)
	require.Equal(t, "widgets", d.Collection)
	require.NotNil(t, d.Where)
	require.Equal(t, queryd.NodeLogical, d.Where.Kind)
	require.Equal(t, queryd.LogicalAnd, d.Where.LogicalOp)
	require.Len(t, d.Where.Children, 3)
	require.Equal(t, []queryd.OrderKey{{Field: "qty", Descending: true}}, d.OrderBy)
	require.Equal(t, 10, d.Take)
}

func TestCompileJSONAndOr(t *testing.T) {
	body := []byte(`{"filter": {"$or": [{"status": "open"}, {"status": "pending"}]}}`)
	d, err := CompileJSON("tickets", body)
	require.NoError(t, err)
	require.Equal(t, queryd.LogicalOr, d.Where.LogicalOp)
	require.Len(t, d.Where.Children, 2)
}

func TestCompileJSONRejectsUnknownOperator(t *testing.T) {
	body := []byte(`{"filter": {"qty": {"$bogus": 1}}}`)
	_, err := CompileJSON("widgets", body)
	require.Error(t, err)
}

func TestCompileJSONRejectsInvalidBody(t *testing.T) {
	_, err := CompileJSON("widgets", []byte(`not json`))
	require.Error(t, err)
}

func TestCompileQueryStringEqualityAndSort(t *testing.T) {
	values := url.Values{"status": {"open"}, "sort": {"-qty"}, "take": {"5"}}
	d, err := CompileQueryString("tickets", values)
	require.NoError(t, err)
	require.Equal(t, queryd.NodeBinary, d.Where.Kind)
	require.Equal(t, "open", d.Where.Value.Str)
	require.Equal(t, []queryd.OrderKey{{Field: "qty", Descending: true}}, d.OrderBy)
	require.Equal(t, 5, d.Take)
}

func TestCompileQueryStringMultipleFiltersAnd(t *testing.T) {
	values := url.Values{"status": {"open"}, "owner": {"alice"}}
	d, err := CompileQueryString("tickets", values)
	require.NoError(t, err)
	require.Equal(t, queryd.NodeLogical, d.Where.Kind)
	require.Len(t, d.Where.Children, 2)
}
