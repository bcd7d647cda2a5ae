package queryexec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blite-io/blite-server/internal/dictionary"
	"github.com/blite-io/blite-server/internal/engine"
	"github.com/blite-io/blite-server/internal/engine/memengine"
	"github.com/blite-io/blite-server/internal/queryd"
)

// partialPushdownEngine embeds the (nil) Engine interface and overrides
// only Query, reporting that it handled nothing — exercising the
// executor's full client-side fallback path.
type partialPushdownEngine struct {
	engine.Engine
	docs []dictionary.Document
}

func (p *partialPushdownEngine) Query(ctx context.Context, tx engine.Tx, plan engine.Plan) (engine.DocIterator, engine.PushdownReport, error) {
	items := make([]docPair, 0, len(p.docs))
	for _, d := range p.docs {
		items = append(items, docPair{doc: d, id: dictionary.DocID{}})
	}
	return &sliceIterator{items: items}, engine.PushdownReport{}, nil
}

func TestExecutorFallbackFiltersSortsPages(t *testing.T) {
	eng := &partialPushdownEngine{docs: []dictionary.Document{
		{"amount": dictionary.VInt64(30)},
		{"amount": dictionary.VInt64(10)},
		{"amount": dictionary.VInt64(20)},
	}}
	d := &queryd.Descriptor{
		Collection: "orders",
		Where:      &queryd.FilterNode{Kind: queryd.NodeBinary, Field: "amount", BinOp: queryd.OpGt, Value: queryd.Scalar{Kind: queryd.ScalarInt64, Int64: 10}},
		OrderBy:    []queryd.OrderKey{{Field: "amount"}},
	}
	x := New()
	iter, err := x.Run(context.Background(), eng, nil, d)
	require.NoError(t, err)

	var amounts []int64
	for {
		doc, _, ok, err := iter.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		amounts = append(amounts, doc["amount"].Int64)
	}
	require.Equal(t, []int64{20, 30}, amounts)
}

func TestExecutorPassesThroughFullPushdown(t *testing.T) {
	ctx := context.Background()
	eng, err := memengine.New("acme")
	require.NoError(t, err)
	require.NoError(t, eng.CreateCollection(ctx, "widgets"))
	_, err = eng.Insert(ctx, nil, "widgets", dictionary.Document{"name": dictionary.VString("bolt")}, nil)
	require.NoError(t, err)

	x := New()
	iter, err := x.Run(ctx, eng, nil, &queryd.Descriptor{Collection: "widgets"})
	require.NoError(t, err)

	doc, _, ok, err := iter.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "bolt", doc["name"].Str)
}

func TestExecutorRejectsInvalidDescriptor(t *testing.T) {
	x := New()
	_, err := x.Run(context.Background(), &partialPushdownEngine{}, nil, &queryd.Descriptor{})
	require.Error(t, err)
}
