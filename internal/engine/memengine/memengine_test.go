package memengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blite-io/blite-server/internal/dictionary"
	"github.com/blite-io/blite-server/internal/engine"
	"github.com/blite-io/blite-server/internal/queryd"
)

func TestInsertFindUpdateDelete(t *testing.T) {
	ctx := context.Background()
	eng, err := New("acme")
	require.NoError(t, err)
	require.NoError(t, eng.CreateCollection(ctx, "widgets"))

	doc := dictionary.Document{"name": dictionary.VString("bolt"), "qty": dictionary.VInt64(3)}
	id, err := eng.Insert(ctx, nil, "widgets", doc, nil)
	require.NoError(t, err)

	got, ok, err := eng.FindByID(ctx, nil, "widgets", id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "bolt", got["name"].Str)

	doc2 := dictionary.Document{"name": dictionary.VString("bolt"), "qty": dictionary.VInt64(9)}
	updated, err := eng.Update(ctx, nil, "widgets", id, doc2)
	require.NoError(t, err)
	require.True(t, updated)

	got2, _, _ := eng.FindByID(ctx, nil, "widgets", id)
	require.Equal(t, int64(9), got2["qty"].Int64)

	deleted, err := eng.Delete(ctx, nil, "widgets", id)
	require.NoError(t, err)
	require.True(t, deleted)

	_, ok, _ = eng.FindByID(ctx, nil, "widgets", id)
	require.False(t, ok)
}

func TestTransactionIsolationUntilCommit(t *testing.T) {
	ctx := context.Background()
	eng, err := New("acme")
	require.NoError(t, err)
	require.NoError(t, eng.CreateCollection(ctx, "widgets"))

	id, err := eng.Insert(ctx, nil, "widgets", dictionary.Document{"qty": dictionary.VInt64(1)}, nil)
	require.NoError(t, err)

	tx, err := eng.BeginTx(ctx)
	require.NoError(t, err)

	_, err = eng.Update(ctx, tx, "widgets", id, dictionary.Document{"qty": dictionary.VInt64(2)})
	require.NoError(t, err)

	// Uncommitted write is invisible outside the transaction.
	outside, _, _ := eng.FindByID(ctx, nil, "widgets", id)
	require.Equal(t, int64(1), outside["qty"].Int64)

	// But visible to the same session.
	inside, _, _ := eng.FindByID(ctx, tx, "widgets", id)
	require.Equal(t, int64(2), inside["qty"].Int64)

	require.NoError(t, eng.CommitTx(ctx, tx))

	after, _, _ := eng.FindByID(ctx, nil, "widgets", id)
	require.Equal(t, int64(2), after["qty"].Int64)
}

func TestRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	eng, err := New("acme")
	require.NoError(t, err)
	require.NoError(t, eng.CreateCollection(ctx, "widgets"))

	tx, err := eng.BeginTx(ctx)
	require.NoError(t, err)
	id, err := eng.Insert(ctx, tx, "widgets", dictionary.Document{"qty": dictionary.VInt64(1)}, nil)
	require.NoError(t, err)
	require.NoError(t, eng.RollbackTx(ctx, tx))

	_, ok, _ := eng.FindByID(ctx, nil, "widgets", id)
	require.False(t, ok)
}

func TestQueryFilterSortPageMatchesClientSideEvaluator(t *testing.T) {
	ctx := context.Background()
	eng, err := New("acme")
	require.NoError(t, err)
	require.NoError(t, eng.CreateCollection(ctx, "orders"))

	for i := 0; i < 5; i++ {
		_, err := eng.Insert(ctx, nil, "orders", dictionary.Document{
			"amount": dictionary.VInt64(int64(i * 10)),
			"region": dictionary.VString("east"),
		}, nil)
		require.NoError(t, err)
	}

	filter := &queryd.FilterNode{Kind: queryd.NodeBinary, Field: "amount", BinOp: queryd.OpGt, Value: queryd.Scalar{Kind: queryd.ScalarInt64, Int64: 10}}
	plan := engine.Plan{
		Collection: "orders",
		Filter:     filter,
		OrderBy:    []queryd.OrderKey{{Field: "amount", Descending: true}},
		Take:       2,
	}
	iter, report, err := eng.Query(ctx, nil, plan)
	require.NoError(t, err)
	require.True(t, report.FilterPushedDown)

	var amounts []int64
	for {
		doc, _, ok, err := iter.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		amounts = append(amounts, doc["amount"].Int64)
	}
	require.Equal(t, []int64{40, 30}, amounts)
}

func TestEqualityIndexNarrowsPushdown(t *testing.T) {
	ctx := context.Background()
	eng, err := New("acme")
	require.NoError(t, err)
	require.NoError(t, eng.CreateCollection(ctx, "orders"))
	require.NoError(t, eng.CreateIndex(ctx, "orders", engine.IndexDescriptor{Name: "by_region", FieldPath: "region", Kind: engine.IndexBTree}))

	_, err = eng.Insert(ctx, nil, "orders", dictionary.Document{"region": dictionary.VString("east")}, nil)
	require.NoError(t, err)
	_, err = eng.Insert(ctx, nil, "orders", dictionary.Document{"region": dictionary.VString("west")}, nil)
	require.NoError(t, err)

	filter := &queryd.FilterNode{Kind: queryd.NodeBinary, Field: "region", BinOp: queryd.OpEq, Value: queryd.Scalar{Kind: queryd.ScalarString, Str: "west"}}
	iter, _, err := eng.Query(ctx, nil, engine.Plan{Collection: "orders", Filter: filter})
	require.NoError(t, err)

	count := 0
	for {
		doc, _, ok, err := iter.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		require.Equal(t, "west", doc["region"].Str)
		count++
	}
	require.Equal(t, 1, count)
}

func TestSubscribeChangeReceivesEvents(t *testing.T) {
	ctx := context.Background()
	eng, err := New("acme")
	require.NoError(t, err)
	require.NoError(t, eng.CreateCollection(ctx, "widgets"))

	ch, cancel := eng.SubscribeChange("widgets")
	defer cancel()

	_, err = eng.Insert(ctx, nil, "widgets", dictionary.Document{"qty": dictionary.VInt64(1)}, nil)
	require.NoError(t, err)

	ev := <-ch
	require.Equal(t, engine.ChangeInsert, ev.Op)
}

func TestVectorSearchRanksByCosine(t *testing.T) {
	ctx := context.Background()
	eng, err := New("acme")
	require.NoError(t, err)
	require.NoError(t, eng.CreateCollection(ctx, "docs"))
	require.NoError(t, eng.CreateIndex(ctx, "docs", engine.IndexDescriptor{
		Name: "by_embedding", FieldPath: "embedding", Kind: engine.IndexVector, VectorDim: 2, Metric: engine.MetricCosine,
	}))

	_, err = eng.Insert(ctx, nil, "docs", dictionary.Document{"embedding": dictionary.VVector([]float32{1, 0})}, nil)
	require.NoError(t, err)
	_, err = eng.Insert(ctx, nil, "docs", dictionary.Document{"embedding": dictionary.VVector([]float32{0, 1})}, nil)
	require.NoError(t, err)

	results, err := eng.VectorSearch(ctx, "docs", "by_embedding", 1, 0, []float32{1, 0})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.InDelta(t, 1.0, results[0].Score, 1e-9)
}
