package embedding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blite-io/blite-server/internal/dictionary"
	"github.com/blite-io/blite-server/internal/engine"
	"github.com/blite-io/blite-server/internal/engine/memengine"
)

func setup(t *testing.T) (*engine.Registry, engine.Engine) {
	t.Helper()
	reg, err := engine.NewRegistry(memengine.Factory)
	require.NoError(t, err)
	sys := reg.System()
	require.NoError(t, sys.CreateCollection(context.Background(), "articles"))
	return reg, sys
}

func TestEnqueueDedupsNonDoneTasks(t *testing.T) {
	ctx := context.Background()
	_, sys := setup(t)
	q, err := NewQueue(ctx, sys, time.Minute)
	require.NoError(t, err)

	docID := dictionary.DocID{Kind: dictionary.DocIDString, Bytes: []byte("a1")}
	require.NoError(t, q.Enqueue(ctx, "", "articles", docID))
	require.NoError(t, q.Enqueue(ctx, "", "articles", docID))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats[StateTodo])
}

func TestTakeBatchClaimsAndStaleReclaim(t *testing.T) {
	ctx := context.Background()
	_, sys := setup(t)
	q, err := NewQueue(ctx, sys, time.Millisecond)
	require.NoError(t, err)

	docID := dictionary.DocID{Kind: dictionary.DocIDString, Bytes: []byte("a1")}
	require.NoError(t, q.Enqueue(ctx, "", "articles", docID))

	batch, err := q.TakeBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	second, err := q.TakeBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, second, 0)

	time.Sleep(5 * time.Millisecond)
	stale, err := q.TakeBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
}

func TestWorkerComputesAndPersistsVector(t *testing.T) {
	ctx := context.Background()
	reg, sys := setup(t)

	require.NoError(t, sys.SetVectorSource(ctx, "articles", engine.VectorSourceConfig{
		Separator:   " ",
		Parts:       []engine.VectorSourcePart{{Path: "title"}, {Path: "body"}},
		VectorField: "embedding",
		IndexName:   "articles_vec",
	}))
	require.NoError(t, sys.CreateIndex(ctx, "articles", engine.IndexDescriptor{
		Name: "articles_vec", FieldPath: "embedding", Kind: engine.IndexVector, VectorDim: 16, Metric: engine.MetricCosine,
	}))

	id, err := sys.Insert(ctx, nil, "articles", dictionary.Document{
		"title": dictionary.VString("hello"),
		"body":  dictionary.VString("world"),
	}, nil)
	require.NoError(t, err)

	q, err := NewQueue(ctx, sys, time.Minute)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, "", "articles", id))

	embedder := NewHashEmbedder(16)
	w := NewWorker(reg, q, embedder, nil, nil, WorkerConfig{Enabled: true, Interval: time.Hour, BatchSize: 10})
	require.NoError(t, w.Tick(ctx))

	doc, found, err := sys.FindByID(ctx, nil, "articles", id)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, dictionary.KindVector, doc["embedding"].Kind)
	require.Len(t, doc["embedding"].Vector, 16)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats[StateDone])
}

func TestPopulatorSubscribesAndEnqueuesOnChange(t *testing.T) {
	ctx := context.Background()
	reg, sys := setup(t)

	require.NoError(t, sys.SetVectorSource(ctx, "articles", engine.VectorSourceConfig{
		Parts:       []engine.VectorSourcePart{{Path: "title"}},
		VectorField: "embedding",
		IndexName:   "articles_vec",
	}))
	require.NoError(t, sys.CreateIndex(ctx, "articles", engine.IndexDescriptor{
		Name: "articles_vec", Kind: engine.IndexVector,
	}))

	q, err := NewQueue(ctx, sys, time.Minute)
	require.NoError(t, err)
	p := NewPopulator(reg, q, nil)
	require.NoError(t, p.Start(ctx))
	defer p.Stop()

	_, err = sys.Insert(ctx, nil, "articles", dictionary.Document{"title": dictionary.VString("x")}, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stats, err := q.Stats(ctx)
		return err == nil && stats[StateTodo] == 1
	}, time.Second, 5*time.Millisecond)
}
