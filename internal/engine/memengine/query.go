package memengine

import (
	"context"
	"math"
	"sort"

	"github.com/blite-io/blite-server/internal/dictionary"
	"github.com/blite-io/blite-server/internal/engine"
	"github.com/blite-io/blite-server/internal/queryd"
	"github.com/blite-io/blite-server/internal/svcerr"
)

type docPair struct {
	doc dictionary.Document
	id  dictionary.DocID
}

// sliceIterator serves a pre-materialized, already filtered/sorted/paged
// result set. The memengine reference implementation fully evaluates a
// Plan itself (hence PushdownReport reports everything as handled); a real
// paged engine would stream lazily instead, which is why the contract
// exposes DocIterator rather than a plain slice.
type sliceIterator struct {
	items []docPair
	pos   int
}

func (it *sliceIterator) Next(ctx context.Context) (dictionary.Document, dictionary.DocID, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, dictionary.DocID{}, false, err
	}
	if it.pos >= len(it.items) {
		return nil, dictionary.DocID{}, false, nil
	}
	item := it.items[it.pos]
	it.pos++
	return item.doc, item.id, true, nil
}

func (it *sliceIterator) Close() error { return nil }

func scalarToValue(s queryd.Scalar) (dictionary.Value, bool) {
	switch s.Kind {
	case queryd.ScalarBool:
		return dictionary.VBool(s.Bool), true
	case queryd.ScalarInt32:
		return dictionary.VInt32(int32(s.Int64)), true
	case queryd.ScalarInt64, queryd.ScalarTimestamp:
		return dictionary.VInt64(s.Int64), true
	case queryd.ScalarFloat64:
		return dictionary.VFloat64(s.Float64), true
	case queryd.ScalarString, queryd.ScalarDecimal:
		return dictionary.VString(s.Str), true
	case queryd.ScalarUUID, queryd.ScalarObjectID:
		return dictionary.VBytes(s.Bytes), true
	default:
		return dictionary.Value{}, false
	}
}

// indexCandidates returns the doc keys an equality index can narrow the
// scan to, and whether one applied.
func indexCandidates(c *collection, filter *queryd.FilterNode) ([]string, bool) {
	if filter == nil || filter.Kind != queryd.NodeBinary || filter.BinOp != queryd.OpEq {
		return nil, false
	}
	for name, idx := range c.indexes {
		if idx.Kind != engine.IndexBTree || idx.FieldPath != filter.Field {
			continue
		}
		v, ok := scalarToValue(filter.Value)
		if !ok {
			continue
		}
		m := c.eqIndex[name]
		if m == nil {
			continue
		}
		return m[hashableValue(v)], true
	}
	return nil, false
}

func (e *Engine) Query(ctx context.Context, tx engine.Tx, plan engine.Plan) (engine.DocIterator, engine.PushdownReport, error) {
	report := engine.PushdownReport{
		FilterPushedDown:     true,
		OrderPushedDown:      true,
		SkipTakePushedDown:   true,
		ProjectionPushedDown: true,
	}

	var c *collection
	if th, ok := tx.(*txHandle); ok {
		cc, found := th.collection(plan.Collection)
		if !found {
			return nil, report, svcerr.NotFound("collection not found: " + plan.Collection)
		}
		c = cc
	} else {
		e.mu.RLock()
		cc, ok := e.collections[plan.Collection]
		if !ok {
			e.mu.RUnlock()
			return nil, report, svcerr.NotFound("collection not found: " + plan.Collection)
		}
		c = cc
	}

	keys, usedIndex := indexCandidates(c, plan.Filter)
	if !usedIndex {
		keys = c.order
	}

	matched := make([]docPair, 0, len(keys))
	for _, k := range keys {
		sd, ok := c.docs[k]
		if !ok {
			continue
		}
		if plan.Filter != nil && !queryd.Match(plan.Filter, sd.doc) {
			continue
		}
		matched = append(matched, docPair{doc: sd.doc, id: sd.id})
	}
	if _, ok := tx.(*txHandle); !ok {
		e.mu.RUnlock()
	}

	if len(plan.OrderBy) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			return queryd.Less(matched[i].doc, matched[j].doc, plan.OrderBy)
		})
	}

	if plan.Skip > 0 {
		if plan.Skip >= len(matched) {
			matched = nil
		} else {
			matched = matched[plan.Skip:]
		}
	}
	if plan.Take > 0 && plan.Take < len(matched) {
		matched = matched[:plan.Take]
	}

	if plan.Select != nil {
		for i, m := range matched {
			matched[i].doc = queryd.Project(m.doc, plan.Select)
		}
	}

	return &sliceIterator{items: matched}, report, nil
}

// VectorSearch brute-forces cosine/L2/dot similarity across every document
// carrying a vector at the index's configured field. Real approximate
// nearest-neighbour search (HNSW, efSearch tuning) is an engine-internal
// concern out of scope per spec.md §1; efSearch is accepted and ignored
// here.
func (e *Engine) VectorSearch(ctx context.Context, collection, indexName string, k, efSearch int, query []float32) ([]engine.ScoredDoc, error) {
	e.mu.RLock()
	c, ok := e.collections[collection]
	if !ok {
		e.mu.RUnlock()
		return nil, svcerr.NotFound("collection not found: " + collection)
	}
	idx, ok := c.indexes[indexName]
	if !ok || idx.Kind != engine.IndexVector {
		e.mu.RUnlock()
		return nil, svcerr.Semantic("vector index not found: " + indexName)
	}

	scored := make([]engine.ScoredDoc, 0, len(c.docs))
	for _, sd := range c.docs {
		v, found := queryd.FieldValue(sd.doc, idx.FieldPath)
		if !found || v.Kind != dictionary.KindVector || len(v.Vector) != len(query) {
			continue
		}
		score := vectorScore(idx.Metric, query, v.Vector)
		scored = append(scored, engine.ScoredDoc{DocID: sd.id, Document: sd.doc, Score: score})
	}
	e.mu.RUnlock()

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > 0 && k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

func vectorScore(metric engine.DistanceMetric, a, b []float32) float64 {
	switch metric {
	case engine.MetricL2:
		var sum float64
		for i := range a {
			d := float64(a[i] - b[i])
			sum += d * d
		}
		return -math.Sqrt(sum) // higher is better, consistent with cosine/dot
	case engine.MetricDot:
		var sum float64
		for i := range a {
			sum += float64(a[i]) * float64(b[i])
		}
		return sum
	default: // cosine
		var dot, na, nb float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			na += float64(a[i]) * float64(a[i])
			nb += float64(b[i]) * float64(b[i])
		}
		if na == 0 || nb == 0 {
			return 0
		}
		return dot / (math.Sqrt(na) * math.Sqrt(nb))
	}
}
