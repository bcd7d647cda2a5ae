// Package queryexec implements the executor contract from spec.md §4.4:
// compile a queryd.Descriptor into an engine.Plan, push as much of it down
// into the engine as the engine reports it handled, and finish the rest
// (filter, sort, skip/take, projection) client-side using the same
// reference semantics queryd.Match/Less/Project define.
package queryexec

import (
	"context"
	"sort"

	"github.com/blite-io/blite-server/internal/dictionary"
	"github.com/blite-io/blite-server/internal/engine"
	"github.com/blite-io/blite-server/internal/queryd"
)

// Executor runs descriptors against an engine.
type Executor struct{}

// New constructs an Executor. It is stateless.
func New() *Executor { return &Executor{} }

// Run validates and clamps d, asks eng to execute as much of it as
// possible, and returns a lazy iterator over the final result — falling
// back to client-side evaluation only for the clauses the engine's
// PushdownReport says it didn't handle.
func (x *Executor) Run(ctx context.Context, eng engine.Engine, tx engine.Tx, d *queryd.Descriptor) (engine.DocIterator, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	d.Clamp()

	plan := engine.Plan{
		Collection: d.Collection,
		Filter:     d.Where,
		Select:     d.Select,
		OrderBy:    d.OrderBy,
		Skip:       d.Skip,
		Take:       d.Take,
	}
	base, report, err := eng.Query(ctx, tx, plan)
	if err != nil {
		return nil, err
	}

	if report.FilterPushedDown && report.OrderPushedDown && report.SkipTakePushedDown && report.ProjectionPushedDown {
		return base, nil
	}
	return x.fallback(ctx, base, d, report)
}

type docPair struct {
	doc dictionary.Document
	id  dictionary.DocID
}

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

// fallback drains base (observing cancellation between documents, as
// DocIterator requires) and applies whichever clauses the engine didn't
// evaluate itself, in the canonical filter -> sort -> skip/take -> project
// order from spec.md §4.4.
func (x *Executor) fallback(ctx context.Context, base engine.DocIterator, d *queryd.Descriptor, report engine.PushdownReport) (engine.DocIterator, error) {
	defer base.Close()

	var items []docPair
	for {
		doc, id, ok, err := base.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if !report.FilterPushedDown && d.Where != nil && !queryd.Match(d.Where, doc) {
			continue
		}
		items = append(items, docPair{doc: doc, id: id})
	}

	if !report.OrderPushedDown && len(d.OrderBy) > 0 {
		sort.SliceStable(items, func(i, j int) bool {
			return queryd.Less(items[i].doc, items[j].doc, d.OrderBy)
		})
	}

	if !report.SkipTakePushedDown {
		if d.Skip > 0 {
			if d.Skip >= len(items) {
				items = nil
			} else {
				items = items[d.Skip:]
			}
		}
		if d.Take > 0 && d.Take < len(items) {
			items = items[:d.Take]
		}
	}

	if !report.ProjectionPushedDown && d.Select != nil {
		for i, item := range items {
			items[i].doc = queryd.Project(item.doc, d.Select)
		}
	}

	return &sliceIterator{items: items}, nil
}
