// Package embedding implements the Populator/Queue/Worker pipeline from
// spec.md §4.8: change-capture driven enqueueing of embedding tasks, a
// system-database-backed queue with at-most-one-active-task-per-key
// dedup, and a scheduled worker that computes and persists vectors in
// two phases.
package embedding

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/blite-io/blite-server/internal/dictionary"
	"github.com/blite-io/blite-server/internal/engine"
	"github.com/blite-io/blite-server/internal/queryd"
	"github.com/blite-io/blite-server/internal/svcerr"
)

const queueCollection = "_emb_queue"

// State is the queue task's raw persisted state. "stale" is a derived
// state (an in_progress task older than the threshold), never stored.
type State string

const (
	StateTodo       State = "todo"
	StateInProgress State = "in_progress"
	StateDone       State = "done"
	StateStale      State = "stale"
)

// Task is one embedding-queue row.
type Task struct {
	ID             dictionary.DocID
	DatabaseID     string
	Collection     string
	DocID          dictionary.DocID
	State          State
	EnqueuedAt     time.Time
	StateChangedAt time.Time
}

func taskKey(databaseID, collection string, docID dictionary.DocID) string {
	return databaseID + ":" + collection + ":" + docID.String()
}

// Queue is the system-engine-backed task store from spec.md §4.8.
type Queue struct {
	sys            engine.Engine
	staleThreshold time.Duration

	mu sync.Mutex // serialises TakeBatch claims
}

// NewQueue wires a Queue to the system engine, creating its backing
// collection if absent.
func NewQueue(ctx context.Context, sys engine.Engine, staleThreshold time.Duration) (*Queue, error) {
	if staleThreshold <= 0 {
		staleThreshold = 10 * time.Minute
	}
	err := sys.CreateCollection(ctx, queueCollection)
	if se, ok := svcerr.As(err); ok && se.Kind == svcerr.KindConflict {
		err = nil
	}
	if err != nil {
		return nil, err
	}
	return &Queue{sys: sys, staleThreshold: staleThreshold}, nil
}

func toDoc(t Task) dictionary.Document {
	return dictionary.Document{
		"key":            dictionary.VString(taskKey(t.DatabaseID, t.Collection, t.DocID)),
		"databaseId":     dictionary.VString(t.DatabaseID),
		"collection":     dictionary.VString(t.Collection),
		"docIdKind":      dictionary.VInt32(int32(t.DocID.Kind)),
		"docIdBytes":     dictionary.VBytes(t.DocID.Bytes),
		"state":          dictionary.VString(string(t.State)),
		"enqueuedAt":     dictionary.VTimestamp(t.EnqueuedAt.UnixNano()),
		"stateChangedAt": dictionary.VTimestamp(t.StateChangedAt.UnixNano()),
	}
}

func fromDoc(id dictionary.DocID, doc dictionary.Document) Task {
	return Task{
		ID:             id,
		DatabaseID:     doc["databaseId"].Str,
		Collection:     doc["collection"].Str,
		DocID:          dictionary.DocID{Kind: dictionary.DocIDKind(doc["docIdKind"].Int64), Bytes: doc["docIdBytes"].Bytes},
		State:          State(doc["state"].Str),
		EnqueuedAt:     time.Unix(0, doc["enqueuedAt"].Int64),
		StateChangedAt: time.Unix(0, doc["stateChangedAt"].Int64),
	}
}

// findByKey returns the one existing non-done task for this
// (db, col, docId), if any; done rows are ignored.
func (q *Queue) findByKey(ctx context.Context, key string) (dictionary.DocID, Task, bool, error) {
	plan := engine.Plan{
		Collection: queueCollection,
		Filter: &queryd.FilterNode{Kind: queryd.NodeLogical, LogicalOp: queryd.LogicalAnd, Children: []*queryd.FilterNode{
			{Kind: queryd.NodeBinary, Field: "key", BinOp: queryd.OpEq, Value: queryd.Scalar{Kind: queryd.ScalarString, Str: key}},
			{Kind: queryd.NodeBinary, Field: "state", BinOp: queryd.OpNeq, Value: queryd.Scalar{Kind: queryd.ScalarString, Str: string(StateDone)}},
		}},
		Take: 1,
	}
	iter, _, err := q.sys.Query(ctx, nil, plan)
	if err != nil {
		return dictionary.DocID{}, Task{}, false, err
	}
	defer iter.Close()
	doc, id, ok, err := iter.Next(ctx)
	if err != nil || !ok {
		return dictionary.DocID{}, Task{}, false, err
	}
	return id, fromDoc(id, doc), true, nil
}

// Enqueue records a task for (db, col, docId). If a non-done task with
// the same key already exists it is superseded: deleted and replaced
// with a fresh todo row, per spec.md §4.8's dedup rule.
func (q *Queue) Enqueue(ctx context.Context, databaseID, collection string, docID dictionary.DocID) error {
	key := taskKey(databaseID, collection, docID)
	if id, existing, ok, err := q.findByKey(ctx, key); err != nil {
		return err
	} else if ok && existing.State != StateDone {
		if _, err := q.sys.Delete(ctx, nil, queueCollection, id); err != nil {
			return err
		}
	}

	now := time.Now()
	t := Task{DatabaseID: databaseID, Collection: collection, DocID: docID, State: StateTodo, EnqueuedAt: now, StateChangedAt: now}
	_, err := q.sys.Insert(ctx, nil, queueCollection, toDoc(t), nil)
	return err
}

func (q *Queue) derivedState(t Task, now time.Time) State {
	if t.State == StateInProgress && now.Sub(t.StateChangedAt) > q.staleThreshold {
		return StateStale
	}
	return t.State
}

// TakeBatch atomically claims up to n tasks that are todo or stale,
// ordered by enqueue time ascending, and marks them in_progress.
func (q *Queue) TakeBatch(ctx context.Context, n int) ([]Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	iter, _, err := q.sys.Query(ctx, nil, engine.Plan{Collection: queueCollection})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	now := time.Now()
	type candidate struct {
		id   dictionary.DocID
		task Task
	}
	var candidates []candidate
	for {
		doc, id, ok, err := iter.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		t := fromDoc(id, doc)
		switch q.derivedState(t, now) {
		case StateTodo, StateStale:
			candidates = append(candidates, candidate{id: id, task: t})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].task.EnqueuedAt.Before(candidates[j].task.EnqueuedAt) })
	if len(candidates) > n {
		candidates = candidates[:n]
	}

	claimed := make([]Task, 0, len(candidates))
	for _, c := range candidates {
		c.task.State = StateInProgress
		c.task.StateChangedAt = time.Now()
		if _, err := q.sys.Update(ctx, nil, queueCollection, c.id, toDoc(c.task)); err != nil {
			return nil, err
		}
		claimed = append(claimed, c.task)
	}
	return claimed, nil
}

// Complete marks the given tasks done.
func (q *Queue) Complete(ctx context.Context, tasks []Task) error {
	for _, t := range tasks {
		key := taskKey(t.DatabaseID, t.Collection, t.DocID)
		id, existing, ok, err := q.findByKey(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		existing.State = StateDone
		existing.StateChangedAt = time.Now()
		if _, err := q.sys.Update(ctx, nil, queueCollection, id, toDoc(existing)); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns a count per raw+derived state, for metrics and tests.
func (q *Queue) Stats(ctx context.Context) (map[State]int, error) {
	iter, _, err := q.sys.Query(ctx, nil, engine.Plan{Collection: queueCollection})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	now := time.Now()
	out := map[State]int{StateTodo: 0, StateInProgress: 0, StateDone: 0, StateStale: 0}
	for {
		doc, id, ok, err := iter.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		t := fromDoc(id, doc)
		out[q.derivedState(t, now)]++
	}
	return out, nil
}
