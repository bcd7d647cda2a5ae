package memengine

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/blite-io/blite-server/internal/engine"
	"github.com/blite-io/blite-server/internal/svcerr"
)

var txCounter int64

// txHandle is the reference engine's transaction: a set of lazily-copied
// collection shadows that become visible only on commit. Mutations made
// directly against the engine (tx == nil) while a transaction is open race
// with that transaction's commit; BLite Server's transaction coordinator is
// expected to serialize all writers through the owning session while a
// transaction is in flight, so this reference engine does not re-derive
// that exclusivity itself.
type txHandle struct {
	idStr   string
	eng     *Engine
	shadow  map[string]*collection
	touched map[string]bool
	events  []engine.ChangeEvent
}

func (t *txHandle) ID() string { return t.idStr }

func (t *txHandle) collection(name string) (*collection, bool) {
	if c, ok := t.shadow[name]; ok {
		return c, true
	}
	t.eng.mu.RLock()
	orig, ok := t.eng.collections[name]
	t.eng.mu.RUnlock()
	if !ok {
		return nil, false
	}
	cp := cloneCollection(orig)
	t.shadow[name] = cp
	return cp, true
}

func cloneCollection(orig *collection) *collection {
	cp := &collection{
		name:         orig.name,
		docs:         make(map[string]storedDoc, len(orig.docs)),
		order:        append([]string(nil), orig.order...),
		indexes:      orig.indexes,
		eqIndex:      make(map[string]map[interface{}][]string, len(orig.eqIndex)),
		schema:       orig.schema,
		timeSeries:   orig.timeSeries,
		vectorSource: orig.vectorSource,
	}
	for k, v := range orig.docs {
		cp.docs[k] = v
	}
	for idxName, m := range orig.eqIndex {
		nm := make(map[interface{}][]string, len(m))
		for k, v := range m {
			nm[k] = append([]string(nil), v...)
		}
		cp.eqIndex[idxName] = nm
	}
	return cp
}

// BeginTx opens a transaction. The reference engine serializes transactions
// one at a time via txMu; this mirrors (at the single-engine level) the
// at-most-one-active-transaction-per-database invariant the transaction
// coordinator enforces across the whole server (spec.md §5).
func (e *Engine) BeginTx(ctx context.Context) (engine.Tx, error) {
	e.txMu.Lock()
	id := atomic.AddInt64(&txCounter, 1)
	th := &txHandle{
		idStr:   fmt.Sprintf("memengine-tx-%s-%d", e.id, id),
		eng:     e,
		shadow:  make(map[string]*collection),
		touched: make(map[string]bool),
	}
	e.mu.Lock()
	e.activeTx = th
	e.mu.Unlock()
	return th, nil
}

func (e *Engine) checkOwnedTx(tx engine.Tx) (*txHandle, error) {
	th, ok := tx.(*txHandle)
	if !ok || th == nil {
		return nil, svcerr.InvalidInput("transaction handle not recognised by this engine")
	}
	if th.eng != e {
		return nil, svcerr.InvalidInput("transaction belongs to a different engine")
	}
	return th, nil
}

func (e *Engine) CommitTx(ctx context.Context, tx engine.Tx) error {
	th, err := e.checkOwnedTx(tx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	for name, shadow := range th.shadow {
		e.collections[name] = shadow
	}
	e.activeTx = nil
	e.mu.Unlock()

	for _, ev := range th.events {
		e.publish(ev)
	}
	e.txMu.Unlock()
	return nil
}

func (e *Engine) RollbackTx(ctx context.Context, tx engine.Tx) error {
	th, err := e.checkOwnedTx(tx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.activeTx = nil
	e.mu.Unlock()
	th.shadow = nil
	e.txMu.Unlock()
	return nil
}
