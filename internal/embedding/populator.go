package embedding

import (
	"context"
	"sync"

	"github.com/blite-io/blite-server/internal/engine"
	"github.com/blite-io/blite-server/internal/logging"
)

// Populator is the long-lived, process-wide actor from spec.md §4.8: it
// watches every (database, collection) that has both a vector-source
// config and a vector index, and turns their change-capture events into
// queue tasks.
type Populator struct {
	registry *engine.Registry
	queue    *Queue
	log      *logging.Logger

	mu      sync.Mutex
	cancels []func()
	running bool
}

func NewPopulator(registry *engine.Registry, queue *Queue, log *logging.Logger) *Populator {
	return &Populator{registry: registry, queue: queue, log: log}
}

// Start scans every known database for eligible collections and
// subscribes to each. Calling Start again (on reconfiguration) first
// tears down the previous subscriptions.
func (p *Populator) Start(ctx context.Context) error {
	p.mu.Lock()
	for _, cancel := range p.cancels {
		cancel()
	}
	p.cancels = nil
	p.running = true
	p.mu.Unlock()

	databases := []string{engine.SystemDatabaseID}
	for _, t := range p.registry.List() {
		if t.Active {
			databases = append(databases, t.ID)
		}
	}

	for _, dbID := range databases {
		eng, err := p.registry.Get(dbID)
		if err != nil {
			continue
		}
		cols, err := eng.ListCollections(ctx)
		if err != nil {
			continue
		}
		for _, col := range cols {
			src, ok, err := eng.GetVectorSource(ctx, col)
			if err != nil || !ok {
				continue
			}
			idxs, err := eng.ListIndexes(ctx, col)
			if err != nil {
				continue
			}
			hasVectorIndex := false
			for _, idx := range idxs {
				if idx.Name == src.IndexName && idx.Kind == engine.IndexVector {
					hasVectorIndex = true
					break
				}
			}
			if !hasVectorIndex {
				continue
			}
			p.watch(dbID, col, eng)
		}
	}
	return nil
}

func (p *Populator) watch(databaseID, collection string, eng engine.Engine) {
	ch, cancel := eng.SubscribeChange(collection)
	p.mu.Lock()
	p.cancels = append(p.cancels, cancel)
	p.mu.Unlock()

	go func() {
		for ev := range ch {
			if ev.Op == engine.ChangeDelete {
				continue
			}
			ctx := context.Background()
			if err := p.queue.Enqueue(ctx, databaseID, collection, ev.DocID); err != nil && p.log != nil {
				p.log.WithField("database", databaseID).WithField("collection", collection).WithError(err).Warn("embedding enqueue failed")
			}
		}
	}()
}

// Stop tears down every active change-capture subscription.
func (p *Populator) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, cancel := range p.cancels {
		cancel()
	}
	p.cancels = nil
	p.running = false
}
