package embedding

import (
	"context"
	"strings"
	"time"

	"github.com/blite-io/blite-server/internal/dictionary"
	"github.com/blite-io/blite-server/internal/engine"
	"github.com/blite-io/blite-server/internal/logging"
	"github.com/blite-io/blite-server/internal/metrics"
)

// WorkerConfig holds the tunables from spec.md §6's EmbeddingWorker.*.
type WorkerConfig struct {
	Enabled  bool
	Interval time.Duration
	BatchSize int
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{Enabled: false, Interval: 30 * time.Second, BatchSize: 64}
}

// Worker is the background loop from spec.md §4.8: TakeBatch, group by
// database, compute (Phase A), persist (Phase B), Complete.
type Worker struct {
	registry *engine.Registry
	queue    *Queue
	embedder Embedder
	log      *logging.Logger
	metrics  *metrics.Metrics
	cfg      WorkerConfig

	ticker *time.Ticker
	stopCh chan struct{}
}

// NewWorker wires a Worker. m may be nil to disable metrics recording.
func NewWorker(registry *engine.Registry, queue *Queue, embedder Embedder, log *logging.Logger, m *metrics.Metrics, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	return &Worker{registry: registry, queue: queue, embedder: embedder, log: log, metrics: m, cfg: cfg, stopCh: make(chan struct{})}
}

// Run starts the periodic loop and blocks until Stop is called. It is
// meant to be launched with `go worker.Run(ctx)`.
func (w *Worker) Run(ctx context.Context) {
	if !w.cfg.Enabled {
		return
	}
	w.ticker = time.NewTicker(w.cfg.Interval)
	defer w.ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-w.ticker.C:
			if err := w.Tick(ctx); err != nil && w.log != nil {
				w.log.WithError(err).Warn("embedding worker tick failed")
			}
		}
	}
}

func (w *Worker) Stop() {
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
}

// computed is one Phase-A result ready for Phase B persistence.
type computed struct {
	task        Task
	vectorField string
	vector      []float32
}

// Tick runs exactly one TakeBatch -> Phase A -> Phase B -> Complete
// cycle, usable directly from tests without waiting on the ticker.
func (w *Worker) Tick(ctx context.Context) error {
	if w.metrics != nil {
		if stats, err := w.queue.Stats(ctx); err == nil {
			counts := make(map[string]int, len(stats))
			for state, n := range stats {
				counts[string(state)] = n
			}
			w.metrics.SetEmbeddingQueueDepth(counts)
		}
	}
	if w.embedder == nil {
		return nil
	}
	tasks, err := w.queue.TakeBatch(ctx, w.cfg.BatchSize)
	if err != nil {
		if w.metrics != nil {
			w.metrics.RecordEmbeddingBatch("error", 0)
		}
		return err
	}
	if len(tasks) == 0 {
		return nil
	}

	byDB := make(map[string][]Task)
	for _, t := range tasks {
		byDB[t.DatabaseID] = append(byDB[t.DatabaseID], t)
	}

	var completed []Task
	for dbID, dbTasks := range byDB {
		eng, err := w.registry.Get(dbID)
		if err != nil {
			continue
		}
		results, done := w.computePhase(ctx, eng, dbTasks)
		completed = append(completed, done...)
		persisted := w.persistPhase(ctx, eng, results)
		completed = append(completed, persisted...)
	}

	err = w.queue.Complete(ctx, completed)
	if w.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		w.metrics.RecordEmbeddingBatch(status, len(tasks))
	}
	return err
}

// computePhase runs Phase A for every task in one database. Tasks whose
// config, index, document, or derived text are missing short-circuit
// straight to the completed list instead of producing a computed row.
func (w *Worker) computePhase(ctx context.Context, eng engine.Engine, tasks []Task) ([]computed, []Task) {
	var results []computed
	var shortCircuited []Task

	for _, t := range tasks {
		src, ok, err := eng.GetVectorSource(ctx, t.Collection)
		if err != nil || !ok {
			shortCircuited = append(shortCircuited, t)
			continue
		}
		idxs, err := eng.ListIndexes(ctx, t.Collection)
		hasIndex := false
		if err == nil {
			for _, idx := range idxs {
				if idx.Name == src.IndexName && idx.Kind == engine.IndexVector {
					hasIndex = true
					break
				}
			}
		}
		if !hasIndex {
			shortCircuited = append(shortCircuited, t)
			continue
		}

		doc, found, err := eng.FindByID(ctx, nil, t.Collection, t.DocID)
		if err != nil || !found {
			shortCircuited = append(shortCircuited, t)
			continue
		}

		text := buildSourceText(doc, src)
		if text == "" {
			shortCircuited = append(shortCircuited, t)
			continue
		}

		vec, err := w.embedder.Embed(text)
		if err != nil {
			shortCircuited = append(shortCircuited, t)
			if w.log != nil {
				w.log.WithError(err).WithField("collection", t.Collection).Warn("embed failed, dropping task")
			}
			continue
		}
		results = append(results, computed{task: t, vectorField: src.VectorField, vector: vec})
	}
	return results, shortCircuited
}

func buildSourceText(doc dictionary.Document, src engine.VectorSourceConfig) string {
	var b strings.Builder
	for i, part := range src.Parts {
		v, ok := doc[part.Path]
		if !ok || v.Kind != dictionary.KindString {
			continue
		}
		if i > 0 && b.Len() > 0 {
			b.WriteString(src.Separator)
		}
		b.WriteString(part.Prefix)
		b.WriteString(v.Str)
		b.WriteString(part.Suffix)
	}
	return b.String()
}

// persistPhase runs Phase B: one engine transaction for the whole batch
// in this database, rewriting each document's vector field. On any
// failure the whole batch rolls back and none of it is marked done; the
// tasks stay in_progress and become stale for retry.
func (w *Worker) persistPhase(ctx context.Context, eng engine.Engine, results []computed) []Task {
	if len(results) == 0 {
		return nil
	}
	tx, err := eng.BeginTx(ctx)
	if err != nil {
		if w.log != nil {
			w.log.WithError(err).Warn("embedding persist: could not begin transaction")
		}
		return nil
	}

	for _, r := range results {
		doc, found, err := eng.FindByID(ctx, tx, r.task.Collection, r.task.DocID)
		if err != nil || !found {
			_ = eng.RollbackTx(ctx, tx)
			if w.log != nil {
				w.log.WithField("collection", r.task.Collection).Warn("embedding persist: document vanished mid-batch, rolling back")
			}
			return nil
		}
		updated := make(dictionary.Document, len(doc)+1)
		for k, v := range doc {
			updated[k] = v
		}
		updated[r.vectorField] = dictionary.VVector(r.vector)
		if _, err := eng.Update(ctx, tx, r.task.Collection, r.task.DocID, updated); err != nil {
			_ = eng.RollbackTx(ctx, tx)
			if w.log != nil {
				w.log.WithError(err).Warn("embedding persist: update failed, rolling back")
			}
			return nil
		}
	}

	if err := eng.CommitTx(ctx, tx); err != nil {
		_ = eng.RollbackTx(ctx, tx)
		if w.log != nil {
			w.log.WithError(err).Warn("embedding persist: commit failed, rolling back")
		}
		return nil
	}

	done := make([]Task, 0, len(results))
	for _, r := range results {
		done = append(done, r.task)
	}
	return done
}
