// Package memengine is the reference in-memory Engine implementation used
// by tests and the stand-alone binary. The real storage engine (B-tree
// pages, WAL, HNSW, on-disk format) is explicitly out of scope per
// spec.md §1; this package exists only so the rest of BLite Server has a
// concrete engine.Engine to run against, grounded on the teacher's
// infrastructure/database/mock_repository.go pattern — a hand-rolled
// in-memory stand-in behind the same contract as the real store.
package memengine

import (
	"fmt"
	"sync"

	"github.com/blite-io/blite-server/internal/dictionary"
	"github.com/blite-io/blite-server/internal/engine"
)

type storedDoc struct {
	id  dictionary.DocID
	doc dictionary.Document
}

type collection struct {
	name         string
	docs         map[string]storedDoc // key: id.Kind+":"+id bytes hex
	order        []string             // insertion order, for stable engine-defined iteration
	indexes      map[string]engine.IndexDescriptor
	eqIndex      map[string]map[interface{}][]string // indexName -> value -> doc keys
	schema       []engine.SchemaField
	timeSeries   *engine.TimeSeriesConfig
	vectorSource *engine.VectorSourceConfig
}

func newCollection(name string) *collection {
	return &collection{
		name:    name,
		docs:    make(map[string]storedDoc),
		indexes: make(map[string]engine.IndexDescriptor),
		eqIndex: make(map[string]map[interface{}][]string),
	}
}

// Engine is the reference in-memory implementation of engine.Engine.
type Engine struct {
	id   string
	dict *dictionary.Dictionary

	mu          sync.RWMutex
	collections map[string]*collection
	closed      bool

	txMu     sync.Mutex
	activeTx *txHandle

	subsMu sync.Mutex
	subs   map[string][]chan engine.ChangeEvent

	purged bool
}

// New constructs an empty Engine for database id.
func New(id string) (*Engine, error) {
	return &Engine{
		id:          id,
		dict:        dictionary.New(),
		collections: make(map[string]*collection),
		subs:        make(map[string][]chan engine.ChangeEvent),
	}, nil
}

// Factory adapts New to engine.Factory.
func Factory(id string) (engine.Engine, error) { return New(id) }

func (e *Engine) Dictionary() *dictionary.Dictionary { return e.dict }

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Purge drops all in-memory state, used by Registry.Deprovision when
// deleteFiles is requested (the reference engine has no on-disk files).
func (e *Engine) Purge() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.collections = make(map[string]*collection)
	e.purged = true
	return nil
}

func docKey(id dictionary.DocID) string {
	return fmt.Sprintf("%d:%x", id.Kind, id.Bytes)
}
