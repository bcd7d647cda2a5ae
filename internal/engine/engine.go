// Package engine defines the external contract BLite Server relies on for
// a per-database embedded storage engine (spec.md §2, §4.2). The storage
// engine's internals — B-tree pages, WAL, HNSW index, on-disk format — are
// explicitly out of scope (spec.md §1); only this contract is owned here.
// internal/engine/memengine provides a reference in-memory implementation
// used by tests and by the stand-alone binary.
package engine

import (
	"context"
	"time"

	"github.com/blite-io/blite-server/internal/dictionary"
	"github.com/blite-io/blite-server/internal/queryd"
)

// IndexKind enumerates the secondary-index kinds from spec.md §3.
type IndexKind string

const (
	IndexBTree   IndexKind = "btree"
	IndexVector  IndexKind = "vector"
	IndexSpatial IndexKind = "spatial"
)

// DistanceMetric enumerates vector-index distance metrics.
type DistanceMetric string

const (
	MetricCosine DistanceMetric = "cosine"
	MetricL2     DistanceMetric = "l2"
	MetricDot    DistanceMetric = "dot"
)

// IndexDescriptor describes one secondary index on a collection.
type IndexDescriptor struct {
	Name      string
	FieldPath string
	Kind      IndexKind
	Unique    bool
	VectorDim int
	Metric    DistanceMetric
}

// SchemaField is one entry in a collection's append-only schema history.
type SchemaField struct {
	Name     string
	TypeCode string
	Nullable bool
}

// TimeSeriesConfig is the optional TTL configuration for a collection.
type TimeSeriesConfig struct {
	TTLField  string
	Retention time.Duration
}

// VectorSourcePart is one ingredient of a vector-source recipe.
type VectorSourcePart struct {
	Path   string
	Prefix string
	Suffix string
}

// VectorSourceConfig is the ordered recipe used to synthesize an
// embedding-input string from a document's fields (spec.md §3, §4.8).
type VectorSourceConfig struct {
	Separator string
	Parts     []VectorSourcePart
	// VectorField is the field the computed embedding is written back to.
	VectorField string
	// IndexName is the vector index this source feeds.
	IndexName string
}

// CollectionDescriptor is the full metadata for one physical collection.
type CollectionDescriptor struct {
	Name         string
	Indexes      []IndexDescriptor
	Schema       []SchemaField
	TimeSeries   *TimeSeriesConfig
	VectorSource *VectorSourceConfig
}

// ChangeOp enumerates change-capture operation kinds.
type ChangeOp string

const (
	ChangeInsert ChangeOp = "insert"
	ChangeUpdate ChangeOp = "update"
	ChangeDelete ChangeOp = "delete"
)

// ChangeEvent is one change-capture notification.
type ChangeEvent struct {
	Collection string
	Op         ChangeOp
	DocID      dictionary.DocID
}

// Tx is an opaque handle to an in-flight engine transaction.
type Tx interface {
	// ID is implementation-defined and used only for logging.
	ID() string
}

// Plan is the push-down-capable query BLite Server asks an engine to run,
// compiled from a queryd.Descriptor (spec.md §4.4).
type Plan struct {
	Collection string
	Filter     *queryd.FilterNode
	Select     []string
	OrderBy    []queryd.OrderKey
	Skip       int
	Take       int // 0 means unlimited
}

// PushdownReport tells the executor which clauses the engine evaluated
// itself, so the executor's fallback layer can finish the rest
// client-side (spec.md §4.4 guarantee 1).
type PushdownReport struct {
	FilterPushedDown     bool
	OrderPushedDown      bool
	SkipTakePushedDown   bool
	ProjectionPushedDown bool
}

// DocIterator is a lazy, cancellable sequence of matching documents.
type DocIterator interface {
	// Next advances the iterator. ok is false at end of stream (err is nil
	// in that case). Next must observe ctx cancellation between documents.
	Next(ctx context.Context) (doc dictionary.Document, id dictionary.DocID, ok bool, err error)
	Close() error
}

// ScoredDoc is one vector-search hit.
type ScoredDoc struct {
	DocID    dictionary.DocID
	Document dictionary.Document
	Score    float64
}

// Engine is the per-database contract BLite Server depends on.
type Engine interface {
	Dictionary() *dictionary.Dictionary

	ListCollections(ctx context.Context) ([]string, error)
	CreateCollection(ctx context.Context, name string) error
	DropCollection(ctx context.Context, name string) error
	CollectionInfo(ctx context.Context, name string) (CollectionDescriptor, bool, error)

	CreateIndex(ctx context.Context, collection string, idx IndexDescriptor) error
	DropIndex(ctx context.Context, collection, name string) error
	ListIndexes(ctx context.Context, collection string) ([]IndexDescriptor, error)

	SetVectorSource(ctx context.Context, collection string, cfg VectorSourceConfig) error
	GetVectorSource(ctx context.Context, collection string) (VectorSourceConfig, bool, error)

	SetSchema(ctx context.Context, collection string, fields []SchemaField) error
	GetSchema(ctx context.Context, collection string) ([]SchemaField, error)

	ConfigureTimeSeries(ctx context.Context, collection string, cfg TimeSeriesConfig) error
	GetTimeSeriesInfo(ctx context.Context, collection string) (TimeSeriesConfig, bool, error)

	Insert(ctx context.Context, tx Tx, collection string, doc dictionary.Document, id *dictionary.DocID) (dictionary.DocID, error)
	FindByID(ctx context.Context, tx Tx, collection string, id dictionary.DocID) (dictionary.Document, bool, error)
	Update(ctx context.Context, tx Tx, collection string, id dictionary.DocID, doc dictionary.Document) (bool, error)
	Delete(ctx context.Context, tx Tx, collection string, id dictionary.DocID) (bool, error)

	Query(ctx context.Context, tx Tx, plan Plan) (DocIterator, PushdownReport, error)
	VectorSearch(ctx context.Context, collection, indexName string, k, efSearch int, query []float32) ([]ScoredDoc, error)

	BeginTx(ctx context.Context) (Tx, error)
	CommitTx(ctx context.Context, tx Tx) error
	RollbackTx(ctx context.Context, tx Tx) error

	// SubscribeChange returns a bounded event channel and a detach func.
	// Detaching never loses events destined for other subscribers.
	SubscribeChange(collection string) (<-chan ChangeEvent, func())

	BackupToPath(ctx context.Context, path string) error
	Close() error
}
