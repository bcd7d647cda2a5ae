package memengine

import (
	"context"
	"sort"

	"github.com/blite-io/blite-server/internal/engine"
	"github.com/blite-io/blite-server/internal/svcerr"
)

func (e *Engine) ListCollections(ctx context.Context) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.collections))
	for name := range e.collections {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (e *Engine) CreateCollection(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.collections[name]; ok {
		return svcerr.Conflict("collection already exists: " + name)
	}
	e.collections[name] = newCollection(name)
	return nil
}

func (e *Engine) DropCollection(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.collections[name]; !ok {
		return svcerr.NotFound("collection not found: " + name)
	}
	delete(e.collections, name)
	return nil
}

func (e *Engine) CollectionInfo(ctx context.Context, name string) (engine.CollectionDescriptor, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.collections[name]
	if !ok {
		return engine.CollectionDescriptor{}, false, nil
	}
	idxs := make([]engine.IndexDescriptor, 0, len(c.indexes))
	for _, idx := range c.indexes {
		idxs = append(idxs, idx)
	}
	return engine.CollectionDescriptor{
		Name:         c.name,
		Indexes:      idxs,
		Schema:       append([]engine.SchemaField(nil), c.schema...),
		TimeSeries:   c.timeSeries,
		VectorSource: c.vectorSource,
	}, true, nil
}

func (e *Engine) CreateIndex(ctx context.Context, collection string, idx engine.IndexDescriptor) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.collections[collection]
	if !ok {
		return svcerr.NotFound("collection not found: " + collection)
	}
	if _, exists := c.indexes[idx.Name]; exists {
		return svcerr.Conflict("index already exists: " + idx.Name)
	}
	c.indexes[idx.Name] = idx
	if idx.Kind == engine.IndexBTree {
		c.eqIndex[idx.Name] = make(map[interface{}][]string)
		for key, sd := range c.docs {
			if v, ok := queryFieldValue(sd.doc, idx.FieldPath); ok {
				hv := hashableValue(v)
				c.eqIndex[idx.Name][hv] = append(c.eqIndex[idx.Name][hv], key)
			}
		}
	}
	return nil
}

func (e *Engine) DropIndex(ctx context.Context, collection, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.collections[collection]
	if !ok {
		return svcerr.NotFound("collection not found: " + collection)
	}
	if _, exists := c.indexes[name]; !exists {
		return svcerr.NotFound("index not found: " + name)
	}
	delete(c.indexes, name)
	delete(c.eqIndex, name)
	return nil
}

func (e *Engine) ListIndexes(ctx context.Context, collection string) ([]engine.IndexDescriptor, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.collections[collection]
	if !ok {
		return nil, svcerr.NotFound("collection not found: " + collection)
	}
	out := make([]engine.IndexDescriptor, 0, len(c.indexes))
	for _, idx := range c.indexes {
		out = append(out, idx)
	}
	return out, nil
}

func (e *Engine) SetVectorSource(ctx context.Context, collection string, cfg engine.VectorSourceConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.collections[collection]
	if !ok {
		return svcerr.NotFound("collection not found: " + collection)
	}
	cp := cfg
	c.vectorSource = &cp
	return nil
}

func (e *Engine) GetVectorSource(ctx context.Context, collection string) (engine.VectorSourceConfig, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.collections[collection]
	if !ok {
		return engine.VectorSourceConfig{}, false, svcerr.NotFound("collection not found: " + collection)
	}
	if c.vectorSource == nil {
		return engine.VectorSourceConfig{}, false, nil
	}
	return *c.vectorSource, true, nil
}

func (e *Engine) SetSchema(ctx context.Context, collection string, fields []engine.SchemaField) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.collections[collection]
	if !ok {
		return svcerr.NotFound("collection not found: " + collection)
	}
	// Append-only: fields already known keep their position, new ones land
	// at the end (spec.md §3's schema history is additive, never rewritten).
	known := make(map[string]bool, len(c.schema))
	for _, f := range c.schema {
		known[f.Name] = true
	}
	for _, f := range fields {
		if !known[f.Name] {
			c.schema = append(c.schema, f)
			known[f.Name] = true
		}
	}
	return nil
}

func (e *Engine) GetSchema(ctx context.Context, collection string) ([]engine.SchemaField, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.collections[collection]
	if !ok {
		return nil, svcerr.NotFound("collection not found: " + collection)
	}
	return append([]engine.SchemaField(nil), c.schema...), nil
}

func (e *Engine) ConfigureTimeSeries(ctx context.Context, collection string, cfg engine.TimeSeriesConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.collections[collection]
	if !ok {
		return svcerr.NotFound("collection not found: " + collection)
	}
	cp := cfg
	c.timeSeries = &cp
	return nil
}

func (e *Engine) GetTimeSeriesInfo(ctx context.Context, collection string) (engine.TimeSeriesConfig, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.collections[collection]
	if !ok {
		return engine.TimeSeriesConfig{}, false, svcerr.NotFound("collection not found: " + collection)
	}
	if c.timeSeries == nil {
		return engine.TimeSeriesConfig{}, false, nil
	}
	return *c.timeSeries, true, nil
}
