package memengine

import (
	"context"
	"crypto/rand"

	"github.com/blite-io/blite-server/internal/dictionary"
	"github.com/blite-io/blite-server/internal/engine"
	"github.com/blite-io/blite-server/internal/queryd"
	"github.com/blite-io/blite-server/internal/svcerr"
)

func fieldValue(doc dictionary.Document, path string) (dictionary.Value, bool) {
	return queryd.FieldValue(doc, path)
}

func newObjectID() []byte {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return b
}

// hashableValue converts a dictionary.Value into something usable as a Go
// map key, for the reference engine's equality index.
func hashableValue(v dictionary.Value) interface{} {
	switch v.Kind {
	case dictionary.KindBool:
		return v.Bool
	case dictionary.KindInt32, dictionary.KindInt64, dictionary.KindTimestamp:
		return v.Int64
	case dictionary.KindFloat64:
		return v.Float64
	case dictionary.KindString:
		return v.Str
	case dictionary.KindUUID, dictionary.KindObjectID, dictionary.KindBytes:
		return string(v.Bytes)
	default:
		return nil
	}
}

func queryFieldValue(doc dictionary.Document, path string) (dictionary.Value, bool) {
	return fieldValue(doc, path)
}

func indexInsert(c *collection, key string, doc dictionary.Document) {
	for name, idx := range c.indexes {
		if idx.Kind != engine.IndexBTree {
			continue
		}
		v, ok := fieldValue(doc, idx.FieldPath)
		if !ok {
			continue
		}
		hv := hashableValue(v)
		m := c.eqIndex[name]
		if m == nil {
			m = make(map[interface{}][]string)
			c.eqIndex[name] = m
		}
		m[hv] = append(m[hv], key)
	}
}

func indexRemove(c *collection, key string, doc dictionary.Document) {
	for name, idx := range c.indexes {
		if idx.Kind != engine.IndexBTree {
			continue
		}
		v, ok := fieldValue(doc, idx.FieldPath)
		if !ok {
			continue
		}
		hv := hashableValue(v)
		m := c.eqIndex[name]
		if m == nil {
			continue
		}
		keys := m[hv]
		for i, k := range keys {
			if k == key {
				m[hv] = append(keys[:i], keys[i+1:]...)
				break
			}
		}
	}
}

// collectionRef names the collection type inside the CRUD methods below,
// whose collection-name parameter shadows it.
type collectionRef = collection

func (e *Engine) Insert(ctx context.Context, tx engine.Tx, collection string, doc dictionary.Document, id *dictionary.DocID) (dictionary.DocID, error) {
	var docID dictionary.DocID
	if id != nil {
		docID = *id
	} else {
		docID = dictionary.DocID{Kind: dictionary.DocIDObjectID, Bytes: newObjectID()}
	}
	key := docKey(docID)

	apply := func(c *collectionRef) error {
		if _, exists := c.docs[key]; exists {
			return svcerr.Conflict("document already exists")
		}
		c.docs[key] = storedDoc{id: docID, doc: doc}
		c.order = append(c.order, key)
		indexInsert(c, key, doc)
		return nil
	}

	if th, ok := tx.(*txHandle); ok {
		c, found := th.collection(collection)
		if !found {
			return dictionary.DocID{}, svcerr.NotFound("collection not found: " + collection)
		}
		if err := apply(c); err != nil {
			return dictionary.DocID{}, err
		}
		th.touched[collection] = true
		th.events = append(th.events, engine.ChangeEvent{Collection: collection, Op: engine.ChangeInsert, DocID: docID})
		return docID, nil
	}

	e.mu.Lock()
	c, ok := e.collections[collection]
	if !ok {
		e.mu.Unlock()
		return dictionary.DocID{}, svcerr.NotFound("collection not found: " + collection)
	}
	err := apply(c)
	e.mu.Unlock()
	if err != nil {
		return dictionary.DocID{}, err
	}
	e.publish(engine.ChangeEvent{Collection: collection, Op: engine.ChangeInsert, DocID: docID})
	return docID, nil
}

func (e *Engine) FindByID(ctx context.Context, tx engine.Tx, collection string, id dictionary.DocID) (dictionary.Document, bool, error) {
	key := docKey(id)
	if th, ok := tx.(*txHandle); ok {
		c, found := th.collection(collection)
		if !found {
			return nil, false, svcerr.NotFound("collection not found: " + collection)
		}
		sd, ok := c.docs[key]
		if !ok {
			return nil, false, nil
		}
		return sd.doc, true, nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.collections[collection]
	if !ok {
		return nil, false, svcerr.NotFound("collection not found: " + collection)
	}
	sd, ok := c.docs[key]
	if !ok {
		return nil, false, nil
	}
	return sd.doc, true, nil
}

func (e *Engine) Update(ctx context.Context, tx engine.Tx, collection string, id dictionary.DocID, doc dictionary.Document) (bool, error) {
	key := docKey(id)

	apply := func(c *collectionRef) bool {
		old, exists := c.docs[key]
		if !exists {
			return false
		}
		indexRemove(c, key, old.doc)
		c.docs[key] = storedDoc{id: id, doc: doc}
		indexInsert(c, key, doc)
		return true
	}

	if th, ok := tx.(*txHandle); ok {
		c, found := th.collection(collection)
		if !found {
			return false, svcerr.NotFound("collection not found: " + collection)
		}
		updated := apply(c)
		if updated {
			th.touched[collection] = true
			th.events = append(th.events, engine.ChangeEvent{Collection: collection, Op: engine.ChangeUpdate, DocID: id})
		}
		return updated, nil
	}

	e.mu.Lock()
	c, ok := e.collections[collection]
	if !ok {
		e.mu.Unlock()
		return false, svcerr.NotFound("collection not found: " + collection)
	}
	updated := apply(c)
	e.mu.Unlock()
	if updated {
		e.publish(engine.ChangeEvent{Collection: collection, Op: engine.ChangeUpdate, DocID: id})
	}
	return updated, nil
}

func (e *Engine) Delete(ctx context.Context, tx engine.Tx, collection string, id dictionary.DocID) (bool, error) {
	key := docKey(id)

	apply := func(c *collectionRef) bool {
		old, exists := c.docs[key]
		if !exists {
			return false
		}
		indexRemove(c, key, old.doc)
		delete(c.docs, key)
		for i, k := range c.order {
			if k == key {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
		return true
	}

	if th, ok := tx.(*txHandle); ok {
		c, found := th.collection(collection)
		if !found {
			return false, svcerr.NotFound("collection not found: " + collection)
		}
		deleted := apply(c)
		if deleted {
			th.touched[collection] = true
			th.events = append(th.events, engine.ChangeEvent{Collection: collection, Op: engine.ChangeDelete, DocID: id})
		}
		return deleted, nil
	}

	e.mu.Lock()
	c, ok := e.collections[collection]
	if !ok {
		e.mu.Unlock()
		return false, svcerr.NotFound("collection not found: " + collection)
	}
	deleted := apply(c)
	e.mu.Unlock()
	if deleted {
		e.publish(engine.ChangeEvent{Collection: collection, Op: engine.ChangeDelete, DocID: id})
	}
	return deleted, nil
}
